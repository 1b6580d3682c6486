// Package store defines the persisted request records and the repository
// contracts the rest of the service programs against.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// Request status values.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
)

// StatusReturned marks an out request whose return was verified. The value is
// the literal the approver dashboards and notification templates expect.
const StatusReturned = "បានចូលមកវិញ"

// ReturnedAtLayout is the display format of the return timestamp.
const ReturnedAtLayout = "15:04 02/01/2006"

// User identifies an employee. The user directory itself lives outside this
// service; records carry a denormalized copy of the fields they need.
type User struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Department string `json:"department"`
	Photo      string `json:"photo"` // reference photo URL, may be empty
}

// LeaveRequest is a multi-day or single-day leave application.
type LeaveRequest struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Name        string    `json:"name"`
	Department  string    `json:"department"`
	Photo       string    `json:"photo,omitempty"`
	Duration    string    `json:"duration"`
	Days        float64   `json:"days"`
	Reason      string    `json:"reason"`
	StartDate   string    `json:"start_date"` // dd/mm/yyyy
	EndDate     string    `json:"end_date"`   // dd/mm/yyyy
	Status      string    `json:"status"`
	RequestedAt time.Time `json:"requested_at"`
}

// OutRequest is a short absence within one day. Its return half is mutated
// exactly once, by the return-confirmation commit.
type OutRequest struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Name        string    `json:"name"`
	Department  string    `json:"department"`
	Photo       string    `json:"photo,omitempty"`
	Duration    string    `json:"duration"`
	Reason      string    `json:"reason"`
	Date        string    `json:"date"` // dd/mm/yyyy
	Status      string    `json:"status"`
	RequestedAt time.Time `json:"requested_at"`

	// ReturnStatus is empty until the return is confirmed, then StatusReturned.
	ReturnStatus string `json:"return_status,omitempty"`
	// ReturnedAt is the confirmation time in ReturnedAtLayout, or empty.
	ReturnedAt string `json:"returned_at,omitempty"`
}

// RequestStore is the persistence contract for leave and out requests.
// Updates are atomic per call; concurrent writers follow last-write-wins.
type RequestStore interface {
	CreateLeaveRequest(ctx context.Context, req *LeaveRequest) error
	CreateOutRequest(ctx context.Context, req *OutRequest) error

	// GetOutRequest returns ErrNotFound when no such record exists.
	GetOutRequest(ctx context.Context, id string) (*OutRequest, error)

	// MarkReturned sets the return status and timestamp of an out request.
	// It is the single conditional write of the confirmation pipeline.
	MarkReturned(ctx context.Context, id, returnStatus, returnedAt string) error

	ListLeaveRequestsByUser(ctx context.Context, userID string) ([]LeaveRequest, error)
	ListOutRequestsByUser(ctx context.Context, userID string) ([]OutRequest, error)
}
