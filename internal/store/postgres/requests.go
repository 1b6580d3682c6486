package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/daro-kh/leavegate/internal/store"
)

// RequestRepository provides PostgreSQL-backed request storage.
type RequestRepository struct {
	pool *Pool
}

var _ store.RequestStore = (*RequestRepository)(nil)

// NewRequestRepository creates a new PostgreSQL request repository.
func NewRequestRepository(pool *Pool) *RequestRepository {
	return &RequestRepository{pool: pool}
}

// CreateLeaveRequest inserts a new leave request.
func (r *RequestRepository) CreateLeaveRequest(ctx context.Context, req *store.LeaveRequest) error {
	query := `
		INSERT INTO leave_requests
			(id, user_id, name, department, photo, duration, days, reason, start_date, end_date, status, requested_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.pool.Exec(ctx, query,
		req.ID, req.UserID, req.Name, req.Department, req.Photo,
		req.Duration, req.Days, req.Reason, req.StartDate, req.EndDate,
		req.Status, req.RequestedAt,
	)
	if err != nil {
		return fmt.Errorf("create leave request: %w", err)
	}
	return nil
}

// CreateOutRequest inserts a new out request with an empty return half.
func (r *RequestRepository) CreateOutRequest(ctx context.Context, req *store.OutRequest) error {
	query := `
		INSERT INTO out_requests
			(id, user_id, name, department, photo, duration, reason, date, status, requested_at, return_status, returned_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.pool.Exec(ctx, query,
		req.ID, req.UserID, req.Name, req.Department, req.Photo,
		req.Duration, req.Reason, req.Date, req.Status, req.RequestedAt,
		req.ReturnStatus, req.ReturnedAt,
	)
	if err != nil {
		return fmt.Errorf("create out request: %w", err)
	}
	return nil
}

// GetOutRequest fetches an out request by ID.
func (r *RequestRepository) GetOutRequest(ctx context.Context, id string) (*store.OutRequest, error) {
	query := `
		SELECT id, user_id, name, department, photo, duration, reason, date, status, requested_at, return_status, returned_at
		FROM out_requests
		WHERE id = $1
	`

	var req store.OutRequest
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&req.ID,
		&req.UserID,
		&req.Name,
		&req.Department,
		&req.Photo,
		&req.Duration,
		&req.Reason,
		&req.Date,
		&req.Status,
		&req.RequestedAt,
		&req.ReturnStatus,
		&req.ReturnedAt,
	)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get out request: %w", err)
	}

	return &req, nil
}

// MarkReturned updates the return fields of an out request.
func (r *RequestRepository) MarkReturned(ctx context.Context, id, returnStatus, returnedAt string) error {
	result, err := r.pool.Exec(ctx,
		"UPDATE out_requests SET return_status = $2, returned_at = $3 WHERE id = $1",
		id, returnStatus, returnedAt,
	)
	if err != nil {
		return fmt.Errorf("mark returned: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ListLeaveRequestsByUser returns a user's leave requests, newest first.
func (r *RequestRepository) ListLeaveRequestsByUser(ctx context.Context, userID string) ([]store.LeaveRequest, error) {
	query := `
		SELECT id, user_id, name, department, photo, duration, days, reason, start_date, end_date, status, requested_at
		FROM leave_requests
		WHERE user_id = $1
		ORDER BY requested_at DESC
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list leave requests: %w", err)
	}
	defer rows.Close()

	var requests []store.LeaveRequest
	for rows.Next() {
		var req store.LeaveRequest
		if err := rows.Scan(
			&req.ID, &req.UserID, &req.Name, &req.Department, &req.Photo,
			&req.Duration, &req.Days, &req.Reason, &req.StartDate, &req.EndDate,
			&req.Status, &req.RequestedAt,
		); err != nil {
			return nil, fmt.Errorf("scan leave request: %w", err)
		}
		requests = append(requests, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate leave requests: %w", err)
	}
	return requests, nil
}

// ListOutRequestsByUser returns a user's out requests, newest first.
func (r *RequestRepository) ListOutRequestsByUser(ctx context.Context, userID string) ([]store.OutRequest, error) {
	query := `
		SELECT id, user_id, name, department, photo, duration, reason, date, status, requested_at, return_status, returned_at
		FROM out_requests
		WHERE user_id = $1
		ORDER BY requested_at DESC
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list out requests: %w", err)
	}
	defer rows.Close()

	var requests []store.OutRequest
	for rows.Next() {
		var req store.OutRequest
		if err := rows.Scan(
			&req.ID, &req.UserID, &req.Name, &req.Department, &req.Photo,
			&req.Duration, &req.Reason, &req.Date, &req.Status, &req.RequestedAt,
			&req.ReturnStatus, &req.ReturnedAt,
		); err != nil {
			return nil, fmt.Errorf("scan out request: %w", err)
		}
		requests = append(requests, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate out requests: %w", err)
	}
	return requests, nil
}
