// Package dates handles the dd/mm/yyyy display date format used across
// request records and its conversion from the yyyy-mm-dd HTML input format.
package dates

import (
	"fmt"
	"time"
)

const (
	// DisplayLayout is the dd/mm/yyyy request date format.
	DisplayLayout = "02/01/2006"
	// ISOLayout is the yyyy-mm-dd interchange format.
	ISOLayout = "2006-01-02"
)

// ParseDisplay parses a dd/mm/yyyy date.
func ParseDisplay(s string) (time.Time, error) {
	t, err := time.Parse(DisplayLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return t, nil
}

// FromISO converts yyyy-mm-dd to dd/mm/yyyy.
func FromISO(s string) (string, error) {
	t, err := time.Parse(ISOLayout, s)
	if err != nil {
		return "", fmt.Errorf("parse date %q: %w", s, err)
	}
	return t.Format(DisplayLayout), nil
}

// AddDays shifts a dd/mm/yyyy date by n calendar days.
func AddDays(s string, n int) (string, error) {
	t, err := ParseDisplay(s)
	if err != nil {
		return "", err
	}
	return t.AddDate(0, 0, n).Format(DisplayLayout), nil
}
