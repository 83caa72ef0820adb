package app

import (
	"errors"
	"fmt"
)

// Application-level errors for the bookkeeping commands.
var (
	ErrAdminNotAuthorized = errors.New("performing user is not an admin")
	ErrNotAllowed         = errors.New("sender is not allowed by the whitelist")
	ErrInvalidDay         = errors.New("day of month must be an integer")
	ErrInvalidTimezone    = errors.New("invalid IANA timezone")
	ErrInvalidDate        = errors.New("date must be YYYY-MM-DD")
	ErrRangeInverted      = errors.New("start date is after end date")
	ErrInvalidIndex       = errors.New("index must be a positive integer")
	ErrNoRecords          = errors.New("no records in scope")
	ErrIndexOutOfRange    = errors.New("index out of range")
	ErrRecordGone         = errors.New("record was already removed")
	ErrAlreadyWhitelisted = errors.New("user is already whitelisted")
	ErrNotWhitelisted     = errors.New("user is not whitelisted")
)

// IndexOutOfRangeError is returned when a delete index exceeds the records in scope.
type IndexOutOfRangeError struct {
	Index int
	Count int
}

func (e *IndexOutOfRangeError) Error() string {
	return fmt.Sprintf("index %d out of range, %d records in scope", e.Index, e.Count)
}

func (e *IndexOutOfRangeError) Is(target error) bool {
	return target == ErrIndexOutOfRange
}
