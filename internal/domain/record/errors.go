package record

import "errors"

// Record store errors
var (
	ErrRecordNotFound = errors.New("attendance record not found")
	ErrNothingToWrite = errors.New("no records provided")
)
