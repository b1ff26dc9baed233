package syncjob

import "errors"

// Sync job domain errors
var (
	ErrJobNotFound       = errors.New("sync job not found")
	ErrJobAlreadyRunning = errors.New("sync job is already running")
	ErrJobNotRunning     = errors.New("sync job is not running")
	ErrJobTerminal       = errors.New("sync job already reached a terminal state")
	ErrNoEnabledDevices  = errors.New("no enabled devices match the job configuration")
	ErrInvalidDateRange  = errors.New("job start date must not be after end date")
)
