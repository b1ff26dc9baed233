package device

import "errors"

// Device communication errors
var (
	ErrNotConnected     = errors.New("device is not connected")
	ErrAlreadyConnected = errors.New("device is already connected")
	ErrDeviceNotFound   = errors.New("device not found in configuration")
)
