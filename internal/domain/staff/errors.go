package staff

import "errors"

var (
	ErrStaffNotFound = errors.New("staff record not found or inactive")
)
