package staff

import "context"

// Repository is the staff directory the identity resolver looks keys up in.
// Both lookups are restricted to active staff; absent or inactive staff
// return ErrStaffNotFound.
type Repository interface {
	FindActiveByEmail(ctx context.Context, email string) (Staff, error)
	FindActiveByID(ctx context.Context, id string) (Staff, error)
}
