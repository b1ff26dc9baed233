package postgresql

import (
	"context"
	"fmt"

	"github.com/cmlabs-hris/attendance-sync-go/internal/domain/staff"
	"github.com/cmlabs-hris/attendance-sync-go/internal/pkg/database"
	"github.com/jackc/pgx/v5"
)

type staffRepository struct {
	db *database.DB
}

// NewStaffRepository exposes the HR backend's employees table as the staff
// directory. The pipeline only ever reads it.
func NewStaffRepository(db *database.DB) staff.Repository {
	return &staffRepository{db: db}
}

// FindActiveByEmail implements staff.Repository.
func (r *staffRepository) FindActiveByEmail(ctx context.Context, email string) (staff.Staff, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		SELECT id, full_name, email, employment_status, created_at, updated_at
		FROM employees
		WHERE LOWER(email) = LOWER($1)
		  AND employment_status = $2
		  AND deleted_at IS NULL
		LIMIT 1
	`

	return r.scan(q.QueryRow(ctx, query, email, staff.StatusActive))
}

// FindActiveByID implements staff.Repository.
func (r *staffRepository) FindActiveByID(ctx context.Context, id string) (staff.Staff, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		SELECT id, full_name, email, employment_status, created_at, updated_at
		FROM employees
		WHERE id = $1
		  AND employment_status = $2
		  AND deleted_at IS NULL
	`

	return r.scan(q.QueryRow(ctx, query, id, staff.StatusActive))
}

func (r *staffRepository) scan(row pgx.Row) (staff.Staff, error) {
	var s staff.Staff
	err := row.Scan(&s.ID, &s.FullName, &s.Email, &s.EmploymentStatus, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return staff.Staff{}, staff.ErrStaffNotFound
		}
		return staff.Staff{}, fmt.Errorf("failed to query staff directory: %w", err)
	}
	return s, nil
}
