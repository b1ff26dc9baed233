package staff

import "time"

// Staff is the internal employee record device identifiers resolve to. Only
// the fields the pipeline needs; the full employee aggregate belongs to the
// HR backend.
type Staff struct {
	ID               string
	FullName         string
	Email            string
	EmploymentStatus string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

const StatusActive = "active"
