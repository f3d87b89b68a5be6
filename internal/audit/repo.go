package audit

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
)

// Repository persists consumed audit events.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Insert writes one audit row.
func (r *Repository) Insert(ctx context.Context, evt Event) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, event_type, session_id, student_id, outcome, detail, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, uuid.NewString(), evt.Type, evt.SessionID, evt.StudentID, evt.Outcome, evt.Detail, evt.At)
	return err
}
