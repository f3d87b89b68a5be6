package student

import (
	"context"
	"database/sql"
	"errors"
	"strings"
)

// ErrNotFound is returned when no student carries the matric number.
var ErrNotFound = errors.New("student not found")

// Student is the read-side view the submission pipeline needs.
type Student struct {
	ID       string
	MatricNo string
	FullName string
	Level    *int
}

// Store reads and updates students in Postgres.
type Store struct {
	db *sql.DB
}

// NewStore creates a student store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Normalize canonicalizes a submitted matric number for lookups and receipts.
func Normalize(matricNo string) string {
	return strings.ToUpper(strings.TrimSpace(matricNo))
}

// FindByMatric looks a student up by normalized matric number.
func (s *Store) FindByMatric(ctx context.Context, matricNo string) (*Student, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, matric_no, full_name, level
		FROM students WHERE matric_no = $1
	`, Normalize(matricNo))
	var st Student
	err := row.Scan(&st.ID, &st.MatricNo, &st.FullName, &st.Level)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// FindByID looks a student up by primary key.
func (s *Store) FindByID(ctx context.Context, id string) (*Student, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, matric_no, full_name, level
		FROM students WHERE id = $1
	`, id)
	var st Student
	err := row.Scan(&st.ID, &st.MatricNo, &st.FullName, &st.Level)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// UpdateLevel records a newly declared level for the student.
func (s *Store) UpdateLevel(ctx context.Context, id string, level int) error {
	_, err := s.db.ExecContext(ctx, `UPDATE students SET level = $2 WHERE id = $1`, id, level)
	return err
}
