package enrollment

import (
	"context"
	"database/sql"
	"errors"
)

// Store answers enrollment and course-level questions from Postgres.
// Both queries are read-only; enrollments are created by teachers elsewhere.
type Store struct {
	db *sql.DB
}

// NewStore creates an enrollment store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// IsEnrolled reports whether the student is registered for the course.
func (s *Store) IsEnrolled(ctx context.Context, courseID, studentID string) (bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT 1 FROM enrollments WHERE course_id = $1 AND student_id = $2
	`, courseID, studentID)
	var one int
	err := row.Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CourseLevel returns the course's level constraint, nil when unconstrained.
func (s *Store) CourseLevel(ctx context.Context, courseID string) (*int, error) {
	row := s.db.QueryRowContext(ctx, `SELECT level FROM courses WHERE id = $1`, courseID)
	var level *int
	if err := row.Scan(&level); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return level, nil
}

// LevelMatches applies the eligibility rule: the constraint only binds when
// both sides are set.
func LevelMatches(studentLevel, courseLevel *int) bool {
	if studentLevel == nil || courseLevel == nil {
		return true
	}
	return *studentLevel == *courseLevel
}
