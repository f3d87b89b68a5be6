package session

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// ErrNotFound covers both unknown codes and expired sessions so a caller
// cannot tell which was the case.
var ErrNotFound = errors.New("session not found")

// Store looks up sessions in Postgres.
type Store struct {
	db *sql.DB
}

// NewStore creates a session store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const selectCols = `id, course_id, teacher_id, code, center_lat, center_lng, radius_m, nonce, starts_at, expires_at, active`

// FindLiveByCode returns the unique live session with the given code.
func (s *Store) FindLiveByCode(ctx context.Context, code string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+selectCols+`
		FROM sessions
		WHERE code = $1 AND active AND expires_at > NOW()
		LIMIT 1
	`, code)
	sess, err := scan(row)
	if err != nil {
		return nil, err
	}
	// Guard against clock skew between app and database.
	if !sess.Live(time.Now()) {
		return nil, ErrNotFound
	}
	return sess, nil
}

// FindByID returns a session regardless of liveness. Used by the manual
// override path, which may mark students after a session expires.
func (s *Store) FindByID(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+selectCols+`
		FROM sessions
		WHERE id = $1
	`, id)
	return scan(row)
}

// FindForTeacher returns a session only when owned by the given teacher.
// Used by owner-scoped report reads, not by the submission pipeline.
func (s *Store) FindForTeacher(ctx context.Context, id, teacherID string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+selectCols+`
		FROM sessions
		WHERE id = $1 AND teacher_id = $2
	`, id, teacherID)
	return scan(row)
}

func scan(row *sql.Row) (*Session, error) {
	var sess Session
	err := row.Scan(&sess.ID, &sess.CourseID, &sess.TeacherID, &sess.Code,
		&sess.Center.Lat, &sess.Center.Lng, &sess.RadiusM, &sess.Nonce,
		&sess.StartsAt, &sess.ExpiresAt, &sess.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}
