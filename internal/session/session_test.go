package session

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLive(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name string
		sess Session
		want bool
	}{
		{"active before expiry", Session{Active: true, ExpiresAt: now.Add(time.Hour)}, true},
		{"active past expiry", Session{Active: true, ExpiresAt: now.Add(-time.Minute)}, false},
		{"inactive before expiry", Session{Active: false, ExpiresAt: now.Add(time.Hour)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.sess.Live(now))
		})
	}
}

func sessionRows(expiresAt time.Time, active bool) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "course_id", "teacher_id", "code", "center_lat", "center_lng",
		"radius_m", "nonce", "starts_at", "expires_at", "active",
	}).AddRow("sess-1", "course-1", "teach-1", "4821", 6.5244, 3.3792,
		100.0, "nonce-a", expiresAt.Add(-time.Hour), expiresAt, active)
}

func TestFindLiveByCode(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`FROM sessions\s+WHERE code = \$1 AND active AND expires_at > NOW\(\)`).
		WithArgs("4821").
		WillReturnRows(sessionRows(time.Now().Add(time.Hour), true))

	sess, err := NewStore(db).FindLiveByCode(context.Background(), "4821")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", sess.ID)
	assert.Equal(t, 100.0, sess.RadiusM)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindLiveByCodeNotFound(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`FROM sessions`).
		WithArgs("9999").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err = NewStore(db).FindLiveByCode(context.Background(), "9999")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFindLiveByCodeClockSkewGuard(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	// Database believed the session live, app clock says expired.
	mock.ExpectQuery(`FROM sessions`).
		WithArgs("4821").
		WillReturnRows(sessionRows(time.Now().Add(-time.Second), true))

	_, err = NewStore(db).FindLiveByCode(context.Background(), "4821")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFindForTeacher(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`FROM sessions\s+WHERE id = \$1 AND teacher_id = \$2`).
		WithArgs("sess-1", "teach-1").
		WillReturnRows(sessionRows(time.Now().Add(time.Hour), true))

	sess, err := NewStore(db).FindForTeacher(context.Background(), "sess-1", "teach-1")
	require.NoError(t, err)
	assert.Equal(t, "teach-1", sess.TeacherID)
}
