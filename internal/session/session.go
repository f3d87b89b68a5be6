package session

import (
	"time"

	"classattend/internal/geo"
)

// Session is one instance of a teacher opening attendance for a course.
// Read-only to the submission pipeline; created by teacher actions elsewhere.
type Session struct {
	ID        string
	CourseID  string
	TeacherID string
	Code      string
	Center    geo.Point
	RadiusM   float64
	Nonce     string
	StartsAt  time.Time
	ExpiresAt time.Time
	Active    bool
}

// Live reports whether the session accepts submissions at the given instant.
// Liveness is a derived predicate; expiry needs no explicit transition event.
func (s *Session) Live(now time.Time) bool {
	return s.Active && now.Before(s.ExpiresAt)
}
