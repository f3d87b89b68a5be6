package attendance

import (
	"errors"
	"fmt"
)

// Kind identifies why a submission was refused.
type Kind string

const (
	KindSessionNotFound     Kind = "SESSION_NOT_FOUND"
	KindStudentNotFound     Kind = "STUDENT_NOT_FOUND"
	KindNotEnrolled         Kind = "NOT_ENROLLED"
	KindLevelMismatch       Kind = "LEVEL_MISMATCH"
	KindAlreadySubmitted    Kind = "ALREADY_SUBMITTED"
	KindDeviceAlreadyUsed   Kind = "DEVICE_ALREADY_USED"
	KindOutOfRange          Kind = "OUT_OF_RANGE"
	KindMalformedDeviceInfo Kind = "MALFORMED_DEVICE_INFO"
	KindInternal            Kind = "INTERNAL_ERROR"
)

// Rejection is the single typed error a failed attempt surfaces. Details
// carry what the caller needs to self-correct (required radius vs actual
// distance, prior submission status) and, on device reuse, the previous
// user's identity as a deliberate deterrent.
type Rejection struct {
	Kind    Kind
	Message string
	Details map[string]any
}

func (r *Rejection) Error() string {
	return fmt.Sprintf("submission rejected [%s]: %s", r.Kind, r.Message)
}

func reject(kind Kind, msg string, details map[string]any) *Rejection {
	return &Rejection{Kind: kind, Message: msg, Details: details}
}

// AsRejection unwraps err into a Rejection when it is one.
func AsRejection(err error) (*Rejection, bool) {
	var r *Rejection
	if errors.As(err, &r) {
		return r, true
	}
	return nil, false
}

// Sentinel errors raised by the repository when the database refuses a write
// on a uniqueness constraint. These are authoritative: a pre-check that
// missed a concurrent writer loses to the index.
var (
	ErrDuplicateStudent = errors.New("attendance already recorded for student in session")
	ErrDuplicateDevice  = errors.New("device already used in session")
)
