package attendance

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"classattend/internal/audit"
	"classattend/internal/device"
	"classattend/internal/enrollment"
	"classattend/internal/geo"
	"classattend/internal/receipt"
	"classattend/internal/session"
	"classattend/internal/student"
)

// SessionDirectory resolves sessions for the pipeline.
type SessionDirectory interface {
	FindLiveByCode(ctx context.Context, code string) (*session.Session, error)
	FindByID(ctx context.Context, id string) (*session.Session, error)
}

// StudentDirectory resolves and updates students.
type StudentDirectory interface {
	FindByMatric(ctx context.Context, matricNo string) (*student.Student, error)
	FindByID(ctx context.Context, id string) (*student.Student, error)
	UpdateLevel(ctx context.Context, id string, level int) error
}

// EnrollmentDirectory answers registration and level questions.
type EnrollmentDirectory interface {
	IsEnrolled(ctx context.Context, courseID, studentID string) (bool, error)
	CourseLevel(ctx context.Context, courseID string) (*int, error)
}

// RecordStore persists attendance outcomes.
type RecordStore interface {
	FindBySessionMatric(ctx context.Context, sessionID, matricNo string) (*Record, error)
	FindBySessionDevice(ctx context.Context, sessionID, signature string) (*Record, error)
	SessionDevices(ctx context.Context, sessionID string) ([]CacheEntry, error)
	CreateWithCache(ctx context.Context, rec Record, cache CacheEntry) (Record, error)
	UpsertManual(ctx context.Context, rec Record) (Record, error)
}

// Service runs the submission validation pipeline. One request-scoped unit of
// work per submission; no state is shared between in-flight submissions
// except through the database constraints they contend on.
type Service struct {
	sessions    SessionDirectory
	students    StudentDirectory
	enrollments EnrollmentDirectory
	records     RecordStore
	signer      *receipt.Signer
	audit       audit.Publisher
	log         *zap.Logger
	now         func() time.Time
}

// NewService wires the pipeline.
func NewService(sessions SessionDirectory, students StudentDirectory, enrollments EnrollmentDirectory,
	records RecordStore, signer *receipt.Signer, auditPub audit.Publisher, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		sessions:    sessions,
		students:    students,
		enrollments: enrollments,
		records:     records,
		signer:      signer,
		audit:       auditPub,
		log:         log,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// SubmitInput is one student submission. Device info arrives already parsed
// and validated; schema violations never reach the pipeline.
type SubmitInput struct {
	MatricNo      string
	SessionCode   string
	Lat           float64
	Lng           float64
	AccuracyM     *float64
	DeclaredLevel *int
	Device        *device.Info
	UserAgent     string
	ClientIP      string
}

// Result is a successful submission.
type Result struct {
	Record   Record
	Receipt  string
	Distance float64
	Status   Status
}

// Submit runs the full validation pipeline. Every failure is terminal for the
// request and returns a *Rejection; nothing is persisted on early failures,
// and out-of-range attempts persist a rejected record before returning.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*Result, error) {
	start := s.now()
	res, err := s.submit(ctx, in)
	observePipeline(s.now().Sub(start))
	if err != nil {
		if rej, ok := AsRejection(err); ok {
			submissionsTotal.WithLabelValues(string(rej.Kind)).Inc()
		} else {
			submissionsTotal.WithLabelValues(string(KindInternal)).Inc()
		}
		return nil, err
	}
	submissionsTotal.WithLabelValues("accepted").Inc()
	return res, nil
}

func (s *Service) submit(ctx context.Context, in SubmitInput) (*Result, error) {
	matricNo := student.Normalize(in.MatricNo)

	// Step 1: resolve a live session. Wrong code and expired session are
	// deliberately indistinguishable.
	sess, err := s.sessions.FindLiveByCode(ctx, in.SessionCode)
	if errors.Is(err, session.ErrNotFound) {
		return nil, reject(KindSessionNotFound, "no active session with that code", nil)
	}
	if err != nil {
		return nil, s.internal("session lookup", err)
	}

	// Step 2: resolve the student.
	stud, err := s.students.FindByMatric(ctx, matricNo)
	if errors.Is(err, student.ErrNotFound) {
		return nil, reject(KindStudentNotFound, "matric number not recognized", nil)
	}
	if err != nil {
		return nil, s.internal("student lookup", err)
	}
	if in.DeclaredLevel != nil && (stud.Level == nil || *stud.Level != *in.DeclaredLevel) {
		if err := s.students.UpdateLevel(ctx, stud.ID, *in.DeclaredLevel); err != nil {
			s.log.Warn("level update failed", zap.String("student_id", stud.ID), zap.Error(err))
		} else {
			stud.Level = in.DeclaredLevel
		}
	}

	// Step 3: enrollment.
	enrolled, err := s.enrollments.IsEnrolled(ctx, sess.CourseID, stud.ID)
	if err != nil {
		return nil, s.internal("enrollment check", err)
	}
	if !enrolled {
		return nil, reject(KindNotEnrolled, "student is not enrolled in this course", nil)
	}

	// Step 4: level eligibility.
	courseLevel, err := s.enrollments.CourseLevel(ctx, sess.CourseID)
	if err != nil {
		return nil, s.internal("course level lookup", err)
	}
	if !enrollment.LevelMatches(stud.Level, courseLevel) {
		return nil, reject(KindLevelMismatch, "student level does not match course level", map[string]any{
			"student_level": *stud.Level,
			"course_level":  *courseLevel,
		})
	}

	// Step 5: duplicate submission pre-check. An optimization; the unique
	// index is the authority at write time.
	if prior, err := s.records.FindBySessionMatric(ctx, sess.ID, matricNo); err != nil {
		return nil, s.internal("duplicate pre-check", err)
	} else if prior != nil {
		return nil, alreadySubmitted(prior)
	}

	// Step 6: device signature.
	resolution := device.Resolve(in.Device, in.UserAgent, in.ClientIP)

	// Step 7: device reuse pre-check, plus the similarity heuristic when the
	// client supplied a high-confidence identifier.
	if prior, err := s.records.FindBySessionDevice(ctx, sess.ID, resolution.Signature); err != nil {
		return nil, s.internal("device pre-check", err)
	} else if prior != nil {
		return nil, deviceAlreadyUsed(prior.MatricNo, prior.SubmittedAt, false)
	}
	if resolution.HighConfidence() && in.Device != nil {
		entries, err := s.records.SessionDevices(ctx, sess.ID)
		if err != nil {
			return nil, s.internal("device similarity scan", err)
		}
		for _, e := range entries {
			if e.Signature == resolution.Signature {
				continue
			}
			if in.Device.Components.Matches(e.Components) {
				return nil, deviceAlreadyUsed(e.LastMatricNo, e.UpdatedAt, true)
			}
		}
	}

	// Step 8: geofence.
	verdict := geo.Evaluate(sess.Center, sess.RadiusM, geo.Point{Lat: in.Lat, Lng: in.Lng})

	// Step 9: receipt.
	submittedAt := s.now()
	sig := s.signer.Sign(sess.ID, matricNo, submittedAt, sess.Nonce)

	rec := Record{
		SessionID:       sess.ID,
		CourseID:        sess.CourseID,
		StudentID:       stud.ID,
		MatricNo:        matricNo,
		DeviceSignature: resolution.Signature,
		Lat:             in.Lat,
		Lng:             in.Lng,
		AccuracyM:       in.AccuracyM,
		DistanceM:       verdict.Distance,
		Status:          StatusPresent,
		ReceiptSig:      sig,
		SubmittedAt:     submittedAt,
	}
	if in.Device != nil {
		if in.Device.VisitorID != "" {
			rec.VisitorID = &in.Device.VisitorID
		}
		rec.Confidence = in.Device.Confidence
		if !in.Device.Components.Empty() {
			comps := in.Device.Components
			rec.Components = &comps
		}
	}
	if !verdict.WithinRange {
		// Out-of-range attempts are persisted as rejected records: they keep
		// audit value and the device signature still burns its slot.
		rec.Status = StatusRejected
		rec.Reason = "outside allowed radius"
	}

	cache := CacheEntry{
		Signature:     resolution.Signature,
		LastStudentID: stud.ID,
		LastSessionID: sess.ID,
		IPAddress:     in.ClientIP,
		UserAgent:     in.UserAgent,
	}
	if in.Device != nil {
		cache.Platform = in.Device.Platform
		cache.Components = in.Device.Components
	}

	// Step 10: persist. A unique violation here means a concurrent submission
	// won the race; the constraint verdict overrides the pre-checks.
	rec, err = s.records.CreateWithCache(ctx, rec, cache)
	if errors.Is(err, ErrDuplicateStudent) {
		if prior, perr := s.records.FindBySessionMatric(ctx, sess.ID, matricNo); perr == nil && prior != nil {
			return nil, alreadySubmitted(prior)
		}
		return nil, reject(KindAlreadySubmitted, "attendance already recorded for this session", nil)
	}
	if errors.Is(err, ErrDuplicateDevice) {
		if prior, perr := s.records.FindBySessionDevice(ctx, sess.ID, resolution.Signature); perr == nil && prior != nil {
			return nil, deviceAlreadyUsed(prior.MatricNo, prior.SubmittedAt, false)
		}
		return nil, reject(KindDeviceAlreadyUsed, "device already used for this session", nil)
	}
	if err != nil {
		return nil, s.internal("persist record", err)
	}

	s.publishAudit(ctx, rec)

	// Step 11: classify.
	if rec.Status == StatusRejected {
		return nil, reject(KindOutOfRange, "submission location outside allowed radius", map[string]any{
			"required_radius_m": sess.RadiusM,
			"distance_m":        verdict.Distance,
			"overshoot_m":       verdict.Overshoot,
		})
	}
	return &Result{Record: rec, Receipt: sig, Distance: verdict.Distance, Status: rec.Status}, nil
}

// MarkManual is the teacher override path: upsert keyed by (session, student),
// synthetic device signature, no geofence or device checks.
func (s *Service) MarkManual(ctx context.Context, sessionID, studentID string, status Status, reason string) (*Record, error) {
	if !ValidManualStatus(status) {
		return nil, reject(KindInternal, "invalid manual status", map[string]any{"status": status})
	}
	sess, err := s.sessions.FindByID(ctx, sessionID)
	if errors.Is(err, session.ErrNotFound) {
		return nil, reject(KindSessionNotFound, "session not found", nil)
	}
	if err != nil {
		return nil, s.internal("session lookup", err)
	}
	stud, err := s.students.FindByID(ctx, studentID)
	if errors.Is(err, student.ErrNotFound) {
		return nil, reject(KindStudentNotFound, "student not found", nil)
	}
	if err != nil {
		return nil, s.internal("student lookup", err)
	}

	rec, err := s.records.UpsertManual(ctx, Record{
		SessionID:       sess.ID,
		CourseID:        sess.CourseID,
		StudentID:       stud.ID,
		MatricNo:        stud.MatricNo,
		DeviceSignature: device.ManualSignature(sess.ID, stud.ID),
		Status:          status,
		Reason:          reason,
		SubmittedAt:     s.now(),
	})
	if err != nil {
		return nil, s.internal("manual upsert", err)
	}
	submissionsTotal.WithLabelValues("manual").Inc()
	s.publishAudit(ctx, rec)
	return &rec, nil
}

// publishAudit emits the post-commit event. Fire-and-forget: audit must never
// block or fail the pipeline.
func (s *Service) publishAudit(ctx context.Context, rec Record) {
	if s.audit == nil {
		return
	}
	err := s.audit.Publish(ctx, audit.Event{
		Type:      audit.TypeSubmission,
		SessionID: rec.SessionID,
		StudentID: rec.StudentID,
		Outcome:   string(rec.Status),
		Detail:    rec.Reason,
		At:        rec.SubmittedAt,
	})
	if err != nil {
		s.log.Warn("audit publish failed", zap.String("session_id", rec.SessionID), zap.Error(err))
	}
}

func (s *Service) internal(stage string, err error) *Rejection {
	s.log.Error("pipeline stage failed", zap.String("stage", stage), zap.Error(err))
	return reject(KindInternal, "submission could not be processed", nil)
}

func alreadySubmitted(prior *Record) *Rejection {
	return reject(KindAlreadySubmitted, "attendance already recorded for this session", map[string]any{
		"status":       prior.Status,
		"submitted_at": prior.SubmittedAt,
	})
}

func deviceAlreadyUsed(matricNo string, at time.Time, probable bool) *Rejection {
	details := map[string]any{
		"used_by": matricNo,
		"used_at": at,
	}
	if probable {
		details["probable_duplicate"] = true
	}
	return reject(KindDeviceAlreadyUsed, "this device already submitted attendance for this session", details)
}
