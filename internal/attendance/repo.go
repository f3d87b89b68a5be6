package attendance

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"classattend/internal/device"
)

// Repository persists attendance records and the device cache in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const recordCols = `id, session_id, course_id, student_id, matric_no, device_signature,
	lat, lng, accuracy_m, distance_m, status, reason, receipt_sig, is_manual,
	visitor_id, confidence, screen_width, screen_height, timezone, languages, submitted_at`

// uniqueViolation is the Postgres error code for a unique constraint breach.
const uniqueViolation = "23505"

// mapConflict translates write-time unique violations into the sentinels the
// pipeline treats as authoritative duplicate outcomes.
func mapConflict(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		switch pgErr.ConstraintName {
		case "attendance_session_student_uniq", "attendance_session_matric_uniq":
			return ErrDuplicateStudent
		case "attendance_session_device_uniq":
			return ErrDuplicateDevice
		}
	}
	return err
}

// FindBySessionMatric returns the prior record for (session, matric), or nil.
func (r *Repository) FindBySessionMatric(ctx context.Context, sessionID, matricNo string) (*Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+recordCols+`
		FROM attendance_records
		WHERE session_id = $1 AND matric_no = $2
	`, sessionID, matricNo)
	return scanRecord(row)
}

// FindBySessionDevice returns the prior non-manual record for (session,
// device signature), or nil.
func (r *Repository) FindBySessionDevice(ctx context.Context, sessionID, signature string) (*Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+recordCols+`
		FROM attendance_records
		WHERE session_id = $1 AND device_signature = $2 AND NOT is_manual
	`, sessionID, signature)
	return scanRecord(row)
}

// SessionDevices lists the devices that already produced a record in the
// session, with their components and the matric number that used them. Reads
// the session's own records rather than the device cache: a cache row is
// overwritten when the device next appears in another session, which would
// silently shrink this session's comparison set.
func (r *Repository) SessionDevices(ctx context.Context, sessionID string) ([]CacheEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT device_signature, student_id, session_id, matric_no,
		       screen_width, screen_height, timezone, languages, submitted_at
		FROM attendance_records
		WHERE session_id = $1 AND NOT is_manual
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []CacheEntry
	for rows.Next() {
		var e CacheEntry
		var width, height sql.NullInt64
		var tz, langs sql.NullString
		if err := rows.Scan(&e.Signature, &e.LastStudentID, &e.LastSessionID, &e.LastMatricNo,
			&width, &height, &tz, &langs, &e.UpdatedAt); err != nil {
			return nil, err
		}
		e.Components.ScreenWidth = int(width.Int64)
		e.Components.ScreenHeight = int(height.Int64)
		e.Components.Timezone = tz.String
		e.Components.Languages = splitLanguages(langs.String)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CreateWithCache writes the record and upserts the device-cache entry in one
// transaction, so a persisted outcome and its cache entry never diverge.
// Unique violations surface as ErrDuplicateStudent / ErrDuplicateDevice.
func (r *Repository) CreateWithCache(ctx context.Context, rec Record, cache CacheEntry) (Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.SubmittedAt.IsZero() {
		rec.SubmittedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return Record{}, err
	}
	defer tx.Rollback()

	var comps device.Components
	if rec.Components != nil {
		comps = *rec.Components
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO attendance_records (`+recordCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
	`, rec.ID, rec.SessionID, rec.CourseID, rec.StudentID, rec.MatricNo, rec.DeviceSignature,
		rec.Lat, rec.Lng, rec.AccuracyM, rec.DistanceM, rec.Status, rec.Reason, rec.ReceiptSig, rec.IsManual,
		rec.VisitorID, rec.Confidence,
		nullInt(comps.ScreenWidth), nullInt(comps.ScreenHeight),
		nullStr(comps.Timezone), nullStr(joinLanguages(comps.Languages)),
		rec.SubmittedAt)
	if err != nil {
		return Record{}, mapConflict(err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO device_cache (signature, last_student_id, last_session_id, ip_address, user_agent, platform,
			screen_width, screen_height, timezone, languages, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NOW())
		ON CONFLICT (signature) DO UPDATE SET
			last_student_id = EXCLUDED.last_student_id,
			last_session_id = EXCLUDED.last_session_id,
			ip_address = EXCLUDED.ip_address,
			user_agent = EXCLUDED.user_agent,
			platform = EXCLUDED.platform,
			screen_width = COALESCE(EXCLUDED.screen_width, device_cache.screen_width),
			screen_height = COALESCE(EXCLUDED.screen_height, device_cache.screen_height),
			timezone = COALESCE(EXCLUDED.timezone, device_cache.timezone),
			languages = COALESCE(EXCLUDED.languages, device_cache.languages),
			updated_at = NOW()
	`, cache.Signature, cache.LastStudentID, cache.LastSessionID, cache.IPAddress, cache.UserAgent, cache.Platform,
		nullInt(cache.Components.ScreenWidth), nullInt(cache.Components.ScreenHeight),
		nullStr(cache.Components.Timezone), nullStr(joinLanguages(cache.Components.Languages)))
	if err != nil {
		return Record{}, err
	}

	if err := tx.Commit(); err != nil {
		return Record{}, mapConflict(err)
	}
	return rec, nil
}

// UpsertManual writes a teacher-entered record keyed by (session, student).
// It may overwrite a student self-submission for the same pair; the override
// path is the only writer allowed to mutate status and reason.
func (r *Repository) UpsertManual(ctx context.Context, rec Record) (Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.SubmittedAt.IsZero() {
		rec.SubmittedAt = time.Now().UTC()
	}
	rec.IsManual = true

	row := r.db.QueryRowContext(ctx, `
		INSERT INTO attendance_records (id, session_id, course_id, student_id, matric_no, device_signature,
			status, reason, is_manual, submitted_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,TRUE,$9)
		ON CONFLICT ON CONSTRAINT attendance_session_student_uniq DO UPDATE SET
			status = EXCLUDED.status,
			reason = EXCLUDED.reason,
			device_signature = EXCLUDED.device_signature,
			is_manual = TRUE,
			submitted_at = EXCLUDED.submitted_at
		RETURNING id
	`, rec.ID, rec.SessionID, rec.CourseID, rec.StudentID, rec.MatricNo, rec.DeviceSignature,
		rec.Status, rec.Reason, rec.SubmittedAt)
	if err := row.Scan(&rec.ID); err != nil {
		return Record{}, mapConflict(err)
	}
	return rec, nil
}

// ListBySession returns all records for a session, newest first. Read side
// for teacher reports.
func (r *Repository) ListBySession(ctx context.Context, sessionID string) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+recordCols+`
		FROM attendance_records
		WHERE session_id = $1
		ORDER BY submitted_at DESC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanInto(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInto(sc rowScanner) (*Record, error) {
	var rec Record
	var width, height sql.NullInt64
	var tz, langs sql.NullString
	err := sc.Scan(&rec.ID, &rec.SessionID, &rec.CourseID, &rec.StudentID, &rec.MatricNo, &rec.DeviceSignature,
		&rec.Lat, &rec.Lng, &rec.AccuracyM, &rec.DistanceM, &rec.Status, &rec.Reason, &rec.ReceiptSig, &rec.IsManual,
		&rec.VisitorID, &rec.Confidence, &width, &height, &tz, &langs, &rec.SubmittedAt)
	if err != nil {
		return nil, err
	}
	comps := device.Components{
		ScreenWidth:  int(width.Int64),
		ScreenHeight: int(height.Int64),
		Timezone:     tz.String,
		Languages:    splitLanguages(langs.String),
	}
	if !comps.Empty() {
		rec.Components = &comps
	}
	return &rec, nil
}

func scanRecord(row *sql.Row) (*Record, error) {
	rec, err := scanInto(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

func nullInt(v int) any {
	if v == 0 {
		return nil
	}
	return v
}

func nullStr(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func joinLanguages(langs []string) string {
	return strings.Join(langs, ",")
}

func splitLanguages(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
