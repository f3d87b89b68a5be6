package attendance

import (
	"time"

	"classattend/internal/device"
)

// Status is the terminal classification of a submission attempt.
type Status string

const (
	StatusPresent       Status = "present"
	StatusAbsent        Status = "absent"
	StatusRejected      Status = "rejected"
	StatusManualPresent Status = "manual_present"
)

// ValidManualStatus reports whether the override path may set this status.
func ValidManualStatus(s Status) bool {
	switch s {
	case StatusPresent, StatusAbsent, StatusManualPresent:
		return true
	}
	return false
}

// Record is one terminal outcome of a submission attempt. It is the durable
// contract reports are built from.
type Record struct {
	ID              string             `json:"id"`
	SessionID       string             `json:"session_id"`
	CourseID        string             `json:"course_id"`
	StudentID       string             `json:"student_id"`
	MatricNo        string             `json:"matric_no"`
	DeviceSignature string             `json:"device_signature"`
	Lat             float64            `json:"lat"`
	Lng             float64            `json:"lng"`
	AccuracyM       *float64           `json:"accuracy_m,omitempty"`
	DistanceM       float64            `json:"distance_m"`
	Status          Status             `json:"status"`
	Reason          string             `json:"reason,omitempty"`
	ReceiptSig      string             `json:"receipt_sig,omitempty"`
	IsManual        bool               `json:"is_manual"`
	VisitorID       *string            `json:"visitor_id,omitempty"`
	Confidence      *float64           `json:"confidence,omitempty"`
	Components      *device.Components `json:"components,omitempty"`
	SubmittedAt     time.Time          `json:"submitted_at"`
}

// CacheEntry is the last-seen mapping from a device signature to the most
// recent student who used it. Upserted on every persisted outcome, never
// deleted.
type CacheEntry struct {
	Signature     string
	LastStudentID string
	LastSessionID string
	LastMatricNo  string
	IPAddress     string
	UserAgent     string
	Platform      string
	Components    device.Components
	UpdatedAt     time.Time
}
