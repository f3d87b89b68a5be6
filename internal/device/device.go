package device

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrMalformed is returned when the device-info payload fails schema
// validation. It is raised before the submission pipeline runs.
var ErrMalformed = errors.New("malformed device info")

var validate = validator.New()

// Source records which signal produced a signature.
type Source string

const (
	// SourceVisitorID means a client-supplied high-confidence visitor
	// identifier was used verbatim.
	SourceVisitorID Source = "visitor_id"
	// SourceFingerprint means a client-supplied generic fingerprint string.
	SourceFingerprint Source = "fingerprint"
	// SourceDerived means the server computed a fallback from request
	// descriptors.
	SourceDerived Source = "derived"
)

// Components are the structured signals used by the similarity heuristic.
type Components struct {
	ScreenWidth  int      `json:"screen_width" validate:"omitempty,gt=0"`
	ScreenHeight int      `json:"screen_height" validate:"omitempty,gt=0"`
	Timezone     string   `json:"timezone" validate:"omitempty,max=64"`
	Languages    []string `json:"languages" validate:"omitempty,max=16,dive,max=35"`
}

// Matches reports whether both component sets carry all three signals and all
// three agree. This is a best-effort heuristic for spotting the same physical
// device behind different identifiers, not proof.
func (c Components) Matches(other Components) bool {
	if !c.complete() || !other.complete() {
		return false
	}
	if c.ScreenWidth != other.ScreenWidth || c.ScreenHeight != other.ScreenHeight {
		return false
	}
	if c.Timezone != other.Timezone {
		return false
	}
	if len(c.Languages) != len(other.Languages) {
		return false
	}
	for i := range c.Languages {
		if c.Languages[i] != other.Languages[i] {
			return false
		}
	}
	return true
}

// Empty reports whether no signal is set at all.
func (c Components) Empty() bool {
	return c.ScreenWidth == 0 && c.ScreenHeight == 0 && c.Timezone == "" && len(c.Languages) == 0
}

func (c Components) complete() bool {
	return c.ScreenWidth > 0 && c.ScreenHeight > 0 && c.Timezone != "" && len(c.Languages) > 0
}

// Info is the closed set of device descriptors a client may submit.
// Unrecognized keys are rejected at parse time.
type Info struct {
	VisitorID   string   `json:"visitor_id" validate:"omitempty,min=8,max=128"`
	Confidence  *float64 `json:"confidence" validate:"omitempty,gte=0,lte=1"`
	Fingerprint string   `json:"fingerprint" validate:"omitempty,min=8,max=256"`
	Platform    string   `json:"platform" validate:"omitempty,max=64"`
	Components
}

// ParseInfo decodes and validates a raw device-info payload. A nil or empty
// payload is legal (the resolver falls back to server-derived signals).
func ParseInfo(raw []byte) (*Info, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var info Info
	if err := dec.Decode(&info); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := validate.Struct(&info); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return &info, nil
}

// Resolution is a resolved device identity for one submission.
type Resolution struct {
	Signature string
	Source    Source
}

// HighConfidence reports whether the signature came from a visitor identifier,
// which gates the similarity heuristic.
func (r Resolution) HighConfidence() bool { return r.Source == SourceVisitorID }

// Resolve derives the device signature for a submission, preferring the most
// trustworthy signal: visitor id, then client fingerprint, then a hash over
// the request's descriptors.
func Resolve(info *Info, userAgent, clientIP string) Resolution {
	if info != nil {
		if info.VisitorID != "" {
			return Resolution{Signature: info.VisitorID, Source: SourceVisitorID}
		}
		if info.Fingerprint != "" {
			return Resolution{Signature: info.Fingerprint, Source: SourceFingerprint}
		}
	}
	return Resolution{Signature: derive(info, userAgent, clientIP), Source: SourceDerived}
}

// derive hashes the available descriptors in a field-order-independent way so
// the same device/browser combination always maps to the same signature.
func derive(info *Info, userAgent, clientIP string) string {
	fields := []string{
		"ua=" + userAgent,
		"ip=" + clientIP,
	}
	if info != nil {
		if info.Platform != "" {
			fields = append(fields, "platform="+info.Platform)
		}
		if info.ScreenWidth > 0 && info.ScreenHeight > 0 {
			fields = append(fields, fmt.Sprintf("screen=%dx%d", info.ScreenWidth, info.ScreenHeight))
		}
		if info.Timezone != "" {
			fields = append(fields, "tz="+info.Timezone)
		}
		if len(info.Languages) > 0 {
			fields = append(fields, "langs="+strings.Join(info.Languages, ","))
		}
	}
	sort.Strings(fields)
	sum := sha256.Sum256([]byte(strings.Join(fields, "\n")))
	return "drv_" + hex.EncodeToString(sum[:16])
}

// ManualSignature returns the synthetic signature used for teacher-entered
// records. The prefix keeps it out of the namespace any real device can
// occupy, so manual records never trip the device-uniqueness constraint.
func ManualSignature(sessionID, studentID string) string {
	return "manual:" + sessionID + ":" + studentID
}
