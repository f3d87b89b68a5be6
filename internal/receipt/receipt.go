package receipt

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"time"
)

// sigLen is the hex length of an issued receipt.
const sigLen = 32

// Signer produces tamper-evident submission receipts with a service-held key.
// Receipts are evidentiary, not capability tokens: presenting an old receipt
// never grants a second attendance record.
type Signer struct {
	secret []byte
}

// NewSigner creates a signer. The secret must be non-empty.
func NewSigner(secret string) (*Signer, error) {
	if secret == "" {
		return nil, errors.New("receipt secret required")
	}
	return &Signer{secret: []byte(secret)}, nil
}

// Sign derives the receipt for one submission. Deterministic for identical
// inputs; submissions at different millisecond timestamps differ.
func (s *Signer) Sign(sessionID, matricNo string, submittedAt time.Time, nonce string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(sessionID))
	mac.Write([]byte{'|'})
	mac.Write([]byte(matricNo))
	mac.Write([]byte{'|'})
	mac.Write([]byte(strconv.FormatInt(submittedAt.UnixMilli(), 10)))
	mac.Write([]byte{'|'})
	mac.Write([]byte(nonce))
	return hex.EncodeToString(mac.Sum(nil))[:sigLen]
}

// Verify reports whether sig is the receipt for the given inputs.
func (s *Signer) Verify(sessionID, matricNo string, submittedAt time.Time, nonce, sig string) bool {
	expected := s.Sign(sessionID, matricNo, submittedAt, nonce)
	return hmac.Equal([]byte(expected), []byte(sig))
}
