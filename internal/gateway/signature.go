package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

// SignatureHeader carries "t=<unix>,v1=<hex hmac>".
const SignatureHeader = "X-Signature"

const DefaultTolerance = 5 * time.Minute

var (
	ErrMissingSignature    = errors.New("signature header is missing")
	ErrMalformedSignature  = errors.New("signature header is malformed")
	ErrSignatureMismatch   = errors.New("signature does not match payload")
	ErrTimestampOutOfRange = errors.New("signature timestamp outside tolerance")
)

// Verifier checks webhook signatures against one provider's shared secret.
type Verifier struct {
	secret    []byte
	tolerance time.Duration
	now       func() time.Time
}

// NewVerifier creates a Verifier with DefaultTolerance.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret), tolerance: DefaultTolerance, now: time.Now}
}

// Verify checks the header against HMAC-SHA256(secret, "<t>.<payload>").
func (v *Verifier) Verify(payload []byte, header string) error {
	if strings.TrimSpace(header) == "" {
		return ErrMissingSignature
	}

	var ts int64
	var sigs [][]byte
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return ErrMalformedSignature
		}
		switch key {
		case "t":
			parsed, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return ErrMalformedSignature
			}
			ts = parsed
		case "v1":
			sig, err := hex.DecodeString(value)
			if err != nil {
				return ErrMalformedSignature
			}
			sigs = append(sigs, sig)
		}
	}
	if ts == 0 || len(sigs) == 0 {
		return ErrMalformedSignature
	}

	age := v.now().Sub(time.Unix(ts, 0))
	if age < 0 {
		age = -age
	}
	if age > v.tolerance {
		return ErrTimestampOutOfRange
	}

	expected := computeSignature(v.secret, ts, payload)
	for _, sig := range sigs {
		if hmac.Equal(sig, expected) {
			return nil
		}
	}
	return ErrSignatureMismatch
}

// Sign builds a signature header value for payload at time ts.
func Sign(secret string, ts time.Time, payload []byte) string {
	unix := ts.Unix()
	sig := computeSignature([]byte(secret), unix, payload)
	return "t=" + strconv.FormatInt(unix, 10) + ",v1=" + hex.EncodeToString(sig)
}

func computeSignature(secret []byte, ts int64, payload []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return mac.Sum(nil)
}
