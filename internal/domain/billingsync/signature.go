package billingsync

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignatureHeader carries the webhook signature.
const SignatureHeader = "stripe-signature"

// DefaultTolerance bounds the age of a signed timestamp.
const DefaultTolerance = 5 * time.Minute

var (
	ErrSignatureMissing   = errors.New("webhook signature missing")
	ErrSignatureInvalid   = errors.New("webhook signature mismatch")
	ErrTimestampExpired   = errors.New("webhook timestamp outside tolerance")
	errSignatureMalformed = errors.New("webhook signature header malformed")
)

// VerifySignature checks a header of the form "t=<unix>,v1=<hex>" where the
// hex value is the HMAC-SHA256 of "<unix>.<payload>" under the shared
// secret. Multiple v1 entries may appear; any valid one passes. now is
// injectable so tests can pin the clock.
func VerifySignature(payload []byte, header, secret string, tolerance time.Duration, now time.Time) error {
	if header == "" {
		return ErrSignatureMissing
	}
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}

	var ts int64
	var sigs []string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return errSignatureMalformed
		}
		switch k {
		case "t":
			parsed, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return errSignatureMalformed
			}
			ts = parsed
		case "v1":
			sigs = append(sigs, v)
		}
	}
	if ts == 0 || len(sigs) == 0 {
		return errSignatureMalformed
	}

	age := now.Sub(time.Unix(ts, 0))
	if age > tolerance || age < -tolerance {
		return ErrTimestampExpired
	}

	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, sig := range sigs {
		if hmac.Equal([]byte(expected), []byte(sig)) {
			return nil
		}
	}
	return ErrSignatureInvalid
}

// SignPayload produces a header VerifySignature accepts. Used by tests and
// by the local delivery simulator.
func SignPayload(payload []byte, secret string, at time.Time) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", at.Unix())
	mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", at.Unix(), hex.EncodeToString(mac.Sum(nil)))
}
