package payment

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

// ErrBadSignature covers every verification failure. Callers must not
// leak which check failed back to the sender.
var ErrBadSignature = errors.New("webhook signature verification failed")

// signatureTolerance bounds how stale a signed notification may be.
const signatureTolerance = 5 * time.Minute

// Sign produces the signature header for a payload. The processor
// sends this; tests use it to build authentic notifications.
func Sign(payload []byte, secret string, at time.Time) string {
	ts := strconv.FormatInt(at.Unix(), 10)
	return fmt.Sprintf("t=%s,v1=%s", ts, computeHMAC(payload, secret, ts))
}

// VerifySignature authenticates a raw webhook body against its
// signature header. The header carries a unix timestamp and an
// HMAC-SHA256 of "<timestamp>.<body>":
//
//	t=1712345678,v1=5257a869e7...
func VerifySignature(payload []byte, header, secret string) error {
	return verifySignatureAt(payload, header, secret, time.Now())
}

func verifySignatureAt(payload []byte, header, secret string, now time.Time) error {
	var ts, sig string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			return ErrBadSignature
		}
		switch k {
		case "t":
			ts = v
		case "v1":
			sig = v
		}
	}
	if ts == "" || sig == "" {
		return ErrBadSignature
	}

	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return ErrBadSignature
	}
	age := now.Sub(time.Unix(unix, 0))
	if age > signatureTolerance || age < -signatureTolerance {
		return ErrBadSignature
	}

	expected := computeHMAC(payload, secret, ts)
	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return ErrBadSignature
	}
	return nil
}

func computeHMAC(payload []byte, secret, ts string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
