package slack

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"time"
)

// MaxRequestAge bounds how old a signed request timestamp may be.
const MaxRequestAge = 5 * time.Minute

var (
	ErrInvalidSignature = errors.New("slack: invalid signature")
	ErrStaleRequest     = errors.New("slack: stale request")
)

// Sign computes the v0 request signature for a body sent at ts.
func Sign(secret, ts string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte("v0:" + ts + ":"))
	mac.Write(body)
	return "v0=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks the X-Slack-Signature header against the raw body.
func VerifySignature(secret, ts string, body []byte, signature string, now time.Time) error {
	if secret == "" {
		return ErrInvalidSignature
	}
	sec, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return ErrInvalidSignature
	}
	age := now.Sub(time.Unix(sec, 0))
	if age > MaxRequestAge || age < -MaxRequestAge {
		return ErrStaleRequest
	}
	if !hmac.Equal([]byte(Sign(secret, ts, body)), []byte(signature)) {
		return ErrInvalidSignature
	}
	return nil
}
