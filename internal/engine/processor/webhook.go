package processor

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"fieldservice-engine/internal/common/errors"
)

// ReplayWindow is the maximum age a signed webhook payload may have before
// being rejected even with a valid signature.
const ReplayWindow = 300 * time.Second

// verifySignature checks a hex-encoded, optionally "sha256="-prefixed
// HMAC-SHA256 digest of rawPayload against secret. Fails closed on every
// malformed input; never panics.
func verifySignature(secret []byte, rawPayload []byte, signatureHeader string) bool {
	if len(secret) == 0 {
		return false
	}

	signatureHeader = strings.TrimSpace(signatureHeader)
	signatureHeader = strings.TrimPrefix(signatureHeader, "sha256=")
	if signatureHeader == "" {
		return false
	}

	received, err := hex.DecodeString(signatureHeader)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(rawPayload)
	expected := mac.Sum(nil)

	// hmac.Equal is constant time but only meaningful on equal lengths;
	// reject mismatched lengths outright.
	if len(received) != len(expected) {
		return false
	}
	return hmac.Equal(received, expected)
}

// timestampEnvelope extracts the optional timestamp field from a webhook
// payload.
type timestampEnvelope struct {
	Timestamp string `json:"timestamp"`
}

// CheckReplayWindow rejects payloads whose embedded timestamp is further
// than ReplayWindow from now. A payload without a timestamp passes; the
// signature check is a separate concern.
func CheckReplayWindow(rawPayload []byte, now time.Time) error {
	var env timestampEnvelope
	if err := json.Unmarshal(rawPayload, &env); err != nil {
		// Malformed payloads are rejected later by schema validation.
		return nil
	}
	if env.Timestamp == "" {
		return nil
	}

	ts, err := time.Parse(time.RFC3339, env.Timestamp)
	if err != nil {
		return errors.NewWebhookPayloadInvalidError(fmt.Sprintf("unparseable webhook timestamp %q", env.Timestamp))
	}

	age := now.Sub(ts)
	if age < 0 {
		age = -age
	}
	if age > ReplayWindow {
		return errors.NewWebhookReplayedError(age)
	}
	return nil
}
