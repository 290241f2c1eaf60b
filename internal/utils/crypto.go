// internal/utils/crypto.go
package utils

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const identityWebhookTolerance = 5 * time.Minute

var (
	ErrWebhookSignatureMissing = errors.New("webhook signature headers missing")
	ErrWebhookSignatureInvalid = errors.New("webhook signature invalid")
	ErrWebhookTimestampStale   = errors.New("webhook timestamp outside tolerance")
)

// identityWebhookKey decodes a "whsec_<base64>" secret. Secrets without the
// prefix are used as raw bytes.
func identityWebhookKey(secret string) []byte {
	if strings.HasPrefix(secret, "whsec_") {
		if key, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(secret, "whsec_")); err == nil {
			return key
		}
	}
	return []byte(secret)
}

// SignIdentityWebhook computes the "v1,<base64>" signature for a message.
func SignIdentityWebhook(secret, msgID string, timestamp int64, body []byte) string {
	mac := hmac.New(sha256.New, identityWebhookKey(secret))
	fmt.Fprintf(mac, "%s.%d.", msgID, timestamp)
	mac.Write(body)
	return "v1," + base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// VerifyIdentityWebhook checks the svix-style signature headers sent by the
// identity provider. signatureHeader may hold several space separated
// signatures; any match is accepted.
func VerifyIdentityWebhook(secret, msgID, timestampHeader, signatureHeader string, body []byte, now time.Time) error {
	if msgID == "" || timestampHeader == "" || signatureHeader == "" {
		return ErrWebhookSignatureMissing
	}

	timestamp, err := strconv.ParseInt(timestampHeader, 10, 64)
	if err != nil {
		return ErrWebhookSignatureInvalid
	}
	sent := time.Unix(timestamp, 0)
	if now.Sub(sent) > identityWebhookTolerance || sent.Sub(now) > identityWebhookTolerance {
		return ErrWebhookTimestampStale
	}

	expected := SignIdentityWebhook(secret, msgID, timestamp, body)
	for _, candidate := range strings.Fields(signatureHeader) {
		if hmac.Equal([]byte(candidate), []byte(expected)) {
			return nil
		}
	}
	return ErrWebhookSignatureInvalid
}
