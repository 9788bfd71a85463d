package line

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"strings"
)

// SignatureHeader carries the body signature on every webhook request.
const SignatureHeader = "X-Line-Signature"

var errVerification = errors.New("webhook verification failed")

// VerifySignature checks a LINE webhook signature: the base64 encoded
// HMAC-SHA256 of the raw body keyed by the channel secret.
//
// The comparison is constant-time. Every failure returns the same generic
// error so callers cannot learn why a signature was rejected.
func VerifySignature(body []byte, signature, channelSecret string) error {
	if channelSecret == "" || signature == "" {
		return errVerification
	}

	actual, err := base64.StdEncoding.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return errVerification
	}

	if subtle.ConstantTimeCompare(computeMAC(body, channelSecret), actual) != 1 {
		return errVerification
	}
	return nil
}

// Sign returns the signature LINE would send for body.
func Sign(body []byte, channelSecret string) string {
	return base64.StdEncoding.EncodeToString(computeMAC(body, channelSecret))
}

func computeMAC(body []byte, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return mac.Sum(nil)
}
