package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignatureHeader carries the HMAC of a service-to-service request body.
const SignatureHeader = "X-Signature"

// SignBody returns "sha256=<hex>" of HMAC-SHA256(secret, body).
func SignBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifyBody checks a signature produced by SignBody. The "sha256=" prefix is optional.
func VerifyBody(secret string, body []byte, provided string) bool {
	if secret == "" || provided == "" {
		return false
	}
	provided = strings.TrimPrefix(strings.TrimSpace(provided), "sha256=")
	got, err := hex.DecodeString(provided)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), got)
}
