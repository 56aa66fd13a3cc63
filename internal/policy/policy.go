// Package policy implements short-lived, HMAC-signed opt-out tokens
// used to exempt a caller's text from watermarking.
package policy

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DevOptOutSecret is the deterministic fallback used only when no real
// opt-out secret has been configured. Never use it in production.
const DevOptOutSecret = "dev-only-optout-secret-change-me"

// DefaultTTL is the opt-out token lifetime used when the caller does
// not specify one.
const DefaultTTL = time.Hour

func b64URLEncode(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}

func b64URLDecode(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(s)
}

// MakeOptOutToken signs payload (augmented with iat/exp if absent)
// with secret, returning "<b64url-payload>.<b64url-sig>". payload keys
// are serialized in sorted order for a canonical signing input.
func MakeOptOutToken(payload map[string]interface{}, secret []byte, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	body := make(map[string]interface{}, len(payload)+2)
	for k, v := range payload {
		body[k] = v
	}
	now := time.Now().Unix()
	if _, ok := body["iat"]; !ok {
		body["iat"] = now
	}
	if _, ok := body["exp"]; !ok {
		body["exp"] = now + int64(ttl/time.Second)
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("policy: marshal payload: %w", err)
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(raw)
	sig := mac.Sum(nil)

	return b64URLEncode(raw) + "." + b64URLEncode(sig), nil
}

// VerifyOptOutToken validates a token's signature and expiry, returning
// a human-readable reason on failure.
func VerifyOptOutToken(token string, secret []byte) (ok bool, reason string) {
	if token == "" {
		return false, "missing opt_out_token"
	}

	encPayload, encSig, found := strings.Cut(token, ".")
	if !found {
		return false, "malformed token"
	}
	rawPayload, err := b64URLDecode(encPayload)
	if err != nil {
		return false, "malformed token"
	}
	sig, err := b64URLDecode(encSig)
	if err != nil {
		return false, "malformed token"
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(rawPayload)
	expected := mac.Sum(nil)
	if !hmac.Equal(sig, expected) {
		return false, "invalid signature"
	}

	var parsed struct {
		Exp int64 `json:"exp"`
	}
	if err := json.Unmarshal(rawPayload, &parsed); err != nil {
		return false, "invalid JSON payload"
	}

	if parsed.Exp < time.Now().Unix() {
		return false, "expired token"
	}

	return true, "ok"
}
