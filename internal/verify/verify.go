package verify

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// Header names checked for the verification token, in priority order.
// The first one present wins, even if a later one would also match.
var tokenHeaders = []string{"X-Ebay-Signature", "X-Verification-Token", "Authorization"}

var (
	ErrNoSecret     = errors.New("verification token not configured")
	ErrTokenMissing = errors.New("no verification token presented")
	ErrTokenInvalid = errors.New("verification token mismatch")
)

// ExtractToken pulls the presented verification token out of the request
// headers. The getter abstracts the header source so this stays free of
// any HTTP framework type. An Authorization value may carry a Bearer
// prefix, which is stripped before comparison.
func ExtractToken(get func(key string) string) string {
	for _, h := range tokenHeaders {
		v := strings.TrimSpace(get(h))
		if v == "" {
			continue
		}
		if h == "Authorization" {
			return stripBearer(v)
		}
		return v
	}
	return ""
}

func stripBearer(v string) string {
	const prefix = "bearer "
	if len(v) > len(prefix) && strings.EqualFold(v[:len(prefix)], prefix) {
		return strings.TrimSpace(v[len(prefix):])
	}
	return v
}

// Token compares a presented token against the configured secret.
// A missing configured secret is a configuration error, never a pass.
func Token(presented, expected string) error {
	if expected == "" {
		return ErrNoSecret
	}
	if presented == "" {
		return ErrTokenMissing
	}
	if presented != expected {
		return ErrTokenInvalid
	}
	return nil
}

// ChallengeResponse answers the platform's endpoint-ownership handshake:
// lowercase hex SHA-256 over challenge + secret + registered endpoint URL,
// in that order. Echoing the challenge back is not supported; it does not
// prove possession of the secret.
func ChallengeResponse(challenge, secret, endpoint string) string {
	h := sha256.New()
	h.Write([]byte(challenge))
	h.Write([]byte(secret))
	h.Write([]byte(endpoint))
	return hex.EncodeToString(h.Sum(nil))
}
