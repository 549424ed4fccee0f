// Package service holds the gateway's application services: credential
// verification, the membership registry and the audit sink.
package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nivi333/lavoro-ai-ferri-sub002/internal/config"
	"github.com/nivi333/lavoro-ai-ferri-sub002/internal/domain"
	"github.com/nivi333/lavoro-ai-ferri-sub002/internal/domain/identity"
)

// Verifier validates signed access tokens (HS256) issued by the accounts
// service. Verification is pure: no store access, no side effects. Token
// issuance happens elsewhere; this service only holds the shared secret.
type Verifier struct {
	secret   []byte
	issuer   string
	audience string
	now      func() time.Time // for testing
}

// NewVerifier creates a Verifier from the auth configuration.
func NewVerifier(cfg config.Auth) *Verifier {
	return &Verifier{
		secret:   []byte(cfg.JWTSecret),
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		now:      time.Now,
	}
}

// Verify checks the token's signature, expiry, issuer/audience and claim
// shape, and returns the decoded claims. Every failure wraps one of the
// domain authentication sentinels; callers map them all to a generic 401
// so the response never reveals which check failed.
func (v *Verifier) Verify(rawToken string) (*identity.Claims, error) {
	if rawToken == "" {
		return nil, domain.ErrMissingCredential
	}

	parts := strings.SplitN(rawToken, ".", 3)
	if len(parts) != 3 {
		return nil, fmt.Errorf("malformed token: %w", domain.ErrInvalidSignature)
	}

	signingInput := parts[0] + "." + parts[1]
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(signingInput))
	expectedSig := base64URLEncode(mac.Sum(nil))

	if !hmac.Equal([]byte(parts[2]), []byte(expectedSig)) {
		return nil, domain.ErrInvalidSignature
	}

	payload, err := base64URLDecode(parts[1])
	if err != nil {
		return nil, fmt.Errorf("decode payload: %w", domain.ErrInvalidSignature)
	}

	var claims identity.Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("unmarshal claims: %w", domain.ErrInvalidSignature)
	}

	if v.now().Unix() > claims.Expiry {
		return nil, domain.ErrExpired
	}

	if claims.Audience != v.audience {
		return nil, fmt.Errorf("audience mismatch: %w", domain.ErrInvalidSignature)
	}
	if claims.Issuer != v.issuer {
		return nil, fmt.Errorf("issuer mismatch: %w", domain.ErrInvalidSignature)
	}

	if claims.UserID == "" {
		return nil, fmt.Errorf("empty subject: %w", domain.ErrInvalidSignature)
	}

	// Claims with a role outside the closed enum are rejected at the
	// boundary rather than passed through as untyped data.
	if claims.Role != "" {
		if _, err := identity.ParseRole(string(claims.Role)); err != nil {
			return nil, fmt.Errorf("%v: %w", err, domain.ErrInvalidSignature)
		}
	}

	return &claims, nil
}

// --- base64url helpers ---

func base64URLEncode(data []byte) string {
	return strings.TrimRight(base64.URLEncoding.EncodeToString(data), "=")
}

func base64URLDecode(s string) ([]byte, error) {
	// Add padding back
	switch len(s) % 4 {
	case 2:
		s += "=="
	case 3:
		s += "="
	}
	return base64.URLEncoding.DecodeString(s)
}
