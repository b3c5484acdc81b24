// Package auth issues and checks capability tokens that bind a caller to an identity.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"

	"github.com/SandroAugusto/school-of-solana/internal/domain"
)

// ErrInvalidToken is returned when a capability does not match its identity.
var ErrInvalidToken = errors.New("invalid capability token")

// Signer issues identity capability tokens with a shared secret.
type Signer struct {
	secret []byte
}

// NewSigner creates a new Signer instance
func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// Token returns base64(HMAC-SHA256(secret, base58(id))).
func (s *Signer) Token(id domain.Identity) string {
	return computeHmacSha256(id.String(), s.secret)
}

// Verify parses identity and checks token against it in constant time.
func (s *Signer) Verify(identity, token string) (domain.Identity, error) {
	id, err := domain.ParseIdentity(identity)
	if err != nil {
		return domain.Identity{}, err
	}
	if id.IsZero() {
		return domain.Identity{}, ErrInvalidToken
	}

	expected := s.Token(id)
	if subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
		return domain.Identity{}, ErrInvalidToken
	}
	return id, nil
}

func computeHmacSha256(message string, secret []byte) string {
	h := hmac.New(sha256.New, secret)
	h.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}
