package domain

import (
	"fmt"

	"github.com/mr-tron/base58"
)

// IdentityLen is the byte length of an account identity (an ed25519 public key).
const IdentityLen = 32

// Identity is an authenticated account identity.
// Its text form is base58, the address format of the originating chain.
type Identity [IdentityLen]byte

// ParseIdentity decodes a base58 identity string.
func ParseIdentity(s string) (Identity, error) {
	var id Identity
	raw, err := base58.Decode(s)
	if err != nil {
		return id, fmt.Errorf("parse identity %q: %w", s, err)
	}
	if len(raw) != IdentityLen {
		return id, fmt.Errorf("parse identity %q: want %d bytes, got %d", s, IdentityLen, len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

// MustParseIdentity is ParseIdentity for constants and tests. Panics on bad input.
func MustParseIdentity(s string) Identity {
	id, err := ParseIdentity(s)
	if err != nil {
		panic(err)
	}
	return id
}

// String returns the base58 form.
func (id Identity) String() string {
	return base58.Encode(id[:])
}

// IsZero reports whether the identity is unset.
func (id Identity) IsZero() bool {
	return id == Identity{}
}

// MarshalText implements encoding.TextMarshaler (used by JSON).
func (id Identity) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *Identity) UnmarshalText(text []byte) error {
	parsed, err := ParseIdentity(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
