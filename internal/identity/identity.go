// Package identity models player identities and the ledger addresses derived
// from them. A player is an Ed25519 public key, rendered as an nkey user
// public key ("U...").
package identity

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"

	"github.com/nats-io/nkeys"
)

// ErrInvalidIdentity is returned when a string is not a valid user public key.
var ErrInvalidIdentity = errors.New("invalid player identity")

// Identity is the raw 32-byte Ed25519 public key of a player.
type Identity [ed25519.PublicKeySize]byte

// ParseIdentity decodes an nkey user public key.
func ParseIdentity(s string) (Identity, error) {
	var id Identity
	s = strings.TrimSpace(s)
	if s == "" {
		return id, ErrInvalidIdentity
	}

	raw, err := nkeys.Decode(nkeys.PrefixByteUser, []byte(s))
	if err != nil {
		return id, fmt.Errorf("%w: %v", ErrInvalidIdentity, err)
	}
	if len(raw) != len(id) {
		return id, fmt.Errorf("%w: unexpected key length %d", ErrInvalidIdentity, len(raw))
	}

	copy(id[:], raw)
	return id, nil
}

// FromKeyPair returns the identity of a user key pair.
func FromKeyPair(kp nkeys.KeyPair) (Identity, error) {
	pub, err := kp.PublicKey()
	if err != nil {
		return Identity{}, fmt.Errorf("failed to read public key: %w", err)
	}
	return ParseIdentity(pub)
}

// String renders the identity as an nkey user public key.
func (id Identity) String() string {
	encoded, err := nkeys.Encode(nkeys.PrefixByteUser, id[:])
	if err != nil {
		return ""
	}
	return string(encoded)
}

// IsZero reports whether id is the zero key.
func (id Identity) IsZero() bool {
	return id == Identity{}
}

// PublicKey returns id as an ed25519 verification key.
func (id Identity) PublicKey() ed25519.PublicKey {
	key := make(ed25519.PublicKey, ed25519.PublicKeySize)
	copy(key, id[:])
	return key
}

func (id Identity) MarshalText() ([]byte, error) {
	if id.IsZero() {
		return []byte{}, nil
	}
	return nkeys.Encode(nkeys.PrefixByteUser, id[:])
}

func (id *Identity) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*id = Identity{}
		return nil
	}
	parsed, err := ParseIdentity(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
