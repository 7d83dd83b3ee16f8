package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Namespace is the fixed tag mixed into every record address.
const Namespace = "highscore"

// Address locates a score record. It is a pure function of the ledger and
// the owning identity, so no index is needed to find a player's record.
type Address [sha256.Size]byte

// DeriveAddress computes sha256(Namespace || owner || ledgerID).
func DeriveAddress(ledgerID string, owner Identity) Address {
	h := sha256.New()
	h.Write([]byte(Namespace))
	h.Write(owner[:])
	h.Write([]byte(ledgerID))

	var addr Address
	copy(addr[:], h.Sum(nil))
	return addr
}

// ParseAddress decodes a lowercase hex address.
func ParseAddress(s string) (Address, error) {
	var addr Address
	raw, err := hex.DecodeString(s)
	if err != nil {
		return addr, fmt.Errorf("invalid address %q: %w", s, err)
	}
	if len(raw) != len(addr) {
		return addr, fmt.Errorf("invalid address %q: expected %d bytes, got %d", s, len(addr), len(raw))
	}
	copy(addr[:], raw)
	return addr, nil
}

func (a Address) String() string {
	return hex.EncodeToString(a[:])
}

func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
