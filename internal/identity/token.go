package identity

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/nats-io/nkeys"
)

var (
	// ErrUnauthenticated is returned when a caller token cannot be trusted.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrNotUserKey is returned when a seed does not belong to a user key pair.
	ErrNotUserKey = errors.New("seed is not a user key")
)

// DefaultTokenTTL is the lifetime of tokens issued without an explicit TTL.
const DefaultTokenTTL = 5 * time.Minute

// IssueToken signs a caller token for ledgerID with the user key pair kp.
// The subject is the key's own public key, so the token is self-certifying.
func IssueToken(kp nkeys.KeyPair, ledgerID string, ttl time.Duration) (string, error) {
	return issueTokenAt(kp, ledgerID, ttl, time.Now())
}

func issueTokenAt(kp nkeys.KeyPair, ledgerID string, ttl time.Duration, now time.Time) (string, error) {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}

	priv, err := signingKey(kp)
	if err != nil {
		return "", err
	}
	sub, err := kp.PublicKey()
	if err != nil {
		return "", fmt.Errorf("failed to read public key: %w", err)
	}

	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		Subject:   sub,
		Audience:  jwt.ClaimStrings{ledgerID},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(priv)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func signingKey(kp nkeys.KeyPair) (ed25519.PrivateKey, error) {
	seed, err := kp.Seed()
	if err != nil {
		return nil, fmt.Errorf("failed to read seed: %w", err)
	}
	prefix, raw, err := nkeys.DecodeSeed(seed)
	if err != nil {
		return nil, fmt.Errorf("failed to decode seed: %w", err)
	}
	if prefix != nkeys.PrefixByteUser {
		return nil, ErrNotUserKey
	}
	return ed25519.NewKeyFromSeed(raw), nil
}

// Verifier checks caller tokens for a single ledger.
type Verifier struct {
	ledgerID string
	maxTTL   time.Duration
	leeway   time.Duration
	now      func() time.Time
}

// NewVerifier creates a Verifier that accepts tokens for ledgerID whose
// lifetime does not exceed maxTTL.
func NewVerifier(ledgerID string, maxTTL time.Duration) *Verifier {
	if maxTTL <= 0 {
		maxTTL = DefaultTokenTTL
	}
	return &Verifier{
		ledgerID: ledgerID,
		maxTTL:   maxTTL,
		leeway:   5 * time.Second,
		now:      time.Now,
	}
}

// Verify returns the identity that signed token.
func (v *Verifier) Verify(token string) (Identity, error) {
	var signer Identity

	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		c, ok := t.Claims.(*jwt.RegisteredClaims)
		if !ok {
			return nil, ErrUnauthenticated
		}
		id, err := ParseIdentity(c.Subject)
		if err != nil {
			return nil, err
		}
		signer = id
		return id.PublicKey(), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
		jwt.WithAudience(v.ledgerID),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if !parsed.Valid {
		return Identity{}, ErrUnauthenticated
	}

	if claims.IssuedAt == nil {
		return Identity{}, fmt.Errorf("%w: missing iat", ErrUnauthenticated)
	}
	if claims.ExpiresAt.Sub(claims.IssuedAt.Time) > v.maxTTL {
		return Identity{}, fmt.Errorf("%w: token lifetime exceeds %s", ErrUnauthenticated, v.maxTTL)
	}

	return signer, nil
}
