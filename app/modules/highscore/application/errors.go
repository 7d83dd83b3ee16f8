package highscoreservice

import (
	"errors"

	"github.com/Black-And-White-Club/highscore-ledger/internal/identity"
)

// Domain failures. These are returned as-is to callers; anything else is an
// infrastructure error.
var (
	ErrAlreadyExists   = errors.New("record already exists")
	ErrNotFound        = errors.New("record not found")
	ErrUnauthorized    = errors.New("caller is not the record owner")
	ErrInvalidIdentity = identity.ErrInvalidIdentity
)

// IsDomainError reports whether err is one of the ledger's domain failures.
func IsDomainError(err error) bool {
	return errors.Is(err, ErrAlreadyExists) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrInvalidIdentity)
}
