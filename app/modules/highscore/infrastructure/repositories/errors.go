package highscoredb

import "errors"

// Sentinel errors for the repository layer.
// The service layer decides which of these are domain failures.
var (
	// ErrNotFound indicates no record exists at the requested address.
	ErrNotFound = errors.New("score record not found")

	// ErrAlreadyExists indicates an insert hit an existing address.
	ErrAlreadyExists = errors.New("score record already exists")

	// ErrNoRowsAffected indicates an UPDATE matched nothing.
	ErrNoRowsAffected = errors.New("no rows affected")
)
