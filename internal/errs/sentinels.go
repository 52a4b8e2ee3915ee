// Package errs contains the error taxonomy shared across layers for stable
// error classification.
package errs

import "errors"

// Common sentinels matched with errors.Is across layers.
var (
	// ErrNotFound indicates the requested entity does not exist on the
	// server. Create-or-get paths catch it and branch into creation.
	ErrNotFound = errors.New("not found")

	// ErrAmbiguous indicates more than one entity matched an exact-name
	// lookup. Operator intervention is required; never auto-resolved.
	ErrAmbiguous = errors.New("ambiguous match")

	// ErrValidation indicates a desired-state record is missing a
	// required field before any server call was made.
	ErrValidation = errors.New("validation failed")

	// ErrUnsupportedSchema indicates a resource-type definition matched
	// neither known secret shape. Encoding is never guessed.
	ErrUnsupportedSchema = errors.New("unsupported secret schema")

	// ErrIdentityNotFound indicates the acting identity could not be
	// located among resolved recipients, so its permission entry cannot
	// be excluded from a sharing payload.
	ErrIdentityNotFound = errors.New("acting identity not found")

	// ErrNotActive indicates a desired group member has not completed
	// account setup. Membership sync skips and records these, never
	// fails on them.
	ErrNotActive = errors.New("user not active")
)
