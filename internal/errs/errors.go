package errs

import "fmt"

// NotFoundError reports an entity lookup that matched nothing. Kind names the
// entity ("folder", "user", ...), Scope optionally names a parent container.
type NotFoundError struct {
	Kind  string
	Name  string
	Scope string
}

func (e *NotFoundError) Error() string {
	if e.Scope != "" {
		return fmt.Sprintf("%s %q not found in %s", e.Kind, e.Name, e.Scope)
	}
	return fmt.Sprintf("%s %q not found", e.Kind, e.Name)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// AmbiguityError reports more than one exact-name match within a scope.
type AmbiguityError struct {
	Kind  string
	Name  string
	Scope string
	Count int
}

func (e *AmbiguityError) Error() string {
	if e.Scope != "" {
		return fmt.Sprintf("%d %ss named %q in %s; names must be unique per scope", e.Count, e.Kind, e.Name, e.Scope)
	}
	return fmt.Sprintf("%d %ss named %q at top level; names must be unique per scope", e.Count, e.Kind, e.Name)
}

func (e *AmbiguityError) Unwrap() error { return ErrAmbiguous }

// ValidationError reports a missing or malformed required field in a
// desired-state record, detected before any mutating call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// UnsupportedSchemaError reports a resource-type definition that matches
// neither the plain-password nor the password-with-description shape.
type UnsupportedSchemaError struct {
	Slug string
}

func (e *UnsupportedSchemaError) Error() string {
	return fmt.Sprintf("resource type %q: secret schema is neither a plain password nor password+description", e.Slug)
}

func (e *UnsupportedSchemaError) Unwrap() error { return ErrUnsupportedSchema }

// NotActiveError reports a user who exists on the server but has not
// completed account setup and therefore holds no usable public key.
type NotActiveError struct {
	Username string
}

func (e *NotActiveError) Error() string {
	return fmt.Sprintf("user %s is not active", e.Username)
}

func (e *NotActiveError) Unwrap() error { return ErrNotActive }

// IdentityNotFoundError reports that the acting identity's key fingerprint
// matched none of the users resolved from a permission list.
type IdentityNotFoundError struct {
	Fingerprint string
}

func (e *IdentityNotFoundError) Error() string {
	return fmt.Sprintf("fingerprint %s does not belong to any user with access; cannot exclude own grant", e.Fingerprint)
}

func (e *IdentityNotFoundError) Unwrap() error { return ErrIdentityNotFound }

// TransportError wraps any non-2xx server response, preserving the status
// code and raw body for the caller.
type TransportError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: server returned %d: %s", e.Method, e.Path, e.Status, e.Body)
}
