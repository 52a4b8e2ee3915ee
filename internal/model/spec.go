package model

import "github.com/mabihan/passbolt-reconcile/internal/errs"

// State of a desired entity.
type State string

const (
	StatePresent State = "present"
	StateAbsent  State = "absent"
)

// Valid reports whether s is a known state.
func (s State) Valid() bool { return s == StatePresent || s == StateAbsent }

// UserSpec is the desired shape of a user, including full group membership
// intent. Groups lists the names of every group the user should belong to;
// membership in any other group is removed.
type UserSpec struct {
	Username  string
	FirstName string
	LastName  string
	Groups    []string
}

// Validate rejects specs that cannot be reconciled.
func (s *UserSpec) Validate() error {
	if s.Username == "" {
		return &errs.ValidationError{Field: "user.username", Reason: "cannot be empty"}
	}
	return nil
}

// ResourceSpec is the desired shape of a credential. FolderPath is a
// /-separated chain of folder names resolved (and created) left to right.
// Groups lists the names of every group the resource is shared with.
type ResourceSpec struct {
	Name        string
	Username    string
	Password    string
	Description string
	URI         string
	FolderPath  string
	Groups      []string
}

// Validate rejects specs that cannot be created. Password is only required
// for present-state reconciliation; absent-state deletion validates name only.
func (s *ResourceSpec) Validate(state State) error {
	if s.Name == "" {
		return &errs.ValidationError{Field: "resource.name", Reason: "cannot be empty"}
	}
	if state == StatePresent && s.Password == "" {
		return &errs.ValidationError{Field: "resource.password", Reason: "cannot be empty"}
	}
	return nil
}
