// Package model defines typed Passbolt entities decoded at the JSON boundary.
package model

import (
	"encoding/json"

	"github.com/gofrs/uuid/v5"

	"github.com/mabihan/passbolt-reconcile/internal/errs"
)

// Access levels carried by Permission.Type.
const (
	PermissionRead   = 1
	PermissionUpdate = 7
	PermissionOwner  = 15
)

// ARO/ACO discriminators used in permission records.
const (
	AROUser     = "User"
	AROGroup    = "Group"
	ACOFolder   = "Folder"
	ACOResource = "Resource"
)

// Profile holds the mutable name fields of a user.
type Profile struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// PublicKey is a user's trusted public key as served by the server.
type PublicKey struct {
	Fingerprint string `json:"fingerprint"`
	ArmoredKey  string `json:"armored_key"`
}

// User is a server-side account. Username is the natural key.
type User struct {
	ID       uuid.UUID  `json:"id"`
	Username string     `json:"username"`
	Active   bool       `json:"active"`
	Profile  Profile    `json:"profile"`
	GPGKey   *PublicKey `json:"gpgkey,omitempty"`
}

// Validate rejects users the server should never have produced.
func (u *User) Validate() error {
	if u.ID == uuid.Nil {
		return &errs.ValidationError{Field: "user.id", Reason: "empty identifier"}
	}
	if u.Username == "" {
		return &errs.ValidationError{Field: "user.username", Reason: "empty username"}
	}
	return nil
}

// GroupMembership is one (user, isAdmin) record inside a group. Its own ID
// identifies the membership when removing a member.
type GroupMembership struct {
	ID      uuid.UUID `json:"id"`
	UserID  uuid.UUID `json:"user_id"`
	IsAdmin bool      `json:"is_admin"`
}

// Group is a named collection of users. Names are unique among groups.
type Group struct {
	ID      uuid.UUID         `json:"id"`
	Name    string            `json:"name"`
	Members []GroupMembership `json:"groups_users"`
}

// Validate rejects groups with no identity.
func (g *Group) Validate() error {
	if g.ID == uuid.Nil {
		return &errs.ValidationError{Field: "group.id", Reason: "empty identifier"}
	}
	if g.Name == "" {
		return &errs.ValidationError{Field: "group.name", Reason: "empty name"}
	}
	return nil
}

// MemberIDs returns the user ids of all membership records.
func (g *Group) MemberIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(g.Members))
	for _, m := range g.Members {
		ids = append(ids, m.UserID)
	}
	return ids
}

// Permission grants an ARO (user or group) an access level on an ACO
// (folder or resource).
type Permission struct {
	ID            uuid.UUID `json:"id"`
	ARO           string    `json:"aro"`
	AROForeignKey uuid.UUID `json:"aro_foreign_key"`
	ACO           string    `json:"aco"`
	ACOForeignKey uuid.UUID `json:"aco_foreign_key"`
	Type          int       `json:"type"`
}

// Folder is a named container. FolderParentID is nil for top-level folders;
// the same name may recur under different parents.
type Folder struct {
	ID             uuid.UUID    `json:"id"`
	Name           string       `json:"name"`
	FolderParentID *uuid.UUID   `json:"folder_parent_id"`
	Permissions    []Permission `json:"permissions,omitempty"`
}

// Validate rejects folders with no identity.
func (f *Folder) Validate() error {
	if f.ID == uuid.Nil {
		return &errs.ValidationError{Field: "folder.id", Reason: "empty identifier"}
	}
	if f.Name == "" {
		return &errs.ValidationError{Field: "folder.name", Reason: "empty name"}
	}
	return nil
}

// Resource is a credential entry. The resource type determines the secret
// schema; the secret itself travels separately, one ciphertext per recipient.
type Resource struct {
	ID             uuid.UUID  `json:"id"`
	Name           string     `json:"name"`
	Username       string     `json:"username"`
	URI            string     `json:"uri"`
	Description    string     `json:"description"`
	ResourceTypeID uuid.UUID  `json:"resource_type_id"`
	FolderParentID *uuid.UUID `json:"folder_parent_id"`
}

// Validate rejects resources with no identity.
func (r *Resource) Validate() error {
	if r.ID == uuid.Nil {
		return &errs.ValidationError{Field: "resource.id", Reason: "empty identifier"}
	}
	if r.Name == "" {
		return &errs.ValidationError{Field: "resource.name", Reason: "empty name"}
	}
	return nil
}

// Secret is one encrypted payload addressed to exactly one user.
type Secret struct {
	ID         uuid.UUID `json:"id"`
	UserID     uuid.UUID `json:"user_id"`
	ResourceID uuid.UUID `json:"resource_id"`
	Data       string    `json:"data"`
}

// ResourceType carries the JSON schema describing how a resource's secret is
// structured. Definition is kept raw; classification happens in the engine.
type ResourceType struct {
	ID         uuid.UUID       `json:"id"`
	Slug       string          `json:"slug"`
	Definition json.RawMessage `json:"definition"`
}

// SecretSchema classifies a resource-type definition.
type SecretSchema int

const (
	// SchemaUnknown means the definition matched no supported shape.
	SchemaUnknown SecretSchema = iota
	// SchemaPassword means the secret is a bare password string.
	SchemaPassword
	// SchemaPasswordAndDescription means the secret is a JSON object with
	// exactly the keys password and description.
	SchemaPasswordAndDescription
)
