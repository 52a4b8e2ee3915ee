package passbolt

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/mabihan/passbolt-reconcile/internal/model"
)

// API is the server surface the reconciliation engine depends on. Client is
// the HTTP-backed implementation; tests substitute fakes.
type API interface {
	// Folders
	FolderByID(ctx context.Context, id uuid.UUID) (*model.Folder, error)
	FolderByName(ctx context.Context, name string, parentID *uuid.UUID) (*model.Folder, error)
	CreateFolder(ctx context.Context, name string, parentID *uuid.UUID) (*model.Folder, error)
	ShareFolder(ctx context.Context, folderID uuid.UUID, perms []SharePermission) error

	// Groups
	Groups(ctx context.Context) ([]model.Group, error)
	GroupByID(ctx context.Context, id uuid.UUID) (*model.Group, error)
	GroupByName(ctx context.Context, name string) (*model.Group, error)
	CreateGroup(ctx context.Context, name string, managerID uuid.UUID) (*model.Group, error)
	AddGroupMember(ctx context.Context, groupID, userID uuid.UUID) error
	RemoveGroupMember(ctx context.Context, groupID, membershipID uuid.UUID) error

	// Users
	Me(ctx context.Context) (*model.User, error)
	UserByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	UserByUsername(ctx context.Context, username string) (*model.User, error)
	Users(ctx context.Context, hasAccess *uuid.UUID) ([]model.User, error)
	UserGroups(ctx context.Context, userID uuid.UUID) ([]model.Group, error)
	CreateUser(ctx context.Context, username, firstName, lastName string) (*model.User, error)
	UpdateUser(ctx context.Context, id uuid.UUID, username, firstName, lastName string) (*model.User, error)
	DeleteUser(ctx context.Context, id uuid.UUID) error

	// Resources
	ResourceByID(ctx context.Context, id uuid.UUID) (*model.Resource, error)
	ResourceByName(ctx context.Context, name string, folderID *uuid.UUID) (*model.Resource, error)
	ResourcesSharedWithGroup(ctx context.Context, groupID uuid.UUID) ([]model.Resource, error)
	CreateResource(ctx context.Context, req ResourceRequest) (*model.Resource, error)
	UpdateResource(ctx context.Context, id uuid.UUID, upd ResourceUpdate) (*model.Resource, error)
	DeleteResource(ctx context.Context, id uuid.UUID) error
	MoveResource(ctx context.Context, id, folderID uuid.UUID) error
	ResourcePermissions(ctx context.Context, id uuid.UUID) ([]model.Permission, error)
	SimulateShareResource(ctx context.Context, id uuid.UUID, payload SharePayload) error
	ShareResource(ctx context.Context, id uuid.UUID, payload SharePayload) error

	// Secrets and schemas
	ResourceSecret(ctx context.Context, resourceID uuid.UUID) (*model.Secret, error)
	ResourceTypeByID(ctx context.Context, id uuid.UUID) (*model.ResourceType, error)
}

// SharePermission is one permission entry of a sharing payload. IsNew marks
// entries that do not exist on the target ACO yet.
type SharePermission struct {
	IsNew         bool      `json:"is_new,omitempty"`
	ARO           string    `json:"aro"`
	AROForeignKey uuid.UUID `json:"aro_foreign_key"`
	ACO           string    `json:"aco"`
	ACOForeignKey uuid.UUID `json:"aco_foreign_key"`
	Type          int       `json:"type"`
}

// SecretData is one encrypted secret addressed to one user. UserID is nil
// for the creator's own secret on resource creation; the server infers the
// owner there and rejects a zero id.
type SecretData struct {
	UserID *uuid.UUID `json:"user_id,omitempty"`
	Data   string     `json:"data"`
}

// SharePayload is the body of both the share-simulation POST and the real
// share PUT. The two calls must carry an identical payload.
type SharePayload struct {
	Permissions []SharePermission `json:"permissions"`
	Secrets     []SecretData      `json:"secrets,omitempty"`
}

// ResourceRequest is the creation payload of a resource. Secrets holds the
// creator's self-encrypted secret only; sharing distributes the rest.
type ResourceRequest struct {
	Name           string       `json:"name"`
	Username       string       `json:"username"`
	Description    string       `json:"description"`
	URI            string       `json:"uri"`
	ResourceTypeID *uuid.UUID   `json:"resource_type_id,omitempty"`
	Secrets        []SecretData `json:"secrets"`
}

// ResourceUpdate is the patch payload of a resource. Nil fields are left
// untouched; Secrets, when set, must cover the full current recipient set.
type ResourceUpdate struct {
	Name           *string      `json:"name,omitempty"`
	Username       *string      `json:"username,omitempty"`
	Description    *string      `json:"description,omitempty"`
	URI            *string      `json:"uri,omitempty"`
	ResourceTypeID uuid.UUID    `json:"resource_type_id"`
	Secrets        []SecretData `json:"secrets,omitempty"`
}
