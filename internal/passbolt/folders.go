package passbolt

import (
	"context"
	"fmt"
	"net/url"

	"github.com/gofrs/uuid/v5"

	"github.com/mabihan/passbolt-reconcile/internal/errs"
	"github.com/mabihan/passbolt-reconcile/internal/model"
)

// FolderByID reads one folder with its permission list.
func (c *Client) FolderByID(ctx context.Context, id uuid.UUID) (*model.Folder, error) {
	q := url.Values{}
	q.Set("contain[permissions]", "1")
	raw, err := c.t.Get(ctx, fmt.Sprintf("/folders/%s.json", id), q)
	if err != nil {
		return nil, err
	}
	var f model.Folder
	if err := decodeBody(raw, &f); err != nil {
		return nil, err
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// FolderByName resolves a folder by exact name within the given parent (or
// among parent-less folders when parentID is nil). The server only offers a
// substring search, so results are filtered locally; zero matches yield
// NotFound and multiple matches yield an AmbiguityError naming the scope.
func (c *Client) FolderByName(ctx context.Context, name string, parentID *uuid.UUID) (*model.Folder, error) {
	q := url.Values{}
	q.Set("filter[search]", name)
	raw, err := c.t.Get(ctx, "/folders.json", q)
	if err != nil {
		return nil, err
	}
	var folders []model.Folder
	if err := decodeBody(raw, &folders); err != nil {
		return nil, err
	}

	var matches []model.Folder
	for _, f := range folders {
		if f.Name != name {
			continue
		}
		if sameScope(f.FolderParentID, parentID) {
			matches = append(matches, f)
		}
	}

	scope := ""
	if parentID != nil {
		scope = "folder " + parentID.String()
	}
	switch len(matches) {
	case 1:
		return &matches[0], nil
	case 0:
		return nil, &errs.NotFoundError{Kind: "folder", Name: name, Scope: scope}
	default:
		return nil, &errs.AmbiguityError{Kind: "folder", Name: name, Scope: scope, Count: len(matches)}
	}
}

// CreateFolder creates a folder, optionally under a parent. Permission
// inheritance is the caller's concern; the new folder starts with the
// creator's implicit owner grant only.
func (c *Client) CreateFolder(ctx context.Context, name string, parentID *uuid.UUID) (*model.Folder, error) {
	if name == "" {
		return nil, &errs.ValidationError{Field: "folder.name", Reason: "cannot be empty"}
	}
	payload := map[string]any{"name": name}
	if parentID != nil {
		payload["folder_parent_id"] = parentID.String()
	}
	raw, err := c.t.Post(ctx, "/folders.json", payload)
	if err != nil {
		return nil, err
	}
	var f model.Folder
	if err := decodeBody(raw, &f); err != nil {
		return nil, err
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// ShareFolder applies a permission payload to a folder.
func (c *Client) ShareFolder(ctx context.Context, folderID uuid.UUID, perms []SharePermission) error {
	_, err := c.t.Put(ctx, fmt.Sprintf("/share/folder/%s.json", folderID), SharePayload{Permissions: perms})
	return err
}

// sameScope compares two optional parent references.
func sameScope(got, want *uuid.UUID) bool {
	if want == nil {
		return got == nil
	}
	return got != nil && *got == *want
}
