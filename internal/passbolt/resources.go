package passbolt

import (
	"context"
	"fmt"
	"net/url"

	"github.com/gofrs/uuid/v5"

	"github.com/mabihan/passbolt-reconcile/internal/errs"
	"github.com/mabihan/passbolt-reconcile/internal/model"
)

// ResourceByID reads one resource.
func (c *Client) ResourceByID(ctx context.Context, id uuid.UUID) (*model.Resource, error) {
	raw, err := c.t.Get(ctx, fmt.Sprintf("/resources/%s.json", id), nil)
	if err != nil {
		return nil, err
	}
	var r model.Resource
	if err := decodeBody(raw, &r); err != nil {
		return nil, err
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// ResourceByName resolves a resource by exact name, optionally scoped to a
// folder. The API has no resource search endpoint, so the full index is
// fetched and filtered locally. Without a folder scope the name must be
// unique across all folders.
func (c *Client) ResourceByName(ctx context.Context, name string, folderID *uuid.UUID) (*model.Resource, error) {
	raw, err := c.t.Get(ctx, "/resources.json", nil)
	if err != nil {
		return nil, err
	}
	var resources []model.Resource
	if err := decodeBody(raw, &resources); err != nil {
		return nil, err
	}

	var matches []model.Resource
	for _, r := range resources {
		if r.Name != name {
			continue
		}
		if folderID == nil || sameScope(r.FolderParentID, folderID) {
			matches = append(matches, r)
		}
	}

	scope := ""
	if folderID != nil {
		scope = "folder " + folderID.String()
	}
	switch len(matches) {
	case 1:
		return &matches[0], nil
	case 0:
		return nil, &errs.NotFoundError{Kind: "resource", Name: name, Scope: scope}
	default:
		return nil, &errs.AmbiguityError{Kind: "resource", Name: name, Scope: scope, Count: len(matches)}
	}
}

// ResourcesSharedWithGroup lists every resource a group has access to.
func (c *Client) ResourcesSharedWithGroup(ctx context.Context, groupID uuid.UUID) ([]model.Resource, error) {
	q := url.Values{}
	q.Set("filter[is-shared-with-group]", groupID.String())
	raw, err := c.t.Get(ctx, "/resources.json", q)
	if err != nil {
		return nil, err
	}
	var resources []model.Resource
	if err := decodeBody(raw, &resources); err != nil {
		return nil, err
	}
	return resources, nil
}

// CreateResource creates an unshared resource carrying only the creator's
// self-encrypted secret.
func (c *Client) CreateResource(ctx context.Context, req ResourceRequest) (*model.Resource, error) {
	if req.Name == "" {
		return nil, &errs.ValidationError{Field: "resource.name", Reason: "cannot be empty"}
	}
	if len(req.Secrets) == 0 {
		return nil, &errs.ValidationError{Field: "resource.secrets", Reason: "creation requires the creator secret"}
	}
	raw, err := c.t.Post(ctx, "/resources.json", req)
	if err != nil {
		return nil, err
	}
	var r model.Resource
	if err := decodeBody(raw, &r); err != nil {
		return nil, err
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// UpdateResource patches a resource in place.
func (c *Client) UpdateResource(ctx context.Context, id uuid.UUID, upd ResourceUpdate) (*model.Resource, error) {
	raw, err := c.t.Put(ctx, fmt.Sprintf("/resources/%s.json", id), upd)
	if err != nil {
		return nil, err
	}
	var r model.Resource
	if err := decodeBody(raw, &r); err != nil {
		return nil, err
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// DeleteResource removes a resource by id. The server drops all of its
// secrets with it.
func (c *Client) DeleteResource(ctx context.Context, id uuid.UUID) error {
	_, err := c.t.Delete(ctx, fmt.Sprintf("/resources/%s.json", id))
	return err
}

// MoveResource places a resource into a folder.
func (c *Client) MoveResource(ctx context.Context, id, folderID uuid.UUID) error {
	_, err := c.t.Post(ctx, fmt.Sprintf("/move/resource/%s.json", id), map[string]string{
		"folder_parent_id": folderID.String(),
	})
	return err
}

// ResourcePermissions reads the full permission list of a resource,
// including entries inherited through its folder.
func (c *Client) ResourcePermissions(ctx context.Context, id uuid.UUID) ([]model.Permission, error) {
	raw, err := c.t.Get(ctx, fmt.Sprintf("/permissions/resource/%s.json", id), nil)
	if err != nil {
		return nil, err
	}
	var perms []model.Permission
	if err := decodeBody(raw, &perms); err != nil {
		return nil, err
	}
	return perms, nil
}

// SimulateShareResource dry-runs a sharing payload. The server validates
// permissions and secrets without persisting anything.
func (c *Client) SimulateShareResource(ctx context.Context, id uuid.UUID, payload SharePayload) error {
	_, err := c.t.Post(ctx, fmt.Sprintf("/share/simulate/resource/%s.json", id), payload)
	return err
}

// ShareResource commits a sharing payload previously accepted by the
// simulation endpoint. Both calls must carry the identical payload.
func (c *Client) ShareResource(ctx context.Context, id uuid.UUID, payload SharePayload) error {
	_, err := c.t.Put(ctx, fmt.Sprintf("/share/resource/%s.json", id), payload)
	return err
}
