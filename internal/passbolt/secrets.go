package passbolt

import (
	"context"
	"fmt"

	"github.com/gofrs/uuid/v5"

	"github.com/mabihan/passbolt-reconcile/internal/model"
)

// ResourceSecret reads the acting identity's encrypted secret for a
// resource. The server only ever serves the caller's own copy.
func (c *Client) ResourceSecret(ctx context.Context, resourceID uuid.UUID) (*model.Secret, error) {
	raw, err := c.t.Get(ctx, fmt.Sprintf("/secrets/resource/%s.json", resourceID), nil)
	if err != nil {
		return nil, err
	}
	var s model.Secret
	if err := decodeBody(raw, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// ResourceTypeByID reads a resource-type definition. The definition decides
// how the secret plaintext is encoded.
func (c *Client) ResourceTypeByID(ctx context.Context, id uuid.UUID) (*model.ResourceType, error) {
	raw, err := c.t.Get(ctx, fmt.Sprintf("/resource-types/%s.json", id), nil)
	if err != nil {
		return nil, err
	}
	var rt model.ResourceType
	if err := decodeBody(raw, &rt); err != nil {
		return nil, err
	}
	return &rt, nil
}
