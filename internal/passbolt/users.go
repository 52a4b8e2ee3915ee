package passbolt

import (
	"context"
	"fmt"
	"net/url"

	"github.com/gofrs/uuid/v5"

	"github.com/mabihan/passbolt-reconcile/internal/errs"
	"github.com/mabihan/passbolt-reconcile/internal/model"
)

// Me reads the acting identity's own user record.
func (c *Client) Me(ctx context.Context) (*model.User, error) {
	raw, err := c.t.Get(ctx, "/users/me.json", nil)
	if err != nil {
		return nil, err
	}
	var u model.User
	if err := decodeBody(raw, &u); err != nil {
		return nil, err
	}
	if err := u.Validate(); err != nil {
		return nil, err
	}
	return &u, nil
}

// UserByID reads one user.
func (c *Client) UserByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	raw, err := c.t.Get(ctx, fmt.Sprintf("/users/%s.json", id), nil)
	if err != nil {
		return nil, err
	}
	var u model.User
	if err := decodeBody(raw, &u); err != nil {
		return nil, err
	}
	if err := u.Validate(); err != nil {
		return nil, err
	}
	return &u, nil
}

// UserByUsername resolves a user by exact username. The search endpoint
// matches substrings, so results are narrowed locally; the username is the
// natural key and two exact matches is a data-integrity condition.
func (c *Client) UserByUsername(ctx context.Context, username string) (*model.User, error) {
	q := url.Values{}
	q.Set("filter[search]", username)
	raw, err := c.t.Get(ctx, "/users.json", q)
	if err != nil {
		return nil, err
	}
	var users []model.User
	if err := decodeBody(raw, &users); err != nil {
		return nil, err
	}
	var matches []model.User
	for _, u := range users {
		if u.Username == username {
			matches = append(matches, u)
		}
	}
	switch len(matches) {
	case 1:
		return &matches[0], nil
	case 0:
		return nil, &errs.NotFoundError{Kind: "user", Name: username}
	default:
		return nil, &errs.AmbiguityError{Kind: "user", Name: username, Count: len(matches)}
	}
}

// Users lists users, optionally narrowed to those with access to the given
// folder or resource. Public keys are included for the encryption fan-out.
func (c *Client) Users(ctx context.Context, hasAccess *uuid.UUID) ([]model.User, error) {
	q := url.Values{}
	q.Set("contain[permission]", "1")
	if hasAccess != nil {
		q.Set("filter[has-access]", hasAccess.String())
		q.Set("contain[user]", "1")
	}
	raw, err := c.t.Get(ctx, "/users.json", q)
	if err != nil {
		return nil, err
	}
	var users []model.User
	if err := decodeBody(raw, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// UserGroups lists the groups the given user currently belongs to.
func (c *Client) UserGroups(ctx context.Context, userID uuid.UUID) ([]model.Group, error) {
	groups, err := c.Groups(ctx)
	if err != nil {
		return nil, err
	}
	var member []model.Group
	for _, g := range groups {
		for _, m := range g.Members {
			if m.UserID == userID {
				member = append(member, g)
				break
			}
		}
	}
	return member, nil
}

// CreateUser registers a new user with the given profile. The server sends
// the enrollment mail; the account stays inactive until the user completes
// key setup.
func (c *Client) CreateUser(ctx context.Context, username, firstName, lastName string) (*model.User, error) {
	if username == "" {
		return nil, &errs.ValidationError{Field: "user.username", Reason: "cannot be empty"}
	}
	raw, err := c.t.Post(ctx, "/users.json", map[string]any{
		"username": username,
		"profile": map[string]string{
			"first_name": firstName,
			"last_name":  lastName,
		},
	})
	if err != nil {
		return nil, err
	}
	var u model.User
	if err := decodeBody(raw, &u); err != nil {
		return nil, err
	}
	if err := u.Validate(); err != nil {
		return nil, err
	}
	return &u, nil
}

// UpdateUser replaces a user's username and profile fields.
func (c *Client) UpdateUser(ctx context.Context, id uuid.UUID, username, firstName, lastName string) (*model.User, error) {
	raw, err := c.t.Put(ctx, fmt.Sprintf("/users/%s.json", id), map[string]any{
		"username": username,
		"profile": map[string]string{
			"first_name": firstName,
			"last_name":  lastName,
		},
	})
	if err != nil {
		return nil, err
	}
	var u model.User
	if err := decodeBody(raw, &u); err != nil {
		return nil, err
	}
	if err := u.Validate(); err != nil {
		return nil, err
	}
	return &u, nil
}

// DeleteUser removes a user by id.
func (c *Client) DeleteUser(ctx context.Context, id uuid.UUID) error {
	_, err := c.t.Delete(ctx, fmt.Sprintf("/users/%s.json", id))
	return err
}
