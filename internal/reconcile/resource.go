package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/mabihan/passbolt-reconcile/internal/errs"
	"github.com/mabihan/passbolt-reconcile/internal/model"
	"github.com/mabihan/passbolt-reconcile/internal/passbolt"
)

// ReconcileResource converges one resource toward its desired state.
//
// For state present the resource is created in (or located within) the
// folder named by the spec's path, its fields and secret are brought up to
// date, and the desired groups are granted access. A change in the sharing
// topology, meaning the set of groups the resource is shared with, cannot
// be patched in place: the resource is deleted and recreated, and the
// returned resource carries a new ID.
//
// For state absent the resource is deleted if it exists; a missing folder
// or resource is a no-op, never an error.
func (r *Reconciler) ReconcileResource(ctx context.Context, spec model.ResourceSpec, state model.State) (Result[model.Resource], error) {
	var zero Result[model.Resource]
	if !state.Valid() {
		return zero, &errs.ValidationError{Field: "state", Reason: "must be present or absent"}
	}
	if err := spec.Validate(state); err != nil {
		return zero, err
	}

	if state == model.StateAbsent {
		return r.deleteResource(ctx, spec)
	}
	return r.applyResource(ctx, spec)
}

func (r *Reconciler) deleteResource(ctx context.Context, spec model.ResourceSpec) (Result[model.Resource], error) {
	var zero Result[model.Resource]

	var folderID *uuid.UUID
	if spec.FolderPath != "" {
		folder, err := r.LookupFolderPath(ctx, spec.FolderPath)
		if errors.Is(err, errs.ErrNotFound) {
			return zero, nil
		}
		if err != nil {
			return zero, err
		}
		folderID = &folder.ID
	}

	resource, err := r.api.ResourceByName(ctx, spec.Name, folderID)
	if errors.Is(err, errs.ErrNotFound) {
		return zero, nil
	}
	if err != nil {
		return zero, err
	}

	if err := r.api.DeleteResource(ctx, resource.ID); err != nil {
		return zero, err
	}
	r.log.Info("deleted resource", zap.String("name", spec.Name))
	return Result[model.Resource]{Changed: true}, nil
}

func (r *Reconciler) applyResource(ctx context.Context, spec model.ResourceSpec) (Result[model.Resource], error) {
	var zero Result[model.Resource]

	var folderID *uuid.UUID
	if spec.FolderPath != "" {
		folder, _, err := r.EnsureFolderPath(ctx, spec.FolderPath)
		if err != nil {
			return zero, err
		}
		folderID = &folder.ID
	}

	resource, err := r.api.ResourceByName(ctx, spec.Name, folderID)
	switch {
	case errors.Is(err, errs.ErrNotFound):
		created, err := r.createResource(ctx, spec, folderID)
		if err != nil {
			return zero, err
		}
		return Result[model.Resource]{Changed: true, Data: created}, nil
	case err != nil:
		return zero, err
	}

	return r.updateResource(ctx, resource, spec, folderID)
}

// createResource creates the resource with a single self-encrypted secret,
// moves it into its folder, and then shares it with the desired groups.
func (r *Reconciler) createResource(ctx context.Context, spec model.ResourceSpec, folderID *uuid.UUID) (*model.Resource, error) {
	plaintext := spec.Password
	selfSecret, err := r.cipher.Encrypt(plaintext, r.cipher.Fingerprint())
	if err != nil {
		return nil, fmt.Errorf("encrypt own secret: %w", err)
	}

	req := passbolt.ResourceRequest{
		Name:        spec.Name,
		Username:    spec.Username,
		Description: spec.Description,
		URI:         spec.URI,
		Secrets:     []passbolt.SecretData{{Data: selfSecret}},
	}
	resource, err := r.api.CreateResource(ctx, req)
	if err != nil {
		return nil, err
	}
	r.log.Info("created resource", zap.String("name", spec.Name))

	if folderID != nil {
		if err := r.api.MoveResource(ctx, resource.ID, *folderID); err != nil {
			return nil, err
		}
		// Re-read so the folder parent is reflected before sharing.
		resource, err = r.api.ResourceByID(ctx, resource.ID)
		if err != nil {
			return nil, err
		}
	}

	if len(spec.Groups) > 0 {
		groups, err := r.desiredGroups(ctx, spec.Groups)
		if err != nil {
			return nil, err
		}
		schema, err := r.secretSchema(ctx, resource.ResourceTypeID)
		if err != nil {
			return nil, err
		}
		shared, err := encodeSecret(schema, SecretValue{Password: spec.Password, Description: spec.Description})
		if err != nil {
			return nil, err
		}
		if err := r.shareResourceWithGroups(ctx, resource, shared, groups); err != nil {
			return nil, err
		}
	}
	return resource, nil
}

// updateResource patches a located resource in place, unless the desired
// group set differs from the one it is currently shared with. Sharing
// topology cannot be edited after the fact; the resource is torn down and
// created again under the new topology.
func (r *Reconciler) updateResource(ctx context.Context, resource *model.Resource, spec model.ResourceSpec, folderID *uuid.UUID) (Result[model.Resource], error) {
	var zero Result[model.Resource]

	current, err := r.sharedGroupNames(ctx, resource.ID)
	if err != nil {
		return zero, err
	}
	desired := append([]string(nil), spec.Groups...)
	sort.Strings(desired)

	if !equalStrings(current, desired) {
		r.log.Info("sharing topology changed, recreating resource",
			zap.String("name", spec.Name),
			zap.Strings("current", current),
			zap.Strings("desired", desired),
		)
		if err := r.api.DeleteResource(ctx, resource.ID); err != nil {
			return zero, err
		}
		created, err := r.createResource(ctx, spec, folderID)
		if err != nil {
			return zero, err
		}
		return Result[model.Resource]{Changed: true, Data: created}, nil
	}

	schema, err := r.secretSchema(ctx, resource.ResourceTypeID)
	if err != nil {
		return zero, err
	}

	upd := passbolt.ResourceUpdate{ResourceTypeID: resource.ResourceTypeID}
	changed := false
	if resource.Username != spec.Username {
		upd.Username = &spec.Username
		changed = true
	}
	if resource.URI != spec.URI {
		upd.URI = &spec.URI
		changed = true
	}
	// Under the object schema the description lives inside the encrypted
	// secret, not on the resource record.
	if schema == model.SchemaPassword && resource.Description != spec.Description {
		upd.Description = &spec.Description
		changed = true
	}

	have, err := r.currentSecretValue(ctx, resource.ID, schema)
	if err != nil {
		return zero, err
	}
	want := SecretValue{Password: spec.Password}
	if schema == model.SchemaPasswordAndDescription {
		// An empty desired description leaves the stored one untouched.
		want.Description = spec.Description
		if want.Description == "" {
			want.Description = have.Description
		}
	}
	if have != want {
		plaintext, err := encodeSecret(schema, want)
		if err != nil {
			return zero, err
		}
		secrets, err := r.refreshedSecrets(ctx, resource.ID, plaintext)
		if err != nil {
			return zero, err
		}
		upd.Secrets = secrets
		changed = true
	}

	if !changed {
		return Result[model.Resource]{Data: resource}, nil
	}

	updated, err := r.api.UpdateResource(ctx, resource.ID, upd)
	if err != nil {
		return zero, err
	}
	r.log.Info("updated resource", zap.String("name", spec.Name))
	return Result[model.Resource]{Changed: true, Data: updated}, nil
}

// sharedGroupNames lists, sorted, the names of the groups a resource is
// currently shared with.
func (r *Reconciler) sharedGroupNames(ctx context.Context, resourceID uuid.UUID) ([]string, error) {
	perms, err := r.api.ResourcePermissions(ctx, resourceID)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, p := range perms {
		if p.ARO != model.AROGroup {
			continue
		}
		group, err := r.api.GroupByID(ctx, p.AROForeignKey)
		if err != nil {
			return nil, err
		}
		names = append(names, group.Name)
	}
	sort.Strings(names)
	return names, nil
}

// desiredGroups resolves group names to records; a missing group is fatal
// because sharing with a nonexistent group cannot converge.
func (r *Reconciler) desiredGroups(ctx context.Context, names []string) ([]model.Group, error) {
	groups := make([]model.Group, 0, len(names))
	for _, name := range names {
		g, err := r.api.GroupByName(ctx, name)
		if err != nil {
			return nil, err
		}
		groups = append(groups, *g)
	}
	return groups, nil
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
