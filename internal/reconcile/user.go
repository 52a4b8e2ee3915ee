package reconcile

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/mabihan/passbolt-reconcile/internal/errs"
	"github.com/mabihan/passbolt-reconcile/internal/model"
)

// ReconcileUser drives a user account and its full group membership to the
// desired state. Changed aggregates profile and membership sub-operations
// with logical OR.
func (r *Reconciler) ReconcileUser(ctx context.Context, spec model.UserSpec, state model.State) (Result[model.User], error) {
	if !state.Valid() {
		return Result[model.User]{}, &errs.ValidationError{Field: "state", Reason: "must be present or absent"}
	}
	if err := spec.Validate(); err != nil {
		return Result[model.User]{}, err
	}

	user, err := r.api.UserByUsername(ctx, spec.Username)
	notFound := errors.Is(err, errs.ErrNotFound)
	if err != nil && !notFound {
		return Result[model.User]{}, err
	}

	if state == model.StateAbsent {
		if notFound {
			return Result[model.User]{Changed: false}, nil
		}
		if err := r.api.DeleteUser(ctx, user.ID); err != nil {
			return Result[model.User]{}, err
		}
		r.log.Info("deleted user", zap.String("username", spec.Username))
		return Result[model.User]{Changed: true, Data: user}, nil
	}

	changed := false
	switch {
	case notFound:
		user, err = r.api.CreateUser(ctx, spec.Username, spec.FirstName, spec.LastName)
		if err != nil {
			return Result[model.User]{}, err
		}
		r.log.Info("created user", zap.String("username", spec.Username))
		changed = true
	case profileDiffers(user, spec):
		// The server expects the full record on update, not a sparse patch.
		user, err = r.api.UpdateUser(ctx, user.ID, spec.Username, spec.FirstName, spec.LastName)
		if err != nil {
			return Result[model.User]{}, err
		}
		r.log.Info("updated user profile", zap.String("username", spec.Username))
		changed = true
	}

	membershipChanged, err := r.syncUserGroups(ctx, user, spec.Groups)
	if err != nil {
		return Result[model.User]{}, err
	}
	return Result[model.User]{Changed: changed || membershipChanged, Data: user}, nil
}

// syncUserGroups joins the user to every desired group and removes it from
// every other group it currently belongs to.
func (r *Reconciler) syncUserGroups(ctx context.Context, user *model.User, desired []string) (bool, error) {
	currentGroups, err := r.api.UserGroups(ctx, user.ID)
	if err != nil {
		return false, err
	}
	currentByName := map[string]model.Group{}
	for _, g := range currentGroups {
		currentByName[g.Name] = g
	}
	desiredNames := map[string]struct{}{}
	changed := false

	for _, name := range desired {
		desiredNames[name] = struct{}{}
		group, created, err := r.EnsureGroup(ctx, name)
		if err != nil {
			return changed, err
		}
		changed = changed || created

		if _, member := currentByName[name]; member {
			continue
		}
		if !user.Active {
			r.log.Warn("skipping group join for inactive user",
				zap.String("username", user.Username),
				zap.String("group", name),
			)
			continue
		}
		if err := r.api.AddGroupMember(ctx, group.ID, user.ID); err != nil {
			return changed, err
		}
		changed = true
	}

	for name, group := range currentByName {
		if _, wanted := desiredNames[name]; wanted {
			continue
		}
		for _, m := range group.Members {
			if m.UserID != user.ID {
				continue
			}
			if err := r.api.RemoveGroupMember(ctx, group.ID, m.ID); err != nil {
				return changed, err
			}
			changed = true
			break
		}
	}
	return changed, nil
}

// profileDiffers reports whether any reconciled profile field deviates.
func profileDiffers(user *model.User, spec model.UserSpec) bool {
	return user.Username != spec.Username ||
		user.Profile.FirstName != spec.FirstName ||
		user.Profile.LastName != spec.LastName
}
