package reconcile

import (
	"context"
	"errors"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/mabihan/passbolt-reconcile/internal/errs"
	"github.com/mabihan/passbolt-reconcile/internal/model"
)

// MemberSync reports the membership mutations one SyncMembers pass applied.
// Skipped holds one NotActiveError per desired member that could not join
// because the user is inactive; skips are recorded, never fatal.
type MemberSync struct {
	Added   int
	Removed int
	Skipped []error
}

// Changed reports whether any membership mutation was applied.
func (m MemberSync) Changed() bool { return m.Added+m.Removed > 0 }

// SkippedUsernames extracts the usernames behind the recorded skips.
func (m MemberSync) SkippedUsernames() []string {
	names := make([]string, 0, len(m.Skipped))
	for _, err := range m.Skipped {
		var na *errs.NotActiveError
		if errors.As(err, &na) {
			names = append(names, na.Username)
		}
	}
	return names
}

// EnsureGroup returns the group with the given name, creating it when
// absent. A created group gets the acting identity as its sole initial
// manager; the server requires a group manager for later membership edits.
func (r *Reconciler) EnsureGroup(ctx context.Context, name string) (*model.Group, bool, error) {
	group, err := r.api.GroupByName(ctx, name)
	if err == nil {
		return group, false, nil
	}
	if !errors.Is(err, errs.ErrNotFound) {
		return nil, false, err
	}

	me, err := r.api.Me(ctx)
	if err != nil {
		return nil, false, err
	}
	created, err := r.api.CreateGroup(ctx, name, me.ID)
	if err != nil {
		return nil, false, err
	}
	r.log.Info("created group",
		zap.String("name", name),
		zap.String("id", created.ID.String()),
	)
	return created, true, nil
}

// SyncMembers drives a group's membership to exactly the desired usernames.
// Additions and removals are computed as set differences against fresh
// server state. Desired users must already exist; inactive users are
// skipped and recorded. Removals target the membership record's own id.
func (r *Reconciler) SyncMembers(ctx context.Context, groupID uuid.UUID, desired []string) (MemberSync, error) {
	var sync MemberSync

	group, err := r.api.GroupByID(ctx, groupID)
	if err != nil {
		return sync, err
	}

	current := map[uuid.UUID]model.GroupMembership{}
	for _, m := range group.Members {
		current[m.UserID] = m
	}

	desiredIDs := map[uuid.UUID]struct{}{}
	for _, username := range desired {
		user, err := r.api.UserByUsername(ctx, username)
		if err != nil {
			return sync, err
		}
		desiredIDs[user.ID] = struct{}{}

		if _, member := current[user.ID]; member {
			continue
		}
		if !user.Active {
			r.log.Warn("skipping inactive user",
				zap.String("group", group.Name),
				zap.String("username", username),
			)
			sync.Skipped = append(sync.Skipped, &errs.NotActiveError{Username: username})
			continue
		}
		if err := r.api.AddGroupMember(ctx, group.ID, user.ID); err != nil {
			return sync, err
		}
		sync.Added++
	}

	for userID, membership := range current {
		if _, wanted := desiredIDs[userID]; wanted {
			continue
		}
		if err := r.api.RemoveGroupMember(ctx, group.ID, membership.ID); err != nil {
			return sync, err
		}
		sync.Removed++
	}

	if sync.Changed() {
		r.log.Info("synchronized group members",
			zap.String("group", group.Name),
			zap.Int("added", sync.Added),
			zap.Int("removed", sync.Removed),
			zap.Strings("skipped", sync.SkippedUsernames()),
		)
	}
	return sync, nil
}

// ReconcileGroup ensures a group exists and, when members is non-nil,
// drives its membership to exactly that set.
func (r *Reconciler) ReconcileGroup(ctx context.Context, name string, members []string) (Result[model.Group], error) {
	group, created, err := r.EnsureGroup(ctx, name)
	if err != nil {
		return Result[model.Group]{}, err
	}
	changed := created
	if members != nil {
		sync, err := r.SyncMembers(ctx, group.ID, members)
		if err != nil {
			return Result[model.Group]{}, err
		}
		changed = changed || sync.Changed()
	}
	return Result[model.Group]{Changed: changed, Data: group}, nil
}
