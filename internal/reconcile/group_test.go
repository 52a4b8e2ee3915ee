package reconcile

import (
	"context"
	"errors"
	"testing"

	"github.com/gofrs/uuid/v5"

	"github.com/mabihan/passbolt-reconcile/internal/errs"
)

func TestEnsureGroup_CreatesWithActingManager(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	api := newFakeAPI()
	r := newTestReconciler(api)

	group, created, err := r.EnsureGroup(ctx, "Platform")
	if err != nil {
		t.Fatalf("EnsureGroup: %v", err)
	}
	if !created {
		t.Fatalf("want created=true")
	}
	if len(group.Members) != 1 || group.Members[0].UserID != api.meID || !group.Members[0].IsAdmin {
		t.Fatalf("new group must have the acting identity as manager: %+v", group.Members)
	}

	_, created, err = r.EnsureGroup(ctx, "Platform")
	if err != nil || created {
		t.Fatalf("second call: created=%t err=%v", created, err)
	}
}

func TestSyncMembers_SetDifference(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	api := newFakeAPI()
	a := api.addKeyedUser("a@example.com")
	b := api.addKeyedUser("b@example.com")
	c := api.addKeyedUser("c@example.com")
	api.addKeyedUser("d@example.com")
	groupID := api.addGroup("Ops", a, b, c)
	r := newTestReconciler(api)

	sync, err := r.SyncMembers(ctx, groupID, []string{"b@example.com", "c@example.com", "d@example.com"})
	if err != nil {
		t.Fatalf("SyncMembers: %v", err)
	}
	if sync.Added != 1 || sync.Removed != 1 || len(sync.Skipped) != 0 {
		t.Fatalf("sync mismatch: %+v", sync)
	}

	got := map[uuid.UUID]bool{}
	for _, m := range api.groups[groupID].Members {
		got[m.UserID] = true
	}
	if got[a] || !got[b] || !got[c] || len(got) != 3 {
		t.Fatalf("final membership wrong: %+v", got)
	}

	sync, err = r.SyncMembers(ctx, groupID, []string{"b@example.com", "c@example.com", "d@example.com"})
	if err != nil {
		t.Fatalf("SyncMembers (second): %v", err)
	}
	if sync.Changed() {
		t.Fatalf("converged membership must not change again: %+v", sync)
	}
}

func TestSyncMembers_SkipsInactiveUser(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	api := newFakeAPI()
	api.addUser("ghost@example.com", "Gh", "Ost", false, fprOf("key-ghost"))
	groupID := api.addGroup("Ops")
	r := newTestReconciler(api)

	sync, err := r.SyncMembers(ctx, groupID, []string{"ghost@example.com"})
	if err != nil {
		t.Fatalf("SyncMembers: %v", err)
	}
	if sync.Added != 0 || len(sync.Skipped) != 1 {
		t.Fatalf("inactive user must be skipped, not added: %+v", sync)
	}
	if !errors.Is(sync.Skipped[0], errs.ErrNotActive) {
		t.Fatalf("skip must carry the not-active classification, got %v", sync.Skipped[0])
	}
	var na *errs.NotActiveError
	if !errors.As(sync.Skipped[0], &na) || na.Username != "ghost@example.com" {
		t.Fatalf("skip must name the inactive user, got %v", sync.Skipped[0])
	}
	if len(api.groups[groupID].Members) != 0 {
		t.Fatalf("membership must stay empty")
	}
}

func TestSyncMembers_UnknownUserFatal(t *testing.T) {
	t.Parallel()
	api := newFakeAPI()
	groupID := api.addGroup("Ops")
	r := newTestReconciler(api)

	_, err := r.SyncMembers(context.Background(), groupID, []string{"nobody@example.com"})
	if !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("want not-found for unknown desired member, got %v", err)
	}
}

func TestReconcileGroup_NilMembersLeavesMembershipAlone(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	api := newFakeAPI()
	a := api.addKeyedUser("a@example.com")
	groupID := api.addGroup("Ops", a)
	r := newTestReconciler(api)

	res, err := r.ReconcileGroup(ctx, "Ops", nil)
	if err != nil {
		t.Fatalf("ReconcileGroup: %v", err)
	}
	if res.Changed {
		t.Fatalf("existing group with nil members must report no change")
	}
	if len(api.groups[groupID].Members) != 1 {
		t.Fatalf("membership must be untouched")
	}
}
