// Package reconcile implements desired-state reconciliation of folders,
// groups, users and resources against a Passbolt server, and the secret
// distribution that keeps every authorized recipient able to decrypt.
//
// All decisions re-read authoritative server state immediately before
// acting; nothing is cached across calls. Execution is single-threaded and
// strictly sequential, so a failed call leaves the entity in a prefix of the
// intended call sequence. Two concurrent runs against the same entity race
// last-writer-wins; callers serialize runs per target.
package reconcile

import (
	"context"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/mabihan/passbolt-reconcile/internal/crypto"
	"github.com/mabihan/passbolt-reconcile/internal/errs"
	"github.com/mabihan/passbolt-reconcile/internal/model"
	"github.com/mabihan/passbolt-reconcile/internal/passbolt"
)

// Result is the outcome of one reconcile operation. Changed aggregates the
// explicit booleans of every sub-operation actually applied; it is never
// derived by re-diffing state after the fact.
type Result[T any] struct {
	Changed bool
	Data    *T
}

// Reconciler drives all reconcile operations through the API and cipher
// seams. The acting identity is the cipher's own key.
type Reconciler struct {
	api    passbolt.API
	cipher crypto.Cipher
	log    *zap.Logger
}

// New constructs a Reconciler.
func New(api passbolt.API, cipher crypto.Cipher, log *zap.Logger) *Reconciler {
	return &Reconciler{api: api, cipher: cipher, log: log}
}

// PreloadKeys imports and trusts the public key of every user on the
// server, so later encryption fan-outs can address any recipient.
func (r *Reconciler) PreloadKeys(ctx context.Context) (int, error) {
	users, err := r.api.Users(ctx, nil)
	if err != nil {
		return 0, err
	}
	imported := 0
	for i := range users {
		if users[i].GPGKey == nil || users[i].GPGKey.ArmoredKey == "" {
			continue
		}
		if _, err := r.cipher.ImportAndTrust(users[i].GPGKey.ArmoredKey); err != nil {
			return imported, err
		}
		imported++
	}
	r.log.Debug("trusted user keys", zap.Int("count", imported))
	return imported, nil
}

// selfUserID locates the acting identity among resolved users by matching
// the cipher's key fingerprint. Absence is fatal: without it a sharing
// payload cannot exclude the identity's own implicit grant.
func (r *Reconciler) selfUserID(users []model.User) (uuid.UUID, error) {
	fpr := r.cipher.Fingerprint()
	for i := range users {
		if users[i].GPGKey != nil && users[i].GPGKey.Fingerprint == fpr {
			return users[i].ID, nil
		}
	}
	return uuid.Nil, &errs.IdentityNotFoundError{Fingerprint: fpr}
}

// resolvePermissionUsers expands a permission list into the concrete users
// it grants access to: direct user grants plus every member of each granted
// group. Inactive users are kept; callers needing recipients filter them.
func (r *Reconciler) resolvePermissionUsers(ctx context.Context, perms []model.Permission) ([]model.User, error) {
	ids := map[uuid.UUID]struct{}{}
	for _, p := range perms {
		switch p.ARO {
		case model.AROUser:
			ids[p.AROForeignKey] = struct{}{}
		case model.AROGroup:
			group, err := r.api.GroupByID(ctx, p.AROForeignKey)
			if err != nil {
				return nil, err
			}
			for _, id := range group.MemberIDs() {
				ids[id] = struct{}{}
			}
		}
	}

	all, err := r.api.Users(ctx, nil)
	if err != nil {
		return nil, err
	}
	var out []model.User
	for i := range all {
		if _, ok := ids[all[i].ID]; ok {
			out = append(out, all[i])
		}
	}
	return out, nil
}
