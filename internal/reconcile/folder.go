package reconcile

import (
	"context"
	"errors"
	"strings"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/mabihan/passbolt-reconcile/internal/errs"
	"github.com/mabihan/passbolt-reconcile/internal/model"
	"github.com/mabihan/passbolt-reconcile/internal/passbolt"
)

// EnsureFolder returns the folder with the given name under parentID (or at
// the root when parentID is nil), creating it when absent. A created child
// inherits every parent permission except the acting identity's own grant,
// which the server adds implicitly.
func (r *Reconciler) EnsureFolder(ctx context.Context, name string, parentID *uuid.UUID) (*model.Folder, bool, error) {
	folder, err := r.api.FolderByName(ctx, name, parentID)
	if err == nil {
		return folder, false, nil
	}
	if !errors.Is(err, errs.ErrNotFound) {
		return nil, false, err
	}

	created, err := r.api.CreateFolder(ctx, name, parentID)
	if err != nil {
		return nil, false, err
	}
	r.log.Info("created folder",
		zap.String("name", name),
		zap.String("id", created.ID.String()),
	)
	if parentID != nil {
		if err := r.inheritParentPermissions(ctx, created.ID, *parentID); err != nil {
			return nil, false, err
		}
	}
	return created, true, nil
}

// EnsureFolderPath resolves a /-separated chain of folder names left to
// right, creating missing segments and threading each resolved folder's id
// as the next segment's parent. Returns the final folder and whether any
// segment was created.
func (r *Reconciler) EnsureFolderPath(ctx context.Context, path string) (*model.Folder, bool, error) {
	segments := splitPath(path)
	if len(segments) == 0 {
		return nil, false, &errs.ValidationError{Field: "folder.path", Reason: "cannot be empty"}
	}

	var (
		parent  *uuid.UUID
		folder  *model.Folder
		changed bool
	)
	for _, segment := range segments {
		f, created, err := r.EnsureFolder(ctx, segment, parent)
		if err != nil {
			return nil, false, err
		}
		changed = changed || created
		folder, parent = f, &f.ID
	}
	return folder, changed, nil
}

// LookupFolderPath resolves a folder path without creating anything.
func (r *Reconciler) LookupFolderPath(ctx context.Context, path string) (*model.Folder, error) {
	segments := splitPath(path)
	if len(segments) == 0 {
		return nil, &errs.ValidationError{Field: "folder.path", Reason: "cannot be empty"}
	}
	var (
		parent *uuid.UUID
		folder *model.Folder
	)
	for _, segment := range segments {
		f, err := r.api.FolderByName(ctx, segment, parent)
		if err != nil {
			return nil, err
		}
		folder, parent = f, &f.ID
	}
	return folder, nil
}

// inheritParentPermissions copies the parent's permission set onto a newly
// created child, excluding the acting identity's own entry.
func (r *Reconciler) inheritParentPermissions(ctx context.Context, folderID, parentID uuid.UUID) error {
	parent, err := r.api.FolderByID(ctx, parentID)
	if err != nil {
		return err
	}
	users, err := r.resolvePermissionUsers(ctx, parent.Permissions)
	if err != nil {
		return err
	}
	selfID, err := r.selfUserID(users)
	if err != nil {
		return err
	}

	var perms []passbolt.SharePermission
	for _, p := range parent.Permissions {
		if p.ARO == model.AROUser && p.AROForeignKey == selfID {
			continue
		}
		perms = append(perms, passbolt.SharePermission{
			IsNew:         true,
			ARO:           p.ARO,
			AROForeignKey: p.AROForeignKey,
			ACO:           model.ACOFolder,
			ACOForeignKey: folderID,
			Type:          p.Type,
		})
	}
	if len(perms) == 0 {
		return nil
	}
	return r.api.ShareFolder(ctx, folderID, perms)
}

// splitPath breaks a folder path into its non-empty segments.
func splitPath(path string) []string {
	var segments []string
	for _, s := range strings.Split(path, "/") {
		if s = strings.TrimSpace(s); s != "" {
			segments = append(segments, s)
		}
	}
	return segments
}
