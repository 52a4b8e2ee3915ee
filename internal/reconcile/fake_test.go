package reconcile

import (
	"context"
	"fmt"
	"strings"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/mabihan/passbolt-reconcile/internal/errs"
	"github.com/mabihan/passbolt-reconcile/internal/model"
	"github.com/mabihan/passbolt-reconcile/internal/passbolt"
)

const selfFingerprint = "SELFSELFSELFSELFSELFSELFSELFSELFSELFSELF"

// fakeCipher encrypts by tagging the plaintext with the recipient
// fingerprint, so tests can assert who a ciphertext was addressed to.
type fakeCipher struct {
	trusted map[string]bool
}

func newFakeCipher() *fakeCipher {
	return &fakeCipher{trusted: map[string]bool{selfFingerprint: true}}
}

func (c *fakeCipher) Fingerprint() string { return selfFingerprint }

func (c *fakeCipher) ImportAndTrust(armored string) (string, error) {
	fpr := fprOf(armored)
	c.trusted[fpr] = true
	return fpr, nil
}

func (c *fakeCipher) Encrypt(plaintext, fpr string) (string, error) {
	if !c.trusted[fpr] {
		return "", fmt.Errorf("untrusted recipient %s", fpr)
	}
	return "enc:" + fpr + ":" + plaintext, nil
}

func (c *fakeCipher) Decrypt(ciphertext string) (string, error) {
	parts := strings.SplitN(ciphertext, ":", 3)
	if len(parts) != 3 || parts[0] != "enc" {
		return "", fmt.Errorf("not a ciphertext: %s", ciphertext)
	}
	return parts[2], nil
}

// fprOf derives a deterministic fake fingerprint from an armored key.
func fprOf(armored string) string { return "FPR:" + armored }

// fakeAPI is an in-memory server. Lookups mimic the real client's exact
// matching and scope rules; mutating calls are recorded for assertions.
type fakeAPI struct {
	meID          uuid.UUID
	users         []model.User
	groups        map[uuid.UUID]*model.Group
	folders       map[uuid.UUID]*model.Folder
	resources     map[uuid.UUID]*model.Resource
	resourceTypes map[uuid.UUID]*model.ResourceType
	// permissions per resource id; folder permissions live on the folder.
	resourcePerms map[uuid.UUID][]model.Permission
	// selfSecrets holds the acting identity's ciphertext per resource.
	selfSecrets map[uuid.UUID]string

	defaultTypeID uuid.UUID

	folderShares     map[uuid.UUID][]passbolt.SharePermission
	simulateCalls    []passbolt.SharePayload
	shareCalls       []passbolt.SharePayload
	deletedResources []uuid.UUID
	updateCalls      []passbolt.ResourceUpdate
	createdUsers     []string
	deletedUsers     []uuid.UUID
}

var _ passbolt.API = (*fakeAPI)(nil)

func newFakeAPI() *fakeAPI {
	f := &fakeAPI{
		groups:        map[uuid.UUID]*model.Group{},
		folders:       map[uuid.UUID]*model.Folder{},
		resources:     map[uuid.UUID]*model.Resource{},
		resourceTypes: map[uuid.UUID]*model.ResourceType{},
		resourcePerms: map[uuid.UUID][]model.Permission{},
		selfSecrets:   map[uuid.UUID]string{},
		folderShares:  map[uuid.UUID][]passbolt.SharePermission{},
	}
	f.defaultTypeID = f.addResourceType("password-string", `{"secret":{"type":"string"}}`)
	f.meID = f.addUser("admin@example.com", "Ad", "Min", true, selfFingerprint)
	return f
}

func newID() uuid.UUID { return uuid.Must(uuid.NewV4()) }

func (f *fakeAPI) addUser(username, first, last string, active bool, fpr string) uuid.UUID {
	id := newID()
	f.users = append(f.users, model.User{
		ID:       id,
		Username: username,
		Active:   active,
		Profile:  model.Profile{FirstName: first, LastName: last},
		GPGKey:   &model.PublicKey{Fingerprint: fpr, ArmoredKey: strings.TrimPrefix(fpr, "FPR:")},
	})
	return id
}

// addKeyedUser adds an active user whose fake key round-trips through
// fakeCipher.ImportAndTrust.
func (f *fakeAPI) addKeyedUser(username string) uuid.UUID {
	return f.addUser(username, "U", "Ser", true, fprOf("key-"+username))
}

func (f *fakeAPI) addGroup(name string, memberIDs ...uuid.UUID) uuid.UUID {
	id := newID()
	g := &model.Group{ID: id, Name: name}
	for _, uid := range memberIDs {
		g.Members = append(g.Members, model.GroupMembership{ID: newID(), UserID: uid})
	}
	f.groups[id] = g
	return id
}

func (f *fakeAPI) addFolder(name string, parentID *uuid.UUID, perms ...model.Permission) uuid.UUID {
	id := newID()
	f.folders[id] = &model.Folder{ID: id, Name: name, FolderParentID: parentID, Permissions: perms}
	return id
}

func (f *fakeAPI) addResource(name string, folderID *uuid.UUID, perms ...model.Permission) uuid.UUID {
	id := newID()
	f.resources[id] = &model.Resource{
		ID:             id,
		Name:           name,
		ResourceTypeID: f.defaultTypeID,
		FolderParentID: folderID,
	}
	f.resourcePerms[id] = perms
	return id
}

func (f *fakeAPI) addResourceType(slug, definition string) uuid.UUID {
	id := newID()
	f.resourceTypes[id] = &model.ResourceType{ID: id, Slug: slug, Definition: []byte(definition)}
	return id
}

func (f *fakeAPI) userByID(id uuid.UUID) *model.User {
	for i := range f.users {
		if f.users[i].ID == id {
			return &f.users[i]
		}
	}
	return nil
}

// Folders

func (f *fakeAPI) FolderByID(_ context.Context, id uuid.UUID) (*model.Folder, error) {
	folder, ok := f.folders[id]
	if !ok {
		return nil, &errs.NotFoundError{Kind: "folder", Name: id.String()}
	}
	cp := *folder
	return &cp, nil
}

func (f *fakeAPI) FolderByName(_ context.Context, name string, parentID *uuid.UUID) (*model.Folder, error) {
	var matches []*model.Folder
	for _, folder := range f.folders {
		if folder.Name == name && sameParent(folder.FolderParentID, parentID) {
			matches = append(matches, folder)
		}
	}
	switch len(matches) {
	case 0:
		return nil, &errs.NotFoundError{Kind: "folder", Name: name}
	case 1:
		cp := *matches[0]
		return &cp, nil
	default:
		return nil, &errs.AmbiguityError{Kind: "folder", Name: name, Count: len(matches)}
	}
}

func sameParent(got, want *uuid.UUID) bool {
	if want == nil {
		return got == nil
	}
	return got != nil && *got == *want
}

func (f *fakeAPI) CreateFolder(_ context.Context, name string, parentID *uuid.UUID) (*model.Folder, error) {
	id := f.addFolder(name, parentID, model.Permission{
		ARO:           model.AROUser,
		AROForeignKey: f.meID,
		Type:          model.PermissionOwner,
	})
	cp := *f.folders[id]
	return &cp, nil
}

func (f *fakeAPI) ShareFolder(_ context.Context, folderID uuid.UUID, perms []passbolt.SharePermission) error {
	f.folderShares[folderID] = append(f.folderShares[folderID], perms...)
	return nil
}

// Groups

func (f *fakeAPI) Groups(_ context.Context) ([]model.Group, error) {
	out := make([]model.Group, 0, len(f.groups))
	for _, g := range f.groups {
		out = append(out, *g)
	}
	return out, nil
}

func (f *fakeAPI) GroupByID(_ context.Context, id uuid.UUID) (*model.Group, error) {
	g, ok := f.groups[id]
	if !ok {
		return nil, &errs.NotFoundError{Kind: "group", Name: id.String()}
	}
	cp := *g
	return &cp, nil
}

func (f *fakeAPI) GroupByName(_ context.Context, name string) (*model.Group, error) {
	var matches []*model.Group
	for _, g := range f.groups {
		if g.Name == name {
			matches = append(matches, g)
		}
	}
	switch len(matches) {
	case 0:
		return nil, &errs.NotFoundError{Kind: "group", Name: name}
	case 1:
		cp := *matches[0]
		return &cp, nil
	default:
		return nil, &errs.AmbiguityError{Kind: "group", Name: name, Count: len(matches)}
	}
}

func (f *fakeAPI) CreateGroup(_ context.Context, name string, managerID uuid.UUID) (*model.Group, error) {
	id := newID()
	g := &model.Group{
		ID:      id,
		Name:    name,
		Members: []model.GroupMembership{{ID: newID(), UserID: managerID, IsAdmin: true}},
	}
	f.groups[id] = g
	cp := *g
	return &cp, nil
}

func (f *fakeAPI) AddGroupMember(_ context.Context, groupID, userID uuid.UUID) error {
	g, ok := f.groups[groupID]
	if !ok {
		return &errs.NotFoundError{Kind: "group", Name: groupID.String()}
	}
	g.Members = append(g.Members, model.GroupMembership{ID: newID(), UserID: userID})
	return nil
}

func (f *fakeAPI) RemoveGroupMember(_ context.Context, groupID, membershipID uuid.UUID) error {
	g, ok := f.groups[groupID]
	if !ok {
		return &errs.NotFoundError{Kind: "group", Name: groupID.String()}
	}
	for i, m := range g.Members {
		if m.ID == membershipID {
			g.Members = append(g.Members[:i], g.Members[i+1:]...)
			return nil
		}
	}
	return &errs.NotFoundError{Kind: "membership", Name: membershipID.String()}
}

// Users

func (f *fakeAPI) Me(_ context.Context) (*model.User, error) {
	u := f.userByID(f.meID)
	cp := *u
	return &cp, nil
}

func (f *fakeAPI) UserByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	u := f.userByID(id)
	if u == nil {
		return nil, &errs.NotFoundError{Kind: "user", Name: id.String()}
	}
	cp := *u
	return &cp, nil
}

func (f *fakeAPI) UserByUsername(_ context.Context, username string) (*model.User, error) {
	for i := range f.users {
		if f.users[i].Username == username {
			cp := f.users[i]
			return &cp, nil
		}
	}
	return nil, &errs.NotFoundError{Kind: "user", Name: username}
}

func (f *fakeAPI) Users(_ context.Context, hasAccess *uuid.UUID) ([]model.User, error) {
	if hasAccess == nil {
		return append([]model.User(nil), f.users...), nil
	}
	ids := map[uuid.UUID]struct{}{}
	for _, p := range f.resourcePerms[*hasAccess] {
		switch p.ARO {
		case model.AROUser:
			ids[p.AROForeignKey] = struct{}{}
		case model.AROGroup:
			if g, ok := f.groups[p.AROForeignKey]; ok {
				for _, m := range g.Members {
					ids[m.UserID] = struct{}{}
				}
			}
		}
	}
	var out []model.User
	for i := range f.users {
		if _, ok := ids[f.users[i].ID]; ok {
			out = append(out, f.users[i])
		}
	}
	return out, nil
}

func (f *fakeAPI) UserGroups(_ context.Context, userID uuid.UUID) ([]model.Group, error) {
	var out []model.Group
	for _, g := range f.groups {
		for _, m := range g.Members {
			if m.UserID == userID {
				out = append(out, *g)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeAPI) CreateUser(_ context.Context, username, firstName, lastName string) (*model.User, error) {
	f.createdUsers = append(f.createdUsers, username)
	id := f.addUser(username, firstName, lastName, true, fprOf("key-"+username))
	cp := *f.userByID(id)
	return &cp, nil
}

func (f *fakeAPI) UpdateUser(_ context.Context, id uuid.UUID, username, firstName, lastName string) (*model.User, error) {
	u := f.userByID(id)
	if u == nil {
		return nil, &errs.NotFoundError{Kind: "user", Name: id.String()}
	}
	u.Username = username
	u.Profile.FirstName = firstName
	u.Profile.LastName = lastName
	cp := *u
	return &cp, nil
}

func (f *fakeAPI) DeleteUser(_ context.Context, id uuid.UUID) error {
	for i := range f.users {
		if f.users[i].ID == id {
			f.users = append(f.users[:i], f.users[i+1:]...)
			f.deletedUsers = append(f.deletedUsers, id)
			return nil
		}
	}
	return &errs.NotFoundError{Kind: "user", Name: id.String()}
}

// Resources

func (f *fakeAPI) ResourceByID(_ context.Context, id uuid.UUID) (*model.Resource, error) {
	r, ok := f.resources[id]
	if !ok {
		return nil, &errs.NotFoundError{Kind: "resource", Name: id.String()}
	}
	cp := *r
	return &cp, nil
}

func (f *fakeAPI) ResourceByName(_ context.Context, name string, folderID *uuid.UUID) (*model.Resource, error) {
	var matches []*model.Resource
	for _, r := range f.resources {
		if r.Name != name {
			continue
		}
		if folderID != nil && !sameParent(r.FolderParentID, folderID) {
			continue
		}
		matches = append(matches, r)
	}
	switch len(matches) {
	case 0:
		return nil, &errs.NotFoundError{Kind: "resource", Name: name}
	case 1:
		cp := *matches[0]
		return &cp, nil
	default:
		return nil, &errs.AmbiguityError{Kind: "resource", Name: name, Count: len(matches)}
	}
}

func (f *fakeAPI) ResourcesSharedWithGroup(_ context.Context, groupID uuid.UUID) ([]model.Resource, error) {
	var out []model.Resource
	for id, perms := range f.resourcePerms {
		for _, p := range perms {
			if p.ARO == model.AROGroup && p.AROForeignKey == groupID {
				out = append(out, *f.resources[id])
				break
			}
		}
	}
	return out, nil
}

func (f *fakeAPI) CreateResource(_ context.Context, req passbolt.ResourceRequest) (*model.Resource, error) {
	if len(req.Secrets) > 0 && req.Secrets[0].UserID != nil {
		return nil, &errs.ValidationError{Field: "secrets", Reason: "creation secret must not carry a user id"}
	}
	id := newID()
	typeID := f.defaultTypeID
	if req.ResourceTypeID != nil {
		typeID = *req.ResourceTypeID
	}
	f.resources[id] = &model.Resource{
		ID:             id,
		Name:           req.Name,
		Username:       req.Username,
		URI:            req.URI,
		Description:    req.Description,
		ResourceTypeID: typeID,
	}
	f.resourcePerms[id] = []model.Permission{{
		ID:            newID(),
		ARO:           model.AROUser,
		AROForeignKey: f.meID,
		ACO:           model.ACOResource,
		ACOForeignKey: id,
		Type:          model.PermissionOwner,
	}}
	if len(req.Secrets) > 0 {
		f.selfSecrets[id] = req.Secrets[0].Data
	}
	cp := *f.resources[id]
	return &cp, nil
}

func (f *fakeAPI) UpdateResource(_ context.Context, id uuid.UUID, upd passbolt.ResourceUpdate) (*model.Resource, error) {
	r, ok := f.resources[id]
	if !ok {
		return nil, &errs.NotFoundError{Kind: "resource", Name: id.String()}
	}
	f.updateCalls = append(f.updateCalls, upd)
	if upd.Name != nil {
		r.Name = *upd.Name
	}
	if upd.Username != nil {
		r.Username = *upd.Username
	}
	if upd.URI != nil {
		r.URI = *upd.URI
	}
	if upd.Description != nil {
		r.Description = *upd.Description
	}
	for _, s := range upd.Secrets {
		if s.UserID != nil && *s.UserID == f.meID {
			f.selfSecrets[id] = s.Data
		}
	}
	cp := *r
	return &cp, nil
}

func (f *fakeAPI) DeleteResource(_ context.Context, id uuid.UUID) error {
	if _, ok := f.resources[id]; !ok {
		return &errs.NotFoundError{Kind: "resource", Name: id.String()}
	}
	delete(f.resources, id)
	delete(f.resourcePerms, id)
	delete(f.selfSecrets, id)
	f.deletedResources = append(f.deletedResources, id)
	return nil
}

func (f *fakeAPI) MoveResource(_ context.Context, id, folderID uuid.UUID) error {
	r, ok := f.resources[id]
	if !ok {
		return &errs.NotFoundError{Kind: "resource", Name: id.String()}
	}
	fid := folderID
	r.FolderParentID = &fid
	return nil
}

func (f *fakeAPI) ResourcePermissions(_ context.Context, id uuid.UUID) ([]model.Permission, error) {
	perms, ok := f.resourcePerms[id]
	if !ok {
		return nil, &errs.NotFoundError{Kind: "resource", Name: id.String()}
	}
	return append([]model.Permission(nil), perms...), nil
}

func (f *fakeAPI) SimulateShareResource(_ context.Context, id uuid.UUID, payload passbolt.SharePayload) error {
	if _, ok := f.resources[id]; !ok {
		return &errs.NotFoundError{Kind: "resource", Name: id.String()}
	}
	f.simulateCalls = append(f.simulateCalls, payload)
	return nil
}

func (f *fakeAPI) ShareResource(_ context.Context, id uuid.UUID, payload passbolt.SharePayload) error {
	if _, ok := f.resources[id]; !ok {
		return &errs.NotFoundError{Kind: "resource", Name: id.String()}
	}
	f.shareCalls = append(f.shareCalls, payload)
	for _, p := range payload.Permissions {
		f.resourcePerms[id] = append(f.resourcePerms[id], model.Permission{
			ID:            newID(),
			ARO:           p.ARO,
			AROForeignKey: p.AROForeignKey,
			ACO:           p.ACO,
			ACOForeignKey: p.ACOForeignKey,
			Type:          p.Type,
		})
	}
	return nil
}

// Secrets and schemas

func (f *fakeAPI) ResourceSecret(_ context.Context, resourceID uuid.UUID) (*model.Secret, error) {
	data, ok := f.selfSecrets[resourceID]
	if !ok {
		return nil, &errs.NotFoundError{Kind: "secret", Name: resourceID.String()}
	}
	return &model.Secret{ID: newID(), UserID: f.meID, ResourceID: resourceID, Data: data}, nil
}

func (f *fakeAPI) ResourceTypeByID(_ context.Context, id uuid.UUID) (*model.ResourceType, error) {
	rt, ok := f.resourceTypes[id]
	if !ok {
		return nil, &errs.NotFoundError{Kind: "resource type", Name: id.String()}
	}
	cp := *rt
	return &cp, nil
}

func newTestReconciler(f *fakeAPI) *Reconciler {
	return New(f, newFakeCipher(), zap.NewNop())
}
