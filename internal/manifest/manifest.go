// Package manifest loads a desired-state document and applies it through
// the reconciler. Entries apply in dependency order: folders first, then
// groups, users, and finally resources.
package manifest

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/mabihan/passbolt-reconcile/internal/errs"
	"github.com/mabihan/passbolt-reconcile/internal/model"
	"github.com/mabihan/passbolt-reconcile/internal/reconcile"
)

// Manifest is one desired-state document.
type Manifest struct {
	Folders   []FolderEntry   `yaml:"folders"`
	Groups    []GroupEntry    `yaml:"groups"`
	Users     []UserEntry     `yaml:"users"`
	Resources []ResourceEntry `yaml:"resources"`
}

// FolderEntry declares a folder path that must exist.
type FolderEntry struct {
	Path string `yaml:"path"`
}

// GroupEntry declares a group and, optionally, its exact member list.
// A nil member list leaves existing membership untouched.
type GroupEntry struct {
	Name    string   `yaml:"name"`
	Members []string `yaml:"members"`
}

// UserEntry declares a user account.
type UserEntry struct {
	Username  string   `yaml:"username"`
	FirstName string   `yaml:"first_name"`
	LastName  string   `yaml:"last_name"`
	Groups    []string `yaml:"groups"`
	State     string   `yaml:"state"`
}

// ResourceEntry declares a resource. The password comes either inline or
// from the environment variable named by password_env; inline passwords
// belong only in manifests that are themselves secret material.
type ResourceEntry struct {
	Name        string   `yaml:"name"`
	Username    string   `yaml:"username"`
	Password    string   `yaml:"password"`
	PasswordEnv string   `yaml:"password_env"`
	Description string   `yaml:"description"`
	URI         string   `yaml:"uri"`
	Folder      string   `yaml:"folder"`
	Groups      []string `yaml:"groups"`
	State       string   `yaml:"state"`
}

// Summary counts the outcome of one apply run.
type Summary struct {
	Applied int
	Changed int
}

// Load reads and validates a manifest file.
func Load(path string) (*Manifest, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}
	var m Manifest
	if err := yaml.Unmarshal(buf, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks every entry before anything is applied, so a malformed
// manifest never half-applies.
func (m *Manifest) Validate() error {
	for i, f := range m.Folders {
		if f.Path == "" {
			return &errs.ValidationError{Field: fmt.Sprintf("folders[%d].path", i), Reason: "must not be empty"}
		}
	}
	for i, g := range m.Groups {
		if g.Name == "" {
			return &errs.ValidationError{Field: fmt.Sprintf("groups[%d].name", i), Reason: "must not be empty"}
		}
	}
	for i, u := range m.Users {
		spec, state := u.spec()
		if !state.Valid() {
			return &errs.ValidationError{Field: fmt.Sprintf("users[%d].state", i), Reason: "must be present or absent"}
		}
		if err := spec.Validate(); err != nil {
			return fmt.Errorf("users[%d]: %w", i, err)
		}
	}
	for i, res := range m.Resources {
		spec, state, err := res.spec()
		if err != nil {
			return fmt.Errorf("resources[%d]: %w", i, err)
		}
		if !state.Valid() {
			return &errs.ValidationError{Field: fmt.Sprintf("resources[%d].state", i), Reason: "must be present or absent"}
		}
		if err := spec.Validate(state); err != nil {
			return fmt.Errorf("resources[%d]: %w", i, err)
		}
	}
	return nil
}

func (u UserEntry) spec() (model.UserSpec, model.State) {
	state := model.State(u.State)
	if u.State == "" {
		state = model.StatePresent
	}
	return model.UserSpec{
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Groups:    u.Groups,
	}, state
}

func (e ResourceEntry) spec() (model.ResourceSpec, model.State, error) {
	state := model.State(e.State)
	if e.State == "" {
		state = model.StatePresent
	}
	password := e.Password
	if e.PasswordEnv != "" {
		v, ok := os.LookupEnv(e.PasswordEnv)
		if !ok {
			return model.ResourceSpec{}, state, &errs.ValidationError{
				Field:  "password_env",
				Reason: fmt.Sprintf("environment variable %s is not set", e.PasswordEnv),
			}
		}
		password = v
	}
	return model.ResourceSpec{
		Name:        e.Name,
		Username:    e.Username,
		Password:    password,
		Description: e.Description,
		URI:         e.URI,
		FolderPath:  e.Folder,
		Groups:      e.Groups,
	}, state, nil
}

// Apply reconciles every entry in dependency order. The first failing
// entry aborts the run; entries already applied stay applied.
func (m *Manifest) Apply(ctx context.Context, r *reconcile.Reconciler, log *zap.Logger) (Summary, error) {
	var sum Summary

	for _, f := range m.Folders {
		_, changed, err := r.EnsureFolderPath(ctx, f.Path)
		if err != nil {
			return sum, fmt.Errorf("folder %s: %w", f.Path, err)
		}
		sum.record(changed)
	}

	for _, g := range m.Groups {
		res, err := r.ReconcileGroup(ctx, g.Name, g.Members)
		if err != nil {
			return sum, fmt.Errorf("group %s: %w", g.Name, err)
		}
		sum.record(res.Changed)
	}

	for _, u := range m.Users {
		spec, state := u.spec()
		res, err := r.ReconcileUser(ctx, spec, state)
		if err != nil {
			return sum, fmt.Errorf("user %s: %w", u.Username, err)
		}
		sum.record(res.Changed)
	}

	for _, entry := range m.Resources {
		spec, state, err := entry.spec()
		if err != nil {
			return sum, fmt.Errorf("resource %s: %w", entry.Name, err)
		}
		res, err := r.ReconcileResource(ctx, spec, state)
		if err != nil {
			return sum, fmt.Errorf("resource %s: %w", entry.Name, err)
		}
		sum.record(res.Changed)
	}

	log.Info("manifest applied", zap.Int("entries", sum.Applied), zap.Int("changed", sum.Changed))
	return sum, nil
}

func (s *Summary) record(changed bool) {
	s.Applied++
	if changed {
		s.Changed++
	}
}
