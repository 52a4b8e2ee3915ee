package reconcile

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/mabihan/passbolt-reconcile/internal/errs"
	"github.com/mabihan/passbolt-reconcile/internal/model"
	"github.com/mabihan/passbolt-reconcile/internal/passbolt"
)

// SecretValue is the decoded plaintext of a secret. Description is only
// meaningful under the password-with-description schema.
type SecretValue struct {
	Password    string `json:"password"`
	Description string `json:"description"`
}

// RevealSecret fetches, decrypts and decodes the acting identity's copy of
// a resource's secret.
func (r *Reconciler) RevealSecret(ctx context.Context, resource *model.Resource) (SecretValue, error) {
	schema, err := r.secretSchema(ctx, resource.ResourceTypeID)
	if err != nil {
		return SecretValue{}, err
	}
	return r.currentSecretValue(ctx, resource.ID, schema)
}

// secretSchema classifies a resource type's secret definition. Anything but
// the two known shapes is fatal; encoding is never guessed.
func (r *Reconciler) secretSchema(ctx context.Context, resourceTypeID uuid.UUID) (model.SecretSchema, error) {
	rt, err := r.api.ResourceTypeByID(ctx, resourceTypeID)
	if err != nil {
		return model.SchemaUnknown, err
	}

	def := rt.Definition
	// Some server versions serve the definition as a JSON-encoded string.
	if len(def) > 0 && def[0] == '"' {
		var inner string
		if err := json.Unmarshal(def, &inner); err != nil {
			return model.SchemaUnknown, fmt.Errorf("decode resource-type definition: %w", err)
		}
		def = []byte(inner)
	}

	var parsed struct {
		Secret struct {
			Type       string                     `json:"type"`
			Properties map[string]json.RawMessage `json:"properties"`
		} `json:"secret"`
	}
	if err := json.Unmarshal(def, &parsed); err != nil {
		return model.SchemaUnknown, fmt.Errorf("decode resource-type definition: %w", err)
	}

	switch {
	case parsed.Secret.Type == "string":
		return model.SchemaPassword, nil
	case parsed.Secret.Type == "object" && hasExactlyPasswordAndDescription(parsed.Secret.Properties):
		return model.SchemaPasswordAndDescription, nil
	default:
		return model.SchemaUnknown, &errs.UnsupportedSchemaError{Slug: rt.Slug}
	}
}

func hasExactlyPasswordAndDescription(props map[string]json.RawMessage) bool {
	if len(props) != 2 {
		return false
	}
	_, hasPwd := props["password"]
	_, hasDesc := props["description"]
	return hasPwd && hasDesc
}

// encodeSecret renders a secret value into the plaintext the schema expects.
func encodeSecret(schema model.SecretSchema, v SecretValue) (string, error) {
	switch schema {
	case model.SchemaPassword:
		return v.Password, nil
	case model.SchemaPasswordAndDescription:
		buf, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("encode secret: %w", err)
		}
		return string(buf), nil
	default:
		return "", &errs.UnsupportedSchemaError{}
	}
}

// decodeSecretValue parses a decrypted plaintext per schema. A plaintext
// that fails to parse as the object shape is treated as a bare password;
// legacy secrets predate the object schema.
func decodeSecretValue(schema model.SecretSchema, plaintext string) SecretValue {
	if schema == model.SchemaPasswordAndDescription {
		var v SecretValue
		if err := json.Unmarshal([]byte(plaintext), &v); err == nil {
			return v
		}
	}
	return SecretValue{Password: plaintext}
}

// currentSecretValue reads and decodes the acting identity's secret copy.
func (r *Reconciler) currentSecretValue(ctx context.Context, resourceID uuid.UUID, schema model.SecretSchema) (SecretValue, error) {
	secret, err := r.api.ResourceSecret(ctx, resourceID)
	if err != nil {
		return SecretValue{}, err
	}
	plaintext, err := r.cipher.Decrypt(secret.Data)
	if err != nil {
		return SecretValue{}, fmt.Errorf("decrypt current secret: %w", err)
	}
	return decodeSecretValue(schema, plaintext), nil
}

// activeRecipients resolves the authorized-recipient set of a permission
// list: directly granted users plus every member of each granted group,
// active users only. Always freshly resolved, never cached.
func (r *Reconciler) activeRecipients(ctx context.Context, perms []model.Permission) ([]model.User, error) {
	users, err := r.resolvePermissionUsers(ctx, perms)
	if err != nil {
		return nil, err
	}
	active := users[:0]
	for _, u := range users {
		if u.Active {
			active = append(active, u)
		}
	}
	return active, nil
}

// fanOut encrypts one plaintext separately for every recipient, importing
// and trusting each public key first. The recipient set passed in must be
// the full authorized set: a payload covering only a subset would lock the
// missing collaborators out.
func (r *Reconciler) fanOut(plaintext string, recipients []model.User) ([]passbolt.SecretData, error) {
	secrets := make([]passbolt.SecretData, 0, len(recipients))
	for i := range recipients {
		u := &recipients[i]
		if u.GPGKey == nil || u.GPGKey.ArmoredKey == "" {
			return nil, fmt.Errorf("user %s has no public key; cannot encrypt", u.Username)
		}
		fpr, err := r.cipher.ImportAndTrust(u.GPGKey.ArmoredKey)
		if err != nil {
			return nil, fmt.Errorf("trust key of %s: %w", u.Username, err)
		}
		data, err := r.cipher.Encrypt(plaintext, fpr)
		if err != nil {
			return nil, fmt.Errorf("encrypt for %s: %w", u.Username, err)
		}
		secrets = append(secrets, passbolt.SecretData{UserID: &u.ID, Data: data})
	}
	return secrets, nil
}

// shareResourceWithGroups grants the desired groups access to a resource
// and delivers one encrypted secret to every member gaining access. The
// payload is first POSTed to the share-simulation endpoint; only an
// accepted payload is committed, and both calls carry identical bytes.
func (r *Reconciler) shareResourceWithGroups(ctx context.Context, resource *model.Resource, plaintext string, groups []model.Group) error {
	if len(groups) == 0 {
		return nil
	}

	// The access level per group follows the containing folder's grant
	// when one exists; groups without a folder grant get read access.
	grantType := map[uuid.UUID]int{}
	if resource.FolderParentID != nil {
		folder, err := r.api.FolderByID(ctx, *resource.FolderParentID)
		if err != nil {
			return err
		}
		for _, p := range folder.Permissions {
			if p.ARO == model.AROGroup {
				grantType[p.AROForeignKey] = p.Type
			}
		}
	}

	perms := make([]passbolt.SharePermission, 0, len(groups))
	groupPerms := make([]model.Permission, 0, len(groups))
	for _, g := range groups {
		level, ok := grantType[g.ID]
		if !ok {
			level = model.PermissionRead
		}
		perms = append(perms, passbolt.SharePermission{
			IsNew:         true,
			ARO:           model.AROGroup,
			AROForeignKey: g.ID,
			ACO:           model.ACOResource,
			ACOForeignKey: resource.ID,
			Type:          level,
		})
		groupPerms = append(groupPerms, model.Permission{
			ARO:           model.AROGroup,
			AROForeignKey: g.ID,
		})
	}

	recipients, err := r.activeRecipients(ctx, groupPerms)
	if err != nil {
		return err
	}
	selfID, err := r.selfUserID(recipients)
	if err != nil {
		return err
	}
	// The creator already holds a secret from resource creation.
	withoutSelf := recipients[:0]
	for _, u := range recipients {
		if u.ID != selfID {
			withoutSelf = append(withoutSelf, u)
		}
	}

	secrets, err := r.fanOut(plaintext, withoutSelf)
	if err != nil {
		return err
	}
	payload := passbolt.SharePayload{Permissions: perms, Secrets: secrets}

	if err := r.api.SimulateShareResource(ctx, resource.ID, payload); err != nil {
		return fmt.Errorf("share simulation rejected: %w", err)
	}
	if err := r.api.ShareResource(ctx, resource.ID, payload); err != nil {
		return err
	}
	r.log.Info("shared resource",
		zap.String("resource", resource.Name),
		zap.Int("groups", len(groups)),
		zap.Int("secrets", len(secrets)),
	)
	return nil
}

// refreshedSecrets re-encrypts a plaintext for the full current recipient
// set of a resource. The server's has-access filter is authoritative here;
// it already includes access inherited through groups and folders.
func (r *Reconciler) refreshedSecrets(ctx context.Context, resourceID uuid.UUID, plaintext string) ([]passbolt.SecretData, error) {
	users, err := r.api.Users(ctx, &resourceID)
	if err != nil {
		return nil, err
	}
	recipients := users[:0]
	for _, u := range users {
		if u.Active {
			recipients = append(recipients, u)
		}
	}
	return r.fanOut(plaintext, recipients)
}
