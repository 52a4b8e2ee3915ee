package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gofrs/uuid/v5"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mabihan/passbolt-reconcile/internal/config"
	"github.com/mabihan/passbolt-reconcile/internal/crypto/agecipher"
	"github.com/mabihan/passbolt-reconcile/internal/manifest"
	"github.com/mabihan/passbolt-reconcile/internal/model"
	"github.com/mabihan/passbolt-reconcile/internal/passbolt"
	"github.com/mabihan/passbolt-reconcile/internal/reconcile"
	"github.com/mabihan/passbolt-reconcile/internal/transport"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// app bundles everything a command needs after login.
type app struct {
	cfg        *config.Config
	log        *zap.Logger
	keyring    *agecipher.Keyring
	transport  *transport.Client
	api        passbolt.API
	reconciler *reconcile.Reconciler
}

func (a *app) Close() {
	_ = a.log.Sync()
}

// newApp loads the config and identity and wires the client stack. The
// caller must defer a.Close().
func newApp(cmd *cobra.Command) (*app, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	log, err := newLogger(cmd)
	if err != nil {
		return nil, err
	}

	pass, err := cfg.Passphrase()
	if err != nil {
		return nil, err
	}
	keyring, err := agecipher.Load(cfg.IdentityFile, pass)
	if err != nil {
		return nil, fmt.Errorf("loading identity: %w", err)
	}

	t, err := transport.NewClient(cfg.ServerURL, cfg.Fingerprint, keyring, cfg.HTTPTimeout.Duration, log)
	if err != nil {
		return nil, err
	}
	api := passbolt.New(t, log)

	return &app{
		cfg:        cfg,
		log:        log,
		keyring:    keyring,
		transport:  t,
		api:        api,
		reconciler: reconcile.New(api, keyring, log),
	}, nil
}

func newLogger(cmd *cobra.Command) (*zap.Logger, error) {
	verbose, _ := cmd.Flags().GetBool("verbose")
	if verbose {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	return cfg.Build()
}

var rootCmd = &cobra.Command{
	Use:           "pbreconcile",
	Short:         "Reconcile Passbolt folders, groups, users and resources",
	SilenceUsage:  true,
	SilenceErrors: false,
}

// keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage the client identity and trusted keys",
}

var keysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate a new encrypted identity",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		pass, err := cfg.Passphrase()
		if err != nil {
			return err
		}
		keyring, public, err := agecipher.Setup(cfg.IdentityFile, pass)
		if err != nil {
			return fmt.Errorf("generating identity: %w", err)
		}
		fmt.Printf("Identity written to %s\n", cfg.IdentityFile)
		fmt.Printf("Fingerprint: %s\n", keyring.Fingerprint())
		fmt.Printf("Public key:  %s\n", public)
		return nil
	},
}

var keysVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify the server key against the configured fingerprint",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		key, err := a.transport.VerifyServerKey(cmd.Context())
		if err != nil {
			return fmt.Errorf("server key verification failed: %w", err)
		}
		fmt.Printf("Server key fingerprint: %s\n", key.Fingerprint)
		return nil
	},
}

var keysImportCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Trust a public key from a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		pass, err := cfg.Passphrase()
		if err != nil {
			return err
		}
		keyring, err := agecipher.Load(cfg.IdentityFile, pass)
		if err != nil {
			return fmt.Errorf("loading identity: %w", err)
		}

		buf, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading key file: %w", err)
		}
		fpr, err := keyring.ImportAndTrust(string(buf))
		if err != nil {
			return fmt.Errorf("importing key: %w", err)
		}
		fmt.Printf("Trusted key %s\n", fpr)
		return nil
	},
}

var keysPreloadCmd = &cobra.Command{
	Use:   "preload",
	Short: "Trust the public key of every server user",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		count, err := a.reconciler.PreloadKeys(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Trusted %d key(s)\n", count)
		return nil
	},
}

// folder command
var folderCmd = &cobra.Command{
	Use:   "folder",
	Short: "Manage folders",
}

var folderEnsureCmd = &cobra.Command{
	Use:   "ensure PATH",
	Short: "Create a folder path if it does not exist",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		folder, changed, err := a.reconciler.EnsureFolderPath(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if changed {
			fmt.Printf("Created folder %s (%s)\n", args[0], folder.ID)
		} else {
			fmt.Printf("Folder %s already present (%s)\n", args[0], folder.ID)
		}
		return nil
	},
}

// group command
var groupCmd = &cobra.Command{
	Use:   "group",
	Short: "Manage groups",
}

var groupEnsureCmd = &cobra.Command{
	Use:   "ensure NAME",
	Short: "Create a group and optionally set its exact member list",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		membersFlag, _ := cmd.Flags().GetString("members")

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		var members []string
		if cmd.Flags().Changed("members") {
			members = splitList(membersFlag)
		}

		res, err := a.reconciler.ReconcileGroup(cmd.Context(), args[0], members)
		if err != nil {
			return err
		}
		if res.Changed {
			fmt.Printf("Group %s reconciled (changed)\n", args[0])
		} else {
			fmt.Printf("Group %s up to date\n", args[0])
		}
		return nil
	},
}

// user command
var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage users",
}

var userApplyCmd = &cobra.Command{
	Use:   "apply USERNAME",
	Short: "Create or update a user and its group memberships",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		firstName, _ := cmd.Flags().GetString("first-name")
		lastName, _ := cmd.Flags().GetString("last-name")
		groupsFlag, _ := cmd.Flags().GetString("groups")
		state, _ := cmd.Flags().GetString("state")

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		spec := model.UserSpec{
			Username:  args[0],
			FirstName: firstName,
			LastName:  lastName,
			Groups:    splitList(groupsFlag),
		}
		res, err := a.reconciler.ReconcileUser(cmd.Context(), spec, model.State(state))
		if err != nil {
			return err
		}
		if res.Changed {
			fmt.Printf("User %s reconciled (changed)\n", args[0])
		} else {
			fmt.Printf("User %s up to date\n", args[0])
		}
		return nil
	},
}

// resource command
var resourceCmd = &cobra.Command{
	Use:   "resource",
	Short: "Manage resources",
}

var resourceApplyCmd = &cobra.Command{
	Use:   "apply NAME",
	Short: "Create or update a resource and its sharing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		username, _ := cmd.Flags().GetString("username")
		passwordEnv, _ := cmd.Flags().GetString("password-env")
		description, _ := cmd.Flags().GetString("description")
		uri, _ := cmd.Flags().GetString("uri")
		folder, _ := cmd.Flags().GetString("folder")
		groupsFlag, _ := cmd.Flags().GetString("groups")
		state, _ := cmd.Flags().GetString("state")

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		var password string
		if state != string(model.StateAbsent) {
			var ok bool
			password, ok = os.LookupEnv(passwordEnv)
			if !ok {
				return fmt.Errorf("environment variable %s is not set", passwordEnv)
			}
		}

		spec := model.ResourceSpec{
			Name:        args[0],
			Username:    username,
			Password:    password,
			Description: description,
			URI:         uri,
			FolderPath:  folder,
			Groups:      splitList(groupsFlag),
		}
		res, err := a.reconciler.ReconcileResource(cmd.Context(), spec, model.State(state))
		if err != nil {
			return err
		}
		if res.Changed {
			fmt.Printf("Resource %s reconciled (changed)\n", args[0])
		} else {
			fmt.Printf("Resource %s up to date\n", args[0])
		}
		return nil
	},
}

var resourceShowCmd = &cobra.Command{
	Use:   "show NAME",
	Short: "Show a resource and decrypt its secret",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		folderPath, _ := cmd.Flags().GetString("folder")
		reveal, _ := cmd.Flags().GetBool("reveal")

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		value, resource, err := showResource(ctx, a, args[0], folderPath)
		if err != nil {
			return err
		}

		fmt.Printf("Name:        %s\n", resource.Name)
		fmt.Printf("ID:          %s\n", resource.ID)
		fmt.Printf("Username:    %s\n", resource.Username)
		fmt.Printf("URI:         %s\n", resource.URI)
		if value.Description != "" {
			fmt.Printf("Description: %s\n", value.Description)
		} else if resource.Description != "" {
			fmt.Printf("Description: %s\n", resource.Description)
		}
		if reveal {
			fmt.Printf("Password:    %s\n", value.Password)
		} else {
			fmt.Printf("Password:    ******** (use --reveal)\n")
		}
		return nil
	},
}

func showResource(ctx context.Context, a *app, name, folderPath string) (reconcile.SecretValue, *model.Resource, error) {
	var folderID *uuid.UUID
	if folderPath != "" {
		folder, err := a.reconciler.LookupFolderPath(ctx, folderPath)
		if err != nil {
			return reconcile.SecretValue{}, nil, err
		}
		folderID = &folder.ID
	}
	resource, err := a.api.ResourceByName(ctx, name, folderID)
	if err != nil {
		return reconcile.SecretValue{}, nil, err
	}
	value, err := a.reconciler.RevealSecret(ctx, resource)
	if err != nil {
		return reconcile.SecretValue{}, nil, err
	}
	return value, resource, nil
}

// facts command
var factsCmd = &cobra.Command{
	Use:   "facts",
	Short: "Read server state",
}

var factsUsersCmd = &cobra.Command{
	Use:   "users [USERNAME]",
	Short: "List users, or show one user in detail",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		if len(args) == 1 {
			user, err := a.api.UserByUsername(ctx, args[0])
			if err != nil {
				return err
			}
			groups, err := a.api.UserGroups(ctx, user.ID)
			if err != nil {
				return err
			}
			printUser(user, groups)
			return nil
		}

		users, err := a.api.Users(ctx, nil)
		if err != nil {
			return err
		}
		for i := range users {
			u := &users[i]
			status := "active"
			if !u.Active {
				status = "inactive"
			}
			fmt.Printf("%-40s %-8s %s %s\n", u.Username, status, u.Profile.FirstName, u.Profile.LastName)
		}
		return nil
	},
}

func printUser(u *model.User, groups []model.Group) {
	fmt.Printf("Username:   %s\n", u.Username)
	fmt.Printf("ID:         %s\n", u.ID)
	fmt.Printf("Name:       %s %s\n", u.Profile.FirstName, u.Profile.LastName)
	fmt.Printf("Active:     %t\n", u.Active)
	if u.GPGKey != nil {
		fmt.Printf("Key:        %s\n", u.GPGKey.Fingerprint)
	}
	if len(groups) > 0 {
		names := make([]string, 0, len(groups))
		for _, g := range groups {
			names = append(names, g.Name)
		}
		fmt.Printf("Groups:     %s\n", strings.Join(names, ", "))
	}
}

var factsGroupCmd = &cobra.Command{
	Use:   "group [NAME]",
	Short: "List groups, or show one group with its members and shared resources",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		if len(args) == 0 {
			groups, err := a.api.Groups(ctx)
			if err != nil {
				return err
			}
			for i := range groups {
				fmt.Printf("%-30s %d member(s)\n", groups[i].Name, len(groups[i].Members))
			}
			return nil
		}

		group, err := a.api.GroupByName(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Group:   %s\n", group.Name)
		fmt.Printf("ID:      %s\n", group.ID)
		fmt.Printf("Members: %d\n", len(group.Members))
		for _, m := range group.Members {
			user, err := a.api.UserByID(ctx, m.UserID)
			if err != nil {
				return err
			}
			role := ""
			if m.IsAdmin {
				role = "  [manager]"
			}
			fmt.Printf("  %s%s\n", user.Username, role)
		}

		resources, err := a.api.ResourcesSharedWithGroup(ctx, group.ID)
		if err != nil {
			return err
		}
		if len(resources) > 0 {
			fmt.Printf("Shared resources:\n")
			for i := range resources {
				fmt.Printf("  %s\n", resources[i].Name)
			}
		}
		return nil
	},
}

// apply command
var applyCmd = &cobra.Command{
	Use:   "apply MANIFEST",
	Short: "Apply a desired-state manifest",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := manifest.Load(args[0])
		if err != nil {
			return err
		}

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		sum, err := m.Apply(cmd.Context(), a.reconciler, a.log)
		if err != nil {
			return err
		}
		fmt.Printf("Applied %d entries, %d changed\n", sum.Applied, sum.Changed)
		return nil
	},
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func init() {
	rootCmd.PersistentFlags().String("config", config.DefaultPath(), "Path to the config file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")

	keysCmd.AddCommand(keysInitCmd)
	keysCmd.AddCommand(keysVerifyCmd)
	keysCmd.AddCommand(keysImportCmd)
	keysCmd.AddCommand(keysPreloadCmd)
	rootCmd.AddCommand(keysCmd)

	folderCmd.AddCommand(folderEnsureCmd)
	rootCmd.AddCommand(folderCmd)

	groupEnsureCmd.Flags().String("members", "", "Comma-separated exact member list")
	groupCmd.AddCommand(groupEnsureCmd)
	rootCmd.AddCommand(groupCmd)

	userApplyCmd.Flags().String("first-name", "", "First name")
	userApplyCmd.Flags().String("last-name", "", "Last name")
	userApplyCmd.Flags().String("groups", "", "Comma-separated group membership")
	userApplyCmd.Flags().String("state", "present", "Desired state (present or absent)")
	userCmd.AddCommand(userApplyCmd)
	rootCmd.AddCommand(userCmd)

	resourceApplyCmd.Flags().String("username", "", "Login stored on the resource")
	resourceApplyCmd.Flags().String("password-env", "PASSBOLT_RESOURCE_PASSWORD", "Environment variable holding the password")
	resourceApplyCmd.Flags().String("description", "", "Description")
	resourceApplyCmd.Flags().String("uri", "", "URI")
	resourceApplyCmd.Flags().String("folder", "", "Folder path")
	resourceApplyCmd.Flags().String("groups", "", "Comma-separated groups to share with")
	resourceApplyCmd.Flags().String("state", "present", "Desired state (present or absent)")
	resourceCmd.AddCommand(resourceApplyCmd)
	resourceShowCmd.Flags().String("folder", "", "Folder path to search in")
	resourceShowCmd.Flags().Bool("reveal", false, "Print the decrypted password")
	resourceCmd.AddCommand(resourceShowCmd)
	rootCmd.AddCommand(resourceCmd)

	factsCmd.AddCommand(factsUsersCmd)
	factsCmd.AddCommand(factsGroupCmd)
	rootCmd.AddCommand(factsCmd)

	rootCmd.AddCommand(applyCmd)
}
