// Package config loads the client configuration from a TOML file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/mabihan/passbolt-reconcile/internal/errs"
)

// DefaultPassphraseEnv names the environment variable consulted for the
// identity passphrase when the config file does not override it.
const DefaultPassphraseEnv = "PASSBOLT_PASSPHRASE"

// Config holds connection and identity settings.
type Config struct {
	// ServerURL is the base URL of the Passbolt server.
	ServerURL string `toml:"server_url"`
	// Fingerprint identifies the acting key on the server.
	Fingerprint string `toml:"fingerprint"`
	// IdentityFile is the path to the encrypted private identity.
	IdentityFile string `toml:"identity_file"`
	// PassphraseEnv names the environment variable holding the identity
	// passphrase. The passphrase itself never appears in the file.
	PassphraseEnv string `toml:"passphrase_env"`
	// HTTPTimeout bounds each API call.
	HTTPTimeout duration `toml:"http_timeout"`
}

type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// DefaultPath returns the per-user config file location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "passbolt-reconcile.toml"
	}
	return filepath.Join(home, ".config", "passbolt-reconcile", "config.toml")
}

// Load reads and validates the config at path.
func Load(path string) (*Config, error) {
	cfg := &Config{
		PassphraseEnv: DefaultPassphraseEnv,
		HTTPTimeout:   duration{30 * time.Second},
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configs that cannot possibly reach a server.
func (c *Config) Validate() error {
	if c.ServerURL == "" {
		return &errs.ValidationError{Field: "server_url", Reason: "must not be empty"}
	}
	if c.Fingerprint == "" {
		return &errs.ValidationError{Field: "fingerprint", Reason: "must not be empty"}
	}
	if c.IdentityFile == "" {
		return &errs.ValidationError{Field: "identity_file", Reason: "must not be empty"}
	}
	if c.HTTPTimeout.Duration <= 0 {
		return &errs.ValidationError{Field: "http_timeout", Reason: "must be positive"}
	}
	return nil
}

// Passphrase reads the identity passphrase from the configured environment
// variable.
func (c *Config) Passphrase() (string, error) {
	env := c.PassphraseEnv
	if env == "" {
		env = DefaultPassphraseEnv
	}
	pass, ok := os.LookupEnv(env)
	if !ok || pass == "" {
		return "", &errs.ValidationError{Field: "passphrase", Reason: fmt.Sprintf("environment variable %s is not set", env)}
	}
	return pass, nil
}
