package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// NOTE: This file provides the configuration model and full YAML-based
// load/save behavior, including first-run config creation and 0600
// permissions.

// OrganizerConfig is the default organizer identity used when an event
// does not carry one of its own. Outlook rejects cancellations whose
// ORGANIZER line is missing, so this must always resolve to a non-empty
// email in practice.
type OrganizerConfig struct {
	// Name is the display name (CN parameter).
	Name string `yaml:"name" json:"name"`
	// Email is the mailto address. Must match the authenticated
	// sending identity or receiving clients will ignore cancellations.
	Email string `yaml:"email" json:"email"`
}

// Config is the top-level application configuration.
type Config struct {
	// Organizer is the default organizer identity (see OrganizerConfig).
	Organizer OrganizerConfig `yaml:"organizer" json:"organizer"`

	// UIDDomain is the domain half of generated UIDs
	// (e.g. "meetings-12345abc@example.com").
	UIDDomain string `yaml:"uid_domain" json:"uid_domain"`

	// ProdID is the PRODID emitted in every calendar document.
	ProdID string `yaml:"prodid" json:"prodid"`

	// StorePath is the bbolt file holding request snapshots used to
	// reconstruct byte-faithful cancellations.
	StorePath string `yaml:"store_path" json:"store_path"`

	// RetentionDays controls snapshot pruning: snapshots whose DTEND is
	// older than this many days are deleted by the prune job.
	RetentionDays int `yaml:"retention_days" json:"retention_days"`

	// PruneCron is a cron-style schedule string (e.g. "0 3 * * *") used
	// by daemon mode for periodic snapshot pruning.
	PruneCron string `yaml:"prune_cron" json:"prune_cron"`

	// LogLevel is one of "debug", "info", "warn", "error".
	LogLevel string `yaml:"log_level" json:"log_level"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Organizer: OrganizerConfig{
			Name:  "Meeting Organizer",
			Email: "noreply@localhost",
		},
		UIDDomain:     "localhost",
		ProdID:        "-//invical//Meeting Invitations//EN",
		StorePath:     "./var/invical.db",
		RetentionDays: 365,
		PruneCron:     "0 3 * * *",
		LogLevel:      "info",
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs (e.g., older versions) still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()

	if c.Organizer.Name == "" {
		c.Organizer.Name = def.Organizer.Name
	}
	if c.Organizer.Email == "" {
		c.Organizer.Email = def.Organizer.Email
	}
	if c.UIDDomain == "" {
		// Derive from the organizer email when possible so generated
		// UIDs look like they belong to the sending domain.
		if at := strings.LastIndexByte(c.Organizer.Email, '@'); at >= 0 && at+1 < len(c.Organizer.Email) {
			c.UIDDomain = c.Organizer.Email[at+1:]
		} else {
			c.UIDDomain = def.UIDDomain
		}
	}
	if c.ProdID == "" {
		c.ProdID = def.ProdID
	}
	if c.StorePath == "" {
		c.StorePath = def.StorePath
	}
	if c.RetentionDays <= 0 {
		c.RetentionDays = def.RetentionDays
	}
	if c.PruneCron == "" {
		c.PruneCron = def.PruneCron
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	// Atomic write: write to temp file in same directory then rename.
	tmp, err := os.CreateTemp(dir, ".invical-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}

	// Flush and close before chmod/rename.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	// Set permissions to 0600 on temp file before rename.
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	// Rename over the target path.
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}

	return nil
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
