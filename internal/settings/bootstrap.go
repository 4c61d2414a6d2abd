package settings

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/watchdogsentinel/sentinel/internal/model"
	"github.com/watchdogsentinel/sentinel/internal/store"
)

const (
	envBootstrapPath     = "SENTINEL_SETTINGS_BOOTSTRAP"
	defaultBootstrapPath = "/etc/watchdog-sentinel/settings.yaml"
)

// bootstrapFile is the on-disk shape used to seed the first settings row on
// a brand-new deployment, mirroring agent/internal/config's YAML layout.
type bootstrapFile struct {
	APIToken             string `yaml:"api_token"`
	ChannelCritical      string `yaml:"channel_critical"`
	ChannelSuccess       string `yaml:"channel_success"`
	ChannelWarning       string `yaml:"channel_warning"`
	ChannelInfo          string `yaml:"channel_info"`
	SilencePeriodSeconds int64  `yaml:"silence_period_seconds"`
}

// Load reads a bootstrap YAML file from disk.
func Load(path string) (model.Settings, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return model.Settings{}, fmt.Errorf("open settings bootstrap %q: %w", path, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return model.Settings{}, fmt.Errorf("read settings bootstrap %q: %w", path, err)
	}

	var raw bootstrapFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return model.Settings{}, fmt.Errorf("parse settings bootstrap %q: %w", path, err)
	}

	s := model.DefaultSettings()
	s.APIToken = raw.APIToken
	s.ChannelCritical = raw.ChannelCritical
	s.ChannelSuccess = raw.ChannelSuccess
	s.ChannelWarning = raw.ChannelWarning
	s.ChannelInfo = raw.ChannelInfo
	if raw.SilencePeriodSeconds > 0 {
		s.SilencePeriodSeconds = raw.SilencePeriodSeconds
	}
	return s, nil
}

// LoadFromEnv reads the bootstrap file path from SENTINEL_SETTINGS_BOOTSTRAP,
// falling back to defaultBootstrapPath.
func LoadFromEnv() (model.Settings, error) {
	path := os.Getenv(envBootstrapPath)
	if path == "" {
		path = defaultBootstrapPath
	}
	return Load(path)
}

// BootstrapIfEmpty seeds the store's settings row from the bootstrap file
// the first time the process starts against a store with no settings
// configured yet. It is a seed, not a live reload: once a settings row
// exists, this is never called again.
func BootstrapIfEmpty(ctx context.Context, s store.Store, path string) error {
	current, err := s.GetSettings(ctx)
	if err != nil {
		return err
	}
	if current.APIToken != "" || current.ChannelCritical != "" {
		return nil // already configured; nothing to seed
	}
	seeded, err := Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil // no bootstrap file is a perfectly normal deployment
		}
		return err
	}
	return s.UpdateSettings(ctx, seeded)
}
