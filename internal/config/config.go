package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/example/thaw/internal/protocol"
)

const (
	configDirName  = "thaw"
	configFileName = "config.yaml"

	// DefaultServiceName names the helper endpoint the main process talks to.
	DefaultServiceName = protocol.ServiceName
)

// Config holds the settings shared by the main process and the helper.
type Config struct {
	ServiceName     string        `yaml:"service_name"`
	SocketDir       string        `yaml:"socket_dir"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	StartTimeout    time.Duration `yaml:"start_timeout"`
	GracePeriod     time.Duration `yaml:"grace_period"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	MaxConcurrent   int           `yaml:"max_concurrent"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
	HelperPath      string        `yaml:"helper_path"`

	// Source is the file the settings were read from, empty for defaults.
	Source string `yaml:"-"`
}

// Default returns the configuration used when no file exists.
func Default() Config {
	return Config{
		ServiceName:     DefaultServiceName,
		RequestTimeout:  2 * time.Second,
		StartTimeout:    5 * time.Second,
		GracePeriod:     2 * time.Second,
		MaxConcurrent:   8,
		RefreshInterval: 5 * time.Second,
	}
}

// Path returns the resolved configuration file path.
func Path() (string, error) {
	if custom := strings.TrimSpace(os.Getenv("THAW_CONFIG_PATH")); custom != "" {
		return custom, nil
	}

	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("determine user config dir: %w", err)
	}
	return filepath.Join(base, configDirName, configFileName), nil
}

// Load reads the configuration from the default path.
func Load() (Config, error) {
	path, err := Path()
	if err != nil {
		return Config{}, err
	}
	return LoadFromPath(path)
}

// LoadFromPath reads the configuration at path. A missing file yields the
// defaults. Environment overrides are applied last.
func LoadFromPath(path string) (Config, error) {
	cfg := Default()

	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return Config{}, fmt.Errorf("read config: %w", err)
	default:
		if err := decode(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
		cfg.Source = path
	}

	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func decode(raw []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func applyEnv(cfg *Config) {
	if name := strings.TrimSpace(os.Getenv("THAW_SERVICE_NAME")); name != "" {
		cfg.ServiceName = name
	}
	if dir := strings.TrimSpace(os.Getenv("THAW_SOCKET_DIR")); dir != "" {
		cfg.SocketDir = dir
	}
}

// Validate enforces config invariants.
func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("service_name must not be empty")
	}
	if strings.ContainsAny(c.ServiceName, `/\`) {
		return fmt.Errorf("service_name must not contain path separators")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request_timeout must be > 0")
	}
	if c.StartTimeout <= 0 {
		return fmt.Errorf("start_timeout must be > 0")
	}
	if c.GracePeriod < 0 {
		return fmt.Errorf("grace_period must be >= 0")
	}
	if c.IdleTimeout < 0 {
		return fmt.Errorf("idle_timeout must be >= 0")
	}
	if c.MaxConcurrent <= 0 {
		return fmt.Errorf("max_concurrent must be > 0")
	}
	if c.RefreshInterval <= 0 {
		return fmt.Errorf("refresh_interval must be > 0")
	}
	return nil
}
