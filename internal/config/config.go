package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/viper"

	"testmcp/internal/logging"
)

// EnvPrefix is prepended to every environment override, e.g.
// TESTMCP_LOG_LEVEL=debug.
const EnvPrefix = "TESTMCP"

type ServerConfig struct {
	Name            string `mapstructure:"name"`
	Version         string `mapstructure:"version"`
	ProtocolVersion string `mapstructure:"protocol_version"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type ToolsConfig struct {
	MaskSensitiveEnv bool `mapstructure:"mask_sensitive_env"`
}

type ProbeConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

type Config struct {
	Server ServerConfig `mapstructure:"server"`
	Log    LogConfig    `mapstructure:"log"`
	Tools  ToolsConfig  `mapstructure:"tools"`
	Probe  ProbeConfig  `mapstructure:"probe"`
}

var defaults = map[string]any{
	"server.name":              "test-mcp-server",
	"server.version":           "1.0.0",
	"server.protocol_version":  "2024-11-05",
	"log.level":                "info",
	"log.format":               "text",
	"tools.mask_sensitive_env": false,
	"probe.timeout":            10 * time.Second,
}

// DefaultPath is ~/.test-mcp-server/config.yaml.
func DefaultPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".test-mcp-server", "config.yaml"), nil
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg, err := decode(newViper(afero.NewMemMapFs(), false))
	if err != nil {
		// defaults are static and always decode
		panic(fmt.Sprintf("decoding default config: %v", err))
	}
	return cfg
}

// Load reads path from fs, layering environment overrides on top of file
// values and built-in defaults. A missing file is not an error.
func Load(fs afero.Fs, path string) (*Config, error) {
	v := newViper(fs, true)

	if path != "" {
		exists, err := afero.Exists(fs, path)
		if err != nil {
			return nil, fmt.Errorf("failed to stat config %s: %w", path, err)
		}
		if exists {
			v.SetConfigFile(path)
			if filepath.Ext(path) == "" {
				v.SetConfigType("yaml")
			}
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		}
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path as YAML, creating the parent directory.
func Save(fs afero.Fs, path string, cfg *Config) error {
	if err := fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	v := viper.New()
	v.SetFs(fs)
	v.SetConfigType("yaml")
	for key, value := range cfg.Settings() {
		v.Set(key, value)
	}
	return v.WriteConfigAs(path)
}

// Settings flattens cfg into dotted keys, the same keys Load understands.
func (c *Config) Settings() map[string]any {
	return map[string]any{
		"server.name":              c.Server.Name,
		"server.version":           c.Server.Version,
		"server.protocol_version":  c.Server.ProtocolVersion,
		"log.level":                c.Log.Level,
		"log.format":               c.Log.Format,
		"tools.mask_sensitive_env": c.Tools.MaskSensitiveEnv,
		"probe.timeout":            c.Probe.Timeout.String(),
	}
}

func (c *Config) Validate() error {
	if c.Server.Name == "" {
		return fmt.Errorf("server.name must not be empty")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q (want text or json)", c.Log.Format)
	}
	if c.Probe.Timeout <= 0 {
		return fmt.Errorf("probe.timeout must be positive, got %s", c.Probe.Timeout)
	}
	return nil
}

func newViper(fs afero.Fs, withEnv bool) *viper.Viper {
	v := viper.New()
	v.SetFs(fs)
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	if withEnv {
		v.SetEnvPrefix(EnvPrefix)
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()
	}
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}
