package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the config file looked up in the working directory.
const FileName = "taskboard.yml"

// Config models taskboard.yml.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Relay    RelayConfig    `yaml:"relay"`
	Overdue  OverdueConfig  `yaml:"overdue"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Addr        string   `yaml:"addr"`
	BasePath    string   `yaml:"base_path"`
	CORSOrigins []string `yaml:"cors_origins"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	// AllowUserHeader trusts X-User-Id without a token. Local use only.
	AllowUserHeader bool `yaml:"allow_user_header"`
	AllowDevLogin   bool `yaml:"allow_dev_login"`
}

type RelayConfig struct {
	Backend     string `yaml:"backend"`
	RedisAddr   string `yaml:"redis_addr"`
	RedisPrefix string `yaml:"redis_prefix"`
	// Buffer is the per-subscriber queue length; pushes beyond it are dropped.
	Buffer int `yaml:"buffer"`
}

type OverdueConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.Addr) == "" {
		return fmt.Errorf("config.server.addr is required")
	}
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	switch c.Database.Driver {
	case "sqlite":
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("config.database.dsn is required for postgres")
		}
	default:
		return fmt.Errorf("config.database.driver must be sqlite or postgres, got %q", c.Database.Driver)
	}
	switch c.Relay.Backend {
	case "memory":
	case "redis":
		if c.Relay.RedisAddr == "" {
			return fmt.Errorf("config.relay.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("config.relay.backend must be memory or redis, got %q", c.Relay.Backend)
	}
	if c.Relay.Buffer <= 0 {
		return fmt.Errorf("config.relay.buffer must be positive")
	}
	if c.Overdue.Enabled && c.Overdue.Interval <= 0 {
		return fmt.Errorf("config.overdue.interval must be positive when enabled")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config.log.level must be debug, info, warn or error")
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config.log.format must be text or json")
	}
	return nil
}

// Path returns the config file path for a directory.
func Path(dir string) string {
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, FileName)
}

// LoadOptional returns the defaults if the config file does not exist.
func LoadOptional(dir string) (*Config, error) {
	data, err := os.ReadFile(Path(dir))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses config over the defaults and validates it.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from an explicit path, which must exist.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with tb config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `server:
  addr: 127.0.0.1:8080
  base_path: /api
  cors_origins: ["http://localhost:3000"]

database:
  driver: sqlite
  dsn: .taskboard/taskboard.db

auth:
  jwt_secret: ""
  allow_user_header: false
  allow_dev_login: false

relay:
  backend: memory
  redis_addr: localhost:6379
  redis_prefix: "taskboard:user:"
  buffer: 64

overdue:
  enabled: true
  interval: 1m

log:
  level: info
  format: text
`
