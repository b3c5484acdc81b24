package infra

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/SandroAugusto/school-of-solana/internal/domain"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds every setting of the application.
// After LoadConfig reads the file, secrets are overridden from the environment.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Server struct {
		Addr        string   `yaml:"addr"`
		CORSOrigins []string `yaml:"cors_origins"`
	} `yaml:"server"`

	Storage struct {
		Driver string `yaml:"driver"` // sqlite | memory
		Path   string `yaml:"path"`   // empty: per-user data dir
	} `yaml:"storage"`

	Auth struct {
		Secret string `yaml:"secret"`
	} `yaml:"auth"`

	Sequencer struct {
		InboxSize int    `yaml:"inbox_size"`
		DumpPath  string `yaml:"dump_path"`
	} `yaml:"sequencer"`

	Settlement struct {
		Policy string `yaml:"policy"` // none | stake | pro_rata
	} `yaml:"settlement"`

	Logging struct {
		Level      string `yaml:"level"`
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
	} `yaml:"logging"`
}

// DefaultConfig returns the settings used for anything the file leaves out.
func DefaultConfig() Config {
	var cfg Config
	cfg.App.Name = "prediction-market"
	cfg.Server.Addr = ":8080"
	cfg.Storage.Driver = "sqlite"
	cfg.Sequencer.InboxSize = 1024
	cfg.Sequencer.DumpPath = "panic_dump.json"
	cfg.Settlement.Policy = "none"
	cfg.Logging.Level = "info"
	cfg.Logging.File = "logs/app.log"
	cfg.Logging.MaxSizeMB = 10
	cfg.Logging.MaxBackups = 3
	cfg.Logging.MaxAgeDays = 28
	return cfg
}

// LoadConfig reads and parses the configuration file at path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", domain.ErrConfigNotFound, path)
	}
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	// Secrets come from the environment when set
	overrideWithEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return &domain.ConfigError{Field: "server.addr", Err: errors.New("must not be empty")}
	}

	switch c.Storage.Driver {
	case "sqlite", "memory":
	default:
		return &domain.ConfigError{Field: "storage.driver", Err: fmt.Errorf("unknown driver %q", c.Storage.Driver)}
	}

	if len(c.Auth.Secret) < 16 {
		return &domain.ConfigError{Field: "auth.secret", Err: errors.New("must be at least 16 bytes (set PREDICT_AUTH_SECRET)")}
	}

	if c.Sequencer.InboxSize <= 0 {
		return &domain.ConfigError{Field: "sequencer.inbox_size", Err: errors.New("must be positive")}
	}

	switch c.Settlement.Policy {
	case "none", "stake", "pro_rata":
	default:
		return &domain.ConfigError{Field: "settlement.policy", Err: fmt.Errorf("unknown policy %q", c.Settlement.Policy)}
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return &domain.ConfigError{Field: "logging.level", Err: fmt.Errorf("unknown level %q", c.Logging.Level)}
	}

	return nil
}

// overrideWithEnv overwrites config values from PREDICT_* environment variables when present.
func overrideWithEnv(cfg *Config) {
	setStr(&cfg.Auth.Secret, "PREDICT_AUTH_SECRET")
	setStr(&cfg.Storage.Driver, "PREDICT_STORAGE_DRIVER")
	setStr(&cfg.Storage.Path, "PREDICT_STORAGE_PATH")
	setStr(&cfg.Server.Addr, "PREDICT_SERVER_ADDR")
	setStringSlice(&cfg.Server.CORSOrigins, "PREDICT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Settlement.Policy, "PREDICT_SETTLEMENT_POLICY")
	setInt(&cfg.Sequencer.InboxSize, "PREDICT_SEQUENCER_INBOX_SIZE")
	setStr(&cfg.Logging.Level, "PREDICT_LOG_LEVEL")
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				cleaned = append(cleaned, p)
			}
		}
		*dst = cleaned
	}
}
