package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

const (
	DefaultAPIURL       = "http://127.0.0.1:7344"
	DefaultConfigDBName = ".cfsck.db"
	DefaultLogLevel     = "info"
	DefaultFailureMode  = "abort"
	DefaultS3Region     = "us-east-1"
	DefaultS3MaxRetries = 10

	configFileName  = ".cfsck.toml"
	configDirEnvKey = "CFSCK_CONFIG_DIR"
)

// RepairConfig holds defaults for repair runs.
type RepairConfig struct {
	FailureMode   string `toml:"failure_mode" validate:"oneof=abort continue"`
	DefaultPolicy string `toml:"default_policy"`
}

// S3Config configures the client used for s3:// filestores.
type S3Config struct {
	Region          string `toml:"region" validate:"required"`
	Endpoint        string `toml:"endpoint" validate:"omitempty,url"`
	AccessKeyID     string `toml:"access_key_id" validate:"required_with=SecretAccessKey"`
	SecretAccessKey string `toml:"secret_access_key" validate:"required_with=AccessKeyID"`
	MaxRetries      int    `toml:"max_retries" validate:"min=0,max=50"`
}

// Config defines runtime configuration for cfsck.
type Config struct {
	APIURL       string       `toml:"api_url" validate:"required,url"`
	ConfigDBPath string       `toml:"config_db_path" validate:"required"`
	LogLevel     string       `toml:"log_level" validate:"omitempty,oneof=debug info warn warning error"`
	Repair       RepairConfig `toml:"repair"`
	S3           S3Config     `toml:"s3"`
}

// Default returns default configuration values.
func Default() Config {
	return Config{
		APIURL:   DefaultAPIURL,
		LogLevel: DefaultLogLevel,
		Repair: RepairConfig{
			FailureMode: DefaultFailureMode,
		},
		S3: S3Config{
			Region:     DefaultS3Region,
			MaxRetries: DefaultS3MaxRetries,
		},
	}
}

var validate = validator.New()

// Validate checks the struct tags of cfg.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return formatValidationError(err)
	}
	return nil
}

func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("invalid config: %s failed on '%s' (value: %v)", e.Namespace(), e.Tag(), e.Value())
	}
	return err
}

func loadFile(path string, cfg *Config) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if info.IsDir() {
		return nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

var allowedKeys = []string{
	"api_url",
	"config_db_path",
	"log_level",
	"repair.failure_mode",
	"repair.default_policy",
	"s3.region",
	"s3.endpoint",
	"s3.access_key_id",
	"s3.secret_access_key",
	"s3.max_retries",
}

// AllowedKeys returns the set of valid config keys.
func AllowedKeys() []string {
	return allowedKeys
}

// IsAllowedKey checks if a key is a valid config key.
func IsAllowedKey(key string) bool {
	for _, k := range allowedKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Get returns the value of a config key. The S3 secret is masked.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "api_url":
		return c.APIURL, nil
	case "config_db_path":
		return c.ConfigDBPath, nil
	case "log_level":
		return c.LogLevel, nil
	case "repair.failure_mode":
		return c.Repair.FailureMode, nil
	case "repair.default_policy":
		return c.Repair.DefaultPolicy, nil
	case "s3.region":
		return c.S3.Region, nil
	case "s3.endpoint":
		return c.S3.Endpoint, nil
	case "s3.access_key_id":
		return c.S3.AccessKeyID, nil
	case "s3.secret_access_key":
		if c.S3.SecretAccessKey == "" {
			return "", nil
		}
		return "********", nil
	case "s3.max_retries":
		return strconv.Itoa(c.S3.MaxRetries), nil
	default:
		return "", fmt.Errorf("unknown key: %s", key)
	}
}

// Path returns the config file path: $CFSCK_CONFIG_DIR/.cfsck.toml when
// set, ~/.cfsck.toml otherwise.
func Path() (string, error) {
	if dir := strings.TrimSpace(os.Getenv(configDirEnvKey)); dir != "" {
		return filepath.Join(dir, configFileName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, configFileName), nil
}

// SetKey reads the TOML file at path, sets key=value, and writes it back.
func SetKey(path, key, value string) error {
	if !IsAllowedKey(key) {
		return fmt.Errorf("unknown key: %s", key)
	}

	data := make(map[string]any)
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &data); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	}

	parsedValue, err := parseSetValue(key, value)
	if err != nil {
		return err
	}
	if err := setNestedKey(data, strings.Split(key, "."), parsedValue); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(data)
}

// Load reads the config file, applies env overrides and validates the result.
func Load() (*Config, error) {
	cfg := Default()

	path, err := Path()
	if err == nil {
		if err := loadFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	if apiURL := os.Getenv("CFSCK_API_URL"); apiURL != "" {
		cfg.APIURL = apiURL
	}
	if dbPath := os.Getenv("CFSCK_CONFIG_DB"); dbPath != "" {
		cfg.ConfigDBPath = dbPath
	}
	if level := os.Getenv("CFSCK_LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	if cfg.ConfigDBPath == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.ConfigDBPath = filepath.Join(home, DefaultConfigDBName)
		}
	}
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	cfg.Repair.FailureMode = strings.ToLower(strings.TrimSpace(cfg.Repair.FailureMode))
	if cfg.Repair.FailureMode == "" {
		cfg.Repair.FailureMode = DefaultFailureMode
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func parseSetValue(key, value string) (any, error) {
	value = strings.TrimSpace(value)
	switch key {
	case "s3.max_retries":
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed < 0 {
			return nil, fmt.Errorf("%s must be a non-negative integer", key)
		}
		return int64(parsed), nil
	case "repair.failure_mode":
		mode := strings.ToLower(value)
		if mode != "abort" && mode != "continue" {
			return nil, fmt.Errorf("%s must be abort or continue", key)
		}
		return mode, nil
	case "log_level":
		level := strings.ToLower(value)
		switch level {
		case "debug", "info", "warn", "warning", "error":
			return level, nil
		}
		return nil, fmt.Errorf("%s must be one of debug, info, warn, error", key)
	default:
		return value, nil
	}
}

func setNestedKey(data map[string]any, parts []string, value any) error {
	if len(parts) == 0 {
		return fmt.Errorf("invalid config key")
	}
	if len(parts) == 1 {
		data[parts[0]] = value
		return nil
	}
	childRaw, ok := data[parts[0]]
	if !ok {
		child := map[string]any{}
		data[parts[0]] = child
		return setNestedKey(child, parts[1:], value)
	}
	child, ok := childRaw.(map[string]any)
	if !ok {
		return fmt.Errorf("cannot set nested key %q", strings.Join(parts, "."))
	}
	return setNestedKey(child, parts[1:], value)
}
