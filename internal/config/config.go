package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultAPIURL    = "http://localhost:3001/api"
	DefaultTimeout   = 10 * time.Second
	DefaultStateDir  = "~/.library"
	// DefaultLoginLimit login attempts per email are allowed each
	// DefaultLoginWindow. A negative loginLimit disables the throttle.
	DefaultLoginLimit  = 5
	DefaultLoginWindow = 15 * time.Minute
	StorageFile      = "file"
	StorageRedis     = "redis"
	configFileName   = "config.yaml"
	defaultLogLevel  = "info"
	defaultLogFormat = "text"
)

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	APIURL        string `yaml:"apiURL"`
	Timeout       string `yaml:"timeout"`
	LogLevel      string `yaml:"logLevel"`
	LogFormat     string `yaml:"logFormat"`
	Storage       string `yaml:"storage"`
	StateDir      string `yaml:"stateDir"`
	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`
	RedisPrefix   string `yaml:"redisPrefix"`
	LoginLimit    int    `yaml:"loginLimit"`
	LoginWindow   string `yaml:"loginWindow"`

	// RequestTimeout is Timeout parsed.
	RequestTimeout time.Duration `yaml:"-"`
	// LoginWindowDuration is LoginWindow parsed.
	LoginWindowDuration time.Duration `yaml:"-"`
}

// DefaultPath is the config file looked up when no path is given.
func DefaultPath() string {
	return filepath.Join(expandHome(DefaultStateDir), configFileName)
}

// Load reads config from path. An empty path uses DefaultPath and tolerates
// a missing file; an explicit path must exist.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if v := os.Getenv("LIBRARY_API_URL"); v != "" {
		cfg.APIURL = strings.TrimSpace(v)
	}
	if v := os.Getenv("LIBRARY_TIMEOUT"); v != "" {
		cfg.Timeout = strings.TrimSpace(v)
	}
	if v := os.Getenv("LIBRARY_LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.TrimSpace(v)
	}
	if v := os.Getenv("LIBRARY_LOG_FORMAT"); v != "" {
		cfg.LogFormat = strings.TrimSpace(v)
	}
	if v := os.Getenv("LIBRARY_STORAGE"); v != "" {
		cfg.Storage = strings.TrimSpace(v)
	}
	if v := os.Getenv("LIBRARY_STATE_DIR"); v != "" {
		cfg.StateDir = strings.TrimSpace(v)
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("LIBRARY_REDIS_PREFIX"); v != "" {
		cfg.RedisPrefix = strings.TrimSpace(v)
	}
	if v := os.Getenv("LIBRARY_LOGIN_LIMIT"); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return cfg, fmt.Errorf("invalid LIBRARY_LOGIN_LIMIT: %w", err)
		}
		cfg.LoginLimit = n
	}
	if v := os.Getenv("LIBRARY_LOGIN_WINDOW"); v != "" {
		cfg.LoginWindow = strings.TrimSpace(v)
	}

	applyDefaults(&cfg)
	timeout, err := ParseTimeout(cfg.Timeout)
	if err != nil {
		return cfg, err
	}
	cfg.RequestTimeout = timeout
	cfg.LoginWindowDuration = DefaultLoginWindow
	if cfg.LoginWindow != "" {
		window, err := time.ParseDuration(cfg.LoginWindow)
		if err != nil {
			return cfg, fmt.Errorf("invalid loginWindow duration: %w", err)
		}
		cfg.LoginWindowDuration = window
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *FileConfig) {
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaultLogLevel
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = defaultLogFormat
	}
	cfg.Storage = strings.ToLower(cfg.Storage)
	if cfg.Storage == "" {
		cfg.Storage = StorageFile
	}
	if cfg.StateDir == "" {
		cfg.StateDir = DefaultStateDir
	}
	cfg.StateDir = expandHome(cfg.StateDir)
	if cfg.LoginLimit == 0 {
		cfg.LoginLimit = DefaultLoginLimit
	}
}

// LoginThrottled reports whether login attempts are rate limited.
func (c FileConfig) LoginThrottled() bool {
	return c.LoginLimit > 0
}

func validateConfig(cfg FileConfig) error {
	if !strings.HasPrefix(cfg.APIURL, "http://") && !strings.HasPrefix(cfg.APIURL, "https://") {
		return fmt.Errorf("config: apiURL must be an http(s) URL, got %q", cfg.APIURL)
	}
	if cfg.RequestTimeout <= 0 {
		return errors.New("config: timeout must be > 0")
	}
	if cfg.LoginWindowDuration <= 0 {
		return errors.New("config: loginWindow must be > 0")
	}
	switch cfg.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("config: logFormat must be text or json, got %q", cfg.LogFormat)
	}
	switch cfg.Storage {
	case StorageFile:
		if strings.TrimSpace(cfg.StateDir) == "" {
			return errors.New("config: stateDir is required for file storage")
		}
	case StorageRedis:
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return errors.New("config: redisAddr is required for redis storage (set in config.yaml or REDIS_ADDR)")
		}
	default:
		return fmt.Errorf("config: storage must be file or redis, got %q", cfg.Storage)
	}
	return nil
}

// ParseTimeout parses an optional duration string; empty means DefaultTimeout.
func ParseTimeout(value string) (time.Duration, error) {
	if value == "" {
		return DefaultTimeout, nil
	}
	dur, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout duration: %w", err)
	}
	return dur, nil
}

// APIBase is the server root used for static assets such as cover images.
func (c FileConfig) APIBase() string {
	return strings.TrimSuffix(strings.TrimRight(c.APIURL, "/"), "/api")
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
