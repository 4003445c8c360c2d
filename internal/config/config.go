package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the main application configuration
type Config struct {
	General GeneralConfig `toml:"general"`
	Session SessionConfig `toml:"session"`
	UI      UIConfig      `toml:"ui"`
	Logging LoggingConfig `toml:"logging"`
	Cache   CacheConfig   `toml:"cache"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	DataDir     string `toml:"data_dir"`
	AutoConnect bool   `toml:"auto_connect"`
}

// SessionConfig tunes the connection lifecycle.
type SessionConfig struct {
	// RosterTimeoutSeconds bounds the wait for the initial contact
	// list before the session continues in degraded mode.
	RosterTimeoutSeconds int `toml:"roster_timeout_seconds"`

	// ProfileFetchDelayMS is the pause between consecutive profile
	// card requests.
	ProfileFetchDelayMS int `toml:"profile_fetch_delay_ms"`
}

// UIConfig contains UI-related settings
type UIConfig struct {
	Theme          string `toml:"theme"`
	RosterWidth    int    `toml:"roster_width"`
	ShowTimestamps bool   `toml:"show_timestamps"`
	TimeFormat     string `toml:"time_format"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level   string `toml:"level"`
	File    string `toml:"file"`
	Console bool   `toml:"console"`
}

// CacheConfig controls the on-disk profile cache.
type CacheConfig struct {
	// Profiles enables caching fetched profile cards between sessions
	// so contact names and avatars show up before the first fetch.
	Profiles bool `toml:"profiles"`

	// Path overrides the cache database location.
	Path string `toml:"path"`
}

// Account represents an XMPP account configuration
type Account struct {
	JID         string `toml:"jid"`
	Password    string `toml:"password"`
	AutoConnect bool   `toml:"auto_connect"`
	Server      string `toml:"server"`
	Port        int    `toml:"port"`
	Resource    string `toml:"resource"`
}

// AccountsConfig contains all account configurations
type AccountsConfig struct {
	Accounts []Account `toml:"accounts"`
}

// Paths holds the XDG-compliant paths for the application
type Paths struct {
	ConfigDir string
	DataDir   string
	CacheDir  string
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		General: GeneralConfig{
			DataDir:     "",
			AutoConnect: true,
		},
		Session: SessionConfig{
			RosterTimeoutSeconds: 10,
			ProfileFetchDelayMS:  1000,
		},
		UI: UIConfig{
			Theme:          "plain",
			RosterWidth:    30,
			ShowTimestamps: true,
			TimeFormat:     "15:04",
		},
		Logging: LoggingConfig{
			Level:   "info",
			File:    "",
			Console: false,
		},
		Cache: CacheConfig{
			Profiles: false,
			Path:     "",
		},
	}
}

// RosterTimeout returns the roster wait bound as a duration.
func (c *SessionConfig) RosterTimeout() time.Duration {
	return time.Duration(c.RosterTimeoutSeconds) * time.Second
}

// ProfileFetchDelay returns the inter-fetch pause as a duration.
func (c *SessionConfig) ProfileFetchDelay() time.Duration {
	return time.Duration(c.ProfileFetchDelayMS) * time.Millisecond
}

// GetPaths returns XDG-compliant paths for the application
func GetPaths() (*Paths, error) {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(home, ".config")
	}
	configDir = filepath.Join(configDir, "filibuster")

	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".local", "share")
	}
	dataDir = filepath.Join(dataDir, "filibuster")

	cacheDir := os.Getenv("XDG_CACHE_HOME")
	if cacheDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		cacheDir = filepath.Join(home, ".cache")
	}
	cacheDir = filepath.Join(cacheDir, "filibuster")

	return &Paths{
		ConfigDir: configDir,
		DataDir:   dataDir,
		CacheDir:  cacheDir,
	}, nil
}

// EnsureDirectories creates the necessary directories
func (p *Paths) EnsureDirectories() error {
	dirs := []string{p.ConfigDir, p.DataDir, p.CacheDir}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// Load loads the configuration from the config file
func Load() (*Config, error) {
	paths, err := GetPaths()
	if err != nil {
		return nil, err
	}

	if err := paths.EnsureDirectories(); err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	configPath := filepath.Join(paths.ConfigDir, "config.toml")

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		// Config doesn't exist, use defaults
		cfg.General.DataDir = paths.DataDir
		cfg.Logging.File = filepath.Join(paths.DataDir, "filibuster.log")
		cfg.Cache.Path = filepath.Join(paths.CacheDir, "profiles.db")
		return cfg, nil
	}

	if _, err := toml.DecodeFile(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Expand paths
	if cfg.General.DataDir == "" {
		cfg.General.DataDir = paths.DataDir
	} else {
		cfg.General.DataDir = expandPath(cfg.General.DataDir)
	}

	if cfg.Logging.File == "" {
		cfg.Logging.File = filepath.Join(cfg.General.DataDir, "filibuster.log")
	} else {
		cfg.Logging.File = expandPath(cfg.Logging.File)
	}

	if cfg.Cache.Path == "" {
		cfg.Cache.Path = filepath.Join(paths.CacheDir, "profiles.db")
	} else {
		cfg.Cache.Path = expandPath(cfg.Cache.Path)
	}

	if cfg.Session.RosterTimeoutSeconds <= 0 {
		cfg.Session.RosterTimeoutSeconds = 10
	}
	if cfg.Session.ProfileFetchDelayMS <= 0 {
		cfg.Session.ProfileFetchDelayMS = 1000
	}

	return cfg, nil
}

// LoadAccounts loads account configurations
func LoadAccounts() (*AccountsConfig, error) {
	paths, err := GetPaths()
	if err != nil {
		return nil, err
	}

	accountsPath := filepath.Join(paths.ConfigDir, "accounts.toml")

	if _, err := os.Stat(accountsPath); os.IsNotExist(err) {
		return &AccountsConfig{Accounts: []Account{}}, nil
	}

	var accounts AccountsConfig
	if _, err := toml.DecodeFile(accountsPath, &accounts); err != nil {
		return nil, fmt.Errorf("failed to parse accounts file: %w", err)
	}

	// Set defaults for accounts
	for i := range accounts.Accounts {
		if accounts.Accounts[i].Port == 0 {
			accounts.Accounts[i].Port = 5222
		}
		if accounts.Accounts[i].Resource == "" {
			accounts.Accounts[i].Resource = "filibuster"
		}
	}

	return &accounts, nil
}

// Save saves the configuration to the config file
func Save(cfg *Config) error {
	paths, err := GetPaths()
	if err != nil {
		return err
	}

	configPath := filepath.Join(paths.ConfigDir, "config.toml")
	f, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	return nil
}

// SaveAccounts saves account configurations
func SaveAccounts(accounts *AccountsConfig) error {
	paths, err := GetPaths()
	if err != nil {
		return err
	}

	accountsPath := filepath.Join(paths.ConfigDir, "accounts.toml")
	f, err := os.Create(accountsPath)
	if err != nil {
		return fmt.Errorf("failed to create accounts file: %w", err)
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	if err := encoder.Encode(accounts); err != nil {
		return fmt.Errorf("failed to encode accounts: %w", err)
	}

	return nil
}

// expandPath expands ~ to home directory
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
