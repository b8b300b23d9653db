package config

import (
	"encoding/json"
	"os"
	"os/user"
	"path/filepath"

	"github.com/joho/godotenv"

	"aula/pkg/errors"
)

// Config holds application configuration
type Config struct {
	// DataPath is the directory holding the SQLite object store.
	DataPath string `json:"dataPath"`
	// ListenAddr is the address the API server binds to.
	ListenAddr string `json:"listenAddr"`
	// GatewayAddr is the address the caching gateway binds to.
	GatewayAddr string `json:"gatewayAddr"`
	// BackendURL is the base URL of the recordings backend.
	BackendURL string `json:"backendUrl"`
	// UpstreamURL is the origin the gateway proxies and caches.
	UpstreamURL string `json:"upstreamUrl"`
	// UserID scopes remote recording fetches.
	UserID string `json:"userId"`
	// CacheVersion names the static-shell cache generation.
	CacheVersion string `json:"cacheVersion"`
	// AssetsDir, when set, is watched for changes to refresh the
	// shell cache.
	AssetsDir string `json:"assetsDir"`
}

// DatabasePath returns the object store file inside the data directory
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataPath, "aula.db")
}

// GetDefaultDataPath returns the default directory for the object store
func GetDefaultDataPath() string {
	currentUser, err := user.Current()
	if err != nil {
		return "./data"
	}

	defaultPath := filepath.Join(currentUser.HomeDir, ".local", "share", "aula")
	if err := os.MkdirAll(defaultPath, 0755); err != nil {
		return "./data"
	}

	return defaultPath
}

// GetConfigFilePath returns the path where the config file should be stored
func GetConfigFilePath() string {
	currentUser, err := user.Current()
	if err != nil {
		return "./config.json"
	}

	configPath := filepath.Join(currentUser.HomeDir, ".config", "aula")
	if err := os.MkdirAll(configPath, 0755); err != nil {
		return "./config.json"
	}

	return filepath.Join(configPath, "config.json")
}

// Load loads configuration from file and environment, using defaults
// where neither provides a value. A .env file in the working directory
// is read first; real environment variables win over it.
func Load() (*Config, error) {
	godotenv.Load()

	config := &Config{
		DataPath:     GetDefaultDataPath(),
		ListenAddr:   ":8080",
		GatewayAddr:  ":8081",
		UserID:       "default",
		CacheVersion: "v1",
	}

	configFile := GetConfigFilePath()
	if data, err := os.ReadFile(configFile); err == nil {
		if err := json.Unmarshal(data, config); err != nil {
			return nil, errors.ErrConfigLoadFailed.WithInternal(err).WithContext("file", configFile)
		}
	}

	applyEnv(config)

	if err := os.MkdirAll(config.DataPath, 0755); err != nil {
		return nil, errors.ErrConfigLoadFailed.WithInternal(err).WithContext("path", config.DataPath)
	}

	return config, nil
}

// applyEnv overrides file values with environment variables
func applyEnv(c *Config) {
	set := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	set("AULA_DATA_PATH", &c.DataPath)
	set("AULA_LISTEN_ADDR", &c.ListenAddr)
	set("AULA_GATEWAY_ADDR", &c.GatewayAddr)
	set("AULA_BACKEND_URL", &c.BackendURL)
	set("AULA_UPSTREAM_URL", &c.UpstreamURL)
	set("AULA_USER_ID", &c.UserID)
	set("AULA_CACHE_VERSION", &c.CacheVersion)
	set("AULA_ASSETS_DIR", &c.AssetsDir)
}

// Save saves the configuration to file
func (c *Config) Save() error {
	configFile := GetConfigFilePath()

	configDir := filepath.Dir(configFile)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(configFile, data, 0644)
}
