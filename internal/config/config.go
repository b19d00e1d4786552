package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for recipebox.
type Config struct {
	DeviceID     string             `toml:"device_id"`
	BaseDir      string             `toml:"base_dir"`
	LogDir       string             `toml:"log_dir"`
	Database     DatabaseConfig     `toml:"database"`
	Remote       RemoteConfig       `toml:"remote"`
	Encryption   EncryptionConfig   `toml:"encryption"`
	Assets       AssetsConfig       `toml:"assets"`
	Connectivity ConnectivityConfig `toml:"connectivity"`
}

// DatabaseConfig represents configuration for the local store.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// RemoteConfig represents configuration for the remote backend.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type RemoteConfig struct {
	Type string `toml:"type"` // "memory", "filesystem", "s3" or "http"

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSRoot string `toml:"fs_root,omitempty"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket    string `toml:"s3_bucket,omitempty"`
	S3Prefix    string `toml:"s3_prefix,omitempty"`
	S3Region    string `toml:"s3_region,omitempty"`
	S3Endpoint  string `toml:"s3_endpoint,omitempty"` // S3-compatible stores such as MinIO
	S3AccessKey string `toml:"s3_access_key,omitempty"`
	S3SecretKey string `toml:"s3_secret_key,omitempty"`

	// HTTP-specific fields (only used when Type == "http")
	BaseURL        string `toml:"base_url,omitempty"`
	Token          string `toml:"token,omitempty"`
	TimeoutSeconds int    `toml:"timeout_seconds,omitempty"`
}

// Timeout returns the HTTP client timeout, defaulting to 10 seconds.
func (r RemoteConfig) Timeout() time.Duration {
	if r.TimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(r.TimeoutSeconds) * time.Second
}

// EncryptionConfig holds paths to the age key pair used to encrypt remote documents.
type EncryptionConfig struct {
	Enabled        bool   `toml:"enabled"`
	Type           string `toml:"type"` // "age" (default) or "test"
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// AssetsConfig restricts which files may be uploaded as recipe images.
type AssetsConfig struct {
	Allowed []string `toml:"allowed"`  // glob patterns matched against the file name
	MaxSize int64    `toml:"max_size"` // bytes; zero means the default
}

// ConnectivityConfig controls how often the remote is probed.
type ConnectivityConfig struct {
	IntervalSeconds int `toml:"interval_seconds"`
	TimeoutSeconds  int `toml:"timeout_seconds"`
}

// Interval returns the probe interval, defaulting to 30 seconds.
func (c ConnectivityConfig) Interval() time.Duration {
	if c.IntervalSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.IntervalSeconds) * time.Second
}

// Timeout returns the per-probe timeout, defaulting to 5 seconds.
func (c ConnectivityConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// NewConfig creates a new Config with the provided values and default paths.
func NewConfig(deviceID, baseDir string) *Config {
	return &Config{
		DeviceID: deviceID,
		BaseDir:  baseDir,
		LogDir:   filepath.Join(baseDir, "log"),
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "data"),
		},
		Remote: RemoteConfig{
			Type:   "filesystem",
			FSRoot: filepath.Join(baseDir, "remote"),
		},
		Encryption: EncryptionConfig{
			Type:           "age",
			PublicKeyPath:  filepath.Join(baseDir, "keys", "recipebox.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "recipebox.key"),
		},
		Assets: AssetsConfig{
			Allowed: []string{"*.jpg", "*.jpeg", "*.png", "*.gif", "*.webp"},
			MaxSize: 5 << 20,
		},
		Connectivity: ConnectivityConfig{
			IntervalSeconds: 30,
			TimeoutSeconds:  5,
		},
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path, creating its directory.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
