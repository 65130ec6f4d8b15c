package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

const (
	AppName         = "streamcore"
	AppTagline      = "Streaming audio player"
	AppDescription  = "Plays local files, HTTP streams, ICY radio and HLS from the terminal"
	AppProjectURL   = "https://github.com/glebovdev/streamcore"
	AppProjectShort = "github.com/glebovdev/streamcore"

	ConfigDir      = ".config/streamcore"
	ConfigFileName = "config.yml"
	DefaultVolume  = 1.0
	MinVolume      = 0.0
	MaxVolume      = 2.0

	DefaultLogLevel = "info"
)

// ClampVolume keeps a linear gain within [MinVolume, MaxVolume].
func ClampVolume(volume float64) float64 {
	if volume < MinVolume {
		return MinVolume
	}
	if volume > MaxVolume {
		return MaxVolume
	}
	return volume
}

// AppVersion can be overridden at build time using ldflags:
// go build -ldflags "-X github.com/glebovdev/streamcore/internal/config.AppVersion=1.0.0"
var AppVersion = "dev"

type Config struct {
	Volume             float64  `yaml:"volume"`
	UserAgent          string   `yaml:"user_agent"`
	AcceptInvalidCerts bool     `yaml:"accept_invalid_certs"`
	TrustedRoots       []string `yaml:"trusted_roots"`
	MetricsAddr        string   `yaml:"metrics_addr"`
	LogLevel           string   `yaml:"log_level"`
}

func GetConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	configPath := filepath.Join(home, ConfigDir, ConfigFileName)
	return configPath, nil
}

func Load() (*Config, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return DefaultConfig(), err
	}
	return LoadFile(configPath)
}

// LoadFile reads the config at path. A missing file yields the defaults.
func LoadFile(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return DefaultConfig(), fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.Volume = ClampVolume(cfg.Volume)
	if _, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel)); err != nil || cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}

	return cfg, nil
}

// Save writes the configuration to the default path.
func (c *Config) Save() error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}
	return c.SaveFile(configPath)
}

// SaveFile writes the configuration to disk atomically using temp file + rename.
func (c *Config) SaveFile(configPath string) error {
	configDir := filepath.Dir(configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	tmpFile, err := os.CreateTemp(configDir, ".config-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	defer func() {
		if tmpPath != "" {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, configPath); err != nil {
		return fmt.Errorf("failed to rename config file: %w", err)
	}

	tmpPath = "" // Prevent defer from removing the final file
	return nil
}

func DefaultConfig() *Config {
	return &Config{
		Volume:       DefaultVolume,
		TrustedRoots: []string{},
		LogLevel:     DefaultLogLevel,
	}
}

// Level returns the configured zerolog level, falling back to info.
func (c *Config) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil || c.LogLevel == "" {
		return zerolog.InfoLevel
	}
	return level
}

// ReadTrustedRoots loads every PEM file named in TrustedRoots. Relative paths
// are taken from the config directory.
func (c *Config) ReadTrustedRoots() ([][]byte, error) {
	var baseDir string
	if configPath, err := GetConfigPath(); err == nil {
		baseDir = filepath.Dir(configPath)
	}

	pems := make([][]byte, 0, len(c.TrustedRoots))
	for _, p := range c.TrustedRoots {
		if !filepath.IsAbs(p) && baseDir != "" {
			p = filepath.Join(baseDir, p)
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("failed to read trusted root: %w", err)
		}
		pems = append(pems, data)
	}
	return pems, nil
}
