// Package config loads runtime configuration for the saga runner and the
// demo upload service.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Service ServiceConfig `yaml:"service"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
	Env  string `yaml:"env"`
}

type StorageConfig struct {
	DataDir  string `yaml:"data_dir"`
	StateDir string `yaml:"state_dir"`
}

type ServiceConfig struct {
	URL            string `yaml:"url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// Timeout returns the configured HTTP client timeout.
func (s ServiceConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// Default returns the configuration used when no file is given: local
// directories under ./data and the upload service on localhost.
func Default() *Config {
	return &Config{
		Server:  ServerConfig{Port: "8089", Env: "dev"},
		Storage: StorageConfig{DataDir: "data", StateDir: "data/state"},
		Service: ServiceConfig{URL: "http://localhost:8089", TimeoutSeconds: 30},
	}
}

func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cfg := Default()
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
