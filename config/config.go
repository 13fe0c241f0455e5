package config

import (
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	mu sync.Mutex `yaml:"-"`

	ShipperID    string `yaml:"shipper_id"`
	DatabasePath string `yaml:"database_path"`

	API      APIConfig      `yaml:"api"`
	Realtime RealtimeConfig `yaml:"realtime"`
	Queue    QueueConfig    `yaml:"queue"`
	Web      WebConfig      `yaml:"web"`
}

// APIConfig defines the backend REST endpoint.
type APIConfig struct {
	BaseURL string        `yaml:"base_url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

// RealtimeConfig defines the MQTT broker connection.
type RealtimeConfig struct {
	Broker      string `yaml:"broker"`
	Port        int    `yaml:"port"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
}

// QueueConfig defines offline-queue drain behavior.
type QueueConfig struct {
	DrainInterval time.Duration `yaml:"drain_interval"`
}

// WebConfig defines the local diagnostics console.
type WebConfig struct {
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	SessionSecret string `yaml:"session_secret"`
	PasscodeHash  string `yaml:"passcode_hash"`
}

// Defaults returns a Config with sane defaults.
func Defaults() *Config {
	return &Config{
		DatabasePath: "courierlink.db",
		API: APIConfig{
			BaseURL: "http://localhost:8080/api/shipper",
			Timeout: 10 * time.Second,
		},
		Realtime: RealtimeConfig{
			Broker:      "localhost",
			Port:        1883,
			TopicPrefix: "courierlink",
		},
		Queue: QueueConfig{
			DrainInterval: 15 * time.Second,
		},
		Web: WebConfig{
			Host: "127.0.0.1",
			Port: 8099,
		},
	}
}

// Load reads a YAML config file. If the file doesn't exist, defaults are used.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config to a YAML file.
func (c *Config) Save(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ClientID returns the configured MQTT client ID, or derives one from the
// shipper identity.
func (c *Config) ClientID() string {
	if c.Realtime.ClientID != "" {
		return c.Realtime.ClientID
	}
	return "courierlink-" + c.ShipperID
}
