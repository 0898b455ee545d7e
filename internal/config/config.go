// Package config loads the mudra configuration from YAML and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ayusman/mudra/internal/command"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/stability"
)

// Environment variables read by Load, named as in the original lamp tooling.
const (
	EnvMQTTURL      = "MQTT_URL"
	EnvMQTTUsername = "MQTT_USERNAME"
	EnvMQTTPassword = "MQTT_PASSWORD"
	EnvCommandTopic = "MQTT_COMMAND_TOPIC"
)

// DefaultCommandTopic is the topic the lamp firmware subscribes to.
const DefaultCommandTopic = "lampada/command"

// Config represents the complete mudra configuration.
type Config struct {
	Camera    CameraConfig          `yaml:"camera"`
	Detector  detector.Config       `yaml:"detector"`
	Stability StabilityConfig       `yaml:"stability"`
	Mapping   map[int]command.Level `yaml:"mapping"`
	MQTT      MQTTConfig            `yaml:"mqtt"`
	Publish   PublishConfig         `yaml:"publish"`
	Server    ServerConfig          `yaml:"server"`
	Store     StoreConfig           `yaml:"store"`
	Display   DisplayConfig         `yaml:"display"`
}

// CameraConfig contains capture settings.
type CameraConfig struct {
	Device string `yaml:"device"` // index ("0") or stream URL
	Width  int    `yaml:"width"`
	Height int    `yaml:"height"`
	FPS    int    `yaml:"fps"`
	Mirror bool   `yaml:"mirror"`

	// MotionThreshold skips hand detection on still, empty scenes when > 0.
	MotionThreshold float64 `yaml:"motion_threshold"`
}

// StabilityConfig contains debouncing settings.
type StabilityConfig struct {
	Threshold       int `yaml:"threshold"`         // identical frames before a count is stable
	MaxReadFailures int `yaml:"max_read_failures"` // consecutive camera failures before giving up
}

// MQTTConfig contains broker settings.
type MQTTConfig struct {
	URL           string `yaml:"url"`
	Username      string `yaml:"username"`
	Password      string `yaml:"password"`
	ClientID      string `yaml:"client_id"`
	CommandTopic  string `yaml:"command_topic"`
	QoS           byte   `yaml:"qos"`
	Retain        bool   `yaml:"retain"`
	Discover      bool   `yaml:"discover"` // browse mDNS when URL is empty
	PayloadFormat string `yaml:"payload_format"`
}

// PublishConfig contains change-gate settings.
type PublishConfig struct {
	CommitPolicy string `yaml:"commit_policy"` // always | on_success
}

// ServerConfig contains HTTP status server settings.
type ServerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// StoreConfig contains publish journal settings.
type StoreConfig struct {
	Path      string        `yaml:"path"`      // empty disables the journal
	Retention time.Duration `yaml:"retention"` // prune older entries on startup; 0 keeps all
}

// DisplayConfig selects the status displays.
type DisplayConfig struct {
	Window bool `yaml:"window"`
	Tray   bool `yaml:"tray"`
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{
		Camera: CameraConfig{
			Device: "0",
			Width:  640,
			Height: 480,
			FPS:    15,
			Mirror: true,
		},
		Detector: detector.DefaultConfig(),
		Stability: StabilityConfig{
			Threshold:       stability.DefaultThreshold,
			MaxReadFailures: 100,
		},
		Mapping: command.DefaultMapping(),
		MQTT: MQTTConfig{
			URL:           "mqtt://localhost:1883",
			CommandTopic:  DefaultCommandTopic,
			PayloadFormat: command.FormatJSON,
		},
		Publish: PublishConfig{
			CommitPolicy: "always",
		},
		Server: ServerConfig{
			Enabled: true,
			Addr:    ":8080",
		},
		Display: DisplayConfig{
			Window: true,
		},
	}
	if path, err := DefaultStorePath(); err == nil {
		cfg.Store.Path = path
	}
	return cfg
}

// DefaultStorePath returns ~/.mudra/mudra.db.
func DefaultStorePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".mudra", "mudra.db"), nil
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. A missing file at path is not an error; an empty
// path skips the file entirely.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		default:
			// A mapping section replaces the default table instead of merging into it.
			cfg.Mapping = nil
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
			if cfg.Mapping == nil {
				cfg.Mapping = command.DefaultMapping()
			}
		}
	}

	cfg.applyEnv(os.LookupEnv)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnv overrides MQTT settings from the environment.
func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvMQTTURL); ok && v != "" {
		c.MQTT.URL = v
	}
	if v, ok := lookup(EnvMQTTUsername); ok {
		c.MQTT.Username = v
	}
	if v, ok := lookup(EnvMQTTPassword); ok {
		c.MQTT.Password = v
	}
	if v, ok := lookup(EnvCommandTopic); ok && v != "" {
		c.MQTT.CommandTopic = v
	}
}
