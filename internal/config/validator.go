package config

import (
	"errors"
	"fmt"

	"github.com/ayusman/mudra/internal/broker"
	"github.com/ayusman/mudra/internal/command"
	"github.com/ayusman/mudra/internal/publish"
)

// Validate checks the configuration for values the pipeline cannot run with.
// All problems are reported together.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Stability.Threshold < 1 {
		errs = append(errs, fmt.Errorf("stability.threshold must be >= 1, got %d", cfg.Stability.Threshold))
	}

	if _, err := command.NewMapper(cfg.Mapping); err != nil {
		errs = append(errs, fmt.Errorf("mapping: %w", err))
	}

	if cfg.MQTT.CommandTopic == "" {
		errs = append(errs, errors.New("mqtt.command_topic is required"))
	}
	if cfg.MQTT.QoS > 2 {
		errs = append(errs, fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", cfg.MQTT.QoS))
	}
	if cfg.MQTT.URL == "" && !cfg.MQTT.Discover {
		errs = append(errs, errors.New("mqtt.url is required unless mqtt.discover is set"))
	}
	if cfg.MQTT.URL != "" {
		if _, err := broker.ParseURL(cfg.MQTT.URL); err != nil {
			errs = append(errs, fmt.Errorf("mqtt.url: %w", err))
		}
	}
	if _, err := command.CodecFor(cfg.MQTT.PayloadFormat); err != nil {
		errs = append(errs, fmt.Errorf("mqtt.payload_format: %w", err))
	}

	if _, err := publish.ParsePolicy(cfg.Publish.CommitPolicy); err != nil {
		errs = append(errs, fmt.Errorf("publish.commit_policy: %w", err))
	}

	if cfg.Detector.MinConfidence < 0 || cfg.Detector.MinConfidence > 1 {
		errs = append(errs, fmt.Errorf("detector.min_confidence must be within [0, 1], got %v", cfg.Detector.MinConfidence))
	}

	if cfg.Camera.MotionThreshold < 0 || cfg.Camera.MotionThreshold > 100 {
		errs = append(errs, fmt.Errorf("camera.motion_threshold must be within [0, 100], got %v", cfg.Camera.MotionThreshold))
	}

	if cfg.Store.Retention < 0 {
		errs = append(errs, fmt.Errorf("store.retention must not be negative, got %s", cfg.Store.Retention))
	}

	if cfg.Server.Enabled && cfg.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required when the server is enabled"))
	}

	return errors.Join(errs...)
}
