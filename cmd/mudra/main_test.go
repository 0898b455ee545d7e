package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/mudra/internal/broker"
	"github.com/ayusman/mudra/internal/config"
)

func TestBrokerURL(t *testing.T) {
	found := func(context.Context, time.Duration) (string, error) {
		return "tcp://lamp-hub.local:1883", nil
	}
	silent := func(context.Context, time.Duration) (string, error) {
		return "", broker.ErrNoBroker
	}

	tests := []struct {
		name     string
		cfg      config.MQTTConfig
		discover func(context.Context, time.Duration) (string, error)
		want     string
		wantErr  bool
	}{
		{name: "discovery off uses url", cfg: config.MQTTConfig{URL: "mqtt://10.0.0.2:1883"}, discover: found, want: "mqtt://10.0.0.2:1883"},
		{name: "discovered broker wins", cfg: config.MQTTConfig{URL: "mqtt://10.0.0.2:1883", Discover: true}, discover: found, want: "tcp://lamp-hub.local:1883"},
		{name: "discovery only", cfg: config.MQTTConfig{Discover: true}, discover: found, want: "tcp://lamp-hub.local:1883"},
		{name: "falls back to url", cfg: config.MQTTConfig{URL: "mqtt://10.0.0.2:1883", Discover: true}, discover: silent, want: "mqtt://10.0.0.2:1883"},
		{name: "nothing to fall back to", cfg: config.MQTTConfig{Discover: true}, discover: silent, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := brokerURL(context.Background(), tt.cfg, tt.discover)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, broker.ErrNoBroker))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBrokerURL_DiscoveryOffNeverBrowses(t *testing.T) {
	called := false
	discover := func(context.Context, time.Duration) (string, error) {
		called = true
		return "", nil
	}

	_, err := brokerURL(context.Background(), config.MQTTConfig{URL: "mqtt://localhost:1883"}, discover)
	require.NoError(t, err)
	assert.False(t, called)
}
