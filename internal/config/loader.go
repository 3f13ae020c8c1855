package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, an optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if MMDVM_CONFIG is set
//  3. env (prefix MMDVM_, nested keys joined with __)
func Load(_ context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv("MMDVM_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
		}
	}

	// MMDVM_LOG_LEVEL -> log_level, MMDVM_STATE_MACHINE__QSO_TIMEOUT_SECONDS
	// -> state_machine.qso_timeout_seconds.
	envProvider := env.Provider("MMDVM_", ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, "MMDVM_"))
		return strings.ReplaceAll(s, "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks configured bounds before the service starts.
func (c *Config) Validate() error {
	switch {
	case c.API.Addr == "":
		return fmt.Errorf("%w: api.addr must not be empty", ErrInvalidConfig)
	case c.LogMonitoring.LogPathPattern == "":
		return fmt.Errorf("%w: log_monitoring.log_path_pattern must not be empty", ErrInvalidConfig)
	case c.LogMonitoring.RotationCheckIntervalMS < 1:
		return fmt.Errorf("%w: log_monitoring.rotation_check_interval_ms must be positive", ErrInvalidConfig)
	case c.LogMonitoring.ReadBufferSize < 1:
		return fmt.Errorf("%w: log_monitoring.read_buffer_size must be positive", ErrInvalidConfig)
	case c.StateMachine.QSOHistorySize < 1 || c.StateMachine.QSOHistorySize > 10000:
		return fmt.Errorf("%w: state_machine.qso_history_size must be between 1 and 10000", ErrInvalidConfig)
	case c.StateMachine.QSOTimeoutSeconds < 1 || c.StateMachine.QSOTimeoutSeconds > 3600:
		return fmt.Errorf("%w: state_machine.qso_timeout_seconds must be between 1 and 3600", ErrInvalidConfig)
	case c.WebSocket.MaxConnections < 1 || c.WebSocket.MaxConnections > 1000:
		return fmt.Errorf("%w: websocket.max_connections must be between 1 and 1000", ErrInvalidConfig)
	case c.WebSocket.SendQueueSize < 1:
		return fmt.Errorf("%w: websocket.send_queue_size must be positive", ErrInvalidConfig)
	}
	return nil
}
