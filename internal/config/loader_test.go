package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestLoad(t *testing.T) {
	Convey("Given a clean environment", t, func() {
		for _, key := range []string{
			"MMDVM_CONFIG",
			"MMDVM_LOG_LEVEL",
			"MMDVM_API__ADDR",
			"MMDVM_STATE_MACHINE__QSO_TIMEOUT_SECONDS",
			"MMDVM_STATE_MACHINE__QSO_HISTORY_SIZE",
		} {
			So(os.Unsetenv(key), ShouldBeNil)
		}

		Convey("Load with nothing set returns the defaults", func() {
			cfg, err := Load(context.Background())

			So(err, ShouldBeNil)
			So(cfg.LogLevel, ShouldEqual, "info")
			So(cfg.LogMonitoring.LogPathPattern, ShouldEqual, "/var/log/mmdvm/MMDVM-*.log")
			So(cfg.LogMonitoring.RotationCheckIntervalMS, ShouldEqual, 500)
			So(cfg.StateMachine.QSOHistorySize, ShouldEqual, 100)
			So(cfg.StateMachine.QSOTimeoutSeconds, ShouldEqual, 30)
			So(cfg.API.Addr, ShouldEqual, ":8080")
			So(cfg.WebSocket.MaxConnections, ShouldEqual, 50)
			So(cfg.StateMachine.SupportedModes, ShouldContain, "DMR")
		})

		Convey("Environment variables override defaults", func() {
			t.Setenv("MMDVM_LOG_LEVEL", "debug")
			t.Setenv("MMDVM_API__ADDR", ":9090")
			t.Setenv("MMDVM_STATE_MACHINE__QSO_TIMEOUT_SECONDS", "120")

			cfg, err := Load(context.Background())

			So(err, ShouldBeNil)
			So(cfg.LogLevel, ShouldEqual, "debug")
			So(cfg.API.Addr, ShouldEqual, ":9090")
			So(cfg.StateMachine.QSOTimeoutSeconds, ShouldEqual, 120)
			// Untouched keys keep their defaults.
			So(cfg.StateMachine.QSOHistorySize, ShouldEqual, 100)
		})

		Convey("A YAML file overrides defaults and env overrides the file", func() {
			path := filepath.Join(t.TempDir(), "config.yaml")
			yaml := []byte("log_level: warn\nstate_machine:\n  qso_history_size: 250\n  qso_timeout_seconds: 60\n")
			So(os.WriteFile(path, yaml, 0o644), ShouldBeNil)
			t.Setenv("MMDVM_CONFIG", path)
			t.Setenv("MMDVM_STATE_MACHINE__QSO_TIMEOUT_SECONDS", "90")

			cfg, err := Load(context.Background())

			So(err, ShouldBeNil)
			So(cfg.LogLevel, ShouldEqual, "warn")
			So(cfg.StateMachine.QSOHistorySize, ShouldEqual, 250)
			So(cfg.StateMachine.QSOTimeoutSeconds, ShouldEqual, 90)
		})

		Convey("A missing config file fails with ErrLoadConfig", func() {
			t.Setenv("MMDVM_CONFIG", filepath.Join(t.TempDir(), "nope.yaml"))

			_, err := Load(context.Background())

			So(err, ShouldNotBeNil)
			So(err, ShouldWrap, ErrLoadConfig)
		})

		Convey("Out-of-range values fail validation", func() {
			t.Setenv("MMDVM_STATE_MACHINE__QSO_HISTORY_SIZE", "0")

			_, err := Load(context.Background())

			So(err, ShouldNotBeNil)
			So(err, ShouldWrap, ErrInvalidConfig)
		})
	})
}

func TestValidate(t *testing.T) {
	Convey("Validate rejects each out-of-bounds field", t, func() {
		cases := []struct {
			name   string
			mutate func(*Config)
		}{
			{"empty addr", func(c *Config) { c.API.Addr = "" }},
			{"empty pattern", func(c *Config) { c.LogMonitoring.LogPathPattern = "" }},
			{"zero poll interval", func(c *Config) { c.LogMonitoring.RotationCheckIntervalMS = 0 }},
			{"zero read buffer", func(c *Config) { c.LogMonitoring.ReadBufferSize = 0 }},
			{"history too large", func(c *Config) { c.StateMachine.QSOHistorySize = 10001 }},
			{"timeout too large", func(c *Config) { c.StateMachine.QSOTimeoutSeconds = 3601 }},
			{"too many connections", func(c *Config) { c.WebSocket.MaxConnections = 1001 }},
			{"zero send queue", func(c *Config) { c.WebSocket.SendQueueSize = 0 }},
		}

		for _, tc := range cases {
			Convey(tc.name, func() {
				cfg := New()
				tc.mutate(cfg)
				So(cfg.Validate(), ShouldWrap, ErrInvalidConfig)
			})
		}

		Convey("defaults pass", func() {
			So(New().Validate(), ShouldBeNil)
		})
	})
}
