// Package config defines service configuration structures and loading hooks.
package config

// LogMonitoring configures the log tailer.
type LogMonitoring struct {
	// LogDirectory is the directory containing MMDVMHost log files.
	LogDirectory string `koanf:"log_directory"`

	// LogPathPattern is the glob matching the controller's log files.
	LogPathPattern string `koanf:"log_path_pattern"`

	// RotationCheckIntervalMS is the poll interval for new data and
	// rotation detection, in milliseconds.
	RotationCheckIntervalMS int `koanf:"rotation_check_interval_ms"`

	// ReadBufferSize is the tailer's read buffer size in bytes.
	ReadBufferSize int `koanf:"read_buffer_size"`
}

// StateMachine configures QSO tracking.
type StateMachine struct {
	// QSOHistorySize bounds the completed-QSO FIFO (1-10000).
	QSOHistorySize int `koanf:"qso_history_size"`

	// QSOTimeoutSeconds finalizes QSOs with no activity for this long (1-3600).
	QSOTimeoutSeconds int `koanf:"qso_timeout_seconds"`

	// SupportedModes lists the modes the parser should accept.
	SupportedModes []string `koanf:"supported_modes"`
}

// API configures the HTTP server.
type API struct {
	// Addr is the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`
}

// WebSocket configures subscriber sessions.
type WebSocket struct {
	// MaxConnections caps concurrent WebSocket clients.
	MaxConnections int `koanf:"max_connections"`

	// SendQueueSize bounds each subscriber's event queue.
	SendQueueSize int `koanf:"send_queue_size"`

	// PingIntervalSeconds is the keepalive ping interval.
	PingIntervalSeconds int `koanf:"ping_interval_seconds"`
}

// Config is the root process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	LogMonitoring LogMonitoring `koanf:"log_monitoring"`
	StateMachine  StateMachine  `koanf:"state_machine"`
	API           API           `koanf:"api"`
	WebSocket     WebSocket     `koanf:"websocket"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel: "info",
		LogMonitoring: LogMonitoring{
			LogDirectory:            "/var/log/mmdvm",
			LogPathPattern:          "/var/log/mmdvm/MMDVM-*.log",
			RotationCheckIntervalMS: 500,
			ReadBufferSize:          8192,
		},
		StateMachine: StateMachine{
			QSOHistorySize:    100,
			QSOTimeoutSeconds: 30,
			SupportedModes: []string{
				"DSTAR", "DMR", "YSF", "P25", "NXDN", "POCSAG", "FM",
			},
		},
		API: API{
			Addr: ":8080",
		},
		WebSocket: WebSocket{
			MaxConnections:      50,
			SendQueueSize:       64,
			PingIntervalSeconds: 30,
		},
	}
}
