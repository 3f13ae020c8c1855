// Package model contains domain models passed between layers.
package model

import (
	"time"

	"github.com/google/uuid"
)

// Mode is a digital-voice or data mode handled by MMDVMHost.
type Mode string

// Operating modes. IDLE means the modem is listening on all enabled modes.
const (
	ModeDStar  Mode = "DSTAR"
	ModeDMR    Mode = "DMR"
	ModeYSF    Mode = "YSF"
	ModeP25    Mode = "P25"
	ModeNXDN   Mode = "NXDN"
	ModePOCSAG Mode = "POCSAG"
	ModeFM     Mode = "FM"
	ModeIdle   Mode = "IDLE"
)

// ParseMode maps a mode string from a log line to a Mode, falling back to
// IDLE for anything unrecognized.
func ParseMode(s string) Mode {
	switch s {
	case "D-Star", "DSTAR":
		return ModeDStar
	case "DMR":
		return ModeDMR
	case "YSF", "System Fusion":
		return ModeYSF
	case "P25":
		return ModeP25
	case "NXDN":
		return ModeNXDN
	case "POCSAG":
		return ModePOCSAG
	case "FM":
		return ModeFM
	default:
		return ModeIdle
	}
}

// QSOStatus tracks the lifecycle of a contact.
type QSOStatus string

const (
	StatusStarting  QSOStatus = "STARTING"
	StatusActive    QSOStatus = "ACTIVE"
	StatusEnding    QSOStatus = "ENDING"
	StatusCompleted QSOStatus = "COMPLETED"
	StatusTimeout   QSOStatus = "TIMEOUT"
	StatusError     QSOStatus = "ERROR"
)

// Terminal reports whether the status admits no further transitions.
func (s QSOStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusTimeout, StatusError:
		return true
	default:
		return false
	}
}

// ModemState is the physical modem's operational status.
type ModemState string

const (
	ModemIdle    ModemState = "IDLE"
	ModemRX      ModemState = "RX"
	ModemTX      ModemState = "TX"
	ModemError   ModemState = "ERROR"
	ModemUnknown ModemState = "UNKNOWN"
)

// NetworkStatus is the per-mode network (master/reflector) connection state.
type NetworkStatus string

const (
	NetworkConnected    NetworkStatus = "CONNECTED"
	NetworkDisconnected NetworkStatus = "DISCONNECTED"
	NetworkConnecting   NetworkStatus = "CONNECTING"
	NetworkError        NetworkStatus = "ERROR"
	NetworkUnknown      NetworkStatus = "UNKNOWN"
)

// QSO is a single contact/transmission being tracked.
type QSO struct {
	ID string `json:"id"`

	StartTime       time.Time  `json:"start_time"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	DurationSeconds *float64   `json:"duration_seconds,omitempty"`

	Mode   Mode      `json:"mode"`
	Status QSOStatus `json:"status"`

	SourceCallsign string `json:"source_callsign,omitempty"`
	Destination    string `json:"destination,omitempty"`

	Slot          int    `json:"slot,omitempty"`
	TalkGroup     int    `json:"talk_group,omitempty"`
	SourceID      int    `json:"source_id,omitempty"`
	DestinationID int    `json:"destination_id,omitempty"`
	Reflector     string `json:"reflector,omitempty"`

	BER      *float64 `json:"ber,omitempty"`
	RSSI     *int     `json:"rssi,omitempty"`
	LossRate *float64 `json:"loss_rate,omitempty"`

	// RFSource is true for RF-originated traffic, false for network traffic.
	RFSource bool `json:"rf_source"`

	Metadata map[string]string `json:"metadata,omitempty"`
}

// NewQSO creates a QSO in STARTING with a fresh identifier.
func NewQSO(mode Mode, start time.Time) QSO {
	return QSO{
		ID:        uuid.NewString(),
		StartTime: start,
		Mode:      mode,
		Status:    StatusStarting,
		RFSource:  true,
	}
}

// Finalize moves the QSO to a terminal status and sets end time and
// duration. Duration is clamped to zero for out-of-order timestamps.
// Finalizing an already-terminal QSO is a no-op.
func (q *QSO) Finalize(status QSOStatus, end time.Time) {
	if q.Status.Terminal() {
		return
	}
	d := end.Sub(q.StartTime).Seconds()
	if d < 0 {
		d = 0
	}
	q.Status = status
	q.EndTime = &end
	q.DurationSeconds = &d
}

// IsActive reports whether the QSO belongs in the active set.
func (q *QSO) IsActive() bool {
	switch q.Status {
	case StatusStarting, StatusActive, StatusEnding:
		return true
	default:
		return false
	}
}

// Clone returns a deep copy so callers never share the stored record.
func (q QSO) Clone() QSO {
	c := q
	if q.EndTime != nil {
		t := *q.EndTime
		c.EndTime = &t
	}
	if q.DurationSeconds != nil {
		d := *q.DurationSeconds
		c.DurationSeconds = &d
	}
	if q.BER != nil {
		b := *q.BER
		c.BER = &b
	}
	if q.RSSI != nil {
		r := *q.RSSI
		c.RSSI = &r
	}
	if q.LossRate != nil {
		l := *q.LossRate
		c.LossRate = &l
	}
	if q.Metadata != nil {
		c.Metadata = make(map[string]string, len(q.Metadata))
		for k, v := range q.Metadata {
			c.Metadata[k] = v
		}
	}
	return c
}

// ModeStatus is the per-mode network and activity status.
type ModeStatus struct {
	Mode          Mode          `json:"mode"`
	Enabled       bool          `json:"enabled"`
	NetworkStatus NetworkStatus `json:"network_status"`
	NetworkName   string        `json:"network_name,omitempty"`
	LastActivity  *time.Time    `json:"last_activity,omitempty"`
}

// SystemState is a point-in-time snapshot of everything the monitor knows
// about the controller. Instances handed to readers are deep copies.
type SystemState struct {
	CurrentMode Mode       `json:"current_mode"`
	ModemState  ModemState `json:"modem_state"`

	ActiveQSOs []QSO `json:"active_qsos"`

	ModeStatus map[Mode]ModeStatus `json:"mode_status"`

	LastUpdate    time.Time `json:"last_update"`
	UptimeSeconds float64   `json:"uptime_seconds"`

	ErrorCount    int        `json:"error_count"`
	LastError     string     `json:"last_error,omitempty"`
	LastErrorTime *time.Time `json:"last_error_time,omitempty"`
}

// EventType tags a state-change notification.
type EventType string

const (
	EventQSOStarted   EventType = "qso_started"
	EventQSOEnding    EventType = "qso_ending"
	EventQSOCompleted EventType = "qso_completed"
	EventQSOTimeout   EventType = "qso_timeout"
	EventQSOError     EventType = "qso_error"
	EventModeChanged  EventType = "mode_changed"
	EventNetwork      EventType = "network_changed"
	EventError        EventType = "error"
)

// Severity levels for event filtering on the consumer side.
const (
	SeverityInfo    = "info"
	SeverityWarning = "warning"
	SeverityError   = "error"
)

// Event is an immutable notification broadcast to subscribers. It is created
// once by the tracker or the state store and never mutated afterwards.
type Event struct {
	ID        string         `json:"event_id"`
	Type      EventType      `json:"event_type"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
	Severity  string         `json:"severity"`
}

// NewEvent builds an event with a fresh identifier and the given payload.
func NewEvent(typ EventType, ts time.Time, severity string, data map[string]any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      typ,
		Timestamp: ts,
		Data:      data,
		Severity:  severity,
	}
}

// QSOEvent builds a QSO lifecycle event carrying a summary of the contact.
func QSOEvent(typ EventType, severity string, q QSO, ts time.Time) Event {
	data := map[string]any{
		"qso_id": q.ID,
		"mode":   q.Mode,
		"status": q.Status,
	}
	if q.SourceCallsign != "" {
		data["source_callsign"] = q.SourceCallsign
	}
	if q.Destination != "" {
		data["destination"] = q.Destination
	}
	if q.Slot != 0 {
		data["slot"] = q.Slot
	}
	if q.TalkGroup != 0 {
		data["talk_group"] = q.TalkGroup
	}
	if q.DurationSeconds != nil {
		data["duration_seconds"] = *q.DurationSeconds
	}
	return NewEvent(typ, ts, severity, data)
}

// HealthStatus is the payload of the health endpoint.
type HealthStatus struct {
	Healthy       bool    `json:"healthy"`
	Version       string  `json:"version"`
	UptimeSeconds float64 `json:"uptime_seconds"`

	LogMonitorActive   bool `json:"log_monitor_active"`
	StateMachineActive bool `json:"state_machine_active"`
	APIServerActive    bool `json:"api_server_active"`

	TotalQSOsProcessed int   `json:"total_qsos_processed"`
	ActiveConnections  int   `json:"active_websocket_connections"`
	EventsDropped      int64 `json:"events_dropped"`

	ErrorCount int    `json:"error_count"`
	LastError  string `json:"last_error,omitempty"`

	LastLogUpdate *time.Time `json:"last_log_update,omitempty"`
	CurrentTime   time.Time  `json:"current_time"`
}
