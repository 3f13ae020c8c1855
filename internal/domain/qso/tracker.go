// Package qso drives the per-transmission finite-state machine.
//
// The tracker consumes parsed log events keyed by mode and slot, proposes
// transitions to the state store, and returns the notifications each
// transition produced. Handle and Sweep must be called from the single
// pipeline goroutine; the tracker itself holds no locks.
package qso

import (
	"context"
	"fmt"
	"time"

	"mmdvmstate/internal/domain/logparse"
	"mmdvmstate/internal/domain/model"
	"mmdvmstate/pkg/logger"
	"mmdvmstate/pkg/metrics"
)

// Store is the mutation surface the tracker drives. Implemented by
// state.Store.
type Store interface {
	AddActive(q model.QSO)
	UpdateActive(q model.QSO)
	Finalize(q model.QSO)
	SetMode(m model.Mode)
	SetModemState(st model.ModemState)
	SetNetworkStatus(mode model.Mode, status model.NetworkStatus, name string)
	RecordError(msg string)
	ObserveLogTime(t time.Time)
}

// trackKey identifies one concurrent transmission stream. Slot is zero for
// slotless modes, so each such mode carries at most one stream.
type trackKey struct {
	mode model.Mode
	slot int
}

type tracked struct {
	qso          model.QSO
	lastActivity time.Time
}

// Tracker owns the active-transmission map and the transition rules.
type Tracker struct {
	store   Store
	timeout time.Duration
	active  map[trackKey]*tracked
	log     logger.Logger
}

// Option applies a configuration option to the Tracker.
type Option func(*Tracker)

// WithTimeout sets the inactivity threshold used by Sweep.
func WithTimeout(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.timeout = d
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(t *Tracker) {
		if l != nil {
			t.log = l
		}
	}
}

// New creates a Tracker bound to a store.
func New(store Store, opts ...Option) *Tracker {
	t := &Tracker{
		store:   store,
		timeout: 30 * time.Second,
		active:  make(map[trackKey]*tracked),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.log == nil {
		t.log = logger.Named("tracker")
	}
	return t
}

// Handle applies one parsed log event and returns the notifications it
// produced.
func (t *Tracker) Handle(ev *logparse.Event) []model.Event {
	t.store.ObserveLogTime(ev.Timestamp)

	switch ev.Kind {
	case logparse.KindHeader:
		return t.handleHeader(ev)
	case logparse.KindFrame:
		return t.handleFrame(ev)
	case logparse.KindEnd:
		return t.handleEnd(ev)
	case logparse.KindLost:
		return t.handleLost(ev)
	case logparse.KindModeChange:
		t.store.SetMode(ev.Mode)
		if ev.Mode == model.ModeIdle {
			t.store.SetModemState(model.ModemIdle)
		}
		return []model.Event{model.NewEvent(model.EventModeChanged, ev.Timestamp, model.SeverityInfo, map[string]any{
			"mode": ev.Mode,
		})}
	case logparse.KindNetwork:
		t.store.SetNetworkStatus(ev.Mode, ev.NetworkStatus, ev.NetworkName)
		severity := model.SeverityInfo
		if ev.NetworkStatus != model.NetworkConnected {
			severity = model.SeverityWarning
		}
		data := map[string]any{
			"mode":   ev.Mode,
			"status": ev.NetworkStatus,
		}
		if ev.NetworkName != "" {
			data["network_name"] = ev.NetworkName
		}
		return []model.Event{model.NewEvent(model.EventNetwork, ev.Timestamp, severity, data)}
	}
	return nil
}

// handleHeader opens a new QSO. A header while one is already in flight on
// the same key is a protocol anomaly: the prior QSO is finalized as ERROR
// before the new one starts.
func (t *Tracker) handleHeader(ev *logparse.Event) []model.Event {
	key := keyOf(ev)
	var events []model.Event

	if cur, ok := t.active[key]; ok {
		msg := fmt.Sprintf("overlapping %s transmission on slot %d: new header from %s while %s active",
			ev.Mode, ev.Slot, ev.Source, cur.qso.SourceCallsign)
		events = append(events, t.finalize(key, cur, model.StatusError, ev.Timestamp)...)
		t.store.RecordError(msg)
		t.log.Warn(context.Background(), "protocol anomaly", logger.String("detail", msg))
	}

	q := newQSOFromEvent(ev)
	t.active[key] = &tracked{qso: q, lastActivity: ev.Timestamp}
	t.store.AddActive(q)
	if q.RFSource {
		t.store.SetModemState(model.ModemRX)
	}
	metrics.RecordQSOStarted()
	events = append(events, model.QSOEvent(model.EventQSOStarted, model.SeverityInfo, q, ev.Timestamp))
	return events
}

// handleFrame refreshes activity and quality metrics. Frame updates emit no
// notifications; dashboards poll the snapshot for metric refresh. A frame
// with no open QSO creates one directly in ACTIVE, which covers monitors
// started in the middle of a transmission.
func (t *Tracker) handleFrame(ev *logparse.Event) []model.Event {
	key := keyOf(ev)
	cur, ok := t.active[key]
	if !ok {
		q := newQSOFromEvent(ev)
		q.Status = model.StatusActive
		t.active[key] = &tracked{qso: q, lastActivity: ev.Timestamp}
		t.store.AddActive(q)
		metrics.RecordQSOStarted()
		return []model.Event{model.QSOEvent(model.EventQSOStarted, model.SeverityInfo, q, ev.Timestamp)}
	}

	cur.lastActivity = ev.Timestamp
	cur.qso.Status = model.StatusActive
	applyMetrics(&cur.qso, ev)
	t.store.UpdateActive(cur.qso)
	return nil
}

// handleEnd runs the normal teardown: ENDING, then COMPLETED with the
// duration computed from start to the event timestamp. An end without a
// matching QSO is a duplicate or out-of-order teardown and has no effect.
func (t *Tracker) handleEnd(ev *logparse.Event) []model.Event {
	key := keyOf(ev)
	cur, ok := t.active[key]
	if !ok {
		return nil
	}

	applyMetrics(&cur.qso, ev)
	if ev.Duration != nil {
		if cur.qso.Metadata == nil {
			cur.qso.Metadata = make(map[string]string)
		}
		cur.qso.Metadata["reported_duration"] = fmt.Sprintf("%.1f", *ev.Duration)
	}

	cur.qso.Status = model.StatusEnding
	t.store.UpdateActive(cur.qso)
	events := []model.Event{model.QSOEvent(model.EventQSOEnding, model.SeverityInfo, cur.qso, ev.Timestamp)}
	events = append(events, t.finalize(key, cur, model.StatusCompleted, ev.Timestamp)...)
	return events
}

// handleLost finalizes an abnormally terminated transmission as ERROR.
func (t *Tracker) handleLost(ev *logparse.Event) []model.Event {
	key := keyOf(ev)
	cur, ok := t.active[key]
	if !ok {
		return nil
	}
	applyMetrics(&cur.qso, ev)
	t.store.RecordError(fmt.Sprintf("%s transmission lost on slot %d from %s", ev.Mode, ev.Slot, cur.qso.SourceCallsign))
	return t.finalize(key, cur, model.StatusError, ev.Timestamp)
}

// Sweep finalizes every QSO whose last activity is older than the timeout.
// It is driven by the supervisor ticker on the same goroutine as Handle, so
// a timeout can never race a live log transition.
func (t *Tracker) Sweep(now time.Time) []model.Event {
	var events []model.Event
	for key, cur := range t.active {
		if now.Sub(cur.lastActivity) >= t.timeout {
			t.log.Info(context.Background(), "qso timed out",
				logger.String("qso_id", cur.qso.ID),
				logger.String("mode", string(cur.qso.Mode)),
				logger.Duration("idle", now.Sub(cur.lastActivity)),
			)
			events = append(events, t.finalize(key, cur, model.StatusTimeout, now)...)
		}
	}
	return events
}

// ActiveCount reports how many transmissions are currently tracked.
func (t *Tracker) ActiveCount() int {
	return len(t.active)
}

// finalize moves a tracked QSO to a terminal status, hands it to the store,
// and emits the matching notification. Finalizing a key that was already
// removed is a no-op by construction: callers look the entry up first.
func (t *Tracker) finalize(key trackKey, cur *tracked, status model.QSOStatus, end time.Time) []model.Event {
	delete(t.active, key)
	cur.qso.Finalize(status, end)
	t.store.Finalize(cur.qso)

	if !t.anyActiveRF() {
		t.store.SetModemState(model.ModemIdle)
	}

	var (
		typ      model.EventType
		severity string
		outcome  string
	)
	switch status {
	case model.StatusCompleted:
		typ, severity, outcome = model.EventQSOCompleted, model.SeverityInfo, "completed"
	case model.StatusTimeout:
		typ, severity, outcome = model.EventQSOTimeout, model.SeverityWarning, "timeout"
	default:
		typ, severity, outcome = model.EventQSOError, model.SeverityWarning, "error"
	}
	metrics.RecordQSOFinalized(outcome)
	return []model.Event{model.QSOEvent(typ, severity, cur.qso, end)}
}

func (t *Tracker) anyActiveRF() bool {
	for _, cur := range t.active {
		if cur.qso.RFSource {
			return true
		}
	}
	return false
}

func keyOf(ev *logparse.Event) trackKey {
	return trackKey{mode: ev.Mode, slot: ev.Slot}
}

func newQSOFromEvent(ev *logparse.Event) model.QSO {
	q := model.NewQSO(ev.Mode, ev.Timestamp)
	q.SourceCallsign = ev.Source
	q.Destination = ev.Destination
	q.Slot = ev.Slot
	q.TalkGroup = ev.TalkGroup
	q.SourceID = ev.SourceID
	q.RFSource = ev.RFSource
	applyMetrics(&q, ev)
	return q
}

func applyMetrics(q *model.QSO, ev *logparse.Event) {
	if ev.BER != nil {
		v := *ev.BER
		q.BER = &v
	}
	if ev.RSSI != nil {
		v := *ev.RSSI
		q.RSSI = &v
	}
	if ev.Loss != nil {
		v := *ev.Loss
		q.LossRate = &v
	}
}
