// Package state owns the live SystemState aggregate.
//
// All mutation goes through the Store's command methods, which take the
// write lock for short critical sections. Readers get deep copies and never
// observe partially applied transitions; the internal containers are never
// handed out by reference.
package state

import (
	"sync"
	"time"

	"mmdvmstate/internal/domain/model"
	"mmdvmstate/pkg/metrics"
)

// Store is the single authority over SystemState.
type Store struct {
	mu sync.RWMutex

	currentMode model.Mode
	modemState  model.ModemState
	active      map[string]model.QSO
	modeStatus  map[model.Mode]model.ModeStatus

	// history is a FIFO of terminal QSOs, oldest first, bounded by capacity.
	history  []model.QSO
	capacity int

	startedAt      time.Time
	lastUpdate     time.Time
	totalProcessed int
	lastLogTime    time.Time

	errorCount    int
	lastError     string
	lastErrorTime time.Time
}

// Option applies a configuration option to the Store.
type Option func(*Store)

// WithHistorySize bounds the completed-QSO FIFO.
func WithHistorySize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.capacity = n
		}
	}
}

// WithEnabledModes marks the given modes enabled in the per-mode status map.
func WithEnabledModes(modes []model.Mode) Option {
	return func(s *Store) {
		for _, m := range modes {
			s.modeStatus[m] = model.ModeStatus{
				Mode:          m,
				Enabled:       true,
				NetworkStatus: model.NetworkUnknown,
			}
		}
	}
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	now := time.Now()
	s := &Store{
		currentMode: model.ModeIdle,
		modemState:  model.ModemUnknown,
		active:      make(map[string]model.QSO),
		modeStatus:  make(map[model.Mode]model.ModeStatus),
		capacity:    100,
		startedAt:   now,
		lastUpdate:  now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddActive inserts a QSO into the active set.
func (s *Store) AddActive(q model.QSO) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active[q.ID] = q.Clone()
	s.totalProcessed++
	s.touch()
	metrics.UpdateActiveQSOs(len(s.active))
}

// UpdateActive replaces the stored copy of an active QSO. Unknown IDs are
// ignored; the tracker may race a timeout finalization it has not seen yet.
func (s *Store) UpdateActive(q model.QSO) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.active[q.ID]; !ok {
		return
	}
	s.active[q.ID] = q.Clone()
	s.touch()
}

// Finalize moves a QSO from the active set to the bounded history, evicting
// the oldest entry at capacity. The QSO must already carry a terminal status.
func (s *Store) Finalize(q model.QSO) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.active, q.ID)
	s.history = append(s.history, q.Clone())
	if len(s.history) > s.capacity {
		s.history = s.history[1:]
	}
	s.touch()
	metrics.UpdateActiveQSOs(len(s.active))
	metrics.UpdateHistorySize(len(s.history))
}

// SetMode records the controller's current mode.
func (s *Store) SetMode(m model.Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentMode = m
	s.touch()
}

// SetModemState records the physical modem state.
func (s *Store) SetModemState(st model.ModemState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modemState = st
	s.touch()
}

// SetNetworkStatus records a per-mode network connection change.
func (s *Store) SetNetworkStatus(mode model.Mode, status model.NetworkStatus, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ms, ok := s.modeStatus[mode]
	if !ok {
		ms = model.ModeStatus{Mode: mode, Enabled: true}
	}
	ms.NetworkStatus = status
	if name != "" {
		ms.NetworkName = name
	}
	now := time.Now()
	ms.LastActivity = &now
	s.modeStatus[mode] = ms
	s.touch()
}

// RecordError increments the error counter and stores the message. It is the
// terminal sink for anomalies from lower layers and never fails.
func (s *Store) RecordError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errorCount++
	s.lastError = msg
	s.lastErrorTime = time.Now()
	s.touch()
}

// ObserveLogTime records the timestamp of the last processed log line.
func (s *Store) ObserveLogTime(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.After(s.lastLogTime) {
		s.lastLogTime = t
	}
}

// touch bumps last-update; callers hold the write lock. LastUpdate is
// monotonically non-decreasing.
func (s *Store) touch() {
	if now := time.Now(); now.After(s.lastUpdate) {
		s.lastUpdate = now
	}
}

// Snapshot returns a self-consistent deep copy of the system state.
func (s *Store) Snapshot() model.SystemState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := model.SystemState{
		CurrentMode:   s.currentMode,
		ModemState:    s.modemState,
		ActiveQSOs:    make([]model.QSO, 0, len(s.active)),
		ModeStatus:    make(map[model.Mode]model.ModeStatus, len(s.modeStatus)),
		LastUpdate:    s.lastUpdate,
		UptimeSeconds: time.Since(s.startedAt).Seconds(),
		ErrorCount:    s.errorCount,
		LastError:     s.lastError,
	}
	for _, q := range s.active {
		snap.ActiveQSOs = append(snap.ActiveQSOs, q.Clone())
	}
	for m, ms := range s.modeStatus {
		if ms.LastActivity != nil {
			t := *ms.LastActivity
			ms.LastActivity = &t
		}
		snap.ModeStatus[m] = ms
	}
	if !s.lastErrorTime.IsZero() {
		t := s.lastErrorTime
		snap.LastErrorTime = &t
	}
	return snap
}

// GetQSO looks up a QSO by ID in the active set, then in the history.
func (s *Store) GetQSO(id string) (model.QSO, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if q, ok := s.active[id]; ok {
		return q.Clone(), true
	}
	for i := len(s.history) - 1; i >= 0; i-- {
		if s.history[i].ID == id {
			return s.history[i].Clone(), true
		}
	}
	return model.QSO{}, false
}

// History returns up to limit terminal QSOs, most recent first. A limit of
// zero or less returns the whole retained history.
func (s *Store) History(limit int) []model.QSO {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := len(s.history)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]model.QSO, 0, n)
	for i := len(s.history) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.history[i].Clone())
	}
	return out
}

// Stats returns counters for the health endpoint.
func (s *Store) Stats() (totalProcessed, errorCount int, lastError string, lastLog time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.totalProcessed, s.errorCount, s.lastError, s.lastLogTime
}

// Uptime reports how long the store has existed.
func (s *Store) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Since(s.startedAt)
}
