// Package app provides the core service that implements the query,
// subscription and health interfaces consumed by the HTTP API.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"mmdvmstate/internal/adapters/bus"
	"mmdvmstate/internal/adapters/tail"
	"mmdvmstate/internal/domain/logparse"
	"mmdvmstate/internal/domain/model"
	"mmdvmstate/internal/domain/qso"
	"mmdvmstate/internal/state"
	"mmdvmstate/pkg/logger"
	"mmdvmstate/pkg/metrics"
)

// Version is reported by the health endpoint.
const Version = "1.0.0"

// Service wires the tailer, parser, tracker, store and bus together and
// owns the single pipeline goroutine through which all mutation flows.
type Service struct {
	mu sync.Mutex

	// Configuration
	logPattern     string
	pollInterval   time.Duration
	readBufferSize int
	historySize    int
	qsoTimeout     time.Duration
	eventQueueSize int
	modes          []model.Mode

	// Components
	store   *state.Store
	tracker *qso.Tracker
	events  *bus.Bus
	tailer  *tail.Tailer

	started   time.Time
	running   bool
	cancel    context.CancelFunc
	done      chan struct{}
	tailerRun chan struct{}

	log logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogPattern sets the glob matching the controller's log files.
func WithLogPattern(pattern string) Option {
	return func(s *Service) {
		if pattern != "" {
			s.logPattern = pattern
		}
	}
}

// WithPollInterval sets the tailer poll and rotation-check interval.
func WithPollInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// WithReadBufferSize sets the tailer read buffer size.
func WithReadBufferSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.readBufferSize = n
		}
	}
}

// WithHistorySize bounds the completed-QSO history.
func WithHistorySize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.historySize = n
		}
	}
}

// WithQSOTimeout sets the inactivity threshold for timeout finalization.
func WithQSOTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.qsoTimeout = d
		}
	}
}

// WithEventQueueSize bounds each subscriber's event queue.
func WithEventQueueSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.eventQueueSize = n
		}
	}
}

// WithSupportedModes sets the modes marked enabled in the state.
func WithSupportedModes(names []string) Option {
	return func(s *Service) {
		if len(names) == 0 {
			return
		}
		s.modes = s.modes[:0]
		for _, n := range names {
			s.modes = append(s.modes, model.ParseMode(n))
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// New constructs a Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		logPattern:     "/var/log/mmdvm/MMDVM-*.log",
		pollInterval:   500 * time.Millisecond,
		readBufferSize: 8192,
		historySize:    100,
		qsoTimeout:     30 * time.Second,
		eventQueueSize: 64,
		modes: []model.Mode{
			model.ModeDStar, model.ModeDMR, model.ModeYSF,
			model.ModeP25, model.ModeNXDN, model.ModePOCSAG, model.ModeFM,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start brings the components up and launches the pipeline goroutine.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	if s.log == nil {
		s.log = logger.Named("app")
	}

	s.store = state.New(
		state.WithHistorySize(s.historySize),
		state.WithEnabledModes(s.modes),
	)
	s.tracker = qso.New(s.store, qso.WithTimeout(s.qsoTimeout))
	s.events = bus.New(bus.WithQueueSize(s.eventQueueSize))
	s.tailer = tail.New(s.logPattern,
		tail.WithPollInterval(s.pollInterval),
		tail.WithReadBufferSize(s.readBufferSize),
	)

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.tailerRun = make(chan struct{})
	s.started = time.Now()

	go func() {
		defer close(s.tailerRun)
		s.tailer.Run(runCtx)
	}()
	go s.pipeline(runCtx)

	s.running = true
	s.log.Info(ctx, "monitor started",
		logger.String("pattern", s.logPattern),
		logger.Duration("qso_timeout", s.qsoTimeout),
		logger.Int("history_size", s.historySize),
	)
	return nil
}

// pipeline is the single mutation owner: it serializes log-driven
// transitions and supervisor-driven timeout sweeps, so no QSO transition
// can ever race another. The sweep interval is a third of the timeout to
// bound worst-case detection latency.
func (s *Service) pipeline(ctx context.Context) {
	defer close(s.done)

	sweepInterval := s.qsoTimeout / 3
	if sweepInterval < time.Second {
		sweepInterval = time.Second
	}
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	lines := s.tailer.Lines()
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				// Tailer shut down; drain is complete.
				s.events.Close()
				return
			}
			s.handleLine(ctx, line)
		case now := <-ticker.C:
			s.publish(s.tracker.Sweep(now))
		case <-ctx.Done():
			// Drain lines already read before shutting down.
			for {
				select {
				case line, ok := <-lines:
					if !ok {
						s.events.Close()
						return
					}
					s.handleLine(ctx, line)
				default:
					s.events.Close()
					return
				}
			}
		}
	}
}

func (s *Service) handleLine(ctx context.Context, line tail.Line) {
	ev, err := logparse.Parse(line.Text, line.Time)
	if err != nil {
		metrics.RecordParseFailure()
		s.store.RecordError(fmt.Sprintf("parse failure: %v (%s)", err, line.Text))
		s.log.Warn(ctx, "malformed log line", logger.String("line", line.Text), logger.Error(err))
		return
	}
	if ev == nil {
		metrics.RecordLineIgnored()
		return
	}
	metrics.RecordLineMatched()
	s.publish(s.tracker.Handle(ev))
}

func (s *Service) publish(events []model.Event) {
	for _, ev := range events {
		s.events.Publish(ev)
	}
}

// Stop shuts the pipeline down and waits for it to drain.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	ctx := context.Background()
	s.log.Info(ctx, "stopping monitor...")

	s.cancel()
	<-s.tailerRun
	<-s.done

	s.running = false
	s.log.Info(ctx, "monitor stopped")
}

// Snapshot returns an immutable copy of the current system state.
func (s *Service) Snapshot() model.SystemState {
	return s.store.Snapshot()
}

// GetQSO looks a QSO up by ID in the active set and the history.
func (s *Service) GetQSO(id string) (model.QSO, bool) {
	return s.store.GetQSO(id)
}

// History returns up to limit terminal QSOs, most recent first.
func (s *Service) History(limit int) []model.QSO {
	return s.store.History(limit)
}

// Subscribe registers an event subscriber.
func (s *Service) Subscribe() *bus.Subscription {
	return s.events.Subscribe()
}

// Unsubscribe removes an event subscriber.
func (s *Service) Unsubscribe(sub *bus.Subscription) {
	s.events.Unsubscribe(sub)
}

// Health reports component status for the health endpoint.
func (s *Service) Health() model.HealthStatus {
	s.mu.Lock()
	running := s.running
	started := s.started
	s.mu.Unlock()

	if !running {
		return model.HealthStatus{Version: Version, CurrentTime: time.Now()}
	}

	total, errCount, lastErr, lastLog := s.store.Stats()
	h := model.HealthStatus{
		Healthy:            running,
		Version:            Version,
		UptimeSeconds:      time.Since(started).Seconds(),
		LogMonitorActive:   running,
		StateMachineActive: running,
		APIServerActive:    running,
		TotalQSOsProcessed: total,
		ActiveConnections:  s.events.SubscriberCount(),
		EventsDropped:      s.events.Dropped(),
		ErrorCount:         errCount,
		LastError:          lastErr,
		CurrentTime:        time.Now(),
	}
	if !lastLog.IsZero() {
		t := lastLog
		h.LastLogUpdate = &t
	}
	return h
}
