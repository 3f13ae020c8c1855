// Package tail follows MMDVMHost log files and emits complete lines.
//
// The tailer polls a glob pattern: new files are picked up as they appear,
// and a changed inode or a shrinking file is treated as a rotation, which
// reopens the file from the start. Partial lines are buffered until their
// newline arrives so downstream parsing only ever sees whole lines.
package tail

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"mmdvmstate/pkg/logger"
	"mmdvmstate/pkg/metrics"
)

const (
	defaultPollInterval   = 500 * time.Millisecond
	defaultReadBufferSize = 8192

	// errorBackoff delays re-polling a file after a read error so a
	// persistently broken file does not spin the poll loop.
	errorBackoff = 5 * time.Second
)

// Line is one complete log line with its origin.
type Line struct {
	Text string
	Path string
	Time time.Time
}

// fileIdentity distinguishes a file from its rotated replacement.
type fileIdentity struct {
	dev uint64
	ino uint64
}

type fileState struct {
	f        *os.File
	identity fileIdentity
	offset   int64
	partial  []byte
	failedAt time.Time
}

// Tailer follows all files matching a glob pattern.
type Tailer struct {
	pattern  string
	interval time.Duration
	bufSize  int

	files map[string]*fileState
	out   chan Line
	log   logger.Logger

	lastLine time.Time
}

// Option applies a configuration option to the Tailer.
type Option func(*Tailer)

// WithPollInterval sets the poll and rotation-check interval.
func WithPollInterval(d time.Duration) Option {
	return func(t *Tailer) {
		if d > 0 {
			t.interval = d
		}
	}
}

// WithReadBufferSize sets the read buffer size in bytes.
func WithReadBufferSize(n int) Option {
	return func(t *Tailer) {
		if n > 0 {
			t.bufSize = n
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(t *Tailer) {
		if l != nil {
			t.log = l
		}
	}
}

// New creates a Tailer for the given glob pattern.
func New(pattern string, opts ...Option) *Tailer {
	t := &Tailer{
		pattern:  pattern,
		interval: defaultPollInterval,
		bufSize:  defaultReadBufferSize,
		files:    make(map[string]*fileState),
		out:      make(chan Line, 1024),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.log == nil {
		t.log = logger.Named("tail")
	}
	return t
}

// Lines returns the channel carrying complete lines. It is closed when Run
// returns.
func (t *Tailer) Lines() <-chan Line {
	return t.out
}

// Run polls until ctx is canceled, then closes all handles and the line
// channel. It never returns an error to the pipeline: missing files are
// polled until they appear and read failures are retried with backoff.
func (t *Tailer) Run(ctx context.Context) {
	defer func() {
		for _, st := range t.files {
			if st.f != nil {
				_ = st.f.Close()
			}
		}
		close(t.out)
	}()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		if !t.poll(ctx) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// poll runs one scan over all matching files. It returns false when ctx was
// canceled while emitting lines.
func (t *Tailer) poll(ctx context.Context) bool {
	paths, err := filepath.Glob(t.pattern)
	if err != nil {
		// Only happens for a malformed pattern; validated upstream.
		t.log.Error(ctx, "bad log path pattern", logger.String("pattern", t.pattern), logger.Error(err))
		return true
	}

	seen := make(map[string]bool, len(paths))
	for _, path := range paths {
		seen[path] = true
		if !t.pollFile(ctx, path) {
			return false
		}
	}

	// Forget files that disappeared; if they come back they start fresh.
	for path, st := range t.files {
		if !seen[path] {
			if st.f != nil {
				_ = st.f.Close()
			}
			delete(t.files, path)
			t.log.Info(ctx, "log file disappeared", logger.String("path", path))
		}
	}
	return true
}

func (t *Tailer) pollFile(ctx context.Context, path string) bool {
	st := t.files[path]
	if st == nil {
		st = &fileState{}
		t.files[path] = st
	}
	if !st.failedAt.IsZero() && time.Since(st.failedAt) < errorBackoff {
		return true
	}

	info, err := os.Stat(path)
	if err != nil {
		// Raced with a rotation or the file is gone; next poll retries.
		t.closeState(st)
		return true
	}
	identity := identityOf(info)

	if st.f != nil && (identity != st.identity || info.Size() < st.offset) {
		metrics.RecordRotation()
		t.log.Info(ctx, "log rotation detected", logger.String("path", path))
		t.closeState(st)
	}

	if st.f == nil {
		f, err := os.Open(path)
		if err != nil {
			metrics.RecordReadError()
			st.failedAt = time.Now()
			t.log.Warn(ctx, "cannot open log file", logger.String("path", path), logger.Error(err))
			return true
		}
		st.f = f
		st.identity = identity
		st.offset = 0
		st.partial = nil
	}

	return t.readAvailable(ctx, path, st)
}

// readAvailable drains everything written since the last poll.
func (t *Tailer) readAvailable(ctx context.Context, path string, st *fileState) bool {
	buf := make([]byte, t.bufSize)
	for {
		n, err := st.f.ReadAt(buf, st.offset)
		if n > 0 {
			st.offset += int64(n)
			if !t.emitLines(ctx, path, st, buf[:n]) {
				return false
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				metrics.RecordReadError()
				st.failedAt = time.Now()
				t.log.Warn(ctx, "log read failed", logger.String("path", path), logger.Error(err))
				t.closeState(st)
			}
			return true
		}
	}
}

// emitLines appends data to the partial-line buffer and emits every
// complete line found.
func (t *Tailer) emitLines(ctx context.Context, path string, st *fileState, data []byte) bool {
	st.partial = append(st.partial, data...)
	for {
		idx := bytes.IndexByte(st.partial, '\n')
		if idx < 0 {
			return true
		}
		text := string(bytes.TrimRight(st.partial[:idx], "\r"))
		st.partial = st.partial[idx+1:]
		if text == "" {
			continue
		}
		now := time.Now()
		t.lastLine = now
		metrics.RecordLineRead()
		select {
		case t.out <- Line{Text: text, Path: path, Time: now}:
		case <-ctx.Done():
			return false
		}
	}
}

func (t *Tailer) closeState(st *fileState) {
	if st.f != nil {
		_ = st.f.Close()
		st.f = nil
	}
	st.offset = 0
	st.partial = nil
	st.identity = fileIdentity{}
}

func identityOf(info os.FileInfo) fileIdentity {
	if sys, ok := info.Sys().(*syscall.Stat_t); ok {
		return fileIdentity{dev: uint64(sys.Dev), ino: sys.Ino}
	}
	return fileIdentity{}
}
