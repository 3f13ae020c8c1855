// Package logsim generates synthetic MMDVMHost log traffic.
//
// It exists to exercise the monitor end to end without a repeater on the
// bench: it writes plausible header/end sequences for the configured modes,
// sprinkles in unrelated controller chatter, and can rotate the log file on
// demand to exercise rotation handling.
package logsim

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"os"
	"time"
)

// Callsigns and talkgroups the generator draws from.
var (
	callsigns  = []string{"G4KLX", "M0ABC", "2E0DEF", "W1AW", "DL1XYZ", "VK3GHI"}
	talkgroups = []int{9, 91, 235, 2350, 31337}
)

// Sim writes synthetic log lines to a file.
type Sim struct {
	path    string
	f       *os.File
	written int
}

// New creates a simulator writing to path, truncating any existing file.
func New(path string) (*Sim, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create log file: %w", err)
	}
	return &Sim{path: path, f: f}, nil
}

// Close closes the underlying file.
func (s *Sim) Close() error {
	return s.f.Close()
}

// LinesWritten reports how many lines the simulator has emitted.
func (s *Sim) LinesWritten() int {
	return s.written
}

// Rotate simulates logrotate: the current file is renamed aside and a fresh
// one created at the same path.
func (s *Sim) Rotate() error {
	if err := s.f.Close(); err != nil {
		return fmt.Errorf("close before rotate: %w", err)
	}
	if err := os.Rename(s.path, s.path+".1"); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	f, err := os.Create(s.path)
	if err != nil {
		return fmt.Errorf("reopen after rotate: %w", err)
	}
	s.f = f
	return nil
}

// WriteLine emits one raw line with the MMDVMHost prefix.
func (s *Sim) WriteLine(body string) error {
	line := fmt.Sprintf("M: %s %s\n", time.Now().Format("2006-01-02 15:04:05.000"), body)
	if _, err := s.f.WriteString(line); err != nil {
		return fmt.Errorf("write line: %w", err)
	}
	s.written++
	return s.f.Sync()
}

// WriteQSO emits a complete DMR transmission: header, then after the given
// hold time an end line with plausible metrics.
func (s *Sim) WriteQSO(slot int, hold time.Duration) error {
	call := pick(callsigns)
	tg := talkgroups[randN(len(talkgroups))]

	if err := s.WriteLine(fmt.Sprintf("DMR Slot %d, received RF voice header from %s to TG %d", slot, call, tg)); err != nil {
		return err
	}
	time.Sleep(hold)
	ber := float64(randN(30)) / 10.0
	return s.WriteLine(fmt.Sprintf("DMR Slot %d, received RF end of voice transmission from %s to TG %d, %.1f seconds, BER: %.1f%%",
		slot, call, tg, hold.Seconds(), ber))
}

// WriteChatter emits controller noise the parser is expected to ignore.
func (s *Sim) WriteChatter() error {
	lines := []string{
		"MMDVM protocol version: 1, description: MMDVM 20200422",
		"Started the DMR Id lookup reload thread",
		"DMR Talker Alias data received",
	}
	return s.WriteLine(pick(lines))
}

// WriteModeChange emits a controller mode switch.
func (s *Sim) WriteModeChange(mode string) error {
	return s.WriteLine("Mode set to " + mode)
}

func pick(options []string) string {
	return options[randN(len(options))]
}

func randN(n int) int {
	v, _ := rand.Int(rand.Reader, big.NewInt(int64(n)))
	return int(v.Int64())
}
