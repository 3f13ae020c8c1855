// Package logparse translates MMDVMHost log lines into typed events.
//
// Parsing is stateless: each line is matched against fixed textual markers
// for the supported modes. A line matching no pattern is not an error; the
// controller logs plenty of lines this monitor does not care about.
package logparse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"mmdvmstate/internal/domain/model"
)

// Kind classifies what a log line means for QSO tracking.
type Kind int

const (
	// KindHeader opens a transmission (voice or data header).
	KindHeader Kind = iota
	// KindFrame is in-progress voice/data activity, possibly with metrics.
	KindFrame
	// KindEnd closes a transmission normally.
	KindEnd
	// KindLost is an abnormal transmission loss.
	KindLost
	// KindModeChange is the controller switching its current mode.
	KindModeChange
	// KindNetwork is a per-mode network connection status change.
	KindNetwork
)

func (k Kind) String() string {
	switch k {
	case KindHeader:
		return "header"
	case KindFrame:
		return "frame"
	case KindEnd:
		return "end"
	case KindLost:
		return "lost"
	case KindModeChange:
		return "mode_change"
	case KindNetwork:
		return "network"
	default:
		return "unknown"
	}
}

// Event is a parsed log line.
type Event struct {
	Kind      Kind
	Mode      model.Mode
	Timestamp time.Time // from the log line when present, else the read time

	// Transmission fields.
	Slot        int // DMR slot, 0 for slotless modes
	Source      string
	Destination string
	TalkGroup   int
	SourceID    int
	RFSource    bool

	// Metrics from end-of-transmission or frame lines.
	Duration *float64 // seconds as reported by the controller
	BER      *float64
	RSSI     *int
	Loss     *float64

	// Network fields.
	NetworkStatus model.NetworkStatus
	NetworkName   string

	Raw string
}

// MMDVMHost prefixes every line with a severity letter and a timestamp:
//
//	M: 2024-03-01 18:04:55.101 DMR Slot 2, received RF voice header from G4KLX to TG 235
var linePrefix = regexp.MustCompile(`^[DIMWE]: (\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\.\d{3}) (.*)$`)

const timestampLayout = "2006-01-02 15:04:05.000"

var (
	// DMR is slotted; everything else addresses the mode directly.
	dmrHeader = regexp.MustCompile(`^DMR Slot (\d), received (RF|network) (?:voice |data )?header from (\S+) to (.+)$`)
	dmrEnd    = regexp.MustCompile(`^DMR Slot (\d), (?:received (RF|network) end of (?:voice |data )?transmission|(RF|network) (?:voice |data )?transmission lost)(?: from (\S+)(?: to (.+?))?)?(,.*)?$`)
	dmrFrame  = regexp.MustCompile(`^DMR Slot (\d), (?:received (RF|network) (?:voice|data)|audio sequence no\.)`)

	plainHeader = regexp.MustCompile(`^(D-Star|YSF|P25|NXDN|FM), received (RF|network) (?:voice |data )?(?:header|transmission) from (\S+)(?:\s+\S*)? to (.+)$`)
	plainEnd    = regexp.MustCompile(`^(D-Star|YSF|P25|NXDN|FM), (?:received (RF|network) end of (?:voice |data )?transmission|(RF|network) (?:voice |data )?transmission lost)(?: from (\S+)(?: to (.+?))?)?(,.*)?$`)

	modeSet = regexp.MustCompile(`^Mode set to (\S+)$`)

	networkUp   = regexp.MustCompile(`^(D-Star|DMR|YSF|P25|NXDN|POCSAG|FM), [Ll]ogged into the master successfully$`)
	networkDown = regexp.MustCompile(`^(D-Star|DMR|YSF|P25|NXDN|POCSAG|FM), [Cc]onnection to the master has (?:failed|been lost)`)
	networkLink = regexp.MustCompile(`^(D-Star|YSF|NXDN), [Ll]inked to (.+)$`)

	// Metric fragments appearing at the tail of end-of-transmission lines,
	// e.g. ", 3.2 seconds, BER: 0.5%, RSSI: -43/-39/-41 dBm".
	secondsFrag = regexp.MustCompile(`(\d+(?:\.\d+)?) seconds`)
	berFrag     = regexp.MustCompile(`BER: (\d+(?:\.\d+)?)%`)
	rssiFrag    = regexp.MustCompile(`RSSI: (-?\d+)(?:/(-?\d+))*? dBm`)
	lossFrag    = regexp.MustCompile(`(\d+(?:\.\d+)?)% packet loss`)

	// Talkgroup destinations like "TG 235"; numeric sources like "2345678".
	tgDest    = regexp.MustCompile(`^TG (\d+)$`)
	numericID = regexp.MustCompile(`^\d+$`)
)

// Parse matches a raw log line against the known MMDVMHost patterns.
//
// It returns (nil, nil) when no pattern matches, a non-nil event on a full
// match, and (nil, error) when a line matched a pattern but a field could
// not be extracted. The readTime is used when the line carries no timestamp.
func Parse(line string, readTime time.Time) (*Event, error) {
	line = strings.TrimRight(line, "\r")

	ts := readTime
	body := line
	if m := linePrefix.FindStringSubmatch(line); m != nil {
		if t, err := time.ParseInLocation(timestampLayout, m[1], time.Local); err == nil {
			ts = t
		}
		body = m[2]
	}

	if m := dmrHeader.FindStringSubmatch(body); m != nil {
		slot, err := strconv.Atoi(m[1])
		if err != nil {
			return nil, fmt.Errorf("dmr header: bad slot %q", m[1])
		}
		ev := &Event{
			Kind:      KindHeader,
			Mode:      model.ModeDMR,
			Timestamp: ts,
			Slot:      slot,
			Source:    m[3],
			RFSource:  m[2] == "RF",
			Raw:       line,
		}
		fillDestination(ev, strings.TrimSpace(m[4]))
		fillSourceID(ev)
		return ev, nil
	}

	if m := dmrEnd.FindStringSubmatch(body); m != nil {
		slot, err := strconv.Atoi(m[1])
		if err != nil {
			return nil, fmt.Errorf("dmr end: bad slot %q", m[1])
		}
		ev := &Event{
			Kind:      endKind(body),
			Mode:      model.ModeDMR,
			Timestamp: ts,
			Slot:      slot,
			Source:    m[4],
			RFSource:  m[2] == "RF" || m[3] == "RF",
			Raw:       line,
		}
		if m[5] != "" {
			fillDestination(ev, strings.TrimSpace(m[5]))
		}
		fillMetrics(ev, body)
		return ev, nil
	}

	if dmrFrame.MatchString(body) {
		m := dmrFrame.FindStringSubmatch(body)
		slot, err := strconv.Atoi(m[1])
		if err != nil {
			return nil, fmt.Errorf("dmr frame: bad slot %q", m[1])
		}
		ev := &Event{
			Kind:      KindFrame,
			Mode:      model.ModeDMR,
			Timestamp: ts,
			Slot:      slot,
			RFSource:  m[2] != "network",
			Raw:       line,
		}
		fillMetrics(ev, body)
		return ev, nil
	}

	if m := plainHeader.FindStringSubmatch(body); m != nil {
		ev := &Event{
			Kind:      KindHeader,
			Mode:      model.ParseMode(m[1]),
			Timestamp: ts,
			Source:    m[3],
			RFSource:  m[2] == "RF",
			Raw:       line,
		}
		fillDestination(ev, strings.TrimSpace(m[4]))
		fillSourceID(ev)
		return ev, nil
	}

	if m := plainEnd.FindStringSubmatch(body); m != nil {
		ev := &Event{
			Kind:      endKind(body),
			Mode:      model.ParseMode(m[1]),
			Timestamp: ts,
			Source:    m[4],
			RFSource:  m[2] == "RF" || m[3] == "RF",
			Raw:       line,
		}
		if m[5] != "" {
			fillDestination(ev, strings.TrimSpace(m[5]))
		}
		fillMetrics(ev, body)
		return ev, nil
	}

	if m := modeSet.FindStringSubmatch(body); m != nil {
		mode := model.ModeIdle
		if !strings.EqualFold(m[1], "idle") {
			mode = model.ParseMode(m[1])
			if mode == model.ModeIdle {
				return nil, fmt.Errorf("mode set: unknown mode %q", m[1])
			}
		}
		return &Event{Kind: KindModeChange, Mode: mode, Timestamp: ts, Raw: line}, nil
	}

	if m := networkUp.FindStringSubmatch(body); m != nil {
		return &Event{
			Kind:          KindNetwork,
			Mode:          model.ParseMode(m[1]),
			Timestamp:     ts,
			NetworkStatus: model.NetworkConnected,
			Raw:           line,
		}, nil
	}

	if m := networkDown.FindStringSubmatch(body); m != nil {
		return &Event{
			Kind:          KindNetwork,
			Mode:          model.ParseMode(m[1]),
			Timestamp:     ts,
			NetworkStatus: model.NetworkDisconnected,
			Raw:           line,
		}, nil
	}

	if m := networkLink.FindStringSubmatch(body); m != nil {
		return &Event{
			Kind:          KindNetwork,
			Mode:          model.ParseMode(m[1]),
			Timestamp:     ts,
			NetworkStatus: model.NetworkConnected,
			NetworkName:   m[2],
			Raw:           line,
		}, nil
	}

	return nil, nil
}

func endKind(body string) Kind {
	if strings.Contains(body, "transmission lost") {
		return KindLost
	}
	return KindEnd
}

// fillDestination records the textual destination and, for talkgroup
// destinations, the numeric talkgroup as well.
func fillDestination(ev *Event, dest string) {
	ev.Destination = dest
	if m := tgDest.FindStringSubmatch(dest); m != nil {
		if tg, err := strconv.Atoi(m[1]); err == nil {
			ev.TalkGroup = tg
		}
	}
}

// fillSourceID records the numeric source ID for network-side DMR/P25
// traffic where the "callsign" is a radio ID.
func fillSourceID(ev *Event) {
	if numericID.MatchString(ev.Source) {
		if id, err := strconv.Atoi(ev.Source); err == nil {
			ev.SourceID = id
		}
	}
}

func fillMetrics(ev *Event, body string) {
	if m := secondsFrag.FindStringSubmatch(body); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			ev.Duration = &v
		}
	}
	if m := berFrag.FindStringSubmatch(body); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			ev.BER = &v
		}
	}
	if m := rssiFrag.FindStringSubmatch(body); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil {
			ev.RSSI = &v
		}
	}
	if m := lossFrag.FindStringSubmatch(body); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			ev.Loss = &v
		}
	}
}
