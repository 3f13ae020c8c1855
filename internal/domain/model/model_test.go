package model

import (
	"testing"
	"time"
)

func TestFinalize(t *testing.T) {
	start := time.Date(2024, 3, 1, 18, 4, 50, 0, time.UTC)
	q := NewQSO(ModeDMR, start)

	if q.Status != StatusStarting {
		t.Fatalf("status = %v, want STARTING", q.Status)
	}
	if q.ID == "" {
		t.Fatal("expected a generated id")
	}

	end := start.Add(3200 * time.Millisecond)
	q.Finalize(StatusCompleted, end)

	if q.Status != StatusCompleted {
		t.Errorf("status = %v, want COMPLETED", q.Status)
	}
	if q.EndTime == nil || !q.EndTime.Equal(end) {
		t.Errorf("end time = %v, want %v", q.EndTime, end)
	}
	if q.DurationSeconds == nil || *q.DurationSeconds != 3.2 {
		t.Errorf("duration = %v, want 3.2", q.DurationSeconds)
	}
}

func TestFinalizeClampsNegativeDuration(t *testing.T) {
	start := time.Date(2024, 3, 1, 18, 4, 50, 0, time.UTC)
	q := NewQSO(ModeYSF, start)

	q.Finalize(StatusCompleted, start.Add(-5*time.Second))

	if q.DurationSeconds == nil || *q.DurationSeconds != 0 {
		t.Errorf("duration = %v, want clamped to 0", q.DurationSeconds)
	}
}

func TestFinalizeTerminalIsNoOp(t *testing.T) {
	start := time.Now()
	q := NewQSO(ModeDMR, start)
	q.Finalize(StatusError, start.Add(time.Second))

	q.Finalize(StatusCompleted, start.Add(time.Minute))

	if q.Status != StatusError {
		t.Errorf("status = %v, want ERROR preserved", q.Status)
	}
	if *q.DurationSeconds != 1 {
		t.Errorf("duration = %v, want 1", *q.DurationSeconds)
	}
}

func TestTerminal(t *testing.T) {
	for _, s := range []QSOStatus{StatusCompleted, StatusTimeout, StatusError} {
		if !s.Terminal() {
			t.Errorf("%v should be terminal", s)
		}
	}
	for _, s := range []QSOStatus{StatusStarting, StatusActive, StatusEnding} {
		if s.Terminal() {
			t.Errorf("%v should not be terminal", s)
		}
		q := QSO{Status: s}
		if !q.IsActive() {
			t.Errorf("%v should be active", s)
		}
	}
}

func TestCloneIsDeep(t *testing.T) {
	ber := 0.5
	q := NewQSO(ModeDMR, time.Now())
	q.BER = &ber
	q.Metadata = map[string]string{"reported_duration": "3.2"}

	c := q.Clone()
	*c.BER = 9.9
	c.Metadata["reported_duration"] = "changed"

	if *q.BER != 0.5 {
		t.Errorf("ber = %v, original mutated through clone", *q.BER)
	}
	if q.Metadata["reported_duration"] != "3.2" {
		t.Error("metadata mutated through clone")
	}
}

func TestQSOEventPayload(t *testing.T) {
	d := 3.2
	q := NewQSO(ModeDMR, time.Now())
	q.SourceCallsign = "G4KLX"
	q.Destination = "TG 235"
	q.Slot = 1
	q.TalkGroup = 235
	q.DurationSeconds = &d

	ev := QSOEvent(EventQSOCompleted, SeverityInfo, q, time.Now())

	if ev.Type != EventQSOCompleted || ev.Severity != SeverityInfo {
		t.Errorf("type/severity = %v/%v", ev.Type, ev.Severity)
	}
	if ev.Data["qso_id"] != q.ID {
		t.Errorf("qso_id = %v, want %v", ev.Data["qso_id"], q.ID)
	}
	if ev.Data["source_callsign"] != "G4KLX" || ev.Data["talk_group"] != 235 {
		t.Errorf("payload = %v", ev.Data)
	}
	if ev.Data["duration_seconds"] != 3.2 {
		t.Errorf("duration = %v, want 3.2", ev.Data["duration_seconds"])
	}
}
