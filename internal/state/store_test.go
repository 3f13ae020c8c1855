package state

import (
	"testing"
	"time"

	"mmdvmstate/internal/domain/model"
)

func terminalQSO(t *testing.T, callsign string) model.QSO {
	t.Helper()
	q := model.NewQSO(model.ModeDMR, time.Now().Add(-5*time.Second))
	q.SourceCallsign = callsign
	q.Finalize(model.StatusCompleted, time.Now())
	return q
}

func TestHistoryEviction(t *testing.T) {
	s := New(WithHistorySize(2))

	a := terminalQSO(t, "A1AAA")
	b := terminalQSO(t, "B1BBB")
	c := terminalQSO(t, "C1CCC")
	s.Finalize(a)
	s.Finalize(b)
	s.Finalize(c)

	hist := s.History(0)
	if len(hist) != 2 {
		t.Fatalf("history length = %d, want 2", len(hist))
	}
	if hist[0].SourceCallsign != "C1CCC" || hist[1].SourceCallsign != "B1BBB" {
		t.Errorf("history = [%s %s], want [C1CCC B1BBB]",
			hist[0].SourceCallsign, hist[1].SourceCallsign)
	}

	if _, ok := s.GetQSO(a.ID); ok {
		t.Error("evicted QSO still retrievable")
	}
}

func TestHistoryLimit(t *testing.T) {
	s := New(WithHistorySize(10))
	for i := 0; i < 5; i++ {
		s.Finalize(terminalQSO(t, "G4KLX"))
	}

	if got := len(s.History(3)); got != 3 {
		t.Errorf("History(3) length = %d, want 3", got)
	}
	if got := len(s.History(0)); got != 5 {
		t.Errorf("History(0) length = %d, want 5", got)
	}
	if got := len(s.History(100)); got != 5 {
		t.Errorf("History(100) length = %d, want 5", got)
	}
}

func TestActiveLifecycle(t *testing.T) {
	s := New()

	q := model.NewQSO(model.ModeDMR, time.Now())
	q.SourceCallsign = "G4KLX"
	s.AddActive(q)

	got, ok := s.GetQSO(q.ID)
	if !ok || got.SourceCallsign != "G4KLX" {
		t.Fatalf("GetQSO = %+v, %v", got, ok)
	}

	q.Status = model.StatusActive
	ber := 0.5
	q.BER = &ber
	s.UpdateActive(q)

	got, _ = s.GetQSO(q.ID)
	if got.Status != model.StatusActive || got.BER == nil || *got.BER != 0.5 {
		t.Errorf("after update: %+v", got)
	}

	q.Finalize(model.StatusCompleted, time.Now())
	s.Finalize(q)

	if n := len(s.Snapshot().ActiveQSOs); n != 0 {
		t.Errorf("active count = %d after finalize, want 0", n)
	}
	got, ok = s.GetQSO(q.ID)
	if !ok || got.Status != model.StatusCompleted {
		t.Errorf("finalized QSO lookup = %+v, %v", got, ok)
	}

	total, _, _, _ := s.Stats()
	if total != 1 {
		t.Errorf("total processed = %d, want 1", total)
	}
}

func TestUpdateActiveUnknownIgnored(t *testing.T) {
	s := New()
	q := model.NewQSO(model.ModeYSF, time.Now())
	s.UpdateActive(q)

	if n := len(s.Snapshot().ActiveQSOs); n != 0 {
		t.Errorf("update of unknown id created an entry, active = %d", n)
	}
}

func TestSnapshotIsolation(t *testing.T) {
	s := New()
	q := model.NewQSO(model.ModeDMR, time.Now())
	q.Metadata = map[string]string{"k": "v"}
	s.AddActive(q)

	snap := s.Snapshot()
	snap.ActiveQSOs[0].SourceCallsign = "MUTATED"
	snap.ActiveQSOs[0].Metadata["k"] = "mutated"

	again, _ := s.GetQSO(q.ID)
	if again.SourceCallsign == "MUTATED" || again.Metadata["k"] != "v" {
		t.Error("snapshot shares storage with the store")
	}
}

func TestRecordError(t *testing.T) {
	s := New()
	s.RecordError("first")
	s.RecordError("second")

	snap := s.Snapshot()
	if snap.ErrorCount != 2 {
		t.Errorf("error count = %d, want 2", snap.ErrorCount)
	}
	if snap.LastError != "second" {
		t.Errorf("last error = %q, want second", snap.LastError)
	}
	if snap.LastErrorTime == nil {
		t.Error("last error time not set")
	}
}

func TestObserveLogTimeMonotonic(t *testing.T) {
	s := New()
	later := time.Date(2024, 3, 1, 18, 5, 0, 0, time.UTC)
	earlier := later.Add(-time.Minute)

	s.ObserveLogTime(later)
	s.ObserveLogTime(earlier)

	_, _, _, lastLog := s.Stats()
	if !lastLog.Equal(later) {
		t.Errorf("last log time = %v, want %v", lastLog, later)
	}
}

func TestEnabledModes(t *testing.T) {
	s := New(WithEnabledModes([]model.Mode{model.ModeDMR, model.ModeYSF}))

	snap := s.Snapshot()
	if len(snap.ModeStatus) != 2 {
		t.Fatalf("mode status entries = %d, want 2", len(snap.ModeStatus))
	}
	ms := snap.ModeStatus[model.ModeDMR]
	if !ms.Enabled || ms.NetworkStatus != model.NetworkUnknown {
		t.Errorf("dmr status = %+v", ms)
	}

	s.SetNetworkStatus(model.ModeDMR, model.NetworkConnected, "BM2001")
	ms = s.Snapshot().ModeStatus[model.ModeDMR]
	if ms.NetworkStatus != model.NetworkConnected || ms.NetworkName != "BM2001" {
		t.Errorf("after connect: %+v", ms)
	}
	if ms.LastActivity == nil {
		t.Error("last activity not stamped")
	}
}
