package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/san-kum/liftsim/internal/sim"
	"github.com/san-kum/liftsim/internal/tank"
)

func sampleRecords() []sim.Record {
	return []sim.Record{
		{Tick: 1, ElapsedMinutes: 1.0 / 60.0, Volume: 0.666667, Inflow: 100, Outflow: 60, Net: 40, Status: tank.StatusOK},
		{Tick: 2, ElapsedMinutes: 2.0 / 60.0, Volume: 1.333333, Inflow: 100, Outflow: 60, Net: 40, Status: tank.StatusOK},
		{Tick: 3, ElapsedMinutes: 3.0 / 60.0, Volume: 20000, Inflow: 100, Outflow: 0, Net: 100, Status: tank.StatusOverflow, Overrun: true},
	}
}

func TestRecorderSaveLoad(t *testing.T) {
	st := New(t.TempDir())
	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	rec := st.NewRecorder(20000, 60, 1.0/60.0)
	for _, r := range sampleRecords() {
		if err := rec.Emit(r); err != nil {
			t.Fatalf("emit failed: %v", err)
		}
	}

	sessionID, err := rec.Close()
	if err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if sessionID == "" {
		t.Fatal("expected non-empty session id")
	}

	meta, err := st.Load(sessionID)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if meta.Ticks != 3 {
		t.Errorf("expected 3 ticks, got %d", meta.Ticks)
	}
	if meta.Capacity != 20000 {
		t.Errorf("expected capacity 20000, got %f", meta.Capacity)
	}
	if meta.FinalVolume != 20000 {
		t.Errorf("expected final volume 20000, got %f", meta.FinalVolume)
	}
	if meta.Overflows != 1 {
		t.Errorf("expected 1 overflow, got %d", meta.Overflows)
	}
	if meta.Overruns != 1 {
		t.Errorf("expected 1 overrun, got %d", meta.Overruns)
	}

	ticks, err := st.LoadTicks(sessionID)
	if err != nil {
		t.Fatalf("load ticks failed: %v", err)
	}

	if len(ticks) != 3 {
		t.Fatalf("expected 3 tick records, got %d", len(ticks))
	}
	if ticks[0].Net != 40 {
		t.Errorf("expected net 40, got %f", ticks[0].Net)
	}
	if ticks[2].Status != tank.StatusOverflow {
		t.Errorf("expected OVERFLOW, got %v", ticks[2].Status)
	}
	if !ticks[2].Overrun {
		t.Error("expected overrun flag preserved")
	}
}

func TestStoreList(t *testing.T) {
	st := New(t.TempDir())
	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	sessions, err := st.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(sessions) != 0 {
		t.Errorf("expected 0 sessions, got %d", len(sessions))
	}

	rec := st.NewRecorder(20000, 60, 1.0/60.0)
	rec.Emit(sampleRecords()[0])
	if _, err := rec.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}

	sessions, err = st.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(sessions) != 1 {
		t.Errorf("expected 1 session, got %d", len(sessions))
	}
}

func TestListMissingBaseDir(t *testing.T) {
	st := New(filepath.Join(t.TempDir(), "never-created"))

	sessions, err := st.List()
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(sessions) != 0 {
		t.Errorf("expected 0 sessions, got %d", len(sessions))
	}
}

func TestSessionFileStructure(t *testing.T) {
	dir := t.TempDir()
	st := New(dir)
	if err := st.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	rec := st.NewRecorder(20000, 60, 1.0/60.0)
	rec.Emit(sampleRecords()[0])
	sessionID, err := rec.Close()
	if err != nil {
		t.Fatalf("close failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, sessionID, "metadata.json")); os.IsNotExist(err) {
		t.Error("metadata.json not created")
	}
	if _, err := os.Stat(filepath.Join(dir, sessionID, "ticks.csv")); os.IsNotExist(err) {
		t.Error("ticks.csv not created")
	}
}
