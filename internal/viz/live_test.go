package viz

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/san-kum/liftsim/internal/sim"
)

func TestChannelEmitterNeverBlocks(t *testing.T) {
	e, ch := ChannelEmitter(2)

	for i := 1; i <= 5; i++ {
		if err := e.Emit(sim.Record{Tick: i}); err != nil {
			t.Fatalf("emit failed: %v", err)
		}
	}

	// Oldest records are dropped; the newest survive.
	first := <-ch
	second := <-ch
	if second.Tick != 5 {
		t.Errorf("expected newest record 5 last, got %d", second.Tick)
	}
	if first.Tick >= second.Tick {
		t.Errorf("records out of order: %d then %d", first.Tick, second.Tick)
	}

	select {
	case r := <-ch:
		t.Errorf("unexpected extra record %d", r.Tick)
	default:
	}
}

func TestModelUpdateAccumulatesHistory(t *testing.T) {
	_, ch := ChannelEmitter(1)

	var tm tea.Model = NewModel(ch, 20000)
	for i := 1; i <= 3; i++ {
		tm, _ = tm.Update(recordMsg(sim.Record{Tick: i, Volume: float64(i) * 10}))
	}

	final := tm.(Model)
	if !final.got {
		t.Fatal("expected model to have received records")
	}
	if final.latest.Tick != 3 {
		t.Errorf("expected latest tick 3, got %d", final.latest.Tick)
	}
	if len(final.history) != 3 {
		t.Errorf("expected 3 history points, got %d", len(final.history))
	}
}
