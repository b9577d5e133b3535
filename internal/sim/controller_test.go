package sim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/san-kum/liftsim/internal/params"
	"github.com/san-kum/liftsim/internal/tank"
)

// virtualClock drives the loop without wall-clock waits.
type virtualClock struct {
	ch chan time.Time
}

func newVirtualClock() *virtualClock {
	return &virtualClock{ch: make(chan time.Time)}
}

func (v *virtualClock) Ticks() <-chan time.Time { return v.ch }
func (v *virtualClock) Stop()                   {}

func (v *virtualClock) tick(at time.Time) { v.ch <- at }

func newTestController(t *testing.T, cfg Config) (*Controller, *params.Store) {
	t.Helper()
	tk, err := tank.New(20000, 60)
	if err != nil {
		t.Fatalf("tank: %v", err)
	}
	store, err := params.NewStore(100, 2, true)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	ctrl, err := New(tk, store, cfg)
	if err != nil {
		t.Fatalf("controller: %v", err)
	}
	return ctrl, store
}

func defaultTestConfig() Config {
	return Config{Step: time.Second, StepMinutes: 1.0 / 60.0}
}

// runLoop starts Run in a goroutine and returns a channel-backed record
// stream so tests can observe each tick deterministically.
func runLoop(ctrl *Controller, clock Clock) (records <-chan Record, stop func() (*Result, error)) {
	ch := make(chan Record, 64)
	ctrl.AddEmitter(EmitterFunc(func(r Record) error {
		ch <- r
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	type done struct {
		result *Result
		err    error
	}
	doneCh := make(chan done, 1)
	go func() {
		result, err := ctrl.Run(ctx, clock)
		doneCh <- done{result, err}
	}()

	return ch, func() (*Result, error) {
		cancel()
		d := <-doneCh
		return d.result, d.err
	}
}

func TestNewValidation(t *testing.T) {
	tk, _ := tank.New(20000, 60)
	store, _ := params.NewStore(100, 2, true)

	tests := []struct {
		name string
		cfg  Config
	}{
		{"zero step", Config{Step: 0, StepMinutes: 1.0 / 60.0}},
		{"zero step minutes", Config{Step: time.Second, StepMinutes: 0}},
		{"negative initial volume", Config{Step: time.Second, StepMinutes: 1.0 / 60.0, InitialVolume: -1}},
		{"initial volume over capacity", Config{Step: time.Second, StepMinutes: 1.0 / 60.0, InitialVolume: 20001}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tk, store, tt.cfg); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestRunAdvancesOncePerTick(t *testing.T) {
	ctrl, _ := newTestController(t, defaultTestConfig())
	clock := newVirtualClock()
	records, stop := runLoop(ctrl, clock)

	now := time.Now()
	for i := 1; i <= 3; i++ {
		clock.tick(now.Add(time.Duration(i) * time.Second))
		rec := <-records

		if rec.Tick != i {
			t.Errorf("expected tick %d, got %d", i, rec.Tick)
		}
		wantVolume := float64(i) * 40.0 / 60.0
		if math.Abs(rec.Volume-wantVolume) > 1e-9 {
			t.Errorf("tick %d: expected volume %f, got %f", i, wantVolume, rec.Volume)
		}
		wantElapsed := float64(i) / 60.0
		if math.Abs(rec.ElapsedMinutes-wantElapsed) > 1e-9 {
			t.Errorf("tick %d: expected elapsed %f, got %f", i, wantElapsed, rec.ElapsedMinutes)
		}
		if rec.Status != tank.StatusOK {
			t.Errorf("tick %d: expected OK, got %v", i, rec.Status)
		}
	}

	result, err := stop()
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if result.Ticks != 3 {
		t.Errorf("expected 3 ticks, got %d", result.Ticks)
	}
	if math.Abs(result.ElapsedMinutes-3.0/60.0) > 1e-9 {
		t.Errorf("expected elapsed 0.05 min, got %f", result.ElapsedMinutes)
	}
}

func TestParameterUpdatesApplyAtNextTick(t *testing.T) {
	ctrl, store := newTestController(t, defaultTestConfig())
	clock := newVirtualClock()
	records, stop := runLoop(ctrl, clock)
	defer stop()

	now := time.Now()
	clock.tick(now)
	rec := <-records
	if rec.Net != 40 {
		t.Fatalf("expected net 40 before update, got %f", rec.Net)
	}

	// A burst of updates between ticks coalesces to the last value.
	for _, v := range []float64{10, 20, 200} {
		if err := store.Set(params.FabOutflow, v); err != nil {
			t.Fatalf("set failed: %v", err)
		}
	}
	if err := store.Set(params.PumpStatus, 0); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	clock.tick(now.Add(time.Second))
	rec = <-records
	if rec.Inflow != 200 {
		t.Errorf("expected inflow 200, got %f", rec.Inflow)
	}
	if rec.Outflow != 0 {
		t.Errorf("expected outflow 0, got %f", rec.Outflow)
	}
	if rec.Net != 200 {
		t.Errorf("expected net 200, got %f", rec.Net)
	}
}

func TestEmitErrorDoesNotStopLoop(t *testing.T) {
	ctrl, _ := newTestController(t, defaultTestConfig())
	ctrl.AddEmitter(EmitterFunc(func(Record) error {
		return fmt.Errorf("broker unreachable")
	}))

	clock := newVirtualClock()
	records, stop := runLoop(ctrl, clock)

	now := time.Now()
	clock.tick(now)
	<-records
	clock.tick(now.Add(time.Second))
	<-records

	result, _ := stop()
	if result.Ticks != 2 {
		t.Errorf("expected 2 ticks despite emit errors, got %d", result.Ticks)
	}
	if result.EmitErrors != 2 {
		t.Errorf("expected 2 emit errors, got %d", result.EmitErrors)
	}
}

func TestOverrunDetectedAndCounted(t *testing.T) {
	var logged []string
	ctrl, _ := newTestController(t, defaultTestConfig())
	ctrl.Logf = func(format string, v ...any) {
		logged = append(logged, fmt.Sprintf(format, v...))
	}

	clock := newVirtualClock()
	records, stop := runLoop(ctrl, clock)

	now := time.Now()
	clock.tick(now)
	rec := <-records
	if rec.Overrun {
		t.Error("first tick cannot be an overrun")
	}

	// Gap of 3 periods: the previous tick body ran long.
	clock.tick(now.Add(3 * time.Second))
	rec = <-records
	if !rec.Overrun {
		t.Error("expected overrun flag after a 3-period gap")
	}
	if rec.Tick != 2 {
		t.Errorf("overrun must not double-apply ticks: expected tick 2, got %d", rec.Tick)
	}
	if math.Abs(rec.ElapsedMinutes-2.0/60.0) > 1e-9 {
		t.Errorf("elapsed time double-counted: got %f", rec.ElapsedMinutes)
	}

	result, _ := stop()
	if result.Overruns != 1 {
		t.Errorf("expected 1 overrun, got %d", result.Overruns)
	}
	if len(logged) == 0 {
		t.Error("expected overrun to be reported")
	}
}

func TestClampStatusCounted(t *testing.T) {
	cfg := defaultTestConfig()
	cfg.InitialVolume = 20000
	ctrl, store := newTestController(t, cfg)
	if err := store.Set(params.PumpStatus, 0); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	clock := newVirtualClock()
	records, stop := runLoop(ctrl, clock)

	now := time.Now()
	clock.tick(now)
	rec := <-records
	if rec.Status != tank.StatusOverflow {
		t.Errorf("expected OVERFLOW at capacity, got %v", rec.Status)
	}
	if rec.Volume != 20000 {
		t.Errorf("expected volume pinned at capacity, got %f", rec.Volume)
	}

	result, _ := stop()
	if result.Overflows != 1 {
		t.Errorf("expected 1 overflow, got %d", result.Overflows)
	}
}

func TestShutdownCompletesInFlightTick(t *testing.T) {
	ctrl, _ := newTestController(t, defaultTestConfig())
	clock := newVirtualClock()
	records, stop := runLoop(ctrl, clock)

	clock.tick(time.Now())
	rec := <-records

	result, err := stop()
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if result.Ticks != 1 {
		t.Errorf("expected the in-flight tick committed, got %d ticks", result.Ticks)
	}
	if result.FinalVolume != rec.Volume {
		t.Errorf("result volume %f does not match last emitted %f", result.FinalVolume, rec.Volume)
	}
}

func TestAccessors(t *testing.T) {
	cfg := defaultTestConfig()
	cfg.InitialVolume = 123.5
	ctrl, _ := newTestController(t, cfg)

	if ctrl.Volume() != 123.5 {
		t.Errorf("expected initial volume 123.5, got %f", ctrl.Volume())
	}
	if ctrl.Elapsed() != 0 {
		t.Errorf("expected zero elapsed time, got %f", ctrl.Elapsed())
	}
}
