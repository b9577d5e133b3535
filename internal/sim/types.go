package sim

import (
	"time"

	"github.com/san-kum/liftsim/internal/tank"
)

// Default timing: one wall-clock second per tick, worth 1/60 of a
// simulated minute.
const (
	DefaultStep        = time.Second
	DefaultStepMinutes = 1.0 / 60.0
)

// Config holds the timing and initial state of a simulation run. Step
// (the real-time cadence) and StepMinutes (the simulated time each tick
// represents) are independent so tests can drive the model at virtual
// speed.
type Config struct {
	Step          time.Duration
	StepMinutes   float64
	InitialVolume float64
}

// Record is the outcome of a single tick, emitted to every registered
// emitter after the state commit.
type Record struct {
	Tick           int         `json:"tick"`
	ElapsedMinutes float64     `json:"elapsed_minutes"`
	Volume         float64     `json:"volume"`
	Inflow         float64     `json:"inflow"`
	Outflow        float64     `json:"outflow"`
	Net            float64     `json:"net"`
	Status         tank.Status `json:"status"`
	Overrun        bool        `json:"overrun"`
}

// Emitter receives per-tick records. An emitter error is reported and
// counted but never stops the loop.
type Emitter interface {
	Emit(Record) error
}

// EmitterFunc adapts a function to the Emitter interface.
type EmitterFunc func(Record) error

func (f EmitterFunc) Emit(r Record) error { return f(r) }

// Clock delivers tick boundaries. Production runs use WallClock; tests
// substitute a virtual clock for deterministic, wait-free runs.
type Clock interface {
	Ticks() <-chan time.Time
	Stop()
}

// WallClock ticks at a fixed real-time period.
type WallClock struct {
	ticker *time.Ticker
}

func NewWallClock(period time.Duration) *WallClock {
	return &WallClock{ticker: time.NewTicker(period)}
}

func (w *WallClock) Ticks() <-chan time.Time { return w.ticker.C }
func (w *WallClock) Stop()                   { w.ticker.Stop() }

// Result summarizes a completed run.
type Result struct {
	Ticks          int
	ElapsedMinutes float64
	FinalVolume    float64
	Overflows      int
	Underflows     int
	Overruns       int
	EmitErrors     int
}
