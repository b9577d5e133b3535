// Package sim owns the authoritative simulation state and the
// fixed-cadence loop that advances it.
//
// Each tick takes one consistent snapshot of the control parameters,
// computes the net rate, advances the bounded volume, commits the new
// state, and emits a [Record]. The whole tick is one atomic unit of
// work: shutdown is observed only between ticks, so an in-flight tick
// always completes.
package sim

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/san-kum/liftsim/internal/params"
	"github.com/san-kum/liftsim/internal/tank"
)

// Controller drives the tick loop. It is the only writer of the
// simulation state; parameter updates reach it exclusively through the
// store snapshot taken at each tick boundary.
type Controller struct {
	tank     tank.Tank
	store    *params.Store
	cfg      Config
	emitters []Emitter

	// Logf reports non-fatal conditions (emit failures, overruns).
	// Nil discards.
	Logf func(format string, v ...any)

	mu      sync.RWMutex
	volume  float64
	elapsed float64
	tick    int
}

func New(tk tank.Tank, store *params.Store, cfg Config) (*Controller, error) {
	if cfg.Step <= 0 {
		return nil, fmt.Errorf("sim: step period must be positive, got %v", cfg.Step)
	}
	if cfg.StepMinutes <= 0 {
		return nil, fmt.Errorf("sim: step minutes must be positive, got %f", cfg.StepMinutes)
	}
	if cfg.InitialVolume < 0 || cfg.InitialVolume > tk.Capacity {
		return nil, fmt.Errorf("sim: initial volume %f outside [0, %f]", cfg.InitialVolume, tk.Capacity)
	}
	return &Controller{
		tank:     tk,
		store:    store,
		cfg:      cfg,
		emitters: make([]Emitter, 0),
		volume:   cfg.InitialVolume,
	}, nil
}

func (c *Controller) AddEmitter(e Emitter) { c.emitters = append(c.emitters, e) }

// Volume returns the current committed volume in liters.
func (c *Controller) Volume() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.volume
}

// Elapsed returns the simulated time in minutes.
func (c *Controller) Elapsed() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.elapsed
}

// Run executes the tick loop until ctx is canceled. Ticks serialize: the
// loop body runs between clock receives, so a slow tick delays the next
// one rather than overlapping it; the clock coalesces missed firings.
// Elapsed simulated time advances exactly one step per executed tick,
// so an overrun slows the simulation down instead of double-counting
// time. Overruns are detected from wall-clock drift and reported.
func (c *Controller) Run(ctx context.Context, clock Clock) (*Result, error) {
	defer clock.Stop()

	result := &Result{FinalVolume: c.Volume()}
	var prev time.Time

	for {
		select {
		case <-ctx.Done():
			result.FinalVolume = c.Volume()
			result.ElapsedMinutes = c.Elapsed()
			return result, ctx.Err()
		case now := <-clock.Ticks():
			overrun := !prev.IsZero() && now.Sub(prev) > c.cfg.Step+c.cfg.Step/2
			prev = now

			rec := c.step(overrun)

			result.Ticks++
			switch rec.Status {
			case tank.StatusOverflow:
				result.Overflows++
			case tank.StatusUnderflow:
				result.Underflows++
			}
			if overrun {
				result.Overruns++
				c.logf("tick %d overran the %v period", rec.Tick, c.cfg.Step)
			}

			for _, e := range c.emitters {
				if err := e.Emit(rec); err != nil {
					result.EmitErrors++
					c.logf("emit failed on tick %d: %v", rec.Tick, err)
				}
			}
		}
	}
}

// step executes one full tick: snapshot, compute, commit.
func (c *Controller) step(overrun bool) Record {
	snap := c.store.Snapshot()
	rates := c.tank.NetRate(snap.ActiveTanks, snap.Outflow, snap.PumpOn)

	c.mu.Lock()
	volume, status := c.tank.Advance(c.volume, rates.Net, c.cfg.StepMinutes)
	c.volume = volume
	c.elapsed += c.cfg.StepMinutes
	c.tick++
	rec := Record{
		Tick:           c.tick,
		ElapsedMinutes: c.elapsed,
		Volume:         volume,
		Inflow:         rates.Inflow,
		Outflow:        rates.Outflow,
		Net:            rates.Net,
		Status:         status,
		Overrun:        overrun,
	}
	c.mu.Unlock()

	return rec
}

func (c *Controller) logf(format string, v ...any) {
	if c.Logf != nil {
		c.Logf(format, v...)
	}
}
