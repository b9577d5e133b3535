// Package viz provides the terminal dashboard for a running simulation.
//
// The dashboard is a Bubble Tea program fed by the controller's tick
// records through a channel emitter:
//
//   - volume gauge against total capacity
//   - resolved inflow/outflow/net rates and clamp status
//   - sparkline of recent volume history
//
// It is a diagnostic surface only; no key changes simulation state.
// Quitting the dashboard triggers the same graceful shutdown as an
// interrupt in headless mode.
package viz
