package tank

import "fmt"

// Default physical constants for the dual-tank lift station.
const (
	DefaultCapacity = 20000.0 // combined capacity of both tanks (L)
	DefaultPumpRate = 60.0    // continuous flow rate of one pump (L/min)
)

// Status reports whether an advance step hit a volume bound.
type Status int

const (
	StatusOK Status = iota
	StatusOverflow
	StatusUnderflow
)

func (s Status) String() string {
	switch s {
	case StatusOverflow:
		return "OVERFLOW"
	case StatusUnderflow:
		return "UNDERFLOW"
	default:
		return "OK"
	}
}

// Rates is the resolved flow breakdown for one step, in L/min.
type Rates struct {
	Inflow  float64
	Outflow float64
	Net     float64
}

// Tank holds the fixed infrastructure characteristics of the station.
// Both operations are pure: no I/O, no mutable state.
type Tank struct {
	Capacity float64
	PumpRate float64
}

func New(capacity, pumpRate float64) (Tank, error) {
	if capacity <= 0 {
		return Tank{}, fmt.Errorf("tank: capacity must be positive, got %f", capacity)
	}
	if pumpRate <= 0 {
		return Tank{}, fmt.Errorf("tank: pump rate must be positive, got %f", pumpRate)
	}
	return Tank{Capacity: capacity, PumpRate: pumpRate}, nil
}

// NetRate resolves the instantaneous flow rates from the control inputs.
// With both tanks active the full fab outflow applies; with one of the
// two parallel fill paths closed the inflow capability is halved. The
// scaling is discrete, not continuous: any count other than 2 takes the
// halved path, so an out-of-contract count can never amplify inflow.
func (t Tank) NetRate(activeTanks int, fabOutflow float64, pumpOn bool) Rates {
	inflow := fabOutflow
	if activeTanks != 2 {
		inflow = fabOutflow / 2
	}

	outflow := 0.0
	if pumpOn {
		outflow = t.PumpRate
	}

	return Rates{
		Inflow:  inflow,
		Outflow: outflow,
		Net:     inflow - outflow,
	}
}

// Advance integrates the net rate over one step and clamps the result
// to [0, Capacity]. Overflow is discarded, not stored; draining an
// empty tank floors at zero rather than erroring.
func (t Tank) Advance(volume, net, stepMinutes float64) (float64, Status) {
	proposed := volume + net*stepMinutes

	if proposed > t.Capacity {
		return t.Capacity, StatusOverflow
	}
	if proposed < 0 {
		return 0, StatusUnderflow
	}
	return proposed, StatusOK
}
