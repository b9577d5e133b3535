package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/liftsim/internal/tank"
	"github.com/san-kum/liftsim/internal/transport"
)

const (
	DefaultBroker      = "tcp://localhost:1883"
	DefaultStepSeconds = 1.0
	DefaultStepMinutes = 1.0 / 60.0
	DefaultOutflow     = 100.0
	DefaultActiveTanks = 2
	DefaultDataDir     = ".liftsim"
)

// Config is the process configuration: read once at startup, not
// reactive. Control parameters here are only the initial values; the
// live values arrive over the transport.
type Config struct {
	Broker   string       `yaml:"broker"`
	ClientID string       `yaml:"client_id"`
	Topics   TopicsConfig `yaml:"topics"`

	Capacity float64 `yaml:"capacity"`
	PumpRate float64 `yaml:"pump_rate"`

	StepSeconds   float64 `yaml:"step_seconds"`
	StepMinutes   float64 `yaml:"step_minutes"`
	InitialVolume float64 `yaml:"initial_volume"`

	Initial InitialConfig `yaml:"initial"`

	DataDir string `yaml:"data_dir"`
}

type TopicsConfig struct {
	FabOutflow  string `yaml:"fab_outflow"`
	ActiveTanks string `yaml:"active_tanks"`
	PumpStatus  string `yaml:"pump_status"`
	Volume      string `yaml:"volume"`
	Record      string `yaml:"record"`
}

// InitialConfig sets the control parameters before the first update
// arrives.
type InitialConfig struct {
	Outflow     float64 `yaml:"outflow"`
	ActiveTanks int     `yaml:"active_tanks"`
	PumpOn      bool    `yaml:"pump_on"`
}

func DefaultConfig() *Config {
	topics := transport.DefaultTopics()
	return &Config{
		Broker: DefaultBroker,
		Topics: TopicsConfig{
			FabOutflow:  topics.FabOutflow,
			ActiveTanks: topics.ActiveTanks,
			PumpStatus:  topics.PumpStatus,
			Volume:      topics.Volume,
			Record:      topics.Record,
		},
		Capacity:    tank.DefaultCapacity,
		PumpRate:    tank.DefaultPumpRate,
		StepSeconds: DefaultStepSeconds,
		StepMinutes: DefaultStepMinutes,
		Initial: InitialConfig{
			Outflow:     DefaultOutflow,
			ActiveTanks: DefaultActiveTanks,
			PumpOn:      true,
		},
		DataDir: DefaultDataDir,
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Validate() error {
	if c.Broker == "" {
		return fmt.Errorf("config: broker must be set")
	}
	if c.Capacity <= 0 {
		return fmt.Errorf("config: capacity must be positive, got %f", c.Capacity)
	}
	if c.PumpRate <= 0 {
		return fmt.Errorf("config: pump rate must be positive, got %f", c.PumpRate)
	}
	if c.StepSeconds <= 0 {
		return fmt.Errorf("config: step seconds must be positive, got %f", c.StepSeconds)
	}
	if c.StepMinutes <= 0 {
		return fmt.Errorf("config: step minutes must be positive, got %f", c.StepMinutes)
	}
	if c.InitialVolume < 0 || c.InitialVolume > c.Capacity {
		return fmt.Errorf("config: initial volume %f outside [0, %f]", c.InitialVolume, c.Capacity)
	}
	return nil
}

// Step returns the tick period as a duration.
func (c *Config) Step() time.Duration {
	return time.Duration(c.StepSeconds * float64(time.Second))
}

// TransportTopics converts the yaml topic block to the transport type.
func (c *Config) TransportTopics() transport.Topics {
	return transport.Topics{
		FabOutflow:  c.Topics.FabOutflow,
		ActiveTanks: c.Topics.ActiveTanks,
		PumpStatus:  c.Topics.PumpStatus,
		Volume:      c.Topics.Volume,
		Record:      c.Topics.Record,
	}
}
