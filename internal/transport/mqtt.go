// Package transport connects the simulation to an MQTT broker. Control
// values arrive as decimal text on three subscribed topics and flow into
// the parameter store; the per-tick volume and a structured record are
// published outward.
package transport

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/san-kum/liftsim/internal/params"
	"github.com/san-kum/liftsim/internal/sim"
)

// Default topic layout of the lift-station deployment.
const (
	DefaultFabOutflowTopic  = "lift_station/fab_outflow"
	DefaultActiveTanksTopic = "lift_station/active_tanks"
	DefaultPumpStatusTopic  = "lift_station/pump_status"
	DefaultVolumeTopic      = "data/lift_station/current_volume"
	DefaultRecordTopic      = "data/lift_station/tick_record"
)

const (
	controlQoS     = 0
	publishTimeout = 2 * time.Second
)

// Topics names the three inbound control topics and the two outbound
// data topics.
type Topics struct {
	FabOutflow  string
	ActiveTanks string
	PumpStatus  string
	Volume      string
	Record      string
}

func DefaultTopics() Topics {
	return Topics{
		FabOutflow:  DefaultFabOutflowTopic,
		ActiveTanks: DefaultActiveTanksTopic,
		PumpStatus:  DefaultPumpStatusTopic,
		Volume:      DefaultVolumeTopic,
		Record:      DefaultRecordTopic,
	}
}

// Client wraps the paho client. It implements [sim.Emitter] for the
// outbound side; publish failures surface as errors for the controller
// to count, never as panics or stalls.
type Client struct {
	cli    mqtt.Client
	topics Topics

	// Logf reports rejected control payloads. Nil discards.
	Logf func(format string, v ...any)
}

func New(broker, clientID string, topics Topics) *Client {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetryInterval(time.Second)

	return &Client{cli: mqtt.NewClient(opts), topics: topics}
}

// Connect establishes the broker session. A failure here is the one
// fatal transport condition: without an outward channel the process
// should not start.
func (c *Client) Connect(timeout time.Duration) error {
	token := c.cli.Connect()
	if !token.WaitTimeout(timeout) {
		return fmt.Errorf("transport: connect to broker timed out after %v", timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("transport: connect to broker: %w", err)
	}
	return nil
}

// SubscribeControls routes the three control topics into the store.
// Each message overwrites one parameter, last value wins; invalid
// payloads are reported and the prior value retained.
func (c *Client) SubscribeControls(store *params.Store) error {
	filters := make(map[string]byte, 3)
	for topic := range c.routes() {
		filters[topic] = controlQoS
	}

	handler := func(_ mqtt.Client, msg mqtt.Message) {
		c.handleControl(store, msg.Topic(), string(msg.Payload()))
	}

	token := c.cli.SubscribeMultiple(filters, handler)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("transport: subscribe timed out")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("transport: subscribe: %w", err)
	}
	return nil
}

func (c *Client) routes() map[string]string {
	return map[string]string{
		c.topics.FabOutflow:  params.FabOutflow,
		c.topics.ActiveTanks: params.ActiveTanks,
		c.topics.PumpStatus:  params.PumpStatus,
	}
}

// handleControl applies one inbound message to the store. A rejected
// value is reported and the prior value retained.
func (c *Client) handleControl(store *params.Store, topic, payload string) {
	name, ok := c.routes()[topic]
	if !ok {
		return
	}
	if err := store.SetRaw(name, payload); err != nil {
		c.logf("control update rejected: %v", err)
	}
}

// Emit publishes the tick's volume as decimal text and the full record
// as JSON. Implements [sim.Emitter].
func (c *Client) Emit(rec sim.Record) error {
	payload := fmt.Sprintf("%.2f", rec.Volume)
	token := c.cli.Publish(c.topics.Volume, controlQoS, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("transport: publish volume timed out")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("transport: publish volume: %w", err)
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("transport: encode record: %w", err)
	}
	token = c.cli.Publish(c.topics.Record, controlQoS, false, data)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("transport: publish record timed out")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("transport: publish record: %w", err)
	}
	return nil
}

// Close tears down the broker session. Call only after the loop has
// stopped so the final tick's emission is not cut off.
func (c *Client) Close() {
	c.cli.Disconnect(250)
}

func (c *Client) logf(format string, v ...any) {
	if c.Logf != nil {
		c.Logf(format, v...)
	}
}
