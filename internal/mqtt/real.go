package mqtt

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/touch-scale/internal/logic"
	"github.com/sweeney/touch-scale/internal/touch"
)

// DefaultBufferSize is the number of messages kept while disconnected.
const DefaultBufferSize = 256

const unsubscribeTimeout = 2 * time.Second

// Options configures a RealClient.
type Options struct {
	Broker      string
	ClientID    string
	SourceTopic string // empty disables the touch source
	BufferSize  int
}

// RealClient publishes to an actual MQTT broker and relays touch batches
// from the sensor driver. Messages published while disconnected are buffered
// and replayed on reconnect.
type RealClient struct {
	client      paho.Client
	sourceTopic string

	mu        sync.Mutex
	buffer    *ringBuffer
	connected bool
	connects  int
	sub       *sourceSubscription
	devices   map[string]time.Time
	lastSeen  string

	// unsubscribed is closed once the latest UNSUBSCRIBE has settled.
	unsubscribed chan struct{}
}

// NewRealClient creates a client and starts connecting in the background.
// It never blocks on the broker.
func NewRealClient(o Options) *RealClient {
	c := newRealClient(nil, o)

	will, _ := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "SHUTDOWN",
		Reason:    "MQTT_DISCONNECT",
	})

	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(TopicSystem, string(will), 1, true).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(c.onConnectionLost)

	c.client = paho.NewClient(opts)
	c.client.Connect()
	return c
}

func newRealClient(client paho.Client, o Options) *RealClient {
	size := o.BufferSize
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &RealClient{
		client:      client,
		sourceTopic: o.SourceTopic,
		buffer:      newRingBuffer(size),
		devices:     make(map[string]time.Time),
	}
}

// Publish sends a weighing event to the MQTT broker.
func (c *RealClient) Publish(event logic.Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	// QoS 1 (at-least-once): results must not be lost
	return c.publish(bufferedMsg{topic: Topic, payload: payload, qos: 1})
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (c *RealClient) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}

	return c.publish(bufferedMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
}

func (c *RealClient) publish(msg bufferedMsg) error {
	c.mu.Lock()
	if !c.connected {
		c.buffer.push(msg)
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	token := c.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(5 * time.Second) {
		c.requeue(msg)
		return fmt.Errorf("publish %s: timeout", msg.topic)
	}
	if err := token.Error(); err != nil {
		c.requeue(msg)
		return fmt.Errorf("publish %s: %w", msg.topic, err)
	}
	return nil
}

func (c *RealClient) requeue(msg bufferedMsg) {
	c.mu.Lock()
	c.buffer.push(msg)
	c.mu.Unlock()
}

// IsConnected reports whether the broker connection is up.
func (c *RealClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Buffered returns the number of messages waiting for a connection.
func (c *RealClient) Buffered() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buffer.len()
}

// Close releases the touch subscription, lets pending unsubscribes finish
// and disconnects from the broker.
func (c *RealClient) Close() error {
	var errs []error
	c.mu.Lock()
	sub := c.sub
	c.mu.Unlock()
	if sub != nil {
		if err := sub.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	<-c.unsubscribeSettled()
	c.client.Disconnect(1000) // 1 second timeout
	return errors.Join(errs...)
}

func (c *RealClient) onConnect(client paho.Client) {
	c.mu.Lock()
	c.connected = true
	c.connects++
	reconnect := c.connects > 1
	pending, dropped := c.buffer.drainAll()
	resubscribe := c.sub != nil
	c.mu.Unlock()

	if reconnect {
		log.Printf("mqtt: reconnected, replaying %d buffered messages", len(pending))
	} else {
		log.Printf("mqtt: connected")
	}
	if dropped > 0 {
		log.Printf("mqtt: %d messages dropped while disconnected", dropped)
	}

	if resubscribe {
		if err := c.subscribeTopic(); err != nil {
			log.Printf("mqtt: resubscribe %s: %v", c.sourceTopic, err)
		}
	}

	for _, msg := range pending {
		if err := c.publish(msg); err != nil {
			log.Printf("mqtt: replay failed: %v", err)
		}
	}

	if reconnect {
		ev := SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED"}
		if err := c.PublishSystem(ev); err != nil {
			log.Printf("mqtt: publish reconnected event: %v", err)
		}
	}
}

func (c *RealClient) onConnectionLost(client paho.Client, err error) {
	log.Printf("mqtt: connection lost: %v", err)

	c.mu.Lock()
	c.connected = false
	if c.sub != nil {
		// No batches will arrive until reconnect; report contact lost.
		c.sub.deliverLocked(touch.Batch{})
	}
	c.mu.Unlock()
}

// Subscribe starts relaying batches from the source topic. A previous
// subscription is released first. Subscribe waits for the broker to
// acknowledge, up to 5s.
func (c *RealClient) Subscribe() (touch.Subscription, error) {
	if c.sourceTopic == "" {
		return nil, fmt.Errorf("%w: no source topic configured", touch.ErrSourceUnavailable)
	}
	if !c.IsConnected() {
		return nil, fmt.Errorf("%w: broker not connected", touch.ErrSourceUnavailable)
	}

	c.mu.Lock()
	prev := c.sub
	c.mu.Unlock()
	if prev != nil {
		prev.Close()
	}
	// The broker must see the old UNSUBSCRIBE before the new SUBSCRIBE.
	<-c.unsubscribeSettled()

	sub := &sourceSubscription{
		client: c,
		ch:     make(chan touch.Batch, 64),
	}
	c.mu.Lock()
	c.sub = sub
	c.mu.Unlock()

	if err := c.subscribeTopic(); err != nil {
		sub.Close()
		return nil, fmt.Errorf("%w: %v", touch.ErrSourceUnavailable, err)
	}
	log.Printf("mqtt: subscribed to %s", c.sourceTopic)
	return sub, nil
}

func (c *RealClient) subscribeTopic() error {
	token := c.client.Subscribe(c.sourceTopic, 0, c.onBatch)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("subscribe %s: timeout", c.sourceTopic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", c.sourceTopic, err)
	}
	return nil
}

// onBatch runs on the paho router and must not block.
func (c *RealClient) onBatch(client paho.Client, msg paho.Message) {
	batch, device, err := touch.DecodeBatch(msg.Payload())
	if err != nil {
		log.Printf("mqtt: %v", err)
		batch = touch.Batch{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if device != "" {
		c.devices[device] = time.Now()
		c.lastSeen = device
	}
	if c.sub != nil {
		c.sub.deliverLocked(batch)
	}
}

// Devices returns every device seen on the source topic. The device that
// published most recently is selected.
func (c *RealClient) Devices() []touch.Device {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := make([]string, 0, len(c.devices))
	for id := range c.devices {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	devs := make([]touch.Device, 0, len(ids))
	for _, id := range ids {
		devs = append(devs, touch.Device{
			ID:       id,
			Name:     id,
			BuiltIn:  id == "builtin",
			Selected: id == c.lastSeen,
		})
	}
	return devs
}

type sourceSubscription struct {
	client  *RealClient
	ch      chan touch.Batch
	closed  bool // guarded by client.mu
	dropped int  // guarded by client.mu
}

func (s *sourceSubscription) Batches() <-chan touch.Batch {
	return s.ch
}

// deliverLocked queues b without blocking. Caller holds client.mu.
func (s *sourceSubscription) deliverLocked(b touch.Batch) {
	if s.closed {
		return
	}
	select {
	case s.ch <- b:
	default:
		s.dropped++
		if s.dropped == 1 || s.dropped%100 == 0 {
			log.Printf("mqtt: consumer behind, dropped %d batches", s.dropped)
		}
	}
}

// Close detaches the subscription at once. The UNSUBSCRIBE is sent in the
// background, so Close never waits on the broker.
func (s *sourceSubscription) Close() error {
	c := s.client
	c.mu.Lock()
	if s.closed {
		c.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.ch)
	if c.sub == s {
		c.sub = nil
		if c.connected {
			c.unsubscribeLocked()
		}
	}
	c.mu.Unlock()
	return nil
}

// unsubscribeSettled returns a channel closed once no UNSUBSCRIBE is pending.
func (c *RealClient) unsubscribeSettled() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unsubscribed == nil {
		return closedChan
	}
	return c.unsubscribed
}

var closedChan = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// unsubscribeLocked queues an UNSUBSCRIBE behind any still in flight.
// Caller holds c.mu.
func (c *RealClient) unsubscribeLocked() {
	prev := c.unsubscribed
	done := make(chan struct{})
	c.unsubscribed = done
	go c.unsubscribe(prev, done)
}

// unsubscribe stops broker delivery for the source topic. Batches arriving
// before the broker acknowledges find no subscription and are dropped.
func (c *RealClient) unsubscribe(prev <-chan struct{}, done chan struct{}) {
	defer close(done)
	if prev != nil {
		<-prev
	}

	token := c.client.Unsubscribe(c.sourceTopic)
	if !token.WaitTimeout(unsubscribeTimeout) {
		log.Printf("mqtt: unsubscribe %s: timeout", c.sourceTopic)
		return
	}
	if err := token.Error(); err != nil {
		log.Printf("mqtt: unsubscribe %s: %v", c.sourceTopic, err)
	}
}
