// Package realtime manages the one live event-stream connection to the
// broker: reconnect backoff, room subscriptions, and inbound payload
// delivery. The process owns a single Channel; consumers receive it by
// reference and never touch the connection handle directly.
package realtime

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"courierlink/config"
	"courierlink/events"
	"courierlink/protocol"
)

// State is the connection state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
)

// conn is the minimal transport surface the channel drives. The production
// implementation wraps paho; tests substitute a fake.
type conn interface {
	Subscribe(topic string) error
	Unsubscribe(topic string) error
	Publish(topic string, payload []byte) error
	Disconnect()
}

// dialFunc establishes a connection. onMessage receives every inbound
// payload; onLost fires when an established connection drops.
type dialFunc func(cfg *config.RealtimeConfig, clientID string, onMessage func([]byte), onLost func(error)) (conn, error)

// Channel owns the realtime connection lifecycle.
type Channel struct {
	cfg       *config.RealtimeConfig
	shipperID string
	clientID  string
	onMessage func([]byte)
	bus       *events.Bus

	dial    dialFunc
	backoff func(int) time.Duration

	mu         sync.Mutex
	conn       conn
	state      State
	attempt    int
	timer      *time.Timer
	manual     bool
	orderRooms map[string]struct{}
}

// New creates a disconnected channel. onMessage receives raw inbound event
// payloads (typically an Ingestor's HandleRaw).
func New(cfg *config.RealtimeConfig, shipperID, clientID string, onMessage func([]byte), bus *events.Bus) *Channel {
	return &Channel{
		cfg:        cfg,
		shipperID:  shipperID,
		clientID:   clientID,
		onMessage:  onMessage,
		bus:        bus,
		dial:       dialMQTT,
		backoff:    Backoff,
		state:      StateDisconnected,
		orderRooms: make(map[string]struct{}),
	}
}

// Connect starts the connection. Calling it while connected or connecting
// is a no-op: there is never more than one live handle.
func (c *Channel) Connect() {
	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return
	}
	c.manual = false
	c.cancelTimerLocked()
	c.state = StateConnecting
	st, at := c.state, c.attempt
	c.mu.Unlock()

	c.emitState(st, at)
	go c.attemptConnect()
}

// Disconnect tears the connection down for good (explicit logout). No
// reconnect is scheduled and the attempt counter resets.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	c.manual = true
	c.cancelTimerLocked()
	c.attempt = 0
	conn := c.conn
	c.conn = nil
	changed := c.state != StateDisconnected
	c.state = StateDisconnected
	c.mu.Unlock()

	if conn != nil {
		conn.Disconnect()
	}
	if changed {
		c.emitState(StateDisconnected, 0)
	}
}

// State returns the connection state and the reconnect attempt counter.
func (c *Channel) State() (State, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, c.attempt
}

// Connected reports whether the channel is live.
func (c *Channel) Connected() bool {
	st, _ := c.State()
	return st == StateConnected
}

// JoinOrder subscribes to an order's room. Rooms joined while disconnected
// are picked up on the next successful connect.
func (c *Channel) JoinOrder(orderID string) {
	c.mu.Lock()
	c.orderRooms[orderID] = struct{}{}
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		if err := conn.Subscribe(protocol.OrderTopic(c.cfg.TopicPrefix, orderID)); err != nil {
			log.Printf("realtime: join order %s: %v", orderID, err)
		}
	}
}

// LeaveOrder unsubscribes from an order's room.
func (c *Channel) LeaveOrder(orderID string) {
	c.mu.Lock()
	delete(c.orderRooms, orderID)
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		if err := conn.Unsubscribe(protocol.OrderTopic(c.cfg.TopicPrefix, orderID)); err != nil {
			log.Printf("realtime: leave order %s: %v", orderID, err)
		}
	}
}

func (c *Channel) attemptConnect() {
	conn, err := c.dial(c.cfg, c.clientID, c.handleMessage, c.handleLost)

	c.mu.Lock()
	if c.manual {
		c.mu.Unlock()
		if err == nil {
			conn.Disconnect()
		}
		return
	}
	if err != nil {
		delay := c.scheduleReconnectLocked()
		at := c.attempt
		c.mu.Unlock()
		log.Printf("realtime: connect attempt %d failed: %v (retry in %s)", at, err, delay)
		c.emitState(StateDisconnected, at)
		return
	}

	c.conn = conn
	c.state = StateConnected
	c.attempt = 0
	rooms := make([]string, 0, len(c.orderRooms))
	for id := range c.orderRooms {
		rooms = append(rooms, id)
	}
	c.mu.Unlock()

	c.joinRooms(conn, rooms)
	c.announcePresence(conn)
	log.Printf("realtime: connected (client=%s)", c.clientID)
	c.emitState(StateConnected, 0)
}

// handleLost fires from the transport when an established connection drops
// for any non-manual reason.
func (c *Channel) handleLost(err error) {
	c.mu.Lock()
	if c.manual {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	delay := c.scheduleReconnectLocked()
	at := c.attempt
	c.mu.Unlock()

	log.Printf("realtime: connection lost: %v (retry in %s)", err, delay)
	c.emitState(StateDisconnected, at)
}

func (c *Channel) handleMessage(payload []byte) {
	if c.onMessage != nil {
		c.onMessage(payload)
	}
}

// scheduleReconnectLocked transitions to disconnected and arms the backoff
// timer. Caller holds c.mu.
func (c *Channel) scheduleReconnectLocked() time.Duration {
	c.state = StateDisconnected
	c.attempt++
	delay := c.backoff(c.attempt)
	c.cancelTimerLocked()
	c.timer = time.AfterFunc(delay, c.retry)
	return delay
}

func (c *Channel) retry() {
	c.mu.Lock()
	if c.manual || c.state != StateDisconnected {
		c.mu.Unlock()
		return
	}
	c.state = StateConnecting
	at := c.attempt
	c.mu.Unlock()

	c.emitState(StateConnecting, at)
	c.attemptConnect()
}

func (c *Channel) cancelTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// joinRooms re-establishes the user room, the broadcast room, and every
// tracked order room after a (re)connect.
func (c *Channel) joinRooms(conn conn, orderIDs []string) {
	topics := []string{protocol.BroadcastTopic(c.cfg.TopicPrefix)}
	if c.shipperID != "" {
		topics = append(topics, protocol.UserTopic(c.cfg.TopicPrefix, c.shipperID))
	}
	for _, id := range orderIDs {
		topics = append(topics, protocol.OrderTopic(c.cfg.TopicPrefix, id))
	}
	for _, t := range topics {
		if err := conn.Subscribe(t); err != nil {
			log.Printf("realtime: subscribe %s: %v", t, err)
		}
	}
}

// announcePresence publishes the fire-and-forget join message.
func (c *Channel) announcePresence(conn conn) {
	if c.shipperID == "" {
		return
	}
	msg := struct {
		Type string `json:"type"`
		protocol.PresenceJoin
	}{
		Type:         protocol.TypePresenceJoin,
		PresenceJoin: protocol.PresenceJoin{ShipperID: c.shipperID, ClientID: c.clientID},
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	if err := conn.Publish(protocol.PresenceTopic(c.cfg.TopicPrefix), payload); err != nil {
		log.Printf("realtime: presence: %v", err)
	}
}

func (c *Channel) emitState(st State, attempt int) {
	if c.bus == nil {
		return
	}
	c.bus.Emit(events.Event{Type: events.EventConnection, Payload: events.ConnectionEvent{
		State:            string(st),
		ReconnectAttempt: attempt,
	}})
}
