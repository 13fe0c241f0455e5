package events

import "time"

// Type identifies a bus event.
type Type string

const (
	EventConnection      Type = "connection"
	EventShippingChanged Type = "shipping_changed"
	EventOrderAvailable  Type = "order_available"
	EventMutationQueued  Type = "mutation_queued"
	EventQueueFlushed    Type = "queue_flushed"
)

// Event is a typed bus event.
type Event struct {
	Type      Type
	Timestamp time.Time
	Payload   any
}

// ConnectionEvent reports a realtime connection state change.
type ConnectionEvent struct {
	State            string `json:"state"`
	ReconnectAttempt int    `json:"reconnectAttempt"`
}

// ShippingChangedEvent reports an order's shipping status changing, whether
// by this agent, another actor, or a replayed offline mutation.
type ShippingChangedEvent struct {
	OrderID        string `json:"orderId"`
	ShipperID      string `json:"shipperId,omitempty"`
	ShippingStatus string `json:"shippingStatus"`
}

// OrderAvailableEvent reports an order awaiting shipment.
type OrderAvailableEvent struct {
	OrderID string `json:"orderId"`
}

// MutationQueuedEvent reports a write captured offline for later replay.
type MutationQueuedEvent struct {
	OrderID         string `json:"orderId"`
	Kind            string `json:"kind"`
	ClientRequestID string `json:"clientRequestId"`
}

// QueueFlushedEvent reports a successful batch replay.
type QueueFlushedEvent struct {
	Processed int `json:"processed"`
}
