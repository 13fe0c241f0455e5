package protocol

import "encoding/json"

// ShippingEvent announces a shipping-status change on an order. It arrives
// on the per-order room and, when scoped to this agent, on the user room.
// ShipperID identifies the actor that made the change; a consumer only
// cares when it matches (or is empty, meaning a backend-originated change).
type ShippingEvent struct {
	OrderID        string          `json:"orderId"`
	ShipperID      string          `json:"shipperId,omitempty"`
	ShippingStatus string          `json:"shippingStatus"`
	TimelineEvent  json.RawMessage `json:"timelineEvent,omitempty"`
}

// AvailableEvent announces an order awaiting shipment, broadcast to all
// agents. The embedded order representation is optional; a refresh fetches
// the authoritative list either way.
type AvailableEvent struct {
	OrderID        string          `json:"orderId"`
	Status         string          `json:"status,omitempty"`
	ShippingStatus string          `json:"shippingStatus,omitempty"`
	Order          json.RawMessage `json:"order,omitempty"`
}

// PresenceJoin is the fire-and-forget announcement a device publishes when
// its realtime connection comes up. No acknowledgement is awaited.
type PresenceJoin struct {
	ShipperID string `json:"userId"`
	ClientID  string `json:"clientId,omitempty"`
}
