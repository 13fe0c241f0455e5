package protocol

// Realtime event types carried in the message "type" field.
const (
	// Server -> device (published on room topics)
	TypeShippingChanged = "shipper:shipping"
	TypeOrderAvailable  = "order:awaiting_shipment"

	// Device -> server (published on the presence topic)
	TypePresenceJoin = "presence:join"
)

// Mutation kinds.
const (
	KindStatus     = "status"
	KindCheckpoint = "checkpoint"
)

// Location is a GPS fix attached to checkpoints and status updates.
type Location struct {
	Lat      float64  `json:"lat"`
	Lng      float64  `json:"lng"`
	Accuracy *float64 `json:"accuracy,omitempty"`
}

// PendingMutation is one queued, not-yet-acknowledged change. The JSON
// layout is both the persisted queue format and the batch-sync wire format.
//
// ClientRequestID is the sole de-duplication key: it is minted once when the
// mutation is created and reused verbatim on every retry, so the server can
// treat replays as no-op successes.
type PendingMutation struct {
	ID              string    `json:"id,omitempty"`
	Kind            string    `json:"kind"`
	OrderID         string    `json:"orderId"`
	Status          string    `json:"status,omitempty"`
	Note            string    `json:"note,omitempty"`
	Location        *Location `json:"location,omitempty"`
	ClientRequestID string    `json:"clientRequestId,omitempty"`
	OccurredAt      string    `json:"occurredAt,omitempty"`
}
