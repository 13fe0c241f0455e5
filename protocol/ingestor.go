package protocol

import (
	"encoding/json"
	"log"
)

// RawHeader is the minimal decode for routing decisions before full
// payload decode.
type RawHeader struct {
	Type    string `json:"type"`
	OrderID string `json:"orderId"`
}

// FilterFunc returns true if the message should be processed.
type FilterFunc func(hdr *RawHeader) bool

// MessageHandler defines callbacks for all inbound realtime event types.
// Embed NoOpHandler and override only the methods you need.
type MessageHandler interface {
	HandleShippingChanged(p *ShippingEvent)
	HandleOrderAvailable(p *AvailableEvent)
}

// Ingestor performs two-phase decode and dispatches to a MessageHandler.
type Ingestor struct {
	handler MessageHandler
	filter  FilterFunc
}

// NewIngestor creates an ingestor with the given handler and filter.
func NewIngestor(handler MessageHandler, filter FilterFunc) *Ingestor {
	return &Ingestor{
		handler: handler,
		filter:  filter,
	}
}

// HandleRaw is the entry point for raw message bytes from the realtime
// channel.
func (ing *Ingestor) HandleRaw(data []byte) {
	// Phase 1: decode routing header only
	var hdr RawHeader
	if err := json.Unmarshal(data, &hdr); err != nil {
		log.Printf("protocol: header decode error: %v", err)
		return
	}

	if ing.filter != nil && !ing.filter(&hdr) {
		return
	}

	// Phase 2: full payload decode, dispatch by type
	switch hdr.Type {
	case TypeShippingChanged:
		decodeAndCall(ing.handler.HandleShippingChanged, data, hdr.Type)
	case TypeOrderAvailable:
		decodeAndCall(ing.handler.HandleOrderAvailable, data, hdr.Type)
	default:
		log.Printf("protocol: unknown event type: %s", hdr.Type)
	}
}

// decodeAndCall unmarshals the payload and calls the handler method.
func decodeAndCall[T any](fn func(*T), data []byte, msgType string) {
	var p T
	if err := json.Unmarshal(data, &p); err != nil {
		log.Printf("protocol: payload decode error for %s: %v", msgType, err)
		return
	}
	fn(&p)
}
