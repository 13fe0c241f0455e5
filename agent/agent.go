// Package agent orchestrates the device-side delivery workflow: it
// validates shipping-status transitions locally, attempts direct backend
// calls, falls back to the offline queue on network failure, and applies
// realtime events to the local order cache. The device's view converges
// with the server's under partition, reordering, and duplicate submission.
package agent

import (
	"context"
	"fmt"
	"log"
	"time"

	"courierlink/api"
	"courierlink/events"
	"courierlink/guard"
	"courierlink/protocol"
	"courierlink/queue"
	"courierlink/status"
	"courierlink/store"

	"github.com/google/uuid"
)

// Backend is the slice of the REST client the manager drives.
type Backend interface {
	UpdateStatus(ctx context.Context, orderID string, upd api.StatusUpdate) (*api.Order, error)
	SubmitCheckpoint(ctx context.Context, orderID string, cp api.Checkpoint) (*api.Order, error)
	ClaimOrder(ctx context.Context, orderID string) (*api.Order, error)
	ListOrders(ctx context.Context, scope string) ([]api.Order, error)
}

// TransitionError reports a locally rejected status transition. No network
// call is attempted and nothing is queued.
type TransitionError struct {
	From status.Value
	To   status.Value
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("transition %s -> %s is not allowed", e.From, e.To)
}

// ErrNotClaimable means another agent won the claim race.
var ErrNotClaimable = fmt.Errorf("order is no longer claimable")

// ordersQuery is the request-guard key for list refreshes.
const ordersQuery = "orders"

// Config carries the manager's dependencies.
type Config struct {
	DB        *store.DB
	Backend   Backend
	Queue     *queue.Queue
	Guard     *guard.Guard
	Bus       *events.Bus
	Location  LocationProvider
	ShipperID string
}

// Manager is the device-resident synchronization core.
type Manager struct {
	db        *store.DB
	backend   Backend
	queue     *queue.Queue
	guard     *guard.Guard
	bus       *events.Bus
	location  LocationProvider
	shipperID string
}

// New creates a manager.
func New(cfg Config) *Manager {
	if cfg.Guard == nil {
		cfg.Guard = guard.New()
	}
	if cfg.Location == nil {
		cfg.Location = NoLocationProvider{}
	}
	return &Manager{
		db:        cfg.DB,
		backend:   cfg.Backend,
		queue:     cfg.Queue,
		guard:     cfg.Guard,
		bus:       cfg.Bus,
		location:  cfg.Location,
		shipperID: cfg.ShipperID,
	}
}

// UpdateResult reports the outcome of a write. Queued means the backend was
// unreachable and the mutation was saved offline for later replay; the
// operator sees "saved offline, will sync" rather than an error.
type UpdateResult struct {
	Order    *api.Order                `json:"order,omitempty"`
	Queued   bool                      `json:"queued"`
	Mutation *protocol.PendingMutation `json:"mutation,omitempty"`
}

// UpdateStatus moves an order to a new shipping status. The transition is
// validated against the device's last known status before any network call;
// terminal and otherwise illegal transitions are rejected locally.
func (m *Manager) UpdateStatus(ctx context.Context, orderID string, to status.Value, note string, loc *protocol.Location) (*UpdateResult, error) {
	from := m.knownStatus(orderID)
	if !status.Allows(from, to) {
		return nil, &TransitionError{From: from, To: to}
	}

	upd := api.StatusUpdate{
		Status:          string(to),
		Note:            note,
		Location:        loc,
		ClientRequestID: uuid.New().String(),
		OccurredAt:      time.Now().UTC().Format(time.RFC3339),
	}

	order, err := m.backend.UpdateStatus(ctx, orderID, upd)
	if err == nil {
		m.cacheOrder(order)
		m.emitShipping(orderID, order.ShippingStatus)
		return &UpdateResult{Order: order}, nil
	}
	if !api.ShouldQueue(err) {
		return nil, err
	}

	// Offline path: capture for replay under the same idempotency key.
	mut, qerr := m.queue.Enqueue(protocol.PendingMutation{
		Kind:            protocol.KindStatus,
		OrderID:         orderID,
		Status:          string(to),
		Note:            note,
		Location:        loc,
		ClientRequestID: upd.ClientRequestID,
		OccurredAt:      upd.OccurredAt,
	})
	if qerr != nil {
		return nil, qerr
	}
	log.Printf("agent: status %s -> %s for %s saved offline (%v)", from, to, orderID, err)

	if err := m.db.SetOrderStatus(orderID, string(to)); err != nil {
		log.Printf("agent: cache status for %s: %v", orderID, err)
	}
	m.emitShipping(orderID, string(to))
	return &UpdateResult{Queued: true, Mutation: &mut}, nil
}

// SubmitCheckpoint records a location checkpoint. When loc is nil the
// device's location provider supplies the fix.
func (m *Manager) SubmitCheckpoint(ctx context.Context, orderID string, loc *protocol.Location, note string) (*UpdateResult, error) {
	if loc == nil {
		fix, err := m.location.Current(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolve location: %w", err)
		}
		loc = &fix
	}

	cp := api.Checkpoint{
		Location:        *loc,
		Note:            note,
		ClientRequestID: uuid.New().String(),
		OccurredAt:      time.Now().UTC().Format(time.RFC3339),
	}

	order, err := m.backend.SubmitCheckpoint(ctx, orderID, cp)
	if err == nil {
		m.cacheOrder(order)
		return &UpdateResult{Order: order}, nil
	}
	if !api.ShouldQueue(err) {
		return nil, err
	}

	mut, qerr := m.queue.Enqueue(protocol.PendingMutation{
		Kind:            protocol.KindCheckpoint,
		OrderID:         orderID,
		Note:            note,
		Location:        loc,
		ClientRequestID: cp.ClientRequestID,
		OccurredAt:      cp.OccurredAt,
	})
	if qerr != nil {
		return nil, qerr
	}
	log.Printf("agent: checkpoint for %s saved offline (%v)", orderID, err)
	return &UpdateResult{Queued: true, Mutation: &mut}, nil
}

// Claim claims an available order. Claims are racy by design and never
// queued: a rejection means another agent already has it.
func (m *Manager) Claim(ctx context.Context, orderID string) (*api.Order, error) {
	order, err := m.backend.ClaimOrder(ctx, orderID)
	if err != nil {
		if api.IsServerRejection(err) {
			return nil, fmt.Errorf("%w: %v", ErrNotClaimable, err)
		}
		return nil, err
	}
	m.cacheOrder(order)
	return order, nil
}

// RefreshOrders re-fetches this agent's orders behind the request guard: if
// a newer refresh starts before this one resolves, the stale response is
// discarded silently. Returns whether the response was applied.
func (m *Manager) RefreshOrders(ctx context.Context) (bool, error) {
	gen := m.guard.Start(ordersQuery)

	list, err := m.backend.ListOrders(ctx, "mine")

	if !m.guard.Current(ordersQuery, gen) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	for i := range list {
		m.cacheOrder(&list[i])
	}
	return true, nil
}

// Orders returns the device's cached view.
func (m *Manager) Orders() ([]store.Order, error) {
	return m.db.ListOrders()
}

// HandleShippingChanged applies a realtime status event. Changes made by a
// different shipper are irrelevant to this device and ignored.
func (m *Manager) HandleShippingChanged(p *protocol.ShippingEvent) {
	if p.ShipperID != "" && m.shipperID != "" && p.ShipperID != m.shipperID {
		return
	}
	if err := m.db.SetOrderStatus(p.OrderID, p.ShippingStatus); err != nil {
		log.Printf("agent: apply shipping event for %s: %v", p.OrderID, err)
		return
	}
	m.emitShipping(p.OrderID, p.ShippingStatus)
}

// HandleOrderAvailable reacts to a broadcast order announcement: it always
// triggers a list refresh.
func (m *Manager) HandleOrderAvailable(p *protocol.AvailableEvent) {
	if m.bus != nil {
		m.bus.Emit(events.Event{Type: events.EventOrderAvailable, Payload: events.OrderAvailableEvent{OrderID: p.OrderID}})
	}
	go func() {
		if _, err := m.RefreshOrders(context.Background()); err != nil {
			log.Printf("agent: refresh after available event: %v", err)
		}
	}()
}

// knownStatus is the device's last known shipping status for an order,
// normalized; never-seen orders count as unassigned.
func (m *Manager) knownStatus(orderID string) status.Value {
	cached, err := m.db.GetOrder(orderID)
	if err != nil || cached == nil {
		return status.Unassigned
	}
	return status.Normalize(status.Value(cached.ShippingStatus))
}

func (m *Manager) cacheOrder(o *api.Order) {
	if o == nil || o.ID == "" {
		return
	}
	err := m.db.UpsertOrder(&store.Order{
		ID:             o.ID,
		Code:           o.Code,
		ShippingStatus: o.ShippingStatus,
		ShipperID:      o.ShipperID,
		Address:        o.Address,
		Note:           o.Note,
	})
	if err != nil {
		log.Printf("agent: cache order %s: %v", o.ID, err)
	}
}

func (m *Manager) emitShipping(orderID, shippingStatus string) {
	if m.bus == nil {
		return
	}
	m.bus.Emit(events.Event{Type: events.EventShippingChanged, Payload: events.ShippingChangedEvent{
		OrderID:        orderID,
		ShipperID:      m.shipperID,
		ShippingStatus: shippingStatus,
	}})
}

// Compile-time check: the manager consumes realtime events directly.
var _ protocol.MessageHandler = (*Manager)(nil)
