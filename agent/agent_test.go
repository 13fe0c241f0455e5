package agent

import (
	"context"
	"errors"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"courierlink/api"
	"courierlink/events"
	"courierlink/guard"
	"courierlink/protocol"
	"courierlink/queue"
	"courierlink/status"
	"courierlink/store"
)

// fakeBackend scripts the REST client.
type fakeBackend struct {
	mu          sync.Mutex
	updateErr   error
	updates     []api.StatusUpdate
	claimErr    error
	listCount   int
	listFn      func(call int) ([]api.Order, error)
	checkpoints []api.Checkpoint
}

func (f *fakeBackend) UpdateStatus(_ context.Context, orderID string, upd api.StatusUpdate) (*api.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, upd)
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	return &api.Order{ID: orderID, ShippingStatus: upd.Status, ShipperID: "shp-1"}, nil
}

func (f *fakeBackend) SubmitCheckpoint(_ context.Context, orderID string, cp api.Checkpoint) (*api.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkpoints = append(f.checkpoints, cp)
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	return &api.Order{ID: orderID, ShippingStatus: "delivering"}, nil
}

func (f *fakeBackend) ClaimOrder(_ context.Context, orderID string) (*api.Order, error) {
	if f.claimErr != nil {
		return nil, f.claimErr
	}
	return &api.Order{ID: orderID, ShippingStatus: "assigned", ShipperID: "shp-1"}, nil
}

func (f *fakeBackend) ListOrders(_ context.Context, _ string) ([]api.Order, error) {
	f.mu.Lock()
	f.listCount++
	call := f.listCount
	fn := f.listFn
	f.mu.Unlock()
	if fn != nil {
		return fn(call)
	}
	return nil, nil
}

func (f *fakeBackend) updateCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.updates)
}

func newTestManager(t *testing.T, b *fakeBackend) (*Manager, *queue.Queue, *store.DB) {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "agent.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	bus := events.NewBus()
	q := queue.New(db, nil, bus)
	m := New(Config{
		DB:        db,
		Backend:   b,
		Queue:     q,
		Guard:     guard.New(),
		Bus:       bus,
		ShipperID: "shp-1",
	})
	return m, q, db
}

func netErr() error {
	return &net.OpError{Op: "dial", Err: errors.New("connection refused")}
}

func TestIllegalTransitionRejectedLocally(t *testing.T) {
	b := &fakeBackend{}
	m, q, db := newTestManager(t, b)

	db.UpsertOrder(&store.Order{ID: "ord-1", ShippingStatus: "unassigned"})

	_, err := m.UpdateStatus(context.Background(), "ord-1", status.Delivered, "", nil)
	var te *TransitionError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want TransitionError", err)
	}
	if te.From != status.Unassigned || te.To != status.Delivered {
		t.Errorf("TransitionError = %+v", te)
	}
	if b.updateCount() != 0 {
		t.Error("network call attempted for an illegal transition")
	}
	if n, _ := q.Depth(); n != 0 {
		t.Error("illegal transition was queued")
	}
}

func TestTerminalStatusRejectedBeforeNetwork(t *testing.T) {
	b := &fakeBackend{}
	m, _, db := newTestManager(t, b)
	db.UpsertOrder(&store.Order{ID: "ord-1", ShippingStatus: "delivered"})

	for _, to := range []status.Value{status.Assigned, status.Delivering, status.Returned} {
		if _, err := m.UpdateStatus(context.Background(), "ord-1", to, "", nil); err == nil {
			t.Errorf("transition delivered -> %s allowed", to)
		}
	}
	if b.updateCount() != 0 {
		t.Error("network call attempted from a terminal status")
	}
}

func TestUnknownOrderTreatedAsUnassigned(t *testing.T) {
	b := &fakeBackend{}
	m, _, _ := newTestManager(t, b)

	if _, err := m.UpdateStatus(context.Background(), "never-seen", status.Assigned, "", nil); err != nil {
		t.Errorf("unassigned -> assigned should be legal for an unknown order: %v", err)
	}
	if _, err := m.UpdateStatus(context.Background(), "never-seen-2", status.Delivered, "", nil); err == nil {
		t.Error("unassigned -> delivered should be rejected")
	}
}

func TestDirectUpdateCachesServerView(t *testing.T) {
	b := &fakeBackend{}
	m, q, db := newTestManager(t, b)
	db.UpsertOrder(&store.Order{ID: "ord-1", ShippingStatus: "delivering"})

	res, err := m.UpdateStatus(context.Background(), "ord-1", status.Delivered, "left at door", nil)
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if res.Queued {
		t.Error("direct success must not be marked queued")
	}
	cached, _ := db.GetOrder("ord-1")
	if cached.ShippingStatus != "delivered" {
		t.Errorf("cache = %q, want delivered", cached.ShippingStatus)
	}
	if n, _ := q.Depth(); n != 0 {
		t.Error("direct success must not queue")
	}
}

func TestNetworkFailureQueuesWithStableKey(t *testing.T) {
	b := &fakeBackend{updateErr: netErr()}
	m, q, db := newTestManager(t, b)
	db.UpsertOrder(&store.Order{ID: "ord-X", ShippingStatus: "delivering"})

	res, err := m.UpdateStatus(context.Background(), "ord-X", status.Delivered, "", nil)
	if err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if !res.Queued || res.Mutation == nil {
		t.Fatalf("result = %+v, want queued with mutation", res)
	}

	// The queued mutation reuses the clientRequestId sent on the direct
	// attempt, never a freshly minted one.
	b.mu.Lock()
	sentID := b.updates[0].ClientRequestID
	b.mu.Unlock()
	if sentID == "" || res.Mutation.ClientRequestID != sentID {
		t.Errorf("queued key %q != attempted key %q", res.Mutation.ClientRequestID, sentID)
	}

	pending, _ := q.PeekAll()
	if len(pending) != 1 || pending[0].ClientRequestID != sentID {
		t.Errorf("queue = %+v", pending)
	}

	// The cache optimistically reflects the agent's intent.
	cached, _ := db.GetOrder("ord-X")
	if cached.ShippingStatus != "delivered" {
		t.Errorf("cache = %q, want delivered", cached.ShippingStatus)
	}
}

func TestServerRejectionIsNeverQueued(t *testing.T) {
	b := &fakeBackend{updateErr: &api.Error{StatusCode: 403, Message: "not your order"}}
	m, q, db := newTestManager(t, b)
	db.UpsertOrder(&store.Order{ID: "ord-1", ShippingStatus: "delivering"})

	_, err := m.UpdateStatus(context.Background(), "ord-1", status.Delivered, "", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !api.IsServerRejection(err) {
		t.Errorf("err = %v, want server rejection", err)
	}
	if n, _ := q.Depth(); n != 0 {
		t.Error("4xx was queued")
	}
	// Cache keeps the last known server state.
	cached, _ := db.GetOrder("ord-1")
	if cached.ShippingStatus != "delivering" {
		t.Errorf("cache = %q, want delivering", cached.ShippingStatus)
	}
}

func TestCheckpointUsesLocationProvider(t *testing.T) {
	b := &fakeBackend{}
	m, _, _ := newTestManager(t, b)

	// Default build carries the no-op provider.
	_, err := m.SubmitCheckpoint(context.Background(), "ord-1", nil, "")
	if !errors.Is(err, ErrNoLocation) {
		t.Errorf("err = %v, want ErrNoLocation", err)
	}

	m.location = fixedLocation{lat: 10.5, lng: 106.2}
	res, err := m.SubmitCheckpoint(context.Background(), "ord-1", nil, "at depot")
	if err != nil {
		t.Fatalf("SubmitCheckpoint: %v", err)
	}
	if res.Queued {
		t.Error("direct checkpoint marked queued")
	}
	b.mu.Lock()
	sent := b.checkpoints[0]
	b.mu.Unlock()
	if sent.Location.Lat != 10.5 || sent.Location.Lng != 106.2 {
		t.Errorf("location = %+v", sent.Location)
	}
}

func TestCheckpointQueuedOffline(t *testing.T) {
	b := &fakeBackend{updateErr: netErr()}
	m, q, _ := newTestManager(t, b)

	loc := &protocol.Location{Lat: 1, Lng: 2}
	res, err := m.SubmitCheckpoint(context.Background(), "ord-1", loc, "")
	if err != nil {
		t.Fatalf("SubmitCheckpoint: %v", err)
	}
	if !res.Queued {
		t.Fatal("expected queued result")
	}
	pending, _ := q.PeekAll()
	if len(pending) != 1 || pending[0].Kind != protocol.KindCheckpoint {
		t.Errorf("queue = %+v", pending)
	}
}

func TestClaimRejectionMeansNotClaimable(t *testing.T) {
	b := &fakeBackend{claimErr: &api.Error{StatusCode: 409, Message: "already claimed"}}
	m, _, _ := newTestManager(t, b)

	_, err := m.Claim(context.Background(), "ord-1")
	if !errors.Is(err, ErrNotClaimable) {
		t.Errorf("err = %v, want ErrNotClaimable", err)
	}
}

func TestClaimSuccessCachesOrder(t *testing.T) {
	b := &fakeBackend{}
	m, _, db := newTestManager(t, b)

	if _, err := m.Claim(context.Background(), "ord-5"); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	cached, _ := db.GetOrder("ord-5")
	if cached == nil || cached.ShippingStatus != "assigned" {
		t.Errorf("cache = %+v", cached)
	}
}

func TestShippingEventForOtherShipperIgnored(t *testing.T) {
	b := &fakeBackend{}
	m, _, db := newTestManager(t, b)
	db.UpsertOrder(&store.Order{ID: "ord-1", ShippingStatus: "delivering"})

	m.HandleShippingChanged(&protocol.ShippingEvent{OrderID: "ord-1", ShipperID: "someone-else", ShippingStatus: "failed"})
	cached, _ := db.GetOrder("ord-1")
	if cached.ShippingStatus != "delivering" {
		t.Errorf("foreign event applied: %q", cached.ShippingStatus)
	}

	m.HandleShippingChanged(&protocol.ShippingEvent{OrderID: "ord-1", ShipperID: "shp-1", ShippingStatus: "failed"})
	cached, _ = db.GetOrder("ord-1")
	if cached.ShippingStatus != "failed" {
		t.Errorf("own event not applied: %q", cached.ShippingStatus)
	}

	// Backend-originated events carry no shipperId and always apply.
	m.HandleShippingChanged(&protocol.ShippingEvent{OrderID: "ord-1", ShippingStatus: "pickup_pending"})
	cached, _ = db.GetOrder("ord-1")
	if cached.ShippingStatus != "pickup_pending" {
		t.Errorf("unscoped event not applied: %q", cached.ShippingStatus)
	}
}

func TestRefreshDiscardsStaleResponse(t *testing.T) {
	release := make(chan struct{})
	b := &fakeBackend{}
	b.listFn = func(call int) ([]api.Order, error) {
		if call == 1 {
			<-release
			return []api.Order{{ID: "ord-1", ShippingStatus: "assigned", Note: "stale"}}, nil
		}
		return []api.Order{{ID: "ord-1", ShippingStatus: "delivering", Note: "fresh"}}, nil
	}
	m, _, db := newTestManager(t, b)

	firstApplied := make(chan bool, 1)
	go func() {
		applied, _ := m.RefreshOrders(context.Background())
		firstApplied <- applied
	}()

	// Wait for the first refresh to be in flight, then supersede it.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		b.mu.Lock()
		started := b.listCount >= 1
		b.mu.Unlock()
		if started {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	applied, err := m.RefreshOrders(context.Background())
	if err != nil || !applied {
		t.Fatalf("second refresh applied=%v err=%v", applied, err)
	}

	close(release)
	if got := <-firstApplied; got {
		t.Error("stale refresh was applied")
	}

	cached, _ := db.GetOrder("ord-1")
	if cached.Note != "fresh" || cached.ShippingStatus != "delivering" {
		t.Errorf("cache = %+v, want the fresh response", cached)
	}
}

type fixedLocation struct{ lat, lng float64 }

func (f fixedLocation) Current(context.Context) (protocol.Location, error) {
	return protocol.Location{Lat: f.lat, Lng: f.lng}, nil
}
