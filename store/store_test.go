package store

import (
	"path/filepath"
	"testing"

	"courierlink/protocol"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMutationQueueFIFOAndDurability(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	for _, id := range []string{"m1", "m2", "m3"} {
		_, err := db.EnqueueMutation(&protocol.PendingMutation{
			Kind:            protocol.KindStatus,
			OrderID:         "ord-1",
			Status:          "delivered",
			ClientRequestID: id,
		})
		if err != nil {
			t.Fatalf("enqueue %s: %v", id, err)
		}
	}
	db.Close()

	// Reopen to prove order survives a restart.
	db, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer db.Close()

	got, err := db.ListPendingMutations()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	for i, want := range []string{"m1", "m2", "m3"} {
		if got[i].ClientRequestID != want {
			t.Errorf("position %d = %q, want %q", i, got[i].ClientRequestID, want)
		}
	}
}

func TestMutationQueueNeverDeduplicatesByContent(t *testing.T) {
	db := openTestDB(t)

	m := protocol.PendingMutation{Kind: protocol.KindStatus, OrderID: "ord-1", Status: "failed"}
	m.ClientRequestID = "a"
	if _, err := db.EnqueueMutation(&m); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	m.ClientRequestID = "b"
	if _, err := db.EnqueueMutation(&m); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	n, err := db.CountPendingMutations()
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Errorf("count = %d, want 2", n)
	}
}

func TestClearMutations(t *testing.T) {
	db := openTestDB(t)
	if _, err := db.EnqueueMutation(&protocol.PendingMutation{Kind: protocol.KindStatus, OrderID: "o", ClientRequestID: "x"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := db.ClearMutations(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	n, _ := db.CountPendingMutations()
	if n != 0 {
		t.Errorf("count after clear = %d, want 0", n)
	}
}

func TestMutationPayloadRoundTrip(t *testing.T) {
	db := openTestDB(t)
	acc := 8.0
	in := protocol.PendingMutation{
		Kind:            protocol.KindCheckpoint,
		OrderID:         "ord-7",
		Note:            "left at gate",
		Location:        &protocol.Location{Lat: 1.5, Lng: 103.8, Accuracy: &acc},
		ClientRequestID: "req-7",
		OccurredAt:      "2025-11-02T08:30:00Z",
	}
	if _, err := db.EnqueueMutation(&in); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	got, err := db.ListPendingMutations()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	out := got[0]
	if out.Note != in.Note || out.OccurredAt != in.OccurredAt || out.Location == nil || out.Location.Lng != in.Location.Lng {
		t.Errorf("round trip mismatch: %+v", out)
	}
}

func TestOrderCache(t *testing.T) {
	db := openTestDB(t)

	o := &Order{ID: "ord-1", Code: "DX100", ShippingStatus: "assigned", ShipperID: "shp-1", Address: "12 Elm St"}
	if err := db.UpsertOrder(o); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := db.GetOrder("ord-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.ShippingStatus != "assigned" || got.Code != "DX100" {
		t.Fatalf("got %+v", got)
	}

	if err := db.SetOrderStatus("ord-1", "picked_up"); err != nil {
		t.Fatalf("set status: %v", err)
	}
	got, _ = db.GetOrder("ord-1")
	if got.ShippingStatus != "picked_up" {
		t.Errorf("status = %q, want picked_up", got.ShippingStatus)
	}
	if got.Code != "DX100" {
		t.Errorf("status update clobbered code: %+v", got)
	}

	// Status events for never-seen orders create a row.
	if err := db.SetOrderStatus("ord-2", "delivering"); err != nil {
		t.Fatalf("set status new: %v", err)
	}
	list, err := db.ListOrders()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Errorf("list len = %d, want 2", len(list))
	}

	missing, err := db.GetOrder("nope")
	if err != nil || missing != nil {
		t.Errorf("GetOrder(missing) = %+v, %v; want nil, nil", missing, err)
	}
}
