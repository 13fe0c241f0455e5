package store

import (
	"database/sql"
	"errors"
)

// Order is the device's last known representation of an order. It is a
// cache of the server's view, updated by claim/update responses, realtime
// events, and list refreshes; while a mutation sits in the offline queue it
// reflects the agent's intent instead.
type Order struct {
	ID             string `json:"id"`
	Code           string `json:"code"`
	ShippingStatus string `json:"shippingStatus"`
	ShipperID      string `json:"shipperId"`
	Address        string `json:"address"`
	Note           string `json:"note"`
	UpdatedAt      string `json:"updatedAt"`
}

// UpsertOrder inserts or replaces a cached order.
func (db *DB) UpsertOrder(o *Order) error {
	_, err := db.Exec(`
		INSERT INTO orders (id, code, shipping_status, shipper_id, address, note, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, datetime('now','localtime'))
		ON CONFLICT(id) DO UPDATE SET
			code = excluded.code,
			shipping_status = excluded.shipping_status,
			shipper_id = excluded.shipper_id,
			address = excluded.address,
			note = excluded.note,
			updated_at = excluded.updated_at`,
		o.ID, o.Code, o.ShippingStatus, o.ShipperID, o.Address, o.Note)
	return err
}

// GetOrder returns a cached order, or nil if the device has never seen it.
func (db *DB) GetOrder(id string) (*Order, error) {
	var o Order
	err := db.QueryRow(`
		SELECT id, code, shipping_status, shipper_id, address, note, updated_at
		FROM orders WHERE id = ?`, id).
		Scan(&o.ID, &o.Code, &o.ShippingStatus, &o.ShipperID, &o.Address, &o.Note, &o.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// ListOrders returns all cached orders, most recently updated first.
func (db *DB) ListOrders() ([]Order, error) {
	rows, err := db.Query(`
		SELECT id, code, shipping_status, shipper_id, address, note, updated_at
		FROM orders ORDER BY updated_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.Code, &o.ShippingStatus, &o.ShipperID, &o.Address, &o.Note, &o.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// SetOrderStatus updates just the shipping status of a cached order.
// Unknown orders are inserted so realtime events seen before the first
// refresh are not lost.
func (db *DB) SetOrderStatus(id, shippingStatus string) error {
	_, err := db.Exec(`
		INSERT INTO orders (id, shipping_status, updated_at)
		VALUES (?, ?, datetime('now','localtime'))
		ON CONFLICT(id) DO UPDATE SET
			shipping_status = excluded.shipping_status,
			updated_at = excluded.updated_at`,
		id, shippingStatus)
	return err
}
