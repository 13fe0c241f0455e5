package store

import (
	"encoding/json"
	"fmt"

	"courierlink/protocol"
)

// EnqueueMutation appends a mutation to the end of the persisted queue.
// Insertion order is the flush order and survives process restarts. Content
// is never deduplicated; clientRequestId alone distinguishes replays.
func (db *DB) EnqueueMutation(m *protocol.PendingMutation) (int64, error) {
	payload, err := json.Marshal(m)
	if err != nil {
		return 0, fmt.Errorf("encode mutation: %w", err)
	}
	res, err := db.Exec(
		`INSERT INTO pending_mutations (client_request_id, order_id, kind, payload) VALUES (?, ?, ?, ?)`,
		m.ClientRequestID, m.OrderID, m.Kind, payload,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListPendingMutations returns the full queue in insertion order without
// mutating it.
func (db *DB) ListPendingMutations() ([]protocol.PendingMutation, error) {
	rows, err := db.Query(`SELECT payload FROM pending_mutations ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []protocol.PendingMutation
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var m protocol.PendingMutation
		if err := json.Unmarshal(payload, &m); err != nil {
			return nil, fmt.Errorf("decode mutation: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// CountPendingMutations returns the queue depth.
func (db *DB) CountPendingMutations() (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM pending_mutations`).Scan(&n)
	return n, err
}

// ClearMutations removes all queued mutations. Called only after the server
// has acknowledged the full batch.
func (db *DB) ClearMutations() error {
	_, err := db.Exec(`DELETE FROM pending_mutations`)
	return err
}
