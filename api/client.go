package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"courierlink/config"
	"courierlink/protocol"
)

// Order is the server's representation of an order as returned by the
// shipper endpoints.
type Order struct {
	ID             string `json:"id"`
	Code           string `json:"code,omitempty"`
	ShippingStatus string `json:"shippingStatus"`
	ShipperID      string `json:"shipperId,omitempty"`
	Address        string `json:"address,omitempty"`
	Note           string `json:"note,omitempty"`
	UpdatedAt      string `json:"updatedAt,omitempty"`
}

// StatusUpdate is the body of POST /orders/{id}/status.
type StatusUpdate struct {
	Status          string             `json:"status"`
	Note            string             `json:"note,omitempty"`
	Location        *protocol.Location `json:"location,omitempty"`
	ClientRequestID string             `json:"clientRequestId,omitempty"`
	OccurredAt      string             `json:"occurredAt,omitempty"`
	Offline         bool               `json:"offline,omitempty"`
}

// Checkpoint is the body of POST /orders/{id}/checkpoints.
type Checkpoint struct {
	Location        protocol.Location `json:"location"`
	Note            string            `json:"note,omitempty"`
	ClientRequestID string            `json:"clientRequestId,omitempty"`
	OccurredAt      string            `json:"occurredAt,omitempty"`
}

// SyncResult is the response of POST /orders/sync.
type SyncResult struct {
	SuccessCount int               `json:"successCount"`
	Results      []json.RawMessage `json:"results,omitempty"`
}

// Client is a stateless transport shim over the authenticated shipper REST
// API. It classifies failures but never queues; fallback-on-failure is the
// caller's job.
type Client struct {
	base  string
	token string
	http  *http.Client
}

// NewClient creates a client for the configured backend.
func NewClient(cfg *config.APIConfig) *Client {
	return &Client{
		base:  strings.TrimRight(cfg.BaseURL, "/"),
		token: cfg.Token,
		http:  &http.Client{Timeout: cfg.Timeout},
	}
}

// UpdateStatus submits a shipping-status change directly.
func (c *Client) UpdateStatus(ctx context.Context, orderID string, upd StatusUpdate) (*Order, error) {
	var out Order
	if err := c.do(ctx, http.MethodPost, "/orders/"+orderID+"/status", upd, &out); err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}
	return &out, nil
}

// SubmitCheckpoint records a location checkpoint for an order.
func (c *Client) SubmitCheckpoint(ctx context.Context, orderID string, cp Checkpoint) (*Order, error) {
	var out Order
	if err := c.do(ctx, http.MethodPost, "/orders/"+orderID+"/checkpoints", cp, &out); err != nil {
		return nil, fmt.Errorf("submit checkpoint: %w", err)
	}
	return &out, nil
}

// SyncBatch replays queued mutations in one batch. The server treats
// repeated clientRequestIds as no-op successes.
func (c *Client) SyncBatch(ctx context.Context, updates []protocol.PendingMutation) (*SyncResult, error) {
	body := struct {
		Updates []protocol.PendingMutation `json:"updates"`
	}{Updates: updates}

	var out SyncResult
	if err := c.do(ctx, http.MethodPost, "/orders/sync", body, &out); err != nil {
		return nil, fmt.Errorf("sync batch: %w", err)
	}
	return &out, nil
}

// ClaimOrder claims an available order for this agent. A rejection means
// the order is no longer claimable (another agent won the race).
func (c *Client) ClaimOrder(ctx context.Context, orderID string) (*Order, error) {
	var out Order
	if err := c.do(ctx, http.MethodPost, "/orders/"+orderID+"/claim", nil, &out); err != nil {
		return nil, fmt.Errorf("claim order: %w", err)
	}
	return &out, nil
}

// ListOrders fetches the orders visible to this agent. Scope is "mine" or
// "available".
func (c *Client) ListOrders(ctx context.Context, scope string) ([]Order, error) {
	var out []Order
	path := "/orders"
	if scope != "" {
		path += "?scope=" + scope
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode body: %w", err)
		}
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &Error{StatusCode: resp.StatusCode, Message: decodeErrorMessage(resp.Body)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// decodeErrorMessage pulls a human-readable message out of an error body.
// The backend uses {"error": "..."} but {"message": "..."} appears on some
// validation paths.
func decodeErrorMessage(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil {
		return ""
	}
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return strings.TrimSpace(string(data))
	}
	if body.Error != "" {
		return body.Error
	}
	return body.Message
}
