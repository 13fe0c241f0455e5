package www

import (
	"encoding/json"
	"errors"
	"net/http"

	"courierlink/agent"
	"courierlink/api"
	"courierlink/protocol"
	"courierlink/queue"
	"courierlink/status"

	"github.com/go-chi/chi/v5"
)

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// --- Auth ---

func (h *Handlers) apiLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Passcode string `json:"passcode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if h.cfg.Web.PasscodeHash == "" || !checkPasscode(req.Passcode, h.cfg.Web.PasscodeHash) {
		writeError(w, http.StatusUnauthorized, "invalid passcode")
		return
	}
	h.sessions.authenticate(w, r)
	writeJSON(w, map[string]string{"status": "ok"})
}

func (h *Handlers) apiLogout(w http.ResponseWriter, r *http.Request) {
	h.sessions.clear(w, r)
	writeJSON(w, map[string]string{"status": "ok"})
}

// --- Sync core ---

func (h *Handlers) apiStatus(w http.ResponseWriter, r *http.Request) {
	st, attempt := h.channel.State()
	depth, err := h.queue.Depth()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, map[string]any{
		"shipperId": h.cfg.ShipperID,
		"connection": map[string]any{
			"state":            st,
			"reconnectAttempt": attempt,
		},
		"queueDepth": depth,
	})
}

func (h *Handlers) apiQueue(w http.ResponseWriter, r *http.Request) {
	pending, err := h.queue.PeekAll()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if pending == nil {
		pending = []protocol.PendingMutation{}
	}
	writeJSON(w, pending)
}

func (h *Handlers) apiSync(w http.ResponseWriter, r *http.Request) {
	res, err := h.queue.Flush(r.Context())
	if errors.Is(err, queue.ErrFlushInProgress) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, res)
}

func (h *Handlers) apiOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.agent.Orders()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	type orderView struct {
		ID             string         `json:"id"`
		Code           string         `json:"code"`
		ShippingStatus string         `json:"shippingStatus"`
		Address        string         `json:"address"`
		Note           string         `json:"note"`
		UpdatedAt      string         `json:"updatedAt"`
		Meta           status.Meta    `json:"meta"`
		Next           []status.Value `json:"next"`
	}
	views := make([]orderView, 0, len(orders))
	for _, o := range orders {
		st := status.Value(o.ShippingStatus)
		views = append(views, orderView{
			ID:             o.ID,
			Code:           o.Code,
			ShippingStatus: o.ShippingStatus,
			Address:        o.Address,
			Note:           o.Note,
			UpdatedAt:      o.UpdatedAt,
			Meta:           status.MetaFor(st),
			Next:           status.Next(st),
		})
	}
	writeJSON(w, views)
}

func (h *Handlers) apiUpdateStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")
	var req struct {
		Status   string             `json:"status"`
		Note     string             `json:"note"`
		Location *protocol.Location `json:"location"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.agent.UpdateStatus(r.Context(), orderID, status.Value(req.Status), req.Note, req.Location)
	if err != nil {
		h.writeUpdateError(w, err)
		return
	}
	h.writeUpdateResult(w, res)
}

func (h *Handlers) apiSubmitCheckpoint(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")
	var req struct {
		Location *protocol.Location `json:"location"`
		Note     string             `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.agent.SubmitCheckpoint(r.Context(), orderID, req.Location, req.Note)
	if err != nil {
		h.writeUpdateError(w, err)
		return
	}
	h.writeUpdateResult(w, res)
}

func (h *Handlers) apiClaim(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")
	order, err := h.agent.Claim(r.Context(), orderID)
	if errors.Is(err, agent.ErrNotClaimable) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, order)
}

func (h *Handlers) apiWatchOrder(w http.ResponseWriter, r *http.Request) {
	h.channel.JoinOrder(chi.URLParam(r, "orderID"))
	writeJSON(w, map[string]string{"status": "ok"})
}

func (h *Handlers) apiUnwatchOrder(w http.ResponseWriter, r *http.Request) {
	h.channel.LeaveOrder(chi.URLParam(r, "orderID"))
	writeJSON(w, map[string]string{"status": "ok"})
}

// writeUpdateResult renders a direct success as 200 and an offline capture
// as 202: saved offline, will sync.
func (h *Handlers) writeUpdateResult(w http.ResponseWriter, res *agent.UpdateResult) {
	if res.Queued {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(res)
		return
	}
	writeJSON(w, res)
}

// writeUpdateError maps core error taxonomy onto HTTP codes: local
// transition rejections and server rejections carry their message verbatim;
// a storage failure is a distinct, loud condition because the mutation was
// lost.
func (h *Handlers) writeUpdateError(w http.ResponseWriter, err error) {
	var te *agent.TransitionError
	switch {
	case errors.As(err, &te):
		writeError(w, http.StatusConflict, te.Error())
	case errors.Is(err, queue.ErrStorage):
		writeError(w, http.StatusInsufficientStorage, err.Error())
	case errors.Is(err, agent.ErrNoLocation):
		writeError(w, http.StatusBadRequest, err.Error())
	case api.IsServerRejection(err):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusBadGateway, err.Error())
	}
}
