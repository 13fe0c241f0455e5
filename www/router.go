// Package www is the device-local diagnostics console: a JSON API plus an
// SSE stream over the core's event bus. It is the only surface through
// which an operator drives the sync core; it never touches the connection
// handle or the queue storage directly.
package www

import (
	"net/http"

	"courierlink/agent"
	"courierlink/config"
	"courierlink/events"
	"courierlink/queue"
	"courierlink/realtime"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Realtime is the slice of the channel the console consumes.
type Realtime interface {
	State() (realtime.State, int)
	JoinOrder(orderID string)
	LeaveOrder(orderID string)
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	cfg      *config.Config
	agent    *agent.Manager
	queue    *queue.Queue
	channel  Realtime
	sessions *sessionStore
	eventHub *EventHub
}

// NewRouter creates the chi router and returns it along with a stop function.
func NewRouter(cfg *config.Config, mgr *agent.Manager, q *queue.Queue, ch Realtime, bus *events.Bus) (http.Handler, func()) {
	h := &Handlers{
		cfg:      cfg,
		agent:    mgr,
		queue:    q,
		channel:  ch,
		sessions: newSessionStore(cfg.Web.SessionSecret),
		eventHub: NewEventHub(),
	}

	h.eventHub.Start()
	h.eventHub.SetupBusListeners(bus)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Post("/api/login", h.apiLogin)
	r.Post("/api/logout", h.apiLogout)

	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)

		r.Get("/api/status", h.apiStatus)
		r.Get("/api/queue", h.apiQueue)
		r.Post("/api/sync", h.apiSync)
		r.Get("/api/orders", h.apiOrders)
		r.Post("/api/orders/{orderID}/status", h.apiUpdateStatus)
		r.Post("/api/orders/{orderID}/checkpoints", h.apiSubmitCheckpoint)
		r.Post("/api/orders/{orderID}/claim", h.apiClaim)
		r.Post("/api/orders/{orderID}/watch", h.apiWatchOrder)
		r.Post("/api/orders/{orderID}/unwatch", h.apiUnwatchOrder)
		r.Get("/api/events", h.eventHub.HandleSSE)
	})

	return r, h.eventHub.Stop
}

// requireAuth gates the API behind the console passcode. An empty hash in
// the config leaves the console open (bench/development setups).
func (h *Handlers) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.cfg.Web.PasscodeHash != "" && !h.sessions.isAuthenticated(r) {
			writeError(w, http.StatusUnauthorized, "login required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
