// Package guard discards stale asynchronous responses. Each logical query
// ("orders list", "districts for province X") carries a generation counter
// that is bumped synchronously when a request starts; a response is applied
// only if no newer request for the same key has started since.
package guard

import "sync"

// Guard holds per-key request generations.
type Guard struct {
	mu   sync.Mutex
	gens map[string]uint64
}

// New creates an empty Guard.
func New() *Guard {
	return &Guard{gens: make(map[string]uint64)}
}

// Start registers a new request for key and returns its generation.
// Call this before issuing the network call, never after.
func (g *Guard) Start(key string) uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gens[key]++
	return g.gens[key]
}

// Current reports whether gen is still the newest request for key.
// A false result means the response is stale and must be discarded
// silently; it is not an error.
func (g *Guard) Current(key string, gen uint64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.gens[key] == gen
}
