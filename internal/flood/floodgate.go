// Package flood rate-limits API clients with a per-client sliding window.
package flood

import (
	"sync"
	"time"
)

const (
	// windowDuration is the fixed sliding window.
	windowDuration = 60 * time.Second
	// sweepInterval is how often idle clients are forgotten.
	sweepInterval = 10 * time.Minute
	// idleTimeout is how long a client may stay silent before it is forgotten.
	idleTimeout = 10 * time.Minute
)

// Gate limits requests per client and scope to a fixed number per minute.
// A limit of zero or less lets every request through.
type Gate struct {
	limitPerMinute int
	clients        map[string]*clientWindow // Key: "scope:client"
	mutex          sync.Mutex
	stopSweep      chan struct{}
	stopOnce       sync.Once
	now            func() time.Time
}

// clientWindow holds one client's recent request times within one scope.
type clientWindow struct {
	hits     []time.Time
	lastSeen time.Time
}

// New creates a Gate and starts its background sweeper.
func New(limitPerMinute int) *Gate {
	return newWithClock(limitPerMinute, time.Now)
}

func newWithClock(limitPerMinute int, now func() time.Time) *Gate {
	g := &Gate{
		limitPerMinute: limitPerMinute,
		clients:        make(map[string]*clientWindow),
		stopSweep:      make(chan struct{}),
		now:            now,
	}

	go g.sweepLoop()

	return g
}

// Stop stops the background sweeper. It is safe to call more than once.
func (g *Gate) Stop() {
	g.stopOnce.Do(func() {
		close(g.stopSweep)
	})
}

// Allow records a request from client in scope and reports whether it is within the limit.
func (g *Gate) Allow(scope, client string) bool {
	if g.limitPerMinute <= 0 {
		return true
	}

	key := scope + ":" + client
	now := g.now()

	g.mutex.Lock()
	defer g.mutex.Unlock()

	window, exists := g.clients[key]
	if !exists {
		window = &clientWindow{
			hits: make([]time.Time, 0, g.limitPerMinute+1),
		}
		g.clients[key] = window
	}
	window.lastSeen = now

	windowStart := now.Add(-windowDuration)
	live := window.hits[:0]
	for _, ts := range window.hits {
		if ts.After(windowStart) {
			live = append(live, ts)
		}
	}
	window.hits = live

	if len(window.hits) >= g.limitPerMinute {
		return false
	}

	window.hits = append(window.hits, now)
	return true
}

// RetryAfter returns how long client must wait in scope before its next request is allowed.
func (g *Gate) RetryAfter(scope, client string) time.Duration {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	window, exists := g.clients[scope+":"+client]
	if !exists || len(window.hits) < g.limitPerMinute || g.limitPerMinute <= 0 {
		return 0
	}
	wait := window.hits[0].Add(windowDuration).Sub(g.now())
	if wait < 0 {
		return 0
	}
	return wait
}

func (g *Gate) sweepLoop() {
	g.sweep()

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			g.sweep()
		case <-g.stopSweep:
			return
		}
	}
}

// sweep forgets clients idle for longer than idleTimeout.
func (g *Gate) sweep() {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	cutoff := g.now().Add(-idleTimeout)
	for key, window := range g.clients {
		if window.lastSeen.Before(cutoff) {
			delete(g.clients, key)
		}
	}
}

// Stats returns a snapshot for monitoring.
func (g *Gate) Stats() Stats {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	return Stats{
		ActiveClients:  len(g.clients),
		LimitPerMinute: g.limitPerMinute,
		WindowSeconds:  int(windowDuration.Seconds()),
	}
}

// Stats contains gate statistics.
type Stats struct {
	ActiveClients  int `json:"active_clients"`
	LimitPerMinute int `json:"limit_per_minute"`
	WindowSeconds  int `json:"window_seconds"`
}
