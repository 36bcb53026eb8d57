// Package egress maintains the pool of outbound proxy endpoints the
// executor uses to diversify the network path toward upstream providers.
package egress

import (
	"fmt"
	"math/rand/v2"
	"net/url"
	"sync"
	"time"
)

// Strategy selects how endpoints rotate.
type Strategy string

// Selection strategies.
const (
	StrategyRandom     Strategy = "random"
	StrategyRoundRobin Strategy = "round_robin"
)

// Endpoint is one outbound proxy. Endpoints are immutable once snapshotted
// into the pool; selection never mutates them.
type Endpoint struct {
	Scheme     string
	Host       string
	Port       int
	Username   string
	Password   string
	Enabled    bool
	LastSeenAt time.Time
}

// Key returns the endpoint's identity used for exclusion sets.
func (e Endpoint) Key() string {
	return fmt.Sprintf("%s://%s:%d", e.Scheme, e.Host, e.Port)
}

// URL renders the endpoint as a proxy URL suitable for http.ProxyURL.
func (e Endpoint) URL() *url.URL {
	u := &url.URL{
		Scheme: e.Scheme,
		Host:   fmt.Sprintf("%s:%d", e.Host, e.Port),
	}
	if e.Username != "" {
		u.User = url.UserPassword(e.Username, e.Password)
	}
	return u
}

// Pool holds an immutable snapshot of proxy endpoints and a rotation
// cursor. The endpoint list is read-mostly and replaced wholesale by
// Refresh; only the cursor needs the mutex.
type Pool struct {
	strategy Strategy

	mu        sync.Mutex
	cursor    int
	endpoints []Endpoint
}

// NewPool creates a pool with the given strategy and initial endpoints.
// Disabled endpoints are kept in the snapshot but never selected.
func NewPool(strategy Strategy, endpoints []Endpoint) (*Pool, error) {
	switch strategy {
	case StrategyRandom, StrategyRoundRobin:
	case "":
		strategy = StrategyRoundRobin
	default:
		return nil, fmt.Errorf("unknown egress strategy %q", strategy)
	}

	p := &Pool{strategy: strategy}
	p.Refresh(endpoints)
	return p, nil
}

// Refresh replaces the endpoint snapshot. The rotation cursor is preserved
// modulo the new length so a refresh does not restart rotation.
func (p *Pool) Refresh(endpoints []Endpoint) {
	snapshot := make([]Endpoint, len(endpoints))
	copy(snapshot, endpoints)

	p.mu.Lock()
	p.endpoints = snapshot
	if len(snapshot) > 0 {
		p.cursor %= len(snapshot)
	} else {
		p.cursor = 0
	}
	p.mu.Unlock()
}

// Size returns the number of enabled endpoints.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := 0
	for _, e := range p.endpoints {
		if e.Enabled {
			n++
		}
	}
	return n
}

// Pick selects the next endpoint, skipping those in exclude.
//
// Returns nil only when no endpoints are enabled at all. If the exclusion
// set would leave nothing, random falls back to the full enabled set and
// round-robin returns the next endpoint in order, guaranteeing progress.
func (p *Pool) Pick(exclude map[string]struct{}) *Endpoint {
	p.mu.Lock()
	defer p.mu.Unlock()

	enabled := make([]Endpoint, 0, len(p.endpoints))
	for _, e := range p.endpoints {
		if e.Enabled {
			enabled = append(enabled, e)
		}
	}
	if len(enabled) == 0 {
		return nil
	}

	eligible := enabled
	if len(exclude) > 0 {
		filtered := make([]Endpoint, 0, len(enabled))
		for _, e := range enabled {
			if _, excluded := exclude[e.Key()]; !excluded {
				filtered = append(filtered, e)
			}
		}
		if len(filtered) > 0 {
			eligible = filtered
		}
	}

	switch p.strategy {
	case StrategyRandom:
		e := eligible[rand.IntN(len(eligible))]
		return &e

	default: // round_robin
		// Advance the cursor over the enabled list, skipping excluded
		// endpoints unless everything is excluded.
		for range enabled {
			e := enabled[p.cursor%len(enabled)]
			p.cursor = (p.cursor + 1) % len(enabled)
			if _, excluded := exclude[e.Key()]; !excluded {
				return &e
			}
		}
		e := enabled[p.cursor%len(enabled)]
		p.cursor = (p.cursor + 1) % len(enabled)
		return &e
	}
}
