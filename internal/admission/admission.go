// Package admission enforces a fixed lifetime request budget per client.
//
// Counts are never reset or expired: once a client has spent its budget,
// every later request from that address is refused until the process
// restarts. The table grows by one entry per distinct address.
package admission

import (
	"errors"
	"sync"
)

// ErrRateLimited is returned for a client that has spent its budget.
var ErrRateLimited = errors.New("rate limit exceeded")

// Controller counts requests per client address.
type Controller struct {
	mu     sync.Mutex
	counts map[string]int
	limit  int
}

// New returns a Controller that admits limit requests per client.
func New(limit int) *Controller {
	return &Controller{
		counts: make(map[string]int),
		limit:  limit,
	}
}

// Admit records a request from addr and reports whether it is within budget.
// Rejected requests are counted too.
func (c *Controller) Admit(addr string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[addr]++
	return c.counts[addr] <= c.limit
}

// Check is Admit returning ErrRateLimited on refusal.
func (c *Controller) Check(addr string) error {
	if !c.Admit(addr) {
		return ErrRateLimited
	}
	return nil
}

// Count returns the number of requests seen from addr.
func (c *Controller) Count(addr string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[addr]
}

// Clients returns the number of distinct addresses seen.
func (c *Controller) Clients() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.counts)
}

// Limit returns the per-client budget.
func (c *Controller) Limit() int {
	return c.limit
}
