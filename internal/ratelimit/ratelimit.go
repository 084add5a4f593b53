// Package ratelimit enforces "N per period" request budgets per client key.
//
// Rules use the notation the editor has always accepted, for example
// "10 per minute, 50 per hour". Each rule becomes a token bucket; a request is
// admitted only when every bucket for the client has a token available, and no
// bucket is charged for a rejected request.
package ratelimit

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrInvalidRule indicates a rate limit expression could not be parsed.
var ErrInvalidRule = errors.New("invalid rate limit rule")

// Rule allows Count events per Period.
type Rule struct {
	Count  int
	Period time.Duration
}

func (r Rule) String() string {
	return fmt.Sprintf("%d per %s", r.Count, r.Period)
}

var periods = map[string]time.Duration{
	"second": time.Second,
	"minute": time.Minute,
	"hour":   time.Hour,
	"day":    24 * time.Hour,
}

// Parse reads a comma separated list of "N per unit" rules.
func Parse(spec string) ([]Rule, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidRule)
	}
	var rules []Rule
	for _, part := range strings.Split(spec, ",") {
		fields := strings.Fields(strings.ToLower(part))
		if len(fields) != 3 || fields[1] != "per" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidRule, strings.TrimSpace(part))
		}
		count, err := strconv.Atoi(fields[0])
		if err != nil || count <= 0 {
			return nil, fmt.Errorf("%w: count %q", ErrInvalidRule, fields[0])
		}
		period, ok := periods[strings.TrimSuffix(fields[2], "s")]
		if !ok {
			return nil, fmt.Errorf("%w: unit %q", ErrInvalidRule, fields[2])
		}
		rules = append(rules, Rule{Count: count, Period: period})
	}
	return rules, nil
}

type client struct {
	buckets  []*rate.Limiter
	lastSeen time.Time
}

// Limiter tracks buckets per client key.
type Limiter struct {
	rules []Rule
	now   func() time.Time

	mu      sync.Mutex
	clients map[string]*client
}

// New builds a limiter for the given rules.
func New(rules []Rule) *Limiter {
	return &Limiter{
		rules:   rules,
		now:     time.Now,
		clients: make(map[string]*client),
	}
}

// Allow reports whether key may perform one more request now.
func (l *Limiter) Allow(key string) bool {
	if l == nil || len(l.rules) == 0 {
		return true
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.clients[key]
	if !ok {
		c = &client{buckets: make([]*rate.Limiter, len(l.rules))}
		for i, rule := range l.rules {
			c.buckets[i] = rate.NewLimiter(rate.Every(rule.Period/time.Duration(rule.Count)), rule.Count)
		}
		l.clients[key] = c
	}
	c.lastSeen = now

	reservations := make([]*rate.Reservation, 0, len(c.buckets))
	for _, bucket := range c.buckets {
		r := bucket.ReserveN(now, 1)
		if !r.OK() || r.DelayFrom(now) > 0 {
			r.CancelAt(now)
			for _, prev := range reservations {
				prev.CancelAt(now)
			}
			return false
		}
		reservations = append(reservations, r)
	}
	return true
}

// Prune forgets clients idle for longer than maxIdle and returns how many were removed.
func (l *Limiter) Prune(maxIdle time.Duration) int {
	if l == nil {
		return 0
	}
	cutoff := l.now().Add(-maxIdle)
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for key, c := range l.clients {
		if c.lastSeen.Before(cutoff) {
			delete(l.clients, key)
			removed++
		}
	}
	return removed
}
