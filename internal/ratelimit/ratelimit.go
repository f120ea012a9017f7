package ratelimit

import (
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// IPLimiter limits new connections per remote IP address.
type IPLimiter struct {
	mu       sync.Mutex
	limiters map[string]*ipEntry
	rate     rate.Limit
	burst    int
	idle     time.Duration
}

type ipEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewIPLimiter allows perSecond connections per IP with bursts of burst.
// Addresses not seen for idle are forgotten on the next Cleanup.
func NewIPLimiter(perSecond float64, burst int, idle time.Duration) *IPLimiter {
	return &IPLimiter{
		limiters: make(map[string]*ipEntry),
		rate:     rate.Limit(perSecond),
		burst:    burst,
		idle:     idle,
	}
}

// Allow reports whether a connection from addr may proceed now.
func (l *IPLimiter) Allow(addr net.Addr) bool {
	ip := extractIP(addr)
	if ip == "" {
		return true
	}

	now := time.Now()

	l.mu.Lock()
	e, ok := l.limiters[ip]
	if !ok {
		e = &ipEntry{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[ip] = e
	}
	e.lastSeen = now
	l.mu.Unlock()

	return e.limiter.AllowN(now, 1)
}

// Cleanup forgets addresses idle since before now minus the idle period.
func (l *IPLimiter) Cleanup(now time.Time) {
	threshold := now.Add(-l.idle)

	l.mu.Lock()
	for ip, e := range l.limiters {
		if e.lastSeen.Before(threshold) {
			delete(l.limiters, ip)
		}
	}
	l.mu.Unlock()
}

// Len returns the number of tracked addresses.
func (l *IPLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// Run calls Cleanup every idle period until stop is closed.
func (l *IPLimiter) Run(stop <-chan struct{}) {
	t := time.NewTicker(l.idle)
	defer t.Stop()

	for {
		select {
		case now := <-t.C:
			l.Cleanup(now)
		case <-stop:
			return
		}
	}
}

func extractIP(addr net.Addr) string {
	if addr == nil {
		return ""
	}

	switch a := addr.(type) {
	case *net.TCPAddr:
		return a.IP.String()
	default:
		host, _, err := net.SplitHostPort(addr.String())
		if err != nil {
			return addr.String()
		}
		return host
	}
}
