package rate

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type entry struct {
	limiter *rate.Limiter
	last    time.Time
}

// LimiterMap keeps one token bucket per client and evicts buckets idle for
// longer than ttl.
type LimiterMap struct {
	mu       sync.Mutex
	limiters map[string]*entry
	every    rate.Limit
	burst    int
	ttl      time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewLimiterMap allows rpm requests per minute per client with the given
// burst, and starts the eviction goroutine. Non-positive rpm and burst are
// clamped to 1; a non-positive ttl means five minutes.
func NewLimiterMap(rpm, burst int, ttl time.Duration) *LimiterMap {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if rpm <= 0 {
		rpm = 1
	}
	if burst <= 0 {
		burst = 1
	}
	lm := &LimiterMap{
		limiters: make(map[string]*entry),
		every:    rate.Every(time.Minute / time.Duration(rpm)),
		burst:    burst,
		ttl:      ttl,
		stopCh:   make(chan struct{}),
	}
	go lm.reaper()
	return lm
}

func (l *LimiterMap) reaper() {
	t := time.NewTicker(l.ttl)
	defer t.Stop()
	for {
		select {
		case <-l.stopCh:
			return
		case now := <-t.C:
			l.evict(now)
		}
	}
}

func (l *LimiterMap) evict(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, e := range l.limiters {
		if now.Sub(e.last) > l.ttl {
			delete(l.limiters, k)
		}
	}
}

// Stop stops the eviction goroutine. Safe to call more than once.
func (l *LimiterMap) Stop() { l.stopOnce.Do(func() { close(l.stopCh) }) }

// Allow reports whether a request from client may proceed now.
func (l *LimiterMap) Allow(client string) bool {
	l.mu.Lock()
	e, ok := l.limiters[client]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(l.every, l.burst)}
		l.limiters[client] = e
	}
	e.last = time.Now()
	l.mu.Unlock()
	return e.limiter.Allow()
}

// Len is the number of tracked clients.
func (l *LimiterMap) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// ClientKey identifies the caller for rate limiting. The limiter runs before
// API keys are checked, so only the client IP is trusted here.
func ClientKey(r *http.Request) string {
	return "ip:" + IPFromRequest(r)
}

// IPFromRequest extracts the client IP, preferring the first
// X-Forwarded-For hop.
func IPFromRequest(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
