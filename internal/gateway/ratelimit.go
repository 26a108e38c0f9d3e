package gateway

import (
	"context"
	"net"
	"sync"
	"time"
)

const (
	authRateWindow   = 5 * time.Minute
	authRateMaxFails = 10
	authRateMaxHosts = 10000
)

// authLimiter counts failed auth attempts per remote host.
type authLimiter struct {
	mu       sync.Mutex
	failures map[string][]time.Time
	now      func() time.Time
}

func newAuthLimiter() *authLimiter {
	return &authLimiter{failures: make(map[string][]time.Time), now: time.Now}
}

func hostOf(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil || host == "" {
		return remoteAddr
	}
	return host
}

// recent drops attempts older than the window. Caller holds mu.
func (l *authLimiter) recent(host string) []time.Time {
	cutoff := l.now().Add(-authRateWindow)
	kept := l.failures[host][:0]
	for _, t := range l.failures[host] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) == 0 {
		delete(l.failures, host)
		return nil
	}
	l.failures[host] = kept
	return kept
}

func (l *authLimiter) allow(remoteAddr string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.recent(hostOf(remoteAddr))) < authRateMaxFails
}

func (l *authLimiter) recordFailure(remoteAddr string) {
	host := hostOf(remoteAddr)

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.failures[host]; !ok && len(l.failures) >= authRateMaxHosts {
		l.evictOldest()
	}
	l.failures[host] = append(l.failures[host], l.now())
}

func (l *authLimiter) evictOldest() {
	var (
		oldest     string
		oldestTime time.Time
	)
	for host, times := range l.failures {
		if len(times) > 0 && (oldest == "" || times[0].Before(oldestTime)) {
			oldest, oldestTime = host, times[0]
		}
	}
	delete(l.failures, oldest)
}

func (l *authLimiter) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for host := range l.failures {
		l.recent(host)
	}
}

// run sweeps stale entries until ctx is done.
func (l *authLimiter) run(ctx context.Context, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			l.sweep()
		}
	}
}
