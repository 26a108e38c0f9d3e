package session

import (
	"context"
	"sync"
	"time"

	"github.com/soyeahso/maestro/internal/domain"
)

// Conflict modes for a busy session.
const (
	ModeQueue  = "queue"
	ModeReject = "reject"
)

// Locker serializes requests per session id. The map mutex is held only
// to find the slot; waiting happens on the slot itself.
type Locker struct {
	mu         sync.Mutex
	slots      map[string]*slot
	mode       string
	retryAfter time.Duration
}

type slot struct {
	ch   chan struct{}
	refs int
}

// NewLocker creates a locker. In queue mode a second request waits for the
// first; in reject mode it fails fast with a *domain.ConflictError.
func NewLocker(mode string, retryAfter time.Duration) *Locker {
	if mode != ModeReject {
		mode = ModeQueue
	}
	if retryAfter <= 0 {
		retryAfter = 2 * time.Second
	}
	return &Locker{
		slots:      make(map[string]*slot),
		mode:       mode,
		retryAfter: retryAfter,
	}
}

// Mode returns the conflict mode.
func (l *Locker) Mode() string { return l.mode }

// Acquire takes the session slot. The returned release func is safe to call
// more than once.
func (l *Locker) Acquire(ctx context.Context, id string) (func(), error) {
	s := l.ref(id)

	if l.mode == ModeReject {
		select {
		case s.ch <- struct{}{}:
		default:
			l.unref(id)
			return nil, &domain.ConflictError{SessionID: id, RetryAfter: l.retryAfter}
		}
	} else {
		select {
		case s.ch <- struct{}{}:
		case <-ctx.Done():
			l.unref(id)
			return nil, ctx.Err()
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			l.unref(id)
		})
	}, nil
}

// Active returns how many session ids currently have holders or waiters.
func (l *Locker) Active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}

func (l *Locker) ref(id string) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[id]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[id] = s
	}
	s.refs++
	return s
}

func (l *Locker) unref(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[id]
	if !ok {
		return
	}
	s.refs--
	if s.refs <= 0 {
		delete(l.slots, id)
	}
}
