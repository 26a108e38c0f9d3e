package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/soyeahso/maestro/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// --- MemoryStore ---

func TestMemoryStore_NotFound(t *testing.T) {
	_, err := NewMemoryStore().Get(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestMemoryStore_IsolatesCallers(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()

	sess := domain.NewSession("a")
	sess.AppendTurn(domain.Turn{Role: domain.RoleUser, Text: "hi"})
	require.NoError(t, st.Save(ctx, sess))

	sess.AppendTurn(domain.Turn{Role: domain.RoleAssistant, Text: "not saved"})

	got, err := st.Get(ctx, "a")
	require.NoError(t, err)
	assert.Len(t, got.Turns, 1)

	got.RecordRouting("jazz_teacher")
	again, _ := st.Get(ctx, "a")
	assert.Empty(t, again.Trail)

	ids, err := st.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids)
}

// --- Locker ---

func TestLocker_DefaultsToQueue(t *testing.T) {
	assert.Equal(t, ModeQueue, NewLocker("", 0).Mode())
	assert.Equal(t, ModeReject, NewLocker(ModeReject, 0).Mode())
}

func TestLocker_RejectMode(t *testing.T) {
	l := NewLocker(ModeReject, 3*time.Second)
	ctx := context.Background()

	release, err := l.Acquire(ctx, "s")
	require.NoError(t, err)

	_, err = l.Acquire(ctx, "s")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrSessionConflict)
	var ce *domain.ConflictError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, 3*time.Second, ce.RetryAfter)

	other, err := l.Acquire(ctx, "other")
	require.NoError(t, err, "different sessions never conflict")
	other()

	release()
	release()

	again, err := l.Acquire(ctx, "s")
	require.NoError(t, err)
	again()
	assert.Zero(t, l.Active())
}

func TestLocker_QueueModeWaits(t *testing.T) {
	l := NewLocker(ModeQueue, 0)
	ctx := context.Background()

	release, err := l.Acquire(ctx, "s")
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		r, err := l.Acquire(ctx, "s")
		if err == nil {
			close(acquired)
			r()
		}
	}()

	select {
	case <-acquired:
		t.Fatal("second request must wait for the first")
	case <-time.After(30 * time.Millisecond):
	}

	release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second request never acquired")
	}
}

func TestLocker_QueueModeHonorsContext(t *testing.T) {
	l := NewLocker(ModeQueue, 0)
	release, err := l.Acquire(context.Background(), "s")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Acquire(ctx, "s")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLocker_SerializesMutations(t *testing.T) {
	l := NewLocker(ModeQueue, 0)
	st := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, st.Save(ctx, domain.NewSession("s")))

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Acquire(ctx, "s")
			if err != nil {
				return
			}
			defer release()

			sess, err := st.Get(ctx, "s")
			if err != nil {
				return
			}
			if len(sess.Turns)%2 != 0 {
				t.Error("observed a half-applied turn pair")
			}
			sess.AppendTurn(domain.Turn{Role: domain.RoleUser, Text: "q"})
			time.Sleep(time.Millisecond)
			sess.AppendTurn(domain.Turn{Role: domain.RoleAssistant, Text: "a"})
			_ = st.Save(ctx, sess)
		}()
	}
	wg.Wait()

	sess, err := st.Get(ctx, "s")
	require.NoError(t, err)
	assert.Len(t, sess.Turns, 40)
	assert.Zero(t, l.Active())
}
