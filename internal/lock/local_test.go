package lock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestLocalLocker_MutualExclusion(t *testing.T) {
	l := NewLocalLocker(time.Millisecond)
	ctx := context.Background()

	const goroutines = 50
	var (
		wg      sync.WaitGroup
		counter int
		inside  int
		mu      sync.Mutex
	)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := l.Acquire(ctx, "auction:x", 5*time.Second, time.Second)
			if err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			mu.Lock()
			inside++
			if inside > 1 {
				t.Error("two holders inside the critical section")
			}
			counter++
			inside--
			mu.Unlock()
			if err := l.Release(ctx, "auction:x", token); err != nil {
				t.Errorf("release: %v", err)
			}
		}()
	}
	wg.Wait()

	if counter != goroutines {
		t.Errorf("counter = %d, want %d", counter, goroutines)
	}
}

func TestLocalLocker_WaitBudgetExhausted(t *testing.T) {
	l := NewLocalLocker(time.Millisecond)
	ctx := context.Background()

	if _, err := l.Acquire(ctx, "auction:y", time.Second, time.Minute); err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	start := time.Now()
	_, err := l.Acquire(ctx, "auction:y", 30*time.Millisecond, time.Minute)
	if !errors.Is(err, ErrNotAcquired) {
		t.Fatalf("second acquire err = %v, want ErrNotAcquired", err)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("gave up after %v, before the wait budget elapsed", elapsed)
	}
}

func TestLocalLocker_TTLExpiryAllowsTakeover(t *testing.T) {
	l := NewLocalLocker(time.Millisecond)
	ctx := context.Background()

	first, err := l.Acquire(ctx, "auction:z", time.Second, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("first acquire: %v", err)
	}

	// The first holder's TTL lapses, so a second acquire must win.
	second, err := l.Acquire(ctx, "auction:z", time.Second, time.Minute)
	if err != nil {
		t.Fatalf("takeover acquire: %v", err)
	}
	if first == second {
		t.Fatal("takeover should issue a fresh token")
	}

	// The expired holder's release must not free the new holder's lock.
	if err := l.Release(ctx, "auction:z", first); err != nil {
		t.Fatalf("stale release: %v", err)
	}
	if _, err := l.Acquire(ctx, "auction:z", 20*time.Millisecond, time.Minute); !errors.Is(err, ErrNotAcquired) {
		t.Errorf("lock should still be held after a stale release, got err = %v", err)
	}
}

func TestLocalLocker_ReleaseThenReacquire(t *testing.T) {
	l := NewLocalLocker(time.Millisecond)
	ctx := context.Background()

	token, err := l.Acquire(ctx, "auction:w", time.Second, time.Minute)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := l.Release(ctx, "auction:w", token); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := l.Acquire(ctx, "auction:w", time.Second, time.Minute); err != nil {
		t.Errorf("reacquire after release: %v", err)
	}
}

func TestLocalLocker_ReleaseWrongTokenIsNoOp(t *testing.T) {
	l := NewLocalLocker(time.Millisecond)
	ctx := context.Background()

	if _, err := l.Acquire(ctx, "auction:v", time.Second, time.Minute); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := l.Release(ctx, "auction:v", "not-the-owner"); err != nil {
		t.Fatalf("foreign release should not error, got %v", err)
	}
	if _, err := l.Acquire(ctx, "auction:v", 20*time.Millisecond, time.Minute); !errors.Is(err, ErrNotAcquired) {
		t.Errorf("lock should survive a foreign release, got err = %v", err)
	}
}

func TestLocalLocker_AcquireHonoursContext(t *testing.T) {
	l := NewLocalLocker(time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())

	if _, err := l.Acquire(ctx, "auction:u", time.Second, time.Minute); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := l.Acquire(ctx, "auction:u", time.Minute, time.Minute)
		done <- err
	}()

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("acquire did not return after context cancellation")
	}
}

func TestLocalLocker_IndependentKeys(t *testing.T) {
	l := NewLocalLocker(time.Millisecond)
	ctx := context.Background()

	if _, err := l.Acquire(ctx, "auction:a", time.Second, time.Minute); err != nil {
		t.Fatalf("acquire a: %v", err)
	}
	// A different auction's lock must be unaffected.
	if _, err := l.Acquire(ctx, "auction:b", 50*time.Millisecond, time.Minute); err != nil {
		t.Errorf("acquire b blocked by a: %v", err)
	}
}
