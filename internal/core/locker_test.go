package core

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestKeyedLocker_LockUnlock(t *testing.T) {
	l := NewKeyedLocker(0)
	ctx := context.Background()

	unlock, err := l.Lock(ctx, "a")
	if err != nil {
		t.Fatalf("Lock() error = %v", err)
	}
	if l.Held() != 1 {
		t.Errorf("Held() = %d, want 1", l.Held())
	}

	unlock()
	unlock() // second call is a no-op

	if l.Held() != 0 {
		t.Errorf("Held() = %d after unlock, want 0", l.Held())
	}
	if _, err := l.Lock(ctx, "a"); err != nil {
		t.Errorf("Lock() after unlock error = %v", err)
	}
}

func TestKeyedLocker_BusyWithoutWait(t *testing.T) {
	l := NewKeyedLocker(0)
	ctx := context.Background()

	unlock, _ := l.Lock(ctx, "a")
	defer unlock()

	if _, err := l.Lock(ctx, "a"); !errors.Is(err, ErrBusy) {
		t.Errorf("Lock() on held key error = %v, want ErrBusy", err)
	}

	// Different keys never contend.
	other, err := l.Lock(ctx, "b")
	if err != nil {
		t.Fatalf("Lock() on other key error = %v", err)
	}
	other()
}

func TestKeyedLocker_WaitTimeout(t *testing.T) {
	l := NewKeyedLocker(20 * time.Millisecond)
	ctx := context.Background()

	unlock, _ := l.Lock(ctx, "a")
	defer unlock()

	start := time.Now()
	_, err := l.Lock(ctx, "a")
	if !errors.Is(err, ErrBusy) {
		t.Errorf("Lock() error = %v, want ErrBusy", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("Lock() returned after %v, want to wait at least 20ms", elapsed)
	}
}

func TestKeyedLocker_WaitAcquires(t *testing.T) {
	l := NewKeyedLocker(time.Second)
	ctx := context.Background()

	unlock, _ := l.Lock(ctx, "a")
	go func() {
		time.Sleep(10 * time.Millisecond)
		unlock()
	}()

	second, err := l.Lock(ctx, "a")
	if err != nil {
		t.Fatalf("Lock() error = %v, want acquire after release", err)
	}
	second()
}

func TestKeyedLocker_ContextCancelled(t *testing.T) {
	l := NewKeyedLocker(time.Second)

	unlock, _ := l.Lock(context.Background(), "a")
	defer unlock()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := l.Lock(ctx, "a"); !errors.Is(err, context.Canceled) {
		t.Errorf("Lock() error = %v, want context.Canceled", err)
	}
}
