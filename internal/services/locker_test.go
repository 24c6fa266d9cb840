package services

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestLocalOrderLockerSerializesSameOrder(t *testing.T) {
	locker := NewLocalOrderLocker()
	var (
		mu      sync.Mutex
		inside  int
		maxSeen int
		wg      sync.WaitGroup
	)

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(context.Background(), "o1")
			if err != nil {
				t.Errorf("Lock: %v", err)
				return
			}
			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
			unlock()
		}()
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Fatalf("max holders = %d, want 1", maxSeen)
	}
	if len(locker.locks) != 0 {
		t.Fatalf("lock table not cleaned up: %d entries", len(locker.locks))
	}
}

func TestLocalOrderLockerDistinctOrdersDoNotBlock(t *testing.T) {
	locker := NewLocalOrderLocker()
	unlockA, err := locker.Lock(context.Background(), "a")
	if err != nil {
		t.Fatal(err)
	}
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	unlockB, err := locker.Lock(ctx, "b")
	if err != nil {
		t.Fatalf("lock on a different order blocked: %v", err)
	}
	unlockB()
}

func TestLocalOrderLockerHonoursContext(t *testing.T) {
	locker := NewLocalOrderLocker()
	unlock, err := locker.Lock(context.Background(), "o1")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := locker.Lock(ctx, "o1"); err == nil {
		t.Fatal("expected timeout while order is held")
	}

	unlock()
	unlock() // second call is a no-op
	if len(locker.locks) != 0 {
		t.Fatalf("lock table not cleaned up: %d entries", len(locker.locks))
	}
}
