package conversation

import (
	"testing"
	"time"
)

func TestKeyedLocksBlocksSameKey(t *testing.T) {
	locks := newKeyedLocks()
	locks.Lock("1|sender")

	acquired := make(chan struct{})
	go func() {
		locks.Lock("1|sender")
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second holder acquired the lock while the first still held it")
	case <-time.After(50 * time.Millisecond):
	}

	locks.Unlock("1|sender")

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second holder never acquired the lock after release")
	}
	locks.Unlock("1|sender")
}

func TestKeyedLocksIndependentKeys(t *testing.T) {
	locks := newKeyedLocks()
	locks.Lock("1|alice")
	defer locks.Unlock("1|alice")

	acquired := make(chan struct{})
	go func() {
		locks.Lock("1|bob")
		defer locks.Unlock("1|bob")
		close(acquired)
	}()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("lock on a different key blocked")
	}
}

func TestKeyedLocksDropsIdleEntries(t *testing.T) {
	locks := newKeyedLocks()
	locks.Lock("1|alice")
	locks.Lock("2|alice")
	locks.Unlock("1|alice")
	locks.Unlock("2|alice")

	locks.mu.Lock()
	defer locks.mu.Unlock()
	if len(locks.entries) != 0 {
		t.Errorf("entries = %d, want 0 after all holders released", len(locks.entries))
	}
}

func TestKeyedLocksUnlockUnheldPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic unlocking a key that was never locked")
		}
	}()
	newKeyedLocks().Unlock("1|ghost")
}
