package usecase

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTurnLocks_SameIdentityWaits(t *testing.T) {
	locks := newTurnLocks()
	release := locks.lock("u1")

	acquired := make(chan struct{})
	go func() {
		r := locks.lock("u1")
		close(acquired)
		r()
	}()

	select {
	case <-acquired:
		t.Fatal("second turn ran while the first held the lock")
	case <-time.After(50 * time.Millisecond):
	}

	release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second turn never ran")
	}
	require.Eventually(t, func() bool { return locks.size() == 0 }, time.Second, 5*time.Millisecond)
}

func TestTurnLocks_DifferentIdentitiesDoNotWait(t *testing.T) {
	locks := newTurnLocks()
	release := locks.lock("u1")
	defer release()

	done := make(chan struct{})
	go func() {
		locks.lock("u2")()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("u2 waited on u1")
	}
	require.Equal(t, 1, locks.size())
}
