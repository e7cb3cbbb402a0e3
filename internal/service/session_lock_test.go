package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionLocksDoNotBlockOtherSessions(t *testing.T) {
	locks := newSessionLocks()
	held := locks.acquire("AAAAAA")

	done := make(chan struct{})
	go func() {
		sl := locks.acquire("BBBBBB")
		locks.release("BBBBBB", sl)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("unrelated session waited on a held lock")
	}

	locks.release("AAAAAA", held)
	assert.Zero(t, locks.size())
}

func TestSessionLocksSerializeSameSession(t *testing.T) {
	locks := newSessionLocks()
	held := locks.acquire("AAAAAA")

	acquired := make(chan struct{})
	go func() {
		sl := locks.acquire("AAAAAA")
		close(acquired)
		locks.release("AAAAAA", sl)
	}()

	select {
	case <-acquired:
		t.Fatal("second holder entered while the lock was held")
	case <-time.After(50 * time.Millisecond):
	}

	locks.release("AAAAAA", held)

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("waiter never acquired the lock")
	}
	require.Eventually(t, func() bool { return locks.size() == 0 }, time.Second, 5*time.Millisecond)
}
