package common

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWatchdogFiresOnTimeout(t *testing.T) {
	fired := make(chan struct{})
	cfg := WatchdogConfig{
		Timeout:   10 * time.Millisecond,
		OnTimeout: func() { close(fired) },
	}
	w := cfg.Start()
	defer w.Close()

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("OnTimeout was not called")
	}
}

func TestWatchdogNotifySuppressesTimeout(t *testing.T) {
	fired := make(chan struct{})
	cfg := WatchdogConfig{
		Timeout:   30 * time.Millisecond,
		OnTimeout: func() { close(fired) },
	}
	w := cfg.Start()
	defer w.Close()

	deadline := time.Now().Add(100 * time.Millisecond)
	for time.Now().Before(deadline) {
		assert.True(t, w.Notify())
		time.Sleep(10 * time.Millisecond)
	}

	select {
	case <-fired:
		t.Fatal("OnTimeout fired despite regular notifications")
	default:
	}
}

func TestWatchdogCloseIsIdempotent(t *testing.T) {
	cfg := WatchdogConfig{Timeout: time.Second, OnTimeout: func() {}}
	w := cfg.Start()

	w.Close()
	w.Close()

	assert.False(t, w.Notify())
}
