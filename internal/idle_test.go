package internal

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// scriptedIdle replays idle readings and repeats the last one
type scriptedIdle struct {
	mu       sync.Mutex
	readings []time.Duration
	locks    int
	done     chan struct{}
	want     int
}

func (s *scriptedIdle) idle() (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := s.readings[0]
	if len(s.readings) > 1 {
		s.readings = s.readings[1:]
	} else if s.done != nil {
		close(s.done)
		s.done = nil
	}
	return d, nil
}

func (s *scriptedIdle) lock(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locks++
	return nil
}

func watchUntilDrained(t *testing.T, s *scriptedIdle, timeout time.Duration) {
	t.Helper()
	s.done = make(chan struct{})
	w := &IdleWatcher{timeout: timeout, interval: time.Millisecond, idle: s.idle, lock: s.lock}

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() { result <- w.Watch(ctx) }()

	select {
	case <-s.done:
	case <-time.After(5 * time.Second):
		t.Fatal("idle readings were not consumed")
	}
	cancel()
	assert.ErrorIs(t, <-result, context.Canceled)
}

func TestIdleWatcherLocksOncePerIdlePeriod(t *testing.T) {
	s := &scriptedIdle{readings: []time.Duration{
		time.Second,
		10 * time.Second, // lock
		11 * time.Second,
		12 * time.Second,
		0, // input re-arms
		10 * time.Second, // lock
		0,
	}}
	watchUntilDrained(t, s, 5*time.Second)

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Equal(t, 2, s.locks)
}

func TestIdleWatcherSkipsQueryErrors(t *testing.T) {
	calls := 0
	locks := 0
	done := make(chan struct{})
	w := &IdleWatcher{
		timeout:  time.Second,
		interval: time.Millisecond,
		idle: func() (time.Duration, error) {
			calls++
			if calls < 3 {
				return 0, errors.New("query failed")
			}
			return time.Minute, nil
		},
		lock: func(context.Context) error {
			locks++
			close(done)
			return errors.New("lock failed")
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() { result <- w.Watch(ctx) }()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("watcher never locked")
	}
	cancel()
	assert.ErrorIs(t, <-result, context.Canceled)
	assert.Equal(t, 1, locks)
}
