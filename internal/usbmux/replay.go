package usbmux

import (
	"errors"
	"sync"
	"time"
)

// ReplayTransport replays previously captured inbound buffers with real
// pacing, one buffer per interval. Reads whose timeout expires before the
// next buffer is due report ErrTimeout, so drain loops see the same quiet
// gaps a live camera produces. Writes are accepted and discarded.
type ReplayTransport struct {
	mu       sync.Mutex
	records  [][]byte
	index    int
	interval time.Duration
	nextAt   time.Time
	loop     bool
	closed   bool
}

// NewReplayTransport paces records at one per interval, restarting from the
// beginning when loop is set.
func NewReplayTransport(records [][]byte, interval time.Duration, loop bool) *ReplayTransport {
	if interval <= 0 {
		interval = 10 * time.Millisecond
	}
	return &ReplayTransport{
		records:  records,
		interval: interval,
		nextAt:   time.Now().Add(interval),
		loop:     loop,
	}
}

func (t *ReplayTransport) Write(p []byte, timeout time.Duration) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, errors.New("usbmux: replay transport closed")
	}
	return len(p), nil
}

func (t *ReplayTransport) Read(maxLen int, timeout time.Duration) ([]byte, error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil, errors.New("usbmux: replay transport closed")
	}
	if t.index >= len(t.records) {
		if !t.loop || len(t.records) == 0 {
			t.mu.Unlock()
			time.Sleep(timeout)
			return nil, ErrTimeout
		}
		t.index = 0
	}

	wait := time.Until(t.nextAt)
	if wait > timeout {
		t.mu.Unlock()
		time.Sleep(timeout)
		return nil, ErrTimeout
	}

	rec := t.records[t.index]
	t.index++
	t.nextAt = t.nextAt.Add(t.interval)
	t.mu.Unlock()

	if wait > 0 {
		time.Sleep(wait)
	}
	if len(rec) > maxLen {
		rec = rec[:maxLen]
	}
	return rec, nil
}

func (t *ReplayTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}
