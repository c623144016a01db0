package usbmux

import (
	"errors"
	"sync"
	"time"
)

// ReadStep scripts one Read outcome on a TestTransport: either Data is
// returned, or Err (typically ErrTimeout or a hard failure).
type ReadStep struct {
	Data []byte
	Err  error
}

// TestTransport implements Transport with a scripted sequence of read
// outcomes and recorded writes. Once the script is exhausted every Read
// reports ErrTimeout, like a quiet bus.
type TestTransport struct {
	mu sync.Mutex

	steps     []ReadStep
	stepIndex int

	writes     [][]byte
	writeErrAt int // 1-based write ordinal that fails; 0 never
	writeErr   error

	closed bool

	// ReadCalls and WriteCalls record the number of calls made.
	ReadCalls  int
	WriteCalls int
}

// NewTestTransport creates a TestTransport with an optional initial read
// script.
func NewTestTransport(steps ...ReadStep) *TestTransport {
	return &TestTransport{steps: steps}
}

// QueueRead appends a data-bearing read outcome.
func (t *TestTransport) QueueRead(data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.steps = append(t.steps, ReadStep{Data: data})
}

// QueueTimeout appends a timed-out read outcome.
func (t *TestTransport) QueueTimeout() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.steps = append(t.steps, ReadStep{Err: ErrTimeout})
}

// QueueError appends a hard-failure read outcome.
func (t *TestTransport) QueueError(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.steps = append(t.steps, ReadStep{Err: err})
}

// FailWriteAt makes the n-th Write call (1-based) return err.
func (t *TestTransport) FailWriteAt(n int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writeErrAt = n
	t.writeErr = err
}

func (t *TestTransport) Write(p []byte, timeout time.Duration) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.WriteCalls++
	if t.closed {
		return 0, errors.New("usbmux: transport closed")
	}
	if t.writeErrAt != 0 && t.WriteCalls == t.writeErrAt {
		return 0, t.writeErr
	}

	cp := make([]byte, len(p))
	copy(cp, p)
	t.writes = append(t.writes, cp)
	return len(p), nil
}

func (t *TestTransport) Read(maxLen int, timeout time.Duration) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ReadCalls++
	if t.closed {
		return nil, errors.New("usbmux: transport closed")
	}
	if t.stepIndex >= len(t.steps) {
		return nil, ErrTimeout
	}

	step := t.steps[t.stepIndex]
	t.stepIndex++
	if step.Err != nil {
		return nil, step.Err
	}
	if len(step.Data) > maxLen {
		return step.Data[:maxLen], nil
	}
	return step.Data, nil
}

func (t *TestTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

// Writes returns the payloads written so far, in order.
func (t *TestTransport) Writes() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([][]byte, len(t.writes))
	copy(out, t.writes)
	return out
}
