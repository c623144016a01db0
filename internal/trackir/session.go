package trackir

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/headtrack/internal/config"
	"github.com/banshee-data/headtrack/internal/monitoring"
	"github.com/banshee-data/headtrack/internal/usbmux"
)

// DeviceState tracks the session lifecycle. Transitions are monotonic except
// the move to StateFaulted, which is reachable from anywhere and terminal.
type DeviceState int

const (
	StateUninitialized DeviceState = iota
	StateConfigured
	StateStreaming
	StateFaulted
)

func (s DeviceState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateConfigured:
		return "configured"
	case StateStreaming:
		return "streaming"
	case StateFaulted:
		return "faulted"
	default:
		return fmt.Sprintf("DeviceState(%d)", int(s))
	}
}

// InitError reports which command of the init table failed. Step is the
// 1-based index into the table; the session is Faulted afterwards.
type InitError struct {
	Step int
	Err  error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("trackir: init command %d failed: %v", e.Step, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

// SessionConfig carries the per-session timeouts and synchronizer settings.
// Zero values take defaults.
type SessionConfig struct {
	Sync SyncConfig

	// WriteTimeout bounds each command write on the OUT channel.
	WriteTimeout time.Duration

	// ReplyTimeout is the short read issued after each init command for an
	// optional acknowledgement. Absence of a reply is normal.
	ReplyTimeout time.Duration

	// ReadTimeout is the default deadline for ReadFrame.
	ReadTimeout time.Duration
}

func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Sync:         DefaultSyncConfig(),
		WriteTimeout: 100 * time.Millisecond,
		ReplyTimeout: 20 * time.Millisecond,
		ReadTimeout:  250 * time.Millisecond,
	}
}

func (c SessionConfig) withDefaults() SessionConfig {
	def := DefaultSessionConfig()
	c.Sync = c.Sync.withDefaults()
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.ReplyTimeout <= 0 {
		c.ReplyTimeout = def.ReplyTimeout
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = def.ReadTimeout
	}
	return c
}

// Session owns the protocol state for one physical camera. Writes on the OUT
// channel are serialized by the session mutex so concurrent LED refreshes
// cannot corrupt command framing. Sessions for different cameras are fully
// independent.
type Session struct {
	mu sync.Mutex

	t       usbmux.Transport
	variant config.Variant
	cfg     SessionConfig
	sync    *Synchronizer
	logf    func(format string, v ...interface{})

	state  DeviceState
	cause  error // first hard failure, reported by every later call
	frames uint64
}

// Open resolves the command table for the given IDs and claims the device
// through the supplied opener. The returned session is Configured; call Init
// to bring the camera up to Streaming.
func Open(vendorID, productID uint16, variants *config.Variants, open usbmux.TransportOpener, cfg SessionConfig) (*Session, error) {
	v, ok := variants.Lookup(vendorID, productID)
	if !ok {
		return nil, fmt.Errorf("trackir: no command table for device %04x:%04x", vendorID, productID)
	}

	t, err := open(vendorID, productID)
	if err != nil {
		return nil, err
	}

	cfg = cfg.withDefaults()
	return &Session{
		t:       t,
		variant: v,
		cfg:     cfg,
		sync:    NewSynchronizer(t, NewDecoder(), cfg.Sync),
		logf:    monitoring.Prefixed(fmt.Sprintf("%s %04x:%04x", v.Name, vendorID, productID)),
		state:   StateConfigured,
	}, nil
}

// State returns the current lifecycle state.
func (s *Session) State() DeviceState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Variant returns the command table the session was opened with.
func (s *Session) Variant() config.Variant {
	return s.variant
}

// FrameCount returns the number of frames delivered so far.
func (s *Session) FrameCount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// Init sends the variant's command table in order on the OUT channel. After
// each command one short-timeout read collects an optional acknowledgement;
// no reply is not an error. A write failure at any step aborts the rest,
// faults the session, and reports the failing step.
func (s *Session) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkLive(); err != nil {
		return err
	}

	for i, cmd := range s.variant.Init {
		if _, err := s.t.Write(cmd, s.cfg.WriteTimeout); err != nil {
			s.fault(err)
			return &InitError{Step: i + 1, Err: err}
		}

		reply, err := s.t.Read(MaxFrameLen, s.cfg.ReplyTimeout)
		if err != nil && !errors.Is(err, usbmux.ErrTimeout) {
			s.fault(err)
			return &InitError{Step: i + 1, Err: err}
		}
		if len(reply) > 0 {
			s.logf("init command %d acknowledged with % x", i+1, reply)
		}
	}

	s.state = StateStreaming
	s.logf("handshake complete, %d commands sent", len(s.variant.Init))
	return nil
}

// SetLED refreshes the illumination state. The hardware does not latch LED
// state indefinitely, so callers re-issue this periodically. Fire and forget;
// no reply is expected.
func (s *Session) SetLED(mask, intensity byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkLive(); err != nil {
		return err
	}

	cmd := make([]byte, 0, len(s.variant.LED)+2)
	cmd = append(cmd, s.variant.LED...)
	cmd = append(cmd, mask, intensity)

	if _, err := s.t.Write(cmd, s.cfg.WriteTimeout); err != nil {
		s.fault(err)
		return fmt.Errorf("trackir: led command: %w", err)
	}
	return nil
}

// SetIllumination is the boolean convenience form of SetLED using the
// variant's default mask and intensity.
func (s *Session) SetIllumination(on bool) error {
	if on {
		return s.SetLED(s.variant.LEDMask, s.variant.LEDIntensity)
	}
	return s.SetLED(s.variant.LEDMask, 0)
}

// ReadFrame returns the freshest frame available within the session's read
// timeout, or (nil, nil) when the camera produced nothing in time. Sync loss
// is returned without faulting; hard transport errors fault the session.
func (s *Session) ReadFrame() (Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkLive(); err != nil {
		return nil, err
	}

	f, err := s.sync.ReadFrame(s.cfg.ReadTimeout)
	if err != nil {
		if errors.Is(err, ErrSyncLost) {
			return nil, err
		}
		s.fault(err)
		return nil, err
	}
	if f != nil {
		s.frames++
	}
	return f, nil
}

// Close releases the transport. The session is unusable afterwards.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.t.Close()
}

// checkLive gates every operation on a faulted session: the original cause is
// reported and the transport is never touched again.
func (s *Session) checkLive() error {
	if s.state == StateFaulted {
		return fmt.Errorf("trackir: session faulted: %w", s.cause)
	}
	return nil
}

// fault latches the first hard failure. Recovery requires a fresh Open.
func (s *Session) fault(err error) {
	if s.state == StateFaulted {
		return
	}
	s.state = StateFaulted
	s.cause = err
	s.logf("session faulted: %v", err)
}
