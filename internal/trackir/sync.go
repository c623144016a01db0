package trackir

import (
	"errors"
	"time"

	"github.com/banshee-data/headtrack/internal/usbmux"
)

// SyncPolicy selects how the synchronizer re-establishes frame alignment.
type SyncPolicy int

const (
	// DrainThenRead discards every queued buffer, then takes the first buffer
	// to arrive afterwards. Guarantees the freshest frame at the cost of
	// everything buffered before it.
	DrainThenRead SyncPolicy = iota

	// SeekFraming additionally retries past unaligned buffers up to a bounded
	// count, failing with ErrSyncLost beyond it.
	SeekFraming
)

// ErrSyncLost reports that no frame-aligned buffer was found within the
// synchronizer's retry budget. Recoverable: the next read starts a fresh
// search.
var ErrSyncLost = errors.New("trackir: frame sync lost")

// SyncConfig bounds the synchronizer's loops. Zero values take defaults.
type SyncConfig struct {
	Policy SyncPolicy

	// ReadSize is the per-read buffer size.
	ReadSize int

	// DrainTimeout is the minimal timeout used while flushing queued buffers.
	DrainTimeout time.Duration

	// MaxDrain bounds drain iterations so a babbling device cannot spin the
	// loop forever.
	MaxDrain int

	// MaxSeekReads bounds alignment retries under SeekFraming.
	MaxSeekReads int
}

func DefaultSyncConfig() SyncConfig {
	return SyncConfig{
		Policy:       DrainThenRead,
		ReadSize:     MaxFrameLen,
		DrainTimeout: 2 * time.Millisecond,
		MaxDrain:     256,
		MaxSeekReads: 16,
	}
}

func (c SyncConfig) withDefaults() SyncConfig {
	def := DefaultSyncConfig()
	if c.ReadSize <= 0 {
		c.ReadSize = def.ReadSize
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = def.DrainTimeout
	}
	if c.MaxDrain <= 0 {
		c.MaxDrain = def.MaxDrain
	}
	if c.MaxSeekReads <= 0 {
		c.MaxSeekReads = def.MaxSeekReads
	}
	return c
}

// Synchronizer delivers the freshest complete frame from a transport. The
// camera keeps streaming whether or not anyone reads, so anything queued on
// the IN channel is stale by definition and is flushed before each delivery.
type Synchronizer struct {
	t   usbmux.Transport
	dec *Decoder
	cfg SyncConfig
}

func NewSynchronizer(t usbmux.Transport, dec *Decoder, cfg SyncConfig) *Synchronizer {
	return &Synchronizer{t: t, dec: dec, cfg: cfg.withDefaults()}
}

// ReadFrame drains stale queued buffers and decodes the next buffer to
// arrive within timeout. It returns (nil, nil) when nothing arrived in time
// or the buffer did not decode; hard transport errors are returned as-is.
func (s *Synchronizer) ReadFrame(timeout time.Duration) (Frame, error) {
	if err := s.drain(); err != nil {
		return nil, err
	}

	buf, err := s.t.Read(s.cfg.ReadSize, timeout)
	if err != nil {
		if errors.Is(err, usbmux.ErrTimeout) {
			return nil, nil
		}
		return nil, err
	}

	if s.cfg.Policy == SeekFraming {
		buf, err = s.seekAligned(buf, timeout)
		if err != nil {
			return nil, err
		}
		if buf == nil {
			return nil, nil
		}
	}

	f, err := s.dec.Decode(buf)
	if err != nil {
		// One undecodable buffer is not a stream fault; the caller simply
		// gets no frame this cycle.
		return nil, nil
	}
	return f, nil
}

// drain flushes everything queued on the IN channel with minimal-timeout
// reads until the device reports empty.
func (s *Synchronizer) drain() error {
	for i := 0; i < s.cfg.MaxDrain; i++ {
		_, err := s.t.Read(s.cfg.ReadSize, s.cfg.DrainTimeout)
		if err == nil {
			continue // stale buffer, discard
		}
		if errors.Is(err, usbmux.ErrTimeout) {
			return nil
		}
		return err
	}
	return nil
}

// seekAligned retries past unaligned buffers until one starts on a plausible
// frame boundary. A nil, nil return means the bus went quiet mid-search.
func (s *Synchronizer) seekAligned(buf []byte, timeout time.Duration) ([]byte, error) {
	for reads := 0; !aligned(buf); reads++ {
		if reads >= s.cfg.MaxSeekReads {
			return nil, ErrSyncLost
		}
		var err error
		buf, err = s.t.Read(s.cfg.ReadSize, timeout)
		if err != nil {
			if errors.Is(err, usbmux.ErrTimeout) {
				return nil, nil
			}
			return nil, err
		}
	}
	return buf, nil
}

// aligned reports whether buf starts on a plausible frame boundary: enough
// bytes for a header, a recognized type code, and a declared length no larger
// than the bytes in hand.
func aligned(buf []byte) bool {
	if len(buf) < minFrameLen {
		return false
	}
	if int(buf[0]) > len(buf) {
		return false
	}
	switch buf[1] {
	case TypeData, TypeInfo, TypeConfig:
		return true
	}
	return false
}
