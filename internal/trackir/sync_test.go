package trackir

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/headtrack/internal/usbmux"
)

func dataFrameBytes(pixels ...byte) []byte {
	raw := []byte{byte(2 + len(pixels)), TypeData}
	return append(raw, pixels...)
}

func newTestSync(t *usbmux.TestTransport, policy SyncPolicy) *Synchronizer {
	cfg := DefaultSyncConfig()
	cfg.Policy = policy
	return NewSynchronizer(t, NewDecoder(), cfg)
}

// Queued frames are stale by definition: only the frame that arrives after
// the queue runs dry is delivered.
func TestDrainThenReadDeliversFreshest(t *testing.T) {
	tr := usbmux.NewTestTransport()
	tr.QueueRead(dataFrameBytes(1, 1, 1, 0xFF)) // F1, stale
	tr.QueueRead(dataFrameBytes(2, 2, 2, 0xFF)) // F2, stale
	tr.QueueRead(dataFrameBytes(3, 3, 3, 0xFF)) // F3, stale
	tr.QueueTimeout()                           // queue empty
	tr.QueueRead(dataFrameBytes(7, 8, 9, 0xFF)) // F4, fresh

	f, err := newTestSync(tr, DrainThenRead).ReadFrame(50 * time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, f)

	df, ok := f.(*DataFrame)
	require.True(t, ok)
	require.Len(t, df.Pixels, 1)
	assert.Equal(t, Pixel{Row: 7, X: 8, Y: 9, Delim: 0xFF}, df.Pixels[0])
}

func TestReadFrameQuietBus(t *testing.T) {
	tr := usbmux.NewTestTransport()
	tr.QueueTimeout() // drain sees empty
	tr.QueueTimeout() // blocking read times out

	f, err := newTestSync(tr, DrainThenRead).ReadFrame(10 * time.Millisecond)
	assert.NoError(t, err, "a timeout is not an error")
	assert.Nil(t, f)
}

func TestReadFrameUndecodableBufferYieldsNoFrame(t *testing.T) {
	tr := usbmux.NewTestTransport()
	tr.QueueTimeout()
	tr.QueueRead([]byte{0x01}) // too short to decode

	f, err := newTestSync(tr, DrainThenRead).ReadFrame(10 * time.Millisecond)
	assert.NoError(t, err)
	assert.Nil(t, f)
}

func TestReadFrameHardErrorPropagates(t *testing.T) {
	boom := errors.New("endpoint gone")
	tr := usbmux.NewTestTransport()
	tr.QueueError(boom)

	_, err := newTestSync(tr, DrainThenRead).ReadFrame(10 * time.Millisecond)
	assert.ErrorIs(t, err, boom)
}

func TestDrainIsBounded(t *testing.T) {
	tr := usbmux.NewTestTransport()
	for i := 0; i < 1000; i++ {
		tr.QueueRead(dataFrameBytes(1, 2, 3, 4))
	}

	cfg := DefaultSyncConfig()
	cfg.MaxDrain = 8
	s := NewSynchronizer(tr, NewDecoder(), cfg)

	_, err := s.ReadFrame(10 * time.Millisecond)
	require.NoError(t, err)
	// 8 drain reads plus the one delivery read
	assert.Equal(t, 9, tr.ReadCalls)
}

func TestSeekFramingSkipsUnalignedBuffers(t *testing.T) {
	tr := usbmux.NewTestTransport()
	tr.QueueTimeout()                            // drain
	tr.QueueRead([]byte{0xFF, 0x77, 0, 0, 0, 0}) // unknown type, unaligned
	tr.QueueRead([]byte{0x40, 0x1C, 1, 2})       // declared length > bytes in hand
	tr.QueueRead(dataFrameBytes(5, 6, 7, 0xFF))  // aligned

	f, err := newTestSync(tr, SeekFraming).ReadFrame(10 * time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, f)

	df, ok := f.(*DataFrame)
	require.True(t, ok)
	assert.Equal(t, byte(5), df.Pixels[0].Row)
}

func TestSeekFramingBudgetExhausted(t *testing.T) {
	tr := usbmux.NewTestTransport()
	tr.QueueTimeout() // drain
	for i := 0; i < 40; i++ {
		tr.QueueRead([]byte{0xFF, 0x77, 0, 0, 0, 0})
	}

	cfg := DefaultSyncConfig()
	cfg.Policy = SeekFraming
	cfg.MaxSeekReads = 4
	s := NewSynchronizer(tr, NewDecoder(), cfg)

	_, err := s.ReadFrame(10 * time.Millisecond)
	assert.ErrorIs(t, err, ErrSyncLost)
}

func TestSeekFramingQuietMidSearch(t *testing.T) {
	tr := usbmux.NewTestTransport()
	tr.QueueTimeout()
	tr.QueueRead([]byte{0xFF, 0x77, 0, 0, 0, 0})
	// script exhausted: subsequent reads time out

	f, err := newTestSync(tr, SeekFraming).ReadFrame(10 * time.Millisecond)
	assert.NoError(t, err)
	assert.Nil(t, f)
}

func TestAligned(t *testing.T) {
	cases := []struct {
		name string
		buf  []byte
		want bool
	}{
		{"data frame", dataFrameBytes(1, 2, 3, 4), true},
		{"info frame", []byte{0x04, 0x10, 1, 2, 0, 0}, true},
		{"config frame", []byte{0x06, 0x40, 1, 2, 3, 4}, true},
		{"unknown type", []byte{0x06, 0x99, 1, 2, 3, 4}, false},
		{"short buffer", []byte{0x06, 0x1C, 1}, false},
		{"length beyond buffer", []byte{0x40, 0x1C, 1, 2, 3, 4}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, aligned(tc.buf))
		})
	}
}
