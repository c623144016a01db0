package trackir

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/headtrack/internal/config"
	"github.com/banshee-data/headtrack/internal/monitoring"
	"github.com/banshee-data/headtrack/internal/usbmux"
)

const (
	testVendorID  = 0x1784
	testProductID = 0x0030 // TrackIR 5
)

func init() {
	monitoring.SetLogger(nil)
}

func openTestSession(t *testing.T) (*Session, *usbmux.TestTransport) {
	t.Helper()

	tr := usbmux.NewTestTransport()
	opener := func(vendorID, productID uint16) (usbmux.Transport, error) {
		return tr, nil
	}

	s, err := Open(testVendorID, testProductID, config.DefaultVariants(), opener, SessionConfig{})
	require.NoError(t, err)
	return s, tr
}

func TestOpenUnknownVariant(t *testing.T) {
	opener := func(vendorID, productID uint16) (usbmux.Transport, error) {
		t.Fatal("opener must not be called without a command table")
		return nil, nil
	}

	_, err := Open(0xDEAD, 0xBEEF, config.DefaultVariants(), opener, SessionConfig{})
	assert.Error(t, err)
}

func TestOpenPropagatesTransportError(t *testing.T) {
	opener := func(vendorID, productID uint16) (usbmux.Transport, error) {
		return nil, usbmux.ErrDeviceNotFound
	}

	_, err := Open(testVendorID, testProductID, config.DefaultVariants(), opener, SessionConfig{})
	assert.ErrorIs(t, err, usbmux.ErrDeviceNotFound)
}

func TestOpenStartsConfigured(t *testing.T) {
	s, _ := openTestSession(t)
	assert.Equal(t, StateConfigured, s.State())
	assert.Equal(t, "TrackIR 5", s.Variant().Name)
}

func TestInitSendsCommandTableInOrder(t *testing.T) {
	s, tr := openTestSession(t)

	require.NoError(t, s.Init())
	assert.Equal(t, StateStreaming, s.State())

	writes := tr.Writes()
	variant := s.Variant()
	require.Len(t, writes, len(variant.Init))
	for i, cmd := range variant.Init {
		assert.Equal(t, cmd, writes[i], "command %d", i+1)
	}
}

func TestInitWriteFailureAbortsAndFaults(t *testing.T) {
	s, tr := openTestSession(t)

	boom := errors.New("stall")
	tr.FailWriteAt(3, boom)

	err := s.Init()
	var initErr *InitError
	require.ErrorAs(t, err, &initErr)
	assert.Equal(t, 3, initErr.Step)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, StateFaulted, s.State())

	// Only the two successful commands reached the wire.
	assert.Len(t, tr.Writes(), 2)
}

func TestFaultedSessionFailsFastWithoutTransport(t *testing.T) {
	s, tr := openTestSession(t)

	boom := errors.New("stall")
	tr.FailWriteAt(3, boom)
	require.Error(t, s.Init())

	readsBefore, writesBefore := tr.ReadCalls, tr.WriteCalls

	_, err := s.ReadFrame()
	assert.ErrorIs(t, err, boom, "the causing error is reported on every later call")
	assert.ErrorIs(t, s.SetLED(0x20, 0x07), boom)
	assert.ErrorIs(t, s.Init(), boom)

	assert.Equal(t, readsBefore, tr.ReadCalls, "faulted session must not read")
	assert.Equal(t, writesBefore, tr.WriteCalls, "faulted session must not write")
}

func TestSetLEDAppendsMaskAndIntensity(t *testing.T) {
	s, tr := openTestSession(t)

	require.NoError(t, s.SetLED(0x20, 0x07))

	writes := tr.Writes()
	require.Len(t, writes, 1)
	want := append(append([]byte{}, s.Variant().LED...), 0x20, 0x07)
	assert.Equal(t, want, writes[0])
}

func TestSetIllumination(t *testing.T) {
	s, tr := openTestSession(t)
	v := s.Variant()

	require.NoError(t, s.SetIllumination(true))
	require.NoError(t, s.SetIllumination(false))

	writes := tr.Writes()
	require.Len(t, writes, 2)
	assert.Equal(t, append(append([]byte{}, v.LED...), v.LEDMask, v.LEDIntensity), writes[0])
	assert.Equal(t, append(append([]byte{}, v.LED...), v.LEDMask, 0x00), writes[1])
}

func TestReadFrameThroughSession(t *testing.T) {
	s, tr := openTestSession(t)
	require.NoError(t, s.Init())

	tr.QueueTimeout() // drain finds the queue empty
	tr.QueueRead([]byte{0x06, TypeData, 1, 2, 3, 4})

	f, err := s.ReadFrame()
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, uint64(1), s.FrameCount())

	df, ok := f.(*DataFrame)
	require.True(t, ok)
	assert.Equal(t, Pixel{Row: 1, X: 2, Y: 3, Delim: 4}, df.Pixels[0])
}

func TestReadFrameTimeoutIsNotAnError(t *testing.T) {
	s, tr := openTestSession(t)
	require.NoError(t, s.Init())

	tr.QueueTimeout()
	tr.QueueTimeout()

	f, err := s.ReadFrame()
	assert.NoError(t, err)
	assert.Nil(t, f)
	assert.Equal(t, StateStreaming, s.State(), "timeouts must not change state")
}

func TestReadFrameHardErrorFaultsSession(t *testing.T) {
	s, tr := openTestSession(t)
	require.NoError(t, s.Init())

	boom := errors.New("endpoint gone")
	tr.QueueError(boom)

	_, err := s.ReadFrame()
	require.ErrorIs(t, err, boom)
	assert.Equal(t, StateFaulted, s.State())

	writesBefore := tr.WriteCalls
	assert.ErrorIs(t, s.SetIllumination(true), boom)
	assert.Equal(t, writesBefore, tr.WriteCalls)
}

func TestSyncLostDoesNotFaultSession(t *testing.T) {
	tr := usbmux.NewTestTransport()
	opener := func(vendorID, productID uint16) (usbmux.Transport, error) {
		return tr, nil
	}

	cfg := SessionConfig{}
	cfg.Sync.Policy = SeekFraming
	cfg.Sync.MaxSeekReads = 2
	s, err := Open(testVendorID, testProductID, config.DefaultVariants(), opener, cfg)
	require.NoError(t, err)
	require.NoError(t, s.Init())

	tr.QueueTimeout() // drain
	for i := 0; i < 10; i++ {
		tr.QueueRead([]byte{0xFF, 0x77, 0, 0, 0, 0})
	}

	_, err = s.ReadFrame()
	require.ErrorIs(t, err, ErrSyncLost)
	assert.Equal(t, StateStreaming, s.State(), "sync loss is recoverable")
}
