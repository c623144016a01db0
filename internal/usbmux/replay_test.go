package usbmux

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplayTransportPacesRecords(t *testing.T) {
	records := [][]byte{{1}, {2}, {3}}
	tr := NewReplayTransport(records, 5*time.Millisecond, false)

	for _, want := range records {
		buf, err := tr.Read(64, 100*time.Millisecond)
		require.NoError(t, err)
		assert.Equal(t, want, buf)
	}

	// exhausted without loop: quiet bus
	_, err := tr.Read(64, time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestReplayTransportShortTimeoutsSeeGaps(t *testing.T) {
	tr := NewReplayTransport([][]byte{{1}}, 50*time.Millisecond, false)

	// well before the first record is due
	_, err := tr.Read(64, time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)

	buf, err := tr.Read(64, 200*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, []byte{1}, buf)
}

func TestReplayTransportLoops(t *testing.T) {
	tr := NewReplayTransport([][]byte{{1}, {2}}, time.Millisecond, true)

	var got []byte
	for i := 0; i < 5; i++ {
		buf, err := tr.Read(64, 100*time.Millisecond)
		require.NoError(t, err)
		got = append(got, buf[0])
	}
	assert.Equal(t, []byte{1, 2, 1, 2, 1}, got)
}

func TestReplayTransportDiscardsWrites(t *testing.T) {
	tr := NewReplayTransport(nil, time.Millisecond, false)

	n, err := tr.Write([]byte{0x10, 0x20, 0x07}, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}
