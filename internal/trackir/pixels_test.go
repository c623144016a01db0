package trackir

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestExtractPixelsCount(t *testing.T) {
	for n := 0; n <= 20; n++ {
		payload := make([]byte, n)
		got := ExtractPixels(payload)
		assert.Len(t, got, n/4, "payload length %d", n)
	}
}

func TestExtractPixelsShortPayloadsEmpty(t *testing.T) {
	for n := 0; n < 4; n++ {
		assert.Empty(t, ExtractPixels(make([]byte, n)))
	}
}

func TestExtractPixelsOrderPreserved(t *testing.T) {
	payload := []byte{
		1, 10, 20, 0xFF,
		2, 11, 21, 0xFF,
		3, 12, 22, 0xFF,
		9, 9, // trailing remainder, dropped
	}
	want := []Pixel{
		{Row: 1, X: 10, Y: 20, Delim: 0xFF},
		{Row: 2, X: 11, Y: 21, Delim: 0xFF},
		{Row: 3, X: 12, Y: 22, Delim: 0xFF},
	}

	if diff := cmp.Diff(want, ExtractPixels(payload)); diff != "" {
		t.Errorf("pixel mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractPixelsGroupDerivation(t *testing.T) {
	payload := make([]byte, 32)
	for i := range payload {
		payload[i] = byte(i * 3)
	}

	pixels := ExtractPixels(payload)
	for i, p := range pixels {
		assert.Equal(t, payload[4*i], p.Row)
		assert.Equal(t, payload[4*i+1], p.X)
		assert.Equal(t, payload[4*i+2], p.Y)
		assert.Equal(t, payload[4*i+3], p.Delim)
	}
}
