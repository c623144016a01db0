// Package trackir implements the reverse-engineered protocol of the
// NaturalPoint optical head-tracking cameras: the init handshake, LED
// control, inbound frame synchronization, and the frame and pixel codecs.
//
// The wire format carries no start delimiter. Every inbound buffer begins
// with a one-byte total length and a one-byte type code, followed by the
// payload; synchronization is re-derived from that pair on every read.
package trackir

import "time"

// Frame type codes observed in captures. Codes outside this set decode as
// UnknownFrame, which is a valid outcome rather than an error.
const (
	TypeData   byte = 0x1C
	TypeInfo   byte = 0x10
	TypeConfig byte = 0x40
)

// MaxFrameLen is the largest total frame length the camera emits.
const MaxFrameLen = 64

// Frame is one self-delimited message from the camera's inbound channel. The
// concrete type is one of DataFrame, InfoFrame, ConfigFrame or UnknownFrame;
// the set is closed. Frames are immutable once decoded and valid only for the
// read cycle that produced them.
type Frame interface {
	// Length is the total frame length declared in byte 0 of the buffer.
	Length() byte
	// Payload is the frame body raw[2:length], clamped to the bytes present.
	Payload() []byte
	// Raw is the buffer the frame was decoded from.
	Raw() []byte
	// Timestamp is the wall-clock decode time, non-decreasing within one
	// decoder instance.
	Timestamp() time.Time

	// frame marks the implementing set as closed.
	frame()
}

// frameHeader carries the fields shared by every frame kind.
type frameHeader struct {
	length  byte
	payload []byte
	raw     []byte
	ts      time.Time
}

func (h frameHeader) Length() byte         { return h.length }
func (h frameHeader) Payload() []byte      { return h.payload }
func (h frameHeader) Raw() []byte          { return h.raw }
func (h frameHeader) Timestamp() time.Time { return h.ts }
func (h frameHeader) frame()               {}

// DataFrame carries blob telemetry: one Pixel per detected bright point, in
// sensor scan order.
type DataFrame struct {
	frameHeader
	Pixels []Pixel
}

// InfoFrame carries device identification and status blocks.
type InfoFrame struct {
	frameHeader
}

// ConfigFrame echoes camera configuration state.
type ConfigFrame struct {
	frameHeader
}

// UnknownFrame preserves frames whose type byte has not been
// reverse-engineered yet.
type UnknownFrame struct {
	frameHeader
	TypeCode byte
}

// TypeName returns a short token for the frame's kind, used in logs and the
// HTTP surface.
func TypeName(f Frame) string {
	switch f.(type) {
	case *DataFrame:
		return "data"
	case *InfoFrame:
		return "info"
	case *ConfigFrame:
		return "config"
	default:
		return "unknown"
	}
}
