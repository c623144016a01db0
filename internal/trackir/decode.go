package trackir

import (
	"errors"
	"time"
)

// ErrTooShort reports a buffer below the minimum decodable frame size. The
// error is local to the buffer: that read cycle yields no frame and streaming
// continues.
var ErrTooShort = errors.New("trackir: buffer too short for a frame")

// minFrameLen is the shortest buffer Decode accepts: length byte, type byte,
// and the four bytes of the smallest observed payload group.
const minFrameLen = 6

// Decoder turns raw inbound buffers into typed frames. It ratchets its
// timestamps so they never decrease within one decoder instance even if the
// wall clock steps backwards.
type Decoder struct {
	now  func() time.Time
	last time.Time
}

func NewDecoder() *Decoder {
	return &Decoder{now: time.Now}
}

// Decode parses one raw buffer. The frame's declared length is raw[0] and its
// type code raw[1]; the payload is raw[2:length], clamped to the bytes
// actually present. An unrecognized type code yields an UnknownFrame, never
// an error.
func (d *Decoder) Decode(raw []byte) (Frame, error) {
	if len(raw) < minFrameLen {
		return nil, ErrTooShort
	}

	length := raw[0]
	end := int(length)
	if end > len(raw) {
		end = len(raw)
	}
	var payload []byte
	if end > 2 {
		payload = raw[2:end]
	}

	h := frameHeader{
		length:  length,
		payload: payload,
		raw:     raw,
		ts:      d.stamp(),
	}

	switch raw[1] {
	case TypeData:
		return &DataFrame{frameHeader: h, Pixels: ExtractPixels(payload)}, nil
	case TypeInfo:
		return &InfoFrame{frameHeader: h}, nil
	case TypeConfig:
		return &ConfigFrame{frameHeader: h}, nil
	default:
		return &UnknownFrame{frameHeader: h, TypeCode: raw[1]}, nil
	}
}

func (d *Decoder) stamp() time.Time {
	t := d.now()
	if t.Before(d.last) {
		t = d.last
	}
	d.last = t
	return t
}
