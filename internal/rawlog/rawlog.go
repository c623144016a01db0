// Package rawlog writes an append-only capture log of raw inbound buffers so
// protocol work can replay real camera traffic offline. The file starts with
// a magic string followed by length-prefixed CBOR records.
package rawlog

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
)

const magic = "HTRKRAW1"

// Record is one captured buffer with its receive time.
type Record struct {
	UnixNano int64  `cbor:"1,keyasint"`
	Raw      []byte `cbor:"2,keyasint"`
}

// Time returns the record's receive time.
func (r Record) Time() time.Time {
	return time.Unix(0, r.UnixNano)
}

// Writer appends records to a capture file. Safe for concurrent use.
type Writer struct {
	mu sync.Mutex
	f  *os.File
	w  *bufio.Writer
}

// NewWriter creates the capture file at path, truncating any existing file.
func NewWriter(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create raw log: %w", err)
	}

	w := bufio.NewWriterSize(f, 64*1024)
	if _, err := w.WriteString(magic); err != nil {
		f.Close()
		return nil, err
	}
	return &Writer{f: f, w: w}, nil
}

// Record appends one raw buffer stamped with the current time.
func (l *Writer) Record(raw []byte) error {
	rec := Record{UnixNano: time.Now().UnixNano(), Raw: raw}

	body, err := cbor.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode raw log record: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.w == nil {
		return fmt.Errorf("raw log writer is closed")
	}

	var prefix [4]byte
	binary.LittleEndian.PutUint32(prefix[:], uint32(len(body)))
	if _, err := l.w.Write(prefix[:]); err != nil {
		return err
	}
	if _, err := l.w.Write(body); err != nil {
		return err
	}
	return l.w.Flush()
}

// Close flushes and closes the capture file.
func (l *Writer) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.w == nil {
		return nil
	}
	flushErr := l.w.Flush()
	closeErr := l.f.Close()
	l.w = nil
	if flushErr != nil {
		return flushErr
	}
	return closeErr
}
