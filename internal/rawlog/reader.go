package rawlog

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/fxamacker/cbor/v2"
)

// maxRecordSize guards against reading a corrupt length prefix as a huge
// allocation. Camera buffers are at most tens of bytes.
const maxRecordSize = 1 << 20

// Reader iterates the records of a capture file.
type Reader struct {
	f *os.File
	r *bufio.Reader
}

// OpenReader opens a capture file and verifies its magic header.
func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open raw log: %w", err)
	}

	r := bufio.NewReader(f)
	header := make([]byte, len(magic))
	if _, err := io.ReadFull(r, header); err != nil {
		f.Close()
		return nil, fmt.Errorf("read raw log header: %w", err)
	}
	if string(header) != magic {
		f.Close()
		return nil, fmt.Errorf("not a raw capture log: bad magic %q", header)
	}
	return &Reader{f: f, r: r}, nil
}

// Next returns the next record, or io.EOF at the end of the file.
func (l *Reader) Next() (Record, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(l.r, prefix[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			return Record{}, fmt.Errorf("truncated raw log record")
		}
		return Record{}, err
	}

	size := binary.LittleEndian.Uint32(prefix[:])
	if size > maxRecordSize {
		return Record{}, fmt.Errorf("raw log record size %d exceeds limit", size)
	}

	body := make([]byte, size)
	if _, err := io.ReadFull(l.r, body); err != nil {
		return Record{}, fmt.Errorf("truncated raw log record: %w", err)
	}

	var rec Record
	if err := cbor.Unmarshal(body, &rec); err != nil {
		return Record{}, fmt.Errorf("decode raw log record: %w", err)
	}
	return rec, nil
}

// Close closes the underlying file.
func (l *Reader) Close() error {
	return l.f.Close()
}

// ReadAll loads every record of the capture file at path.
func ReadAll(path string) ([]Record, error) {
	r, err := OpenReader(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var out []Record
	for {
		rec, err := r.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
}
