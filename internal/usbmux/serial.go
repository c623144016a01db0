package usbmux

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

// SerialTransport adapts a USB-serial capture bridge to the Transport
// contract. Used on the bench where the camera sits behind a sniffing bridge
// instead of being claimed directly.
type SerialTransport struct {
	port serial.Port
}

// DefaultBaudRate matches the bridge firmware's fixed rate.
const DefaultBaudRate = 115200

// OpenSerial opens the bridge at path. A zero baud rate selects
// DefaultBaudRate.
func OpenSerial(path string, baudRate int) (*SerialTransport, error) {
	if baudRate <= 0 {
		baudRate = DefaultBaudRate
	}
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial bridge %s: %w", path, err)
	}
	return &SerialTransport{port: port}, nil
}

func (t *SerialTransport) Write(p []byte, timeout time.Duration) (int, error) {
	// go.bug.st has no write deadline; bridge writes are small and complete
	// immediately or fail.
	return t.port.Write(p)
}

// Read returns the next buffer from the bridge. go.bug.st signals an expired
// read timeout as a zero-byte read with a nil error; that maps to ErrTimeout.
func (t *SerialTransport) Read(maxLen int, timeout time.Duration) ([]byte, error) {
	if err := t.port.SetReadTimeout(timeout); err != nil {
		return nil, fmt.Errorf("set read timeout: %w", err)
	}

	buf := make([]byte, maxLen)
	n, err := t.port.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("serial read: %w", err)
	}
	if n == 0 {
		return nil, ErrTimeout
	}
	return buf[:n], nil
}

func (t *SerialTransport) Close() error {
	return t.port.Close()
}
