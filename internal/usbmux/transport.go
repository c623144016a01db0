// Package usbmux abstracts the vendor-specific channel of the tracking camera
// behind a small timed read/write transport, with USB, serial-bridge, replay
// and mock implementations. The protocol layer in internal/trackir only ever
// sees the Transport interface.
package usbmux

import (
	"errors"
	"time"
)

// ErrTimeout reports that a read completed without data inside its deadline.
// It is an expected outcome on a quiet bus, not a device fault.
var ErrTimeout = errors.New("usbmux: read timed out")

var (
	// ErrDeviceNotFound is returned when no device with the requested
	// vendor/product IDs is attached.
	ErrDeviceNotFound = errors.New("usbmux: device not found")

	// ErrEndpointMissing is returned when the device is present but does not
	// expose the expected IN/OUT endpoint pair.
	ErrEndpointMissing = errors.New("usbmux: IN/OUT endpoint pair not found")
)

// Transport is the minimal timed endpoint pair the protocol layer needs.
// Read must distinguish three outcomes: bytes received, ErrTimeout, or a hard
// I/O error. Implementations need not be safe for concurrent use; the session
// layer serializes access.
type Transport interface {
	Write(p []byte, timeout time.Duration) (int, error)
	Read(maxLen int, timeout time.Duration) ([]byte, error)
	Close() error
}

// TransportOpener opens a Transport for the device identified by the given
// vendor and product IDs. It enables dependency injection of the USB layer so
// the protocol code can be driven by mocks and replayed captures.
type TransportOpener func(vendorID, productID uint16) (Transport, error)
