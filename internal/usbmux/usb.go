package usbmux

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/gousb"
)

// USBTransport is a thin binding over gousb exposing the first IN/OUT
// endpoint pair on the device's default interface. It owns the libusb
// context and releases everything on Close.
type USBTransport struct {
	ctx     *gousb.Context
	dev     *gousb.Device
	release func()
	in      *gousb.InEndpoint
	out     *gousb.OutEndpoint
}

// OpenUSB claims the device with the given IDs and resolves its endpoint
// pair. The camera exposes exactly one IN and one OUT endpoint on its default
// interface; anything else is ErrEndpointMissing.
func OpenUSB(vendorID, productID uint16) (Transport, error) {
	ctx := gousb.NewContext()

	dev, err := ctx.OpenDeviceWithVIDPID(gousb.ID(vendorID), gousb.ID(productID))
	if err != nil {
		ctx.Close()
		return nil, fmt.Errorf("open device %04x:%04x: %w", vendorID, productID, err)
	}
	if dev == nil {
		ctx.Close()
		return nil, ErrDeviceNotFound
	}

	intf, release, err := dev.DefaultInterface()
	if err != nil {
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("claim default interface: %w", err)
	}

	inNum, outNum := -1, -1
	for _, ep := range intf.Setting.Endpoints {
		switch ep.Direction {
		case gousb.EndpointDirectionIn:
			if inNum < 0 || ep.Number < inNum {
				inNum = ep.Number
			}
		case gousb.EndpointDirectionOut:
			if outNum < 0 || ep.Number < outNum {
				outNum = ep.Number
			}
		}
	}
	if inNum < 0 || outNum < 0 {
		release()
		dev.Close()
		ctx.Close()
		return nil, ErrEndpointMissing
	}

	in, err := intf.InEndpoint(inNum)
	if err != nil {
		release()
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("open IN endpoint %d: %w", inNum, err)
	}
	out, err := intf.OutEndpoint(outNum)
	if err != nil {
		release()
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("open OUT endpoint %d: %w", outNum, err)
	}

	return &USBTransport{
		ctx:     ctx,
		dev:     dev,
		release: release,
		in:      in,
		out:     out,
	}, nil
}

// Write sends p on the OUT endpoint, bounded by timeout.
func (t *USBTransport) Write(p []byte, timeout time.Duration) (int, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	n, err := t.out.WriteContext(ctx, p)
	if err != nil {
		return n, fmt.Errorf("usb write: %w", err)
	}
	return n, nil
}

// Read receives up to maxLen bytes from the IN endpoint. A transfer that
// yields nothing before the deadline is reported as ErrTimeout.
func (t *USBTransport) Read(maxLen int, timeout time.Duration) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	buf := make([]byte, maxLen)
	n, err := t.in.ReadContext(ctx, buf)
	if err != nil {
		if isUSBTimeout(err) {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("usb read: %w", err)
	}
	return buf[:n], nil
}

// Close releases the interface, device and libusb context.
func (t *USBTransport) Close() error {
	t.release()
	if err := t.dev.Close(); err != nil {
		t.ctx.Close()
		return err
	}
	return t.ctx.Close()
}

// isUSBTimeout reports whether err is the expired-deadline outcome of a
// transfer rather than a hard failure. gousb surfaces libusb timeouts as
// ErrorTimeout and context expiry as TransferCancelled wrapping the deadline.
func isUSBTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, gousb.ErrorTimeout) ||
		errors.Is(err, gousb.TransferCancelled)
}
