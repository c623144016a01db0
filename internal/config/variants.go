// Package config holds the per-hardware-variant command tables for the
// supported camera revisions. The init and LED byte sequences were
// reverse-engineered from USB captures and are deliberately data, not logic:
// a new camera revision gets a table entry, not a code change.
package config

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

//go:embed variants.toml
var defaultVariantsTOML []byte

// Variant is the command table for one camera revision.
type Variant struct {
	Name      string
	VendorID  uint16
	ProductID uint16

	// Init is the ordered command sequence sent during the handshake. Each
	// entry is 1-3 opaque bytes.
	Init [][]byte

	// LED is the command prefix for illumination control; the session appends
	// the mask and intensity bytes.
	LED []byte

	// LEDMask and LEDIntensity are the defaults used by the boolean
	// illumination switch.
	LEDMask      byte
	LEDIntensity byte
}

// Variants is a command-table registry keyed by vendor/product ID.
type Variants struct {
	byID map[uint32]Variant
}

// Lookup returns the command table for the given device IDs.
func (vs *Variants) Lookup(vendorID, productID uint16) (Variant, bool) {
	v, ok := vs.byID[idKey(vendorID, productID)]
	return v, ok
}

// Add registers or replaces a variant.
func (vs *Variants) Add(v Variant) {
	vs.byID[idKey(v.VendorID, v.ProductID)] = v
}

// Names lists the registered variant names.
func (vs *Variants) Names() []string {
	names := make([]string, 0, len(vs.byID))
	for _, v := range vs.byID {
		names = append(names, v.Name)
	}
	return names
}

func idKey(vendorID, productID uint16) uint32 {
	return uint32(vendorID)<<16 | uint32(productID)
}

// TOML wire shapes. Byte sequences are arrays of integers in the file and
// validated into []byte on load.
type variantTOML struct {
	Name         string  `toml:"name"`
	VendorID     int     `toml:"vendor_id"`
	ProductID    int     `toml:"product_id"`
	Init         [][]int `toml:"init"`
	LED          []int   `toml:"led"`
	LEDMask      int     `toml:"led_mask"`
	LEDIntensity int     `toml:"led_intensity"`
}

type variantsFileTOML struct {
	Variant []variantTOML `toml:"variant"`
}

// DefaultVariants returns the registry built from the embedded table of known
// camera revisions.
func DefaultVariants() *Variants {
	vs, err := parseVariants(defaultVariantsTOML)
	if err != nil {
		// The embedded table is validated by tests; a parse failure here is a
		// build defect.
		panic("config: embedded variants table invalid: " + err.Error())
	}
	return vs
}

// LoadVariants reads a variants file and overlays it on the embedded
// defaults, so a partial file can patch a single revision's table.
func LoadVariants(path string) (*Variants, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read variants file: %w", err)
	}
	loaded, err := parseVariants(data)
	if err != nil {
		return nil, fmt.Errorf("parse variants file %s: %w", path, err)
	}

	vs := DefaultVariants()
	for _, v := range loaded.byID {
		vs.Add(v)
	}
	return vs, nil
}

func parseVariants(data []byte) (*Variants, error) {
	var file variantsFileTOML
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	if len(file.Variant) == 0 {
		return nil, fmt.Errorf("no [[variant]] entries")
	}

	vs := &Variants{byID: make(map[uint32]Variant)}
	for _, raw := range file.Variant {
		v, err := raw.validate()
		if err != nil {
			return nil, fmt.Errorf("variant %q: %w", raw.Name, err)
		}
		vs.Add(v)
	}
	return vs, nil
}

func (raw variantTOML) validate() (Variant, error) {
	if raw.Name == "" {
		return Variant{}, fmt.Errorf("missing name")
	}
	if raw.VendorID <= 0 || raw.VendorID > 0xFFFF {
		return Variant{}, fmt.Errorf("vendor_id %#x out of range", raw.VendorID)
	}
	if raw.ProductID < 0 || raw.ProductID > 0xFFFF {
		return Variant{}, fmt.Errorf("product_id %#x out of range", raw.ProductID)
	}
	if len(raw.Init) == 0 {
		return Variant{}, fmt.Errorf("empty init sequence")
	}

	v := Variant{
		Name:      raw.Name,
		VendorID:  uint16(raw.VendorID),
		ProductID: uint16(raw.ProductID),
	}

	for i, cmd := range raw.Init {
		b, err := toCommandBytes(cmd)
		if err != nil {
			return Variant{}, fmt.Errorf("init[%d]: %w", i, err)
		}
		v.Init = append(v.Init, b)
	}

	led, err := toCommandBytes(raw.LED)
	if err != nil {
		return Variant{}, fmt.Errorf("led: %w", err)
	}
	v.LED = led

	if raw.LEDMask < 0 || raw.LEDMask > 0xFF {
		return Variant{}, fmt.Errorf("led_mask %#x out of range", raw.LEDMask)
	}
	if raw.LEDIntensity < 0 || raw.LEDIntensity > 0xFF {
		return Variant{}, fmt.Errorf("led_intensity %#x out of range", raw.LEDIntensity)
	}
	v.LEDMask = byte(raw.LEDMask)
	v.LEDIntensity = byte(raw.LEDIntensity)

	return v, nil
}

func toCommandBytes(cmd []int) ([]byte, error) {
	if len(cmd) < 1 || len(cmd) > 3 {
		return nil, fmt.Errorf("command must be 1-3 bytes, got %d", len(cmd))
	}
	b := make([]byte, len(cmd))
	for i, n := range cmd {
		if n < 0 || n > 0xFF {
			return nil, fmt.Errorf("byte %d value %#x out of range", i, n)
		}
		b[i] = byte(n)
	}
	return b, nil
}
