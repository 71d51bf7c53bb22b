// Package edid parses the 128 byte base EDID block exposed by DRM
// connectors and reachable at I2C slave address 0x50.
//
// Only the identity fields needed for display matching are extracted:
// manufacturer PNP id, model name, product code, and the two serial
// number representations. Timing and extension data are out of scope.
package edid

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
)

// BlockSize is the length of the base EDID block.
const BlockSize = 128

var headerMagic = []byte{0x00, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x00}

var (
	ErrShortBlock = errors.New("edid: block shorter than 128 bytes")
	ErrBadHeader  = errors.New("edid: invalid header magic")
)

const (
	descriptorBase  = 54
	descriptorSize  = 18
	descriptorCount = 4

	tagSerialASCII = 0xff
	tagModelName   = 0xfc
)

// EDID holds the identity fields of one parsed base block along with the
// raw bytes they came from.
type EDID struct {
	// Raw is the base block exactly as read from the device.
	Raw [BlockSize]byte

	// MfgID is the three letter PNP manufacturer code, e.g. "DEL".
	MfgID string

	// ModelName is the monitor name descriptor, empty if absent.
	ModelName string

	// SerialASCII is the serial number descriptor, empty if absent.
	SerialASCII string

	// ProductCode is the manufacturer assigned product code.
	ProductCode uint16

	// SerialBinary is the 32 bit serial number field. Often zero or a
	// constant across units, which is why SerialASCII is checked as well.
	SerialBinary uint32
}

// Parse extracts the identity fields from a base EDID block. raw must be
// at least BlockSize bytes; extension blocks past byte 127 are ignored.
func Parse(raw []byte) (*EDID, error) {
	if len(raw) < BlockSize {
		return nil, fmt.Errorf("%w: got %d", ErrShortBlock, len(raw))
	}
	if !bytes.Equal(raw[:8], headerMagic) {
		return nil, ErrBadHeader
	}

	e := &EDID{
		ProductCode:  uint16(raw[0x0b])<<8 | uint16(raw[0x0a]),
		SerialBinary: uint32(raw[0x0c]) | uint32(raw[0x0d])<<8 | uint32(raw[0x0e])<<16 | uint32(raw[0x0f])<<24,
	}
	copy(e.Raw[:], raw[:BlockSize])

	// Manufacturer id: three 5-bit letters packed into bytes 8 and 9,
	// 1 = 'A'.
	e.MfgID = string([]byte{
		'A' - 1 + (raw[8]>>2)&0x1f,
		'A' - 1 + ((raw[8]&0x03)<<3 | (raw[9]>>5)&0x07),
		'A' - 1 + raw[9]&0x1f,
	})

	for i := 0; i < descriptorCount; i++ {
		d := raw[descriptorBase+i*descriptorSize:]
		// String descriptors have a zero pixel clock and a zero at
		// byte 4; timing descriptors do not.
		if d[0] != 0 || d[1] != 0 || d[2] != 0 || d[4] != 0 {
			continue
		}
		switch d[3] {
		case tagModelName:
			e.ModelName = descriptorText(d[5 : 5+13])
		case tagSerialASCII:
			e.SerialASCII = descriptorText(d[5 : 5+13])
		}
	}
	return e, nil
}

// descriptorText decodes the 13 byte text payload of a string descriptor.
// Text shorter than the field is terminated by a newline and padded with
// spaces.
func descriptorText(b []byte) string {
	if i := bytes.IndexByte(b, '\n'); i >= 0 {
		b = b[:i]
	}
	return strings.TrimRight(string(b), " ")
}

// IDsMatch reports whether a and b describe the same physical monitor by
// comparing identity fields rather than raw bytes. Two blocks read over
// different connectors for the same monitor can differ in checksum and
// feature bytes while the identity fields agree.
func IDsMatch(a, b *EDID) bool {
	return a.MfgID == b.MfgID &&
		a.ModelName == b.ModelName &&
		a.ProductCode == b.ProductCode &&
		a.SerialASCII == b.SerialASCII &&
		a.SerialBinary == b.SerialBinary
}

// SameBytes reports whether a and b are byte for byte identical blocks.
func SameBytes(a, b *EDID) bool {
	return a.Raw == b.Raw
}
