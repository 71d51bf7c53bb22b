package edid

import (
	"errors"
	"testing"
)

// buildBlock assembles a minimal valid base block. Descriptor slots not
// written stay zero, which parses as "no descriptor".
func buildBlock(mut func(b []byte)) []byte {
	b := make([]byte, BlockSize)
	copy(b, headerMagic)
	if mut != nil {
		mut(b)
	}
	return b
}

func setDescriptor(b []byte, slot int, tag byte, text string) {
	d := b[descriptorBase+slot*descriptorSize:]
	d[3] = tag
	payload := d[5 : 5+13]
	for i := range payload {
		payload[i] = ' '
	}
	n := copy(payload, text)
	if n < len(payload) {
		payload[n] = '\n'
	}
}

func TestParseIdentityFields(t *testing.T) {
	raw := buildBlock(func(b []byte) {
		// "DEL", packed as 0x10 0xac.
		b[8], b[9] = 0x10, 0xac
		// Product code 0x41a2, little endian.
		b[0x0a], b[0x0b] = 0xa2, 0x41
		// Serial 0x01020304, little endian.
		b[0x0c], b[0x0d], b[0x0e], b[0x0f] = 0x04, 0x03, 0x02, 0x01
		setDescriptor(b, 1, tagModelName, "DELL U3011")
		setDescriptor(b, 2, tagSerialASCII, "PXF79-ABC")
	})

	e, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if e.MfgID != "DEL" {
		t.Errorf("MfgID = %q, want %q", e.MfgID, "DEL")
	}
	if e.ModelName != "DELL U3011" {
		t.Errorf("ModelName = %q, want %q", e.ModelName, "DELL U3011")
	}
	if e.SerialASCII != "PXF79-ABC" {
		t.Errorf("SerialASCII = %q, want %q", e.SerialASCII, "PXF79-ABC")
	}
	if e.ProductCode != 0x41a2 {
		t.Errorf("ProductCode = %#x, want 0x41a2", e.ProductCode)
	}
	if e.SerialBinary != 0x01020304 {
		t.Errorf("SerialBinary = %#x, want 0x01020304", e.SerialBinary)
	}
}

func TestParseMissingDescriptors(t *testing.T) {
	e, err := Parse(buildBlock(nil))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if e.ModelName != "" || e.SerialASCII != "" {
		t.Errorf("got ModelName=%q SerialASCII=%q, want empty", e.ModelName, e.SerialASCII)
	}
}

func TestParseFullWidthDescriptorText(t *testing.T) {
	// 13 characters exactly: no newline terminator, no padding.
	e, err := Parse(buildBlock(func(b []byte) {
		setDescriptor(b, 0, tagModelName, "ABCDEFGHIJKLM")
	}))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if e.ModelName != "ABCDEFGHIJKLM" {
		t.Errorf("ModelName = %q", e.ModelName)
	}
}

func TestParseErrors(t *testing.T) {
	if _, err := Parse(make([]byte, 64)); !errors.Is(err, ErrShortBlock) {
		t.Errorf("short block: err = %v, want ErrShortBlock", err)
	}
	bad := buildBlock(nil)
	bad[0] = 0xff
	if _, err := Parse(bad); !errors.Is(err, ErrBadHeader) {
		t.Errorf("bad header: err = %v, want ErrBadHeader", err)
	}
}

func TestIDsMatchIgnoresNonIdentityBytes(t *testing.T) {
	base := buildBlock(func(b []byte) {
		b[8], b[9] = 0x10, 0xac
		b[0x0a], b[0x0b] = 0x01, 0x00
		setDescriptor(b, 0, tagModelName, "P2415Q")
		setDescriptor(b, 1, tagSerialASCII, "XYZ123")
	})
	a, err := Parse(base)
	if err != nil {
		t.Fatal(err)
	}

	// Same monitor seen over another connector: feature byte differs.
	variant := make([]byte, BlockSize)
	copy(variant, base)
	variant[0x18] ^= 0x20
	b, err := Parse(variant)
	if err != nil {
		t.Fatal(err)
	}

	if !IDsMatch(a, b) {
		t.Error("IDsMatch = false for identical identity fields")
	}
	if SameBytes(a, b) {
		t.Error("SameBytes = true for differing raw blocks")
	}

	// Different serial means a different physical unit.
	other := make([]byte, BlockSize)
	copy(other, base)
	setDescriptor(other, 1, tagSerialASCII, "XYZ999")
	c, err := Parse(other)
	if err != nil {
		t.Fatal(err)
	}
	if IDsMatch(a, c) {
		t.Error("IDsMatch = true for differing serials")
	}
}
