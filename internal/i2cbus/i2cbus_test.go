package i2cbus

import (
	"testing"

	"github.com/rockowitz/ddcwatch/internal/bitset"
	"github.com/rockowitz/ddcwatch/internal/edid"
)

// fakeProber simulates the kernel view for inventory tests.
type fakeProber struct {
	buses      bitset.Set256
	connectors map[int]string
	names      map[int]string
	edids      map[string][]byte
}

func (f *fakeProber) EnumerateBuses() (bitset.Set256, error) { return f.buses, nil }

func (f *fakeProber) BusConnector(busno int) (string, bool) {
	c, ok := f.connectors[busno]
	return c, ok
}

func (f *fakeProber) BusName(busno int) string { return f.names[busno] }

func (f *fakeProber) ReadEDID(connector string) []byte { return f.edids[connector] }

// validEDID builds a parseable block with the given serial text.
func validEDID(serial string) []byte {
	b := make([]byte, edid.BlockSize)
	copy(b, []byte{0x00, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x00})
	b[8], b[9] = 0x10, 0xac
	d := b[54+18:]
	d[3] = 0xff
	for i := 5; i < 5+13; i++ {
		d[i] = ' '
	}
	n := copy(d[5:5+13], serial)
	if n < 13 {
		d[5+n] = '\n'
	}
	return b
}

func newFake() *fakeProber {
	return &fakeProber{
		buses:      bitset.Set256{}.Insert(3).Insert(7),
		connectors: map[int]string{3: "card0-DP-1", 7: "card0-HDMI-A-1"},
		names:      map[int]string{3: "AUX A/DDI A/PHY A", 7: "i915 gmbus dpb"},
		edids: map[string][]byte{
			"card0-DP-1":     validEDID("AAA111"),
			"card0-HDMI-A-1": validEDID("BBB222"),
		},
	}
}

func TestFilterWithEDID(t *testing.T) {
	fake := newFake()
	inv := NewInventory(fake)

	attached, err := inv.EnumerateAttached()
	if err != nil {
		t.Fatalf("EnumerateAttached: %v", err)
	}
	withEDID := inv.FilterWithEDID(attached)
	if !withEDID.Equal(attached) {
		t.Errorf("FilterWithEDID = %v, want %v", withEDID.Members(), attached.Members())
	}

	bi, ok := inv.Get(3)
	if !ok || bi.EDID == nil {
		t.Fatal("bus 3 record missing or without EDID")
	}
	if bi.EDID.SerialASCII != "AAA111" {
		t.Errorf("bus 3 serial = %q", bi.EDID.SerialASCII)
	}
	if bi.Connector != "card0-DP-1" {
		t.Errorf("bus 3 connector = %q", bi.Connector)
	}
}

func TestFilterWithEDID_LostIdentity(t *testing.T) {
	fake := newFake()
	inv := NewInventory(fake)
	inv.FilterWithEDID(fake.buses)

	// Monitor on bus 7 unplugged: EDID gone, device node still present.
	delete(fake.edids, "card0-HDMI-A-1")
	withEDID := inv.FilterWithEDID(fake.buses)

	if withEDID.Contains(7) {
		t.Error("bus 7 still reported with EDID after unplug")
	}
	if !withEDID.Contains(3) {
		t.Error("bus 3 lost its EDID unexpectedly")
	}

	// Record survives, updated in place.
	bi, ok := inv.Get(7)
	if !ok {
		t.Fatal("bus 7 record discarded on EDID loss")
	}
	if bi.EDID != nil {
		t.Error("bus 7 EDID not cleared")
	}
}

func TestGetOrCreateIsStable(t *testing.T) {
	inv := NewInventory(newFake())
	a := inv.GetOrCreate(12)
	b := inv.GetOrCreate(12)
	if a != b {
		t.Error("GetOrCreate returned two records for one bus")
	}
}

func TestMSTDetection(t *testing.T) {
	fake := newFake()
	fake.names[9] = "DPMST"
	inv := NewInventory(fake)

	if !inv.GetOrCreate(9).MST {
		t.Error("MST = false for DPMST bus")
	}
	if inv.GetOrCreate(3).MST {
		t.Error("MST = true for direct bus")
	}
}

func TestDiscard(t *testing.T) {
	inv := NewInventory(newFake())
	inv.GetOrCreate(5)
	inv.Discard(5)
	if _, ok := inv.Get(5); ok {
		t.Error("record still present after Discard")
	}
	// Discarding an unknown bus is a no-op.
	inv.Discard(99)
}

func TestUnparseableEDIDIgnored(t *testing.T) {
	fake := newFake()
	fake.edids["card0-DP-1"] = make([]byte, edid.BlockSize) // zero header
	inv := NewInventory(fake)

	withEDID := inv.FilterWithEDID(fake.buses)
	if withEDID.Contains(3) {
		t.Error("bus with unparseable EDID reported as identified")
	}
}
