// Package i2cbus maintains the persistent per-bus records the watch
// engine reconciles against.
//
// A BusInfo is created the first time a bus number is seen and then
// updated in place across scans. Records are only discarded when the
// device node itself disappears; losing the EDID leaves the record in
// place so display references keep a stable back-link.
package i2cbus

import (
	"sync"

	"github.com/rockowitz/ddcwatch/internal/bitset"
	"github.com/rockowitz/ddcwatch/internal/edid"
)

// mstDeviceName is the sysfs device name of DisplayPort MST branch buses.
const mstDeviceName = "DPMST"

// Prober supplies the kernel's view of buses and connectors. Implemented
// by the sysfs package; tests substitute a fake.
type Prober interface {
	// EnumerateBuses returns the bus numbers with a device node.
	EnumerateBuses() (bitset.Set256, error)

	// BusConnector maps a bus to its DRM connector name, if any.
	BusConnector(busno int) (string, bool)

	// BusName returns the sysfs device name of the bus.
	BusName(busno int) string

	// ReadEDID returns the connector's base EDID block, nil when absent.
	ReadEDID(connector string) []byte
}

// Logger defines the logging interface used by the Inventory.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// BusInfo is the persistent record for one I2C bus. Fields are mutated
// only under the watch engine's process-event lock; readers outside that
// lock go through Inventory accessors.
type BusInfo struct {
	// BusNo is the I2C bus number, the record's key.
	BusNo int

	// Connector is the DRM connector name backing this bus, empty when
	// none was found.
	Connector string

	// ConnectorChecked is set once connector resolution has been
	// attempted, so an absent connector is not re-scanned every pass.
	ConnectorChecked bool

	// EDID is the parsed identity block, nil while no monitor answers.
	EDID *edid.EDID

	// MST marks buses created for DisplayPort MST branch paths.
	MST bool

	// Asleep is the last sampled DPMS sleep state.
	Asleep bool
}

// Inventory is the set of known BusInfo records, keyed by bus number.
// All public methods are thread-safe.
type Inventory struct {
	mu     sync.RWMutex
	buses  map[int]*BusInfo
	prober Prober
	logger Logger
}

// NewInventory creates an empty inventory probing through p.
func NewInventory(p Prober) *Inventory {
	return &Inventory{
		buses:  make(map[int]*BusInfo),
		prober: p,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the inventory.
func (inv *Inventory) SetLogger(logger Logger) {
	inv.logger = logger
}

// EnumerateAttached returns the bitset of bus numbers whose device node
// currently exists. No EDID read is attempted.
func (inv *Inventory) EnumerateAttached() (bitset.Set256, error) {
	return inv.prober.EnumerateBuses()
}

// FilterWithEDID probes every bus in attached for an identity block,
// refreshing each record in place, and returns the subset that answered.
func (inv *Inventory) FilterWithEDID(attached bitset.Set256) bitset.Set256 {
	var withEDID bitset.Set256
	it := attached.Iter()
	for busno, ok := it.Next(); ok; busno, ok = it.Next() {
		bi := inv.GetOrCreate(busno)
		inv.refresh(bi)
		if bi.EDID != nil {
			withEDID = withEDID.Insert(busno)
		}
	}
	return withEDID
}

// refresh re-reads the connector mapping and EDID for one record.
func (inv *Inventory) refresh(bi *BusInfo) {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	if !bi.ConnectorChecked {
		bi.Connector, _ = inv.prober.BusConnector(bi.BusNo)
		bi.ConnectorChecked = true
	}
	if bi.Connector == "" {
		bi.EDID = nil
		return
	}

	raw := inv.prober.ReadEDID(bi.Connector)
	if raw == nil {
		bi.EDID = nil
		return
	}
	parsed, err := edid.Parse(raw)
	if err != nil {
		inv.logger.Warn("unparseable edid", "bus", bi.BusNo, "connector", bi.Connector, "error", err)
		bi.EDID = nil
		return
	}
	bi.EDID = parsed
}

// GetOrCreate returns the persistent record for a bus number, creating
// it on first sight.
func (inv *Inventory) GetOrCreate(busno int) *BusInfo {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	if bi, ok := inv.buses[busno]; ok {
		return bi
	}
	bi := &BusInfo{
		BusNo: busno,
		MST:   inv.prober.BusName(busno) == mstDeviceName,
	}
	inv.buses[busno] = bi
	inv.logger.Debug("bus record created", "bus", busno, "mst", bi.MST)
	return bi
}

// Get returns the record for a bus number, if one exists.
func (inv *Inventory) Get(busno int) (*BusInfo, bool) {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	bi, ok := inv.buses[busno]
	return bi, ok
}

// Discard removes a record entirely. Called only when the device node
// itself has vanished; display references pointing at the bus are left
// in removed state by the caller, never freed.
func (inv *Inventory) Discard(busno int) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if _, ok := inv.buses[busno]; ok {
		delete(inv.buses, busno)
		inv.logger.Info("bus record discarded", "bus", busno)
	}
}

// ForgetConnector clears the cached connector mapping so the next
// refresh re-resolves it. Used after DRM topology changes.
func (inv *Inventory) ForgetConnector(busno int) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	if bi, ok := inv.buses[busno]; ok {
		bi.Connector = ""
		bi.ConnectorChecked = false
	}
}
