// Package sysfs reads the kernel's view of I2C buses and DRM connectors.
//
// All lookups are plain file reads under the sysfs and devfs mount points.
// A failed attribute read is reported as "not present" rather than an
// error: connectors come and go between the directory listing and the
// read, and the scan must not abort because one of them vanished.
//
// The roots are configurable so tests can point an FS at a fixture tree.
package sysfs

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rockowitz/ddcwatch/internal/bitset"
	"github.com/rockowitz/ddcwatch/internal/edid"
)

// MSTDeviceName is the sysfs device name the kernel assigns to I2C buses
// created for DisplayPort MST branch paths.
const MSTDeviceName = "DPMST"

// FS reads bus and connector state from a sysfs/devfs tree.
type FS struct {
	// Root is the sysfs mount point, normally "/sys".
	Root string

	// DevRoot is the device node directory, normally "/dev".
	DevRoot string
}

// New returns an FS over the standard mount points.
func New() *FS {
	return &FS{Root: "/sys", DevRoot: "/dev"}
}

// EnumerateBuses returns the set of I2C bus numbers that currently have a
// device node, by listing DevRoot for i2c-N entries.
func (f *FS) EnumerateBuses() (bitset.Set256, error) {
	var set bitset.Set256
	entries, err := os.ReadDir(f.DevRoot)
	if err != nil {
		return set, err
	}
	for _, e := range entries {
		n, ok := busNumberFromName(e.Name())
		if !ok {
			continue
		}
		set = set.Insert(n)
	}
	return set, nil
}

// busNumberFromName parses "i2c-N" device node names.
func busNumberFromName(name string) (int, bool) {
	rest, ok := strings.CutPrefix(name, "i2c-")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 0 || n >= bitset.Capacity {
		return 0, false
	}
	return n, true
}

// BusName returns the sysfs device name of a bus, e.g. "AUX B/DDI B/PHY B"
// or "DPMST". Empty when the bus has no sysfs entry.
func (f *FS) BusName(busno int) string {
	s, _ := f.readTrimmed(filepath.Join(f.Root, "bus", "i2c", "devices",
		"i2c-"+strconv.Itoa(busno), "name"))
	return s
}

// IsMSTBus reports whether a bus is a DisplayPort MST branch path.
func (f *FS) IsMSTBus(busno int) bool {
	return f.BusName(busno) == MSTDeviceName
}

// BusConnector returns the DRM connector name whose ddc link points at
// the given bus, e.g. "card0-DP-1". The second return is false when no
// connector claims the bus.
func (f *FS) BusConnector(busno int) (string, bool) {
	want := "i2c-" + strconv.Itoa(busno)
	for _, conn := range f.Connectors() {
		dir := filepath.Join(f.Root, "class", "drm", conn)
		if target, err := os.Readlink(filepath.Join(dir, "ddc")); err == nil {
			if filepath.Base(target) == want {
				return conn, true
			}
		}
		// MST connectors expose the bus as a subdirectory instead of a
		// ddc link.
		if _, err := os.Stat(filepath.Join(dir, want)); err == nil {
			return conn, true
		}
	}
	return "", false
}

// Connectors lists the DRM connector directories under class/drm.
func (f *FS) Connectors() []string {
	entries, err := os.ReadDir(filepath.Join(f.Root, "class", "drm"))
	if err != nil {
		return nil
	}
	var conns []string
	for _, e := range entries {
		name := e.Name()
		// Connector dirs are cardN-<type>-<index>; plain cardN and
		// renderDN entries are the devices themselves.
		if strings.HasPrefix(name, "card") && strings.Contains(name, "-") {
			conns = append(conns, name)
		}
	}
	return conns
}

// Attr reads a connector attribute such as "status", "enabled" or "dpms".
// The second return is false when the attribute does not exist or cannot
// be read.
func (f *FS) Attr(connector, name string) (string, bool) {
	return f.readTrimmed(filepath.Join(f.Root, "class", "drm", connector, name))
}

// HasEDID reports whether the connector exposes a non-empty edid
// attribute.
func (f *FS) HasEDID(connector string) bool {
	raw, err := os.ReadFile(filepath.Join(f.Root, "class", "drm", connector, "edid"))
	return err == nil && len(raw) > 0
}

// ReadEDID returns the connector's base EDID block, or nil when absent.
func (f *FS) ReadEDID(connector string) []byte {
	raw, err := os.ReadFile(filepath.Join(f.Root, "class", "drm", connector, "edid"))
	if err != nil || len(raw) < edid.BlockSize {
		return nil
	}
	return raw[:edid.BlockSize]
}

func (f *FS) readTrimmed(path string) (string, bool) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(raw)), true
}
