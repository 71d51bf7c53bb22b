package display

import (
	"github.com/rockowitz/ddcwatch/internal/edid"
)

// ConnectorAttrs reads DRM connector attributes for phantom
// classification. Implemented by the sysfs package; tests substitute a
// fake.
type ConnectorAttrs interface {
	// Attr returns a connector attribute such as "status" or "enabled".
	Attr(connector, name string) (string, bool)

	// HasEDID reports whether the connector exposes an edid attribute.
	HasEDID(connector string) bool
}

// ResolvePhantoms classifies duplicate display references left behind
// when a monitor moves between video paths.
//
// Two passes run over the I2C refs:
//
//  1. An unconfirmed ref (no working DDC) whose EDID identity fields
//     match a confirmed ref is a phantom of it, provided the unconfirmed
//     side's connector confirms it is dead: status reads disconnected,
//     enabled reads disabled, and no edid attribute is exposed. Identity
//     fields are compared rather than raw bytes because real/phantom
//     EDID pairs have been seen differing in a single byte.
//
//  2. When confirmed refs split across MST and direct paths, a direct
//     ref with a byte-identical EDID to an MST ref is a phantom of the
//     MST one, which keeps its number. This pass is skipped if the
//     direct subset contains duplicate EDIDs among itself, since two
//     physically distinct monitors can share an identity block.
//
// Refs are partitioned on DDC state, not on display number: resolution
// runs before renumbering, when newly created refs have no number yet.
// If an unconfirmed ref matches several confirmed refs the last match
// wins. The pass is idempotent: re-running it over the same snapshot
// yields the same linkage. Callers renumber only after this returns.
func ResolvePhantoms(reg *Registry, attrs ConnectorAttrs, logger Logger) bool {
	if logger == nil {
		logger = noopLogger{}
	}
	refs := reg.All()

	var working, unconfirmed []*Ref
	for _, r := range refs {
		switch {
		case r.Removed():
		case r.Phantom():
			unconfirmed = append(unconfirmed, r)
		case r.DDCWorking:
			working = append(working, r)
		default:
			unconfirmed = append(unconfirmed, r)
		}
	}

	found := false
	for _, u := range unconfirmed {
		for _, w := range working {
			if u.EDID == nil || w.EDID == nil {
				continue
			}
			if !edid.IDsMatch(u.EDID, w.EDID) {
				continue
			}
			if !connectorLooksDead(attrs, u.Connector) {
				continue
			}
			// Last matching confirmed ref wins.
			reg.markPhantom(u, w)
			found = true
			logger.Info("phantom display resolved",
				"phantom", u.String(), "actual", w.String())
		}
	}

	if mstFound := resolveMSTDuplicates(reg, working, logger); mstFound {
		found = true
	}
	return found
}

// connectorLooksDead checks the three attributes that confirm an
// inactive video path. All three must hold.
func connectorLooksDead(attrs ConnectorAttrs, connector string) bool {
	if connector == "" {
		return false
	}
	if status, ok := attrs.Attr(connector, "status"); !ok || status != "disconnected" {
		return false
	}
	if enabled, ok := attrs.Attr(connector, "enabled"); !ok || enabled != "disabled" {
		return false
	}
	return !attrs.HasEDID(connector)
}

// resolveMSTDuplicates demotes direct-path refs duplicated by an MST
// path.
func resolveMSTDuplicates(reg *Registry, working []*Ref, logger Logger) bool {
	var mst, direct []*Ref
	for _, r := range working {
		if r.Bus != nil && r.Bus.MST {
			mst = append(mst, r)
		} else {
			direct = append(direct, r)
		}
	}
	if len(mst) == 0 || len(direct) == 0 {
		return false
	}

	// Guard against merging two physically distinct monitors that ship
	// identical EDIDs.
	for i := 0; i < len(direct); i++ {
		for j := i + 1; j < len(direct); j++ {
			if direct[i].EDID != nil && direct[j].EDID != nil &&
				edid.SameBytes(direct[i].EDID, direct[j].EDID) {
				logger.Warn("duplicate EDIDs among direct connectors, skipping MST resolution",
					"a", direct[i].String(), "b", direct[j].String())
				return false
			}
		}
	}

	found := false
	for _, m := range mst {
		for _, d := range direct {
			if m.EDID == nil || d.EDID == nil || !edid.SameBytes(m.EDID, d.EDID) {
				continue
			}
			reg.markPhantom(d, m)
			found = true
			logger.Info("MST duplicate resolved",
				"phantom", d.String(), "actual", m.String())
		}
	}
	return found
}
