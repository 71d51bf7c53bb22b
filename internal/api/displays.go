package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/rockowitz/ddcwatch/internal/display"
)

// DisplayInfo is the JSON form of one display ref.
type DisplayInfo struct {
	DisplayNumber int    `json:"display_number"`
	State         string `json:"state"`
	Connector     string `json:"connector"`
	BusNumber     int    `json:"bus_number"`
	DdcWorking    bool   `json:"ddc_working"`
	Asleep        bool   `json:"asleep,omitempty"`
	MfgID         string `json:"mfg_id,omitempty"`
	ModelName     string `json:"model_name,omitempty"`
	SerialASCII   string `json:"serial_ascii,omitempty"`
	ProductCode   uint16 `json:"product_code,omitempty"`
	SerialBinary  uint32 `json:"serial_binary,omitempty"`
}

// handleListDisplays returns the current display inventory.
//
// By default only valid displays are returned; ?all=true includes
// phantom, removed, and not-yet-numbered refs.
func (s *Server) handleListDisplays(w http.ResponseWriter, r *http.Request) {
	var refs []*display.Ref
	if r.URL.Query().Get("all") == "true" {
		refs = s.displays.All()
	} else {
		refs = s.displays.ListValid()
	}

	infos := make([]DisplayInfo, 0, len(refs))
	for _, ref := range refs {
		infos = append(infos, displayInfo(ref))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"displays": infos,
		"count":    len(infos),
	})
}

// handleGetDisplay returns one display by its assigned number.
func (s *Server) handleGetDisplay(w http.ResponseWriter, r *http.Request) {
	number, err := strconv.Atoi(chi.URLParam(r, "number"))
	if err != nil || number < 1 {
		writeBadRequest(w, "display number must be a positive integer")
		return
	}

	ref, ok := s.displays.FindByNumber(number)
	if !ok {
		writeNotFound(w, "no display with that number")
		return
	}

	writeJSON(w, http.StatusOK, displayInfo(ref))
}

// displayInfo flattens a ref for the wire.
func displayInfo(ref *display.Ref) DisplayInfo {
	info := DisplayInfo{
		DisplayNumber: ref.Number,
		State:         refState(ref),
		Connector:     ref.Connector,
		BusNumber:     ref.BusNo,
		DdcWorking:    ref.DDCWorking,
	}
	if ref.Bus != nil {
		info.Asleep = ref.Bus.Asleep
	}
	if ref.EDID != nil {
		info.MfgID = ref.EDID.MfgID
		info.ModelName = ref.EDID.ModelName
		info.SerialASCII = ref.EDID.SerialASCII
		info.ProductCode = ref.EDID.ProductCode
		info.SerialBinary = ref.EDID.SerialBinary
	}
	return info
}

func refState(ref *display.Ref) string {
	switch {
	case ref.Valid():
		return "valid"
	case ref.Phantom():
		return "phantom"
	case ref.Removed():
		return "removed"
	default:
		return "pending"
	}
}
