package api

import (
	"net/http"

	"github.com/nerrad567/deckscan-core/internal/deck"
)

// slotView is one deck slot as served by GET /deck.
type slotView struct {
	ID        int        `json:"id"`
	Origin    deck.Point `json:"origin"`
	Footprint deck.Size  `json:"footprint"`
	LabwareID string     `json:"labware_id,omitempty"`
	Wells     []wellView `json:"wells"`
}

// wellView is a well centre in stage units.
type wellView struct {
	Name   string     `json:"name"`
	Center deck.Point `json:"center"`
}

// handleGetDeck returns the deck layout with every well centre in stage units.
func (s *Server) handleGetDeck(w http.ResponseWriter, _ *http.Request) {
	layout := s.inst.Layout
	resolver := s.inst.Resolver

	slots := make([]slotView, 0, len(layout.Slots))
	for _, id := range layout.SlotIDs() {
		slot, err := layout.Slot(id)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		view := slotView{ID: id, Origin: slot.Origin, Footprint: slot.Footprint, Wells: []wellView{}}
		if slot.Labware != nil {
			view.LabwareID = slot.Labware.LoadName
			wells, err := layout.Wells(id)
			if err != nil {
				s.writeDomainError(w, err)
				return
			}
			for _, name := range wells {
				c, err := resolver.WellCenter(id, name)
				if err != nil {
					s.writeDomainError(w, err)
					return
				}
				view.Wells = append(view.Wells, wellView{Name: name, Center: c})
			}
		}
		slots = append(slots, view)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"name":   layout.Name,
		"units":  resolver.Units(),
		"bounds": layout.Bounds,
		"slots":  slots,
	})
}
