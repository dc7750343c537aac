// Package deck provides the coordinate and labware model for DeckScan Core.
//
// A deck is a fixed set of numbered slots. Each slot may hold one labware
// (typically a well plate) whose wells sit at known offsets from the slot
// origin. The package maps logical addresses (slot, well, offset) to
// physical coordinates and back.
//
// Architecture:
//
//	┌──────────────────────────────────────────────────────┐
//	│                 Layout (layout.go)                    │
//	│  Immutable after load: slots, labware, well centres   │
//	│        │                                              │
//	│        ▼                                              │
//	│  ┌──────────────┐    ┌──────────────────────────┐    │
//	│  │   Resolver   │───▶│ Units (mm2um / um2mm / "") │    │
//	│  │(resolve.go)  │    │       (units.go)           │    │
//	│  └──────────────┘    └──────────────────────────┘    │
//	└──────────────────────────────────────────────────────┘
//
// # Frames
//
// Layout coordinates are expressed in deck units (millimetres for the
// bundled layouts). The stage may use a different unit; the Resolver
// translates between the two with the configured Units.
//
// # Resolution Rules
//
//   - SlotOf returns the slot whose footprint contains the point, or the
//     slot with the nearest footprint centre when no footprint does.
//   - ClosestWell returns the nearest well centre (2D Euclidean) in the
//     resolved slot. A point outside every labware still resolves to the
//     geometrically nearest well.
//   - Only points outside the deck bounds fail with ErrOutOfDeck.
//
// # Thread Safety
//
// Layout and Resolver hold no mutable state after construction and are
// safe for concurrent use.
//
// # Usage
//
//	layout, err := deck.LoadLayout("configs/deck.yaml")
//	if err != nil {
//	    return err
//	}
//	resolver := deck.NewResolver(layout, deck.UnitsMMToUM)
//	addr, err := resolver.Resolve(stagePosition)
package deck
