// Package scanlist provides the Scan Point Store for DeckScan Core.
//
// A scan list is the ordered set of positions visited during an experiment
// run. Each point carries its logical address (slot, well, index within the
// well), its offset from the well centre and its absolute stage position.
// The store keeps two pieces of derived bookkeeping consistent under every
// edit:
//
//   - position_in_well_index: 0..n-1 per (slot, well), in list order
//   - relative_focus_z: position_z minus the reference focal plane, which is
//     the z of the first point
//
// Architecture:
//
//	┌────────────────────────────────────────────────────────────┐
//	│                     Store (store.go)                        │
//	│  points []ScanPoint ── edits ──▶ reindex / propagate focus  │
//	│        │                              │                     │
//	│        ▼                              ▼                     │
//	│  ┌──────────────┐            ┌──────────────────┐          │
//	│  │ deck.Resolver│            │ Document (JSON /  │          │
//	│  │ slot/well/off│            │ YAML, ordered)    │          │
//	│  └──────────────┘            └──────────────────┘          │
//	└────────────────────────────────────────────────────────────┘
//
// # Edit Semantics
//
// Every edit is all-or-nothing: on error the list is unchanged. Edits
// return an EditResult whose status distinguishes "changed" from
// "same_value" so callers can report a no-op instead of staying silent.
//
// OffsetAll shifts every point without re-resolving slot or well. A large
// shift can leave a point outside the well it is assigned to; this keeps
// bulk plate-alignment corrections from silently reassigning points.
//
// # Single Writer
//
// While an experiment runs the orchestrator marks the store read-only.
// Edits then fail with ErrReadOnly instead of racing the worker.
//
// # Thread Safety
//
// Store is safe for concurrent use from multiple goroutines.
package scanlist
