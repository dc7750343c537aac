// Package imaging defines the camera and illumination collaborator used by
// the autofocus engine and the experiment orchestrator.
//
// Camera and light-source drivers live outside the core; they are consumed
// through the Imager interface. The package also carries the LED matrix
// pattern logic (all, single LED, inner ring, outer ring) and a simulated
// camera used by tests and hardware-free runs.
package imaging
