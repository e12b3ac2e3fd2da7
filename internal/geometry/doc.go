// Package geometry provides the detector geometry used by the
// clusterizers: bin counts, bin-to-position conversion and pitch of
// cylindrical cell layers, strip lookup and tilt of ladder layers, and
// the rotations that take local (radial, phi, z) quantities to the
// global frame.
//
// Geometry is loaded once per run and is read-only afterwards.
package geometry
