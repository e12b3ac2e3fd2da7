package geometry

import (
	"fmt"
	"math"
)

// LadderGeom describes a layer built from flat silicon ladders. Ladders
// are placed at equal azimuthal steps around Radius and split along z into
// segments; each segment carries StripsPhi x StripsZ strips.
type LadderGeom struct {
	Layer         int     `json:"layer"`
	Radius        float64 `json:"radius"`    // cm, distance of segment centers from the beam
	Thickness     float64 `json:"thickness"` // cm
	LaddersPhi    int     `json:"ladders_phi"`
	LaddersZ      int     `json:"ladders_z"`
	PhiOffset     float64 `json:"phi_offset"`     // rad, azimuth of ladder 0
	SegmentLength float64 `json:"segment_length"` // cm
	StripsPhi     int     `json:"strips_phi"`
	StripsZ       int     `json:"strips_z"`
	StripYSpacing float64 `json:"strip_y_spacing"` // cm
	StripZSpacing float64 `json:"strip_z_spacing"` // cm
	StripTilt     float64 `json:"strip_tilt"`      // rad
}

// LayerID returns the layer number.
func (g *LadderGeom) LayerID() int { return g.Layer }

// LadderPhi returns the azimuth of a ladder.
func (g *LadderGeom) LadderPhi(ladderPhi int) float64 {
	return g.PhiOffset + float64(ladderPhi)*2*math.Pi/float64(g.LaddersPhi)
}

// SegmentCenter returns the global center of a ladder segment.
func (g *LadderGeom) SegmentCenter(ladderZ, ladderPhi int) [3]float64 {
	phi := g.LadderPhi(ladderPhi)
	z := (float64(ladderZ) - 0.5*float64(g.LaddersZ-1)) * g.SegmentLength
	return [3]float64{g.Radius * math.Cos(phi), g.Radius * math.Sin(phi), z}
}

// StripCenter returns the global center of a strip. The strip offset is
// taken in the segment's local (radial, tangential, z) frame and rotated
// by the ladder azimuth and the strip tilt.
func (g *LadderGeom) StripCenter(ladderZ, ladderPhi, zBin, phiBin int) [3]float64 {
	seg := g.SegmentCenter(ladderZ, ladderPhi)
	local := [3]float64{
		0,
		(float64(phiBin) - 0.5*float64(g.StripsPhi-1)) * g.StripYSpacing,
		(float64(zBin) - 0.5*float64(g.StripsZ-1)) * g.StripZSpacing,
	}
	off := Apply(LadderRotation(g.LadderPhi(ladderPhi), g.StripTilt), local)
	return [3]float64{seg[0] + off[0], seg[1] + off[1], seg[2] + off[2]}
}

// Validate checks that the ladder layout is usable.
func (g *LadderGeom) Validate() error {
	switch {
	case g.Layer < 0:
		return fmt.Errorf("%w: ladder layer %d is negative", ErrInvalidGeometry, g.Layer)
	case g.LaddersPhi <= 0 || g.LaddersZ <= 0:
		return fmt.Errorf("%w: ladder layer %d has %dx%d ladders", ErrInvalidGeometry, g.Layer, g.LaddersPhi, g.LaddersZ)
	case g.StripsPhi <= 0 || g.StripsZ <= 0:
		return fmt.Errorf("%w: ladder layer %d has %dx%d strips", ErrInvalidGeometry, g.Layer, g.StripsPhi, g.StripsZ)
	case g.StripYSpacing <= 0 || g.StripZSpacing <= 0:
		return fmt.Errorf("%w: ladder layer %d has non-positive strip spacing", ErrInvalidGeometry, g.Layer)
	case g.Radius <= 0 || g.Thickness < 0:
		return fmt.Errorf("%w: ladder layer %d radius=%g thickness=%g", ErrInvalidGeometry, g.Layer, g.Radius, g.Thickness)
	}
	return nil
}
