package geometry

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidGeometry is returned when a layer description cannot be used
// for clustering.
var ErrInvalidGeometry = errors.New("invalid geometry")

// CylinderCellGeom describes a cylindrical layer segmented in uniform phi
// and z bins.
type CylinderCellGeom struct {
	Layer     int     `json:"layer"`
	Radius    float64 `json:"radius"`    // cm
	Thickness float64 `json:"thickness"` // cm
	PhiBins   int     `json:"phi_bins"`
	PhiMin    float64 `json:"phi_min"`  // rad, lower edge of bin 0
	PhiStep   float64 `json:"phi_step"` // rad
	ZBins     int     `json:"z_bins"`
	ZMin      float64 `json:"z_min"`  // cm, lower edge of bin 0
	ZStep     float64 `json:"z_step"` // cm
}

// NewCylinderCellGeom builds a layer covering the full azimuth starting at
// -π and the z range [zMin, zMax).
func NewCylinderCellGeom(layer int, radius, thickness float64, phiBins, zBins int, zMin, zMax float64) *CylinderCellGeom {
	g := &CylinderCellGeom{
		Layer:     layer,
		Radius:    radius,
		Thickness: thickness,
		PhiBins:   phiBins,
		PhiMin:    -math.Pi,
		ZBins:     zBins,
		ZMin:      zMin,
	}
	if phiBins > 0 {
		g.PhiStep = 2 * math.Pi / float64(phiBins)
	}
	if zBins > 0 {
		g.ZStep = (zMax - zMin) / float64(zBins)
	}
	return g
}

// LayerID returns the layer number.
func (g *CylinderCellGeom) LayerID() int { return g.Layer }

// PhiCenter returns the azimuth at the center of a phi bin.
func (g *CylinderCellGeom) PhiCenter(bin int) float64 {
	return g.PhiMin + (float64(bin)+0.5)*g.PhiStep
}

// ZCenter returns the z at the center of a z bin.
func (g *CylinderCellGeom) ZCenter(bin int) float64 {
	return g.ZMin + (float64(bin)+0.5)*g.ZStep
}

// Pitch returns the arc length of one phi bin at the layer radius.
func (g *CylinderCellGeom) Pitch() float64 { return g.PhiStep * g.Radius }

// NumBins returns the size of the dense phi-z map of the layer.
func (g *CylinderCellGeom) NumBins() int { return g.PhiBins * g.ZBins }

// Validate checks that the layer can be binned.
func (g *CylinderCellGeom) Validate() error {
	switch {
	case g.Layer < 0:
		return fmt.Errorf("%w: cylinder layer %d is negative", ErrInvalidGeometry, g.Layer)
	case g.PhiBins <= 0 || g.ZBins <= 0:
		return fmt.Errorf("%w: cylinder layer %d has %dx%d bins", ErrInvalidGeometry, g.Layer, g.PhiBins, g.ZBins)
	case g.PhiStep <= 0 || g.ZStep <= 0:
		return fmt.Errorf("%w: cylinder layer %d has non-positive bin size", ErrInvalidGeometry, g.Layer)
	case g.Radius <= 0 || g.Thickness < 0:
		return fmt.Errorf("%w: cylinder layer %d radius=%g thickness=%g", ErrInvalidGeometry, g.Layer, g.Radius, g.Thickness)
	}
	return nil
}
