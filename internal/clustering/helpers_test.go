package clustering

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/banshee-data/hitreco/internal/geometry"
	"github.com/banshee-data/hitreco/internal/hits"
)

// testHit places one hit on a cylindrical cell.
type testHit struct {
	layer, phi, z int
	e             float64
	adc           uint32
}

func cylinderGeom(layer, phiBins, zBins int) *geometry.CylinderCellGeom {
	return geometry.NewCylinderCellGeom(layer, 2.0, 0.03, phiBins, zBins, -10, 10)
}

func cylinderDetector(t testing.TB, geoms ...*geometry.CylinderCellGeom) *Detector {
	t.Helper()
	c := geometry.NewCylinderContainer()
	for _, g := range geoms {
		require.NoError(t, c.Add(g))
	}
	return &Detector{Cylinders: c}
}

// cylinderEvent numbers hits from 1 in argument order.
func cylinderEvent(hs ...testHit) *Event {
	hm := hits.NewHitMap()
	cells := hits.NewCellMap()
	for i, th := range hs {
		cell := hits.NewCylinderCell(th.layer, th.phi, th.z)
		cells.Add(cell)
		hm.Insert(&hits.Hit{ID: hits.HitID(i + 1), Layer: th.layer, CellID: cell.ID, E: th.e, ADC: th.adc})
	}
	return &Event{Number: 1, Hits: hm, Cells: cells}
}
