package clustering

import "github.com/banshee-data/hitreco/internal/hits"

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func zNeighbours(dz int, zClustering bool) bool {
	if zClustering {
		return dz <= 1
	}
	return dz == 0
}

// CylinderAdjacent reports whether two cells of a cylindrical layer touch.
// Phi bins wrap: bin 0 neighbours bin nPhiBins-1. With zClustering off
// only cells in the same z bin connect.
func CylinderAdjacent(a, b *hits.Cell, nPhiBins int, zClustering bool) bool {
	if a.Layer != b.Layer {
		return false
	}
	if !zNeighbours(absInt(a.ZBin-b.ZBin), zClustering) {
		return false
	}
	dphi := absInt(a.PhiBin - b.PhiBin)
	if dphi <= 1 {
		return true
	}
	return (a.PhiBin == 0 || b.PhiBin == 0) && dphi == nPhiBins-1
}

// LadderAdjacent reports whether two strip cells touch. Strips only
// connect within the same sensor and phi does not wrap.
func LadderAdjacent(a, b *hits.Cell, zClustering bool) bool {
	if a.Layer != b.Layer || a.SensorIndex != b.SensorIndex {
		return false
	}
	if !zNeighbours(absInt(a.ZBin-b.ZBin), zClustering) {
		return false
	}
	return absInt(a.PhiBin-b.PhiBin) <= 1
}
