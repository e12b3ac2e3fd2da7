package clustering

import "sort"

// LayerSettings holds the per-layer values of the threshold table.
type LayerSettings struct {
	Threshold       float64 // GeV
	ZClustering     bool
	EnergyWeighting bool
}

// ThresholdTable maps a layer to its energy threshold and clustering
// flags. It is built once per run and read-only afterwards, so it is safe
// for concurrent readers.
type ThresholdTable struct {
	layers map[int]LayerSettings
}

// BuildThresholdTable computes thresholds for every cylinder layer and
// every ladder layer of the detector as
// fraction_of_mip * mip_energy_per_thickness * thickness. A layer present
// in both families keeps its cylinder entry.
func BuildThresholdTable(det *Detector, p GraphParams) *ThresholdTable {
	t := &ThresholdTable{layers: make(map[int]LayerSettings)}
	if det == nil {
		return t
	}
	for _, layer := range det.Cylinders.Layers() {
		g, _ := det.Cylinders.Get(layer)
		t.set(layer, g.Thickness, p)
	}
	for _, layer := range det.Ladders.Layers() {
		if _, ok := t.layers[layer]; ok {
			continue
		}
		g, _ := det.Ladders.Get(layer)
		t.set(layer, g.Thickness, p)
	}
	return t
}

func (t *ThresholdTable) set(layer int, thickness float64, p GraphParams) {
	s := LayerSettings{
		Threshold:   p.FractionOfMIP * p.MIPEnergyPerThickness * thickness,
		ZClustering: true,
	}
	if v, ok := p.ZClustering[layer]; ok {
		s.ZClustering = v
	}
	if v, ok := p.EnergyWeighting[layer]; ok {
		s.EnergyWeighting = v
	}
	t.layers[layer] = s
}

// Settings returns the settings of a layer. Unknown layers get a zero
// threshold with z-clustering on and energy weighting off.
func (t *ThresholdTable) Settings(layer int) LayerSettings {
	if s, ok := t.layers[layer]; ok {
		return s
	}
	return LayerSettings{ZClustering: true}
}

// Threshold returns the energy threshold of a layer in GeV.
func (t *ThresholdTable) Threshold(layer int) float64 { return t.Settings(layer).Threshold }

// Layers returns the layers of the table in ascending order.
func (t *ThresholdTable) Layers() []int {
	out := make([]int, 0, len(t.layers))
	for l := range t.layers {
		out = append(out, l)
	}
	sort.Ints(out)
	return out
}

// Report logs the table on the diag stream, thresholds in keV.
func (t *ThresholdTable) Report(name string) {
	Diagf("%s: threshold table (%d layers)", name, len(t.layers))
	for _, l := range t.Layers() {
		s := t.layers[l]
		Diagf("  layer %d: threshold=%.3f keV z_clustering=%t energy_weighting=%t",
			l, s.Threshold*1e6, s.ZClustering, s.EnergyWeighting)
	}
}
