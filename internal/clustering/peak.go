package clustering

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/time/rate"

	"github.com/banshee-data/hitreco/internal/geometry"
	"github.com/banshee-data/hitreco/internal/hits"
)

// PeakStats summarises the peak finder on one layer of one event.
// Energies are in GeV; Residual is what remains in the map afterwards.
type PeakStats struct {
	Layer         int
	Hits          int
	Passes        int
	Peaks         int
	RejectedPeaks int
	Degenerate    int
	Invalid       int
	Total         float64
	Accepted      float64
	Rejected      float64
	Residual      float64
}

// PeakLayerResult is the output of the peak finder for a single layer.
type PeakLayerResult struct {
	Clusters []*hits.Cluster
	Stats    PeakStats
}

// amplitudeMap is the dense phi-z energy map of one layer, indexed
// z*phiBins+phi.
type amplitudeMap struct {
	phiBins, zBins int
	amps           []float64
	adc            []uint32
	hitIDs         []hits.HitID
	rowCounts      []int // occupied bins per z row
	occupied       int
}

func newAmplitudeMap(phiBins, zBins int) *amplitudeMap {
	n := phiBins * zBins
	return &amplitudeMap{
		phiBins:   phiBins,
		zBins:     zBins,
		amps:      make([]float64, n),
		adc:       make([]uint32, n),
		hitIDs:    make([]hits.HitID, n),
		rowCounts: make([]int, zBins),
	}
}

func (m *amplitudeMap) index(phi, z int) int { return z*m.phiBins + phi }

// wrapPhi maps any bin offset back onto [0, phiBins).
func (m *amplitudeMap) wrapPhi(phi int) int {
	phi %= m.phiBins
	if phi < 0 {
		phi += m.phiBins
	}
	return phi
}

// fill adds a hit to its bin. Non-positive energies are ignored. The bin
// keeps the id of the last hit added to it.
func (m *amplitudeMap) fill(phi, z int, h *hits.Hit) {
	if !(h.E > 0) {
		return
	}
	i := m.index(phi, z)
	if m.amps[i] <= 0 {
		m.rowCounts[z]++
		m.occupied++
	}
	m.amps[i] += h.E
	m.adc[i] += h.ADC
	m.hitIDs[i] = h.ID
}

// take zeroes an occupied bin and returns its content.
func (m *amplitudeMap) take(i, z int) (float64, uint32) {
	a, adc := m.amps[i], m.adc[i]
	m.amps[i] = 0
	m.adc[i] = 0
	m.rowCounts[z]--
	m.occupied--
	return a, adc
}

func (m *amplitudeMap) total() float64 {
	var sum float64
	for _, a := range m.amps {
		sum += a
	}
	return sum
}

// isLocalMaximum reports whether the bin holds positive amplitude and no
// bin within ±window (phi wrapping, z clamped) is strictly larger. With
// tieBreak an equal neighbour earlier in scan order also disqualifies it.
func (m *amplitudeMap) isLocalMaximum(phi, z, window int, tieBreak bool) bool {
	ci := m.index(phi, z)
	center := m.amps[ci]
	if center <= 0 {
		return false
	}
	for iz := -window; iz <= window; iz++ {
		cz := z + iz
		if cz < 0 || cz >= m.zBins {
			continue
		}
		for ip := -window; ip <= window; ip++ {
			i := m.index(m.wrapPhi(phi+ip), cz)
			if i == ci {
				continue
			}
			v := m.amps[i]
			if v > center || (tieBreak && v == center && i < ci) {
				return false
			}
		}
	}
	return true
}

// peakFit is the result of fitting and subtracting one peak.
type peakFit struct {
	e       float64
	adc     uint32
	phi     float64
	z       float64
	phiBins int
	zBins   int
}

// fit sums every bin within the spans whose amplitude is at least
// fraction of the peak, zeroing the bins it uses. Phi offsets are taken
// relative to the peak so windows crossing the phi seam average correctly.
func (m *amplitudeMap) fit(geom *geometry.CylinderCellGeom, phi, z int, p PeakParams) peakFit {
	peak := m.amps[m.index(phi, z)]
	cut := p.Fraction * peak
	// Each bin is visited at most once even when the window exceeds the
	// ring. On rings with even phiBins < 2*PhiSpan+1 this leaves the bin
	// opposite the peak for a later fit, unlike a window that wraps over
	// the whole ring.
	phiSpan := min(p.PhiSpan, (m.phiBins-1)/2)
	peakPhi := geom.PhiCenter(phi)

	var f peakFit
	var phiSum, zSum float64
	phiUsed := make(map[int]struct{})
	zUsed := make(map[int]struct{})
	for iz := -p.ZSpan; iz <= p.ZSpan; iz++ {
		cz := z + iz
		if cz < 0 || cz >= m.zBins {
			continue
		}
		for ip := -phiSpan; ip <= phiSpan; ip++ {
			cp := m.wrapPhi(phi + ip)
			i := m.index(cp, cz)
			a := m.amps[i]
			if a <= 0 || a < cut {
				continue
			}
			_, adc := m.take(i, cz)
			f.e += a
			f.adc += adc
			phiSum += a * (peakPhi + float64(ip)*geom.PhiStep)
			zSum += a * geom.ZCenter(cz)
			phiUsed[cp] = struct{}{}
			zUsed[cz] = struct{}{}
		}
	}
	f.phiBins, f.zBins = len(phiUsed), len(zUsed)
	if f.e > 0 {
		f.phi = phiSum / f.e
		f.z = zSum / f.e
	}
	return f
}

// PeakClusterizer extracts clusters around local maxima of the per-layer
// amplitude map of cylindrical layers.
type PeakClusterizer struct {
	params    PeakParams
	det       *Detector
	invalid   *rate.Sometimes
	lastStats []PeakStats
}

// NewPeakClusterizer returns a peak-finding clusterizer using params.
func NewPeakClusterizer(params PeakParams) *PeakClusterizer {
	return &PeakClusterizer{params: params}
}

// Name implements Clusterizer.
func (c *PeakClusterizer) Name() string { return "peak" }

// InitRun validates the parameters and checks that the detector has
// cylindrical layers.
func (c *PeakClusterizer) InitRun(det *Detector) error {
	if err := c.params.Validate(); err != nil {
		return fmt.Errorf("%s: %w", c.Name(), err)
	}
	if det == nil || det.Cylinders.Len() == 0 {
		return fmt.Errorf("%w: no cylinder cell geometry", ErrMissingInput)
	}
	c.det = det
	c.invalid = &rate.Sometimes{First: 1}
	Diagf("%s: layers [%d, %d] span phi=%d z=%d window=%d fraction=%g energy_cut=%.3f keV above layer %d",
		c.Name(), c.params.MinLayer, c.params.MaxLayer, c.params.PhiSpan, c.params.ZSpan,
		c.params.MaxWindow, c.params.Fraction, c.params.EnergyCut*1e6, c.params.EnergyCutMinLayer)
	return nil
}

// LastStats returns per-layer statistics of the last processed event.
func (c *PeakClusterizer) LastStats() []PeakStats { return c.lastStats }

// Process runs the peak finder on every cylindrical layer in range.
func (c *PeakClusterizer) Process(ctx context.Context, ev *Event, sink *hits.ClusterMap) error {
	if c.det == nil {
		return ErrNotInitialized
	}
	if err := ev.check(); err != nil {
		return err
	}
	if sink == nil {
		return fmt.Errorf("%w: cluster sink", ErrMissingInput)
	}

	byLayer := ev.Hits.ByLayer()
	var jobs []func() (PeakLayerResult, error)
	for _, layer := range c.det.Cylinders.Layers() {
		layerHits := byLayer[layer]
		if layer < c.params.MinLayer || layer > c.params.MaxLayer || len(layerHits) == 0 {
			continue
		}
		geom, _ := c.det.Cylinders.Get(layer)
		jobs = append(jobs, func() (PeakLayerResult, error) {
			return c.ClusterLayer(geom, layerHits, ev)
		})
	}

	results, err := runLayers(ctx, c.params.Workers, jobs)
	if err != nil {
		return err
	}
	stats := make([]PeakStats, 0, len(results))
	for _, res := range results {
		for _, cl := range res.Clusters {
			if !insertChecked(sink, cl, c.Name(), c.invalid) {
				res.Stats.Invalid++
			}
		}
		stats = append(stats, res.Stats)
	}
	c.lastStats = stats
	return nil
}

// ClusterLayer runs the peak finder over the hits of one layer. It
// repeats full scans of the amplitude map until every occupied bin has
// been consumed by a fit.
func (c *PeakClusterizer) ClusterLayer(geom *geometry.CylinderCellGeom, layerHits []*hits.Hit, ev *Event) (PeakLayerResult, error) {
	p := c.params
	res := PeakLayerResult{Stats: PeakStats{Layer: geom.Layer, Hits: len(layerHits)}}
	m := newAmplitudeMap(geom.PhiBins, geom.ZBins)
	for _, h := range layerHits {
		cell, err := ev.findCell(h)
		if err != nil {
			return PeakLayerResult{}, err
		}
		if cell.PhiBin < 0 || cell.PhiBin >= geom.PhiBins || cell.ZBin < 0 || cell.ZBin >= geom.ZBins {
			return PeakLayerResult{}, fmt.Errorf("%w: hit %d on %v, layer %d has %dx%d bins",
				ErrCellOutOfRange, h.ID, cell.ID, geom.Layer, geom.PhiBins, geom.ZBins)
		}
		m.fill(cell.PhiBin, cell.ZBin, h)
	}
	res.Stats.Total = m.total()

	for m.occupied > 0 {
		before := m.occupied
		res.Stats.Passes++
		for z := 0; z < m.zBins; z++ {
			if m.rowCounts[z] <= 0 {
				continue
			}
			for phi := 0; phi < m.phiBins; phi++ {
				if !m.isLocalMaximum(phi, z, p.MaxWindow, p.PlateauTieBreak) {
					continue
				}
				peakHit := m.hitIDs[m.index(phi, z)]
				f := m.fit(geom, phi, z, p)
				if cl := c.emit(geom, f, peakHit, &res.Stats); cl != nil {
					res.Clusters = append(res.Clusters, cl)
				}
			}
		}
		if m.occupied == before {
			// No fit consumed a bin; another pass would see the same map.
			layerDiagf(geom.Layer, "stopped after pass %d with %d bins unconsumed", res.Stats.Passes, m.occupied)
			break
		}
	}
	res.Stats.Residual = m.total()
	return res, nil
}

func (c *PeakClusterizer) emit(geom *geometry.CylinderCellGeom, f peakFit, peakHit hits.HitID, stats *PeakStats) *hits.Cluster {
	if !(f.e > 0) {
		stats.Degenerate++
		layerDiagf(geom.Layer, "skipped peak with no accumulated energy")
		return nil
	}
	if geom.Layer > c.params.EnergyCutMinLayer && f.e < c.params.EnergyCut {
		stats.RejectedPeaks++
		stats.Rejected += f.e
		layerTracef(geom.Layer, "removed peak e=%g < %g", f.e, c.params.EnergyCut)
		return nil
	}
	stats.Peaks++
	stats.Accepted += f.e

	cl := hits.NewCluster(geom.Layer)
	cl.E = f.e
	cl.ADC = f.adc
	cl.Position = [3]float64{geom.Radius * math.Cos(f.phi), geom.Radius * math.Sin(f.phi), f.z}
	cl.InsertHit(peakHit)
	cl.Size, cl.Error = localCovariance(geom.Thickness,
		float64(f.phiBins)*geom.Pitch(), float64(f.zBins)*geom.ZStep, geometry.RotationZ(f.phi))
	layerTracef(geom.Layer, "accepted peak e=%g phi=%g z=%g", f.e, f.phi, f.z)
	return cl
}
