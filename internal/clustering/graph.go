package clustering

import (
	"context"
	"fmt"
	"math"
	"sort"

	"golang.org/x/time/rate"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/hitreco/internal/geometry"
	"github.com/banshee-data/hitreco/internal/hits"
)

// LayerStats summarises one layer of one event.
type LayerStats struct {
	Layer          int
	Ladder         bool
	Hits           int
	Cells          int
	Components     int
	Accepted       int
	BelowThreshold int
	Degenerate     int
	Invalid        int
}

// LayerResult is the output of clustering a single layer.
type LayerResult struct {
	Clusters []*hits.Cluster
	Stats    LayerStats
}

// GraphClusterizer builds clusters from connected components of adjacent
// active cells.
type GraphClusterizer struct {
	params     GraphParams
	det        *Detector
	thresholds *ThresholdTable
	invalid    *rate.Sometimes
	lastStats  []LayerStats
}

// NewGraphClusterizer returns a clusterizer using params.
func NewGraphClusterizer(params GraphParams) *GraphClusterizer {
	return &GraphClusterizer{params: params}
}

// Name implements Clusterizer.
func (c *GraphClusterizer) Name() string { return "graph" }

// InitRun builds the threshold table for the detector.
func (c *GraphClusterizer) InitRun(det *Detector) error {
	if det.Empty() {
		return fmt.Errorf("%w: no cylinder or ladder geometry", ErrMissingInput)
	}
	c.det = det
	c.thresholds = BuildThresholdTable(det, c.params)
	c.invalid = &rate.Sometimes{First: 1}
	c.thresholds.Report(c.Name())
	return nil
}

// Thresholds returns the table built by InitRun, or nil before it.
func (c *GraphClusterizer) Thresholds() *ThresholdTable { return c.thresholds }

// LastStats returns per-layer statistics of the last processed event.
func (c *GraphClusterizer) LastStats() []LayerStats { return c.lastStats }

func (c *GraphClusterizer) inRange(layer int) bool {
	return layer >= c.params.MinLayer && layer <= c.params.MaxLayer
}

// Process clusters cylinder layers then ladder layers, each in ascending
// layer order, and inserts the accepted clusters into sink.
func (c *GraphClusterizer) Process(ctx context.Context, ev *Event, sink *hits.ClusterMap) error {
	if c.thresholds == nil {
		return ErrNotInitialized
	}
	if err := ev.check(); err != nil {
		return err
	}
	if sink == nil {
		return fmt.Errorf("%w: cluster sink", ErrMissingInput)
	}

	byLayer := ev.Hits.ByLayer()
	var jobs []func() (LayerResult, error)
	for _, layer := range c.det.Cylinders.Layers() {
		layerHits := byLayer[layer]
		if !c.inRange(layer) || len(layerHits) == 0 {
			continue
		}
		geom, _ := c.det.Cylinders.Get(layer)
		jobs = append(jobs, func() (LayerResult, error) {
			return c.clusterCylinderLayer(geom, layerHits, ev)
		})
	}
	for _, layer := range c.det.Ladders.Layers() {
		layerHits := byLayer[layer]
		if !c.inRange(layer) || len(layerHits) == 0 {
			continue
		}
		geom, _ := c.det.Ladders.Get(layer)
		jobs = append(jobs, func() (LayerResult, error) {
			return c.clusterLadderLayer(geom, layerHits, ev)
		})
	}

	results, err := runLayers(ctx, c.params.Workers, jobs)
	if err != nil {
		return err
	}
	stats := make([]LayerStats, 0, len(results))
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

// insertChecked stores cl in sink and reports invalid clusters through the
// run's rate limiter. It returns whether the stored cluster is valid.
func insertChecked(sink *hits.ClusterMap, cl *hits.Cluster, name string, report *rate.Sometimes) bool {
	stored := sink.Insert(cl)
	if stored.IsValid() {
		return true
	}
	if report != nil {
		report.Do(func() {
			Opsf("ERROR: %s is producing invalid clusters; only the first is reported this run\n%s", name, stored.Identify())
		})
	}
	return false
}

// activeCell pairs a distinct cell with the hit recorded on it.
type activeCell struct {
	cell *hits.Cell
	hit  *hits.Hit
}

// collectActiveCells returns the distinct cells hit in a layer. When two
// hits share a cell the later one in hit-id order wins.
func collectActiveCells(layerHits []*hits.Hit, ev *Event) ([]activeCell, error) {
	index := make(map[hits.CellID]int, len(layerHits))
	active := make([]activeCell, 0, len(layerHits))
	for _, h := range layerHits {
		cell, err := ev.findCell(h)
		if err != nil {
			return nil, err
		}
		if i, ok := index[cell.ID]; ok {
			active[i].hit = h
			continue
		}
		index[cell.ID] = len(active)
		active = append(active, activeCell{cell: cell, hit: h})
	}
	return active, nil
}

// accumulation is the running sum over the members of one component.
type accumulation struct {
	cluster *hits.Cluster
	sum     [3]float64
	weight  float64
	phiBins map[int]struct{}
	zBins   map[int]struct{}
}

func accumulate(layer int, members []activeCell, weighted bool, locate func(*hits.Cell) [3]float64) *accumulation {
	acc := &accumulation{
		cluster: hits.NewCluster(layer),
		phiBins: make(map[int]struct{}),
		zBins:   make(map[int]struct{}),
	}
	for _, m := range members {
		acc.phiBins[m.cell.PhiBin] = struct{}{}
		acc.zBins[m.cell.ZBin] = struct{}{}
		acc.cluster.InsertHit(m.hit.ID)
		acc.cluster.E += m.hit.E
		acc.cluster.ADC += m.hit.ADC

		w := 1.0
		if weighted {
			w = float64(m.hit.ADC)
		}
		pos := locate(m.cell)
		for k := range acc.sum {
			acc.sum[k] += w * pos[k]
		}
		acc.weight += w
	}
	return acc
}

// centroid divides the weighted sum. It reports false when the divisor is
// zero (weighted cluster with no ADC).
func (a *accumulation) centroid() ([3]float64, bool) {
	if a.weight == 0 {
		return [3]float64{}, false
	}
	return [3]float64{a.sum[0] / a.weight, a.sum[1] / a.weight, a.sum[2] / a.weight}, true
}

// finish completes a cluster from its accumulation and decides acceptance.
// orient returns the rotation from the local frame for a given centroid.
func (c *GraphClusterizer) finish(acc *accumulation, stats *LayerStats, thickness, pitch, length float64,
	settings LayerSettings, orient func(pos [3]float64) mat.Matrix) *hits.Cluster {
	cl := acc.cluster
	pos, ok := acc.centroid()
	if !ok {
		stats.Degenerate++
		layerDiagf(cl.Layer, "skipped degenerate cluster of %d hits with zero summed ADC", len(cl.HitIDs))
		return nil
	}
	cl.Position = pos
	phiSize := float64(len(acc.phiBins)) * pitch
	zSize := float64(len(acc.zBins)) * length
	cl.Size, cl.Error = localCovariance(thickness, phiSize, zSize, orient(pos))

	if cl.E > settings.Threshold {
		stats.Accepted++
		layerTracef(cl.Layer, "accepted cluster e=%g > %g (%d hits)", cl.E, settings.Threshold, len(cl.HitIDs))
		return cl
	}
	stats.BelowThreshold++
	layerTracef(cl.Layer, "removed cluster e=%g <= %g (%d hits)", cl.E, settings.Threshold, len(cl.HitIDs))
	return nil
}

func (c *GraphClusterizer) clusterCylinderLayer(geom *geometry.CylinderCellGeom, layerHits []*hits.Hit, ev *Event) (LayerResult, error) {
	layer := geom.Layer
	res := LayerResult{Stats: LayerStats{Layer: layer, Hits: len(layerHits)}}
	active, err := collectActiveCells(layerHits, ev)
	if err != nil {
		return LayerResult{}, err
	}
	sort.SliceStable(active, func(i, j int) bool {
		a, b := active[i].cell, active[j].cell
		if a.PhiBin != b.PhiBin {
			return a.PhiBin < b.PhiBin
		}
		return a.ZBin < b.ZBin
	})
	res.Stats.Cells = len(active)

	settings := c.thresholds.Settings(layer)
	comps := connectedComponents(len(active), func(i, j int) bool {
		return CylinderAdjacent(active[i].cell, active[j].cell, geom.PhiBins, settings.ZClustering)
	})
	res.Stats.Components = len(comps)

	locate := func(cell *hits.Cell) [3]float64 {
		phi := geom.PhiCenter(cell.PhiBin)
		return [3]float64{geom.Radius * math.Cos(phi), geom.Radius * math.Sin(phi), geom.ZCenter(cell.ZBin)}
	}
	orient := func(pos [3]float64) mat.Matrix {
		return geometry.RotationZ(math.Atan2(pos[1], pos[0]))
	}
	for _, comp := range comps {
		members := make([]activeCell, len(comp))
		for k, v := range comp {
			members[k] = active[v]
		}
		acc := accumulate(layer, members, settings.EnergyWeighting, locate)
		if cl := c.finish(acc, &res.Stats, geom.Thickness, geom.Pitch(), geom.ZStep, settings, orient); cl != nil {
			res.Clusters = append(res.Clusters, cl)
		}
	}
	return res, nil
}

func (c *GraphClusterizer) clusterLadderLayer(geom *geometry.LadderGeom, layerHits []*hits.Hit, ev *Event) (LayerResult, error) {
	layer := geom.Layer
	res := LayerResult{Stats: LayerStats{Layer: layer, Ladder: true, Hits: len(layerHits)}}
	active, err := collectActiveCells(layerHits, ev)
	if err != nil {
		return LayerResult{}, err
	}
	sort.SliceStable(active, func(i, j int) bool {
		a, b := active[i].cell, active[j].cell
		if a.SensorIndex != b.SensorIndex {
			return a.SensorIndex < b.SensorIndex
		}
		if a.PhiBin != b.PhiBin {
			return a.PhiBin < b.PhiBin
		}
		return a.ZBin < b.ZBin
	})
	res.Stats.Cells = len(active)

	settings := c.thresholds.Settings(layer)
	comps := connectedComponents(len(active), func(i, j int) bool {
		return LadderAdjacent(active[i].cell, active[j].cell, settings.ZClustering)
	})
	res.Stats.Components = len(comps)

	locate := func(cell *hits.Cell) [3]float64 {
		return geom.StripCenter(cell.LadderZIndex, cell.LadderPhiIndex, cell.ZBin, cell.PhiBin)
	}
	for _, comp := range comps {
		members := make([]activeCell, len(comp))
		for k, v := range comp {
			members[k] = active[v]
		}
		// All members share one sensor, so the last one locates the ladder.
		last := members[len(members)-1].cell
		seg := geom.SegmentCenter(last.LadderZIndex, last.LadderPhiIndex)
		rot := geometry.LadderRotation(math.Atan2(seg[1], seg[0]), geom.StripTilt)
		orient := func([3]float64) mat.Matrix { return rot }

		acc := accumulate(layer, members, settings.EnergyWeighting, locate)
		if cl := c.finish(acc, &res.Stats, geom.Thickness, geom.StripYSpacing, geom.StripZSpacing, settings, orient); cl != nil {
			res.Clusters = append(res.Clusters, cl)
		}
	}
	return res, nil
}
