package clustering

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/hitreco/internal/hits"
)

func runPeak(t *testing.T, det *Detector, p PeakParams, ev *Event) (*PeakClusterizer, *hits.ClusterMap) {
	t.Helper()
	c := NewPeakClusterizer(p)
	require.NoError(t, c.InitRun(det))
	sink := hits.NewClusterMap()
	require.NoError(t, c.Process(context.Background(), ev, sink))
	return c, sink
}

func TestPeakClusterizer_SingleHit(t *testing.T) {
	t.Parallel()

	geom := cylinderGeom(0, 32, 10)
	det := cylinderDetector(t, geom)
	c, sink := runPeak(t, det, DefaultPeakParams(), cylinderEvent(testHit{phi: 7, z: 4, e: 2e-3, adc: 20}))

	require.Equal(t, 1, sink.Len())
	cl := sink.Clusters()[0]
	assert.InDelta(t, 2e-3, cl.E, 1e-15)
	assert.InDelta(t, geom.PhiCenter(7), cl.Phi(), 1e-12)
	assert.InDelta(t, geom.ZCenter(4), cl.Z(), 1e-12)
	assert.InDelta(t, geom.Radius, cl.R(), 1e-12)
	assert.Equal(t, []hits.HitID{1}, cl.HitIDs)
	assert.Equal(t, uint32(20), cl.ADC)
	assert.True(t, cl.IsValid(), cl.Identify())

	stats := c.LastStats()
	require.Len(t, stats, 1)
	assert.Equal(t, 1, stats[0].Passes)
	assert.Equal(t, 1, stats[0].Peaks)
}

func TestPeakClusterizer_WindowSumsNeighbours(t *testing.T) {
	t.Parallel()

	geom := cylinderGeom(0, 32, 10)
	det := cylinderDetector(t, geom)
	ev := cylinderEvent(
		testHit{phi: 10, z: 5, e: 4e-3},
		testHit{phi: 11, z: 5, e: 2e-3},
		testHit{phi: 10, z: 6, e: 2e-3},
		testHit{phi: 12, z: 5, e: 1e-4}, // below 5% of the peak, becomes its own peak
	)
	c, sink := runPeak(t, det, DefaultPeakParams(), ev)

	require.Equal(t, 2, sink.Len())
	cl := sink.Clusters()[0]
	assert.InDelta(t, 8e-3, cl.E, 1e-15)
	wantPhi := (4*geom.PhiCenter(10) + 2*geom.PhiCenter(11) + 2*geom.PhiCenter(10)) / 8
	wantZ := (4*geom.ZCenter(5) + 2*geom.ZCenter(5) + 2*geom.ZCenter(6)) / 8
	assert.InDelta(t, wantPhi, cl.Phi(), 1e-12)
	assert.InDelta(t, wantZ, cl.Z(), 1e-12)
	// Only the peak bin's hit is attached.
	assert.Equal(t, []hits.HitID{1}, cl.HitIDs)
	assert.InDelta(t, 1e-4, sink.Clusters()[1].E, 1e-15)

	// The leftover bin is a maximum once the first fit has been subtracted,
	// later in the same scan.
	assert.Equal(t, 1, c.LastStats()[0].Passes)
}

func TestPeakClusterizer_FitCrossesPhiSeam(t *testing.T) {
	t.Parallel()

	geom := cylinderGeom(0, 8, 1)
	det := cylinderDetector(t, geom)
	_, sink := runPeak(t, det, DefaultPeakParams(),
		cylinderEvent(testHit{phi: 0, e: 2e-3}, testHit{phi: 7, e: 1e-3}))

	require.Equal(t, 1, sink.Len())
	cl := sink.Clusters()[0]
	assert.InDelta(t, 3e-3, cl.E, 1e-15)
	// Bin 7 sits one step below bin 0 across the seam.
	assert.InDelta(t, -23*math.Pi/24, cl.Phi(), 1e-12)
}

func TestPeakClusterizer_SeparatedPeaksNeedTwoPasses(t *testing.T) {
	t.Parallel()

	det := cylinderDetector(t, cylinderGeom(0, 64, 20))
	// The smaller peak is scanned first but is shadowed by the larger one
	// within the maximum window until the larger one has been subtracted.
	ev := cylinderEvent(testHit{phi: 40, z: 2, e: 1e-3}, testHit{phi: 5, z: 15, e: 2e-3})
	c, sink := runPeak(t, det, DefaultPeakParams(), ev)

	require.Equal(t, 2, sink.Len())
	assert.InDelta(t, 2e-3, sink.Clusters()[0].E, 1e-15)
	assert.InDelta(t, 1e-3, sink.Clusters()[1].E, 1e-15)
	assert.Equal(t, 2, c.LastStats()[0].Passes)
}

func TestPeakClusterizer_EnergyCut(t *testing.T) {
	t.Parallel()

	det := cylinderDetector(t, cylinderGeom(1, 16, 4), cylinderGeom(3, 16, 4))
	ev := cylinderEvent(
		testHit{layer: 1, phi: 2, z: 1, e: 10e-6},
		testHit{layer: 3, phi: 2, z: 1, e: 10e-6},
		testHit{layer: 3, phi: 10, z: 3, e: 20e-6},
	)
	c, sink := runPeak(t, det, DefaultPeakParams(), ev)

	// Layer 1 is at or below the cut's minimum layer and keeps its peak.
	require.Equal(t, 2, sink.Len())
	assert.Equal(t, 1, sink.Clusters()[0].Layer)
	assert.Equal(t, 3, sink.Clusters()[1].Layer)

	stats := c.LastStats()
	require.Len(t, stats, 2)
	assert.Equal(t, 1, stats[1].RejectedPeaks)
	assert.InDelta(t, 10e-6, stats[1].Rejected, 1e-18)
	assert.Zero(t, stats[1].Residual)
}

func TestPeakClusterizer_SharedBinDoesNotStall(t *testing.T) {
	t.Parallel()

	det := cylinderDetector(t, cylinderGeom(0, 16, 4))
	c, sink := runPeak(t, det, DefaultPeakParams(),
		cylinderEvent(testHit{phi: 3, z: 2, e: 1e-3}, testHit{phi: 3, z: 2, e: 1e-3}))

	require.Equal(t, 1, sink.Len())
	assert.InDelta(t, 2e-3, sink.Clusters()[0].E, 1e-15)
	assert.Equal(t, []hits.HitID{2}, sink.Clusters()[0].HitIDs)
	assert.Equal(t, 1, c.LastStats()[0].Passes)
}

func TestPeakClusterizer_SkipsNonPositiveEnergy(t *testing.T) {
	t.Parallel()

	det := cylinderDetector(t, cylinderGeom(0, 16, 4))
	c, sink := runPeak(t, det, DefaultPeakParams(),
		cylinderEvent(testHit{phi: 3, z: 2, e: 0}, testHit{phi: 8, z: 1, e: -1e-3}))

	assert.Zero(t, sink.Len())
	assert.Zero(t, c.LastStats()[0].Passes)
}

func randomPeakEvent(seed int64, n int) *Event {
	rng := rand.New(rand.NewSource(seed))
	hs := make([]testHit, 0, n)
	for i := 0; i < n; i++ {
		hs = append(hs, testHit{
			layer: 3, phi: rng.Intn(48), z: rng.Intn(24),
			e: rng.Float64() * 1e-4, adc: uint32(rng.Intn(50)),
		})
	}
	return cylinderEvent(hs...)
}

func TestPeakClusterizer_SubtractionIdentity(t *testing.T) {
	t.Parallel()

	det := cylinderDetector(t, cylinderGeom(3, 48, 24))
	p := DefaultPeakParams()
	p.PhiSpan, p.ZSpan, p.MaxWindow = 2, 2, 4
	p.Fraction = 0.3

	c, sink := runPeak(t, det, p, randomPeakEvent(11, 300))
	st := c.LastStats()[0]

	assert.Greater(t, st.Peaks, 1)
	assert.Greater(t, st.RejectedPeaks, 0)
	assert.Zero(t, st.Residual)
	assert.InDelta(t, st.Total-st.Accepted-st.Rejected, st.Residual, 1e-12)

	var sum float64
	for _, cl := range sink.Clusters() {
		sum += cl.E
		assert.GreaterOrEqual(t, cl.E, p.EnergyCut)
		assert.True(t, cl.IsValid(), cl.Identify())
	}
	assert.InDelta(t, st.Accepted, sum, 1e-12)
}

func TestPeakClusterizer_Deterministic(t *testing.T) {
	t.Parallel()

	det := cylinderDetector(t, cylinderGeom(3, 48, 24))
	p := DefaultPeakParams()
	p.PhiSpan, p.ZSpan, p.MaxWindow = 2, 2, 4

	_, first := runPeak(t, det, p, randomPeakEvent(5, 200))
	_, second := runPeak(t, det, p, randomPeakEvent(5, 200))
	if diff := cmp.Diff(first.Clusters(), second.Clusters()); diff != "" {
		t.Errorf("peak finder output differs between runs (-first +second):\n%s", diff)
	}
}

func TestAmplitudeMap_PlateauTieBreak(t *testing.T) {
	t.Parallel()

	m := newAmplitudeMap(8, 1)
	m.fill(1, 0, &hits.Hit{ID: 1, E: 1})
	m.fill(3, 0, &hits.Hit{ID: 2, E: 1})
	assert.Equal(t, 2, m.rowCounts[0])

	assert.True(t, m.isLocalMaximum(1, 0, 32, false))
	assert.True(t, m.isLocalMaximum(3, 0, 32, false))
	assert.True(t, m.isLocalMaximum(1, 0, 32, true))
	assert.False(t, m.isLocalMaximum(3, 0, 32, true))
	assert.False(t, m.isLocalMaximum(2, 0, 32, false), "empty bins are never peaks")
}

func TestPeakClusterizer_InitRunNeedsCylinders(t *testing.T) {
	t.Parallel()

	c := NewPeakClusterizer(DefaultPeakParams())
	assert.ErrorIs(t, c.InitRun(nil), ErrMissingInput)
	assert.ErrorIs(t, c.InitRun(&Detector{}), ErrMissingInput)
	assert.ErrorIs(t, c.Process(context.Background(), cylinderEvent(), hits.NewClusterMap()), ErrNotInitialized)
}

func TestPeakParams_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		modify func(p *PeakParams)
	}{
		{name: "fraction above one", modify: func(p *PeakParams) { p.Fraction = 1.5 }},
		{name: "zero fraction", modify: func(p *PeakParams) { p.Fraction = 0 }},
		{name: "negative phi span", modify: func(p *PeakParams) { p.PhiSpan = -1 }},
		{name: "negative z span", modify: func(p *PeakParams) { p.ZSpan = -1 }},
		{name: "negative window", modify: func(p *PeakParams) { p.MaxWindow = -1 }},
		{name: "negative energy cut", modify: func(p *PeakParams) { p.EnergyCut = -1e-6 }},
	}
	det := cylinderDetector(t, cylinderGeom(0, 16, 4))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultPeakParams()
			tt.modify(&p)
			assert.ErrorIs(t, p.Validate(), ErrInvalidParams)
			assert.ErrorIs(t, NewPeakClusterizer(p).InitRun(det), ErrInvalidParams)
		})
	}

	p := DefaultPeakParams()
	p.Fraction = 1
	assert.NoError(t, p.Validate())
}

func TestPeakClusterizer_StopsWhenNothingIsConsumed(t *testing.T) {
	t.Parallel()

	geom := cylinderGeom(0, 16, 4)
	ev := cylinderEvent(testHit{phi: 3, z: 1, e: 1e-3})
	hs := ev.Hits.Hits()

	for _, modify := range []func(p *PeakParams){
		func(p *PeakParams) { p.Fraction = 1.5 },
		func(p *PeakParams) { p.PhiSpan = -1 },
	} {
		p := DefaultPeakParams()
		modify(&p)
		c := NewPeakClusterizer(p)
		res, err := c.ClusterLayer(geom, hs, ev)
		require.NoError(t, err)
		assert.Empty(t, res.Clusters)
		assert.Equal(t, 1, res.Stats.Passes)
		assert.Equal(t, 1, res.Stats.Degenerate)
		assert.InDelta(t, 1e-3, res.Stats.Residual, 1e-15)
	}
}

func TestPeakClusterizer_CellOutOfRange(t *testing.T) {
	t.Parallel()

	det := cylinderDetector(t, cylinderGeom(0, 16, 4))
	c := NewPeakClusterizer(DefaultPeakParams())
	require.NoError(t, c.InitRun(det))
	err := c.Process(context.Background(), cylinderEvent(testHit{phi: 20, z: 1, e: 1e-3}), hits.NewClusterMap())
	assert.ErrorIs(t, err, ErrCellOutOfRange)
}
