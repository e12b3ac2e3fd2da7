package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/hitreco/internal/clustering"
	"github.com/banshee-data/hitreco/internal/geometry"
	"github.com/banshee-data/hitreco/internal/hits"
	"github.com/banshee-data/hitreco/internal/pipeline"
	"github.com/banshee-data/hitreco/internal/timeutil"
)

var epoch = time.Date(2026, 1, 12, 8, 0, 0, 0, time.UTC)

// Verify sink interface types are accessible (compile-time check).
var (
	_ pipeline.PersistenceSink = (*recorder)(nil)
	_ pipeline.PublishSink     = (*recorder)(nil)
)

type recorder struct {
	persisted map[int]int
	published []int
	failWith  error
}

func (r *recorder) PersistEvent(_ context.Context, event int, clusters []*hits.Cluster) error {
	if r.failWith != nil {
		return r.failWith
	}
	if r.persisted == nil {
		r.persisted = make(map[int]int)
	}
	r.persisted[event] = len(clusters)
	return nil
}

func (r *recorder) PublishEvent(event int, _ []*hits.Cluster) {
	r.published = append(r.published, event)
}

type sliceSource struct {
	events []*clustering.Event
}

func (s *sliceSource) Next(context.Context) (*clustering.Event, error) {
	if len(s.events) == 0 {
		return nil, io.EOF
	}
	ev := s.events[0]
	s.events = s.events[1:]
	return ev, nil
}

func testDetector(t *testing.T) *clustering.Detector {
	t.Helper()
	cyl := geometry.NewCylinderContainer()
	for layer := 0; layer < 3; layer++ {
		require.NoError(t, cyl.Add(geometry.NewCylinderCellGeom(layer, 2+float64(layer), 0.03, 32, 8, -10, 10)))
	}
	return &clustering.Detector{Cylinders: cyl}
}

type cellHit struct{ layer, phi, z int }

func testEvent(number int, chs ...cellHit) *clustering.Event {
	hm := hits.NewHitMap()
	cells := hits.NewCellMap()
	for i, ch := range chs {
		cell := hits.NewCylinderCell(ch.layer, ch.phi, ch.z)
		cells.Add(cell)
		hm.Insert(&hits.Hit{ID: hits.HitID(i + 1), Layer: ch.layer, CellID: cell.ID, E: 1e-3, ADC: 10})
	}
	return &clustering.Event{Number: number, Hits: hm, Cells: cells}
}

// splitClusterizers runs the graph algorithm on layers 0-1 and the peak
// finder on layer 2, sharing one sink.
func splitClusterizers() []clustering.Clusterizer {
	gp := clustering.DefaultGraphParams()
	gp.MinLayer, gp.MaxLayer = 0, 1
	pp := clustering.DefaultPeakParams()
	pp.MinLayer, pp.MaxLayer = 2, 2
	return []clustering.Clusterizer{
		clustering.NewGraphClusterizer(gp),
		clustering.NewPeakClusterizer(pp),
	}
}

func TestNewRunner_RequiresClusterizers(t *testing.T) {
	_, err := pipeline.NewRunner(pipeline.Config{})
	assert.ErrorIs(t, err, pipeline.ErrNoClusterizers)

	var nilGraph *clustering.GraphClusterizer
	_, err = pipeline.NewRunner(pipeline.Config{Clusterizers: []clustering.Clusterizer{nilGraph}})
	assert.Error(t, err)
}

func TestRunner_ProcessEventBeforeInit(t *testing.T) {
	r, err := pipeline.NewRunner(pipeline.Config{Detector: testDetector(t), Clusterizers: splitClusterizers()})
	require.NoError(t, err)
	assert.ErrorIs(t, r.ProcessEvent(context.Background(), testEvent(1)), clustering.ErrNotInitialized)
}

func TestRunner_SharedSinkResetPerEvent(t *testing.T) {
	rec := &recorder{}
	r, err := pipeline.NewRunner(pipeline.Config{
		Detector:     testDetector(t),
		Clusterizers: splitClusterizers(),
		Persist:      rec,
		Publish:      rec,
		Clock:        timeutil.NewMockClock(epoch),
	})
	require.NoError(t, err)
	require.NoError(t, r.InitRun())

	ctx := context.Background()
	ev1 := testEvent(1,
		cellHit{0, 3, 3}, cellHit{0, 4, 3}, // one graph cluster
		cellHit{1, 10, 1},                  // one graph cluster
		cellHit{2, 20, 5},                  // one peak cluster
	)
	require.NoError(t, r.ProcessEvent(ctx, ev1))
	clusters := r.Sink().Clusters()
	require.Len(t, clusters, 3)
	assert.Equal(t, []int{0, 1, 2}, []int{clusters[0].Layer, clusters[1].Layer, clusters[2].Layer})
	assert.Equal(t, []uint32{0, 1, 2}, []uint32{clusters[0].ID, clusters[1].ID, clusters[2].ID})
	assert.Len(t, clusters[0].HitIDs, 2)

	require.NoError(t, r.ProcessEvent(ctx, testEvent(2, cellHit{2, 7, 2})))
	require.Equal(t, 1, r.Sink().Len())
	assert.Equal(t, 2, r.Sink().Clusters()[0].Layer)

	assert.Equal(t, map[int]int{1: 3, 2: 1}, rec.persisted)
	assert.Equal(t, []int{1, 2}, rec.published)
	assert.Equal(t, pipeline.RunStats{Events: 2, Clusters: 4}, r.Stats())
}

func TestRunner_MissingCellAbortsEvent(t *testing.T) {
	rec := &recorder{}
	r, err := pipeline.NewRunner(pipeline.Config{Detector: testDetector(t), Clusterizers: splitClusterizers(), Publish: rec})
	require.NoError(t, err)
	require.NoError(t, r.InitRun())

	ev := testEvent(7, cellHit{0, 3, 3})
	// A layer-2 hit whose cell is not in the container fails the peak
	// finder after the graph clusterizer already filled the sink.
	ev.Hits.Insert(&hits.Hit{ID: 99, Layer: 2, CellID: hits.CylinderCellID(2, 5, 5), E: 1e-3})

	err = r.ProcessEvent(context.Background(), ev)
	require.ErrorIs(t, err, pipeline.ErrMissingInput)
	assert.Contains(t, err.Error(), "event 7")
	assert.Zero(t, r.Sink().Len())
	assert.Empty(t, rec.published)
	assert.Equal(t, 1, r.Stats().Aborted)

	err = r.ProcessEvent(context.Background(), nil)
	assert.ErrorIs(t, err, pipeline.ErrMissingInput)
}

func TestRunner_PersistFailure(t *testing.T) {
	boom := errors.New("disk full")
	r, err := pipeline.NewRunner(pipeline.Config{
		Detector:     testDetector(t),
		Clusterizers: splitClusterizers(),
		Persist:      &recorder{failWith: boom},
	})
	require.NoError(t, err)
	require.NoError(t, r.InitRun())
	assert.ErrorIs(t, r.ProcessEvent(context.Background(), testEvent(1, cellHit{0, 1, 1})), boom)
}

func TestRunner_Run(t *testing.T) {
	rec := &recorder{}
	r, err := pipeline.NewRunner(pipeline.Config{
		Detector:     testDetector(t),
		Clusterizers: splitClusterizers(),
		Publish:      rec,
		Clock:        timeutil.NewMockClock(epoch),
	})
	require.NoError(t, err)

	src := &sliceSource{events: []*clustering.Event{
		testEvent(1, cellHit{0, 1, 1}),
		testEvent(2),
		testEvent(3, cellHit{1, 5, 5}, cellHit{2, 6, 6}),
	}}
	require.NoError(t, r.Run(context.Background(), src))
	assert.Equal(t, []int{1, 2, 3}, rec.published)
	assert.Equal(t, pipeline.RunStats{Events: 3, Clusters: 3}, r.Stats())
}

// tickingClusterizer advances a mock clock every time it runs.
type tickingClusterizer struct {
	clustering.Clusterizer
	clock *timeutil.MockClock
	step  time.Duration
}

func (c *tickingClusterizer) Process(ctx context.Context, ev *clustering.Event, sink *hits.ClusterMap) error {
	c.clock.Advance(c.step)
	return c.Clusterizer.Process(ctx, ev, sink)
}

func TestRunner_ElapsedUsesClock(t *testing.T) {
	clock := timeutil.NewMockClock(epoch)
	cs := splitClusterizers()
	ticking := []clustering.Clusterizer{
		&tickingClusterizer{Clusterizer: cs[0], clock: clock, step: 2 * time.Millisecond},
		&tickingClusterizer{Clusterizer: cs[1], clock: clock, step: 3 * time.Millisecond},
	}
	r, err := pipeline.NewRunner(pipeline.Config{
		Detector:     testDetector(t),
		Clusterizers: ticking,
		Clock:        clock,
	})
	require.NoError(t, err)

	src := &sliceSource{events: []*clustering.Event{testEvent(1), testEvent(2, cellHit{0, 1, 1})}}
	require.NoError(t, r.Run(context.Background(), src))
	assert.Equal(t, 10*time.Millisecond, r.Stats().Elapsed)
	assert.Equal(t, 2, r.Stats().Events)
}

func TestRunner_RunStopsOnError(t *testing.T) {
	r, err := pipeline.NewRunner(pipeline.Config{Detector: testDetector(t), Clusterizers: splitClusterizers()})
	require.NoError(t, err)

	bad := testEvent(2)
	bad.Cells = nil
	src := &sliceSource{events: []*clustering.Event{testEvent(1), bad, testEvent(3)}}
	err = r.Run(context.Background(), src)
	require.ErrorIs(t, err, pipeline.ErrMissingInput)
	assert.Len(t, src.events, 1)
}

func TestRunner_InitRunWithoutGeometry(t *testing.T) {
	r, err := pipeline.NewRunner(pipeline.Config{Clusterizers: splitClusterizers()})
	require.NoError(t, err)
	err = r.InitRun()
	require.ErrorIs(t, err, pipeline.ErrMissingInput)
	assert.True(t, strings.HasPrefix(err.Error(), "init graph"))
}

func TestConfigureLogging(t *testing.T) {
	t.Cleanup(func() { pipeline.ConfigureLogging(nil, 0) })

	var buf bytes.Buffer
	pipeline.ConfigureLogging(&buf, 1)
	r, err := pipeline.NewRunner(pipeline.Config{Detector: testDetector(t), Clusterizers: splitClusterizers(), Verbosity: 1})
	require.NoError(t, err)
	require.NoError(t, r.InitRun())
	require.NoError(t, r.ProcessEvent(context.Background(), testEvent(1, cellHit{0, 1, 1})))

	out := buf.String()
	assert.Contains(t, out, "[cluster] ")
	assert.Contains(t, out, "threshold table")
	assert.Contains(t, out, "found and recorded the following 1 clusters")
	assert.NotContains(t, out, "accepted cluster", "trace stream is off at verbosity 1")
}
