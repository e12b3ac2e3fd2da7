package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"reflect"
	"time"

	"github.com/banshee-data/hitreco/internal/clustering"
	"github.com/banshee-data/hitreco/internal/hits"
	"github.com/banshee-data/hitreco/internal/timeutil"
)

// ErrMissingInput aborts an event whose inputs or geometry are absent.
var ErrMissingInput = clustering.ErrMissingInput

// ErrNoClusterizers is returned by NewRunner when nothing would run.
var ErrNoClusterizers = errors.New("pipeline has no clusterizers")

// EventSource yields events until it returns io.EOF.
type EventSource interface {
	Next(ctx context.Context) (*clustering.Event, error)
}

// PersistenceSink writes the clusters of a completed event to storage.
// It is an adapter; implementations live outside the clustering packages
// (e.g. internal/clusterdb).
type PersistenceSink interface {
	PersistEvent(ctx context.Context, event int, clusters []*hits.Cluster) error
}

// PublishSink receives the clusters of every completed event, e.g. for
// accumulating plots.
type PublishSink interface {
	PublishEvent(event int, clusters []*hits.Cluster)
}

// isNilInterface checks if an interface value is nil or contains a nil pointer.
func isNilInterface(i interface{}) bool {
	if i == nil {
		return true
	}
	v := reflect.ValueOf(i)
	switch v.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.Interface:
		return v.IsNil()
	}
	return false
}

// Config holds the dependencies of a Runner.
type Config struct {
	Detector     *clustering.Detector
	Clusterizers []clustering.Clusterizer
	Persist      PersistenceSink // Optional
	Publish      PublishSink     // Optional
	Clock        timeutil.Clock  // Optional, defaults to the wall clock
	Verbosity    int
}

// RunStats counts what a run has processed so far.
type RunStats struct {
	Events   int
	Clusters int
	Aborted  int
	// Elapsed is the time spent inside clusterizers.
	Elapsed time.Duration
}

// Runner drives clusterizers over a sequence of events.
type Runner struct {
	cfg         Config
	sink        *hits.ClusterMap
	initialized bool
	stats       RunStats
}

// NewRunner validates cfg and returns a runner with an empty sink.
func NewRunner(cfg Config) (*Runner, error) {
	if len(cfg.Clusterizers) == 0 {
		return nil, ErrNoClusterizers
	}
	for i, c := range cfg.Clusterizers {
		if isNilInterface(c) {
			return nil, fmt.Errorf("clusterizer %d is nil", i)
		}
	}
	if isNilInterface(cfg.Persist) {
		cfg.Persist = nil
	}
	if isNilInterface(cfg.Publish) {
		cfg.Publish = nil
	}
	if isNilInterface(cfg.Clock) {
		cfg.Clock = timeutil.RealClock{}
	}
	return &Runner{cfg: cfg, sink: hits.NewClusterMap()}, nil
}

// InitRun initialises every clusterizer for the detector.
func (r *Runner) InitRun() error {
	for _, c := range r.cfg.Clusterizers {
		if err := c.InitRun(r.cfg.Detector); err != nil {
			return fmt.Errorf("init %s: %w", c.Name(), err)
		}
		diagf("initialised %s clusterizer", c.Name())
	}
	r.initialized = true
	r.stats = RunStats{}
	return nil
}

// Sink returns the cluster map holding the clusters of the last event.
func (r *Runner) Sink() *hits.ClusterMap { return r.sink }

// Stats returns the counters of the current run.
func (r *Runner) Stats() RunStats { return r.stats }

// ProcessEvent resets the sink and runs every clusterizer on ev in order.
// When any clusterizer fails the sink is left empty and the error is
// returned; ErrMissingInput errors are meant to abort the run.
func (r *Runner) ProcessEvent(ctx context.Context, ev *clustering.Event) error {
	if !r.initialized {
		return clustering.ErrNotInitialized
	}
	number := 0
	if ev != nil {
		number = ev.Number
	}
	r.sink.Reset()
	for _, c := range r.cfg.Clusterizers {
		start := r.cfg.Clock.Now()
		err := c.Process(ctx, ev, r.sink)
		took := r.cfg.Clock.Since(start)
		r.stats.Elapsed += took
		if err != nil {
			r.sink.Reset()
			r.stats.Aborted++
			opsf("event %d aborted by %s: %v", number, c.Name(), err)
			return fmt.Errorf("event %d: %s: %w", number, c.Name(), err)
		}
		tracef("event %d: %s done in %v, sink holds %d clusters", number, c.Name(), took, r.sink.Len())
	}

	r.stats.Events++
	r.stats.Clusters += r.sink.Len()
	if r.cfg.Verbosity >= 1 {
		clustering.LogClusters(r.sink)
	}

	clusters := r.sink.Clusters()
	if r.cfg.Persist != nil {
		if err := r.cfg.Persist.PersistEvent(ctx, number, clusters); err != nil {
			return fmt.Errorf("persist event %d: %w", number, err)
		}
	}
	if r.cfg.Publish != nil {
		r.cfg.Publish.PublishEvent(number, clusters)
	}
	return nil
}

// Run initialises the run and processes events from src until it is
// exhausted, the context is cancelled or an event fails.
func (r *Runner) Run(ctx context.Context, src EventSource) error {
	if err := r.InitRun(); err != nil {
		return err
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		ev, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read event: %w", err)
		}
		if err := r.ProcessEvent(ctx, ev); err != nil {
			return err
		}
	}
	diagf("run complete: %d events, %d clusters, %d aborted in %v",
		r.stats.Events, r.stats.Clusters, r.stats.Aborted, r.stats.Elapsed)
	return nil
}
