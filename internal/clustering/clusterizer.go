package clustering

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/hitreco/internal/geometry"
	"github.com/banshee-data/hitreco/internal/hits"
)

// ErrMissingInput is returned when a required event input or geometry is
// absent, or a hit references a cell the cell container does not hold.
// It aborts processing of the event.
var ErrMissingInput = errors.New("missing clustering input")

// ErrNotInitialized is returned by Process when InitRun has not succeeded.
var ErrNotInitialized = errors.New("clusterizer not initialized")

// ErrCellOutOfRange is returned when a cell's bins lie outside its layer
// geometry.
var ErrCellOutOfRange = errors.New("cell outside layer geometry")

// ErrInvalidParams is returned by InitRun when the clusterizer parameters
// cannot produce a terminating run.
var ErrInvalidParams = errors.New("invalid clusterizer parameters")

// Clusterizer turns the hits of one event into clusters.
type Clusterizer interface {
	Name() string
	// InitRun prepares per-run state (thresholds, caches) from the detector.
	InitRun(det *Detector) error
	// Process clusters one event and inserts the clusters into sink. It
	// does not reset the sink. On error nothing has been inserted.
	Process(ctx context.Context, ev *Event, sink *hits.ClusterMap) error
}

// Detector bundles the layer geometries known for a run. Either container
// may be nil when the detector has no layers of that family.
type Detector struct {
	Cylinders *geometry.CylinderContainer
	Ladders   *geometry.LadderContainer
}

// Empty reports whether the detector has no layer geometry at all.
func (d *Detector) Empty() bool {
	return d == nil || (d.Cylinders.Len() == 0 && d.Ladders.Len() == 0)
}

// Event is the per-event input to a clusterizer.
type Event struct {
	Number int
	Hits   *hits.HitMap
	Cells  hits.CellLookup
}

func (ev *Event) check() error {
	switch {
	case ev == nil:
		return fmt.Errorf("%w: event", ErrMissingInput)
	case ev.Hits == nil:
		return fmt.Errorf("%w: hit source", ErrMissingInput)
	case ev.Cells == nil:
		return fmt.Errorf("%w: cell container", ErrMissingInput)
	}
	return nil
}

func (ev *Event) findCell(h *hits.Hit) (*hits.Cell, error) {
	cell, ok := ev.Cells.FindCell(h.CellID)
	if !ok || cell == nil {
		return nil, fmt.Errorf("%w: hit %d references unknown %v", ErrMissingInput, h.ID, h.CellID)
	}
	return cell, nil
}

// runLayers executes jobs and returns their results in job order. With
// more than one worker the jobs run concurrently; the first error cancels
// jobs that have not started yet.
func runLayers[R any](ctx context.Context, workers int, jobs []func() (R, error)) ([]R, error) {
	results := make([]R, len(jobs))
	if workers <= 1 || len(jobs) <= 1 {
		for i, job := range jobs {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			r, err := job()
			if err != nil {
				return nil, err
			}
			results[i] = r
		}
		return results, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, job := range jobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r, err := job()
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
