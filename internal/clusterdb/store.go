package clusterdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/hitreco/internal/hits"
)

// ErrRunNotFound is returned when a run id is unknown.
var ErrRunNotFound = errors.New("run not found")

// Run is one pass of the clustering pipeline over an event source.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt *time.Time
	Algorithms []string
	ConfigJSON string
	Events     int
	Aborted    int
}

// CreateRun records a new run and returns it. cfg is stored as JSON for
// later comparison of tuning between runs.
func (db *DB) CreateRun(ctx context.Context, algorithms []string, cfg interface{}) (*Run, error) {
	cfgJSON := []byte("{}")
	if cfg != nil {
		var err error
		if cfgJSON, err = json.Marshal(cfg); err != nil {
			return nil, fmt.Errorf("failed to encode run config: %w", err)
		}
	}
	run := &Run{
		ID:         uuid.New().String(),
		StartedAt:  db.clock.Now().UTC(),
		Algorithms: algorithms,
		ConfigJSON: string(cfgJSON),
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO runs (run_id, started_at, algorithms, config_json) VALUES (?, ?, ?, ?)`,
		run.ID, run.StartedAt.UnixNano(), strings.Join(algorithms, ","), run.ConfigJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to insert run: %w", err)
	}
	return run, nil
}

// FinishRun stores the final counters of a run.
func (db *DB) FinishRun(ctx context.Context, runID string, events, aborted int) error {
	res, err := db.ExecContext(ctx,
		`UPDATE runs SET events = ?, aborted = ?, finished_at = ? WHERE run_id = ?`,
		events, aborted, db.clock.Now().UTC().UnixNano(), runID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

// GetRun loads a run by id.
func (db *DB) GetRun(ctx context.Context, runID string) (*Run, error) {
	var (
		run        Run
		started    int64
		finished   sql.NullInt64
		algorithms string
	)
	err := db.QueryRowContext(ctx,
		`SELECT run_id, started_at, finished_at, algorithms, config_json, events, aborted FROM runs WHERE run_id = ?`,
		runID).Scan(&run.ID, &started, &finished, &algorithms, &run.ConfigJSON, &run.Events, &run.Aborted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load run: %w", err)
	}
	run.StartedAt = time.Unix(0, started).UTC()
	if finished.Valid {
		t := time.Unix(0, finished.Int64).UTC()
		run.FinishedAt = &t
	}
	if algorithms != "" {
		run.Algorithms = strings.Split(algorithms, ",")
	}
	return &run, nil
}

// InsertClusters stores the clusters of one event in a single transaction.
func (db *DB) InsertClusters(ctx context.Context, runID string, event int, clusters []*hits.Cluster) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO clusters
		(run_id, event, cluster_id, layer, x, y, z, e, adc, size_json, error_json, hit_ids_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare cluster insert: %w", err)
	}
	defer stmt.Close()

	for _, cl := range clusters {
		size, err := json.Marshal(cl.Size)
		if err != nil {
			return fmt.Errorf("failed to encode size of cluster %d: %w", cl.ID, err)
		}
		errm, err := json.Marshal(cl.Error)
		if err != nil {
			return fmt.Errorf("failed to encode error of cluster %d: %w", cl.ID, err)
		}
		ids, err := json.Marshal(cl.HitIDs)
		if err != nil {
			return fmt.Errorf("failed to encode hits of cluster %d: %w", cl.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, runID, event, cl.ID, cl.Layer,
			cl.Position[0], cl.Position[1], cl.Position[2], cl.E, cl.ADC,
			string(size), string(errm), string(ids)); err != nil {
			return fmt.Errorf("failed to insert cluster %d of event %d: %w", cl.ID, event, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit clusters: %w", err)
	}
	return nil
}

// ListClusters returns the clusters of one event in id order.
func (db *DB) ListClusters(ctx context.Context, runID string, event int) ([]*hits.Cluster, error) {
	rows, err := db.QueryContext(ctx, `SELECT cluster_id, layer, x, y, z, e, adc, size_json, error_json, hit_ids_json
		FROM clusters WHERE run_id = ? AND event = ? ORDER BY cluster_id`, runID, event)
	if err != nil {
		return nil, fmt.Errorf("failed to query clusters: %w", err)
	}
	defer rows.Close()

	var out []*hits.Cluster
	for rows.Next() {
		var (
			cl                cluster
			size, errm, idsJS string
		)
		if err := rows.Scan(&cl.ID, &cl.Layer, &cl.Position[0], &cl.Position[1], &cl.Position[2],
			&cl.E, &cl.ADC, &size, &errm, &idsJS); err != nil {
			return nil, fmt.Errorf("failed to scan cluster: %w", err)
		}
		if err := cl.decode(size, errm, idsJS); err != nil {
			return nil, err
		}
		c := hits.Cluster(cl)
		out = append(out, &c)
	}
	return out, rows.Err()
}

// cluster adds column decoding to hits.Cluster.
type cluster hits.Cluster

func (c *cluster) decode(size, errm, ids string) error {
	if err := json.Unmarshal([]byte(size), &c.Size); err != nil {
		return fmt.Errorf("failed to decode size of cluster %d: %w", c.ID, err)
	}
	if err := json.Unmarshal([]byte(errm), &c.Error); err != nil {
		return fmt.Errorf("failed to decode error of cluster %d: %w", c.ID, err)
	}
	if err := json.Unmarshal([]byte(ids), &c.HitIDs); err != nil {
		return fmt.Errorf("failed to decode hits of cluster %d: %w", c.ID, err)
	}
	return nil
}

// LayerCount is the number of clusters and their summed energy on a layer.
type LayerCount struct {
	Layer    int
	Clusters int
	Energy   float64
}

// CountByLayer summarises a run per layer in ascending layer order.
func (db *DB) CountByLayer(ctx context.Context, runID string) ([]LayerCount, error) {
	rows, err := db.QueryContext(ctx, `SELECT layer, COUNT(*), SUM(e) FROM clusters
		WHERE run_id = ? GROUP BY layer ORDER BY layer`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to count clusters: %w", err)
	}
	defer rows.Close()
	var out []LayerCount
	for rows.Next() {
		var lc LayerCount
		if err := rows.Scan(&lc.Layer, &lc.Clusters, &lc.Energy); err != nil {
			return nil, fmt.Errorf("failed to scan layer count: %w", err)
		}
		out = append(out, lc)
	}
	return out, rows.Err()
}

// RunSink persists events of one run. It satisfies pipeline.PersistenceSink.
type RunSink struct {
	db    *DB
	runID string
}

// NewRunSink returns a sink writing into runID.
func NewRunSink(db *DB, runID string) *RunSink {
	return &RunSink{db: db, runID: runID}
}

// PersistEvent stores the clusters of one event.
func (s *RunSink) PersistEvent(ctx context.Context, event int, clusters []*hits.Cluster) error {
	return s.db.InsertClusters(ctx, s.runID, event, clusters)
}
