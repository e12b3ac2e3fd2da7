// Command hitcluster clusters the hits of an event file with the graph
// and/or peak-finding clusterizers. Clusters can be stored in SQLite and
// summarised in PNG plots.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/banshee-data/hitreco/internal/clusterdb"
	"github.com/banshee-data/hitreco/internal/clustering"
	"github.com/banshee-data/hitreco/internal/config"
	"github.com/banshee-data/hitreco/internal/eventio"
	"github.com/banshee-data/hitreco/internal/monitor"
	"github.com/banshee-data/hitreco/internal/monitoring"
	"github.com/banshee-data/hitreco/internal/pipeline"
	"github.com/banshee-data/hitreco/internal/version"
)

// options holds the parsed command line.
type options struct {
	configPath   string
	geometryPath string
	eventsPath   string
	dbPath       string
	plotDir      string
	algo         string
	workers      int
	verbosity    int
	showVersion  bool
}

func parseFlags(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("hitcluster", flag.ContinueOnError)
	fs.SetOutput(stderr)
	o := &options{}
	fs.StringVar(&o.configPath, "config", "", "Tuning config JSON (defaults to compiled defaults)")
	fs.StringVar(&o.geometryPath, "geometry", "", "Detector geometry JSON (required)")
	fs.StringVar(&o.eventsPath, "events", "", "Event file, JSON lines; .gz and .zst are decompressed (required)")
	fs.StringVar(&o.dbPath, "db", "", "SQLite database to store clusters in (optional)")
	fs.StringVar(&o.plotDir, "plot-dir", "", "Directory for cluster plots (optional)")
	fs.StringVar(&o.algo, "algo", "graph", "Clusterizers to run: graph, peak or both")
	fs.IntVar(&o.workers, "workers", 0, "Layers clustered concurrently (0 keeps the config value)")
	fs.IntVar(&o.verbosity, "verbose", -1, "Log verbosity 0-2 (-1 keeps the config value)")
	fs.BoolVar(&o.showVersion, "version", false, "Print version and exit")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if o.showVersion {
		return o, nil
	}
	if o.geometryPath == "" || o.eventsPath == "" {
		return nil, errors.New("-geometry and -events are required")
	}
	switch o.algo {
	case "graph", "peak", "both":
	default:
		return nil, fmt.Errorf("unknown -algo %q", o.algo)
	}
	return o, nil
}

func loadTuning(o *options) (*config.TuningConfig, error) {
	cfg := config.DefaultTuningConfig()
	if o.configPath != "" {
		var err error
		if cfg, err = config.LoadTuningConfig(o.configPath); err != nil {
			return nil, err
		}
	}
	if o.workers > 0 {
		cfg.Workers = &o.workers
	}
	if o.verbosity >= 0 {
		cfg.Verbosity = &o.verbosity
	}
	return cfg, cfg.Validate()
}

func buildClusterizers(algo string, cfg *config.TuningConfig) ([]clustering.Clusterizer, []string) {
	var cs []clustering.Clusterizer
	if algo == "graph" || algo == "both" {
		cs = append(cs, clustering.NewGraphClusterizer(clustering.GraphParamsFromTuning(cfg)))
	}
	if algo == "peak" || algo == "both" {
		cs = append(cs, clustering.NewPeakClusterizer(clustering.PeakParamsFromTuning(cfg)))
	}
	names := make([]string, len(cs))
	for i, c := range cs {
		names[i] = c.Name()
	}
	return cs, names
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	o, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	if o.showVersion {
		fmt.Fprintln(stdout, version.String("hitcluster"))
		return nil
	}

	cfg, err := loadTuning(o)
	if err != nil {
		return err
	}
	pipeline.ConfigureLogging(stderr, cfg.GetVerbosity())
	monitoring.SetOutput(stderr)

	det, err := eventio.LoadDetector(o.geometryPath)
	if err != nil {
		return err
	}
	clusterizers, names := buildClusterizers(o.algo, cfg)
	pcfg := pipeline.Config{
		Detector:     det,
		Clusterizers: clusterizers,
		Verbosity:    cfg.GetVerbosity(),
	}

	var (
		db  *clusterdb.DB
		rec *clusterdb.Run
	)
	if o.dbPath != "" {
		if db, err = clusterdb.Open(o.dbPath); err != nil {
			return err
		}
		defer db.Close()
		if rec, err = db.CreateRun(ctx, names, cfg); err != nil {
			return err
		}
		pcfg.Persist = clusterdb.NewRunSink(db, rec.ID)
		monitoring.Logf("recording run %s in %s", rec.ID, o.dbPath)
	}

	var plotter *monitor.ClusterPlotter
	if o.plotDir != "" {
		plotter = monitor.NewClusterPlotter(50)
		if err := plotter.Start(o.plotDir); err != nil {
			return err
		}
		pcfg.Publish = plotter
	}

	runner, err := pipeline.NewRunner(pcfg)
	if err != nil {
		return err
	}
	events, err := eventio.OpenEvents(o.eventsPath)
	if err != nil {
		return err
	}
	defer events.Close()

	runErr := runner.Run(ctx, events)
	stats := runner.Stats()
	if db != nil {
		if err := db.FinishRun(ctx, rec.ID, stats.Events, stats.Aborted); err != nil {
			monitoring.Logf("failed to finish run %s: %v", rec.ID, err)
		}
	}
	if plotter != nil {
		plotter.Stop()
		n, err := plotter.GeneratePlots()
		if err != nil {
			monitoring.Logf("plot generation failed: %v", err)
		} else {
			monitoring.Logf("wrote %d plots to %s", n, o.plotDir)
		}
	}
	monitoring.Logf("clusterizers ran for %v", stats.Elapsed)
	fmt.Fprintf(stdout, "events=%d clusters=%d aborted=%d\n", stats.Events, stats.Clusters, stats.Aborted)
	return runErr
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		log.Fatalf("hitcluster: %v", err)
	}
}
