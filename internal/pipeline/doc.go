// Package pipeline is the composition root of hit clustering.
//
// It wires a detector, one or more clusterizers and optional adapter
// sinks (persistence, plots) into a per-run, per-event flow. The pipeline
// does not own clustering logic; it delegates to internal/clustering and
// owns the lifetime of the cluster sink: reset once per event, repopulated
// by the clusterizers in order, and cleared again when an event aborts.
package pipeline
