// Package hits owns the detector data model shared by the clusterizers.
//
// Responsibilities: cell identifiers and the cell container, digitized
// hits and the hit source, reconstructed clusters and the cluster sink.
// Key types: Cell, Hit, HitMap, Cluster, ClusterMap.
//
// Dependency rule: hits depends on no other internal package. Geometry
// and clustering depend on hits, never the reverse.
package hits
