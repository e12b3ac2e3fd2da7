// Package clustering groups digitized detector hits into clusters.
//
// Two algorithms share the Clusterizer interface:
//   - GraphClusterizer connects adjacent active cells of a layer and turns
//     each connected component into a cluster with an energy or uniform
//     weighted centroid and a rotated size/error matrix.
//   - PeakClusterizer builds a dense phi-z amplitude map per layer and
//     repeatedly fits and subtracts windows around local maxima.
//
// Layers are independent; a clusterizer may process them concurrently and
// still inserts its clusters into the sink in ascending layer order.
//
// Dependency rule: clustering depends on hits, geometry and config, never
// on pipeline or storage packages.
package clustering
