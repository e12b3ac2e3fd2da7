package clustering

import "github.com/banshee-data/hitreco/internal/hits"

// LogClusters dumps every cluster in the sink on the diag stream.
func LogClusters(sink *hits.ClusterMap) {
	if sink == nil {
		return
	}
	Diagf("found and recorded the following %d clusters", sink.Len())
	for _, cl := range sink.Clusters() {
		Diagf("%s", cl.Identify())
	}
}
