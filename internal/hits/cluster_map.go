package hits

// ClusterMap is the cluster sink of one event. Clusters are copied on
// insert and receive sequential ids; stored clusters are never modified.
// ClusterMap is not safe for concurrent use.
type ClusterMap struct {
	clusters []*Cluster
}

// NewClusterMap creates an empty sink.
func NewClusterMap() *ClusterMap {
	return &ClusterMap{}
}

// Reset removes all clusters. Called at the start of every event.
func (m *ClusterMap) Reset() {
	m.clusters = m.clusters[:0]
}

// Insert stores a copy of c with the next sequential id and returns the
// stored copy.
func (m *ClusterMap) Insert(c *Cluster) *Cluster {
	stored := c.Clone()
	stored.ID = uint32(len(m.clusters))
	m.clusters = append(m.clusters, stored)
	return stored
}

// Get returns the cluster with the given id.
func (m *ClusterMap) Get(id uint32) (*Cluster, bool) {
	if int(id) >= len(m.clusters) {
		return nil, false
	}
	return m.clusters[id], true
}

// Len returns the number of clusters in the sink.
func (m *ClusterMap) Len() int { return len(m.clusters) }

// Clusters returns the stored clusters in id order.
func (m *ClusterMap) Clusters() []*Cluster {
	return append([]*Cluster(nil), m.clusters...)
}
