package hits

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// NoLayer marks a cluster whose layer was never set.
const NoLayer = -1

// Cluster is a reconstructed hit: the merged signal of one or more cells.
// Size and Error are expressed in global coordinates after rotation from
// the local (radial, phi, z) frame.
type Cluster struct {
	ID       uint32     `json:"id"`
	Layer    int        `json:"layer"`
	Position [3]float64 `json:"position"`
	E        float64    `json:"e"`
	ADC      uint32     `json:"adc"`
	Size     Matrix3    `json:"size"`
	Error    Matrix3    `json:"error"`
	HitIDs   []HitID    `json:"hit_ids"`
}

// NewCluster returns an empty cluster on the given layer.
func NewCluster(layer int) *Cluster {
	return &Cluster{Layer: layer}
}

// InsertHit records a contributing hit, keeping HitIDs sorted and unique.
func (c *Cluster) InsertHit(id HitID) {
	i := sort.Search(len(c.HitIDs), func(i int) bool { return c.HitIDs[i] >= id })
	if i < len(c.HitIDs) && c.HitIDs[i] == id {
		return
	}
	c.HitIDs = append(c.HitIDs, 0)
	copy(c.HitIDs[i+1:], c.HitIDs[i:])
	c.HitIDs[i] = id
}

// R returns the transverse radius of the cluster position.
func (c *Cluster) R() float64 { return math.Hypot(c.Position[0], c.Position[1]) }

// Phi returns the azimuthal angle of the cluster position.
func (c *Cluster) Phi() float64 { return math.Atan2(c.Position[1], c.Position[0]) }

// Z returns the longitudinal cluster position.
func (c *Cluster) Z() float64 { return c.Position[2] }

// IsValid reports whether the cluster can be handed to track
// reconstruction: layer set, finite position and energy, non-empty hit
// set, symmetric finite matrices and a positive semi-definite error.
func (c *Cluster) IsValid() bool {
	if c.Layer == NoLayer || c.Layer < 0 {
		return false
	}
	for _, v := range c.Position {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	if math.IsNaN(c.E) || math.IsInf(c.E, 0) {
		return false
	}
	if len(c.HitIDs) == 0 {
		return false
	}
	if !c.Size.IsFinite() || !c.Error.IsFinite() {
		return false
	}
	if !c.Size.IsSymmetric() || !c.Error.IsSymmetric() {
		return false
	}
	return c.Error.IsPositiveSemidefinite()
}

// Clone returns a deep copy of the cluster.
func (c *Cluster) Clone() *Cluster {
	out := *c
	out.HitIDs = append([]HitID(nil), c.HitIDs...)
	return &out
}

// Identify returns a multi-line human readable description.
func (c *Cluster) Identify() string {
	var b strings.Builder
	fmt.Fprintf(&b, "cluster id=%d layer=%d\n", c.ID, c.Layer)
	fmt.Fprintf(&b, "  (x,y,z) = (%g, %g, %g)\n", c.Position[0], c.Position[1], c.Position[2])
	fmt.Fprintf(&b, "  e = %g adc = %d\n", c.E, c.ADC)
	b.WriteString("  size = ")
	writeMatrix(&b, c.Size)
	b.WriteString("  error = ")
	writeMatrix(&b, c.Error)
	fmt.Fprintf(&b, "  hits = %v\n", c.HitIDs)
	return b.String()
}

func writeMatrix(b *strings.Builder, m Matrix3) {
	for i, row := range m {
		if i > 0 {
			b.WriteString("; ")
		}
		fmt.Fprintf(b, "%g %g %g", row[0], row[1], row[2])
	}
	b.WriteString("\n")
}
