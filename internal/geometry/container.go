package geometry

import (
	"fmt"
	"sort"
)

// Layered is implemented by per-layer geometry descriptions.
type Layered interface {
	LayerID() int
	Validate() error
}

// Container holds the geometry of one detector family keyed by layer.
type Container[G Layered] struct {
	layers map[int]G
}

// CylinderContainer holds cylindrical cell layers.
type CylinderContainer = Container[*CylinderCellGeom]

// LadderContainer holds ladder layers.
type LadderContainer = Container[*LadderGeom]

// NewCylinderContainer creates an empty cylinder geometry container.
func NewCylinderContainer() *CylinderContainer {
	return &CylinderContainer{layers: make(map[int]*CylinderCellGeom)}
}

// NewLadderContainer creates an empty ladder geometry container.
func NewLadderContainer() *LadderContainer {
	return &LadderContainer{layers: make(map[int]*LadderGeom)}
}

// Add validates g and stores it. A layer may only be added once.
func (c *Container[G]) Add(g G) error {
	if err := g.Validate(); err != nil {
		return err
	}
	if _, dup := c.layers[g.LayerID()]; dup {
		return fmt.Errorf("%w: layer %d defined twice", ErrInvalidGeometry, g.LayerID())
	}
	c.layers[g.LayerID()] = g
	return nil
}

// Get returns the geometry of a layer.
func (c *Container[G]) Get(layer int) (G, bool) {
	if c == nil {
		var zero G
		return zero, false
	}
	g, ok := c.layers[layer]
	return g, ok
}

// Layers returns the layer numbers in ascending order.
func (c *Container[G]) Layers() []int {
	if c == nil {
		return nil
	}
	out := make([]int, 0, len(c.layers))
	for l := range c.layers {
		out = append(out, l)
	}
	sort.Ints(out)
	return out
}

// Len returns the number of layers.
func (c *Container[G]) Len() int {
	if c == nil {
		return 0
	}
	return len(c.layers)
}
