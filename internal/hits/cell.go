package hits

import "fmt"

// CellID identifies a discretized detector element. It packs the layer,
// the ladder indices (zero for cylinder layers) and the phi/z bins.
//
// Bit layout, most significant first:
//
//	layer:8 | ladderZ:8 | ladderPhi:12 | zBin:18 | phiBin:18
type CellID uint64

const (
	phiBits       = 18
	zBits         = 18
	ladderPhiBits = 12
	ladderZBits   = 8
	layerBits     = 8

	zShift         = phiBits
	ladderPhiShift = zShift + zBits
	ladderZShift   = ladderPhiShift + ladderPhiBits
	layerShift     = ladderZShift + ladderZBits
)

// MaxPhiBins and MaxZBins bound the bin indices representable in a CellID.
const (
	MaxPhiBins = 1 << phiBits
	MaxZBins   = 1 << zBits
)

func mask(bits uint) uint64 { return (1 << bits) - 1 }

// CylinderCellID builds the identifier of a cell on a cylindrical layer.
func CylinderCellID(layer, phiBin, zBin int) CellID {
	return LadderCellID(layer, 0, 0, zBin, phiBin)
}

// LadderCellID builds the identifier of a strip cell on a ladder layer.
func LadderCellID(layer, ladderZ, ladderPhi, zBin, phiBin int) CellID {
	id := (uint64(layer) & mask(layerBits)) << layerShift
	id |= (uint64(ladderZ) & mask(ladderZBits)) << ladderZShift
	id |= (uint64(ladderPhi) & mask(ladderPhiBits)) << ladderPhiShift
	id |= (uint64(zBin) & mask(zBits)) << zShift
	id |= uint64(phiBin) & mask(phiBits)
	return CellID(id)
}

// Layer extracts the layer encoded in the identifier.
func (id CellID) Layer() int { return int((uint64(id) >> layerShift) & mask(layerBits)) }

// Bins extracts the phi and z bins encoded in the identifier.
func (id CellID) Bins() (phiBin, zBin int) {
	return int(uint64(id) & mask(phiBits)), int((uint64(id) >> zShift) & mask(zBits))
}

func (id CellID) String() string {
	phi, z := id.Bins()
	return fmt.Sprintf("cell(layer=%d phi=%d z=%d)", id.Layer(), phi, z)
}

// Cell is one readout element of a layer. Ladder fields are zero for
// cylindrical layers.
type Cell struct {
	ID             CellID `json:"id"`
	Layer          int    `json:"layer"`
	PhiBin         int    `json:"phi_bin"`
	ZBin           int    `json:"z_bin"`
	SensorIndex    int    `json:"sensor_index,omitempty"`
	LadderZIndex   int    `json:"ladder_z_index,omitempty"`
	LadderPhiIndex int    `json:"ladder_phi_index,omitempty"`
}

// NewCylinderCell returns a cell on a cylindrical layer with its ID set.
func NewCylinderCell(layer, phiBin, zBin int) *Cell {
	return &Cell{
		ID:     CylinderCellID(layer, phiBin, zBin),
		Layer:  layer,
		PhiBin: phiBin,
		ZBin:   zBin,
	}
}

// NewLadderCell returns a strip cell on a ladder layer. The sensor index
// is derived from the ladder indices so that cells of the same ladder
// segment share it.
func NewLadderCell(layer, ladderZ, ladderPhi, zBin, phiBin int) *Cell {
	return &Cell{
		ID:             LadderCellID(layer, ladderZ, ladderPhi, zBin, phiBin),
		Layer:          layer,
		PhiBin:         phiBin,
		ZBin:           zBin,
		SensorIndex:    ladderZ<<ladderPhiBits | ladderPhi,
		LadderZIndex:   ladderZ,
		LadderPhiIndex: ladderPhi,
	}
}

// CellLookup resolves cell identifiers referenced by hits.
type CellLookup interface {
	FindCell(id CellID) (*Cell, bool)
}

// CellMap is the in-memory cell container.
type CellMap struct {
	cells map[CellID]*Cell
}

// NewCellMap creates an empty cell container.
func NewCellMap() *CellMap {
	return &CellMap{cells: make(map[CellID]*Cell)}
}

// Add stores c under c.ID, replacing any cell with the same identifier.
func (m *CellMap) Add(c *Cell) {
	if c == nil {
		return
	}
	m.cells[c.ID] = c
}

// FindCell implements CellLookup.
func (m *CellMap) FindCell(id CellID) (*Cell, bool) {
	c, ok := m.cells[id]
	return c, ok
}

// Len returns the number of cells in the container.
func (m *CellMap) Len() int { return len(m.cells) }
