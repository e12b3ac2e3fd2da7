package hits

import "sort"

// HitID uniquely identifies a digitized hit within an event.
type HitID uint64

// Hit is a single digitized deposit referencing exactly one cell.
type Hit struct {
	ID     HitID   `json:"id"`
	Layer  int     `json:"layer"`
	CellID CellID  `json:"cell_id"`
	E      float64 `json:"e"`   // deposited energy (GeV)
	ADC    uint32  `json:"adc"` // digitized amplitude
}

// HitMap is the hit source of one event. Iteration is in ascending hit id
// order so that downstream processing is deterministic.
type HitMap struct {
	hits map[HitID]*Hit
}

// NewHitMap creates an empty hit map.
func NewHitMap() *HitMap {
	return &HitMap{hits: make(map[HitID]*Hit)}
}

// Insert stores h, replacing any hit with the same id.
func (m *HitMap) Insert(h *Hit) {
	if h == nil {
		return
	}
	m.hits[h.ID] = h
}

// Get returns the hit with the given id.
func (m *HitMap) Get(id HitID) (*Hit, bool) {
	h, ok := m.hits[id]
	return h, ok
}

// Len returns the number of hits.
func (m *HitMap) Len() int { return len(m.hits) }

// Hits returns all hits sorted by id.
func (m *HitMap) Hits() []*Hit {
	out := make([]*Hit, 0, len(m.hits))
	for _, h := range m.hits {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ByLayer groups hits by layer. Each group keeps ascending id order.
func (m *HitMap) ByLayer() map[int][]*Hit {
	byLayer := make(map[int][]*Hit)
	for _, h := range m.Hits() {
		byLayer[h.Layer] = append(byLayer[h.Layer], h)
	}
	return byLayer
}
