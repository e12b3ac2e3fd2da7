package eventio

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/banshee-data/hitreco/internal/clustering"
	"github.com/banshee-data/hitreco/internal/geometry"
)

// CylinderLayer is the file form of a cylindrical layer. Phi bins always
// cover the full azimuth.
type CylinderLayer struct {
	Layer     int     `json:"layer"`
	Radius    float64 `json:"radius"`
	Thickness float64 `json:"thickness"`
	PhiBins   int     `json:"phi_bins"`
	ZBins     int     `json:"z_bins"`
	ZMin      float64 `json:"z_min"`
	ZMax      float64 `json:"z_max"`
}

// DetectorFile is the JSON document describing a detector.
type DetectorFile struct {
	Cylinders []CylinderLayer        `json:"cylinders,omitempty"`
	Ladders   []*geometry.LadderGeom `json:"ladders,omitempty"`
}

// maxDetectorFileSize bounds geometry documents read from disk.
const maxDetectorFileSize = 4 << 20

// LoadDetector reads a geometry file and builds validated containers.
func LoadDetector(path string) (*clustering.Detector, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open geometry file: %w", err)
	}
	defer f.Close()
	det, err := DecodeDetector(io.LimitReader(f, maxDetectorFileSize))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return det, nil
}

// DecodeDetector parses a geometry document.
func DecodeDetector(r io.Reader) (*clustering.Detector, error) {
	var doc DetectorFile
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse geometry: %w", err)
	}
	return doc.Build()
}

// Build converts the document into geometry containers.
func (d *DetectorFile) Build() (*clustering.Detector, error) {
	det := &clustering.Detector{
		Cylinders: geometry.NewCylinderContainer(),
		Ladders:   geometry.NewLadderContainer(),
	}
	for _, c := range d.Cylinders {
		g := geometry.NewCylinderCellGeom(c.Layer, c.Radius, c.Thickness, c.PhiBins, c.ZBins, c.ZMin, c.ZMax)
		if err := det.Cylinders.Add(g); err != nil {
			return nil, err
		}
	}
	for _, l := range d.Ladders {
		if l == nil {
			continue
		}
		if err := det.Ladders.Add(l); err != nil {
			return nil, err
		}
	}
	return det, nil
}

// WriteDetector writes d as indented JSON.
func WriteDetector(w io.Writer, d *DetectorFile) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(d)
}
