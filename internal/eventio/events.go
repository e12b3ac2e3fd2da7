package eventio

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/banshee-data/hitreco/internal/clustering"
	"github.com/banshee-data/hitreco/internal/hits"
)

// HitRecord is one hit in an event line. The cell is described inline;
// Ladder selects the strip cell form using the ladder indices.
type HitRecord struct {
	ID        hits.HitID `json:"id"`
	Layer     int        `json:"layer"`
	PhiBin    int        `json:"phi_bin"`
	ZBin      int        `json:"z_bin"`
	Ladder    bool       `json:"ladder,omitempty"`
	LadderZ   int        `json:"ladder_z,omitempty"`
	LadderPhi int        `json:"ladder_phi,omitempty"`
	E         float64    `json:"e"`
	ADC       uint32     `json:"adc"`
}

// Cell builds the cell the hit was recorded on.
func (h HitRecord) Cell() *hits.Cell {
	if h.Ladder {
		return hits.NewLadderCell(h.Layer, h.LadderZ, h.LadderPhi, h.ZBin, h.PhiBin)
	}
	return hits.NewCylinderCell(h.Layer, h.PhiBin, h.ZBin)
}

// EventRecord is one line of an event stream.
type EventRecord struct {
	Event int         `json:"event"`
	Hits  []HitRecord `json:"hits"`
}

// ToEvent builds the clustering input of the record.
func (r *EventRecord) ToEvent() *clustering.Event {
	hm := hits.NewHitMap()
	cells := hits.NewCellMap()
	for _, h := range r.Hits {
		cell := h.Cell()
		cells.Add(cell)
		hm.Insert(&hits.Hit{ID: h.ID, Layer: h.Layer, CellID: cell.ID, E: h.E, ADC: h.ADC})
	}
	return &clustering.Event{Number: r.Event, Hits: hm, Cells: cells}
}

// maxLineSize bounds a single event line.
const maxLineSize = 64 << 20

// Reader yields events from a JSON lines stream. It implements
// pipeline.EventSource.
type Reader struct {
	scanner *bufio.Scanner
	closer  func() error
	line    int
}

// NewReader reads events from r, decompressing with c.
func NewReader(r io.Reader, c Compression) (*Reader, error) {
	dr, closeCodec, err := decompressor(r, c)
	if err != nil {
		return nil, err
	}
	return newReader(dr, closeCodec), nil
}

// OpenEvents opens an event file; the codec follows the extension.
func OpenEvents(path string) (*Reader, error) {
	r, closer, err := openFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open event file: %w", err)
	}
	return newReader(r, closer), nil
}

func newReader(r io.Reader, closer func() error) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &Reader{scanner: sc, closer: closer}
}

// Next returns the next event, or io.EOF when the stream is exhausted.
// Blank lines are skipped.
func (r *Reader) Next(ctx context.Context) (*clustering.Event, error) {
	for r.scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r.line++
		b := r.scanner.Bytes()
		if len(b) == 0 {
			continue
		}
		var rec EventRecord
		if err := json.Unmarshal(b, &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", r.line, err)
		}
		return rec.ToEvent(), nil
	}
	if err := r.scanner.Err(); err != nil {
		return nil, fmt.Errorf("line %d: %w", r.line+1, err)
	}
	return nil, io.EOF
}

// Close releases the codec and the underlying file, if any.
func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	err := r.closer()
	r.closer = nil
	return err
}

// Writer appends events to a JSON lines stream.
type Writer struct {
	zw   io.WriteCloser
	bw   *bufio.Writer
	enc  *json.Encoder
	file *os.File
}

// NewWriter writes events to w, compressing with c.
func NewWriter(w io.Writer, c Compression) (*Writer, error) {
	zw, err := compressor(w, c)
	if err != nil {
		return nil, err
	}
	bw := bufio.NewWriter(zw)
	return &Writer{zw: zw, bw: bw, enc: json.NewEncoder(bw)}, nil
}

// CreateEvents creates an event file; the codec follows the extension.
func CreateEvents(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create event file: %w", err)
	}
	w, err := NewWriter(f, CompressionFromPath(path))
	if err != nil {
		f.Close()
		return nil, err
	}
	w.file = f
	return w, nil
}

// Write appends one event.
func (w *Writer) Write(rec *EventRecord) error {
	return w.enc.Encode(rec)
}

// Close flushes buffered data and the codec, then closes the file if the
// writer created it.
func (w *Writer) Close() error {
	if err := w.bw.Flush(); err != nil {
		return err
	}
	if err := w.zw.Close(); err != nil {
		return err
	}
	if w.file != nil {
		return w.file.Close()
	}
	return nil
}
