package clustering

import (
	"fmt"
	"maps"
	"math"

	"github.com/banshee-data/hitreco/internal/config"
)

// GraphParams configures the adjacency-graph clusterizer for one run.
type GraphParams struct {
	MinLayer              int
	MaxLayer              int
	FractionOfMIP         float64
	MIPEnergyPerThickness float64 // GeV/cm
	ZClustering           map[int]bool
	EnergyWeighting       map[int]bool
	Workers               int
}

// DefaultGraphParams returns the compiled defaults.
func DefaultGraphParams() GraphParams {
	return GraphParamsFromTuning(config.EmptyTuningConfig())
}

// GraphParamsFromTuning extracts graph clusterizer parameters from a tuning
// config. Per-layer maps are copied so later config edits do not leak into
// a running clusterizer.
func GraphParamsFromTuning(cfg *config.TuningConfig) GraphParams {
	return GraphParams{
		MinLayer:              cfg.GetMinLayer(),
		MaxLayer:              cfg.GetMaxLayer(),
		FractionOfMIP:         cfg.GetFractionOfMIP(),
		MIPEnergyPerThickness: cfg.GetMIPEnergyPerThickness(),
		ZClustering:           maps.Clone(cfg.GetZClustering()),
		EnergyWeighting:       maps.Clone(cfg.GetEnergyWeighting()),
		Workers:               cfg.GetWorkers(),
	}
}

// PeakParams configures the peak-finding clusterizer. Spans and windows
// are half-widths in bins.
type PeakParams struct {
	MinLayer          int
	MaxLayer          int
	PhiSpan           int
	ZSpan             int
	MaxWindow         int
	Fraction          float64
	EnergyCut         float64 // GeV
	EnergyCutMinLayer int
	PlateauTieBreak   bool
	Workers           int
}

// DefaultPeakParams returns the compiled defaults.
func DefaultPeakParams() PeakParams {
	return PeakParamsFromTuning(config.EmptyTuningConfig())
}

// PeakParamsFromTuning extracts peak-finder parameters from a tuning config.
func PeakParamsFromTuning(cfg *config.TuningConfig) PeakParams {
	return PeakParams{
		MinLayer:          cfg.GetPeakMinLayer(),
		MaxLayer:          cfg.GetPeakMaxLayer(),
		PhiSpan:           cfg.GetPeakPhiSpan(),
		ZSpan:             cfg.GetPeakZSpan(),
		MaxWindow:         cfg.GetPeakMaxWindow(),
		Fraction:          cfg.GetPeakFraction(),
		EnergyCut:         cfg.GetPeakEnergyCut(),
		EnergyCutMinLayer: cfg.GetPeakEnergyCutMinLayer(),
		PlateauTieBreak:   cfg.GetPeakPlateauTieBreak(),
		Workers:           cfg.GetWorkers(),
	}
}

// Validate rejects parameters under which a fit could fail to consume its
// own peak bin.
func (p PeakParams) Validate() error {
	switch {
	case p.PhiSpan < 0 || p.ZSpan < 0:
		return fmt.Errorf("%w: fit spans must be non-negative (phi=%d z=%d)", ErrInvalidParams, p.PhiSpan, p.ZSpan)
	case p.MaxWindow < 0:
		return fmt.Errorf("%w: maximum window must be non-negative, got %d", ErrInvalidParams, p.MaxWindow)
	case !(p.Fraction > 0 && p.Fraction <= 1):
		return fmt.Errorf("%w: fraction must be in (0, 1], got %g", ErrInvalidParams, p.Fraction)
	case math.IsNaN(p.EnergyCut) || p.EnergyCut < 0:
		return fmt.Errorf("%w: energy cut must be non-negative, got %g", ErrInvalidParams, p.EnergyCut)
	}
	return nil
}
