package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// Default values used when a field is omitted from the JSON.
const (
	DefaultMinLayer              = 0
	DefaultMaxLayer              = 255
	DefaultFractionOfMIP         = 0.5
	DefaultMIPEnergyPerThickness = 0.003876 // GeV per cm of silicon
	DefaultPeakPhiSpan           = 10
	DefaultPeakZSpan             = 10
	DefaultPeakMaxWindow         = 32
	DefaultPeakFraction          = 0.05
	DefaultPeakEnergyCut         = 15e-6 // GeV
	DefaultPeakEnergyCutMinLayer = 2
	DefaultWorkers               = 1
)

const (
	maxLayerRepresentable = 255 // cell ids carry 8 bits of layer
	maxPeakWindowBins     = 1 << 16
)

// TuningConfig represents the root configuration for the clusterizers.
// Per-layer maps override the z-clustering and energy-weighting defaults;
// layers absent from a map keep z-clustering on and weighting off.
type TuningConfig struct {
	// Adjacency-graph clusterizer
	MinLayer              *int         `json:"min_layer,omitempty"`
	MaxLayer              *int         `json:"max_layer,omitempty"`
	FractionOfMIP         *float64     `json:"fraction_of_mip,omitempty"`
	MIPEnergyPerThickness *float64     `json:"mip_energy_per_thickness,omitempty"`
	ZClustering           map[int]bool `json:"z_clustering,omitempty"`
	EnergyWeighting       map[int]bool `json:"energy_weighting,omitempty"`

	// Peak-finding clusterizer
	PeakMinLayer          *int     `json:"peak_min_layer,omitempty"`
	PeakMaxLayer          *int     `json:"peak_max_layer,omitempty"`
	PeakPhiSpan           *int     `json:"peak_phi_span,omitempty"`
	PeakZSpan             *int     `json:"peak_z_span,omitempty"`
	PeakMaxWindow         *int     `json:"peak_max_window,omitempty"`
	PeakFraction          *float64 `json:"peak_fraction,omitempty"`
	PeakEnergyCut         *float64 `json:"peak_energy_cut,omitempty"`
	PeakEnergyCutMinLayer *int     `json:"peak_energy_cut_min_layer,omitempty"`
	PeakPlateauTieBreak   *bool    `json:"peak_plateau_tie_break,omitempty"`

	// Execution
	Workers   *int `json:"workers,omitempty"`
	Verbosity *int `json:"verbosity,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a TuningConfig with every field set to its
// compiled-in default.
func DefaultTuningConfig() *TuningConfig {
	return &TuningConfig{
		MinLayer:              ptrInt(DefaultMinLayer),
		MaxLayer:              ptrInt(DefaultMaxLayer),
		FractionOfMIP:         ptrFloat64(DefaultFractionOfMIP),
		MIPEnergyPerThickness: ptrFloat64(DefaultMIPEnergyPerThickness),
		PeakMinLayer:          ptrInt(DefaultMinLayer),
		PeakMaxLayer:          ptrInt(DefaultMaxLayer),
		PeakPhiSpan:           ptrInt(DefaultPeakPhiSpan),
		PeakZSpan:             ptrInt(DefaultPeakZSpan),
		PeakMaxWindow:         ptrInt(DefaultPeakMaxWindow),
		PeakFraction:          ptrFloat64(DefaultPeakFraction),
		PeakEnergyCut:         ptrFloat64(DefaultPeakEnergyCut),
		PeakEnergyCutMinLayer: ptrInt(DefaultPeakEnergyCutMinLayer),
		PeakPlateauTieBreak:   ptrBool(false),
		Workers:               ptrInt(DefaultWorkers),
		Verbosity:             ptrInt(0),
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if err := validateLayerRange("min_layer", "max_layer", c.MinLayer, c.MaxLayer); err != nil {
		return err
	}
	if err := validateLayerRange("peak_min_layer", "peak_max_layer", c.PeakMinLayer, c.PeakMaxLayer); err != nil {
		return err
	}

	if c.FractionOfMIP != nil && *c.FractionOfMIP < 0 {
		return fmt.Errorf("fraction_of_mip must be non-negative, got %f", *c.FractionOfMIP)
	}
	if c.MIPEnergyPerThickness != nil && *c.MIPEnergyPerThickness <= 0 {
		return fmt.Errorf("mip_energy_per_thickness must be positive, got %f", *c.MIPEnergyPerThickness)
	}

	for name, v := range map[string]*int{
		"peak_phi_span":   c.PeakPhiSpan,
		"peak_z_span":     c.PeakZSpan,
		"peak_max_window": c.PeakMaxWindow,
	} {
		if v != nil && (*v < 0 || *v > maxPeakWindowBins) {
			return fmt.Errorf("%s must be between 0 and %d, got %d", name, maxPeakWindowBins, *v)
		}
	}

	if c.PeakFraction != nil && (*c.PeakFraction < 0 || *c.PeakFraction > 1) {
		return fmt.Errorf("peak_fraction must be between 0 and 1, got %f", *c.PeakFraction)
	}
	if c.PeakEnergyCut != nil && *c.PeakEnergyCut < 0 {
		return fmt.Errorf("peak_energy_cut must be non-negative, got %f", *c.PeakEnergyCut)
	}
	if c.Workers != nil && *c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", *c.Workers)
	}

	for layer := range c.ZClustering {
		if layer < 0 || layer > maxLayerRepresentable {
			return fmt.Errorf("z_clustering has out of range layer %d", layer)
		}
	}
	for layer := range c.EnergyWeighting {
		if layer < 0 || layer > maxLayerRepresentable {
			return fmt.Errorf("energy_weighting has out of range layer %d", layer)
		}
	}

	return nil
}

func validateLayerRange(minName, maxName string, minLayer, maxLayer *int) error {
	if minLayer != nil && (*minLayer < 0 || *minLayer > maxLayerRepresentable) {
		return fmt.Errorf("%s must be between 0 and %d, got %d", minName, maxLayerRepresentable, *minLayer)
	}
	if maxLayer != nil && (*maxLayer < 0 || *maxLayer > maxLayerRepresentable) {
		return fmt.Errorf("%s must be between 0 and %d, got %d", maxName, maxLayerRepresentable, *maxLayer)
	}
	if minLayer != nil && maxLayer != nil && *minLayer > *maxLayer {
		return fmt.Errorf("%s (%d) exceeds %s (%d)", minName, *minLayer, maxName, *maxLayer)
	}
	return nil
}

// GetMinLayer returns the min_layer value or the default.
func (c *TuningConfig) GetMinLayer() int {
	if c.MinLayer == nil {
		return DefaultMinLayer
	}
	return *c.MinLayer
}

// GetMaxLayer returns the max_layer value or the default.
func (c *TuningConfig) GetMaxLayer() int {
	if c.MaxLayer == nil {
		return DefaultMaxLayer
	}
	return *c.MaxLayer
}

// GetFractionOfMIP returns the fraction_of_mip value or the default.
func (c *TuningConfig) GetFractionOfMIP() float64 {
	if c.FractionOfMIP == nil {
		return DefaultFractionOfMIP
	}
	return *c.FractionOfMIP
}

// GetMIPEnergyPerThickness returns the mip_energy_per_thickness value or the default.
func (c *TuningConfig) GetMIPEnergyPerThickness() float64 {
	if c.MIPEnergyPerThickness == nil {
		return DefaultMIPEnergyPerThickness
	}
	return *c.MIPEnergyPerThickness
}

// GetZClustering returns the per-layer z-clustering overrides.
// The returned map must not be modified.
func (c *TuningConfig) GetZClustering() map[int]bool {
	return c.ZClustering
}

// GetEnergyWeighting returns the per-layer energy-weighting overrides.
// The returned map must not be modified.
func (c *TuningConfig) GetEnergyWeighting() map[int]bool {
	return c.EnergyWeighting
}

// GetPeakMinLayer returns the peak_min_layer value or the default.
func (c *TuningConfig) GetPeakMinLayer() int {
	if c.PeakMinLayer == nil {
		return DefaultMinLayer
	}
	return *c.PeakMinLayer
}

// GetPeakMaxLayer returns the peak_max_layer value or the default.
func (c *TuningConfig) GetPeakMaxLayer() int {
	if c.PeakMaxLayer == nil {
		return DefaultMaxLayer
	}
	return *c.PeakMaxLayer
}

// GetPeakPhiSpan returns the peak_phi_span value or the default.
func (c *TuningConfig) GetPeakPhiSpan() int {
	if c.PeakPhiSpan == nil {
		return DefaultPeakPhiSpan
	}
	return *c.PeakPhiSpan
}

// GetPeakZSpan returns the peak_z_span value or the default.
func (c *TuningConfig) GetPeakZSpan() int {
	if c.PeakZSpan == nil {
		return DefaultPeakZSpan
	}
	return *c.PeakZSpan
}

// GetPeakMaxWindow returns the peak_max_window value or the default.
func (c *TuningConfig) GetPeakMaxWindow() int {
	if c.PeakMaxWindow == nil {
		return DefaultPeakMaxWindow
	}
	return *c.PeakMaxWindow
}

// GetPeakFraction returns the peak_fraction value or the default.
func (c *TuningConfig) GetPeakFraction() float64 {
	if c.PeakFraction == nil {
		return DefaultPeakFraction
	}
	return *c.PeakFraction
}

// GetPeakEnergyCut returns the peak_energy_cut value or the default.
func (c *TuningConfig) GetPeakEnergyCut() float64 {
	if c.PeakEnergyCut == nil {
		return DefaultPeakEnergyCut
	}
	return *c.PeakEnergyCut
}

// GetPeakEnergyCutMinLayer returns the peak_energy_cut_min_layer value or the default.
func (c *TuningConfig) GetPeakEnergyCutMinLayer() int {
	if c.PeakEnergyCutMinLayer == nil {
		return DefaultPeakEnergyCutMinLayer
	}
	return *c.PeakEnergyCutMinLayer
}

// GetPeakPlateauTieBreak returns the peak_plateau_tie_break value or the default.
func (c *TuningConfig) GetPeakPlateauTieBreak() bool {
	if c.PeakPlateauTieBreak == nil {
		return false // default: keep equal-amplitude peaks
	}
	return *c.PeakPlateauTieBreak
}

// GetWorkers returns the workers value or the default.
func (c *TuningConfig) GetWorkers() int {
	if c.Workers == nil {
		return DefaultWorkers
	}
	return *c.Workers
}

// GetVerbosity returns the verbosity value or the default.
func (c *TuningConfig) GetVerbosity() int {
	if c.Verbosity == nil {
		return 0
	}
	return *c.Verbosity
}
