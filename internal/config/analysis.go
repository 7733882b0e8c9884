package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/banshee-data/fatigue.report/internal/fatigue/l3preload"
	"github.com/banshee-data/fatigue.report/internal/fatigue/pipeline"
)

// DefaultConfigPath is the path to the canonical analysis defaults file.
const DefaultConfigPath = "config/analysis.defaults.json"

// Built-in fallbacks used by the Get* accessors when a field is absent.
const (
	defaultLoadTolerancePercent  = 0.01
	defaultMinStd                = 0.05
	defaultBufferSize            = 5
	defaultStdPolicy             = "both"
	defaultOutlierMaxDiffPercent = 50.0
	defaultYieldDispPercent      = 10.0
	defaultBreakDispPercent      = 30.0
	defaultWorkers               = 4
)

// AnalysisConfig holds the thresholds of the fatigue analysis. Every field
// is optional; absent fields fall back to the built-in defaults.
type AnalysisConfig struct {
	// Preload detection
	LoadTolerancePercent *float64 `json:"load_tolerance_percent,omitempty"`
	MinStd               *float64 `json:"min_std,omitempty"`
	BufferSize           *int     `json:"buffer_size,omitempty"`
	StdPolicy            *string  `json:"std_policy,omitempty"` // "both" or "mean"

	// Outliers and phases
	OutlierMaxDiffPercent *float64 `json:"outlier_max_diff_percent,omitempty"`
	YieldDispPercent      *float64 `json:"yield_disp_percent,omitempty"`
	BreakDispPercent      *float64 `json:"break_disp_percent,omitempty"`
	DetectBreak           *bool    `json:"detect_break,omitempty"`

	// Reduction
	FlushTrailingCycle *bool `json:"flush_trailing_cycle,omitempty"`

	// Batch
	Workers          *int  `json:"workers,omitempty"`
	Plots            *bool `json:"plots,omitempty"`
	KeepIntermediate *bool `json:"keep_intermediate,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyAnalysisConfig returns an AnalysisConfig with all fields set to nil.
func EmptyAnalysisConfig() *AnalysisConfig {
	return &AnalysisConfig{}
}

// LoadAnalysisConfig loads an AnalysisConfig from a JSON file.
// The file must have a .json extension and be under 1MB. Fields omitted
// from the file keep their defaults, so partial configs are safe.
func LoadAnalysisConfig(path string) (*AnalysisConfig, error) {
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

	cfg := EmptyAnalysisConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath,
// searching the current directory and its parents up to the repository
// root. Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *AnalysisConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/fatigue/*/
		"../../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadAnalysisConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *AnalysisConfig) Validate() error {
	nonNegative := []struct {
		name string
		v    *float64
	}{
		{"load_tolerance_percent", c.LoadTolerancePercent},
		{"min_std", c.MinStd},
		{"outlier_max_diff_percent", c.OutlierMaxDiffPercent},
		{"yield_disp_percent", c.YieldDispPercent},
		{"break_disp_percent", c.BreakDispPercent},
	}
	for _, f := range nonNegative {
		if f.v != nil && *f.v < 0 {
			return fmt.Errorf("%s must be non-negative, got %f", f.name, *f.v)
		}
	}

	if c.BufferSize != nil && *c.BufferSize < 1 {
		return fmt.Errorf("buffer_size must be at least 1, got %d", *c.BufferSize)
	}
	if c.StdPolicy != nil {
		switch l3preload.StdPolicy(*c.StdPolicy) {
		case l3preload.StdPolicyBoth, l3preload.StdPolicyMean:
		default:
			return fmt.Errorf("std_policy must be %q or %q, got %q", l3preload.StdPolicyBoth, l3preload.StdPolicyMean, *c.StdPolicy)
		}
	}
	if c.Workers != nil && *c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", *c.Workers)
	}
	return nil
}

// GetLoadTolerancePercent returns the preload load tolerance in percent.
func (c *AnalysisConfig) GetLoadTolerancePercent() float64 {
	if c.LoadTolerancePercent == nil {
		return defaultLoadTolerancePercent
	}
	return *c.LoadTolerancePercent
}

// GetMinStd returns the preload variability ceiling.
func (c *AnalysisConfig) GetMinStd() float64 {
	if c.MinStd == nil {
		return defaultMinStd
	}
	return *c.MinStd
}

// GetBufferSize returns the preload window length.
func (c *AnalysisConfig) GetBufferSize() int {
	if c.BufferSize == nil {
		return defaultBufferSize
	}
	return *c.BufferSize
}

// GetStdPolicy returns how the two channel deviations are gated.
func (c *AnalysisConfig) GetStdPolicy() l3preload.StdPolicy {
	if c.StdPolicy == nil {
		return defaultStdPolicy
	}
	return l3preload.StdPolicy(*c.StdPolicy)
}

// GetOutlierMaxDiffPercent returns the glitch threshold.
func (c *AnalysisConfig) GetOutlierMaxDiffPercent() float64 {
	if c.OutlierMaxDiffPercent == nil {
		return defaultOutlierMaxDiffPercent
	}
	return *c.OutlierMaxDiffPercent
}

// GetYieldDispPercent returns the yield point threshold.
func (c *AnalysisConfig) GetYieldDispPercent() float64 {
	if c.YieldDispPercent == nil {
		return defaultYieldDispPercent
	}
	return *c.YieldDispPercent
}

// GetBreakDispPercent returns the breaking point threshold.
func (c *AnalysisConfig) GetBreakDispPercent() float64 {
	if c.BreakDispPercent == nil {
		return defaultBreakDispPercent
	}
	return *c.BreakDispPercent
}

// GetDetectBreak reports whether the breaking point is searched for.
func (c *AnalysisConfig) GetDetectBreak() bool {
	if c.DetectBreak == nil {
		return true
	}
	return *c.DetectBreak
}

// GetFlushTrailingCycle reports whether the last cycle group is emitted.
func (c *AnalysisConfig) GetFlushTrailingCycle() bool {
	if c.FlushTrailingCycle == nil {
		return true
	}
	return *c.FlushTrailingCycle
}

// GetWorkers returns the number of specimens analysed concurrently.
func (c *AnalysisConfig) GetWorkers() int {
	if c.Workers == nil {
		return defaultWorkers
	}
	return *c.Workers
}

// GetPlots reports whether diagnostic charts are written.
func (c *AnalysisConfig) GetPlots() bool {
	if c.Plots == nil {
		return false
	}
	return *c.Plots
}

// GetKeepIntermediate reports whether intermediate files are kept.
func (c *AnalysisConfig) GetKeepIntermediate() bool {
	if c.KeepIntermediate == nil {
		return false
	}
	return *c.KeepIntermediate
}

// PipelineParams converts the configuration into pipeline parameters for
// a specimen loaded at expectedLoad.
func (c *AnalysisConfig) PipelineParams(expectedLoad float64) pipeline.Params {
	return pipeline.Params{
		ExpectedLoad:          expectedLoad,
		LoadTolerancePercent:  c.GetLoadTolerancePercent(),
		MinStd:                c.GetMinStd(),
		BufferSize:            c.GetBufferSize(),
		StdPolicy:             c.GetStdPolicy(),
		OutlierMaxDiffPercent: c.GetOutlierMaxDiffPercent(),
		YieldDispPercent:      c.GetYieldDispPercent(),
		BreakDispPercent:      c.GetBreakDispPercent(),
		DetectBreak:           c.GetDetectBreak(),
		FlushTrailing:         c.GetFlushTrailingCycle(),
		KeepIntermediate:      c.GetKeepIntermediate(),
	}
}
