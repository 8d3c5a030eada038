package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"path/filepath"

	"github.com/banshee-data/bedmesh/internal/fsutil"
)

// DefaultConfigPath is the path to the canonical defaults file.
const DefaultConfigPath = "config/bedmesh.defaults.json"

// ErrConfig matches every *ConfigError via errors.Is.
var ErrConfig = errors.New("invalid configuration")

// ConfigError names the offending key and what is wrong with its value.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s %s", e.Field, e.Reason)
}

func (e *ConfigError) Is(target error) bool { return target == ErrConfig }

// Accepted string values.
const (
	SmoothFull   = "full"
	SmoothDamped = "damped"

	InterpolationExtended = "extended"
	InterpolationInterior = "interior"

	BoundaryNotAKnot = "not-a-knot"
	BoundaryNatural  = "natural"
)

// Config is the root configuration for every pipeline stage and the G-code
// compensator. Nil fields fall back to the defaults returned by the Get*
// methods, so partial files are safe.
type Config struct {
	// Smoothing
	SmoothMode       *string  `json:"smooth_mode,omitempty"`
	SmoothIterations *int     `json:"smooth_iterations,omitempty"`
	SmoothLambda     *float64 `json:"smooth_lambda,omitempty"`

	// Dome compensation; a zero fraction disables the stage
	DomeAmplitude    *float64 `json:"dome_amplitude,omitempty"`
	DomeCompensation *float64 `json:"dome_compensation,omitempty"`

	// Interpolation
	InterpolationMode *string  `json:"interpolation_mode,omitempty"`
	Resolution        *int     `json:"resolution,omitempty"`
	EdgeOffset        *float64 `json:"edge_offset,omitempty"`
	Boundary          *string  `json:"boundary,omitempty"`

	// G-code rewriting
	MoveCheckDistance *float64 `json:"move_check_distance,omitempty"`
	SplitDeltaZ       *float64 `json:"split_delta_z,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// Float64 returns a pointer to v, for building a Config in code.
func Float64(v float64) *float64 { return ptrFloat64(v) }

// Int returns a pointer to v.
func Int(v int) *int { return ptrInt(v) }

// String returns a pointer to v.
func String(v string) *string { return ptrString(v) }

// EmptyConfig returns a Config with all fields set to nil.
func EmptyConfig() *Config {
	return &Config{}
}

// DefaultConfig returns a Config with every field set to its default.
func DefaultConfig() *Config {
	e := EmptyConfig()
	return &Config{
		SmoothMode:        ptrString(e.GetSmoothMode()),
		SmoothIterations:  ptrInt(e.GetSmoothIterations()),
		SmoothLambda:      ptrFloat64(e.GetSmoothLambda()),
		DomeAmplitude:     ptrFloat64(e.GetDomeAmplitude()),
		DomeCompensation:  ptrFloat64(e.GetDomeCompensation()),
		InterpolationMode: ptrString(e.GetInterpolationMode()),
		Resolution:        ptrInt(e.GetResolution()),
		EdgeOffset:        ptrFloat64(e.GetEdgeOffset()),
		Boundary:          ptrString(e.GetBoundary()),
		MoveCheckDistance: ptrFloat64(e.GetMoveCheckDistance()),
		SplitDeltaZ:       ptrFloat64(e.GetSplitDeltaZ()),
	}
}

// LoadConfig loads a Config from a JSON file on disk.
// The file must have a .json extension and be at most 1MB.
func LoadConfig(path string) (*Config, error) {
	return LoadConfigFS(fsutil.OSFileSystem{}, path)
}

// LoadConfigFS is LoadConfig reading through fsys.
func LoadConfigFS(fsys fsutil.FileSystem, path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := fsys.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := fsys.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a JSON document. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := EmptyConfig()
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching upward from the
// working directory. Panics if the file cannot be loaded; intended for tests.
func MustLoadDefaultConfig() *Config {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/config/
		"../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Merge returns a copy of c with every non-nil field of o applied on top.
func (c *Config) Merge(o *Config) *Config {
	out := *c
	if o == nil {
		return &out
	}
	if o.SmoothMode != nil {
		out.SmoothMode = o.SmoothMode
	}
	if o.SmoothIterations != nil {
		out.SmoothIterations = o.SmoothIterations
	}
	if o.SmoothLambda != nil {
		out.SmoothLambda = o.SmoothLambda
	}
	if o.DomeAmplitude != nil {
		out.DomeAmplitude = o.DomeAmplitude
	}
	if o.DomeCompensation != nil {
		out.DomeCompensation = o.DomeCompensation
	}
	if o.InterpolationMode != nil {
		out.InterpolationMode = o.InterpolationMode
	}
	if o.Resolution != nil {
		out.Resolution = o.Resolution
	}
	if o.EdgeOffset != nil {
		out.EdgeOffset = o.EdgeOffset
	}
	if o.Boundary != nil {
		out.Boundary = o.Boundary
	}
	if o.MoveCheckDistance != nil {
		out.MoveCheckDistance = o.MoveCheckDistance
	}
	if o.SplitDeltaZ != nil {
		out.SplitDeltaZ = o.SplitDeltaZ
	}
	return &out
}

// Validate checks every set field. The first problem found is returned as a
// *ConfigError.
func (c *Config) Validate() error {
	if c.SmoothMode != nil && *c.SmoothMode != SmoothFull && *c.SmoothMode != SmoothDamped {
		return &ConfigError{Field: "smooth_mode", Reason: fmt.Sprintf("must be %q or %q, got %q", SmoothFull, SmoothDamped, *c.SmoothMode)}
	}
	if c.SmoothIterations != nil && *c.SmoothIterations < 0 {
		return &ConfigError{Field: "smooth_iterations", Reason: fmt.Sprintf("must be non-negative, got %d", *c.SmoothIterations)}
	}
	if c.SmoothLambda != nil && !(*c.SmoothLambda >= 0 && *c.SmoothLambda <= 1) {
		return &ConfigError{Field: "smooth_lambda", Reason: fmt.Sprintf("must be between 0 and 1, got %g", *c.SmoothLambda)}
	}
	if c.DomeCompensation != nil && !(*c.DomeCompensation >= 0 && *c.DomeCompensation <= 1) {
		return &ConfigError{Field: "dome_compensation", Reason: fmt.Sprintf("must be between 0 and 1, got %g", *c.DomeCompensation)}
	}
	if c.DomeAmplitude != nil && (math.IsNaN(*c.DomeAmplitude) || math.IsInf(*c.DomeAmplitude, 0)) {
		return &ConfigError{Field: "dome_amplitude", Reason: fmt.Sprintf("must be finite, got %g", *c.DomeAmplitude)}
	}
	if c.InterpolationMode != nil && *c.InterpolationMode != InterpolationExtended && *c.InterpolationMode != InterpolationInterior {
		return &ConfigError{Field: "interpolation_mode", Reason: fmt.Sprintf("must be %q or %q, got %q", InterpolationExtended, InterpolationInterior, *c.InterpolationMode)}
	}
	if c.Resolution != nil && *c.Resolution < 2 {
		return &ConfigError{Field: "resolution", Reason: fmt.Sprintf("must be at least 2, got %d", *c.Resolution)}
	}
	if c.EdgeOffset != nil && !(*c.EdgeOffset >= 0 && !math.IsInf(*c.EdgeOffset, 1)) {
		return &ConfigError{Field: "edge_offset", Reason: fmt.Sprintf("must be finite and non-negative, got %g", *c.EdgeOffset)}
	}
	if c.Boundary != nil && *c.Boundary != BoundaryNotAKnot && *c.Boundary != BoundaryNatural {
		return &ConfigError{Field: "boundary", Reason: fmt.Sprintf("must be %q or %q, got %q", BoundaryNotAKnot, BoundaryNatural, *c.Boundary)}
	}
	if c.MoveCheckDistance != nil && !(*c.MoveCheckDistance > 0 && !math.IsInf(*c.MoveCheckDistance, 1)) {
		return &ConfigError{Field: "move_check_distance", Reason: fmt.Sprintf("must be finite and positive, got %g", *c.MoveCheckDistance)}
	}
	if c.SplitDeltaZ != nil && !(*c.SplitDeltaZ >= 0) {
		return &ConfigError{Field: "split_delta_z", Reason: fmt.Sprintf("must be non-negative, got %g", *c.SplitDeltaZ)}
	}
	return nil
}

// GetSmoothMode returns the smooth_mode value or the default.
func (c *Config) GetSmoothMode() string {
	if c.SmoothMode == nil {
		return SmoothDamped // default
	}
	return *c.SmoothMode
}

// GetSmoothIterations returns the smooth_iterations value or the default.
func (c *Config) GetSmoothIterations() int {
	if c.SmoothIterations == nil {
		return 1 // default
	}
	return *c.SmoothIterations
}

// GetSmoothLambda returns the smooth_lambda value or the default.
func (c *Config) GetSmoothLambda() float64 {
	if c.SmoothLambda == nil {
		return 0.6 // default
	}
	return *c.SmoothLambda
}

// GetDomeAmplitude returns the dome_amplitude value or the default.
func (c *Config) GetDomeAmplitude() float64 {
	if c.DomeAmplitude == nil {
		return 0.3 // default
	}
	return *c.DomeAmplitude
}

// GetDomeCompensation returns the dome_compensation value or the default.
func (c *Config) GetDomeCompensation() float64 {
	if c.DomeCompensation == nil {
		return 0 // default
	}
	return *c.DomeCompensation
}

// GetInterpolationMode returns the interpolation_mode value or the default.
func (c *Config) GetInterpolationMode() string {
	if c.InterpolationMode == nil {
		return InterpolationExtended // default
	}
	return *c.InterpolationMode
}

// GetResolution returns the resolution value or the default.
func (c *Config) GetResolution() int {
	if c.Resolution == nil {
		return 100 // default
	}
	return *c.Resolution
}

// GetEdgeOffset returns the edge_offset value or the default.
func (c *Config) GetEdgeOffset() float64 {
	if c.EdgeOffset == nil {
		return 0 // default
	}
	return *c.EdgeOffset
}

// GetBoundary returns the boundary value or the default.
func (c *Config) GetBoundary() string {
	if c.Boundary == nil {
		return BoundaryNotAKnot // default
	}
	return *c.Boundary
}

// GetMoveCheckDistance returns the move_check_distance value or the default.
func (c *Config) GetMoveCheckDistance() float64 {
	if c.MoveCheckDistance == nil {
		return 5.0 // default
	}
	return *c.MoveCheckDistance
}

// GetSplitDeltaZ returns the split_delta_z value or the default.
func (c *Config) GetSplitDeltaZ() float64 {
	if c.SplitDeltaZ == nil {
		return 0.01 // default
	}
	return *c.SplitDeltaZ
}

// JSON returns the fully resolved configuration, defaults filled in.
func (c *Config) JSON() ([]byte, error) {
	return json.Marshal(DefaultConfig().Merge(c))
}
