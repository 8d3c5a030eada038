package gcode

import "fmt"

// ParameterError records a motion parameter whose value was not a finite
// number.
// The value is re-emitted verbatim and processing continues.
type ParameterError struct {
	Line int    `json:"line"`
	Code string `json:"code"`
	Raw  string `json:"raw"`
}

func (e ParameterError) Error() string {
	return fmt.Sprintf("line %d: parameter %s: %q is not a number", e.Line, e.Code, e.Raw)
}

// Stats summarises one compensation pass.
type Stats struct {
	LinesIn     int `json:"lines_in"`
	LinesOut    int `json:"lines_out"`
	Passthrough int `json:"passthrough"`
	// Unhandled counts non-motion commands copied through unchanged.
	Unhandled int `json:"unhandled"`
	Motion    int `json:"motion"`
	Segments  int `json:"segments"`
	Collapsed int `json:"collapsed"`

	ParameterErrors []ParameterError `json:"parameter_errors,omitempty"`

	MinCorrection float64 `json:"min_correction"`
	MaxCorrection float64 `json:"max_correction"`
	// Extrapolated counts segments whose XY lies outside the surface grid.
	Extrapolated int `json:"extrapolated"`
}

func (s *Stats) addCorrection(d float64) {
	if s.Segments == 0 || d < s.MinCorrection {
		s.MinCorrection = d
	}
	if s.Segments == 0 || d > s.MaxCorrection {
		s.MaxCorrection = d
	}
}

// String is a one-line summary for logs.
func (s Stats) String() string {
	return fmt.Sprintf("%d lines in, %d out; %d motion, %d passthrough, %d unhandled; %d segments (%d collapsed, %d extrapolated); correction %.5f..%.5f; %d parameter errors",
		s.LinesIn, s.LinesOut, s.Motion, s.Passthrough, s.Unhandled,
		s.Segments, s.Collapsed, s.Extrapolated,
		s.MinCorrection, s.MaxCorrection, len(s.ParameterErrors))
}
