package gcode

// Position is an absolute toolhead position plus extruder coordinate.
type Position struct {
	X, Y, Z, E float64
}

// PrinterState is the last nominal position reached by a motion line. F is
// carried only once some line has set it.
type PrinterState struct {
	Position
	F    float64
	HasF bool
}

// Resolve returns the absolute target of ml: each axis present on the line
// replaces the current value, the rest are carried over.
func (s PrinterState) Resolve(ml MotionLine) Position {
	p := s.Position
	if ml.HasX {
		p.X = ml.X
	}
	if ml.HasY {
		p.Y = ml.Y
	}
	if ml.HasZ {
		p.Z = ml.Z
	}
	if ml.HasE {
		p.E = ml.E
	}
	return p
}

// Advance moves the state to target, the uncorrected position of ml.
func (s PrinterState) Advance(ml MotionLine, target Position) PrinterState {
	s.Position = target
	if ml.HasF {
		s.F, s.HasF = ml.F, true
	}
	return s
}
