package gcode

import "math"

// MaxSplitSteps caps the points SplitMove produces for one move.
const MaxSplitSteps = 1 << 16

// SplitMove divides the straight move from start to end into
// ceil(d/maxDist) equal steps, where d is the XY distance, at most
// MaxSplitSteps. X, Y, Z and E are interpolated linearly; the last step is
// end. A move no longer than maxDist, one with no XY travel, or any move
// when maxDist is not positive, is returned as the single point end.
func SplitMove(start, end Position, maxDist float64) []Position {
	dx, dy := end.X-start.X, end.Y-start.Y
	dist := math.Hypot(dx, dy)
	if dist == 0 || dist <= maxDist || !(maxDist > 0) {
		return []Position{end}
	}

	steps := MaxSplitSteps
	if ratio := math.Ceil(dist / maxDist); ratio < MaxSplitSteps {
		steps = int(ratio)
	} else {
		opsf("split: %.6g mm move needs %.6g steps, capped at %d", dist, ratio, MaxSplitSteps)
	}
	out := make([]Position, steps)
	for i := 1; i < steps; i++ {
		t := float64(i) / float64(steps)
		out[i-1] = Position{
			X: start.X + t*dx,
			Y: start.Y + t*dy,
			Z: start.Z + t*(end.Z-start.Z),
			E: start.E + t*(end.E-start.E),
		}
	}
	out[steps-1] = end
	return out
}
