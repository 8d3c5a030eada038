package gcode

import "math"

// Segment is one emitted point of a move. Z is corrected; NominalZ is the
// linearly interpolated height before correction.
type Segment struct {
	Position
	NominalZ float64
}

// Correction is the height added to the segment.
func (s Segment) Correction() float64 { return s.Z - s.NominalZ }

// CollapseSegments drops points inside near-flat runs. Walking in order, a
// segment whose Z is within eps of the last kept segment replaces it;
// otherwise it is kept. The result holds the last segment of every run.
func CollapseSegments(segs []Segment, eps float64) []Segment {
	if len(segs) == 0 {
		return nil
	}
	kept := make([]Segment, 1, len(segs))
	kept[0] = segs[0]
	for _, s := range segs[1:] {
		last := &kept[len(kept)-1]
		if math.Abs(s.Z-last.Z) <= eps {
			*last = s
			continue
		}
		kept = append(kept, s)
	}
	return kept
}
