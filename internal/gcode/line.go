// Package gcode rewrites a toolpath so that every linear move follows a
// measured bed surface.
//
// Only G0 and G1 are interpreted. Every other line is copied through
// unchanged and never affects the tracked printer position.
package gcode

import (
	"math"
	"strconv"
	"strings"
)

// Motion opcodes that are rewritten.
const (
	RapidMove  = "G0"
	LinearMove = "G1"
)

// ExcludeObjectMarker marks firmware object-exclusion lines, which are
// always passed through.
const ExcludeObjectMarker = "EXCLUDE_OBJECT"

// MotionLine is one parsed G0/G1 instruction. A Has flag is set when the
// letter appeared with a finite numeric value. Letters whose value did not
// parse, or parsed to NaN or an infinity, are kept verbatim in Raw, keyed by
// the upper-case letter.
type MotionLine struct {
	Command string

	X, Y, Z, E, F                float64
	HasX, HasY, HasZ, HasE, HasF bool

	Raw map[string]string
}

// IsPassthrough reports whether line must be copied to the output as is:
// blank, a comment, an M or T command, or an object-exclusion line.
func IsPassthrough(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, ";") {
		return true
	}
	if trimmed[0] == 'M' || trimmed[0] == 'T' {
		return true
	}
	return strings.Contains(line, ExcludeObjectMarker)
}

// IsMotion reports whether command is one of the rewritten opcodes.
func IsMotion(command string) bool {
	return command == RapidMove || command == LinearMove
}

// ParseLine splits a non-passthrough line into its command and X, Y, Z, E
// and F parameters. Parsing stops at the first token that starts with ';'.
// Other letters are ignored.
func ParseLine(line string) MotionLine {
	tokens := strings.Fields(line)
	if len(tokens) == 0 {
		return MotionLine{}
	}
	ml := MotionLine{Command: tokens[0]}
	for _, token := range tokens[1:] {
		if strings.HasPrefix(token, ";") {
			break
		}
		letter := strings.ToUpper(token[:1])
		raw := token[1:]
		val, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(val) || math.IsInf(val, 0) {
			if isAxis(letter) {
				ml.setRaw(letter, raw)
			}
			continue
		}
		switch letter {
		case "X":
			ml.X, ml.HasX = val, true
		case "Y":
			ml.Y, ml.HasY = val, true
		case "Z":
			ml.Z, ml.HasZ = val, true
		case "E":
			ml.E, ml.HasE = val, true
		case "F":
			ml.F, ml.HasF = val, true
		default:
			continue
		}
		delete(ml.Raw, letter)
	}
	return ml
}

func isAxis(letter string) bool {
	switch letter {
	case "X", "Y", "Z", "E", "F":
		return true
	}
	return false
}

func (ml *MotionLine) setRaw(letter, raw string) {
	if ml.Raw == nil {
		ml.Raw = make(map[string]string)
	}
	ml.Raw[letter] = raw
	switch letter {
	case "X":
		ml.HasX = false
	case "Y":
		ml.HasY = false
	case "Z":
		ml.HasZ = false
	case "E":
		ml.HasE = false
	case "F":
		ml.HasF = false
	}
}

// emitsF reports whether F appeared on the source line in any form.
func (ml MotionLine) emitsF() bool {
	_, raw := ml.Raw["F"]
	return ml.HasF || raw
}

// FormatLine renders a motion line for one segment. Parameters are written
// in letter order E, F, X, Y, Z with five decimals; a letter with a raw
// fallback is written with that literal instead. F is written only when the
// source line carried it.
func FormatLine(src MotionLine, p Position) string {
	var b strings.Builder
	b.WriteString(src.Command)
	write := func(letter string, v float64) {
		b.WriteByte(' ')
		b.WriteString(letter)
		if raw, ok := src.Raw[letter]; ok {
			b.WriteString(raw)
			return
		}
		b.WriteString(strconv.FormatFloat(v, 'f', 5, 64))
	}
	write("E", p.E)
	if src.emitsF() {
		write("F", src.F)
	}
	write("X", p.X)
	write("Y", p.Y)
	write("Z", p.Z)
	return b.String()
}
