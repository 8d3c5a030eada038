package bedmesh

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrParse matches every *ParseError via errors.Is.
var ErrParse = errors.New("bed mesh parse error")

// ParseError reports why mesh text could not be turned into a grid. Line is
// 1-based, or 0 when the problem is with the document as a whole.
type ParseError struct {
	Line   int
	Reason string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("bed mesh: line %d: %s", e.Line, e.Reason)
	}
	return "bed mesh: " + e.Reason
}

func (e *ParseError) Is(target error) bool { return target == ErrParse }

// Metadata holds the informational keys of a saved mesh. Only the counts and
// bounds feed the grid; the rest is kept for round-tripping and history.
type Metadata struct {
	Profile  string  `json:"profile,omitempty"`
	XCount   int     `json:"x_count"`
	YCount   int     `json:"y_count"`
	MinX     float64 `json:"min_x"`
	MaxX     float64 `json:"max_x"`
	MinY     float64 `json:"min_y"`
	MaxY     float64 `json:"max_y"`
	MeshXPPS int     `json:"mesh_x_pps"`
	MeshYPPS int     `json:"mesh_y_pps"`
	Algo     string  `json:"algo"`
	Tension  float64 `json:"tension"`
}

// CommentPrefix is stripped from the start of a line before matching; it is
// how the firmware stores mesh profiles inside printer.cfg.
const CommentPrefix = "#*#"

var requiredKeys = []string{"x_count", "y_count", "min_x", "max_x", "min_y", "max_y"}

var (
	headerLine   = regexp.MustCompile(`^\[(.*)\]$`)
	metadataLine = regexp.MustCompile(`^[a-z_]+\s*[:=]`)
)

//go:generate go tool stringer -type=parseState -trimprefix=state -output=parsestate_string.go

type parseState int

const (
	stateHeader parseState = iota
	stateMetadata
	statePoints
)

type parser struct {
	state      parseState
	meta       map[string]string
	metaLine   map[string]int
	rows       [][]float64
	pointsSeen bool
	profile    string
}

// Parse reads a saved bed mesh and returns its grid.
func Parse(text string) (*SurfaceMesh, error) {
	m, _, err := ParseWithMetadata(text)
	return m, err
}

// ParseWithMetadata reads a saved bed mesh and returns its grid along with the
// metadata keys, defaults applied.
//
// Accepted lines, after CommentPrefix and surrounding blanks are removed:
// a bracketed profile header, a version line, "key: value" or "key = value"
// metadata, and a single "points" header followed by y_count rows of x_count
// comma separated heights.
func ParseWithMetadata(text string) (*SurfaceMesh, Metadata, error) {
	p := &parser{
		state:    stateHeader,
		meta:     make(map[string]string),
		metaLine: make(map[string]int),
	}
	for i, raw := range strings.Split(text, "\n") {
		if err := p.line(i+1, raw); err != nil {
			return nil, Metadata{}, err
		}
	}
	return p.finish()
}

func (p *parser) line(n int, raw string) error {
	line := strings.TrimSpace(raw)
	if strings.HasPrefix(line, CommentPrefix) {
		line = strings.TrimSpace(line[len(CommentPrefix):])
	}
	if line == "" {
		return nil
	}

	switch {
	case strings.HasPrefix(line, "points"):
		if p.pointsSeen {
			return &ParseError{Line: n, Reason: fmt.Sprintf("second points section while in %s", p.state)}
		}
		p.pointsSeen = true
		p.state = statePoints
		return nil
	case headerLine.MatchString(line):
		if p.profile == "" {
			p.profile = strings.TrimSpace(headerLine.FindStringSubmatch(line)[1])
		}
		p.state = stateHeader
		return nil
	case strings.HasPrefix(line, "version"):
		p.state = stateMetadata
		return nil
	case metadataLine.MatchString(line):
		sep := strings.IndexAny(line, ":=")
		key := strings.TrimSpace(line[:sep])
		p.meta[key] = strings.TrimSpace(line[sep+1:])
		p.metaLine[key] = n
		p.state = stateMetadata
		return nil
	}

	if p.state != statePoints {
		// Anything else outside the points block is not ours to interpret.
		return nil
	}
	return p.row(n, line)
}

func (p *parser) row(n int, line string) error {
	cells := strings.Split(line, ",")
	values := make([]float64, len(cells))
	for i, cell := range cells {
		v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
		if err != nil {
			return &ParseError{Line: n, Reason: fmt.Sprintf("column %d: non-numeric height %q", i+1, strings.TrimSpace(cell))}
		}
		values[i] = v
	}
	p.rows = append(p.rows, values)
	return nil
}

func (p *parser) finish() (*SurfaceMesh, Metadata, error) {
	for _, key := range requiredKeys {
		if _, ok := p.meta[key]; !ok {
			return nil, Metadata{}, &ParseError{Reason: fmt.Sprintf("missing required key %q", key)}
		}
	}

	meta := Metadata{
		Profile:  p.profile,
		MeshXPPS: 2,
		MeshYPPS: 2,
		Algo:     "bicubic",
		Tension:  0.2,
	}
	var err error
	if meta.XCount, err = p.count("x_count"); err != nil {
		return nil, Metadata{}, err
	}
	if meta.YCount, err = p.count("y_count"); err != nil {
		return nil, Metadata{}, err
	}
	for _, b := range []struct {
		key string
		dst *float64
	}{
		{"min_x", &meta.MinX}, {"max_x", &meta.MaxX},
		{"min_y", &meta.MinY}, {"max_y", &meta.MaxY},
	} {
		if *b.dst, err = p.float(b.key); err != nil {
			return nil, Metadata{}, err
		}
	}
	if _, ok := p.meta["mesh_x_pps"]; ok {
		if meta.MeshXPPS, err = p.count("mesh_x_pps"); err != nil {
			return nil, Metadata{}, err
		}
	}
	if _, ok := p.meta["mesh_y_pps"]; ok {
		if meta.MeshYPPS, err = p.count("mesh_y_pps"); err != nil {
			return nil, Metadata{}, err
		}
	}
	if v, ok := p.meta["algo"]; ok {
		meta.Algo = v
	}
	if _, ok := p.meta["tension"]; ok {
		if meta.Tension, err = p.float("tension"); err != nil {
			return nil, Metadata{}, err
		}
	}

	if !p.pointsSeen {
		return nil, Metadata{}, &ParseError{Reason: "no points section"}
	}
	if len(p.rows) != meta.YCount {
		return nil, Metadata{}, &ParseError{Reason: fmt.Sprintf("points has %d rows, y_count is %d", len(p.rows), meta.YCount)}
	}
	for i, row := range p.rows {
		if len(row) != meta.XCount {
			return nil, Metadata{}, &ParseError{Reason: fmt.Sprintf("points row %d has %d values, x_count is %d", i+1, len(row), meta.XCount)}
		}
	}

	mesh, err := New(
		Linspace(meta.MinX, meta.MaxX, meta.XCount),
		Linspace(meta.MinY, meta.MaxY, meta.YCount),
		p.rows,
	)
	if err != nil {
		return nil, Metadata{}, &ParseError{Reason: err.Error()}
	}
	return mesh, meta, nil
}

func (p *parser) float(key string) (float64, error) {
	v, err := strconv.ParseFloat(p.meta[key], 64)
	if err != nil {
		return 0, &ParseError{Line: p.metaLine[key], Reason: fmt.Sprintf("%s: not a number: %q", key, p.meta[key])}
	}
	return v, nil
}

func (p *parser) count(key string) (int, error) {
	v, err := p.float(key)
	if err != nil {
		return 0, err
	}
	if v < 1 || v != float64(int(v)) {
		return 0, &ParseError{Line: p.metaLine[key], Reason: fmt.Sprintf("%s: want a positive integer, got %q", key, p.meta[key])}
	}
	return int(v), nil
}
