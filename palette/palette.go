package palette

import (
	"fmt"
	"image/color"
	"sort"
	"strconv"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
)

// Stop pins a colour to a normalized position in [0, 1].
type Stop struct {
	Pos   float64
	Color colorful.Color
}

// Palette is an ordered stop table. Values are read-only after construction and
// safe for concurrent use.
type Palette struct {
	stops []Stop
}

// Iron is the default heat ramp, cold (black) through purple, red and yellow to
// hot (white). Red and green never decrease from one stop to the next, so both
// encode intensity.
var Iron = MustNew(
	Stop{0.00, mustHex("#000000")},
	Stop{0.15, mustHex("#20008c")},
	Stop{0.35, mustHex("#91009b")},
	Stop{0.55, mustHex("#e13228")},
	Stop{0.75, mustHex("#fa9600")},
	Stop{0.90, mustHex("#ffdc28")},
	Stop{1.00, mustHex("#ffffff")},
)

// Grayscale maps the coldest reading to black and the hottest to white.
var Grayscale = MustNew(
	Stop{0, colorful.Color{R: 0, G: 0, B: 0}},
	Stop{1, colorful.Color{R: 1, G: 1, B: 1}},
)

// New validates stops and returns a palette. Positions must be strictly
// increasing, start at 0 and end at 1.
func New(stops ...Stop) (*Palette, error) {
	if len(stops) < 2 {
		return nil, fmt.Errorf("palette needs at least 2 stops, got %d", len(stops))
	}
	if stops[0].Pos != 0 || stops[len(stops)-1].Pos != 1 {
		return nil, fmt.Errorf("palette must span [0, 1], got [%g, %g]", stops[0].Pos, stops[len(stops)-1].Pos)
	}
	for i := 1; i < len(stops); i++ {
		if stops[i].Pos <= stops[i-1].Pos {
			return nil, fmt.Errorf("stop %d at %g is not after stop %d at %g", i, stops[i].Pos, i-1, stops[i-1].Pos)
		}
	}
	out := make([]Stop, len(stops))
	copy(out, stops)
	return &Palette{stops: out}, nil
}

// MustNew is like New but panics on an invalid table.
func MustNew(stops ...Stop) *Palette {
	p, err := New(stops...)
	if err != nil {
		panic(err)
	}
	return p
}

// ParseStops builds a palette from "pos:#rrggbb" pairs separated by commas,
// e.g. "0:#000000,0.5:#ff0000,1:#ffffff".
func ParseStops(s string) (*Palette, error) {
	var stops []Stop
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		pos, hex, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("invalid stop %q: expected pos:#rrggbb", part)
		}
		p, err := strconv.ParseFloat(strings.TrimSpace(pos), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid stop position %q: %w", pos, err)
		}
		c, err := colorful.Hex(strings.TrimSpace(hex))
		if err != nil {
			return nil, fmt.Errorf("invalid stop colour %q: %w", hex, err)
		}
		stops = append(stops, Stop{Pos: p, Color: c})
	}
	return New(stops...)
}

// Stops returns a copy of the stop table.
func (p *Palette) Stops() []Stop {
	out := make([]Stop, len(p.stops))
	copy(out, p.stops)
	return out
}

// Normalize maps v into [0, 1] relative to [min, max]. A degenerate range maps
// every value to 0.
func Normalize(v, min, max float64) float64 {
	if max == min {
		return 0
	}
	t := (v - min) / (max - min)
	if t < 0 {
		return 0
	}
	if t > 1 {
		return 1
	}
	return t
}

// At returns the colour at normalized position t, interpolating linearly per
// channel between the bracketing stops. A t that falls on a stop returns that
// stop's colour unchanged.
func (p *Palette) At(t float64) colorful.Color {
	if t <= p.stops[0].Pos {
		return p.stops[0].Color
	}
	last := len(p.stops) - 1
	if t >= p.stops[last].Pos {
		return p.stops[last].Color
	}
	// first stop strictly after t; 1 <= i <= last
	i := sort.Search(len(p.stops), func(i int) bool { return p.stops[i].Pos > t })
	lo, hi := p.stops[i-1], p.stops[i]
	if t == lo.Pos {
		return lo.Color
	}
	f := (t - lo.Pos) / (hi.Pos - lo.Pos)
	return lo.Color.BlendRgb(hi.Color, f)
}

// Color maps a reading to an opaque RGBA colour.
func (p *Palette) Color(v, min, max float64) color.RGBA {
	r, g, b := p.At(Normalize(v, min, max)).Clamped().RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 0xff}
}

// Gray maps a reading to a single grey level. Only the red channel of the stops
// is used, so grey tables should keep R == G == B.
func (p *Palette) Gray(v, min, max float64) uint8 {
	r, _, _ := p.At(Normalize(v, min, max)).Clamped().RGB255()
	return r
}

func mustHex(s string) colorful.Color {
	c, err := colorful.Hex(s)
	if err != nil {
		panic(err)
	}
	return c
}
