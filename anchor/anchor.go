// Package anchor renders frames that show the circular anchor markers of the
// rig, found with a Hough circle transform. Frames with fewer than MinCircles
// markers are skipped.
//
// Detection needs OpenCV and is compiled in with the "gocv" build tag.
package anchor

import (
	"errors"

	"go.uber.org/zap"

	"thermal-render/frame"
)

// ErrUnavailable is returned when the binary was built without OpenCV.
var ErrUnavailable = errors.New("anchor detection unavailable: built without the gocv tag")

// MinCircles is the number of markers a frame needs to be kept.
const MinCircles = 4

// Params are the Hough gradient parameters.
type Params struct {
	DP        float64
	MinDist   float64
	Param1    float64
	Param2    float64
	MinRadius int
	MaxRadius int
}

// DefaultParams are tuned for 320x240 thermal frames.
var DefaultParams = Params{
	DP:        1,
	MinDist:   10,
	Param1:    100,
	Param2:    22,
	MinRadius: 0,
	MaxRadius: 25,
}

// Circle is one detected marker, in pixels.
type Circle struct {
	X, Y, R float32
}

// Renderer implements convert.Renderer.
type Renderer struct {
	// Draw outlines the markers in black with a white centre.
	Draw bool
	// Params defaults to DefaultParams when zero.
	Params   Params
	Palettes frame.Renderer
	Logger   *zap.Logger
}

func (r Renderer) Name() string { return "anchor" }

func (r Renderer) params() Params {
	if r.Params == (Params{}) {
		return DefaultParams
	}
	return r.Params
}

func (r Renderer) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}
