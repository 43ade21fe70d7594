// Package frame holds one thermal reading matrix and renders it to a raster.
package frame

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"thermal-render/palette"
)

// Frame is an immutable temperature matrix with its extrema cached at
// construction.
type Frame struct {
	// Source identifies where the matrix came from, usually a file path.
	Source string

	m        *mat.Dense
	rows     int
	cols     int
	min, max float64
}

// New wraps rows*cols readings stored row-major. data is owned by the Frame
// afterwards.
func New(source string, rows, cols int, data []float64) (*Frame, error) {
	if rows < 1 || cols < 1 {
		return nil, fmt.Errorf("invalid matrix dimensions %dx%d", rows, cols)
	}
	if len(data) != rows*cols {
		return nil, fmt.Errorf("matrix %dx%d needs %d readings, got %d", rows, cols, rows*cols, len(data))
	}
	return &Frame{
		Source: source,
		m:      mat.NewDense(rows, cols, data),
		rows:   rows,
		cols:   cols,
		min:    floats.Min(data),
		max:    floats.Max(data),
	}, nil
}

// FromRows builds a frame from a slice of equal length rows.
func FromRows(source string, rows [][]float64) (*Frame, error) {
	if len(rows) == 0 {
		return nil, errors.New("no rows")
	}
	cols := len(rows[0])
	data := make([]float64, 0, len(rows)*cols)
	for i, r := range rows {
		if len(r) != cols {
			return nil, fmt.Errorf("row %d has %d columns, expected %d", i, len(r), cols)
		}
		data = append(data, r...)
	}
	return New(source, len(rows), cols, data)
}

// Dims returns the number of rows and columns.
func (f *Frame) Dims() (rows, cols int) {
	return f.rows, f.cols
}

// At returns the reading at row r, column c.
func (f *Frame) At(r, c int) float64 {
	return f.m.At(r, c)
}

// Min is the coldest reading.
func (f *Frame) Min() float64 { return f.min }

// Max is the hottest reading.
func (f *Frame) Max() float64 { return f.max }

// Spread is Max - Min, the temperature variation across the frame.
func (f *Frame) Spread() float64 { return f.max - f.min }

// Bounds is the raster size of a rendered frame: one pixel per reading, rows
// along y.
func (f *Frame) Bounds() image.Rectangle {
	return image.Rect(0, 0, f.cols, f.rows)
}

// Renderer renders frames with a pair of palettes. The zero value uses
// palette.Iron and palette.Grayscale.
type Renderer struct {
	Color *palette.Palette
	Gray  *palette.Palette
}

// RenderColor maps every reading through the colour palette.
func (r Renderer) RenderColor(f *Frame) *image.RGBA {
	p := r.Color
	if p == nil {
		p = palette.Iron
	}
	dst := image.NewRGBA(f.Bounds())
	raw := f.m.RawMatrix()
	for y := 0; y < f.rows; y++ {
		row := raw.Data[y*raw.Stride : y*raw.Stride+f.cols]
		off := y * dst.Stride
		for x, v := range row {
			c := p.Color(v, f.min, f.max)
			dst.Pix[off+4*x+0] = c.R
			dst.Pix[off+4*x+1] = c.G
			dst.Pix[off+4*x+2] = c.B
			dst.Pix[off+4*x+3] = c.A
		}
	}
	return dst
}

// RenderGray maps every reading through the grey palette.
func (r Renderer) RenderGray(f *Frame) *image.Gray {
	p := r.Gray
	if p == nil {
		p = palette.Grayscale
	}
	dst := image.NewGray(f.Bounds())
	raw := f.m.RawMatrix()
	for y := 0; y < f.rows; y++ {
		row := raw.Data[y*raw.Stride : y*raw.Stride+f.cols]
		off := y * dst.Stride
		for x, v := range row {
			dst.Pix[off+x] = p.Gray(v, f.min, f.max)
		}
	}
	return dst
}

// Mode selects the rendering.
type Mode int

const (
	Color Mode = iota
	Gray
)

func (m Mode) String() string {
	switch m {
	case Color:
		return "color"
	case Gray:
		return "gray"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Name implements convert.Renderer.
func (m Mode) Name() string { return m.String() }

// ColorModel reports the pixel model of images rendered in this mode.
func (m Mode) ColorModel() color.Model {
	if m == Gray {
		return color.GrayModel
	}
	return color.RGBAModel
}

// Render renders f with the default palettes.
func (m Mode) Render(f *Frame) (image.Image, error) {
	return Renderer{}.Render(f, m)
}

// Render renders f in mode m.
func (r Renderer) Render(f *Frame, m Mode) (image.Image, error) {
	switch m {
	case Color:
		return r.RenderColor(f), nil
	case Gray:
		return r.RenderGray(f), nil
	default:
		return nil, fmt.Errorf("unknown render mode %d", int(m))
	}
}

// ParseMode parses "color"/"rgb" and "gray"/"grayscale".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "color", "colour", "rgb", "heat":
		return Color, nil
	case "gray", "grey", "grayscale":
		return Gray, nil
	default:
		return 0, fmt.Errorf("unknown render mode %q", s)
	}
}

// With binds a render mode to r's palettes.
func (r Renderer) With(m Mode) ModeRenderer {
	return ModeRenderer{palettes: r, mode: m}
}

// ModeRenderer renders in a fixed mode with custom palettes.
type ModeRenderer struct {
	palettes Renderer
	mode     Mode
}

func (m ModeRenderer) Name() string { return m.mode.String() }

func (m ModeRenderer) Render(f *Frame) (image.Image, error) {
	return m.palettes.Render(f, m.mode)
}
