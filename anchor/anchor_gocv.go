//go:build gocv

package anchor

import (
	"fmt"
	"image"
	"image/color"

	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"thermal-render/convert"
	"thermal-render/frame"
)

// Available reports whether detection is compiled in.
const Available = true

// Render renders f in colour and keeps it only when enough markers are found.
func (r Renderer) Render(f *frame.Frame) (image.Image, error) {
	rgba := r.Palettes.RenderColor(f)
	bgr, err := imageToMat(rgba)
	if err != nil {
		return nil, err
	}
	defer bgr.Close()

	circles := r.detect(bgr)
	if len(circles) < MinCircles {
		return nil, fmt.Errorf("%d circles found, need %d: %w", len(circles), MinCircles, convert.ErrSkipped)
	}
	r.logger().Debug("anchors found", zap.String("path", f.Source), zap.Int("circles", len(circles)))

	if !r.Draw {
		return rgba, nil
	}
	black := color.RGBA{0, 0, 0, 255}
	white := color.RGBA{255, 255, 255, 255}
	for _, c := range circles {
		center := image.Pt(int(c.X+0.5), int(c.Y+0.5))
		gocv.Circle(&bgr, center, int(c.R+0.5), black, 1)
		gocv.Circle(&bgr, center, 2, white, 1)
	}
	// Colours are symmetric so the BGR channel order does not matter here.
	return bgr.ToImage()
}

func (r Renderer) detect(bgr gocv.Mat) []Circle {
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(bgr, &gray, gocv.ColorBGRToGray)

	circles := gocv.NewMat()
	defer circles.Close()
	p := r.params()
	gocv.HoughCirclesWithParams(gray, &circles, gocv.HoughGradient,
		p.DP, p.MinDist, p.Param1, p.Param2, p.MinRadius, p.MaxRadius)

	if circles.Empty() || circles.Cols() == 0 {
		return nil
	}
	out := make([]Circle, circles.Cols())
	for i := range out {
		out[i] = Circle{
			X: circles.GetFloatAt(0, i*3),
			Y: circles.GetFloatAt(0, i*3+1),
			R: circles.GetFloatAt(0, i*3+2),
		}
	}
	return out
}

func imageToMat(rgba *image.RGBA) (gocv.Mat, error) {
	b := rgba.Bounds()
	mat, err := gocv.NewMatFromBytes(b.Dy(), b.Dx(), gocv.MatTypeCV8UC4, rgba.Pix)
	if err != nil {
		return gocv.Mat{}, err
	}
	defer mat.Close()

	bgr := gocv.NewMat()
	gocv.CvtColor(mat, &bgr, gocv.ColorRGBAToBGR)
	return bgr, nil
}
