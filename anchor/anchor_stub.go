//go:build !gocv

package anchor

import (
	"image"

	"thermal-render/frame"
)

// Available reports whether detection is compiled in.
const Available = false

// Render always fails with ErrUnavailable.
func (r Renderer) Render(*frame.Frame) (image.Image, error) {
	return nil, ErrUnavailable
}

