// Package imaging encodes rendered frames.
package imaging

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"strings"

	"github.com/kolesa-team/go-webp/encoder"
	"github.com/kolesa-team/go-webp/webp"
	"github.com/nfnt/resize"
	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	"golang.org/x/image/tiff"

	"thermal-render/mime"
	"thermal-render/pool"
)

// Format is an output image format.
type Format string

const (
	PNG  Format = "png"
	JPEG Format = "jpeg"
	BMP  Format = "bmp"
	TIFF Format = "tiff"
	WebP Format = "webp"
)

// ParseFormat accepts a format name or a common extension, case-insensitive.
func ParseFormat(s string) (Format, error) {
	switch strings.TrimPrefix(strings.ToLower(s), ".") {
	case "", "png":
		return PNG, nil
	case "jpeg", "jpg":
		return JPEG, nil
	case "bmp":
		return BMP, nil
	case "tiff", "tif":
		return TIFF, nil
	case "webp":
		return WebP, nil
	}
	return "", fmt.Errorf("unsupported image format %q", s)
}

// Ext is the file extension, with the leading dot.
func (f Format) Ext() string { return "." + string(f) }

func (f Format) ContentType() string { return mime.ForFormat(string(f)) }

// Encoder turns a rendered frame into file bytes. The zero value writes PNG at
// native size.
type Encoder struct {
	Format Format
	// Quality is used by jpeg and webp, 1-100. 0 means the format default.
	Quality int
	// Scale is an integer upscale factor. 0 and 1 keep one pixel per reading.
	Scale int
}

func (e Encoder) format() Format {
	if e.Format == "" {
		return PNG
	}
	return e.Format
}

func (e Encoder) Ext() string { return e.format().Ext() }

func (e Encoder) ContentType() string { return e.format().ContentType() }

// Validate checks the settings without encoding anything.
func (e Encoder) Validate() error {
	if _, err := ParseFormat(string(e.format())); err != nil {
		return err
	}
	if e.Quality < 0 || e.Quality > 100 {
		return fmt.Errorf("quality %d out of range 0-100", e.Quality)
	}
	if e.Scale < 0 || e.Scale > 64 {
		return fmt.Errorf("scale %d out of range 0-64", e.Scale)
	}
	return nil
}

// Encode scales img and encodes it. Gray images stay single channel for
// formats that support it.
func (e Encoder) Encode(img image.Image) ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	img = Scale(img, e.Scale)

	buf := pool.GetBuffer()
	defer pool.PutBuffer(buf)

	var err error
	switch e.format() {
	case PNG:
		err = png.Encode(buf, img)
	case JPEG:
		q := e.Quality
		if q == 0 {
			q = jpeg.DefaultQuality
		}
		err = jpeg.Encode(buf, img, &jpeg.Options{Quality: q})
	case BMP:
		err = bmp.Encode(buf, img)
	case TIFF:
		err = tiff.Encode(buf, img, &tiff.Options{Compression: tiff.Deflate})
	case WebP:
		q := e.Quality
		if q == 0 {
			q = 90
		}
		var options *encoder.Options
		options, err = encoder.NewLossyEncoderOptions(encoder.PresetDefault, float32(q))
		if err != nil {
			return nil, fmt.Errorf("webp options: %w", err)
		}
		err = webp.Encode(buf, toRGBA(img), options)
	}
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", e.format(), err)
	}
	return pool.Bytes(buf), nil
}

// Scale upscales img by an integer factor with nearest-neighbour sampling, so
// every reading becomes a factor x factor block of one colour.
func Scale(img image.Image, factor int) image.Image {
	if factor <= 1 {
		return img
	}
	b := img.Bounds()
	return resize.Resize(uint(b.Dx()*factor), uint(b.Dy()*factor), img, resize.NearestNeighbor)
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}
