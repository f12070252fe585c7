package main

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/tiff"

	"github.com/openfluke/pgcu/nn"
)

// readImage decodes a PNG or TIFF file, chosen by extension.
func readImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var img image.Image
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tif", ".tiff":
		img, err = tiff.Decode(f)
	case ".png":
		img, err = png.Decode(f)
	default:
		return nil, fmt.Errorf("%s: unsupported image format, want .png or .tif", path)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

// writePNG encodes img to path.
func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// bandCount maps an image to the number of spectral bands it carries:
// grayscale 1, opaque colour 3, colour with alpha 4.
func bandCount(img image.Image) int {
	switch img.ColorModel() {
	case color.GrayModel, color.Gray16Model:
		return 1
	}
	if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
		return 3
	}
	return 4
}

// imageToTensor converts img to a (1, bands, H, W) tensor scaled to [0, 1].
func imageToTensor(img image.Image) *nn.Tensor[float32] {
	b := img.Bounds()
	h, w := b.Dy(), b.Dx()
	bands := bandCount(img)
	t := nn.NewTensor[float32](1, bands, h, w)
	plane := h * w

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			px := img.At(b.Min.X+x, b.Min.Y+y)
			if bands == 1 {
				t.Data[i] = float32(color.Gray16Model.Convert(px).(color.Gray16).Y) / 0xffff
				continue
			}
			c := color.NRGBA64Model.Convert(px).(color.NRGBA64)
			t.Data[i] = float32(c.R) / 0xffff
			t.Data[plane+i] = float32(c.G) / 0xffff
			t.Data[2*plane+i] = float32(c.B) / 0xffff
			if bands == 4 {
				t.Data[3*plane+i] = float32(c.A) / 0xffff
			}
		}
	}
	return t
}

// tensorToImage converts the first sample of a (B, C, H, W) tensor with 1, 3
// or 4 bands back to an image, clamping values to [0, 1].
func tensorToImage(t *nn.Tensor[float32]) (image.Image, error) {
	_, c, h, w, ok := t.Dims4()
	if !ok {
		return nil, fmt.Errorf("want a (B, C, H, W) tensor, got %v", t.Shape)
	}
	plane := h * w
	at := func(band, i int) uint16 {
		v := t.Data[band*plane+i]
		switch {
		case v <= 0 || math.IsNaN(float64(v)):
			return 0
		case v >= 1:
			return 0xffff
		}
		return uint16(v*0xffff + 0.5)
	}

	rect := image.Rect(0, 0, w, h)
	switch c {
	case 1:
		img := image.NewGray16(rect)
		for i := 0; i < plane; i++ {
			img.SetGray16(i%w, i/w, color.Gray16{Y: at(0, i)})
		}
		return img, nil
	case 3, 4:
		img := image.NewNRGBA64(rect)
		for i := 0; i < plane; i++ {
			px := color.NRGBA64{R: at(0, i), G: at(1, i), B: at(2, i), A: 0xffff}
			if c == 4 {
				px.A = at(3, i)
			}
			img.SetNRGBA64(i%w, i/w, px)
		}
		return img, nil
	default:
		return nil, fmt.Errorf("cannot write %d bands as an image, want 1, 3 or 4", c)
	}
}
