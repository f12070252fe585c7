package main

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/tiff"

	"github.com/openfluke/pgcu/nn"
)

func TestBandCount(t *testing.T) {
	rect := image.Rect(0, 0, 2, 2)
	opaque := image.NewRGBA(rect)
	for i := 3; i < len(opaque.Pix); i += 4 {
		opaque.Pix[i] = 0xff
	}

	assert.Equal(t, 1, bandCount(image.NewGray(rect)))
	assert.Equal(t, 1, bandCount(image.NewGray16(rect)))
	assert.Equal(t, 3, bandCount(opaque))
	assert.Equal(t, 4, bandCount(image.NewNRGBA(rect)))
}

func TestImageToTensor(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	img.SetNRGBA(0, 0, color.NRGBA{R: 255, G: 0, B: 51, A: 255})
	img.SetNRGBA(1, 0, color.NRGBA{R: 0, G: 102, B: 255, A: 255})

	x := imageToTensor(img)
	assert.Equal(t, []int{1, 3, 1, 2}, x.Shape)
	want := []float32{
		1, 0, // R
		0, 0.4, // G
		0.2, 1, // B
	}
	for i, v := range want {
		assert.InDelta(t, v, x.Data[i], 1e-6, "element %d", i)
	}

	img.SetNRGBA(1, 0, color.NRGBA{})
	x = imageToTensor(img)
	assert.Equal(t, []int{1, 4, 1, 2}, x.Shape)
	assert.Equal(t, float32(1), x.Data[6])
	assert.Equal(t, float32(0), x.Data[7])

	gray := image.NewGray(image.Rect(0, 0, 1, 2))
	gray.SetGray(0, 1, color.Gray{Y: 255})
	g := imageToTensor(gray)
	assert.Equal(t, []int{1, 1, 2, 1}, g.Shape)
	assert.Equal(t, []float32{0, 1}, g.Data)
}

func TestTensorToImage(t *testing.T) {
	x := nn.NewTensorFromSlice([]float32{
		-1, 0.5, // R, clamped low
		2, 1, // G, clamped high
		0, 0.25, // B
	}, 1, 3, 1, 2)

	img, err := tensorToImage(x)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 2, 1), img.Bounds())
	assert.Equal(t, 3, bandCount(img))

	c := color.NRGBA64Model.Convert(img.At(1, 0)).(color.NRGBA64)
	assert.Equal(t, uint16(0x8000), c.R)
	assert.Equal(t, uint16(0xffff), c.G)
	assert.Equal(t, uint16(0x4000), c.B)
	c = color.NRGBA64Model.Convert(img.At(0, 0)).(color.NRGBA64)
	assert.Equal(t, uint16(0), c.R)
	assert.Equal(t, uint16(0xffff), c.G)

	_, err = tensorToImage(nn.NewTensor[float32](1, 2, 1, 1))
	assert.Error(t, err)
}

func TestReadWriteImage(t *testing.T) {
	dir := t.TempDir()
	src := image.NewGray16(image.Rect(0, 0, 3, 2))
	src.SetGray16(2, 1, color.Gray16{Y: 0x1234})

	pngPath := filepath.Join(dir, "a.png")
	require.NoError(t, writePNG(pngPath, src))
	got, err := readImage(pngPath)
	require.NoError(t, err)
	assert.Equal(t, src.Bounds(), got.Bounds())
	assert.Equal(t, uint16(0x1234), color.Gray16Model.Convert(got.At(2, 1)).(color.Gray16).Y)

	tifPath := filepath.Join(dir, "a.tif")
	f, err := os.Create(tifPath)
	require.NoError(t, err)
	require.NoError(t, tiff.Encode(f, src, nil))
	require.NoError(t, f.Close())
	got, err = readImage(tifPath)
	require.NoError(t, err)
	assert.Equal(t, 1, bandCount(got))

	_, err = readImage(filepath.Join(dir, "a.jpg"))
	assert.Error(t, err)
}
