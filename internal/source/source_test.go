package source

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/ivlev/scenereel/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func writePNG(t *testing.T, path string, w, h int, c color.RGBA) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func TestImageFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cover.png")
	writePNG(t, path, 40, 20, color.RGBA{R: 255, A: 255})

	src := ImageFile{Path: path}
	w, h, err := src.Dimensions()
	require.NoError(t, err)
	assert.Equal(t, 40.0, w)
	assert.Equal(t, 20.0, h)

	img, err := src.Render()
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 40, 20), img.Bounds())

	_, err = ImageFile{Path: filepath.Join(t.TempDir(), "missing.png")}.Render()
	assert.Error(t, err)
}

func TestImagesInDir(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "b.png"), 2, 2, color.RGBA{A: 255})
	writePNG(t, filepath.Join(dir, "a.PNG"), 2, 2, color.RGBA{A: 255})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.png"), 0755))

	paths, err := ImagesInDir(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.PNG"), filepath.Join(dir, "b.png")}, paths)
}

func TestPlanesFromDir(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "one.png"), 2, 2, color.RGBA{A: 255})
	writePNG(t, filepath.Join(dir, "two.png"), 2, 2, color.RGBA{A: 255})

	planes, err := PlanesFromDir(dir, 4)
	require.NoError(t, err)
	require.Len(t, planes, 2)
	assert.Equal(t, "one", planes[0].Name)
	assert.Equal(t, [3]float64{-2.5, 0, 0}, planes[0].Position)
	assert.Equal(t, [3]float64{2.5, 0, 0}, planes[1].Position)

	_, err = PlanesFromDir(t.TempDir(), 4)
	assert.Error(t, err)
}

func TestQRCode(t *testing.T) {
	q := QRCode{Content: "https://example.com", Size: 128}
	w, h, err := q.Dimensions()
	require.NoError(t, err)
	assert.Equal(t, 128.0, w)
	assert.Equal(t, 128.0, h)

	img, err := q.Render()
	require.NoError(t, err)
	assert.Equal(t, 128, img.Bounds().Dx())
}

func TestForPlane(t *testing.T) {
	src, err := ForPlane(config.Plane{Name: "a", Image: "a.png"}, "/data", 0)
	require.NoError(t, err)
	assert.Equal(t, ImageFile{Path: filepath.Join("/data", "a.png")}, src)

	src, err = ForPlane(config.Plane{Name: "doc", PDF: "/abs/doc.pdf", Page: 2}, "/data", 200)
	require.NoError(t, err)
	assert.Equal(t, PDFPage{Path: "/abs/doc.pdf", Page: 2, DPI: 200}, src)

	_, err = ForPlane(config.Plane{Name: "empty"}, "", 0)
	assert.Error(t, err)
}

func TestPDFPageMissing(t *testing.T) {
	_, err := PDFPage{Path: filepath.Join(t.TempDir(), "nope.pdf")}.Render()
	assert.Error(t, err)
}

func TestToTexture(t *testing.T) {
	src := image.NewRGBA(image.Rect(10, 10, 410, 210))
	tex := ToTexture(src, 100)
	assert.Equal(t, image.Rect(0, 0, 100, 50), tex.Rect)

	small := image.NewNRGBA(image.Rect(5, 5, 15, 25))
	small.Set(5, 5, color.NRGBA{G: 255, A: 255})
	tex = ToTexture(small, 100)
	assert.Equal(t, image.Rect(0, 0, 10, 20), tex.Rect, "origin moved to zero")
	assert.Equal(t, color.RGBA{G: 255, A: 255}, tex.RGBAAt(0, 0))

	tall := ToTexture(image.NewRGBA(image.Rect(0, 0, 20, 400)), 100)
	assert.Equal(t, image.Rect(0, 0, 5, 100), tall.Rect)
}

func TestLoadTextures(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "cover.png"), 300, 150, color.RGBA{B: 255, A: 255})

	planes := []config.Plane{
		{Name: "cover", Image: "cover.png", Height: 5, Position: [3]float64{1, 2, 3}},
		{Name: "link", QR: "https://example.com"},
	}
	specs, err := LoadTextures(context.Background(), planes, dir, 150, 64, 2, nil)
	require.NoError(t, err)
	require.Len(t, specs, 2)

	assert.Equal(t, "cover", specs[0].Name)
	assert.Equal(t, image.Rect(0, 0, 64, 32), specs[0].Texture.Rect)
	assert.Equal(t, r3.Vec{X: 1, Y: 2, Z: 3}, specs[0].Position)
	assert.Equal(t, 5.0, specs[0].Height)
	assert.Equal(t, "link", specs[1].Name)
	assert.Equal(t, 64, specs[1].Texture.Rect.Dx())
}

func TestLoadTexturesFails(t *testing.T) {
	planes := []config.Plane{{Name: "gone", Image: "gone.png"}}
	_, err := LoadTextures(context.Background(), planes, t.TempDir(), 150, 64, 1, nil)
	assert.Error(t, err)

	_, err = LoadTextures(context.Background(), nil, "", 150, 64, 1, nil)
	assert.Error(t, err)
}

func TestTrimMargins(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 300, 200))
	for y := 0; y < 200; y++ {
		for x := 0; x < 300; x++ {
			c := color.RGBA{255, 255, 255, 255}
			if x >= 100 && x < 200 && y >= 60 && y < 140 {
				c = color.RGBA{0, 0, 0, 255}
			}
			img.SetRGBA(x, y, c)
		}
	}
	out := TrimMargins(img)
	assert.Equal(t, image.Point{}, out.Bounds().Min)
	assert.Less(t, out.Bounds().Dx(), 140)
	assert.Greater(t, out.Bounds().Dx(), 100)
	assert.Less(t, out.Bounds().Dy(), 120)

	blank := image.NewRGBA(image.Rect(0, 0, 40, 40))
	assert.Same(t, blank, TrimMargins(blank).(*image.RGBA))
}
