package analyzer

import (
	"image"
	"image/color"
	"image/draw"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// page is a white sheet with a dark block, like a slide with wide margins.
func page(block image.Rectangle) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 200, 150))
	draw.Draw(img, img.Rect, image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(img, block, image.NewUniform(color.Black), image.Point{}, draw.Src)
	return img
}

func TestEdgeDetectorFindsBlock(t *testing.T) {
	block := image.Rect(60, 40, 140, 110)
	regions := NewEdgeDetector().Detect(page(block))
	require.Len(t, regions, 1)

	r := regions[0].Rect
	assert.True(t, r.Overlaps(block))
	assert.InDelta(t, block.Min.X, r.Min.X, 8)
	assert.InDelta(t, block.Max.Y, r.Max.Y, 8)
}

func TestEdgeDetectorBlankPage(t *testing.T) {
	assert.Empty(t, NewEdgeDetector().Detect(page(image.Rectangle{})))
}

func TestEdgeDetectorMinArea(t *testing.T) {
	d := NewEdgeDetector()
	img := page(image.Rect(100, 70, 103, 73))
	assert.Empty(t, d.Detect(img))

	d.MinArea = 1
	assert.Len(t, d.Detect(img), 1)
}

func TestDetectOffsetBounds(t *testing.T) {
	img := page(image.Rect(60, 40, 140, 110)).SubImage(image.Rect(50, 30, 200, 150))
	regions := NewEdgeDetector().Detect(img)
	require.Len(t, regions, 1)
	assert.True(t, regions[0].Rect.In(img.Bounds()))
	assert.InDelta(t, 60, regions[0].Rect.Min.X, 8)
}

func TestContentBounds(t *testing.T) {
	img := page(image.Rect(10, 10, 60, 60))
	draw.Draw(img, image.Rect(150, 100, 190, 140), image.NewUniform(color.Black), image.Point{}, draw.Src)

	r, ok := ContentBounds(NewEdgeDetector(), img, 4)
	require.True(t, ok)
	assert.LessOrEqual(t, r.Min.X, 10)
	assert.GreaterOrEqual(t, r.Max.X, 190)
	assert.True(t, r.In(img.Bounds()))

	_, ok = ContentBounds(NewEdgeDetector(), page(image.Rectangle{}), 4)
	assert.False(t, ok)
}

func TestNewDetector(t *testing.T) {
	for _, name := range []string{"", "edges"} {
		d, err := NewDetector(name)
		require.NoError(t, err)
		assert.NotNil(t, d)
	}
	_, err := NewDetector("ocr")
	assert.Error(t, err)
}
