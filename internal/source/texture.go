package source

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/ivlev/scenereel/internal/analyzer"
	"github.com/ivlev/scenereel/internal/config"
	"github.com/ivlev/scenereel/internal/scene"
	"golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/spatial/r3"
)

// ForPlane picks the source a plane entry asks for. Relative paths resolve
// against baseDir.
func ForPlane(p config.Plane, baseDir string, dpi int) (Source, error) {
	resolve := func(path string) string {
		if baseDir == "" || filepath.IsAbs(path) {
			return path
		}
		return filepath.Join(baseDir, path)
	}
	switch {
	case p.Image != "":
		return ImageFile{Path: resolve(p.Image)}, nil
	case p.PDF != "":
		return PDFPage{Path: resolve(p.PDF), Page: p.Page, DPI: dpi}, nil
	case p.QR != "":
		return QRCode{Content: p.QR}, nil
	}
	return nil, fmt.Errorf("plane %q: no image, pdf or qr source", p.Name)
}

// PlanesFromDir makes one plane per image in dir, laid out left to right
// with a unit gap. Names are the file names without extension.
func PlanesFromDir(dir string, height float64) ([]config.Plane, error) {
	paths, err := ImagesInDir(dir)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no images in %s", dir)
	}
	if height <= 0 {
		height = 10
	}
	planes := make([]config.Plane, 0, len(paths))
	step := height + 1
	x0 := -step * float64(len(paths)-1) / 2
	for i, path := range paths {
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		planes = append(planes, config.Plane{
			Name:     name,
			Image:    path,
			Height:   height,
			Position: [3]float64{x0 + step*float64(i), 0, 0},
		})
	}
	return planes, nil
}

// LoadTextures renders every plane's source in parallel, at most workers
// at a time, and returns the scene specs in input order. Textures larger
// than maxSize on either side are scaled down.
func LoadTextures(ctx context.Context, planes []config.Plane, baseDir string, dpi, maxSize, workers int, logger *slog.Logger) ([]scene.PlaneSpec, error) {
	if logger == nil {
		logger = slog.Default()
	}
	specs := make([]scene.PlaneSpec, len(planes))
	g, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, p := range planes {
		i, p := i, p
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			src, err := ForPlane(p, baseDir, dpi)
			if err != nil {
				return err
			}
			img, err := src.Render()
			if err != nil {
				return fmt.Errorf("plane %q: %w", p.Name, err)
			}
			if p.Trim {
				img = TrimMargins(img)
			}
			tex := ToTexture(img, maxSize)
			logger.Debug("texture loaded", "plane", p.Name, "size", tex.Rect.Size().String())
			specs[i] = scene.PlaneSpec{
				Name:     p.Name,
				Texture:  tex,
				Width:    p.Width,
				Height:   p.Height,
				Position: r3.Vec{X: p.Position[0], Y: p.Position[1], Z: p.Position[2]},
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if len(specs) == 0 {
		return nil, errors.New("no planes to load")
	}
	return specs, nil
}

// ToTexture converts img to an RGBA image with its origin at (0,0),
// scaling it with Catmull-Rom so neither side exceeds maxSize.
func ToTexture(img image.Image, maxSize int) *image.RGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxSize > 0 && (w > maxSize || h > maxSize) {
		if w >= h {
			h = max(1, h*maxSize/w)
			w = maxSize
		} else {
			w = max(1, w*maxSize/h)
			h = maxSize
		}
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	if w == b.Dx() && h == b.Dy() {
		draw.Draw(dst, dst.Rect, img, b.Min, draw.Src)
		return dst
	}
	draw.CatmullRom.Scale(dst, dst.Rect, img, b, draw.Src, nil)
	return dst
}

// TrimMargins crops img to the content found by the edge detector, keeping
// a small border. Images with no detectable content are returned as is.
func TrimMargins(img image.Image) image.Image {
	r, ok := analyzer.ContentBounds(analyzer.NewEdgeDetector(), img, 8)
	if !ok || r == img.Bounds() {
		return img
	}
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Rect, img, r.Min, draw.Src)
	return dst
}
