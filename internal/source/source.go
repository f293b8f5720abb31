package source

import (
	"fmt"
	"image"

	"github.com/gen2brain/go-fitz"
	"github.com/skip2/go-qrcode"
)

// Source produces the picture shown on one image plane.
type Source interface {
	// Dimensions returns the natural size without decoding pixels when
	// the format allows it.
	Dimensions() (width, height float64, err error)
	Render() (image.Image, error)
}

// PDFPage renders one page of a PDF document.
type PDFPage struct {
	Path string
	Page int
	DPI  int
}

func (p PDFPage) open() (*fitz.Document, error) {
	doc, err := fitz.New(p.Path)
	if err != nil {
		return nil, fmt.Errorf("open pdf %s: %w", p.Path, err)
	}
	if p.Page < 0 || p.Page >= doc.NumPage() {
		n := doc.NumPage()
		doc.Close()
		return nil, fmt.Errorf("pdf %s: page %d out of range (%d pages)", p.Path, p.Page, n)
	}
	return doc, nil
}

func (p PDFPage) Dimensions() (float64, float64, error) {
	doc, err := p.open()
	if err != nil {
		return 0, 0, err
	}
	defer doc.Close()
	rect, err := doc.Bound(p.Page)
	if err != nil {
		return 0, 0, err
	}
	return float64(rect.Dx()), float64(rect.Dy()), nil
}

// Render opens its own document handle: fitz documents are not safe for
// concurrent use and textures load in parallel.
func (p PDFPage) Render() (image.Image, error) {
	doc, err := p.open()
	if err != nil {
		return nil, err
	}
	defer doc.Close()
	dpi := p.DPI
	if dpi <= 0 {
		dpi = 150
	}
	return doc.ImageDPI(p.Page, float64(dpi))
}

// QRCode renders Content as a square QR code of Size pixels.
type QRCode struct {
	Content string
	Size    int
}

func (q QRCode) size() int {
	if q.Size <= 0 {
		return 512
	}
	return q.Size
}

func (q QRCode) Dimensions() (float64, float64, error) {
	s := float64(q.size())
	return s, s, nil
}

func (q QRCode) Render() (image.Image, error) {
	code, err := qrcode.New(q.Content, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("qr code: %w", err)
	}
	return code.Image(q.size()), nil
}
