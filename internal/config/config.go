package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Scene variants.
const (
	VariantKnot   = "knot"
	VariantPlanes = "planes"
)

// Capture formats.
const (
	FormatJPEG = "jpeg"
	FormatPNG  = "png"
)

// MaxPixelRatio caps the device pixel ratio the renderer honors.
const MaxPixelRatio = 2.0

type Config struct {
	Variant      string  `yaml:"variant"`
	ProjectState string  `yaml:"projectState"`
	ProjectName  string  `yaml:"projectName"`
	SheetName    string  `yaml:"sheetName"`
	Width        int     `yaml:"width"`
	Height       int     `yaml:"height"`
	PixelRatio   float64 `yaml:"pixelRatio"`
	FPS          int     `yaml:"fps"`
	OutputDir    string  `yaml:"outputDir"`
	OutputName   string  `yaml:"outputName"`
	Format       string  `yaml:"format"`
	JPEGQuality  int     `yaml:"jpegQuality"`
	VideoEncoder string  `yaml:"videoEncoder"`
	Quality      int     `yaml:"quality"`
	Workers      int     `yaml:"workers"`
	TextureSize  int     `yaml:"textureSize"`
	PreviewAddr  string  `yaml:"previewAddr"`
	Watch        bool    `yaml:"watch"`
	ShowStats    bool    `yaml:"showStats"`
	Planes       []Plane `yaml:"planes"`
	// PlanesDir adds one image plane per picture found in the directory.
	PlanesDir string `yaml:"planesDir"`
	// PDFDPI is the rasterization density of PDF page textures.
	PDFDPI int `yaml:"pdfDpi"`
}

// Plane is one data entry of the image-plane variant. Exactly one of
// Image, PDF or QR selects the texture source.
type Plane struct {
	Name  string `yaml:"name"`
	Image string `yaml:"image"`
	PDF   string `yaml:"pdf"`
	Page  int    `yaml:"page"`
	QR    string `yaml:"qr"`
	// Trim crops the texture to its detected content, dropping page margins.
	Trim     bool       `yaml:"trim"`
	Width    float64    `yaml:"width"`
	Height   float64    `yaml:"height"`
	Position [3]float64 `yaml:"position"`
}

// Default returns the stock settings: the knot at 1280x720, 30 fps.
func Default() *Config {
	return &Config{
		Variant:      VariantKnot,
		ProjectName:  "THREE.js x Theatre.js",
		SheetName:    "Animated scene",
		Width:        1280,
		Height:       720,
		PixelRatio:   1,
		FPS:          30,
		OutputDir:    "output",
		OutputName:   "animation.mp4",
		Format:       FormatJPEG,
		JPEGQuality:  90,
		VideoEncoder: "libx264",
		Quality:      23,
		Workers:      4,
		TextureSize:  1024,
		PreviewAddr:  "127.0.0.1:8080",
		Watch:        true,
		PDFDPI:       150,
	}
}

// Load reads a YAML file over the defaults. Fields missing from the file
// keep their default value.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// EffectivePixelRatio is the requested ratio clamped to (0, MaxPixelRatio].
func (c *Config) EffectivePixelRatio() float64 {
	return ClampPixelRatio(c.PixelRatio)
}

// ExportSize is the device pixel size of exported frames: size times the
// effective ratio, each side rounded up to even for yuv420p.
func (c *Config) ExportSize() (width, height int) {
	r := c.EffectivePixelRatio()
	even := func(n int) int {
		n = max(n, 2)
		return n + n%2
	}
	return even(int(math.Floor(float64(c.Width) * r))), even(int(math.Floor(float64(c.Height) * r)))
}

func ClampPixelRatio(r float64) float64 {
	if r <= 0 {
		return 1
	}
	if r > MaxPixelRatio {
		return MaxPixelRatio
	}
	return r
}

// FrameExt is the file extension used for captured frames.
func (c *Config) FrameExt() string {
	if strings.ToLower(c.Format) == FormatPNG {
		return FormatPNG
	}
	return FormatJPEG
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Variant {
	case VariantKnot:
	case VariantPlanes:
		if len(c.Planes) == 0 {
			errs = append(errs, errors.New("planes variant needs at least one plane"))
		}
		seen := make(map[string]bool, len(c.Planes))
		for i, p := range c.Planes {
			if p.Name == "" {
				errs = append(errs, fmt.Errorf("plane %d: name is required", i))
			} else if seen[p.Name] {
				errs = append(errs, fmt.Errorf("plane %d: duplicate name %q", i, p.Name))
			}
			seen[p.Name] = true
			n := 0
			for _, s := range []string{p.Image, p.PDF, p.QR} {
				if s != "" {
					n++
				}
			}
			if n != 1 {
				errs = append(errs, fmt.Errorf("plane %q: exactly one of image, pdf, qr must be set", p.Name))
			}
		}
	default:
		errs = append(errs, fmt.Errorf("unknown variant %q", c.Variant))
	}
	if c.Width <= 0 || c.Height <= 0 {
		errs = append(errs, fmt.Errorf("invalid size %dx%d", c.Width, c.Height))
	}
	if c.FPS <= 0 {
		errs = append(errs, fmt.Errorf("fps must be positive, got %d", c.FPS))
	}
	switch strings.ToLower(c.Format) {
	case FormatJPEG, "jpg", FormatPNG:
	default:
		errs = append(errs, fmt.Errorf("unknown frame format %q", c.Format))
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		errs = append(errs, fmt.Errorf("jpeg quality out of range: %d", c.JPEGQuality))
	}
	if c.OutputName == "" {
		errs = append(errs, errors.New("output name is required"))
	}
	return errors.Join(errs...)
}
