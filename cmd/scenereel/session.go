package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/ivlev/scenereel/internal/binding"
	"github.com/ivlev/scenereel/internal/config"
	"github.com/ivlev/scenereel/internal/scene"
	"github.com/ivlev/scenereel/internal/source"
	"github.com/ivlev/scenereel/internal/timeline"
)

// session is one built scene with its timeline bound to it.
type session struct {
	cfg      *config.Config
	state    *scene.State
	project  *timeline.Project
	sheet    *timeline.Sheet
	bindings *binding.Bindings
}

// newSession loads the project state, builds the configured variant and
// binds it. Relative plane paths resolve against baseDir.
func newSession(ctx context.Context, cfg *config.Config, baseDir string, logger *slog.Logger) (*session, error) {
	var st *timeline.State
	if cfg.ProjectState != "" {
		var err error
		st, err = timeline.LoadStateFile(cfg.ProjectState)
		if err != nil {
			return nil, err
		}
		logger.Info("project state loaded", "path", cfg.ProjectState)
	} else {
		logger.Warn("no project state, playing defaults")
	}

	project := timeline.NewProject(cfg.ProjectName, st, logger)
	sheet := project.Sheet(cfg.SheetName)
	aspect := float64(cfg.Width) / float64(cfg.Height)

	s := &session{cfg: cfg, project: project, sheet: sheet}
	var err error
	switch cfg.Variant {
	case config.VariantKnot:
		s.state = scene.BuildKnot(aspect)
		s.bindings, err = binding.BindKnot(sheet, s.state)
	case config.VariantPlanes:
		var specs []scene.PlaneSpec
		specs, err = source.LoadTextures(ctx, cfg.Planes, baseDir, cfg.PDFDPI, cfg.TextureSize, cfg.Workers, logger)
		if err != nil {
			return nil, err
		}
		s.state = scene.BuildPlanes(aspect, specs)
		s.bindings, err = binding.BindPlanes(sheet, s.state)
	default:
		return nil, fmt.Errorf("unknown variant %q", cfg.Variant)
	}
	if err != nil {
		return nil, err
	}
	logger.Info("scene ready",
		"variant", cfg.Variant, "meshes", len(s.state.Meshes),
		"objects", len(sheet.Objects()), "length", sheet.Sequence().Length())
	return s, nil
}

// expandPlanes appends the images of cfg.PlanesDir to cfg.Planes.
func expandPlanes(cfg *config.Config, baseDir string) error {
	if cfg.PlanesDir == "" {
		return nil
	}
	dir := cfg.PlanesDir
	if baseDir != "" && !filepath.IsAbs(dir) {
		dir = filepath.Join(baseDir, dir)
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	planes, err := source.PlanesFromDir(dir, 0)
	if err != nil {
		return err
	}
	cfg.Planes = append(cfg.Planes, planes...)
	return nil
}
