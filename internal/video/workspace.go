package video

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/hack-pad/hackpadfs"
)

// Workspace is a flat directory of named files inside a hackpadfs file
// system. FFmpeg backs it with the OS temp dir; tests use mem.FS.
type Workspace struct {
	fs   hackpadfs.FS
	root string
}

// NewWorkspace uses root (a hackpadfs path, no leading slash) inside fsys,
// creating it when missing.
func NewWorkspace(fsys hackpadfs.FS, root string) (*Workspace, error) {
	root = strings.Trim(root, "/")
	if root == "" {
		root = "."
	}
	if root != "." {
		if err := hackpadfs.MkdirAll(fsys, root, 0o755); err != nil {
			return nil, fmt.Errorf("create workspace %s: %w", root, err)
		}
	}
	return &Workspace{fs: fsys, root: root}, nil
}

func (w *Workspace) path(name string) (string, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid workspace file name %q", name)
	}
	return path.Join(w.root, name), nil
}

func (w *Workspace) WriteFile(name string, data []byte) error {
	p, err := w.path(name)
	if err != nil {
		return err
	}
	return hackpadfs.WriteFullFile(w.fs, p, data, 0o644)
}

func (w *Workspace) ReadFile(name string) ([]byte, error) {
	p, err := w.path(name)
	if err != nil {
		return nil, err
	}
	return hackpadfs.ReadFile(w.fs, p)
}

// DeleteFile removes name. A missing file is not an error.
func (w *Workspace) DeleteFile(name string) error {
	p, err := w.path(name)
	if err != nil {
		return err
	}
	err = hackpadfs.Remove(w.fs, p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Files lists the file names in the workspace, sorted.
func (w *Workspace) Files() ([]string, error) {
	entries, err := hackpadfs.ReadDir(w.fs, w.root)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
