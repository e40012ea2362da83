// Package storage exposes the directory tree that file share
// operations are allowed to touch.
package storage

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/screenport/agent/pkg/api"
)

// ErrPermission marks a listing the host has not granted access to.
// The coordinator turns it into a permission prompt instead of a
// failure.
var ErrPermission = errors.New("storage: permission not granted")

// Accessor reads directory listings for the browse operation and
// resolves remote-supplied paths into local ones.
type Accessor interface {
	// List returns the entries of the directory at path. Paths are
	// interpreted the same way Resolve does.
	List(path string) ([]api.FileEntry, error)
	// Resolve maps a remote path onto the local filesystem, rooted
	// at Root. The result always stays under Root.
	Resolve(path string) string
	Root() string
}

// Granter reports whether the host granted filesystem access.
// On the original platform this is a runtime permission check.
type Granter func() bool

// Dir is an os-backed Accessor under a fixed root directory.
type Dir struct {
	root    string
	granted Granter
}

func NewDir(root string, granted Granter) *Dir {
	if root == "" {
		root = string(os.PathSeparator)
	}
	return &Dir{root: filepath.Clean(root), granted: granted}
}

func (d *Dir) Root() string { return d.root }

func (d *Dir) Resolve(path string) string {
	p := filepath.Clean("/" + filepath.ToSlash(path))
	if p == "/" {
		return d.root
	}
	return filepath.Join(d.root, filepath.FromSlash(strings.TrimPrefix(p, "/")))
}

func (d *Dir) List(path string) ([]api.FileEntry, error) {
	if d.granted != nil && !d.granted() {
		return nil, ErrPermission
	}
	dir := d.Resolve(path)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsPermission(err) {
			return nil, ErrPermission
		}
		return nil, err
	}
	out := make([]api.FileEntry, 0, len(entries))
	for _, e := range entries {
		entry := api.FileEntry{Name: e.Name(), Type: api.EntryFile}
		if e.IsDir() {
			entry.Type = api.EntryFolder
		} else if info, err := e.Info(); err == nil {
			size := info.Size()
			entry.Size = &size
		}
		out = append(out, entry)
	}
	return out, nil
}
