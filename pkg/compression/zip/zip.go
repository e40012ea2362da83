// Package zip packs and unpacks the archives moving through file
// share transfers.
package zip

import (
	"archive/zip"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/screenport/agent/pkg/logger"
)

const Ext = ".zip"

var ErrEmptyArchive = errors.New("zip: empty archive")

type Archiver struct {
	log *logger.Logger
}

func New(log *logger.Logger) Archiver {
	return Archiver{log: log}
}

// Extract unpacks src into dest, stripping the single top-level
// directory that wraps every entry of an uploaded archive. Entries
// that resolve outside dest are skipped.
func (a Archiver) Extract(src string, dest string) (files []string, err error) {
	r, err := zip.OpenReader(src)
	if err != nil {
		return files, err
	}
	defer r.Close()

	if len(r.File) == 0 {
		return files, ErrEmptyArchive
	}

	for _, f := range r.File {
		name := stripRoot(f.Name)
		if name == "" {
			continue
		}
		path := filepath.Join(dest, name)

		// negate ZipSlip vulnerability (http://bit.ly/2MsjAWE)
		if !strings.HasPrefix(path, filepath.Clean(dest)+string(os.PathSeparator)) {
			a.log.Warn().Msgf("%s is illegal path", path)
			continue
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(path, os.ModePerm); err != nil {
				a.log.Error().Err(err).Msg("extract")
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
			a.log.Error().Err(err).Msg("extract")
			continue
		}
		out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, f.Mode())
		if err != nil {
			a.log.Error().Err(err).Msg("extract")
			continue
		}
		rc, err := f.Open()
		if err != nil {
			a.log.Error().Err(err).Msg("extract")
			_ = out.Close()
			continue
		}
		if _, err = io.Copy(out, rc); err != nil {
			a.log.Error().Err(err).Msg("extract")
			_ = out.Close()
			_ = rc.Close()
			continue
		}
		_ = out.Close()
		_ = rc.Close()

		files = append(files, path)
	}
	return files, nil
}

// stripRoot drops the first path component of an archive entry name.
func stripRoot(name string) string {
	name = strings.TrimPrefix(filepath.ToSlash(name), "/")
	if i := strings.IndexByte(name, '/'); i >= 0 {
		return filepath.FromSlash(name[i+1:])
	}
	return ""
}

// Create writes a new archive at dst holding every path in paths.
// Directories are walked recursively, files go in by base name.
func (a Archiver) Create(dst string, paths []string) error {
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	w := zip.NewWriter(out)

	for _, p := range paths {
		if err = addPath(w, p); err != nil {
			_ = w.Close()
			_ = out.Close()
			return err
		}
	}
	if err = w.Close(); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

func addPath(w *zip.Writer, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return addFile(w, path, filepath.Base(path))
	}
	base := filepath.Base(path)
	return filepath.Walk(path, func(p string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(path, p)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(filepath.Join(base, rel))
		if fi.IsDir() {
			if rel == "." {
				return nil
			}
			_, err = w.Create(name + "/")
			return err
		}
		return addFile(w, p, name)
	})
}

func addFile(w *zip.Writer, path, name string) error {
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()
	z, err := w.Create(filepath.ToSlash(name))
	if err != nil {
		return err
	}
	_, err = io.Copy(z, in)
	return err
}
