package zip

import (
	archzip "archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/screenport/agent/pkg/logger"
)

func writeArchive(t *testing.T, entries map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "in.zip")
	out, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	w := archzip.NewWriter(out)
	for name, body := range entries {
		zw, err := w.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err = zw.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	if err := out.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestExtractStripsWrapperDirectory(t *testing.T) {
	src := writeArchive(t, map[string]string{
		"wrapper/a.txt":     "alpha",
		"wrapper/sub/b.txt": "beta",
	})
	dest := t.TempDir()

	files, err := New(logger.Default()).Extract(src, dest)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 {
		t.Fatalf("extracted %d files, want 2", len(files))
	}
	for path, want := range map[string]string{
		filepath.Join(dest, "a.txt"):         "alpha",
		filepath.Join(dest, "sub", "b.txt"):  "beta",
		filepath.Join(dest, "wrapper/a.txt"): "",
	} {
		got, err := os.ReadFile(path)
		if want == "" {
			if err == nil {
				t.Errorf("wrapper path %s must not exist", path)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: %v", path, err)
		}
		if string(got) != want {
			t.Errorf("%s = %q, want %q", path, got, want)
		}
	}
}

func TestExtractSkipsEscapingEntries(t *testing.T) {
	src := writeArchive(t, map[string]string{
		"wrapper/../../evil.txt": "nope",
		"wrapper/ok.txt":         "fine",
	})
	dest := t.TempDir()

	files, err := New(logger.Default()).Extract(src, dest)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 {
		t.Fatalf("extracted %d files, want 1", len(files))
	}
	if _, err := os.Stat(filepath.Clean(filepath.Join(dest, "..", "..", "evil.txt"))); err == nil {
		t.Error("entry escaped the destination")
	}
}

func TestExtractEmptyArchive(t *testing.T) {
	src := writeArchive(t, nil)
	if _, err := New(logger.Default()).Extract(src, t.TempDir()); err != ErrEmptyArchive {
		t.Fatalf("err = %v, want ErrEmptyArchive", err)
	}
}

func TestCreateRoundTrip(t *testing.T) {
	src := t.TempDir()
	if err := os.WriteFile(filepath.Join(src, "top.txt"), []byte("top"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(src, "nested", "deep"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "nested", "deep", "leaf.txt"), []byte("leaf"), 0o644); err != nil {
		t.Fatal(err)
	}

	a := New(logger.Default())
	archive := filepath.Join(t.TempDir(), "out.zip")
	err := a.Create(archive, []string{
		filepath.Join(src, "top.txt"),
		filepath.Join(src, "nested"),
	})
	if err != nil {
		t.Fatal(err)
	}

	r, err := archzip.OpenReader(archive)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	names := map[string]bool{}
	for _, f := range r.File {
		names[f.Name] = true
	}
	for _, want := range []string{"top.txt", "nested/deep/leaf.txt"} {
		if !names[want] {
			t.Errorf("archive misses %q, has %v", want, names)
		}
	}
}
