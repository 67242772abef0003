package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	errpkg "github.com/veranemoloko/index-mirror/internal/errors"
)

func makeTempDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "filestorage_test_*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() {
		os.RemoveAll(dir)
	})
	return dir
}

func TestFileStorage_EnsureDir(t *testing.T) {
	dir := filepath.Join(makeTempDir(t), "nested", "out")
	fs := NewFileStorage(dir)

	if fs.DirExists() {
		t.Fatalf("expected %s not to exist yet", dir)
	}
	if err := fs.EnsureDir(); err != nil {
		t.Fatalf("EnsureDir error: %v", err)
	}
	if !fs.DirExists() {
		t.Errorf("expected output directory to exist after EnsureDir")
	}
}

func TestFileStorage_Path(t *testing.T) {
	dir := makeTempDir(t)
	fs := NewFileStorage(dir)

	got, err := fs.Path("cat", "jpg")
	if err != nil {
		t.Fatalf("Path error: %v", err)
	}
	if want := filepath.Join(dir, "cat.jpg"); got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestFileStorage_PathRejectsEscape(t *testing.T) {
	fs := NewFileStorage(makeTempDir(t))

	for _, name := range []string{"../evil", "../../etc/passwd"} {
		if _, err := fs.Path(name, "txt"); !errors.Is(err, errpkg.ErrUnsafePath) {
			t.Errorf("Path(%q): expected ErrUnsafePath, got %v", name, err)
		}
	}
}

func TestPart_WriteResumeCommit(t *testing.T) {
	dir := makeTempDir(t)
	final := filepath.Join(dir, "data.bin")
	part := NewPart(final, "http://example.com/data.bin")

	f, err := part.Open(false)
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	if _, err := f.Write([]byte("part1")); err != nil {
		t.Fatalf("write error: %v", err)
	}
	f.Close()

	if size := part.Size(); size != 5 {
		t.Fatalf("expected part size 5, got %d", size)
	}
	if err := part.SetValidator(`"v1"`); err != nil {
		t.Fatalf("SetValidator error: %v", err)
	}

	f, err = part.Open(true)
	if err != nil {
		t.Fatalf("Open resume error: %v", err)
	}
	if _, err := f.Write([]byte("part2")); err != nil {
		t.Fatalf("append write error: %v", err)
	}
	f.Close()

	if _, err := os.Stat(final); !os.IsNotExist(err) {
		t.Fatalf("final file must not exist before commit")
	}

	if err := part.Commit(); err != nil {
		t.Fatalf("Commit error: %v", err)
	}

	content, err := os.ReadFile(final)
	if err != nil {
		t.Fatalf("ReadFile error: %v", err)
	}
	if string(content) != "part1part2" {
		t.Errorf("expected 'part1part2', got %q", string(content))
	}
	if part.Size() != 0 {
		t.Errorf("expected part file to be gone after commit")
	}
	if part.Validator() != "" {
		t.Errorf("expected validator to be gone after commit")
	}
}

func TestPart_KeyedBySourceURL(t *testing.T) {
	final := filepath.Join(makeTempDir(t), "cat.jpg")

	a := NewPart(final, "http://example.com/a/cat.jpg")
	b := NewPart(final, "http://example.com/b/cat.jpg")

	if a.Path() == b.Path() {
		t.Fatalf("expected distinct part files for distinct URLs, both %q", a.Path())
	}
	if again := NewPart(final, "http://example.com/a/cat.jpg"); again.Path() != a.Path() {
		t.Errorf("expected stable part path, got %q and %q", a.Path(), again.Path())
	}
	if filepath.Dir(a.Path()) != filepath.Dir(final) {
		t.Errorf("expected part file beside final file, got %q", a.Path())
	}

	if err := os.WriteFile(a.Path(), []byte("AA"), 0o644); err != nil {
		t.Fatalf("WriteFile error: %v", err)
	}
	if b.Size() != 0 {
		t.Errorf("expected no part data for the other URL, got %d bytes", b.Size())
	}
}

func TestPart_ValidatorClear(t *testing.T) {
	part := NewPart(filepath.Join(makeTempDir(t), "x.bin"), "http://example.com/x.bin")

	if err := part.SetValidator("Wed, 21 Oct 2015 07:28:00 GMT"); err != nil {
		t.Fatalf("SetValidator error: %v", err)
	}
	if got := part.Validator(); got != "Wed, 21 Oct 2015 07:28:00 GMT" {
		t.Errorf("unexpected validator %q", got)
	}
	if err := part.SetValidator(""); err != nil {
		t.Fatalf("clear error: %v", err)
	}
	if got := part.Validator(); got != "" {
		t.Errorf("expected cleared validator, got %q", got)
	}
}
