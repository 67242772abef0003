package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	errpkg "github.com/veranemoloko/index-mirror/internal/errors"
)

const (
	partSuffix      = ".part"
	validatorSuffix = ".validator"
)

// FileStorage lays out downloaded files inside a single output directory.
type FileStorage struct {
	dir string
}

// NewFileStorage creates a new FileStorage instance with the given directory.
func NewFileStorage(dir string) *FileStorage {
	return &FileStorage{dir: filepath.Clean(dir)}
}

// Dir returns the output directory.
func (s *FileStorage) Dir() string {
	return s.dir
}

// EnsureDir creates the output directory if it is absent.
func (s *FileStorage) EnsureDir() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create output directory %s: %w", s.dir, err)
	}
	return nil
}

// DirExists reports whether the output directory is present.
func (s *FileStorage) DirExists() bool {
	info, err := os.Stat(s.dir)
	return err == nil && info.IsDir()
}

// Path returns the final location {dir}/{name}.{ext} for a record.
// Names that would resolve outside the output directory are rejected.
func (s *FileStorage) Path(name, ext string) (string, error) {
	p := filepath.Join(s.dir, name+"."+ext)
	rel, err := filepath.Rel(s.dir, p)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", errpkg.ErrUnsafePath, name+"."+ext)
	}
	return p, nil
}

// Part is the in-flight file of one record's transfer. It is keyed by the
// source URL as well as the final path, so records sharing a name never
// resume from each other's bytes.
type Part struct {
	path      string
	finalPath string
}

// NewPart returns the part file for a download of sourceURL into finalPath.
func NewPart(finalPath, sourceURL string) Part {
	key := uuid.NewSHA1(uuid.NameSpaceURL, []byte(sourceURL)).String()[:8]
	return Part{
		path:      finalPath + "." + key + partSuffix,
		finalPath: finalPath,
	}
}

// Path returns the part file location.
func (p Part) Path() string {
	return p.path
}

func (p Part) validatorPath() string {
	return p.path + validatorSuffix
}

// Size returns the size of an existing part file, or 0 if there is none.
func (p Part) Size() int64 {
	info, err := os.Stat(p.path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// Open opens the part file. When resume is set the file is opened for
// appending, otherwise it is truncated.
func (p Part) Open(resume bool) (*os.File, error) {
	flags := os.O_CREATE | os.O_WRONLY
	if resume {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	return os.OpenFile(p.path, flags, 0o644)
}

// Validator returns the ETag or Last-Modified value recorded when the part
// file was started, or "" if none was recorded.
func (p Part) Validator() string {
	data, err := os.ReadFile(p.validatorPath())
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// SetValidator records the value to send as If-Range when resuming. An empty
// value clears it.
func (p Part) SetValidator(v string) error {
	if v == "" {
		if err := os.Remove(p.validatorPath()); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("clear validator for %s: %w", p.path, err)
		}
		return nil
	}
	if err := os.WriteFile(p.validatorPath(), []byte(v+"\n"), 0o644); err != nil {
		return fmt.Errorf("write validator for %s: %w", p.path, err)
	}
	return nil
}

// Remove deletes the part file and its validator.
func (p Part) Remove() {
	_ = os.Remove(p.path)
	_ = os.Remove(p.validatorPath())
}

// Commit moves a completed part file into its final location.
func (p Part) Commit() error {
	if err := os.Rename(p.path, p.finalPath); err != nil {
		return fmt.Errorf("commit %s: %w", p.finalPath, err)
	}
	_ = os.Remove(p.validatorPath())
	return nil
}
