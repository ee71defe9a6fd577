// Package diskmanager stores detection images on disk and enforces their
// retention.
package diskmanager

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tphakala/platewatch/internal/errors"
	"github.com/tphakala/platewatch/internal/logger"
)

const (
	dateDirLayout = "2006-01-02"
	fileLayout    = "150405_000000"
	imageExt      = ".jpg"
)

// ImageStore writes images under <base>/<date>/<plate>/<HHMMSS_micro>.jpg.
// References handed out by RelPath are relative to the base directory.
type ImageStore struct {
	baseDir string
	loc     *time.Location
	log     logger.Logger
}

// NewImageStore returns a store rooted at baseDir, creating it when needed.
// Dates in paths use loc (UTC when nil).
func NewImageStore(baseDir string, loc *time.Location) (*ImageStore, error) {
	if baseDir == "" {
		return nil, errors.Newf("image directory is not configured").
			Component("diskmanager").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, errors.New(err).
			Component("diskmanager").
			Category(errors.CategoryFileIO).
			Context("path", baseDir).
			Build()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &ImageStore{baseDir: baseDir, loc: loc, log: GetLogger()}, nil
}

// GetLogger returns the diskmanager module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("diskmanager")
}

// BaseDir returns the root directory.
func (s *ImageStore) BaseDir() string { return s.baseDir }

// RelPath returns the reference for an image of plate taken at ts.
func (s *ImageStore) RelPath(plate string, ts time.Time) string {
	local := ts.In(s.loc)
	return filepath.ToSlash(filepath.Join(
		local.Format(dateDirLayout),
		sanitize(plate),
		local.Format(fileLayout)+imageExt,
	))
}

// Path resolves a reference to an absolute file path. References that would
// escape the base directory are rejected.
func (s *ImageStore) Path(ref string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(ref))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", errors.Newf("image reference %q is outside the image directory", ref).
			Component("diskmanager").
			Category(errors.CategoryValidation).
			Build()
	}
	return filepath.Join(s.baseDir, clean), nil
}

// Write stores data at ref.
func (s *ImageStore) Write(ref string, data []byte) error {
	if len(data) == 0 {
		return errors.Newf("refusing to write empty image").
			Component("diskmanager").
			Category(errors.CategoryValidation).
			Context("ref", ref).
			Build()
	}
	path, err := s.Path(ref)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return s.ioError(err, path, "mkdir")
	}

	// write then rename so readers never see a partial file
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return s.ioError(err, tmp, "write")
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return s.ioError(err, path, "rename")
	}
	return nil
}

func (s *ImageStore) ioError(err error, path, op string) error {
	return errors.New(fmt.Errorf("image %s failed: %w", op, err)).
		Component("diskmanager").
		Category(errors.CategoryFileIO).
		Context("path", path).
		Build()
}

// sanitize keeps plate directory names to safe characters.
func sanitize(plate string) string {
	var b strings.Builder
	for _, r := range plate {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "unknown"
	}
	return b.String()
}
