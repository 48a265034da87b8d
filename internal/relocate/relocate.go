// Package relocate moves processed photos into the per-site archive tree.
package relocate

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
)

// ErrRelocation wraps any failure to move a photo into the archive. A
// relocation failure is fatal for that file: persistence never runs against
// a stale source path.
var ErrRelocation = errors.New("relocation failed")

type Relocator struct {
	baseDir      string
	processedDir string
	log          zerolog.Logger
}

func New(baseDir, processedDir string, log zerolog.Logger) *Relocator {
	return &Relocator{baseDir: baseDir, processedDir: processedDir, log: log}
}

// ProcessedRoot is the archive root all destinations nest under.
func (r *Relocator) ProcessedRoot() string {
	return filepath.Join(r.baseDir, r.processedDir)
}

// DestinationPath computes where a source file lands for a given site.
func (r *Relocator) DestinationPath(src, site string) string {
	return filepath.Join(r.ProcessedRoot(), site, filepath.Base(src))
}

// Move relocates src under the site's archive subdirectory and returns the
// absolute destination plus its archive-relative form. A missing source is
// treated as already relocated by a prior run and succeeds. Renames across
// filesystem boundaries fall back to copy-then-delete.
func (r *Relocator) Move(src, site string) (string, string, error) {
	dest := r.DestinationPath(src, site)

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", "", fmt.Errorf("%w: create archive dir: %v", ErrRelocation, err)
	}

	if _, err := os.Stat(src); errors.Is(err, fs.ErrNotExist) {
		r.log.Info().Str("src", src).Str("dest", dest).Msg("source already relocated, skipping move")
		return dest, r.RelativePath(dest), nil
	}

	if err := os.Rename(src, dest); err != nil {
		if !isCrossDevice(err) {
			return "", "", fmt.Errorf("%w: rename %s: %v", ErrRelocation, src, err)
		}
		if err := copyFile(src, dest); err != nil {
			return "", "", fmt.Errorf("%w: copy across filesystems: %v", ErrRelocation, err)
		}
		if err := os.Remove(src); err != nil {
			return "", "", fmt.Errorf("%w: remove source after copy: %v", ErrRelocation, err)
		}
	}

	r.log.Info().Str("src", src).Str("dest", dest).Msg("photo archived")
	return dest, r.RelativePath(dest), nil
}

// RelativePath strips the archive root prefix; paths outside the root come
// back unchanged.
func (r *Relocator) RelativePath(abs string) string {
	root := filepath.Clean(r.ProcessedRoot())
	cleaned := filepath.Clean(abs)
	if !strings.HasPrefix(cleaned, root) {
		return abs
	}
	return strings.TrimLeft(strings.TrimPrefix(cleaned, root), string(filepath.Separator))
}

func isCrossDevice(err error) bool {
	var linkErr *os.LinkError
	return errors.As(err, &linkErr) && errors.Is(linkErr.Err, syscall.EXDEV)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
