package pipeline

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var ErrFinalizeIO = errors.New("finalize output")

const tempPattern = ".optimg-*.tmp"

// Decision is the outcome of the compression gate.
type Decision struct {
	WasOptimized bool
	OriginalSize int64
	FinalSize    int64
}

// Finalize decides what ends up at outputPath. With compareSizes set the
// candidate is kept only when it is strictly smaller than the original;
// otherwise outputPath receives a verbatim copy of the original. Every write
// goes through a temp file and a rename, so outputPath never holds a partial
// image. The original file is never removed.
func Finalize(originalPath string, candidate []byte, compareSizes bool, outputPath string) (Decision, error) {
	info, err := os.Stat(originalPath)
	if err != nil {
		return Decision{}, fmt.Errorf("%w: stat original: %w", ErrFinalizeIO, err)
	}
	origSize := info.Size()
	candidateSize := int64(len(candidate))

	if !compareSizes || candidateSize < origSize {
		err := writeAtomic(outputPath, func(w io.Writer) error {
			_, err := w.Write(candidate)
			return err
		})
		if err != nil {
			return Decision{}, err
		}
		return Decision{WasOptimized: true, OriginalSize: origSize, FinalSize: candidateSize}, nil
	}

	keep := Decision{WasOptimized: false, OriginalSize: origSize, FinalSize: origSize}
	if samePath(originalPath, outputPath) {
		return keep, nil
	}

	src, err := os.Open(originalPath)
	if err != nil {
		return Decision{}, fmt.Errorf("%w: open original: %w", ErrFinalizeIO, err)
	}
	defer src.Close()

	if err := writeAtomic(outputPath, func(w io.Writer) error {
		_, err := io.Copy(w, src)
		return err
	}); err != nil {
		return Decision{}, err
	}
	return keep, nil
}

// OutputPath swaps the extension of sourcePath for ext.
func OutputPath(sourcePath, ext string) string {
	return strings.TrimSuffix(sourcePath, filepath.Ext(sourcePath)) + ext
}

// IsTempFile reports whether name looks like an in-flight gate write.
func IsTempFile(name string) bool {
	base := filepath.Base(name)
	return strings.HasPrefix(base, ".optimg-") && strings.HasSuffix(base, ".tmp")
}

func writeAtomic(path string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), tempPattern)
	if err != nil {
		return fmt.Errorf("%w: create temp file: %w", ErrFinalizeIO, err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := write(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: write %s: %w", ErrFinalizeIO, path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %w", ErrFinalizeIO, path, err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return fmt.Errorf("%w: chmod %s: %w", ErrFinalizeIO, path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("%w: rename into %s: %w", ErrFinalizeIO, path, err)
	}
	committed = true
	return nil
}

func samePath(a, b string) bool {
	if filepath.Clean(a) == filepath.Clean(b) {
		return true
	}
	ai, err := os.Stat(a)
	if err != nil {
		return false
	}
	bi, err := os.Stat(b)
	if err != nil {
		return false
	}
	return os.SameFile(ai, bi)
}
