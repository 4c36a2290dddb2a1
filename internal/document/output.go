package document

import (
	"context"
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/cshinei1990/PDF-rotate/internal/errors"
)

// MaxOutputSuffix bounds the numbered candidates tried by DetermineOutputPath.
const MaxOutputSuffix = 999

// Writer persists a document to a path.
type Writer interface {
	WriteFile(path string) error
}

// DetermineOutputPath picks the first free name among <stem>_rot<ext> and
// <stem>_rot_<n><ext> for n in 1..MaxOutputSuffix, next to input.
func DetermineOutputPath(input string) (string, error) {
	dir, stem, ext := splitName(input)

	candidate := filepath.Join(dir, stem+"_rot"+ext)
	if !exists(candidate) {
		return candidate, nil
	}
	for n := 1; n <= MaxOutputSuffix; n++ {
		candidate = filepath.Join(dir, fmt.Sprintf("%s_rot_%d%s", stem, n, ext))
		if !exists(candidate) {
			return candidate, nil
		}
	}
	return "", errors.NewOutputNameExhaustedError(input, MaxOutputSuffix+1)
}

// AlternatePath is the name Save falls back to when path is not writable.
func AlternatePath(path string) string {
	dir, stem, ext := splitName(path)
	return filepath.Join(dir, stem+"_new"+ext)
}

// Save writes w to path and returns where it actually landed. An existing
// file at path is removed first. A permission failure is retried exactly once
// at AlternatePath(path).
func Save(ctx context.Context, w Writer, path string) (string, error) {
	alternate := AlternatePath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", errors.NewSaveFailedError(path, alternate, err)
	}

	target := path
	attempt := 0
	b := retry.WithMaxRetries(1, retry.NewConstant(10*time.Millisecond))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		if attempt > 1 {
			target = alternate
		}
		err := writeReplacing(w, target)
		if err != nil && attempt == 1 && stderrors.Is(err, fs.ErrPermission) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return "", errors.NewSaveFailedError(path, alternate, err)
	}
	return target, nil
}

func writeReplacing(w Writer, path string) error {
	if err := os.Remove(path); err != nil && !stderrors.Is(err, fs.ErrNotExist) {
		return err
	}
	return w.WriteFile(path)
}

func splitName(path string) (dir, stem, ext string) {
	dir = filepath.Dir(path)
	base := filepath.Base(path)
	ext = filepath.Ext(base)
	stem = strings.TrimSuffix(base, ext)
	return dir, stem, ext
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
