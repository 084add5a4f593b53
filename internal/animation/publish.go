package animation

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"anigiffy/internal/fileutil"
)

// WriteFile publishes data at path through a temp file in the same
// directory, so path either holds the complete GIF or is left untouched.
func WriteFile(path string, data []byte) error {
	if err := fileutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return &IOError{Op: "write gif", Err: err}
	}
	return nil
}

// DirResolver resolves references relative to base. Absolute references are
// used as given.
func DirResolver(base string) ResolveFunc {
	return func(ref string) (string, error) {
		path := filepath.FromSlash(ref)
		if !filepath.IsAbs(path) {
			path = filepath.Join(base, path)
		}
		info, err := os.Stat(path)
		if errors.Is(err, fs.ErrNotExist) {
			return "", ErrSourceNotFound
		}
		if err != nil {
			return "", err
		}
		if info.IsDir() {
			return "", ErrSourceNotFound
		}
		return path, nil
	}
}
