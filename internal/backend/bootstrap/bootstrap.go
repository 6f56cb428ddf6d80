package bootstrap

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
)

// DefaultDirPermissions is used for every directory created by EnsureDir
const DefaultDirPermissions = 0755

// EnsureDir makes sure the directory at path exists. It creates a single level
// (parents are not created) and reports whether the directory existed before
// the call. Errors other than "does not exist" are returned to the caller.
func EnsureDir(path string) (existed bool, err error) {
	info, err := os.Stat(path)
	if err == nil {
		if !info.IsDir() {
			return true, fmt.Errorf("path %s exists but is not a directory", path)
		}
		slog.Debug("directory already exists", "path", path)
		return true, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return false, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	if err := os.Mkdir(path, DefaultDirPermissions); err != nil {
		// Another process created it between Stat and Mkdir
		if errors.Is(err, fs.ErrExist) {
			return true, nil
		}
		return false, fmt.Errorf("failed to create directory %s: %w", path, err)
	}

	slog.Info("created directory", "path", path)
	return false, nil
}
