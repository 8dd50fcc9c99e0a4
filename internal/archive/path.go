package archive

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

const (
	timestampLayout = "20060102_150405"

	// maxCollisions bounds the suffix search for captures within one second
	maxCollisions = 1000
)

// Filename returns {prefix}_{cal|obs}_{YYYYMMDD}_{HHMMSS}.npz for t in UTC
func Filename(prefix string, kind Kind, t time.Time) string {
	return fmt.Sprintf("%s_%s_%s%s", prefix, kind, t.UTC().Format(timestampLayout), Ext)
}

// NextPath returns a path in dir for a new archive. When an archive with the
// same name exists, a numeric suffix is appended instead of replacing it.
func NextPath(dir, prefix string, kind Kind, t time.Time) (string, error) {
	name := Filename(prefix, kind, t)
	base := name[:len(name)-len(Ext)]

	for i := 0; i < maxCollisions; i++ {
		path := filepath.Join(dir, name)

		_, err := os.Stat(path)
		if errors.Is(err, fs.ErrNotExist) {
			return path, nil
		}
		if err != nil {
			return "", fmt.Errorf("checking %s: %w", path, err)
		}

		name = fmt.Sprintf("%s_%d%s", base, i+1, Ext)
	}

	return "", fmt.Errorf("archive: too many archives named %s", base)
}
