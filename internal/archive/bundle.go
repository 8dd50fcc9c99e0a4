package archive

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
)

// Bundle packs the archives at paths into a gzip-compressed tarball at dest.
// Entries are stored by base name in the given order. The tarball is written
// atomically.
func Bundle(dest string, paths []string) (err error) {
	if len(paths) == 0 {
		return fmt.Errorf("archive: nothing to bundle")
	}

	pf, err := renameio.NewPendingFile(dest, renameio.WithPermissions(filePerm))
	if err != nil {
		return &WriteError{Path: dest, Err: err}
	}
	defer func() { _ = pf.Cleanup() }()

	gz := gzip.NewWriter(pf)
	tw := tar.NewWriter(gz)

	for _, path := range paths {
		if err = addFile(tw, path); err != nil {
			return &WriteError{Path: dest, Err: err}
		}
	}

	if err = tw.Close(); err != nil {
		return &WriteError{Path: dest, Err: err}
	}
	if err = gz.Close(); err != nil {
		return &WriteError{Path: dest, Err: err}
	}
	if err = pf.CloseAtomicallyReplace(); err != nil {
		return &WriteError{Path: dest, Err: err}
	}

	return nil
}

func addFile(tw *tar.Writer, path string) (err error) {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer closeWithError(f, &err)

	info, err := f.Stat()
	if err != nil {
		return err
	}

	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return fmt.Errorf("building header for %s: %w", path, err)
	}
	hdr.Name = filepath.Base(path)

	if err = tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("writing header for %s: %w", path, err)
	}
	if _, err = io.Copy(tw, f); err != nil {
		return fmt.Errorf("copying %s: %w", path, err)
	}

	return nil
}
