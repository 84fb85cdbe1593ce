package fsutil

import (
	"os"
	"path/filepath"

	"github.com/juju/errors"
)

// WriteFileAtomic writes data to a temp file next to path and renames it into
// place, so readers see either the old or the new content.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Annotatef(err, "creating %s", dir)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.Annotatef(err, "creating temp file for %s", path)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Annotatef(err, "writing %s", tmpName)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Annotatef(err, "syncing %s", tmpName)
	}
	if err := tmp.Close(); err != nil {
		return errors.Trace(err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return errors.Trace(err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return errors.Annotatef(err, "replacing %s", path)
	}
	return nil
}

// CopyFile copies src to dst atomically, keeping the source permissions.
func CopyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return errors.Trace(err)
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return errors.Trace(err)
	}
	return WriteFileAtomic(dst, data, info.Mode().Perm())
}

// Exists reports whether path exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
