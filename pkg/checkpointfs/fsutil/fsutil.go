// Package fsutil contains the file primitives the checkpoint saver is built on.
//
// Blob writes go through a hidden temp file in the destination directory and
// are renamed into place, so readers never see a partially written blob.
// Names starting with TempPrefix are skipped by ListFiles.
package fsutil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// TempPrefix marks in-flight temp files.
const TempPrefix = ".tmp-"

const (
	dirPerm  = 0o755
	filePerm = 0o644
)

// Exists reports whether path exists. A missing path is not an error.
func Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// EnsureDir creates dir and any missing parents.
func EnsureDir(dir string) error {
	return os.MkdirAll(dir, dirPerm)
}

// ListDirs returns the names of the subdirectories of dir in name order.
func ListDirs(dir string) ([]string, error) {
	return list(dir, func(e fs.DirEntry) bool { return e.IsDir() })
}

// ListFiles returns the names of the regular files in dir in name order,
// excluding in-flight temp files.
func ListFiles(dir string) ([]string, error) {
	return list(dir, func(e fs.DirEntry) bool {
		return e.Type().IsRegular() && !strings.HasPrefix(e.Name(), TempPrefix)
	})
}

func list(dir string, keep func(fs.DirEntry) bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if keep(e) {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// ReadBinary reads the whole file.
func ReadBinary(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// WriteBinary replaces path with data via temp file and rename.
func WriteBinary(path string, data []byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), TempPrefix+"*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Chmod(filePerm); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// ReadJSON decodes the JSON document at path into v.
func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return nil
}

// WriteJSON writes v as an indented JSON document.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return WriteBinary(path, data)
}

// RemoveAll deletes path recursively. A missing path is not an error.
func RemoveAll(path string) error {
	err := os.RemoveAll(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// IsNotExist reports whether err means the path does not exist.
func IsNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
