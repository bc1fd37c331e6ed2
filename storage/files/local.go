// Package filestore implements core.FileStorage backends.
package filestore

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/trezcool/mashauri/core"
)

// localStorage keeps blobs as flat files under a root directory.
type localStorage struct {
	root string
}

var _ core.FileStorage = (*localStorage)(nil)

func NewLocalStorage(root string) (core.FileStorage, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.Wrap(err, "creating upload directory")
	}
	return &localStorage{root: root}, nil
}

// path validates key and resolves it under the root. Keys are opaque names,
// never paths.
func (st *localStorage) path(key string) (string, error) {
	if key == "" || filepath.Base(key) != key {
		return "", errors.Errorf("invalid storage key %q", key)
	}
	return filepath.Join(st.root, key), nil
}

func (st *localStorage) Save(_ context.Context, key string, r io.Reader) (int64, error) {
	path, err := st.path(key)
	if err != nil {
		return 0, err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return 0, errors.Wrap(err, "creating file")
	}
	size, err := io.Copy(f, r)
	if err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return 0, errors.Wrap(err, "writing file")
	}
	if err = f.Close(); err != nil {
		_ = os.Remove(path)
		return 0, errors.Wrap(err, "closing file")
	}
	return size, nil
}

func (st *localStorage) Open(_ context.Context, key string) (io.ReadCloser, error) {
	path, err := st.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, core.ErrFileNotFound
		}
		return nil, errors.Wrap(err, "opening file")
	}
	return f, nil
}

func (st *localStorage) Remove(_ context.Context, key string) error {
	path, err := st.path(key)
	if err != nil {
		return err
	}
	if err = os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "removing file")
	}
	return nil
}
