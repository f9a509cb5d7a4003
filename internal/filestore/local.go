package filestore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/doctrail/doctrail/internal/pkg/errs"
)

type localStore struct {
	dir string
}

func newLocalStore(dir string) (Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("local store dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return &localStore{dir: dir}, nil
}

func (s *localStore) Save(ctx context.Context, key string, r io.ReadSeeker, size int64) error {
	_ = ctx
	if err := validateKey(key); err != nil {
		return err
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return errs.Transient(err)
	}
	path := filepath.Join(s.dir, key)
	tmp := path + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return errs.Transient(err)
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		os.Remove(tmp)
		return errs.Transient(err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return errs.Transient(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return errs.Transient(err)
	}
	return nil
}

func (s *localStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	_ = ctx
	if err := validateKey(key); err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(s.dir, key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.ErrNotFound
		}
		return nil, errs.Transient(err)
	}
	return f, nil
}

func (s *localStore) Delete(ctx context.Context, key string) error {
	_ = ctx
	if err := validateKey(key); err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(s.dir, key)); err != nil && !os.IsNotExist(err) {
		return errs.Transient(err)
	}
	return nil
}
