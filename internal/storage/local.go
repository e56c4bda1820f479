package storage

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"path/filepath"

	"github.com/spf13/afero"
)

// LocalStore keeps avatars in a directory and serves them through the API.
type LocalStore struct {
	fs        afero.Fs
	dir       string
	publicURL string
}

// NewLocalStore creates dir on fsys if needed. publicURL is the base the
// API is reachable under; saved avatars are served from
// {publicURL}/profile/uploads/{key}.
func NewLocalStore(fsys afero.Fs, dir, publicURL string) (*LocalStore, error) {
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &LocalStore{fs: fsys, dir: dir, publicURL: publicURL}, nil
}

func (s *LocalStore) Save(_ context.Context, key, _ string, body io.Reader) (string, error) {
	if !validKey(key) {
		return "", ErrInvalidKey
	}

	f, err := s.fs.Create(filepath.Join(s.dir, key))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		_ = s.fs.Remove(filepath.Join(s.dir, key))
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}

	return s.publicURL + "/profile/uploads/" + key, nil
}

func (s *LocalStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	if !validKey(key) {
		return nil, ErrNotFound
	}

	f, err := s.fs.Open(filepath.Join(s.dir, key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}
