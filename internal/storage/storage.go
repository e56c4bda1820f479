// Package storage keeps profile images on the local disk or in an S3
// bucket.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

var (
	ErrNotFound   = errors.New("object not found")
	ErrInvalidKey = errors.New("invalid object key")
)

// AvatarStore saves profile images and serves them back by key.
type AvatarStore interface {
	// Save stores the image under key and returns the reference clients use
	// to fetch it.
	Save(ctx context.Context, key, contentType string, body io.Reader) (string, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// NewAvatarKey returns a unique object key for an avatar of userID.
func NewAvatarKey(userID uint, ext string) (string, error) {
	id, err := gonanoid.New(12)
	if err != nil {
		return "", err
	}
	ext = strings.TrimPrefix(strings.ToLower(ext), ".")
	return fmt.Sprintf("user_%d_%s.%s", userID, id, ext), nil
}

// validKey accepts plain file names only.
func validKey(key string) bool {
	if key == "" || key == "." || key == ".." {
		return false
	}
	return path.Base(key) == key && !strings.ContainsAny(key, `/\`)
}
