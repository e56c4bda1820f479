package validators

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

var (
	ErrNoFile              = errors.New("no file part")
	ErrNoFileName          = errors.New("no selected file")
	ErrFileTooLarge        = errors.New("file too large")
	ErrFileNameTooLong     = errors.New("file name is too long")
	ErrExtensionNotAllowed = errors.New("file type not allowed")
	ErrNotAnImage          = errors.New("file content is not an image")
)

const maxFileNameSize = 200

// Extension returns the lowercased extension of name without the dot.
func Extension(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}

// AllowedExtension reports whether the extension of name is in allowed.
func AllowedExtension(name string, allowed []string) bool {
	ext := Extension(name)
	if ext == "" {
		return false
	}
	for _, candidate := range allowed {
		if ext == candidate {
			return true
		}
	}
	return false
}

// ImageValidator checks an uploaded image and returns it opened and rewound.
// The returned status is the one to answer with when err is not nil.
func ImageValidator(fh *multipart.FileHeader, allowed []string, maxSize int64) (int, multipart.File, error) {
	if fh == nil {
		return http.StatusBadRequest, nil, ErrNoFile
	}

	if strings.TrimSpace(fh.Filename) == "" {
		return http.StatusBadRequest, nil, ErrNoFileName
	}

	if len(fh.Filename) > maxFileNameSize {
		return http.StatusBadRequest, nil, ErrFileNameTooLong
	}

	// The extension is cheap to check and easy to spoof; the content is
	// sniffed below.
	if !AllowedExtension(fh.Filename, allowed) {
		return http.StatusBadRequest, nil, ErrExtensionNotAllowed
	}

	if maxSize > 0 && fh.Size > maxSize {
		return http.StatusRequestEntityTooLarge, nil, ErrFileTooLarge
	}

	f, err := fh.Open()
	if err != nil {
		return http.StatusInternalServerError, nil, err
	}

	mime, err := mimetype.DetectReader(f)
	if err != nil {
		f.Close()
		return http.StatusInternalServerError, nil, err
	}

	if !IsImage(mime) {
		f.Close()
		return http.StatusUnsupportedMediaType, nil, ErrNotAnImage
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return http.StatusInternalServerError, nil, err
	}

	return 0, f, nil
}

// IsImage reports whether mime, or one of its parents, is an image type.
func IsImage(mime *mimetype.MIME) bool {
	for m := mime; m != nil; m = m.Parent() {
		if strings.HasPrefix(m.String(), "image/") {
			return true
		}
	}
	return false
}

// SniffImage reports whether data looks like an image.
func SniffImage(data []byte) bool {
	return IsImage(mimetype.Detect(data))
}
