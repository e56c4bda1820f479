package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"

	"github.com/example/eco-collect/internal/auth"
	"github.com/example/eco-collect/internal/validators"
)

// maxAvatarRead bounds how much of a stored avatar is served.
const maxAvatarRead = 32 << 20

func (a *api) profile(c *gin.Context) {
	identity, _ := auth.IdentityFromContext(c.Request.Context())
	profile, err := a.Profiles.Get(c.Request.Context(), identity)
	if err != nil {
		a.respondError(c, "handlers.profile", err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (a *api) uploadAvatar(c *gin.Context) {
	fh, err := c.FormFile("image")
	if err != nil {
		if isBodyTooLarge(err) {
			writeError(c, http.StatusRequestEntityTooLarge, codePayloadTooLarge, "Request body size exceeds limit")
			return
		}
		writeError(c, http.StatusBadRequest, codeValidation, "No image file provided")
		return
	}

	status, file, err := validators.ImageValidator(fh, a.Options.AllowedExtensions, a.Options.MaxUploadSize)
	if err != nil {
		a.respondFileError(c, "handlers.upload_avatar", status, err)
		return
	}
	defer file.Close()

	identity, _ := auth.IdentityFromContext(c.Request.Context())
	ref, err := a.Profiles.UploadAvatar(c.Request.Context(), identity, fh.Filename, fh.Header.Get("Content-Type"), file)
	if err != nil {
		a.respondError(c, "handlers.upload_avatar", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Avatar uploaded successfully",
		"avatar":  ref,
	})
}

func (a *api) serveAvatar(c *gin.Context) {
	rc, err := a.Profiles.OpenAvatar(c.Request.Context(), c.Param("filename"))
	if err != nil {
		a.respondError(c, "handlers.serve_avatar", err)
		return
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxAvatarRead))
	if err != nil {
		a.respondError(c, "handlers.serve_avatar", err)
		return
	}
	c.Header("Cache-Control", "public, max-age=3600")
	c.Data(http.StatusOK, mimetype.Detect(data).String(), data)
}

// respondFileError answers a rejected file with the status chosen by the
// validator.
func (a *api) respondFileError(c *gin.Context, operation string, status int, err error) {
	switch status {
	case http.StatusBadRequest:
		writeError(c, status, codeValidation, fileErrorMessage(err))
	case http.StatusRequestEntityTooLarge:
		writeError(c, status, codePayloadTooLarge, "File size exceeds limit")
	case http.StatusUnsupportedMediaType:
		writeError(c, status, codeUnsupportedMedia, "File is not an image")
	default:
		a.respondError(c, operation, err)
	}
}

func fileErrorMessage(err error) string {
	switch {
	case errors.Is(err, validators.ErrNoFile), errors.Is(err, validators.ErrNoFileName):
		return "No selected file"
	case errors.Is(err, validators.ErrExtensionNotAllowed):
		return "File type not allowed"
	default:
		return err.Error()
	}
}
