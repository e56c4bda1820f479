package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/example/eco-collect/internal/auth"
	"github.com/example/eco-collect/internal/usecase"
	"github.com/example/eco-collect/internal/validators"
)

func (a *api) submitUpload(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		if isBodyTooLarge(err) {
			writeError(c, http.StatusRequestEntityTooLarge, codePayloadTooLarge, "Request body size exceeds limit")
			return
		}
		writeError(c, http.StatusBadRequest, codeValidation, "No file part")
		return
	}

	input := usecase.SubmitInput{
		Filename: fh.Filename,
		Preview:  strings.EqualFold(c.PostForm("preview"), "true"),
	}
	if raw := strings.TrimSpace(c.PostForm("weight")); raw != "" {
		weight, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			writeError(c, http.StatusBadRequest, codeValidation, "weight must be a number")
			return
		}
		input.Weight = &weight
	}
	if raw := strings.TrimSpace(c.PostForm("centre_id")); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(c, http.StatusBadRequest, codeValidation, "centre_id must be an integer")
			return
		}
		centreID := uint(id)
		input.CentreID = &centreID
	}

	status, file, err := validators.ImageValidator(fh, a.Options.AllowedExtensions, a.Options.MaxUploadSize)
	if err != nil {
		a.respondFileError(c, "handlers.submit_upload", status, err)
		return
	}
	defer file.Close()
	input.Body = file

	identity, _ := auth.IdentityFromContext(c.Request.Context())
	result, err := a.Uploads.Submit(c.Request.Context(), identity, input)
	if err != nil {
		a.respondError(c, "handlers.submit_upload", err)
		return
	}

	if result.Preview {
		c.JSON(http.StatusOK, gin.H{
			"upload": gin.H{
				"category":       result.Category,
				"confidence":     result.Confidence,
				"points_awarded": result.PointsAwarded,
			},
			"preview": true,
		})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message": "File uploaded and classified successfully",
		"upload":  newUploadView(result.Upload),
	})
}

func (a *api) listMyUploads(c *gin.Context) {
	identity, _ := auth.IdentityFromContext(c.Request.Context())
	uploads, err := a.Uploads.ListMine(c.Request.Context(), identity)
	if err != nil {
		a.respondError(c, "handlers.list_my_uploads", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"uploads": newUploadViews(uploads)})
}

func (a *api) history(c *gin.Context) {
	identity, _ := auth.IdentityFromContext(c.Request.Context())
	uploads, err := a.Uploads.History(c.Request.Context(), identity)
	if err != nil {
		a.respondError(c, "handlers.history", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"submissions": newSubmissionViews(uploads)})
}

func (a *api) centres(c *gin.Context) {
	centers, err := a.Uploads.Centres(c.Request.Context())
	if err != nil {
		a.respondError(c, "handlers.centres", err)
		return
	}
	out := make([]centreSummary, 0, len(centers))
	for _, center := range centers {
		out = append(out, centreSummary{ID: center.ID, Name: center.Name, Location: center.Location})
	}
	c.JSON(http.StatusOK, out)
}

func (a *api) listAllUploads(c *gin.Context) {
	var notVerified *bool
	if raw := c.Query("not_verified"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(c, http.StatusBadRequest, codeValidation, "not_verified must be true or false")
			return
		}
		notVerified = &v
	}

	identity, _ := auth.IdentityFromContext(c.Request.Context())
	uploads, err := a.Uploads.ListAll(c.Request.Context(), identity, notVerified)
	if err != nil {
		a.respondError(c, "handlers.list_all_uploads", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"uploads": newUploadViews(uploads),
		"count":   len(uploads),
	})
}

func (a *api) approveUpload(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	identity, _ := auth.IdentityFromContext(c.Request.Context())
	result, err := a.Uploads.Approve(c.Request.Context(), identity, id)
	if err != nil {
		a.respondError(c, "handlers.approve_upload", err)
		return
	}

	body := gin.H{
		"message": result.Message,
		"upload":  newUploadView(&result.Upload),
	}
	if result.PointScore != nil {
		body["user_point_score"] = *result.PointScore
	}
	c.JSON(http.StatusOK, body)
}

func (a *api) stats(c *gin.Context) {
	identity, _ := auth.IdentityFromContext(c.Request.Context())
	summary, err := a.Uploads.GetStats(c.Request.Context(), identity)
	if err != nil {
		a.respondError(c, "handlers.stats", err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (a *api) duplicates(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	identity, _ := auth.IdentityFromContext(c.Request.Context())
	report, err := a.Uploads.GetDuplicateReport(c.Request.Context(), identity, id)
	if err != nil {
		a.respondError(c, "handlers.duplicates", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"upload":     newUploadView(report.Upload),
		"duplicates": newUploadViews(report.Duplicates),
		"count":      len(report.Duplicates),
	})
}
