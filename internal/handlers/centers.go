package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/chenyahui/gin-cache/persist"
	"github.com/gin-gonic/gin"
	"github.com/jellydator/ttlcache/v2"
	"go.uber.org/zap"

	"github.com/example/eco-collect/internal/auth"
	"github.com/example/eco-collect/internal/logging"
	"github.com/example/eco-collect/internal/usecase"
)

type centerRequest struct {
	Name        *string         `json:"name"`
	Company     *string         `json:"company"`
	Location    *string         `json:"location"`
	LocationURL *string         `json:"location_url"`
	TimeOpen    *string         `json:"time_open"`
	Contact     *string         `json:"contact"`
	Metadata    json.RawMessage `json:"metadata"`
	CreatedBy   *uint           `json:"created_by"`
}

func (a *api) listCenters(c *gin.Context) {
	centers, err := a.Centers.List(c.Request.Context())
	if err != nil {
		a.respondError(c, "handlers.list_centers", err)
		return
	}
	c.JSON(http.StatusOK, centers)
}

func (a *api) getCenter(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	center, err := a.Centers.Get(c.Request.Context(), id)
	if err != nil {
		a.respondError(c, "handlers.get_center", err)
		return
	}
	c.JSON(http.StatusOK, center)
}

func (a *api) createCenter(c *gin.Context) {
	var body centerRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		a.respondBindError(c, err)
		return
	}

	var createdBy uint
	if body.CreatedBy != nil {
		createdBy = *body.CreatedBy
	} else if userID, ok := auth.GetUserID(c.Request.Context()); ok {
		createdBy = userID
	}

	center, err := a.Centers.Create(c.Request.Context(), usecase.CenterInput{
		Name:        deref(body.Name),
		Company:     body.Company,
		Location:    deref(body.Location),
		LocationURL: body.LocationURL,
		TimeOpen:    body.TimeOpen,
		Contact:     body.Contact,
		Metadata:    body.Metadata,
	}, createdBy)
	if err != nil {
		a.respondError(c, "handlers.create_center", err)
		return
	}

	a.invalidateCentres(c)
	c.Header("Location", fmt.Sprintf("/api/centers/%d", center.ID))
	c.JSON(http.StatusCreated, center)
}

func (a *api) updateCenter(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var body centerRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		a.respondBindError(c, err)
		return
	}

	patch := usecase.CenterPatch{
		Name:        body.Name,
		Company:     body.Company,
		Location:    body.Location,
		LocationURL: body.LocationURL,
		TimeOpen:    body.TimeOpen,
		Contact:     body.Contact,
	}
	if len(body.Metadata) > 0 {
		patch.Metadata = &body.Metadata
	}

	center, err := a.Centers.Update(c.Request.Context(), id, patch)
	if err != nil {
		a.respondError(c, "handlers.update_center", err)
		return
	}
	a.invalidateCentres(c)
	c.JSON(http.StatusOK, center)
}

func (a *api) deleteCenter(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := a.Centers.Delete(c.Request.Context(), id); err != nil {
		a.respondError(c, "handlers.delete_center", err)
		return
	}
	a.invalidateCentres(c)
	c.Status(http.StatusNoContent)
}

// invalidateCentres drops the cached centre directory after a write.
func (a *api) invalidateCentres(c *gin.Context) {
	err := a.responseCache.Delete(centresCacheKey)
	if err == nil || errors.Is(err, ttlcache.ErrNotFound) || errors.Is(err, persist.ErrCacheMiss) {
		return
	}
	requestID := logging.RequestIDFromContext(c.Request.Context())
	logging.WithOperation(a.logger, "handlers.invalidate_centres", requestID).
		Warn("failed to drop cached centre directory", zap.Error(err))
}

// pathID parses the :id parameter, answering 400 when it is not a positive
// integer.
func pathID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		writeError(c, http.StatusBadRequest, codeValidation, "invalid id")
		return 0, false
	}
	return uint(id), true
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
