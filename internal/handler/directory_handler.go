package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/classgate/classgate-api/internal/models"
	"github.com/classgate/classgate-api/pkg/response"
)

type roleResolver interface {
	ResolveDetailed(ctx context.Context, userID string) (*models.RoleResolution, error)
}

// DirectoryHandler exposes role-resolution lookups for administrators.
type DirectoryHandler struct {
	directory roleResolver
}

// NewDirectoryHandler constructs DirectoryHandler.
func NewDirectoryHandler(directory roleResolver) *DirectoryHandler {
	return &DirectoryHandler{directory: directory}
}

// ResolveRole godoc
// @Summary Resolve a user's participant role with its signal
// @Tags Directory
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} response.Envelope
// @Router /directory/{id}/role [get]
func (h *DirectoryHandler) ResolveRole(c *gin.Context) {
	resolution, err := h.directory.ResolveDetailed(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, resolution, nil)
}
