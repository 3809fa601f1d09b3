package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/classgate/classgate-api/internal/middleware"
	"github.com/classgate/classgate-api/internal/models"
	"github.com/classgate/classgate-api/internal/service"
	appErrors "github.com/classgate/classgate-api/pkg/errors"
	"github.com/classgate/classgate-api/pkg/response"
)

type classPolicy interface {
	ApproveClassByEstablishment(ctx context.Context, classID, establishmentID string) (*models.Class, error)
	ApproveClassSelf(ctx context.Context, classID, requesterID string) (*models.Class, error)
	RejectClass(ctx context.Context, classID, actorID string, self bool, req service.RejectClassRequest) (*models.Class, error)
	RevokeGrant(ctx context.Context, userID, classID, actorID string) error
	AssignRights(ctx context.Context, classID, actorID string, req service.AssignRightsRequest) (*models.PublicationRight, error)
	AssignModeratorWithRights(ctx context.Context, classID, userID, actorID string) (*models.PublicationRight, error)
	RemoveModerator(ctx context.Context, classID, actorID string) error
	CheckPublicationPermission(ctx context.Context, userID, classID string) (bool, error)
}

type classReader interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
}

// ApproveClassRequest identifies the establishment approving a class.
type ApproveClassRequest struct {
	EstablishmentID string `json:"establishment_id" binding:"required"`
}

// AssignModeratorRequest names the user becoming moderator.
type AssignModeratorRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// ClassHandler exposes the class lifecycle and rights endpoints.
type ClassHandler struct {
	policy  classPolicy
	classes classReader
}

// NewClassHandler constructs ClassHandler.
func NewClassHandler(policy classPolicy, classes classReader) *ClassHandler {
	return &ClassHandler{policy: policy, classes: classes}
}

// Get godoc
// @Summary Get a class
// @Tags Classes
// @Produce json
// @Param id path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Router /classes/{id} [get]
func (h *ClassHandler) Get(c *gin.Context) {
	class, err := h.classes.FindByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "class not found"))
		return
	}
	response.JSON(c, http.StatusOK, class, nil)
}

// Approve godoc
// @Summary Approve a class on establishment authority
// @Tags Classes
// @Accept json
// @Produce json
// @Param id path string true "Class ID"
// @Param payload body ApproveClassRequest true "Approval payload"
// @Success 200 {object} response.Envelope
// @Router /classes/{id}/approve [post]
func (h *ClassHandler) Approve(c *gin.Context) {
	var req ApproveClassRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	class, err := h.policy.ApproveClassByEstablishment(c.Request.Context(), c.Param("id"), req.EstablishmentID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, class, nil)
}

// SelfApprove godoc
// @Summary Approve an independent class as its creator
// @Tags Classes
// @Produce json
// @Param id path string true "Class ID"
// @Success 200 {object} response.Envelope
// @Router /classes/{id}/self-approve [post]
func (h *ClassHandler) SelfApprove(c *gin.Context) {
	claims, ok := middleware.Claims(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	class, err := h.policy.ApproveClassSelf(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, class, nil)
}

// Reject godoc
// @Summary Reject a pending class
// @Tags Classes
// @Accept json
// @Produce json
// @Param id path string true "Class ID"
// @Param payload body service.RejectClassRequest true "Rejection payload"
// @Success 200 {object} response.Envelope
// @Router /classes/{id}/reject [post]
func (h *ClassHandler) Reject(c *gin.Context) {
	var req service.RejectClassRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	claims, ok := middleware.Claims(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	// Creators reject their own pending class; establishments reject
	// classes under their reference. The audit rows differ, the
	// transition does not.
	self := c.Query("self") == "true"
	class, err := h.policy.RejectClass(c.Request.Context(), c.Param("id"), claims.UserID, self, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, class, nil)
}

// RevokeGrant godoc
// @Summary Revoke a user's membership in a class
// @Tags Classes
// @Produce json
// @Param id path string true "Class ID"
// @Param userId path string true "User ID"
// @Success 204
// @Router /classes/{id}/users/{userId} [delete]
func (h *ClassHandler) RevokeGrant(c *gin.Context) {
	claims, ok := middleware.Claims(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.policy.RevokeGrant(c.Request.Context(), c.Param("userId"), c.Param("id"), claims.UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// AssignRights godoc
// @Summary Assign publication rights to a class member
// @Tags Classes
// @Accept json
// @Produce json
// @Param id path string true "Class ID"
// @Param payload body service.AssignRightsRequest true "Rights payload"
// @Success 200 {object} response.Envelope
// @Router /classes/{id}/rights [post]
func (h *ClassHandler) AssignRights(c *gin.Context) {
	var req service.AssignRightsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	claims, ok := middleware.Claims(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	right, err := h.policy.AssignRights(c.Request.Context(), c.Param("id"), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, right, nil)
}

// AssignModerator godoc
// @Summary Assign the class moderator with default publication rights
// @Tags Classes
// @Accept json
// @Produce json
// @Param id path string true "Class ID"
// @Param payload body AssignModeratorRequest true "Moderator payload"
// @Success 200 {object} response.Envelope
// @Router /classes/{id}/moderator [post]
func (h *ClassHandler) AssignModerator(c *gin.Context) {
	var req AssignModeratorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	claims, ok := middleware.Claims(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	right, err := h.policy.AssignModeratorWithRights(c.Request.Context(), c.Param("id"), req.UserID, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, right, nil)
}

// RemoveModerator godoc
// @Summary Remove the class moderator
// @Tags Classes
// @Produce json
// @Param id path string true "Class ID"
// @Success 204
// @Router /classes/{id}/moderator [delete]
func (h *ClassHandler) RemoveModerator(c *gin.Context) {
	claims, ok := middleware.Claims(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.policy.RemoveModerator(c.Request.Context(), c.Param("id"), claims.UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// CheckPermission godoc
// @Summary Evaluate a user's publication permission in a class
// @Tags Classes
// @Produce json
// @Param id path string true "Class ID"
// @Param userId path string true "User ID"
// @Success 200 {object} response.Envelope
// @Router /classes/{id}/permissions/{userId} [get]
func (h *ClassHandler) CheckPermission(c *gin.Context) {
	allowed, err := h.policy.CheckPublicationPermission(c.Request.Context(), c.Param("userId"), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"user_id": c.Param("userId"), "class_id": c.Param("id"), "can_publish": allowed}, nil)
}
