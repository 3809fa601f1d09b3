package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/classgate/classgate-api/internal/middleware"
	"github.com/classgate/classgate-api/internal/models"
	"github.com/classgate/classgate-api/internal/service"
	appErrors "github.com/classgate/classgate-api/pkg/errors"
	"github.com/classgate/classgate-api/pkg/response"
)

type accessRequestPolicy interface {
	SubmitAndNotify(ctx context.Context, req service.SubmitAccessRequest) (*models.AccessRequest, error)
	ApproveRequestAndGrant(ctx context.Context, requestID, actorID string) (*models.Grant, error)
	RejectRequest(ctx context.Context, requestID, actorID string, req service.RejectAccessRequest) (*models.AccessRequest, error)
}

type accessRequestLister interface {
	List(ctx context.Context, filter models.AccessRequestFilter) ([]models.AccessRequestDetail, *models.Pagination, error)
}

type ledgerExporter interface {
	ExportLedger(ctx context.Context, filter models.AccessRequestFilter, format service.ExportFormat) (*service.ExportResult, error)
}

// AccessRequestHandler exposes the join-request ledger endpoints.
type AccessRequestHandler struct {
	policy   accessRequestPolicy
	requests accessRequestLister
	exports  ledgerExporter
}

// NewAccessRequestHandler constructs AccessRequestHandler.
func NewAccessRequestHandler(policy accessRequestPolicy, requests accessRequestLister, exports ledgerExporter) *AccessRequestHandler {
	return &AccessRequestHandler{policy: policy, requests: requests, exports: exports}
}

// Create godoc
// @Summary Submit a request to join a class
// @Tags Access Requests
// @Accept json
// @Produce json
// @Param payload body service.SubmitAccessRequest true "Request payload"
// @Success 201 {object} response.Envelope
// @Router /access-requests [post]
func (h *AccessRequestHandler) Create(c *gin.Context) {
	var req service.SubmitAccessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	claims, ok := middleware.Claims(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	req.RequesterID = claims.UserID

	request, err := h.policy.SubmitAndNotify(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, request)
}

// List godoc
// @Summary List access requests
// @Tags Access Requests
// @Produce json
// @Param classId query string false "Filter by class"
// @Param requesterId query string false "Filter by requester"
// @Param status query string false "Filter by status"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /access-requests [get]
func (h *AccessRequestHandler) List(c *gin.Context) {
	filter := requestFilterFromQuery(c)

	requests, pagination, err := h.requests.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requests, pagination)
}

// Approve godoc
// @Summary Approve an access request and create the membership grant
// @Tags Access Requests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /access-requests/{id}/approve [post]
func (h *AccessRequestHandler) Approve(c *gin.Context) {
	claims, ok := middleware.Claims(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	grant, err := h.policy.ApproveRequestAndGrant(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grant, nil)
}

// Reject godoc
// @Summary Reject an access request with a reason
// @Tags Access Requests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body service.RejectAccessRequest true "Rejection payload"
// @Success 200 {object} response.Envelope
// @Router /access-requests/{id}/reject [post]
func (h *AccessRequestHandler) Reject(c *gin.Context) {
	var req service.RejectAccessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	claims, ok := middleware.Claims(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	request, err := h.policy.RejectRequest(c.Request.Context(), c.Param("id"), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Export godoc
// @Summary Export the access-request ledger
// @Tags Access Requests
// @Produce text/csv
// @Param format query string false "csv or pdf"
// @Param classId query string false "Filter by class"
// @Param status query string false "Filter by status"
// @Success 200 {file} binary
// @Router /access-requests/export [get]
func (h *AccessRequestHandler) Export(c *gin.Context) {
	if h.exports == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrNotFound, "exports are disabled"))
		return
	}
	filter := requestFilterFromQuery(c)
	format := service.ExportFormat(strings.ToLower(c.DefaultQuery("format", "csv")))

	result, err := h.exports.ExportLedger(c.Request.Context(), filter, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+result.Filename+`"`)
	c.Data(http.StatusOK, result.ContentType, result.Content)
}

func requestFilterFromQuery(c *gin.Context) models.AccessRequestFilter {
	var filter models.AccessRequestFilter
	filter.ClassID = c.Query("classId")
	filter.RequesterID = c.Query("requesterId")
	filter.Status = models.AccessRequestStatus(strings.ToUpper(c.Query("status")))
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")
	return filter
}
