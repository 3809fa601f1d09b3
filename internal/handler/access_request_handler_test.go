package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/classgate/classgate-api/internal/middleware"
	"github.com/classgate/classgate-api/internal/models"
	"github.com/classgate/classgate-api/internal/service"
	appErrors "github.com/classgate/classgate-api/pkg/errors"
	"github.com/classgate/classgate-api/pkg/response"
)

type stubAccessRequestPolicy struct {
	submitted  *service.SubmitAccessRequest
	submitErr  error
	grant      *models.Grant
	approveErr error
	rejected   *models.AccessRequest
	rejectErr  error
}

func (s *stubAccessRequestPolicy) SubmitAndNotify(ctx context.Context, req service.SubmitAccessRequest) (*models.AccessRequest, error) {
	s.submitted = &req
	if s.submitErr != nil {
		return nil, s.submitErr
	}
	return &models.AccessRequest{ID: "req-1", RequesterID: req.RequesterID, ClassID: req.ClassID, Status: models.AccessRequestPending}, nil
}

func (s *stubAccessRequestPolicy) ApproveRequestAndGrant(ctx context.Context, requestID, actorID string) (*models.Grant, error) {
	if s.approveErr != nil {
		return nil, s.approveErr
	}
	return s.grant, nil
}

func (s *stubAccessRequestPolicy) RejectRequest(ctx context.Context, requestID, actorID string, req service.RejectAccessRequest) (*models.AccessRequest, error) {
	if s.rejectErr != nil {
		return nil, s.rejectErr
	}
	return s.rejected, nil
}

type stubRequestLister struct {
	filter models.AccessRequestFilter
}

func (s *stubRequestLister) List(ctx context.Context, filter models.AccessRequestFilter) ([]models.AccessRequestDetail, *models.Pagination, error) {
	s.filter = filter
	return []models.AccessRequestDetail{}, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize}, nil
}

type stubExporter struct {
	format service.ExportFormat
}

func (s *stubExporter) ExportLedger(ctx context.Context, filter models.AccessRequestFilter, format service.ExportFormat) (*service.ExportResult, error) {
	s.format = format
	return &service.ExportResult{Filename: "ledger.csv", ContentType: "text/csv", Content: []byte("a,b\n")}, nil
}

func testContext(t *testing.T, method, target, body string) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(recorder)
	if body != "" {
		c.Request = httptest.NewRequest(method, target, strings.NewReader(body))
		c.Request.Header.Set("Content-Type", "application/json")
	} else {
		c.Request = httptest.NewRequest(method, target, nil)
	}
	return c, recorder
}

func authenticate(c *gin.Context, userID string, role models.UserRole) {
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: userID, Role: role})
}

func TestAccessRequestHandlerCreateUsesCallerIdentity(t *testing.T) {
	policy := &stubAccessRequestPolicy{}
	handler := NewAccessRequestHandler(policy, &stubRequestLister{}, nil)

	// The body names another requester; the authenticated caller wins.
	c, recorder := testContext(t, http.MethodPost, "/access-requests", `{"class_id":"class-1","requester_id":"someone-else"}`)
	authenticate(c, "user-1", models.RoleMember)

	handler.Create(c)

	require.Equal(t, http.StatusCreated, recorder.Code)
	require.NotNil(t, policy.submitted)
	require.Equal(t, "user-1", policy.submitted.RequesterID)
	require.Equal(t, "class-1", policy.submitted.ClassID)
}

func TestAccessRequestHandlerCreateUnauthenticated(t *testing.T) {
	handler := NewAccessRequestHandler(&stubAccessRequestPolicy{}, &stubRequestLister{}, nil)

	c, recorder := testContext(t, http.MethodPost, "/access-requests", `{"class_id":"class-1"}`)
	handler.Create(c)

	require.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestAccessRequestHandlerCreateDuplicate(t *testing.T) {
	policy := &stubAccessRequestPolicy{submitErr: appErrors.ErrDuplicatePendingRequest}
	handler := NewAccessRequestHandler(policy, &stubRequestLister{}, nil)

	c, recorder := testContext(t, http.MethodPost, "/access-requests", `{"class_id":"class-1"}`)
	authenticate(c, "user-1", models.RoleMember)

	handler.Create(c)

	require.Equal(t, http.StatusConflict, recorder.Code)
	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Error)
	require.Equal(t, "DUPLICATE_PENDING_REQUEST", envelope.Error.Code)
}

func TestAccessRequestHandlerListParsesQuery(t *testing.T) {
	lister := &stubRequestLister{}
	handler := NewAccessRequestHandler(&stubAccessRequestPolicy{}, lister, nil)

	c, recorder := testContext(t, http.MethodGet, "/access-requests?classId=class-1&status=pending&page=2&limit=10", "")
	handler.List(c)

	require.Equal(t, http.StatusOK, recorder.Code)
	require.Equal(t, "class-1", lister.filter.ClassID)
	require.Equal(t, models.AccessRequestPending, lister.filter.Status)
	require.Equal(t, 2, lister.filter.Page)
	require.Equal(t, 10, lister.filter.PageSize)
}

func TestAccessRequestHandlerApprove(t *testing.T) {
	policy := &stubAccessRequestPolicy{grant: &models.Grant{UserID: "user-1", ClassID: "class-1", Role: models.RoleParent}}
	handler := NewAccessRequestHandler(policy, &stubRequestLister{}, nil)

	c, recorder := testContext(t, http.MethodPost, "/access-requests/req-1/approve", "")
	c.Params = gin.Params{{Key: "id", Value: "req-1"}}
	authenticate(c, "admin-1", models.RoleAdmin)

	handler.Approve(c)
	require.Equal(t, http.StatusOK, recorder.Code)
}

func TestAccessRequestHandlerApproveConflict(t *testing.T) {
	policy := &stubAccessRequestPolicy{approveErr: appErrors.Clone(appErrors.ErrInvalidState, "access request already resolved")}
	handler := NewAccessRequestHandler(policy, &stubRequestLister{}, nil)

	c, recorder := testContext(t, http.MethodPost, "/access-requests/req-1/approve", "")
	c.Params = gin.Params{{Key: "id", Value: "req-1"}}
	authenticate(c, "admin-1", models.RoleAdmin)

	handler.Approve(c)
	require.Equal(t, http.StatusConflict, recorder.Code)
}

func TestAccessRequestHandlerRejectEmptyReason(t *testing.T) {
	policy := &stubAccessRequestPolicy{rejectErr: appErrors.Clone(appErrors.ErrValidation, "rejection reason is required")}
	handler := NewAccessRequestHandler(policy, &stubRequestLister{}, nil)

	c, recorder := testContext(t, http.MethodPost, "/access-requests/req-1/reject", `{"reason":""}`)
	c.Params = gin.Params{{Key: "id", Value: "req-1"}}
	authenticate(c, "admin-1", models.RoleAdmin)

	handler.Reject(c)
	require.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestAccessRequestHandlerExport(t *testing.T) {
	exporter := &stubExporter{}
	handler := NewAccessRequestHandler(&stubAccessRequestPolicy{}, &stubRequestLister{}, exporter)

	c, recorder := testContext(t, http.MethodGet, "/access-requests/export?format=CSV", "")
	handler.Export(c)

	require.Equal(t, http.StatusOK, recorder.Code)
	require.Equal(t, service.ExportCSV, exporter.format)
	require.Contains(t, recorder.Header().Get("Content-Disposition"), "ledger.csv")
	require.Equal(t, "text/csv", recorder.Header().Get("Content-Type"))
}

func TestAccessRequestHandlerExportDisabled(t *testing.T) {
	handler := NewAccessRequestHandler(&stubAccessRequestPolicy{}, &stubRequestLister{}, nil)

	c, recorder := testContext(t, http.MethodGet, "/access-requests/export", "")
	handler.Export(c)

	require.Equal(t, http.StatusNotFound, recorder.Code)
}
