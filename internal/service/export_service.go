package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/classgate/classgate-api/internal/models"
	appErrors "github.com/classgate/classgate-api/pkg/errors"
	"github.com/classgate/classgate-api/pkg/export"
)

type accessRequestLister interface {
	List(ctx context.Context, filter models.AccessRequestFilter) ([]models.AccessRequestDetail, int, error)
}

// ExportFormat identifies a supported export renderer.
type ExportFormat string

const (
	ExportCSV ExportFormat = "csv"
	ExportPDF ExportFormat = "pdf"
)

// ExportResult carries the rendered document.
type ExportResult struct {
	Filename    string
	ContentType string
	Content     []byte
}

// ExportService renders the access-request ledger for administrators.
type ExportService struct {
	requests accessRequestLister
	csv      *export.CSVExporter
	pdf      *export.PDFExporter
	logger   *zap.Logger
}

// NewExportService constructs ExportService.
func NewExportService(requests accessRequestLister, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		requests: requests,
		csv:      export.NewCSVExporter(),
		pdf:      export.NewPDFExporter(),
		logger:   logger,
	}
}

var ledgerColumns = []string{"Request ID", "Requester", "Class", "Status", "Reason", "Requested At", "Resolved At"}

// ExportLedger renders the filtered request ledger in the given format.
func (s *ExportService) ExportLedger(ctx context.Context, filter models.AccessRequestFilter, format ExportFormat) (*ExportResult, error) {
	// Export ignores pagination and pulls the full filtered set.
	filter.Page = 1
	filter.PageSize = 100

	var rows [][]string
	for {
		requests, total, err := s.requests.List(ctx, filter)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load ledger for export")
		}
		for _, request := range requests {
			rows = append(rows, ledgerRow(request))
		}
		if filter.Page*filter.PageSize >= total || len(requests) == 0 {
			break
		}
		filter.Page++
	}

	table := export.Table{Title: "Access Request Ledger", Columns: ledgerColumns, Rows: rows}
	stamp := time.Now().UTC().Format("20060102-150405")

	switch format {
	case ExportCSV:
		content, err := s.csv.Render(table)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv export")
		}
		return &ExportResult{
			Filename:    fmt.Sprintf("access-requests-%s.csv", stamp),
			ContentType: "text/csv",
			Content:     content,
		}, nil
	case ExportPDF:
		content, err := s.pdf.Render(table)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf export")
		}
		return &ExportResult{
			Filename:    fmt.Sprintf("access-requests-%s.pdf", stamp),
			ContentType: "application/pdf",
			Content:     content,
		}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format: "+string(format))
	}
}

func ledgerRow(request models.AccessRequestDetail) []string {
	reason := ""
	if request.RejectionReason != nil {
		reason = *request.RejectionReason
	}
	resolved := ""
	if request.ResolvedAt != nil {
		resolved = request.ResolvedAt.UTC().Format(time.RFC3339)
	}
	requester := request.RequesterName
	if strings.TrimSpace(requester) == "" {
		requester = request.RequesterID
	}
	class := request.ClassName
	if strings.TrimSpace(class) == "" {
		class = request.ClassID
	}
	return []string{
		request.ID,
		requester,
		class,
		string(request.Status),
		reason,
		request.RequestedAt.UTC().Format(time.RFC3339),
		resolved,
	}
}
