package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/dispatch-api/internal/models"
	appErrors "github.com/noah-isme/dispatch-api/pkg/errors"
	"github.com/noah-isme/dispatch-api/pkg/export"
)

type requestViewer interface {
	Get(ctx context.Context, actor models.Actor, id string) (*models.ServiceRequest, error)
	ListActivities(ctx context.Context, actor models.Actor, id string) ([]models.RequestActivity, error)
}

// ExportResult is a rendered document ready to be streamed.
type ExportResult struct {
	Filename    string
	ContentType string
	Payload     []byte
}

// ExportService renders job sheets: request details followed by the activity log.
type ExportService struct {
	requests requestViewer
	logger   *zap.Logger
}

// NewExportService constructs an ExportService.
func NewExportService(requests requestViewer, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{requests: requests, logger: logger}
}

// JobSheet renders the request identified by id in format (pdf, csv or xlsx).
func (s *ExportService) JobSheet(ctx context.Context, actor models.Actor, id, format string) (*ExportResult, error) {
	renderer, err := export.ForFormat(format)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	req, err := s.requests.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	activities, err := s.requests.ListActivities(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	payload, err := renderer.Render(jobSheetDataset(req, activities))
	if err != nil {
		s.logger.Error("render job sheet", zap.String("request_id", id), zap.String("format", format), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render job sheet")
	}
	return &ExportResult{
		Filename:    fmt.Sprintf("job_%s.%s", strings.ToLower(req.ReferenceCode), renderer.Extension()),
		ContentType: renderer.ContentType(),
		Payload:     payload,
	}, nil
}

func jobSheetDataset(req *models.ServiceRequest, activities []models.RequestActivity) export.Dataset {
	worker := ""
	if req.WorkerID != nil {
		worker = *req.WorkerID
	}
	summary := []export.Field{
		{Label: "Reference", Value: req.ReferenceCode},
		{Label: "Title", Value: req.Title},
		{Label: "Status", Value: string(req.Status)},
		{Label: "Priority", Value: string(req.Priority)},
		{Label: "Address", Value: strings.TrimSpace(req.Address + " " + req.Postcode)},
		{Label: "Location", Value: req.Latitude.StringFixed(6) + ", " + req.Longitude.StringFixed(6)},
		{Label: "Worker", Value: worker},
		{Label: "Estimated duration (min)", Value: strconv.Itoa(req.EstimatedDurationMinutes)},
		{Label: "Created", Value: formatSheetTime(&req.CreatedAt)},
		{Label: "Accepted", Value: formatSheetTime(req.AcceptedAt)},
		{Label: "Completed", Value: formatSheetTime(req.CompletedAt)},
		{Label: "Cancelled", Value: formatSheetTime(req.CancelledAt)},
	}

	rows := make([]map[string]string, 0, len(activities))
	for _, activity := range activities {
		actor := ""
		switch {
		case activity.ActorEmail != nil:
			actor = *activity.ActorEmail
		case activity.ActorID != nil:
			actor = *activity.ActorID
		}
		rows = append(rows, map[string]string{
			"Time":    formatSheetTime(&activity.CreatedAt),
			"Actor":   actor,
			"Message": activity.Message,
		})
	}
	return export.Dataset{
		Title:   fmt.Sprintf("Job sheet %s", req.ReferenceCode),
		Summary: summary,
		Headers: []string{"Time", "Actor", "Message"},
		Rows:    rows,
	}
}

func formatSheetTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
