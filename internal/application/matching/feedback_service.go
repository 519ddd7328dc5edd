package matching

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/erp/reconciliation/internal/domain/matching"
	"github.com/erp/reconciliation/internal/domain/shared"
	"github.com/erp/reconciliation/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	ndjsonContentType = "application/x-ndjson"
	maxExportRange    = 366 * 24 * time.Hour
	exportTimeLayout  = "20060102T150405Z"
)

// ArchiveStorage receives exported feedback files
type ArchiveStorage interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	GenerateDownloadURL(ctx context.Context, key string, expiresIn time.Duration) (string, time.Time, error)
}

// FeedbackService records user decisions on suggestions and exports them for weight tuning
type FeedbackService struct {
	repo    matching.FeedbackRepository
	archive ArchiveStorage
	metrics *telemetry.MatchingMetrics
	clock   shared.Clock
	logger  *zap.Logger
}

// NewFeedbackService creates a new FeedbackService. archive may be nil, which disables Export.
func NewFeedbackService(repo matching.FeedbackRepository, archive ArchiveStorage, metrics *telemetry.MatchingMetrics, clock shared.Clock, logger *zap.Logger) *FeedbackService {
	if clock == nil {
		clock = shared.SystemClock
	}
	return &FeedbackService{
		repo:    repo,
		archive: archive,
		metrics: metrics,
		clock:   clock,
		logger:  logger,
	}
}

// Record appends one feedback event. Any valid input is accepted.
func (s *FeedbackService) Record(ctx context.Context, tenantID uuid.UUID, in RecordFeedbackInput) (*matching.FeedbackEvent, error) {
	event, err := matching.NewFeedbackEvent(tenantID, in.Scope, in.SubjectKey, in.Accepted, in.Reason,
		in.Candidates, in.Chosen, in.RecordedBy, s.clock())
	if err != nil {
		return nil, err
	}
	if err := s.repo.Append(ctx, event); err != nil {
		return nil, fmt.Errorf("append feedback: %w", err)
	}
	s.metrics.RecordFeedback(ctx, string(event.Scope), event.Accepted)
	return event, nil
}

// Export writes the feedback of [from, to) as NDJSON to the archive
func (s *FeedbackService) Export(ctx context.Context, tenantID uuid.UUID, in ExportFeedbackInput) (*ExportFeedbackResult, error) {
	if s.archive == nil {
		return nil, shared.NewTransientError("feedback archive storage is not configured")
	}
	if !in.Scope.IsValid() {
		return nil, shared.NewValidationError("unknown feedback scope %q", in.Scope)
	}
	if in.From.IsZero() || in.To.IsZero() || !in.From.Before(in.To) {
		return nil, shared.NewValidationError("export range needs from < to")
	}
	if in.To.Sub(in.From) > maxExportRange {
		return nil, shared.NewValidationError("export range must not exceed 366 days")
	}

	ctx, span := telemetry.StartServiceSpan(ctx, "FeedbackService", "Export",
		telemetry.SpanAttrTenantID, tenantID.String(),
	)
	defer span.End()

	events, err := s.repo.ListBetween(ctx, tenantID, in.Scope, in.From, in.To)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, fmt.Errorf("list feedback: %w", err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, e := range events {
		if err := enc.Encode(feedbackLine{
			ID:         e.ID,
			Scope:      string(e.Scope),
			SubjectKey: e.SubjectKey,
			Accepted:   e.Accepted,
			Reason:     e.Reason,
			Candidates: e.Candidates,
			Chosen:     e.Chosen,
			RecordedBy: e.RecordedBy,
			RecordedAt: e.RecordedAt.UTC(),
		}); err != nil {
			return nil, fmt.Errorf("encode feedback %s: %w", e.ID, err)
		}
	}

	key := fmt.Sprintf("%s/%s/%s_%s.ndjson", tenantID, in.Scope,
		in.From.UTC().Format(exportTimeLayout), in.To.UTC().Format(exportTimeLayout))
	if err := s.archive.Upload(ctx, key, buf.Bytes(), ndjsonContentType); err != nil {
		telemetry.RecordError(span, err)
		return nil, shared.NewTransientError("feedback archive upload failed: %v", err)
	}

	result := &ExportFeedbackResult{
		Key:    key,
		Scope:  string(in.Scope),
		From:   in.From.UTC(),
		To:     in.To.UTC(),
		Events: len(events),
		Bytes:  buf.Len(),
	}
	if url, expiresAt, err := s.archive.GenerateDownloadURL(ctx, key, 0); err == nil {
		result.DownloadURL = url
		result.ExpiresAt = expiresAt
	} else {
		s.logger.Warn("feedback download url unavailable", zap.String("key", key), zap.Error(err))
	}

	s.logger.Info("feedback exported",
		zap.String("tenant_id", tenantID.String()),
		zap.String("key", key),
		zap.Int("events", len(events)),
	)
	return result, nil
}
