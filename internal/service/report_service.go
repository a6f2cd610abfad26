package service

import (
	"context"
	"strings"
	"time"

	"threadline/internal/docstore"
	"threadline/internal/models"
	"threadline/internal/repository"

	"github.com/google/uuid"
)

const maxReportDescriptionLength = 1000

// ReportService files reports and moves them through moderation.
type ReportService struct {
	reports  repository.ReportRepository
	profiles repository.ProfileRepository
	posts    repository.PostRepository
	now      func() time.Time
}

// NewReportService returns a new ReportService.
func NewReportService(reports repository.ReportRepository, profiles repository.ProfileRepository, posts repository.PostRepository) *ReportService {
	return &ReportService{reports: reports, profiles: profiles, posts: posts, now: defaultClock}
}

// FileReport stores an open report against an existing post or user.
func (s *ReportService) FileReport(ctx context.Context, in models.NewReportInput) (*models.Report, error) {
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		return nil, models.NewValidationError("reason is required")
	}
	if len(in.Description) > maxReportDescriptionLength {
		return nil, models.NewValidationError("description is too long")
	}

	switch in.TargetType {
	case models.ReportTargetUser:
		if in.TargetID == in.ReporterID {
			return nil, models.NewForbiddenError("You cannot report yourself")
		}
		if _, err := s.profiles.Get(ctx, in.TargetID); err != nil {
			return nil, err
		}
	case models.ReportTargetPost:
		post, err := s.posts.GetByID(ctx, in.TargetID)
		if err != nil {
			return nil, err
		}
		if post.AuthorID == in.ReporterID {
			return nil, models.NewForbiddenError("You cannot report your own post")
		}
	default:
		return nil, models.NewValidationError("targetType must be post or user")
	}

	report := &models.Report{
		ID:          uuid.NewString(),
		ReporterID:  in.ReporterID,
		TargetType:  in.TargetType,
		TargetID:    in.TargetID,
		Reason:      reason,
		Description: in.Description,
		Status:      models.ReportStatusOpen,
		CreatedAt:   s.now(),
	}
	if err := s.reports.Create(ctx, report); err != nil {
		return nil, err
	}
	return report, nil
}

// ListReports returns reports matching filter, newest first.
func (s *ReportService) ListReports(ctx context.Context, filter repository.ReportFilter) ([]*models.Report, error) {
	return s.reports.List(ctx, filter)
}

// ResolveReport marks the report resolved by resolverID. Resolving a
// resolved report returns it unchanged.
func (s *ReportService) ResolveReport(ctx context.Context, reportID, resolverID string) (*models.Report, error) {
	report, err := s.reports.GetByID(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if report.Status == models.ReportStatusResolved {
		return report, nil
	}
	now := s.now()
	if err := s.reports.Update(ctx, reportID,
		docstore.Field("status", string(models.ReportStatusResolved)),
		docstore.Field("resolvedAt", now),
		docstore.Field("resolvedBy", resolverID),
	); err != nil {
		return nil, err
	}
	report.Status = models.ReportStatusResolved
	report.ResolvedAt = &now
	report.ResolvedBy = resolverID
	return report, nil
}
