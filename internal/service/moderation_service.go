package service

import (
	"context"
	"errors"
	"log/slog"

	"threadline/internal/docstore"
	"threadline/internal/models"
	"threadline/internal/observability"
	"threadline/internal/repository"
	"threadline/internal/session"

	"go.opentelemetry.io/otel/attribute"
)

// SessionLookup resolves an admin token to the admin's user id.
type SessionLookup interface {
	Lookup(ctx context.Context, token string) (string, error)
}

// ModerationService runs admin actions behind an admin session.
type ModerationService struct {
	sessions SessionLookup
	profiles repository.ProfileRepository
	purge    *PurgeService
	reports  *ReportService
}

// NewModerationService returns a new ModerationService.
func NewModerationService(sessions SessionLookup, profiles repository.ProfileRepository, purge *PurgeService, reports *ReportService) *ModerationService {
	return &ModerationService{sessions: sessions, profiles: profiles, purge: purge, reports: reports}
}

func (s *ModerationService) authorize(ctx context.Context, adminToken string) (string, error) {
	adminID, err := s.sessions.Lookup(ctx, adminToken)
	if errors.Is(err, session.ErrSessionNotFound) {
		return "", models.NewForbiddenError("Admin session is invalid or expired")
	}
	if err != nil {
		return "", models.NewExternalServiceError("session store", err)
	}
	return adminID, nil
}

// BanUser marks targetID banned and purges the account. The ban flag is
// written first so a halted purge still leaves the user banned.
func (s *ModerationService) BanUser(ctx context.Context, adminToken, targetID string) (*models.PurgeSummary, error) {
	adminID, err := s.authorize(ctx, adminToken)
	if err != nil {
		return nil, err
	}
	if adminID == targetID {
		return nil, models.NewForbiddenError("You cannot ban yourself")
	}

	ctx, span := observability.StartServiceSpan(ctx, "ModerationService", "BanUser",
		attribute.String("admin.id", adminID), attribute.String("user.id", targetID))
	if err := s.profiles.Update(ctx, targetID, docstore.Field("isBanned", true)); err != nil {
		span.End(err)
		return nil, err
	}
	observability.Logger.WarnContext(ctx, "user banned",
		userIDAttr(targetID),
		slog.String("admin_id", adminID),
	)

	summary, err := s.purge.PurgeUser(ctx, targetID)
	span.End(err)
	return summary, err
}

// ResolveReport resolves a report on behalf of the session's admin.
func (s *ModerationService) ResolveReport(ctx context.Context, adminToken, reportID string) (*models.Report, error) {
	adminID, err := s.authorize(ctx, adminToken)
	if err != nil {
		return nil, err
	}
	return s.reports.ResolveReport(ctx, reportID, adminID)
}
