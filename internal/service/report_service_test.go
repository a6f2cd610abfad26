package service

import (
	"context"
	"testing"

	"threadline/internal/models"
	"threadline/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileReport(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 5)
	f.user("reporter")
	f.user("seller")
	post := f.post("seller", 1)
	svc := f.reportService()
	ctx := context.Background()

	r, err := svc.FileReport(ctx, models.NewReportInput{
		ReporterID: "reporter",
		TargetType: models.ReportTargetPost,
		TargetID:   post.ID,
		Reason:     "counterfeit",
	})
	require.NoError(t, err)
	assert.Equal(t, models.ReportStatusOpen, r.Status)

	stored, err := f.reports.GetByID(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, post.ID, stored.TargetID)

	tests := []struct {
		name string
		in   models.NewReportInput
		code string
	}{
		{"missing reason", models.NewReportInput{ReporterID: "reporter", TargetType: models.ReportTargetUser, TargetID: "seller"}, models.CodeValidation},
		{"unknown target type", models.NewReportInput{ReporterID: "reporter", TargetType: "comment", TargetID: "x", Reason: "spam"}, models.CodeValidation},
		{"self report", models.NewReportInput{ReporterID: "reporter", TargetType: models.ReportTargetUser, TargetID: "reporter", Reason: "spam"}, models.CodeForbidden},
		{"own post", models.NewReportInput{ReporterID: "seller", TargetType: models.ReportTargetPost, TargetID: post.ID, Reason: "spam"}, models.CodeForbidden},
		{"missing user", models.NewReportInput{ReporterID: "reporter", TargetType: models.ReportTargetUser, TargetID: "ghost", Reason: "spam"}, models.CodeNotFound},
		{"missing post", models.NewReportInput{ReporterID: "reporter", TargetType: models.ReportTargetPost, TargetID: "ghost", Reason: "spam"}, models.CodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.FileReport(ctx, tt.in)
			assertCode(t, err, tt.code)
		})
	}
}

func TestListAndResolveReports(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 5)
	f.user("reporter")
	f.user("u1")
	f.user("u2")
	svc := f.reportService()
	ctx := context.Background()

	older, err := svc.FileReport(ctx, models.NewReportInput{ReporterID: "reporter", TargetType: models.ReportTargetUser, TargetID: "u1", Reason: "spam"})
	require.NoError(t, err)
	newer, err := svc.FileReport(ctx, models.NewReportInput{ReporterID: "reporter", TargetType: models.ReportTargetUser, TargetID: "u2", Reason: "scam"})
	require.NoError(t, err)

	open, err := svc.ListReports(ctx, repository.ReportFilter{Status: models.ReportStatusOpen})
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, newer.ID, open[0].ID)
	assert.Equal(t, older.ID, open[1].ID)

	resolved, err := svc.ResolveReport(ctx, older.ID, "admin")
	require.NoError(t, err)
	assert.Equal(t, models.ReportStatusResolved, resolved.Status)
	require.NotNil(t, resolved.ResolvedAt)
	assert.Equal(t, "admin", resolved.ResolvedBy)

	again, err := svc.ResolveReport(ctx, older.ID, "other-admin")
	require.NoError(t, err)
	assert.Equal(t, "admin", again.ResolvedBy)

	open, err = svc.ListReports(ctx, repository.ReportFilter{Status: models.ReportStatusOpen})
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, newer.ID, open[0].ID)

	byTarget, err := svc.ListReports(ctx, repository.ReportFilter{TargetID: "u1"})
	require.NoError(t, err)
	require.Len(t, byTarget, 1)
	assert.Equal(t, models.ReportStatusResolved, byTarget[0].Status)

	_, err = svc.ResolveReport(ctx, "missing", "admin")
	assertCode(t, err, models.CodeNotFound)
}
