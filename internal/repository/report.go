package repository

import (
	"context"

	"threadline/internal/docstore"
	"threadline/internal/models"
)

// ReportFilter narrows ListReports; empty fields match everything.
type ReportFilter struct {
	Status   models.ReportStatus
	TargetID string
	Limit    int
}

// ReportRepository defines the interface for report data operations
type ReportRepository interface {
	Create(ctx context.Context, report *models.Report) error
	GetByID(ctx context.Context, id string) (*models.Report, error)
	List(ctx context.Context, filter ReportFilter) ([]*models.Report, error)
	Update(ctx context.Context, id string, updates ...docstore.Update) error
}

// reportRepository implements ReportRepository
type reportRepository struct {
	store docstore.Store
}

// NewReportRepository creates a new report repository
func NewReportRepository(store docstore.Store) ReportRepository {
	return &reportRepository{store: store}
}

func (r *reportRepository) Create(ctx context.Context, report *models.Report) error {
	return mapStoreError(r.store.Create(ctx, models.CollectionReports, report.ID, report), "Report", report.ID)
}

func (r *reportRepository) GetByID(ctx context.Context, id string) (*models.Report, error) {
	snap, err := r.store.Get(ctx, models.CollectionReports, id)
	if err != nil {
		return nil, mapStoreError(err, "Report", id)
	}
	return decode[models.Report](snap)
}

func (r *reportRepository) List(ctx context.Context, filter ReportFilter) ([]*models.Report, error) {
	q := docstore.From(models.CollectionReports)
	if filter.Status != "" {
		q = q.Where("status", docstore.OpEqual, string(filter.Status))
	}
	if filter.TargetID != "" {
		q = q.Where("targetId", docstore.OpEqual, filter.TargetID)
	}
	q = q.OrderBy("createdAt", docstore.Desc).Limit(filter.Limit)

	snaps, err := r.store.Query(ctx, q)
	if err != nil {
		return nil, mapStoreError(err, "Report", "*")
	}
	return decodeAll[models.Report](snaps)
}

func (r *reportRepository) Update(ctx context.Context, id string, updates ...docstore.Update) error {
	return mapStoreError(r.store.Update(ctx, models.CollectionReports, id, updates...), "Report", id)
}
