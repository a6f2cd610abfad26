package models

import "time"

// ReportTargetType names what a report points at.
type ReportTargetType string

const (
	ReportTargetPost ReportTargetType = "post"
	ReportTargetUser ReportTargetType = "user"
)

// ReportStatus is the moderation state of a report.
type ReportStatus string

const (
	ReportStatusOpen     ReportStatus = "open"
	ReportStatusResolved ReportStatus = "resolved"
)

// Report is a user complaint about a post or another user. Reports are kept
// when either party is purged.
type Report struct {
	ID          string           `json:"id"`
	ReporterID  string           `json:"reporterId"`
	TargetType  ReportTargetType `json:"targetType"`
	TargetID    string           `json:"targetId"`
	Reason      string           `json:"reason"`
	Description string           `json:"description"`
	Status      ReportStatus     `json:"status"`
	CreatedAt   time.Time        `json:"createdAt"`
	ResolvedAt  *time.Time       `json:"resolvedAt,omitempty"`
	ResolvedBy  string           `json:"resolvedBy,omitempty"`
}

// NewReportInput is a validated report payload.
type NewReportInput struct {
	ReporterID  string
	TargetType  ReportTargetType
	TargetID    string
	Reason      string
	Description string
}
