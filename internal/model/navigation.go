package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	NavigationOutcomeCompleted  = "completed"
	NavigationOutcomeSkipped    = "skipped"
	NavigationOutcomeFailed     = "failed"
	NavigationOutcomeSuperseded = "superseded"
	NavigationOutcomeCancelled  = "cancelled"
	NavigationOutcomeRejected   = "rejected"

	navigationShellIDMaxLength = 64
	navigationPageIDMaxLength  = 128
	navigationDetailMaxLength  = 1000
)

var (
	ErrInvalidNavigationShellID = errors.New("invalid_navigation_shell_id")
	ErrInvalidNavigationPageID  = errors.New("invalid_navigation_page_id")
	ErrInvalidNavigationOutcome = errors.New("invalid_navigation_outcome")
	ErrInvalidNavigationTiming  = errors.New("invalid_navigation_timing")
)

// NavigationRecord is one finished navigation of one shell.
type NavigationRecord struct {
	ID                    string    `gorm:"primaryKey;size:36" json:"id"`
	ShellID               string    `gorm:"not null;size:64;index:idx_navigation_records_shell_started" json:"shell_id"`
	NavigationID          string    `gorm:"not null;size:36" json:"navigation_id"`
	PageID                string    `gorm:"not null;size:128" json:"page_id"`
	Outcome               string    `gorm:"not null;size:16;index" json:"outcome"`
	Detail                string    `gorm:"size:1000" json:"detail,omitempty"`
	ControllerInitialized bool      `json:"controller_initialized"`
	StartedAt             time.Time `gorm:"not null;index:idx_navigation_records_shell_started" json:"started_at"`
	FinishedAt            time.Time `gorm:"not null" json:"finished_at"`
	CreatedAt             time.Time `gorm:"autoCreateTime" json:"-"`
}

// NavigationRecordInput holds the raw values used to construct a NavigationRecord.
type NavigationRecordInput struct {
	ShellID               string
	NavigationID          string
	PageID                string
	Outcome               string
	Detail                string
	ControllerInitialized bool
	StartedAt             time.Time
	FinishedAt            time.Time
}

// NewNavigationRecord constructs a NavigationRecord with validated, normalized fields.
// Rejected navigations keep the raw page request, which may be empty.
func NewNavigationRecord(input NavigationRecordInput) (NavigationRecord, error) {
	shellID := strings.TrimSpace(input.ShellID)
	if shellID == "" || len(shellID) > navigationShellIDMaxLength {
		return NavigationRecord{}, ErrInvalidNavigationShellID
	}

	outcome := strings.TrimSpace(input.Outcome)
	if err := validateNavigationOutcome(outcome); err != nil {
		return NavigationRecord{}, err
	}

	pageID := strings.TrimSpace(input.PageID)
	if len(pageID) > navigationPageIDMaxLength {
		pageID = pageID[:navigationPageIDMaxLength]
	}
	if pageID == "" && outcome != NavigationOutcomeRejected {
		return NavigationRecord{}, ErrInvalidNavigationPageID
	}

	if input.StartedAt.IsZero() || input.FinishedAt.Before(input.StartedAt) {
		return NavigationRecord{}, fmt.Errorf("%w: started %s finished %s", ErrInvalidNavigationTiming, input.StartedAt, input.FinishedAt)
	}

	detail := strings.TrimSpace(input.Detail)
	if len(detail) > navigationDetailMaxLength {
		detail = detail[:navigationDetailMaxLength]
	}

	navigationID := strings.TrimSpace(input.NavigationID)
	if navigationID == "" {
		navigationID = uuid.NewString()
	}

	return NavigationRecord{
		ID:                    uuid.NewString(),
		ShellID:               shellID,
		NavigationID:          navigationID,
		PageID:                pageID,
		Outcome:               outcome,
		Detail:                detail,
		ControllerInitialized: input.ControllerInitialized,
		StartedAt:             input.StartedAt.UTC(),
		FinishedAt:            input.FinishedAt.UTC(),
	}, nil
}

// Duration is how long the navigation took.
func (record NavigationRecord) Duration() time.Duration {
	return record.FinishedAt.Sub(record.StartedAt)
}

func validateNavigationOutcome(outcome string) error {
	switch outcome {
	case NavigationOutcomeCompleted,
		NavigationOutcomeSkipped,
		NavigationOutcomeFailed,
		NavigationOutcomeSuperseded,
		NavigationOutcomeCancelled,
		NavigationOutcomeRejected:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidNavigationOutcome, outcome)
	}
}
