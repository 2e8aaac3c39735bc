package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/MarkoPoloResearchLab/pageshell/internal/model"
	"github.com/MarkoPoloResearchLab/pageshell/internal/shell"
)

const (
	// DefaultHistoryLimit caps history queries that do not name a limit.
	DefaultHistoryLimit = 50
	// MaxHistoryLimit caps every history query.
	MaxHistoryLimit = 500

	errorMessageMissingDatabase  = "storage: journal requires a database"
	errorMessageRecordNavigation = "storage: record navigation"
	errorMessageListNavigations  = "storage: list navigations"
	errorMessagePruneNavigations = "storage: prune navigations"
)

// ErrMissingDatabase indicates a journal was built without a database.
var ErrMissingDatabase = errors.New(errorMessageMissingDatabase)

// Journal persists navigation results per shell.
type Journal struct {
	database *gorm.DB
}

func NewJournal(database *gorm.DB) (*Journal, error) {
	if database == nil {
		return nil, ErrMissingDatabase
	}
	return &Journal{database: database}, nil
}

// RecordNavigation stores one finished navigation.
func (journal *Journal) RecordNavigation(ctx context.Context, shellID string, result shell.Result) error {
	record, recordErr := model.NewNavigationRecord(model.NavigationRecordInput{
		ShellID:               shellID,
		NavigationID:          result.NavigationID,
		PageID:                result.PageID,
		Outcome:               string(result.Outcome),
		Detail:                result.Detail,
		ControllerInitialized: result.ControllerInitialized,
		StartedAt:             result.StartedAt,
		FinishedAt:            result.FinishedAt,
	})
	if recordErr != nil {
		return fmt.Errorf("%s: %w", errorMessageRecordNavigation, recordErr)
	}
	if createErr := journal.database.WithContext(ctx).Create(&record).Error; createErr != nil {
		return fmt.Errorf("%s: %w", errorMessageRecordNavigation, createErr)
	}
	return nil
}

// ListByShell returns the newest navigations of a shell first.
func (journal *Journal) ListByShell(ctx context.Context, shellID string, limit int) ([]model.NavigationRecord, error) {
	var records []model.NavigationRecord
	queryErr := journal.database.WithContext(ctx).
		Where("shell_id = ?", strings.TrimSpace(shellID)).
		Order("started_at DESC").
		Order("created_at DESC").
		Limit(normalizeHistoryLimit(limit)).
		Find(&records).Error
	if queryErr != nil {
		return nil, fmt.Errorf("%s: %w", errorMessageListNavigations, queryErr)
	}
	return records, nil
}

// CountOutcomes tallies the navigations of a shell per outcome.
func (journal *Journal) CountOutcomes(ctx context.Context, shellID string) (map[string]int64, error) {
	type outcomeCount struct {
		Outcome string
		Total   int64
	}
	var rows []outcomeCount
	queryErr := journal.database.WithContext(ctx).
		Model(&model.NavigationRecord{}).
		Select("outcome, COUNT(*) AS total").
		Where("shell_id = ?", strings.TrimSpace(shellID)).
		Group("outcome").
		Scan(&rows).Error
	if queryErr != nil {
		return nil, fmt.Errorf("%s: %w", errorMessageListNavigations, queryErr)
	}
	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Outcome] = row.Total
	}
	return counts, nil
}

// PruneBefore deletes navigations that finished before cutoff and reports how many were removed.
func (journal *Journal) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	deletion := journal.database.WithContext(ctx).
		Where("finished_at < ?", cutoff.UTC()).
		Delete(&model.NavigationRecord{})
	if deletion.Error != nil {
		return 0, fmt.Errorf("%s: %w", errorMessagePruneNavigations, deletion.Error)
	}
	return deletion.RowsAffected, nil
}

func normalizeHistoryLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		return MaxHistoryLimit
	default:
		return limit
	}
}
