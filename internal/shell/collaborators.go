package shell

import (
	"context"

	"github.com/MarkoPoloResearchLab/pageshell/internal/ui"
)

// LoadingIndicator displays progress while a page transition runs.
type LoadingIndicator interface {
	Show()
	Hide()
}

// Notifier surfaces a transient user-visible message.
type Notifier interface {
	Notify(title string, message string, severity ui.Severity)
}

// StateStore records global observable state. The router only writes StateKeyCurrentPage.
type StateStore interface {
	Update(key string, value interface{})
}

// Journal receives the result of every finished navigation.
type Journal interface {
	RecordNavigation(ctx context.Context, shellID string, result Result) error
}

type noopIndicator struct{}

func (noopIndicator) Show() {}
func (noopIndicator) Hide() {}

type noopNotifier struct{}

func (noopNotifier) Notify(string, string, ui.Severity) {}

type noopStateStore struct{}

func (noopStateStore) Update(string, interface{}) {}
