// Package session maps browser sessions to server-held shells.
//
// Every visitor gets one Shell: a parsed shell document with its own router,
// loading indicator, notification feed and state store. The shell identifier
// lives in a signed gorilla/sessions cookie. Idle shells are closed by a
// periodic sweep, which also prunes the navigation journal.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/sessions"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/pageshell/internal/controller"
	"github.com/MarkoPoloResearchLab/pageshell/internal/dom"
	"github.com/MarkoPoloResearchLab/pageshell/internal/pages"
	"github.com/MarkoPoloResearchLab/pageshell/internal/shell"
	"github.com/MarkoPoloResearchLab/pageshell/internal/storage"
	"github.com/MarkoPoloResearchLab/pageshell/internal/task"
	"github.com/MarkoPoloResearchLab/pageshell/internal/templates"
	"github.com/MarkoPoloResearchLab/pageshell/internal/ui"
)

const (
	// CookieName is the name of the session cookie that carries the shell identifier.
	CookieName = "pageshell_session"

	// DefaultIdleTimeout closes shells unused for this long.
	DefaultIdleTimeout = 30 * time.Minute
	// DefaultSweepInterval is how often idle shells are looked for.
	DefaultSweepInterval = time.Minute
	// DefaultNotificationCapacity bounds the notification feed of each shell.
	DefaultNotificationCapacity = 20

	sessionKeyShellID = "shell_id"

	logEventShellOpened     = "shell_opened"
	logEventShellClosed     = "shell_closed"
	logEventShellSwept      = "shell_swept"
	logEventSessionLoad     = "load_session"
	logEventSessionSave     = "save_session"
	logEventMountPointError = "shell_mount_point_missing"
	logEventJournalPruned   = "journal_pruned"
	logEventJournalPrune    = "journal_prune_failed"
	logFieldShellID         = "shell_id"
	logFieldCount           = "count"

	errorMessageMissingShellDocument = "session: shell document is required"
	errorMessageMissingLoader        = "session: template loader is required"
	errorMessageMissingCatalog       = "session: page catalog is required"
	errorMessageMissingRegistry      = "session: controller registry is required"
	errorMessageMissingStore         = "session: cookie store is required"
	errorMessageManagerClosed        = "session: manager closed"
	errorMessageInvalidRegistry      = "session: controller registry does not match catalog"
	errorMessageOpenShell            = "session: open shell"
)

var (
	ErrMissingShellDocument = errors.New(errorMessageMissingShellDocument)
	ErrMissingLoader        = errors.New(errorMessageMissingLoader)
	ErrMissingCatalog       = errors.New(errorMessageMissingCatalog)
	ErrMissingRegistry      = errors.New(errorMessageMissingRegistry)
	ErrMissingStore         = errors.New(errorMessageMissingStore)
	// ErrManagerClosed is returned once Stop was called.
	ErrManagerClosed = errors.New(errorMessageManagerClosed)
	// ErrInvalidRegistry wraps the mismatches between the registry and the catalog.
	ErrInvalidRegistry = errors.New(errorMessageInvalidRegistry)
)

// JournalPruner deletes navigation records older than a cutoff.
type JournalPruner interface {
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Config holds everything a Manager needs to open shells.
type Config struct {
	ShellDocument        string
	Loader               templates.Loader
	Catalog              *pages.Catalog
	Registry             *controller.Registry
	Journal              shell.Journal
	Pruner               JournalPruner
	JournalRetention     time.Duration
	RouterOptions        shell.Options
	IdleTimeout          time.Duration
	SweepInterval        time.Duration
	NotificationCapacity int
	Logger               *zap.Logger
}

// Manager owns every open shell.
type Manager struct {
	config    Config
	store     sessions.Store
	logger    *zap.Logger
	scheduler *task.Scheduler
	now       func() time.Time

	mutex  sync.Mutex
	shells map[string]*Shell
	closed bool
}

// NewManager validates the configuration, including that every catalog page has
// a registered controller and no registration names a page outside the catalog.
func NewManager(config Config, store sessions.Store) (*Manager, error) {
	switch {
	case strings.TrimSpace(config.ShellDocument) == "":
		return nil, ErrMissingShellDocument
	case config.Loader == nil:
		return nil, ErrMissingLoader
	case config.Catalog == nil:
		return nil, ErrMissingCatalog
	case config.Registry == nil:
		return nil, ErrMissingRegistry
	case store == nil:
		return nil, ErrMissingStore
	}
	if validateErr := config.Registry.Validate(config.Catalog); validateErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRegistry, validateErr)
	}
	if config.IdleTimeout <= 0 {
		config.IdleTimeout = DefaultIdleTimeout
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = DefaultSweepInterval
	}
	if config.NotificationCapacity <= 0 {
		config.NotificationCapacity = DefaultNotificationCapacity
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	manager := &Manager{
		config: config,
		store:  store,
		logger: config.Logger,
		now:    time.Now,
		shells: make(map[string]*Shell),
	}
	manager.scheduler = task.NewScheduler(config.SweepInterval, manager.sweep, task.WithLogger(config.Logger))
	return manager, nil
}

// NewCookieStore builds the signed cookie store that carries shell identifiers.
func NewCookieStore(secret string, secure bool) *sessions.CookieStore {
	store := sessions.NewCookieStore([]byte(secret))
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int((24 * time.Hour).Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	return store
}

// Start begins the periodic idle sweep.
func (manager *Manager) Start(ctx context.Context) {
	manager.scheduler.Start(ctx)
}

// Stop ends the sweep and closes every shell.
func (manager *Manager) Stop() {
	manager.scheduler.Stop()

	manager.mutex.Lock()
	manager.closed = true
	open := make([]*Shell, 0, len(manager.shells))
	for identifier, shellInstance := range manager.shells {
		open = append(open, shellInstance)
		delete(manager.shells, identifier)
	}
	manager.mutex.Unlock()

	for _, shellInstance := range open {
		shellInstance.Close()
		manager.logger.Info(logEventShellClosed, zap.String(logFieldShellID, shellInstance.ID))
	}
}

// Resolve returns the shell bound to the request's session cookie, opening and
// binding a new one when the cookie is missing, invalid or names a closed shell.
func (manager *Manager) Resolve(responseWriter http.ResponseWriter, request *http.Request) (*Shell, error) {
	sessionInstance, sessionErr := manager.store.Get(request, CookieName)
	if sessionErr != nil {
		manager.logger.Debug(logEventSessionLoad, zap.Error(sessionErr))
	}
	if sessionInstance != nil {
		if identifier, isString := sessionInstance.Values[sessionKeyShellID].(string); isString {
			if shellInstance, found := manager.Lookup(identifier); found {
				shellInstance.Touch(manager.now())
				return shellInstance, nil
			}
		}
	}

	shellInstance, openErr := manager.Open()
	if openErr != nil {
		return nil, openErr
	}
	if sessionInstance == nil {
		sessionInstance = sessions.NewSession(manager.store, CookieName)
	}
	sessionInstance.Values[sessionKeyShellID] = shellInstance.ID
	if saveErr := sessionInstance.Save(request, responseWriter); saveErr != nil {
		manager.logger.Warn(logEventSessionSave, zap.String(logFieldShellID, shellInstance.ID), zap.Error(saveErr))
	}
	return shellInstance, nil
}

// Open creates a shell, initialises its router and starts navigating to the default page.
func (manager *Manager) Open() (*Shell, error) {
	manager.mutex.Lock()
	closed := manager.closed
	manager.mutex.Unlock()
	if closed {
		return nil, ErrManagerClosed
	}

	document, parseErr := dom.Parse(manager.config.ShellDocument)
	if parseErr != nil {
		return nil, fmt.Errorf("%s: %w", errorMessageOpenShell, parseErr)
	}
	identifier := storage.NewID()
	logger := manager.logger.With(zap.String(logFieldShellID, identifier))
	shellInstance := newShell(
		identifier,
		document,
		ui.NewNotificationFeed(manager.config.NotificationCapacity, logger),
		ui.NewStateStore(),
		manager.now(),
	)

	router, routerErr := shell.NewRouter(shell.Dependencies{
		ShellID:     identifier,
		Document:    document,
		Loader:      manager.config.Loader,
		Catalog:     manager.config.Catalog,
		Controllers: manager.config.Registry,
		Indicator:   shellInstance.Indicator,
		Notifier:    shellInstance.Notifications,
		State:       shellInstance.State,
		Journal:     manager.config.Journal,
		Logger:      manager.logger,
	}, manager.config.RouterOptions)
	if routerErr != nil {
		shellInstance.Close()
		return nil, fmt.Errorf("%s: %w", errorMessageOpenShell, routerErr)
	}
	shellInstance.Router = router

	if initErr := router.Init(); initErr != nil {
		if !errors.Is(initErr, dom.ErrMountPointMissing) {
			shellInstance.Close()
			return nil, fmt.Errorf("%s: %w", errorMessageOpenShell, initErr)
		}
		logger.Error(logEventMountPointError, zap.Error(initErr))
	}

	shellInstance.opening = router.Navigate(manager.config.Catalog.DefaultPage().String())

	manager.mutex.Lock()
	if manager.closed {
		manager.mutex.Unlock()
		shellInstance.Close()
		return nil, ErrManagerClosed
	}
	manager.shells[identifier] = shellInstance
	manager.mutex.Unlock()

	logger.Info(logEventShellOpened)
	return shellInstance, nil
}

// Lookup returns an open shell by identifier.
func (manager *Manager) Lookup(identifier string) (*Shell, bool) {
	manager.mutex.Lock()
	defer manager.mutex.Unlock()
	shellInstance, found := manager.shells[strings.TrimSpace(identifier)]
	return shellInstance, found
}

// Count returns how many shells are open.
func (manager *Manager) Count() int {
	manager.mutex.Lock()
	defer manager.mutex.Unlock()
	return len(manager.shells)
}

// CloseShell closes one shell and forgets it.
func (manager *Manager) CloseShell(identifier string) bool {
	manager.mutex.Lock()
	shellInstance, found := manager.shells[identifier]
	delete(manager.shells, identifier)
	manager.mutex.Unlock()
	if !found {
		return false
	}
	shellInstance.Close()
	manager.logger.Info(logEventShellClosed, zap.String(logFieldShellID, identifier))
	return true
}

// SweepIdle closes every shell unused since before now minus the idle timeout.
func (manager *Manager) SweepIdle(now time.Time) int {
	cutoff := now.Add(-manager.config.IdleTimeout)

	manager.mutex.Lock()
	var idle []*Shell
	for identifier, shellInstance := range manager.shells {
		if shellInstance.LastSeen().Before(cutoff) {
			idle = append(idle, shellInstance)
			delete(manager.shells, identifier)
		}
	}
	manager.mutex.Unlock()

	for _, shellInstance := range idle {
		shellInstance.Close()
	}
	if len(idle) > 0 {
		manager.logger.Info(logEventShellSwept, zap.Int(logFieldCount, len(idle)))
	}
	return len(idle)
}

func (manager *Manager) sweep(ctx context.Context) {
	now := manager.now()
	manager.SweepIdle(now)

	if manager.config.Pruner == nil || manager.config.JournalRetention <= 0 {
		return
	}
	removed, pruneErr := manager.config.Pruner.PruneBefore(ctx, now.Add(-manager.config.JournalRetention))
	if pruneErr != nil {
		manager.logger.Warn(logEventJournalPrune, zap.Error(pruneErr))
		return
	}
	if removed > 0 {
		manager.logger.Info(logEventJournalPruned, zap.Int64(logFieldCount, removed))
	}
}
