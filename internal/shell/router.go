// Package shell implements the single-page router of one shell document.
//
// A navigation tears down the live page controller, clears the mount point,
// loads the target template, mounts and activates it, synchronises the
// navigation affordances, commits the current page and finally runs the new
// controller's Init hook. Navigations run one at a time on a worker goroutine;
// Navigate only enqueues and returns a handle. A newer navigation to another
// page cancels the in-flight one and replaces any queued one.
package shell

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/pageshell/internal/controller"
	"github.com/MarkoPoloResearchLab/pageshell/internal/dom"
	"github.com/MarkoPoloResearchLab/pageshell/internal/pages"
	"github.com/MarkoPoloResearchLab/pageshell/internal/templates"
	"github.com/MarkoPoloResearchLab/pageshell/internal/ui"
)

const (
	// StateKeyCurrentPage is the state store key written on every committed navigation.
	StateKeyCurrentPage = "currentPage"

	// DefaultInitDelay is the pause between commit and the controller's Init hook.
	DefaultInitDelay = 100 * time.Millisecond
	// DefaultHideDelay is the pause before the loading indicator is hidden.
	DefaultHideDelay = 300 * time.Millisecond

	defaultJournalTimeout = 5 * time.Second

	notificationTitleError        = "خطأ"
	notificationPageUnavailable   = "الصفحة غير متاحة حالياً"
	notificationPageUnknown       = "الصفحة المطلوبة غير موجودة"
	notificationShellUnavailable  = "تعذر عرض الصفحة"
	notificationRouterUnavailable = "التطبيق غير جاهز بعد"
)

const (
	logEventRouterInitialized       = "router_initialized"
	logEventMountPointMissing       = "mount_point_missing"
	logEventNavigationRejected      = "navigation_rejected"
	logEventNavigationSkipped       = "navigation_skipped"
	logEventNavigationStarted       = "navigation_started"
	logEventNavigationFinished      = "navigation_finished"
	logEventNavigationInterrupted   = "navigation_interrupted"
	logEventTemplateNotFound        = "template_not_found"
	logEventTemplateLoadFailed      = "template_load_failed"
	logEventMountFailed             = "page_mount_failed"
	logEventClearFailed             = "mount_point_clear_failed"
	logEventPageNodeMissing         = "page_node_missing"
	logEventNavigationTargetsAbsent = "navigation_targets_absent"
	logEventControllerMissing       = "controller_missing"
	logEventInitHookMissing         = "controller_init_missing"
	logEventDestroyHookMissing      = "controller_destroy_missing"
	logEventInitFailed              = "controller_init_failed"
	logEventDestroyFailed           = "controller_destroy_failed"
	logEventInitSkipped             = "controller_init_skipped"
	logEventJournalFailed           = "navigation_journal_failed"
	logEventRouterClosed            = "router_closed"

	logFieldShellID      = "shell_id"
	logFieldNavigationID = "navigation_id"
	logFieldPageID       = "page_id"
	logFieldController   = "controller"
	logFieldOutcome      = "outcome"
	logFieldTemplatePath = "template_path"
	logFieldStatusCode   = "status_code"
	logFieldMountPoint   = "mount_point"
	logFieldDuration     = "duration"
)

const (
	errorMessageMissingDocument  = "shell: document is required"
	errorMessageMissingLoader    = "shell: template loader is required"
	errorMessageMissingCatalog   = "shell: page catalog is required"
	errorMessageMissingRegistry  = "shell: controller registry is required"
	errorMessageNotInitialized   = "shell: router not initialized"
	errorMessageRouterClosed     = "shell: router closed"
	errorMessageAlreadyInitiated = "shell: router already initialized"
	errorMessageBindControllers  = "shell: bind controllers"
)

var (
	// ErrMissingDocument indicates the router was built without a document.
	ErrMissingDocument = errors.New(errorMessageMissingDocument)
	// ErrMissingLoader indicates the router was built without a template loader.
	ErrMissingLoader = errors.New(errorMessageMissingLoader)
	// ErrMissingCatalog indicates the router was built without a page catalog.
	ErrMissingCatalog = errors.New(errorMessageMissingCatalog)
	// ErrMissingRegistry indicates the router was built without a controller registry.
	ErrMissingRegistry = errors.New(errorMessageMissingRegistry)
	// ErrNotInitialized is reported by navigations requested before Init.
	ErrNotInitialized = errors.New(errorMessageNotInitialized)
	// ErrRouterClosed is reported by navigations requested after Close.
	ErrRouterClosed = errors.New(errorMessageRouterClosed)
	// ErrAlreadyInitialized is returned by a second Init call.
	ErrAlreadyInitialized = errors.New(errorMessageAlreadyInitiated)
)

// Dependencies are the collaborators of a Router. Document, Loader, Catalog and
// Controllers are required; the rest fall back to no-ops.
type Dependencies struct {
	ShellID     string
	Document    *dom.Document
	Loader      templates.Loader
	Catalog     *pages.Catalog
	Controllers *controller.Registry
	Indicator   LoadingIndicator
	Notifier    Notifier
	State       StateStore
	Journal     Journal
	Logger      *zap.Logger
}

// Options tune the transition timing and the mount point.
type Options struct {
	MountPointID string
	InitDelay    time.Duration
	HideDelay    time.Duration
}

// DefaultOptions returns the production timing.
func DefaultOptions() Options {
	return Options{
		MountPointID: dom.DefaultMountPointID,
		InitDelay:    DefaultInitDelay,
		HideDelay:    DefaultHideDelay,
	}
}

// Router owns the page lifecycle of one shell document.
type Router struct {
	shellID   string
	document  *dom.Document
	loader    templates.Loader
	catalog   *pages.Catalog
	registry  *controller.Registry
	indicator LoadingIndicator
	notifier  Notifier
	state     StateStore
	journal   Journal
	logger    *zap.Logger
	options   Options

	lifetime       context.Context
	cancelLifetime context.CancelFunc
	wake           chan struct{}
	workerDone     chan struct{}

	mutex         sync.Mutex
	initialized   bool
	mountReady    bool
	closed        bool
	workerStarted bool
	sequence      uint64
	currentPage   pages.ID
	active        *Navigation
	pending       *Navigation

	// touched only by the worker
	controllers *controller.Set
	live        *controller.Handle
}

// NewRouter validates the dependencies. The router does nothing until Init.
func NewRouter(dependencies Dependencies, options Options) (*Router, error) {
	switch {
	case dependencies.Document == nil:
		return nil, ErrMissingDocument
	case dependencies.Loader == nil:
		return nil, ErrMissingLoader
	case dependencies.Catalog == nil:
		return nil, ErrMissingCatalog
	case dependencies.Controllers == nil:
		return nil, ErrMissingRegistry
	}
	if options.MountPointID == "" {
		options.MountPointID = dom.DefaultMountPointID
	}
	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if dependencies.ShellID != "" {
		logger = logger.With(zap.String(logFieldShellID, dependencies.ShellID))
	}

	router := &Router{
		shellID:    dependencies.ShellID,
		document:   dependencies.Document,
		loader:     dependencies.Loader,
		catalog:    dependencies.Catalog,
		registry:   dependencies.Controllers,
		indicator:  dependencies.Indicator,
		notifier:   dependencies.Notifier,
		state:      dependencies.State,
		journal:    dependencies.Journal,
		logger:     logger,
		options:    options,
		wake:       make(chan struct{}, 1),
		workerDone: make(chan struct{}),
	}
	if router.indicator == nil {
		router.indicator = noopIndicator{}
	}
	if router.notifier == nil {
		router.notifier = noopNotifier{}
	}
	if router.state == nil {
		router.state = noopStateStore{}
	}
	router.lifetime, router.cancelLifetime = context.WithCancel(context.Background())
	return router, nil
}

// Init locates the mount point, binds the page controllers and starts the
// navigation worker. A missing mount point is logged and returned; the router
// then refuses every navigation with a notification.
func (router *Router) Init() error {
	router.mutex.Lock()
	if router.initialized {
		router.mutex.Unlock()
		return ErrAlreadyInitialized
	}
	if router.closed {
		router.mutex.Unlock()
		return ErrRouterClosed
	}
	router.initialized = true
	router.mutex.Unlock()

	controllers, bindErr := router.registry.Bind(controller.Scope{
		Navigator: router.Navigator(),
		Document:  router.document,
		Notifier:  router.notifier,
		Logger:    router.logger,
	})
	if bindErr != nil {
		router.mutex.Lock()
		router.initialized = false
		router.mutex.Unlock()
		return fmt.Errorf("%s: %w", errorMessageBindControllers, bindErr)
	}

	locateErr := router.document.LocateMountPoint(router.options.MountPointID)

	router.mutex.Lock()
	if router.closed {
		router.mutex.Unlock()
		return ErrRouterClosed
	}
	router.controllers = controllers
	router.mountReady = locateErr == nil
	router.workerStarted = true
	router.mutex.Unlock()

	go router.work()

	if locateErr != nil {
		router.logger.Error(logEventMountPointMissing, zap.String(logFieldMountPoint, router.options.MountPointID), zap.Error(locateErr))
		return locateErr
	}
	router.logger.Info(logEventRouterInitialized,
		zap.String(logFieldMountPoint, router.options.MountPointID),
		zap.Int("controllers", controllers.Len()),
	)
	return nil
}

// Navigator adapts the router for page controllers, which fire and forget.
func (router *Router) Navigator() controller.Navigator {
	return controller.NavigatorFunc(func(pageID string) {
		router.Navigate(pageID)
	})
}

// CurrentPage returns the page of the last committed navigation, or "" when none is displayed.
func (router *Router) CurrentPage() pages.ID {
	router.mutex.Lock()
	defer router.mutex.Unlock()
	return router.currentPage
}

// InFlight returns the running and the queued navigation targets.
func (router *Router) InFlight() (active string, pending string) {
	router.mutex.Lock()
	defer router.mutex.Unlock()
	if router.active != nil {
		active = router.active.PageID()
	}
	if router.pending != nil {
		pending = router.pending.PageID()
	}
	return active, pending
}

// Navigate requests a transition to rawPageID and returns immediately.
//
// Unknown pages are rejected before anything is torn down. A request for the
// page already displayed, with nothing in flight, completes as skipped. A
// request for the page already in flight or queued returns that navigation.
func (router *Router) Navigate(rawPageID string) *Navigation {
	router.mutex.Lock()
	defer router.mutex.Unlock()

	if router.closed {
		return router.rejectLocked(rawPageID, OutcomeCancelled, ErrRouterClosed, "")
	}
	if !router.initialized {
		return router.rejectLocked(rawPageID, OutcomeRejected, ErrNotInitialized, notificationRouterUnavailable)
	}
	if !router.mountReady {
		return router.rejectLocked(rawPageID, OutcomeRejected, dom.ErrMountPointMissing, notificationShellUnavailable)
	}
	pageID, resolveErr := router.catalog.Resolve(rawPageID)
	if resolveErr != nil {
		return router.rejectLocked(rawPageID, OutcomeRejected, resolveErr, notificationPageUnknown)
	}

	if router.pending != nil {
		if router.pending.pageID == pageID {
			return router.pending
		}
		router.pending.supersede()
		router.pending.finish(Result{Outcome: OutcomeSuperseded, Err: errNavigationSuperseded})
		router.recordAsync(router.pending)
		router.pending = nil
	}
	if router.active != nil {
		if router.active.pageID == pageID && router.active.ctx.Err() == nil {
			return router.active
		}
		router.active.supersede()
	} else if router.currentPage == pageID {
		router.logger.Debug(logEventNavigationSkipped, zap.String(logFieldPageID, pageID.String()))
		return finishedNavigation(rawPageID, pageID, OutcomeSkipped, nil)
	}

	router.sequence++
	navigation := newNavigation(router.lifetime, rawPageID, pageID, router.sequence)
	router.pending = navigation
	select {
	case router.wake <- struct{}{}:
	default:
	}
	return navigation
}

// Close stops the worker, cancels outstanding navigations and destroys the live controller.
func (router *Router) Close() {
	router.mutex.Lock()
	if router.closed {
		router.mutex.Unlock()
		return
	}
	router.closed = true
	started := router.workerStarted
	router.mutex.Unlock()

	router.cancelLifetime()
	if started {
		<-router.workerDone
	}
	router.logger.Info(logEventRouterClosed)
}

func (router *Router) rejectLocked(rawPageID string, outcome Outcome, cause error, message string) *Navigation {
	router.logger.Warn(logEventNavigationRejected,
		zap.String(logFieldPageID, rawPageID),
		zap.String(logFieldOutcome, string(outcome)),
		zap.Error(cause),
	)
	if message != "" {
		router.notifier.Notify(notificationTitleError, message, ui.SeverityDanger)
	}
	navigation := finishedNavigation(rawPageID, "", outcome, cause)
	router.recordAsync(navigation)
	return navigation
}

func (router *Router) work() {
	defer close(router.workerDone)
	for {
		select {
		case <-router.lifetime.Done():
			router.shutdown()
			return
		case <-router.wake:
		}
		for {
			navigation := router.dequeue()
			if navigation == nil {
				break
			}
			router.run(navigation)
		}
	}
}

func (router *Router) dequeue() *Navigation {
	router.mutex.Lock()
	defer router.mutex.Unlock()
	navigation := router.pending
	router.pending = nil
	router.active = navigation
	return navigation
}

func (router *Router) shutdown() {
	router.mutex.Lock()
	pending := router.pending
	router.pending = nil
	router.mutex.Unlock()
	if pending != nil {
		pending.finish(Result{Outcome: OutcomeCancelled, Err: ErrRouterClosed})
		router.record(pending)
	}
	router.teardown(context.Background())
}

func (router *Router) recordAsync(navigation *Navigation) {
	if router.journal == nil {
		return
	}
	go router.record(navigation)
}

func (router *Router) record(navigation *Navigation) {
	if router.journal == nil {
		return
	}
	result, finished := navigation.Result()
	if !finished {
		return
	}
	journalContext, cancel := context.WithTimeout(context.Background(), defaultJournalTimeout)
	defer cancel()
	if recordErr := router.journal.RecordNavigation(journalContext, router.shellID, result); recordErr != nil {
		router.logger.Warn(logEventJournalFailed, zap.String(logFieldNavigationID, result.NavigationID), zap.Error(recordErr))
	}
}
