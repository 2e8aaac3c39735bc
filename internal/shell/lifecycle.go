package shell

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/pageshell/internal/controller"
	"github.com/MarkoPoloResearchLab/pageshell/internal/pages"
	"github.com/MarkoPoloResearchLab/pageshell/internal/templates"
	"github.com/MarkoPoloResearchLab/pageshell/internal/ui"
)

// run executes one navigation on the worker goroutine.
func (router *Router) run(navigation *Navigation) {
	startedAt := time.Now().UTC()
	pageID := navigation.pageID
	logger := router.logger.With(
		zap.String(logFieldNavigationID, navigation.id),
		zap.String(logFieldPageID, pageID.String()),
		zap.Uint64("sequence", navigation.sequence),
	)

	if outcome, interrupted := navigation.interruption(); interrupted {
		router.complete(logger, navigation, Result{Outcome: outcome, StartedAt: startedAt})
		return
	}
	logger.Debug(logEventNavigationStarted)

	router.indicator.Show()
	router.teardown(context.WithoutCancel(navigation.ctx))
	if clearErr := router.document.ClearMountPoint(); clearErr != nil {
		logger.Warn(logEventClearFailed, zap.Error(clearErr))
	}

	fragment, loadErr := router.loader.Load(navigation.ctx, pageID)
	if outcome, interrupted := navigation.interruption(); interrupted {
		router.abandon(logger, navigation, Result{Outcome: outcome, StartedAt: startedAt})
		return
	}
	if loadErr != nil {
		router.logLoadFailure(logger, loadErr)
		router.fail(logger, navigation, Result{Outcome: OutcomeFailed, Err: loadErr, StartedAt: startedAt})
		return
	}

	if mountErr := router.document.MountPage(pageID, fragment); mountErr != nil {
		logger.Error(logEventMountFailed, zap.Error(mountErr))
		router.fail(logger, navigation, Result{Outcome: OutcomeFailed, Err: mountErr, StartedAt: startedAt})
		return
	}
	if activateErr := router.document.ActivatePage(pageID); activateErr != nil {
		logger.Warn(logEventPageNodeMissing, zap.Error(activateErr))
	}
	if router.document.SyncNavigation(pageID) == 0 {
		logger.Debug(logEventNavigationTargetsAbsent)
	}

	if !router.commit(navigation) {
		outcome, _ := navigation.interruption()
		router.abandon(logger, navigation, Result{Outcome: outcome, StartedAt: startedAt})
		return
	}
	router.state.Update(StateKeyCurrentPage, pageID.String())

	result := Result{Outcome: OutcomeCompleted, StartedAt: startedAt}
	if waitDelay(navigation.ctx, router.options.InitDelay) {
		result.ControllerInitialized = router.initialize(logger, navigation)
	} else {
		logger.Info(logEventInitSkipped)
	}

	waitDelay(navigation.ctx, router.options.HideDelay)
	router.indicator.Hide()
	router.complete(logger, navigation, result)
}

// commit makes the navigation's page current unless it was interrupted.
func (router *Router) commit(navigation *Navigation) bool {
	router.mutex.Lock()
	defer router.mutex.Unlock()
	if !navigation.markCommitted() {
		return false
	}
	router.currentPage = navigation.pageID
	return true
}

// initialize looks up the controller of the committed page and runs its Init hook.
func (router *Router) initialize(logger *zap.Logger, navigation *Navigation) bool {
	handle, found := router.controllers.Lookup(navigation.pageID)
	if !found {
		logger.Warn(logEventControllerMissing, zap.String(logFieldController, pages.ControllerName(navigation.pageID)))
		return false
	}
	router.live = &handle

	initializer, hasInit := handle.Initializer()
	if !hasInit {
		logMissingHook(logger, handle, logEventInitHookMissing)
		return false
	}
	if initErr := controller.CallInit(context.WithoutCancel(navigation.ctx), handle, initializer); initErr != nil {
		logger.Error(logEventInitFailed, zap.String(logFieldController, handle.Name), zap.Error(initErr))
		return false
	}
	return true
}

// teardown destroys the controller of the page being left. Errors never block navigation.
func (router *Router) teardown(ctx context.Context) {
	live := router.live
	router.live = nil
	if live == nil {
		return
	}
	destroyer, hasDestroy := live.Destroyer()
	if !hasDestroy {
		logMissingHook(router.logger.With(zap.String(logFieldPageID, live.PageID.String())), *live, logEventDestroyHookMissing)
		return
	}
	if destroyErr := controller.CallDestroy(ctx, *live, destroyer); destroyErr != nil {
		router.logger.Error(logEventDestroyFailed,
			zap.String(logFieldPageID, live.PageID.String()),
			zap.String(logFieldController, live.Name),
			zap.Error(destroyErr),
		)
	}
}

// fail reports a broken transition: the mount point is blank and no page is current.
func (router *Router) fail(logger *zap.Logger, navigation *Navigation, result Result) {
	router.clearCurrentPage()
	router.notifier.Notify(notificationTitleError, notificationPageUnavailable, ui.SeverityDanger)
	router.indicator.Hide()
	router.complete(logger, navigation, result)
}

// abandon ends an interrupted transition after the previous page was already torn down.
func (router *Router) abandon(logger *zap.Logger, navigation *Navigation, result Result) {
	router.clearCurrentPage()
	router.indicator.Hide()
	logger.Info(logEventNavigationInterrupted, zap.String(logFieldOutcome, string(result.Outcome)))
	router.complete(logger, navigation, result)
}

func (router *Router) clearCurrentPage() {
	router.mutex.Lock()
	router.currentPage = ""
	router.mutex.Unlock()
}

func (router *Router) complete(logger *zap.Logger, navigation *Navigation, result Result) {
	router.mutex.Lock()
	if router.active == navigation {
		router.active = nil
	}
	router.mutex.Unlock()

	if !navigation.finish(result) {
		return
	}
	finished := navigation.result
	logger.Info(logEventNavigationFinished,
		zap.String(logFieldOutcome, string(finished.Outcome)),
		zap.Duration(logFieldDuration, finished.FinishedAt.Sub(finished.StartedAt)),
	)
	router.record(navigation)
}

func (router *Router) logLoadFailure(logger *zap.Logger, loadErr error) {
	fetchError, isFetchError := templates.AsFetchError(loadErr)
	if !isFetchError {
		logger.Error(logEventTemplateLoadFailed, zap.Error(loadErr))
		return
	}
	fields := []zap.Field{
		zap.String(logFieldTemplatePath, fetchError.Path),
		zap.Int(logFieldStatusCode, fetchError.StatusCode),
		zap.Error(loadErr),
	}
	if templates.IsNotFound(loadErr) {
		logger.Warn(logEventTemplateNotFound, fields...)
		return
	}
	logger.Error(logEventTemplateLoadFailed, fields...)
}

func logMissingHook(logger *zap.Logger, handle controller.Handle, event string) {
	if _, markupOnly := handle.Controller.(controller.MarkupOnly); markupOnly {
		logger.Debug(event, zap.String(logFieldController, handle.Name))
		return
	}
	logger.Warn(event, zap.String(logFieldController, handle.Name))
}

// waitDelay pauses for delay and reports whether ctx survived it.
func waitDelay(ctx context.Context, delay time.Duration) bool {
	if delay <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
