package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/pageshell/internal/model"
	"github.com/MarkoPoloResearchLab/pageshell/internal/pages"
	"github.com/MarkoPoloResearchLab/pageshell/internal/session"
	"github.com/MarkoPoloResearchLab/pageshell/internal/shell"
)

const (
	ShellRoutePath        = "/"
	NavigateRoutePath     = "/api/shell/navigate"
	StateRoutePath        = "/api/shell/state"
	EventsRoutePath       = "/api/shell/events"
	SocketRoutePath       = "/api/shell/ws"
	HistoryRoutePath      = "/api/shell/history"
	PagesRoutePath        = "/api/pages"
	HealthRoutePath       = "/healthz"
	DefaultNavigationWait = 10 * time.Second

	shellContentType   = "text/html; charset=utf-8"
	queryKeyPage       = "page"
	queryKeyWait       = "wait"
	queryKeyLimit      = "limit"
	jsonKeyError       = "error"
	healthStatusOK     = "ok"
	sseEventState      = "state"
	sseEventLoading    = "loading"
	sseEventNotice     = "notification"
	sseEventSnapshot   = "snapshot"
	sseHeartbeatPeriod = 25 * time.Second

	errorValueMissingPageID     = "missing_page_id"
	errorValueInvalidJSON       = "invalid_json"
	errorValueNavigationTimeout = "navigation_timeout"
	errorValueRenderFailed      = "render_failed"
	errorValueStreamUnavailable = "stream_unavailable"
	errorValueHistoryDisabled   = "history_unavailable"
	errorValueQueryFailed       = "query_failed"
	errorValueInvalidLimit      = "invalid_limit"

	logEventRenderShell    = "render_shell_failed"
	logEventSnapshotShell  = "snapshot_shell_failed"
	logEventMarshalEvent   = "marshal_shell_event_failed"
	logEventStreamEvent    = "stream_shell_event"
	logEventHistoryQuery   = "navigation_history_failed"
	logEventNavigationWait = "navigation_wait_expired"
)

// NavigationHistory reads the navigation journal.
type NavigationHistory interface {
	ListByShell(ctx context.Context, shellID string, limit int) ([]model.NavigationRecord, error)
	CountOutcomes(ctx context.Context, shellID string) (map[string]int64, error)
}

// ShellCounter reports how many shells are open.
type ShellCounter interface {
	Count() int
}

// ShellHandlers serves the shell document and the API that observes and drives it.
// Every handler except Pages and Health expects RequireShell to have run.
type ShellHandlers struct {
	catalog        *pages.Catalog
	counter        ShellCounter
	history        NavigationHistory
	logger         *zap.Logger
	navigationWait time.Duration
	socketUpgrader socketUpgrader
}

type navigateRequest struct {
	PageID string `json:"page_id"`
}

type navigationAccepted struct {
	NavigationID string `json:"navigation_id"`
	PageID       string `json:"page_id"`
}

type pageDescriptor struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Nav        bool   `json:"nav"`
	Controller string `json:"controller"`
}

func NewShellHandlers(catalog *pages.Catalog, counter ShellCounter, history NavigationHistory, logger *zap.Logger) *ShellHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ShellHandlers{
		catalog:        catalog,
		counter:        counter,
		history:        history,
		logger:         logger,
		navigationWait: DefaultNavigationWait,
		socketUpgrader: newSocketUpgrader(),
	}
}

// WithNavigationWait bounds how long handlers wait for a navigation to finish.
func (handlers *ShellHandlers) WithNavigationWait(wait time.Duration) *ShellHandlers {
	if wait > 0 {
		handlers.navigationWait = wait
	}
	return handlers
}

// RenderShell renders the whole shell document. A page query parameter navigates first.
// The response waits for the navigation, or for the opening one of a fresh shell, within the navigation wait.
func (handlers *ShellHandlers) RenderShell(context *gin.Context) {
	shellInstance, found := ShellFromContext(context)
	if !found {
		context.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{jsonKeyError: errorValueShellFailed})
		return
	}

	navigation := shellInstance.Opening()
	if requestedPage := strings.TrimSpace(context.Query(queryKeyPage)); requestedPage != "" {
		navigation = shellInstance.Navigate(requestedPage)
	}
	if navigation != nil {
		if _, waitErr := handlers.waitFor(context.Request.Context(), navigation); waitErr != nil {
			handlers.logger.Debug(logEventNavigationWait, zap.String("shell_id", shellInstance.ID), zap.Error(waitErr))
		}
	}

	document, renderErr := shellInstance.Document.Render()
	if renderErr != nil {
		handlers.logger.Error(logEventRenderShell, zap.String("shell_id", shellInstance.ID), zap.Error(renderErr))
		context.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{jsonKeyError: errorValueRenderFailed})
		return
	}
	context.Header("Cache-Control", "no-store")
	context.Data(http.StatusOK, shellContentType, []byte(document))
}

// Navigate starts a navigation. With wait set it responds with the finished result, otherwise with 202.
func (handlers *ShellHandlers) Navigate(context *gin.Context) {
	shellInstance, found := ShellFromContext(context)
	if !found {
		context.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{jsonKeyError: errorValueShellFailed})
		return
	}

	var request navigateRequest
	if bindErr := context.ShouldBindJSON(&request); bindErr != nil {
		context.JSON(http.StatusBadRequest, gin.H{jsonKeyError: errorValueInvalidJSON})
		return
	}
	if strings.TrimSpace(request.PageID) == "" {
		context.JSON(http.StatusBadRequest, gin.H{jsonKeyError: errorValueMissingPageID})
		return
	}

	navigation := shellInstance.Navigate(request.PageID)
	if !queryFlag(context.Query(queryKeyWait)) {
		context.JSON(http.StatusAccepted, navigationAccepted{NavigationID: navigation.ID(), PageID: navigation.PageID()})
		return
	}

	result, waitErr := handlers.waitFor(context.Request.Context(), navigation)
	if waitErr != nil {
		context.JSON(http.StatusGatewayTimeout, gin.H{
			jsonKeyError:    errorValueNavigationTimeout,
			"navigation_id": navigation.ID(),
		})
		return
	}
	context.JSON(http.StatusOK, result)
}

func (handlers *ShellHandlers) State(context *gin.Context) {
	shellInstance, found := ShellFromContext(context)
	if !found {
		context.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{jsonKeyError: errorValueShellFailed})
		return
	}
	snapshot, snapshotErr := shellInstance.Snapshot()
	if snapshotErr != nil {
		handlers.logger.Error(logEventSnapshotShell, zap.String("shell_id", shellInstance.ID), zap.Error(snapshotErr))
		context.JSON(http.StatusInternalServerError, gin.H{jsonKeyError: errorValueRenderFailed})
		return
	}
	context.JSON(http.StatusOK, snapshot)
}

// StreamEvents pushes a snapshot followed by every state, loading and notification change as server-sent events.
func (handlers *ShellHandlers) StreamEvents(ginContext *gin.Context) {
	shellInstance, found := ShellFromContext(ginContext)
	if !found {
		ginContext.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{jsonKeyError: errorValueShellFailed})
		return
	}
	subscription := shellInstance.Subscribe()
	if subscription == nil {
		ginContext.JSON(http.StatusServiceUnavailable, gin.H{jsonKeyError: errorValueStreamUnavailable})
		return
	}
	defer subscription.Close()

	ginContext.Header("Content-Type", "text/event-stream")
	ginContext.Header("Cache-Control", "no-cache")
	ginContext.Header("Connection", "keep-alive")

	flusher, flushable := ginContext.Writer.(http.Flusher)
	if !flushable {
		ginContext.JSON(http.StatusServiceUnavailable, gin.H{jsonKeyError: errorValueStreamUnavailable})
		return
	}

	ginContext.Writer.WriteHeaderNow()
	flusher.Flush()

	if snapshot, snapshotErr := shellInstance.Snapshot(); snapshotErr == nil {
		if !handlers.writeStreamEvent(ginContext, flusher, sseEventSnapshot, snapshot) {
			return
		}
	}

	heartbeat := time.NewTicker(sseHeartbeatPeriod)
	defer heartbeat.Stop()
	requestContext := ginContext.Request.Context()

	for {
		select {
		case <-requestContext.Done():
			return
		case <-heartbeat.C:
			if _, writeErr := ginContext.Writer.Write([]byte(": keep-alive\n\n")); writeErr != nil {
				return
			}
			flusher.Flush()
		case event, ok := <-subscription.Events():
			if !ok {
				return
			}
			if !handlers.writeStreamEvent(ginContext, flusher, streamEventName(event.Kind), event) {
				return
			}
			handlers.logger.Debug(logEventStreamEvent, zap.String("shell_id", shellInstance.ID), zap.String("kind", string(event.Kind)))
		}
	}
}

// History lists the latest journal records of the shell with per-outcome totals.
func (handlers *ShellHandlers) History(context *gin.Context) {
	shellInstance, found := ShellFromContext(context)
	if !found {
		context.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{jsonKeyError: errorValueShellFailed})
		return
	}
	if handlers.history == nil {
		context.JSON(http.StatusServiceUnavailable, gin.H{jsonKeyError: errorValueHistoryDisabled})
		return
	}

	limit := 0
	if rawLimit := strings.TrimSpace(context.Query(queryKeyLimit)); rawLimit != "" {
		parsedLimit, parseErr := strconv.Atoi(rawLimit)
		if parseErr != nil || parsedLimit < 0 {
			context.JSON(http.StatusBadRequest, gin.H{jsonKeyError: errorValueInvalidLimit})
			return
		}
		limit = parsedLimit
	}

	requestContext := context.Request.Context()
	records, listErr := handlers.history.ListByShell(requestContext, shellInstance.ID, limit)
	if listErr != nil {
		handlers.logger.Error(logEventHistoryQuery, zap.String("shell_id", shellInstance.ID), zap.Error(listErr))
		context.JSON(http.StatusInternalServerError, gin.H{jsonKeyError: errorValueQueryFailed})
		return
	}
	outcomes, countErr := handlers.history.CountOutcomes(requestContext, shellInstance.ID)
	if countErr != nil {
		handlers.logger.Error(logEventHistoryQuery, zap.String("shell_id", shellInstance.ID), zap.Error(countErr))
		context.JSON(http.StatusInternalServerError, gin.H{jsonKeyError: errorValueQueryFailed})
		return
	}
	context.JSON(http.StatusOK, gin.H{
		"shell_id":    shellInstance.ID,
		"navigations": records,
		"outcomes":    outcomes,
	})
}

func (handlers *ShellHandlers) Pages(context *gin.Context) {
	entries := handlers.catalog.Entries()
	descriptors := make([]pageDescriptor, 0, len(entries))
	for _, entry := range entries {
		descriptors = append(descriptors, pageDescriptor{
			ID:         entry.ID.String(),
			Title:      entry.Title,
			Nav:        entry.Nav,
			Controller: pages.ControllerName(entry.ID),
		})
	}
	context.JSON(http.StatusOK, gin.H{
		"default_page": handlers.catalog.DefaultPage().String(),
		"pages":        descriptors,
	})
}

func (handlers *ShellHandlers) Health(context *gin.Context) {
	openShells := 0
	if handlers.counter != nil {
		openShells = handlers.counter.Count()
	}
	context.JSON(http.StatusOK, gin.H{"status": healthStatusOK, "shells": openShells})
}

func (handlers *ShellHandlers) waitFor(requestContext context.Context, navigation *shell.Navigation) (shell.Result, error) {
	waitContext, cancel := context.WithTimeout(requestContext, handlers.navigationWait)
	defer cancel()
	return navigation.Wait(waitContext)
}

func (handlers *ShellHandlers) writeStreamEvent(ginContext *gin.Context, flusher http.Flusher, eventName string, payload interface{}) bool {
	serializedPayload, marshalErr := json.Marshal(payload)
	if marshalErr != nil {
		handlers.logger.Debug(logEventMarshalEvent, zap.Error(marshalErr))
		return true
	}
	var buffer bytes.Buffer
	buffer.WriteString("event: ")
	buffer.WriteString(eventName)
	buffer.WriteString("\n")
	buffer.WriteString("data: ")
	buffer.Write(serializedPayload)
	buffer.WriteString("\n\n")
	if _, writeErr := ginContext.Writer.Write(buffer.Bytes()); writeErr != nil {
		return false
	}
	flusher.Flush()
	return true
}

func streamEventName(kind session.EventKind) string {
	switch kind {
	case session.EventKindLoading:
		return sseEventLoading
	case session.EventKindNotification:
		return sseEventNotice
	default:
		return sseEventState
	}
}

func queryFlag(value string) bool {
	parsed, parseErr := strconv.ParseBool(strings.TrimSpace(value))
	return parseErr == nil && parsed
}
