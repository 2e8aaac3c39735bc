package shell

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MarkoPoloResearchLab/pageshell/internal/pages"
)

// Outcome is how a navigation ended.
type Outcome string

const (
	// OutcomeCompleted means the page was mounted and committed as current.
	OutcomeCompleted Outcome = "completed"
	// OutcomeSkipped means the target already was the current page.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeFailed means the template could not be loaded or mounted.
	OutcomeFailed Outcome = "failed"
	// OutcomeSuperseded means a newer navigation replaced this one before commit.
	OutcomeSuperseded Outcome = "superseded"
	// OutcomeCancelled means the caller or a shutdown cancelled the navigation before commit.
	OutcomeCancelled Outcome = "cancelled"
	// OutcomeRejected means the request was refused before any side effect.
	OutcomeRejected Outcome = "rejected"
)

var (
	errNavigationSuperseded = errors.New("shell: navigation superseded")
	errNavigationCancelled  = errors.New("shell: navigation cancelled")
)

// Result describes a finished navigation.
type Result struct {
	NavigationID          string    `json:"navigation_id"`
	PageID                string    `json:"page_id"`
	Outcome               Outcome   `json:"outcome"`
	Detail                string    `json:"detail,omitempty"`
	ControllerInitialized bool      `json:"controller_initialized"`
	StartedAt             time.Time `json:"started_at"`
	FinishedAt            time.Time `json:"finished_at"`
	Err                   error     `json:"-"`
}

// Navigation is the handle of one Navigate call. It can be ignored, awaited or cancelled.
type Navigation struct {
	id        string
	pageID    pages.ID
	rawPageID string
	sequence  uint64
	createdAt time.Time

	ctx    context.Context
	cancel context.CancelCauseFunc

	commitMutex sync.Mutex
	committed   bool

	done   chan struct{}
	once   sync.Once
	result Result
}

func newNavigation(parent context.Context, rawPageID string, pageID pages.ID, sequence uint64) *Navigation {
	navigationContext, cancel := context.WithCancelCause(parent)
	return &Navigation{
		id:        uuid.NewString(),
		pageID:    pageID,
		rawPageID: rawPageID,
		sequence:  sequence,
		createdAt: time.Now().UTC(),
		ctx:       navigationContext,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

func (navigation *Navigation) ID() string {
	return navigation.id
}

// PageID returns the validated target, or the raw request for rejected navigations.
func (navigation *Navigation) PageID() string {
	if navigation.pageID != "" {
		return navigation.pageID.String()
	}
	return navigation.rawPageID
}

// Done is closed once the navigation finished.
func (navigation *Navigation) Done() <-chan struct{} {
	return navigation.done
}

// Result returns the outcome once the navigation finished.
func (navigation *Navigation) Result() (Result, bool) {
	select {
	case <-navigation.done:
		return navigation.result, true
	default:
		return Result{}, false
	}
}

// Wait blocks until the navigation finished or ctx ends. Page controllers must not
// call Wait from their lifecycle hooks: hooks run on the navigation worker.
func (navigation *Navigation) Wait(ctx context.Context) (Result, error) {
	select {
	case <-navigation.done:
		return navigation.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Cancel aborts the navigation if it has not committed yet. Once the page is
// current only a newer navigation or a shutdown can skip the controller's Init.
func (navigation *Navigation) Cancel() {
	navigation.commitMutex.Lock()
	defer navigation.commitMutex.Unlock()
	if navigation.committed {
		return
	}
	navigation.cancel(errNavigationCancelled)
}

// markCommitted seals the navigation against Cancel unless it was already interrupted.
func (navigation *Navigation) markCommitted() bool {
	navigation.commitMutex.Lock()
	defer navigation.commitMutex.Unlock()
	if navigation.ctx.Err() != nil {
		return false
	}
	navigation.committed = true
	return true
}

func (navigation *Navigation) supersede() {
	navigation.cancel(errNavigationSuperseded)
}

// interruption maps the cancellation cause to an outcome.
func (navigation *Navigation) interruption() (Outcome, bool) {
	if navigation.ctx.Err() == nil {
		return "", false
	}
	if errors.Is(context.Cause(navigation.ctx), errNavigationSuperseded) {
		return OutcomeSuperseded, true
	}
	return OutcomeCancelled, true
}

func (navigation *Navigation) finish(result Result) bool {
	finished := false
	navigation.once.Do(func() {
		result.NavigationID = navigation.id
		result.PageID = navigation.PageID()
		if result.StartedAt.IsZero() {
			result.StartedAt = navigation.createdAt
		}
		result.FinishedAt = time.Now().UTC()
		if result.Err != nil && result.Detail == "" {
			result.Detail = result.Err.Error()
		}
		navigation.result = result
		close(navigation.done)
		navigation.cancel(nil)
		finished = true
	})
	return finished
}

func finishedNavigation(rawPageID string, pageID pages.ID, outcome Outcome, cause error) *Navigation {
	navigation := newNavigation(context.Background(), rawPageID, pageID, 0)
	navigation.finish(Result{Outcome: outcome, Err: cause})
	return navigation
}
