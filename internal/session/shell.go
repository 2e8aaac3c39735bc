package session

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/MarkoPoloResearchLab/pageshell/internal/dom"
	"github.com/MarkoPoloResearchLab/pageshell/internal/shell"
	"github.com/MarkoPoloResearchLab/pageshell/internal/ui"
)

// EventKind names what changed in a shell.
type EventKind string

const (
	EventKindState        EventKind = "state"
	EventKindLoading      EventKind = "loading"
	EventKindNotification EventKind = "notification"
)

// Event is one observable change of a shell.
type Event struct {
	Kind         EventKind        `json:"kind"`
	State        *ui.StateEvent   `json:"state,omitempty"`
	Loading      *bool            `json:"loading,omitempty"`
	Notification *ui.Notification `json:"notification,omitempty"`
}

// Snapshot is the observable state of a shell at one moment.
type Snapshot struct {
	ShellID           string            `json:"shell_id"`
	CurrentPage       string            `json:"current_page"`
	Loading           bool              `json:"loading"`
	ActiveNavigation  string            `json:"active_navigation,omitempty"`
	PendingNavigation string            `json:"pending_navigation,omitempty"`
	ActiveNavTargets  []string          `json:"active_nav_targets"`
	Notifications     []ui.Notification `json:"notifications"`
	Content           string            `json:"content"`
}

// Shell is one server-held client document with its router and UI collaborators.
type Shell struct {
	ID            string
	Document      *dom.Document
	Router        *shell.Router
	Indicator     *ui.Indicator
	Notifications *ui.NotificationFeed
	State         *ui.StateStore

	events    *ui.Broadcaster[Event]
	opening   *shell.Navigation
	createdAt time.Time
	lastSeen  atomic.Int64
	closeOnce sync.Once
	forwarded sync.WaitGroup
}

func newShell(identifier string, document *dom.Document, notifications *ui.NotificationFeed, state *ui.StateStore, now time.Time) *Shell {
	shellInstance := &Shell{
		ID:            identifier,
		Document:      document,
		Notifications: notifications,
		State:         state,
		events:        ui.NewBroadcaster[Event](),
		createdAt:     now,
	}
	shellInstance.Indicator = ui.NewIndicator(func(visible bool) {
		shellInstance.events.Broadcast(Event{Kind: EventKindLoading, Loading: &visible})
	})
	shellInstance.lastSeen.Store(now.UnixNano())
	shellInstance.forward()
	return shellInstance
}

func (shellInstance *Shell) forward() {
	stateEvents := shellInstance.State.Subscribe()
	notificationEvents := shellInstance.Notifications.Subscribe()
	shellInstance.forwarded.Add(2)
	go func() {
		defer shellInstance.forwarded.Done()
		for stateEvent := range stateEvents.Events() {
			event := stateEvent
			shellInstance.events.Broadcast(Event{Kind: EventKindState, State: &event})
		}
	}()
	go func() {
		defer shellInstance.forwarded.Done()
		for notification := range notificationEvents.Events() {
			entry := notification
			shellInstance.events.Broadcast(Event{Kind: EventKindNotification, Notification: &entry})
		}
	}()
}

// Navigate requests a page change and marks the shell as used.
func (shellInstance *Shell) Navigate(pageID string) *shell.Navigation {
	shellInstance.Touch(time.Now())
	return shellInstance.Router.Navigate(pageID)
}

// Opening is the navigation to the default page started when the shell was opened.
func (shellInstance *Shell) Opening() *shell.Navigation {
	return shellInstance.opening
}

// Subscribe streams the shell's changes until the subscription or the shell is closed.
func (shellInstance *Shell) Subscribe() *ui.Subscription[Event] {
	return shellInstance.events.Subscribe()
}

// Snapshot captures the current observable state. A shell whose document has no
// mount point still has a snapshot; its Content is empty.
func (shellInstance *Shell) Snapshot() (Snapshot, error) {
	content, renderErr := shellInstance.Document.RenderMountPoint()
	if renderErr != nil && !errors.Is(renderErr, dom.ErrMountPointNotLocated) {
		return Snapshot{}, renderErr
	}
	active, pending := shellInstance.Router.InFlight()
	return Snapshot{
		ShellID:           shellInstance.ID,
		CurrentPage:       shellInstance.Router.CurrentPage().String(),
		Loading:           shellInstance.Indicator.Visible(),
		ActiveNavigation:  active,
		PendingNavigation: pending,
		ActiveNavTargets:  shellInstance.Document.ActiveNavigationTargets(),
		Notifications:     shellInstance.Notifications.Entries(),
		Content:           content,
	}, nil
}

// Touch records use of the shell at now.
func (shellInstance *Shell) Touch(now time.Time) {
	shellInstance.lastSeen.Store(now.UnixNano())
}

// LastSeen is the time of the latest use.
func (shellInstance *Shell) LastSeen() time.Time {
	return time.Unix(0, shellInstance.lastSeen.Load())
}

func (shellInstance *Shell) CreatedAt() time.Time {
	return shellInstance.createdAt
}

// Close stops the router, which destroys the live controller, and ends every subscription.
func (shellInstance *Shell) Close() {
	shellInstance.closeOnce.Do(func() {
		if shellInstance.Router != nil {
			shellInstance.Router.Close()
		}
		shellInstance.State.Close()
		shellInstance.Notifications.Close()
		shellInstance.forwarded.Wait()
		shellInstance.events.Close()
	})
}
