package ui

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Severity classifies a notification.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityDanger  Severity = "danger"

	defaultNotificationCapacity = 50
	logEventNotification        = "notification"
)

// Valid reports whether the severity is one of the known values.
func (severity Severity) Valid() bool {
	switch severity {
	case SeverityInfo, SeveritySuccess, SeverityWarning, SeverityDanger:
		return true
	default:
		return false
	}
}

// Notification is a transient user-visible message.
type Notification struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Severity  Severity  `json:"severity"`
	CreatedAt time.Time `json:"created_at"`
}

// NotificationFeed keeps the most recent notifications in a ring buffer and
// broadcasts each new one to subscribers.
type NotificationFeed struct {
	mutex       sync.RWMutex
	entries     []Notification
	capacity    int
	logger      *zap.Logger
	broadcaster *Broadcaster[Notification]
	now         func() time.Time
}

func NewNotificationFeed(capacity int, logger *zap.Logger) *NotificationFeed {
	if capacity <= 0 {
		capacity = defaultNotificationCapacity
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationFeed{
		entries:     make([]Notification, 0, capacity),
		capacity:    capacity,
		logger:      logger,
		broadcaster: NewBroadcaster[Notification](),
		now:         time.Now,
	}
}

// Notify records and broadcasts a notification. Unknown severities fall back to info.
func (feed *NotificationFeed) Notify(title string, message string, severity Severity) {
	if !severity.Valid() {
		severity = SeverityInfo
	}
	notification := Notification{
		ID:        uuid.NewString(),
		Title:     strings.TrimSpace(title),
		Message:   strings.TrimSpace(message),
		Severity:  severity,
		CreatedAt: feed.now().UTC(),
	}

	feed.mutex.Lock()
	if len(feed.entries) >= feed.capacity {
		copy(feed.entries, feed.entries[1:])
		feed.entries[len(feed.entries)-1] = notification
	} else {
		feed.entries = append(feed.entries, notification)
	}
	feed.mutex.Unlock()

	feed.logger.Debug(logEventNotification,
		zap.String("severity", string(severity)),
		zap.String("title", notification.Title),
		zap.String("message", notification.Message),
	)
	feed.broadcaster.Broadcast(notification)
}

// Entries returns the buffered notifications, oldest first.
func (feed *NotificationFeed) Entries() []Notification {
	feed.mutex.RLock()
	defer feed.mutex.RUnlock()
	return append([]Notification(nil), feed.entries...)
}

// Latest returns the newest notification.
func (feed *NotificationFeed) Latest() (Notification, bool) {
	feed.mutex.RLock()
	defer feed.mutex.RUnlock()
	if len(feed.entries) == 0 {
		return Notification{}, false
	}
	return feed.entries[len(feed.entries)-1], true
}

func (feed *NotificationFeed) Subscribe() *Subscription[Notification] {
	return feed.broadcaster.Subscribe()
}

func (feed *NotificationFeed) Close() {
	feed.broadcaster.Close()
}
