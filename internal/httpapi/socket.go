package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/MarkoPoloResearchLab/pageshell/internal/session"
)

const (
	socketMessageSnapshot   = "snapshot"
	socketMessageNavigation = "navigation"
	socketMessageError      = "error"
	socketOutboxCapacity    = 16
	socketWriteTimeout      = 5 * time.Second

	errorValueInvalidMessage = "invalid_message"

	logEventSocketUpgrade = "shell_socket_upgrade_failed"
	logEventSocketRead    = "shell_socket_read_failed"
	logEventSocketWrite   = "shell_socket_write_failed"
)

type socketUpgrader struct {
	websocket.Upgrader
}

func newSocketUpgrader() socketUpgrader {
	return socketUpgrader{Upgrader: websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     sameHostOrigin,
	}}
}

// socketRequest is the incoming WebSocket message format.
type socketRequest struct {
	Navigate string `json:"navigate"`
}

// socketMessage is the outgoing WebSocket message format.
type socketMessage struct {
	Type       string              `json:"type"`
	Snapshot   *session.Snapshot   `json:"snapshot,omitempty"`
	Navigation *navigationAccepted `json:"navigation,omitempty"`
	Error      string              `json:"error,omitempty"`
}

// StreamSocket drives the shell over a WebSocket. Clients send {"navigate":"<page>"}
// and receive a snapshot after every change of the shell.
func (handlers *ShellHandlers) StreamSocket(ginContext *gin.Context) {
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

	connection, upgradeErr := handlers.socketUpgrader.Upgrade(ginContext.Writer, ginContext.Request, nil)
	if upgradeErr != nil {
		handlers.logger.Debug(logEventSocketUpgrade, zap.String("shell_id", shellInstance.ID), zap.Error(upgradeErr))
		return
	}
	defer connection.Close()

	outbox := make(chan socketMessage, socketOutboxCapacity)
	readerDone := make(chan struct{})
	go handlers.readSocket(connection, shellInstance, outbox, readerDone)

	if !handlers.writeSnapshot(connection, shellInstance) {
		return
	}
	for {
		select {
		case <-readerDone:
			return
		case message := <-outbox:
			if !handlers.writeSocket(connection, shellInstance.ID, message) {
				return
			}
		case _, ok := <-subscription.Events():
			if !ok {
				_ = connection.WriteControl(
					websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
					time.Now().Add(socketWriteTimeout),
				)
				return
			}
			if !handlers.writeSnapshot(connection, shellInstance) {
				return
			}
		}
	}
}

func (handlers *ShellHandlers) readSocket(connection *websocket.Conn, shellInstance *session.Shell, outbox chan<- socketMessage, readerDone chan<- struct{}) {
	defer close(readerDone)
	for {
		_, payload, readErr := connection.ReadMessage()
		if readErr != nil {
			if websocket.IsUnexpectedCloseError(readErr, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				handlers.logger.Debug(logEventSocketRead, zap.String("shell_id", shellInstance.ID), zap.Error(readErr))
			}
			return
		}

		var request socketRequest
		if decodeErr := json.Unmarshal(payload, &request); decodeErr != nil || strings.TrimSpace(request.Navigate) == "" {
			enqueue(outbox, socketMessage{Type: socketMessageError, Error: errorValueInvalidMessage})
			continue
		}
		navigation := shellInstance.Navigate(request.Navigate)
		enqueue(outbox, socketMessage{
			Type:       socketMessageNavigation,
			Navigation: &navigationAccepted{NavigationID: navigation.ID(), PageID: navigation.PageID()},
		})
	}
}

func (handlers *ShellHandlers) writeSnapshot(connection *websocket.Conn, shellInstance *session.Shell) bool {
	snapshot, snapshotErr := shellInstance.Snapshot()
	if snapshotErr != nil {
		handlers.logger.Error(logEventSnapshotShell, zap.String("shell_id", shellInstance.ID), zap.Error(snapshotErr))
		return true
	}
	return handlers.writeSocket(connection, shellInstance.ID, socketMessage{Type: socketMessageSnapshot, Snapshot: &snapshot})
}

func (handlers *ShellHandlers) writeSocket(connection *websocket.Conn, shellID string, message socketMessage) bool {
	_ = connection.SetWriteDeadline(time.Now().Add(socketWriteTimeout))
	if writeErr := connection.WriteJSON(message); writeErr != nil {
		handlers.logger.Debug(logEventSocketWrite, zap.String("shell_id", shellID), zap.Error(writeErr))
		return false
	}
	return true
}

// enqueue drops the message when the writer is gone or too far behind.
func enqueue(outbox chan<- socketMessage, message socketMessage) {
	select {
	case outbox <- message:
	default:
	}
}

func sameHostOrigin(request *http.Request) bool {
	origin := strings.TrimSpace(request.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	origin = strings.TrimPrefix(strings.TrimPrefix(origin, "https://"), "http://")
	return strings.EqualFold(origin, request.Host)
}
