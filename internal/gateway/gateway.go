// Package gateway exposes the streaming subsystem over websockets. Each
// connection can follow one live log stream at a time and subscribe to any
// number of operation status feeds.
package gateway

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/deckhand-sh/deckhand/internal/broadcast"
	"github.com/deckhand-sh/deckhand/internal/ops"
	"github.com/deckhand-sh/deckhand/internal/status"
	"github.com/deckhand-sh/deckhand/internal/stream"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// Gateway upgrades HTTP requests to websocket connections and routes client
// commands to the registry, stream coordinator, and broadcaster.
type Gateway struct {
	logger      zerolog.Logger
	registry    *ops.Registry
	streams     *stream.Coordinator
	broadcaster *broadcast.Broadcaster
	statuses    *status.Cache
	logs        stream.ContainerLogReader
	upgrader    websocket.Upgrader

	connections atomic.Int64
}

// New constructs a Gateway. The container log reader may be nil, in which
// case container log commands are rejected.
func New(logger zerolog.Logger, registry *ops.Registry, streams *stream.Coordinator, broadcaster *broadcast.Broadcaster, statuses *status.Cache, logs stream.ContainerLogReader) *Gateway {
	return &Gateway{
		logger:      logger,
		registry:    registry,
		streams:     streams,
		broadcaster: broadcaster,
		statuses:    statuses,
		logs:        logs,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Connections returns the number of open websocket connections.
func (g *Gateway) Connections() int {
	return int(g.connections.Load())
}

// ServeHTTP implements http.Handler.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}

	connection := newConn(uuid.NewString(), ws, g.logger)
	g.connections.Add(1)
	g.broadcaster.Attach(connection.id, connection)

	g.logger.Info().Str("connection_id", connection.id).Str("remote", r.RemoteAddr).Msg("connection opened")

	go connection.writePump()
	if err := connection.enqueue(Frame{Type: frameConnected, ConnectionID: connection.id}); err != nil {
		connection.logger.Debug().Err(err).Msg("dropping connected frame")
	}

	go g.readPump(connection)
}

func (g *Gateway) readPump(connection *conn) {
	defer func() {
		g.streams.OnDisconnect(connection.id)
		g.broadcaster.DropConnection(connection.id)
		connection.markClosed()
		g.connections.Add(-1)
		g.logger.Info().Str("connection_id", connection.id).Msg("connection closed")
	}()

	connection.ws.SetReadLimit(maxMessageSize)
	_ = connection.ws.SetReadDeadline(time.Now().Add(pongWait))
	connection.ws.SetPongHandler(func(string) error {
		return connection.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := connection.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				connection.logger.Warn().Err(err).Msg("unexpected websocket close")
			}
			return
		}

		var command Command
		if err := json.Unmarshal(message, &command); err != nil {
			g.reject(connection, "malformed command")
			continue
		}
		g.handle(connection, command)
	}
}

func (g *Gateway) handle(connection *conn, command Command) {
	switch command.Action {
	case actionSubscribe:
		if command.OperationID == "" {
			g.reject(connection, "subscribe requires operation_id")
			return
		}
		g.broadcaster.Subscribe(connection.id, command.OperationID)

	case actionUnsubscribe:
		if command.OperationID == "" {
			g.reject(connection, "unsubscribe requires operation_id")
			return
		}
		g.broadcaster.Unsubscribe(connection.id, command.OperationID)

	case actionLogs:
		if command.OperationID == "" {
			g.reject(connection, "logs requires operation_id")
			return
		}
		g.streams.Start(connection.id, connection, stream.OperationLog(g.registry, command.OperationID))

	case actionContainerLogs:
		if g.logs == nil {
			g.reject(connection, "container logs are not available")
			return
		}
		if command.ContainerID == "" {
			g.reject(connection, "container_logs requires container_id")
			return
		}
		g.streams.Start(connection.id, connection, stream.ContainerLogs(g.logs, command.ContainerID, command.Tail, command.Timestamps))

	case actionStop:
		g.streams.Stop(connection.id)

	case actionStatus:
		if command.Project == "" {
			g.reject(connection, "status requires project")
			return
		}
		projectStatus, err := g.statuses.Status(command.Project)
		if err != nil {
			g.reject(connection, err.Error())
			return
		}
		if err := connection.enqueue(Frame{Type: frameStatus, Status: &projectStatus}); err != nil {
			connection.logger.Debug().Err(err).Msg("dropping status frame")
		}

	default:
		g.reject(connection, "unknown action "+command.Action)
	}
}

func (g *Gateway) reject(connection *conn, message string) {
	if err := connection.enqueue(Frame{Type: frameError, Message: message}); err != nil {
		connection.logger.Debug().Err(err).Msg("dropping rejection frame")
	}
}
