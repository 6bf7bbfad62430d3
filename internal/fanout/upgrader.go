package fanout

import (
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Upgrader accepts incoming HTTP connections onto the hub as
// websocket clients.
type Upgrader struct {
	hub      *Hub
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewUpgrader wraps hub with an HTTP handler that performs the
// websocket handshake. Origin checking is left permissive; the
// transport's origin policy is out of this core's scope.
func NewUpgrader(hub *Hub, logger *zap.Logger) *Upgrader {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Upgrader{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// ServeHTTP implements http.Handler.
func (u *Upgrader) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := u.upgrader.Upgrade(w, r, nil)
	if err != nil {
		u.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := u.hub.Register(conn)

	go client.WritePump()
	go client.ReadPump()

	u.logger.Debug("websocket connection established", zap.Uint32("client_id", client.ID))
}
