package realtime

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"backoffice/apperr"
	"backoffice/auth"
	"backoffice/httpx"
	"backoffice/logging"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// checkPeriod is how often a connected client's session is re-checked. It
// matches the ping interval.
var checkPeriod = pingPeriod

// Bootstrapper turns a token into the caller's current session.
type Bootstrapper interface {
	Bootstrap(ctx context.Context, token string) (*auth.Session, error)
}

// ServeWSHandler upgrades GET /api/realtime?token=...&tables=a,b to a
// websocket after checking the token. Browsers cannot set headers on
// websocket requests, so the token travels in the query string. The session
// is checked again on every ping: a deactivated user or an expired token
// closes the socket, and a role change narrows or widens the events sent.
func ServeWSHandler(hub *Hub, sessions Bootstrapper, allowedOrigins []string) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")
		if token == "" {
			token = auth.BearerToken(r)
		}
		if token == "" {
			httpx.WriteError(w, r, apperr.Unauthorized("missing token"))
			return
		}
		sess, err := sessions.Bootstrap(r.Context(), token)
		if err != nil {
			httpx.WriteError(w, r, err)
			return
		}

		// Register before upgrading so events published once the client sees
		// the handshake complete are delivered.
		c := NewClient(uuid.NewString(), r.URL.Query().Get("tables"), sess.Permissions)
		if !hub.Register(c) {
			httpx.WriteError(w, r, apperr.New(http.StatusServiceUnavailable, "unavailable", "realtime is shutting down"))
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade has already answered the request.
			logging.FromContext(r.Context()).Warn("websocket upgrade failed", zap.Error(err))
			hub.Unregister(c)
			return
		}
		log := logging.FromContext(r.Context()).With(zap.Int64("user_id", sess.Profile.ID), zap.String("client", c.ID))
		check := func() bool {
			// The request context ends once the handler returns.
			next, err := sessions.Bootstrap(context.WithoutCancel(r.Context()), token)
			if err != nil {
				log.Info("closing realtime client", zap.Error(err))
				return false
			}
			hub.SetPermissions(c, next.Permissions)
			return true
		}
		go writePump(conn, c, checkPeriod, check)
		go readPump(hub, conn, c)
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}

// readPump discards client messages and unregisters on disconnect.
func readPump(hub *Hub, conn *websocket.Conn, c *Client) {
	defer func() {
		hub.Unregister(c)
		conn.Close()
	}()
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func writePump(conn *websocket.Conn, c *Client, period time.Duration, check func() bool) {
	ticker := time.NewTicker(period)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !check() {
				conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "session ended"))
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
