package bridge

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// DashboardAuth validates a dashboard websocket connection's auth parameter.
type DashboardAuth func(token string) bool

// DashboardHandler upgrades authenticated HTTP requests to websocket
// connections and forwards frames to onMessage.
type DashboardHandler struct {
	Auth      DashboardAuth
	OnMessage func(conn *websocket.Conn, msg []byte)
	Log       *slog.Logger

	upgrader websocket.Upgrader
}

// NewDashboardHandler builds a DashboardHandler. auth validates the
// connect-time token/password; a nil auth accepts every connection.
func NewDashboardHandler(auth DashboardAuth, onMessage func(*websocket.Conn, []byte), log *slog.Logger) *DashboardHandler {
	if log == nil {
		log = slog.Default()
	}
	return &DashboardHandler{
		Auth:      auth,
		OnMessage: onMessage,
		Log:       log,
		upgrader:  websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096},
	}
}

func (h *DashboardHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("auth")
	if h.Auth != nil && !h.Auth(token) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Log.Warn("bridge dashboard upgrade failed", "err", err)
		return
	}

	if h.Auth != nil && !h.Auth(token) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "invalid auth"), time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}

	defer conn.Close()
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}
		if h.OnMessage != nil {
			h.OnMessage(conn, data)
		}
	}
}
