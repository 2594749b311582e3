package http

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"

	"quizlive/internal/app"
	"quizlive/internal/domain"
)

const writeTimeout = 10 * time.Second

// IdentityVerifier checks the host credential presented at connect time.
// The engine treats the token as an opaque host identity once verified.
type IdentityVerifier interface {
	Verify(token string) bool
}

// AnyToken accepts every non-empty token, for deployments that terminate
// authentication upstream.
type AnyToken struct{}

func (AnyToken) Verify(token string) bool { return token != "" }

// WSHandler upgrades HTTP requests to websockets and wires them into the
// live engine: one endpoint for hosts, one for players.
type WSHandler struct {
	engine   *app.Engine
	verifier IdentityVerifier
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(engine *app.Engine, verifier IdentityVerifier, logger *slog.Logger) *WSHandler {
	if verifier == nil {
		verifier = AnyToken{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WSHandler{
		engine:   engine,
		verifier: verifier,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// wsConn adapts a gorilla connection to app.Conn. Gorilla permits one
// concurrent writer, so every write goes through the mutex.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close(code int, reason string) error {
	c.mu.Lock()
	_ = c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(writeTimeout),
	)
	c.mu.Unlock()
	return c.conn.Close()
}

// ServeHost handles GET /ws/host/:room_code?token=... The path code is only
// checked for an ownership conflict; the engine always assigns a fresh code
// and announces it in the room_created message.
func (h *WSHandler) ServeHost(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	token := r.URL.Query().Get("token")
	if !h.verifier.Verify(token) {
		http.Error(w, "invalid or missing token", http.StatusUnauthorized)
		return
	}
	raw, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("host upgrade failed", "err", err)
		return
	}
	conn := &wsConn{conn: raw}
	logger := h.logger.With("conn_id", uuid.NewString())

	if requested := ps.ByName("room_code"); requested != "" && h.engine.RoomOwnedByOther(requested, token) {
		logger.Info("host rejected", "err", domain.ErrRoomOwned)
		_ = conn.Close(app.ClosePolicyViolation, domain.ErrRoomOwned.Error())
		return
	}

	roomCode, err := h.engine.ConnectHost(conn, token, realIP(r))
	if err != nil {
		logger.Info("host rejected", "err", err)
		return
	}
	logger = logger.With("room_code", roomCode)
	logger.Info("host connected")
	defer h.engine.DisconnectHost(roomCode)

	for {
		kind, data, err := raw.ReadMessage()
		if err != nil {
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		h.engine.HandleHostMessage(roomCode, data)
	}
}

// ServePlayer handles GET /ws/player/:room_code?username=...
func (h *WSHandler) ServePlayer(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	roomCode := ps.ByName("room_code")
	username := strings.TrimSpace(r.URL.Query().Get("username"))
	if n := utf8.RuneCountInString(username); n < 1 || n > 20 {
		http.Error(w, "username must be 1-20 characters", http.StatusBadRequest)
		return
	}

	raw, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("player upgrade failed", "err", err)
		return
	}
	conn := &wsConn{conn: raw}
	logger := h.logger.With("conn_id", uuid.NewString(), "room_code", roomCode)

	participantID, err := h.engine.ConnectPlayer(conn, roomCode, username, realIP(r))
	if err != nil {
		logger.Info("player rejected", "err", err)
		return
	}
	logger.Info("player connected", "player_id", participantID)
	defer h.engine.DisconnectPlayer(roomCode, participantID)

	for {
		kind, data, err := raw.ReadMessage()
		if err != nil {
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		h.engine.HandlePlayerMessage(roomCode, participantID, data)
	}
}

// realIP prefers the first X-Forwarded-For hop so the per-address limits
// survive a reverse proxy, falling back to the socket peer.
func realIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if idx := strings.IndexByte(fwd, ','); idx >= 0 {
			fwd = fwd[:idx]
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
