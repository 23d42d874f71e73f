package room

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"bitbattle/internal/common/validate"
	problemmodel "bitbattle/internal/problem/model"
	"bitbattle/internal/room/model"
	appErr "bitbattle/pkg/errors"
	"bitbattle/pkg/utils/logger"
	"bitbattle/pkg/utils/response"
)

const defaultRequiredPlayers = 2

// HandlerConfig wires the websocket endpoints.
type HandlerConfig struct {
	Registry *Registry

	// CheckOrigin vets the Origin header during the upgrade. Nil allows
	// every origin, which is fine behind a reverse proxy that already
	// filters.
	CheckOrigin func(r *http.Request) bool

	// Inbound code_change budget per socket.
	CodeChangeBurst        int
	CodeChangeRefillPerSec int
}

// Handler upgrades battle and spectator sockets and serves the live-rooms
// listing.
type Handler struct {
	registry   *Registry
	upgrader   websocket.Upgrader
	codeBurst  int
	codeRefill int
}

// NewHandler creates a websocket handler over the given registry.
func NewHandler(cfg HandlerConfig) *Handler {
	checkOrigin := cfg.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	if cfg.CodeChangeBurst <= 0 {
		cfg.CodeChangeBurst = 20
	}
	if cfg.CodeChangeRefillPerSec <= 0 {
		cfg.CodeChangeRefillPerSec = 20
	}
	return &Handler{
		registry: cfg.Registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		codeBurst:  cfg.CodeChangeBurst,
		codeRefill: cfg.CodeChangeRefillPerSec,
	}
}

// ServeBattle handles GET /ws?room=&difficulty=&players=&mode=&username=.
// Parameter problems are rejected before the upgrade; admission problems
// after it arrive as error frames so browser clients can read them.
func (h *Handler) ServeBattle(c *gin.Context) {
	code, err := validate.RoomCode(c.Query("room"))
	if err != nil {
		response.Error(c, err)
		return
	}

	difficulty := problemmodel.DifficultyAny
	if raw := c.Query("difficulty"); raw != "" && raw != "random" {
		parsed, ok := problemmodel.ParseDifficulty(raw)
		if !ok {
			response.ErrorWithCode(c, appErr.InvalidDifficulty, "Unknown difficulty")
			return
		}
		difficulty = parsed
	}

	required := defaultRequiredPlayers
	if raw := c.Query("players"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			response.BadRequest(c, "players must be a number")
			return
		}
		required = parsed
	}
	if err := validate.PlayerCount(required); err != nil {
		response.Error(c, err)
		return
	}

	mode, ok := model.ParseGameMode(c.Query("mode"))
	if !ok {
		response.BadRequest(c, "Unknown game mode")
		return
	}

	username, userID, err := h.identity(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	if mode == model.ModeRanked && userID == "" {
		response.ErrorWithCode(c, appErr.RankedRequiresAuth, "")
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn(c.Request.Context(), "websocket upgrade failed",
			zap.String("room", code), zap.Error(err))
		return
	}

	rm := h.registry.Ensure(code, difficulty, required, mode)
	cl := &client{sock: newSocket(conn), username: username, userID: userID}
	reply := rm.join(cl)
	if reply.err != nil {
		// The room already queued the rejection frame; just wait out the
		// close handshake.
		drain(conn)
		return
	}
	h.readLoop(conn, rm, cl, !reply.spectator)
}

// ServeSpectate handles GET /ws/spectate?room=. Spectators of missing
// rooms still get the upgrade so the error arrives as a frame, matching
// what browser clients can observe.
func (h *Handler) ServeSpectate(c *gin.Context) {
	code, err := validate.RoomCode(c.Query("room"))
	if err != nil {
		response.Error(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn(c.Request.Context(), "websocket upgrade failed",
			zap.String("room", code), zap.Error(err))
		return
	}

	rm, ok := h.registry.Get(code)
	if !ok {
		sock := newSocket(conn)
		sock.closeAfter(errorFrame(appErr.RoomNotFound, "Room not found"))
		drain(conn)
		return
	}

	cl := &client{sock: newSocket(conn), spectator: true}
	reply := rm.spectate(cl)
	if reply.err != nil {
		drain(conn)
		return
	}
	h.readLoop(conn, rm, cl, false)
}

// LiveRooms handles GET /rooms/live.
func (h *Handler) LiveRooms(c *gin.Context) {
	response.Success(c, h.registry.LiveGames())
}

// identity resolves who this socket plays as. A valid bearer token wins;
// otherwise the username query parameter names a guest, and with neither
// a guest handle is minted.
func (h *Handler) identity(c *gin.Context) (username, userID string, err error) {
	if id := c.GetString("user_id"); id != "" {
		return c.GetString("username"), id, nil
	}
	if raw := c.Query("username"); raw != "" {
		username, err = validate.Username(raw)
		return username, "", err
	}
	return "guest-" + uuid.NewString()[:8], "", nil
}

// readLoop pumps inbound frames until the connection dies. Spectators and
// demoted duplicates get their frames read and dropped; only participants
// can relay.
func (h *Handler) readLoop(conn *websocket.Conn, rm *Room, cl *client, participant bool) {
	defer rm.leave(cl)

	limiter := newCodeChangeLimiter(h.codeBurst, h.codeRefill)
	conn.SetReadLimit(readLimit)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if !participant {
			continue
		}

		var frame model.ClientFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			cl.sock.enqueue(errorFrame(appErr.InvalidParams, "Malformed frame"))
			continue
		}
		switch frame.Type {
		case model.EventCodeChange:
			if !limiter.allow() {
				continue
			}
			var change model.CodeChange
			if err := json.Unmarshal(frame.Data, &change); err != nil {
				cl.sock.enqueue(errorFrame(appErr.InvalidParams, "Malformed code_change payload"))
				continue
			}
			rm.relayCodeChange(cl, change)
		case model.EventUserJoined, model.EventUserLeft:
			// Older clients announce membership themselves; the server
			// already derives both from the socket lifecycle.
		default:
			cl.sock.enqueue(errorFrame(appErr.InvalidParams, "Unknown message type"))
		}
	}
}

// drain reads until the peer closes, giving the writer time to flush the
// final frames of a rejected connection.
func drain(conn *websocket.Conn) {
	conn.SetReadLimit(readLimit)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
