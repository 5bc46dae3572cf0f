package realtime

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/ncobase/jobstream/internal/job/structs"
	"github.com/ncobase/jobstream/pkg/jwt"
	"github.com/ncobase/jobstream/pkg/logger"
)

// Application close codes sent after a failed handshake. The upgrade always
// succeeds first so the client receives a meaningful close frame instead of
// an opaque HTTP error.
const (
	CloseMissingCredentials = 4001
	CloseInvalidCredentials = 4003
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler upgrades and authenticates WebSocket connections.
type Handler struct {
	hub    *Hub
	tokens *jwt.TokenManager
}

// NewHandler creates a WebSocket handler.
func NewHandler(hub *Hub, tokens *jwt.TokenManager) *Handler {
	return &Handler{hub: hub, tokens: tokens}
}

// HandleConnection upgrades the request, verifies the token, and attaches
// the client to the hub.
func (h *Handler) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.StdLogger().Errorf(c.Request.Context(), "failed to upgrade connection: %v", err)
		return
	}

	token := extractToken(c)
	if token == "" {
		closeWith(conn, CloseMissingCredentials, "missing credentials")
		return
	}

	claims, err := h.tokens.DecodeToken(token)
	if err != nil {
		closeWith(conn, CloseInvalidCredentials, "invalid credentials")
		return
	}
	userID := jwt.GetPayloadString(claims, "user_id")
	role := jwt.GetPayloadString(claims, "role")
	if userID == "" {
		closeWith(conn, CloseInvalidCredentials, "invalid credentials")
		return
	}
	if role == "" {
		role = structs.RoleUser
	}

	client := NewClient(h.hub, conn, userID, role)
	h.hub.register <- client

	go client.WritePump()
	go client.ReadPump()
}

// HandleStats returns the hub's connection counts.
func (h *Handler) HandleStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.hub.Stats())
}

// extractToken reads the credential from the query string or the
// Authorization header. Browsers cannot set headers on WebSocket upgrades,
// so the query parameter is the primary path.
func extractToken(c *gin.Context) string {
	if token := c.Query("token"); token != "" {
		return token
	}
	auth := c.GetHeader("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(time.Second)
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	_ = conn.Close()
}
