package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"presence-service/internal/model"
	"presence-service/internal/presence"
	"presence-service/internal/service"
)

// PresenceService is the surface the handlers consume. The concrete
// implementation lives in internal/service.
type PresenceService interface {
	Connect(ctx context.Context, connectionID string, sess *model.SessionData) bool
	Disconnect(ctx context.Context, connectionID string) *presence.DisconnectResult
	GetOnlineUsers(ctx context.Context) []model.OnlineUser
	GetOnlineCount(ctx context.Context) int64
	IsUserOnline(ctx context.Context, userID int64) bool
	GetUserSockets(ctx context.Context, userID int64) []string
	GetUserStatus(ctx context.Context, userID int64) *service.UserStatus
	ClearAllSessions(ctx context.Context)
}

type PresenceHandler struct {
	presenceService PresenceService
	logger          *zap.Logger
	env             string
}

func NewPresenceHandler(presenceService PresenceService, env string, logger *zap.Logger) *PresenceHandler {
	return &PresenceHandler{
		presenceService: presenceService,
		logger:          logger,
		env:             env,
	}
}

// GetOnlineUsers returns every online user with nickname, connect time and
// socket count.
func (h *PresenceHandler) GetOnlineUsers(c *gin.Context) {
	users := h.presenceService.GetOnlineUsers(c.Request.Context())
	c.JSON(http.StatusOK, users)
}

// GetOnlineCount returns the number of online users.
func (h *PresenceHandler) GetOnlineCount(c *gin.Context) {
	count := h.presenceService.GetOnlineCount(c.Request.Context())
	c.JSON(http.StatusOK, OnlineCountResponse{Count: count})
}

// GetUserStatus returns one user's online flag, with last-seen for offline
// users when history exists.
func (h *PresenceHandler) GetUserStatus(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("userId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: ErrorBody{Code: "BAD_REQUEST", Message: "Invalid user ID"},
		})
		return
	}

	c.JSON(http.StatusOK, h.presenceService.GetUserStatus(c.Request.Context(), userID))
}

// GetUserSockets returns the connection ids currently registered for a user.
func (h *PresenceHandler) GetUserSockets(c *gin.Context) {
	userID, err := strconv.ParseInt(c.Param("userId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: ErrorBody{Code: "BAD_REQUEST", Message: "Invalid user ID"},
		})
		return
	}

	c.JSON(http.StatusOK, UserSocketsResponse{
		UserID:        userID,
		ConnectionIDs: h.presenceService.GetUserSockets(c.Request.Context(), userID),
	})
}

// ClearSessions wipes all presence state. Dev/test environments only;
// anything else is refused, not just production.
func (h *PresenceHandler) ClearSessions(c *gin.Context) {
	switch h.env {
	case "dev", "development", "test":
	default:
		c.JSON(http.StatusForbidden, ErrorResponse{
			Error: ErrorBody{Code: "FORBIDDEN", Message: "Only available in dev and test environments"},
		})
		return
	}

	h.presenceService.ClearAllSessions(c.Request.Context())
	h.logger.Warn("all presence sessions cleared via maintenance endpoint")
	c.Status(http.StatusNoContent)
}
