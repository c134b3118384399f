package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"presence-service/internal/middleware"
	"presence-service/internal/model"
	"presence-service/internal/presence"
)

// LastSeenStore persists fully-offline transitions. Nil-able: the service
// runs without the relational side, it just cannot answer "last seen".
type LastSeenStore interface {
	Record(userID int64, nickname string, at time.Time) error
	Get(userID int64) (*model.UserLastSeen, error)
}

// StatusEvent is published on the presence event channel whenever a user
// transitions online or offline, so every service instance can fan it out
// to its local WebSocket clients.
type StatusEvent struct {
	Type   string               `json:"type"`
	UserID int64                `json:"userId"`
	Status model.PresenceStatus `json:"status"`
}

// UserStatus is the answer to a single-user status query.
type UserStatus struct {
	UserID   int64      `json:"userId"`
	Online   bool       `json:"online"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}

type PresenceService struct {
	tracker  *presence.Tracker
	lastSeen LastSeenStore
	redis    *redis.Client
	channel  string
	logger   *zap.Logger
}

func NewPresenceService(
	tracker *presence.Tracker,
	lastSeen LastSeenStore,
	redisClient *redis.Client,
	eventChannel string,
	logger *zap.Logger,
) *PresenceService {
	return &PresenceService{
		tracker:  tracker,
		lastSeen: lastSeen,
		redis:    redisClient,
		channel:  eventChannel,
		logger:   logger,
	}
}

// Connect registers a connection for a user and broadcasts ONLINE when this
// made the user visible. Returns true on that first-connection transition.
func (s *PresenceService) Connect(ctx context.Context, connectionID string, sess *model.SessionData) bool {
	wasOnline := s.tracker.IsUserOnline(ctx, sess.UserID)

	s.tracker.SaveSession(ctx, connectionID, sess)

	cameOnline := !wasOnline && s.tracker.IsUserOnline(ctx, sess.UserID)
	if cameOnline {
		s.broadcastStatus(ctx, sess.UserID, model.PresenceOnline)
	}
	middleware.SetOnlineUsers(float64(s.tracker.GetOnlineCount(ctx)))
	return cameOnline
}

// Disconnect unregisters a connection. On the user's last connection it
// persists last-seen and broadcasts OFFLINE. A nil result means nothing
// definitive happened (unknown id or store trouble).
func (s *PresenceService) Disconnect(ctx context.Context, connectionID string) *presence.DisconnectResult {
	sess := s.tracker.GetSession(ctx, connectionID)

	res := s.tracker.DeleteSession(ctx, connectionID)
	if res == nil {
		return nil
	}

	if res.FullyOffline {
		nickname := ""
		if sess != nil {
			nickname = sess.Nickname
		}
		s.recordLastSeen(res.UserID, nickname)
		s.broadcastStatus(ctx, res.UserID, model.PresenceOffline)
	}
	middleware.SetOnlineUsers(float64(s.tracker.GetOnlineCount(ctx)))
	return res
}

func (s *PresenceService) GetSession(ctx context.Context, connectionID string) *model.SessionData {
	return s.tracker.GetSession(ctx, connectionID)
}

func (s *PresenceService) GetOnlineUsers(ctx context.Context) []model.OnlineUser {
	return s.tracker.GetOnlineUsers(ctx)
}

func (s *PresenceService) GetOnlineCount(ctx context.Context) int64 {
	return s.tracker.GetOnlineCount(ctx)
}

func (s *PresenceService) IsUserOnline(ctx context.Context, userID int64) bool {
	return s.tracker.IsUserOnline(ctx, userID)
}

func (s *PresenceService) GetUserSockets(ctx context.Context, userID int64) []string {
	return s.tracker.GetUserSockets(ctx, userID)
}

// GetUserStatus reports online/offline plus the recorded last-seen time for
// offline users with history.
func (s *PresenceService) GetUserStatus(ctx context.Context, userID int64) *UserStatus {
	status := &UserStatus{
		UserID: userID,
		Online: s.tracker.IsUserOnline(ctx, userID),
	}

	if !status.Online && s.lastSeen != nil {
		record, err := s.lastSeen.Get(userID)
		if err != nil {
			if err != gorm.ErrRecordNotFound {
				s.logger.Error("failed to read last seen", zap.Error(err),
					zap.Int64("userId", userID))
			}
		} else {
			status.LastSeen = &record.LastSeen
		}
	}
	return status
}

func (s *PresenceService) ClearAllSessions(ctx context.Context) {
	s.tracker.ClearAllSessions(ctx)
	middleware.SetOnlineUsers(0)
}

// Reconcile prunes online-set members whose socket sets expired without a
// disconnect, broadcasting OFFLINE for each eviction. Called by the cron
// sweep, safe to call concurrently with live traffic.
func (s *PresenceService) Reconcile(ctx context.Context) int {
	evicted := s.tracker.ReconcileOnlineSet(ctx)
	for _, userID := range evicted {
		s.recordLastSeen(userID, "")
		s.broadcastStatus(ctx, userID, model.PresenceOffline)
	}
	if len(evicted) > 0 {
		middleware.RecordReconcileEvictions(len(evicted))
	}
	middleware.SetOnlineUsers(float64(s.tracker.GetOnlineCount(ctx)))
	return len(evicted)
}

func (s *PresenceService) recordLastSeen(userID int64, nickname string) {
	if s.lastSeen == nil {
		return
	}
	if err := s.lastSeen.Record(userID, nickname, time.Now().UTC()); err != nil {
		s.logger.Error("failed to record last seen", zap.Error(err),
			zap.Int64("userId", userID))
	}
}

func (s *PresenceService) broadcastStatus(ctx context.Context, userID int64, status model.PresenceStatus) {
	if s.redis == nil {
		return
	}

	data, err := json.Marshal(StatusEvent{
		Type:   "USER_STATUS",
		UserID: userID,
		Status: status,
	})
	if err != nil {
		s.logger.Error("failed to marshal status for broadcast", zap.Error(err))
		return
	}

	if err := s.redis.Publish(ctx, s.channel, data).Err(); err != nil {
		s.logger.Error("failed to broadcast status", zap.Error(err),
			zap.Int64("userId", userID))
	}
}
