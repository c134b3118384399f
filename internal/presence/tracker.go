// Package presence tracks which users are connected and through which
// connections. A user counts as online while at least one of their
// connections is registered; the last disconnect flips them offline.
//
// State lives in three kinds of records in the shared store:
//
//	session:<connID>     JSON session record, TTL-bounded
//	user_sockets:<uid>   set of the user's live connection ids, TTL-bounded
//	online_users         global set of online user ids, pruned explicitly
//
// Multi-key updates are plain sequences, not transactions. A crash between
// steps leaves the records inconsistent until the TTL or the reconcile
// sweep catches up; that bounded staleness is accepted over distributed
// locking.
package presence

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"go.uber.org/zap"

	"presence-service/internal/model"
	"presence-service/internal/store"
)

const (
	sessionKeyPrefix     = "session:"
	userSocketsKeyPrefix = "user_sockets:"
	onlineUsersKey       = "online_users"

	DefaultSessionTTL = 24 * time.Hour
)

func sessionKey(connectionID string) string {
	return sessionKeyPrefix + connectionID
}

func userSocketsKey(userID int64) string {
	return userSocketsKeyPrefix + strconv.FormatInt(userID, 10)
}

// DisconnectResult reports the outcome of removing one connection.
// FullyOffline is true only when the removed connection was the user's last.
type DisconnectResult struct {
	UserID       int64
	FullyOffline bool
}

// Tracker is the single writer of the presence records. Every operation
// absorbs store errors at its own boundary: it logs and degrades to a safe
// zero value instead of propagating, so a store outage makes everyone look
// offline rather than failing the calling handler.
type Tracker struct {
	kv     store.KV
	ttl    time.Duration
	logger *zap.Logger
}

func NewTracker(kv store.KV, ttl time.Duration, logger *zap.Logger) *Tracker {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Tracker{kv: kv, ttl: ttl, logger: logger}
}

// SaveSession registers a connection for a user: writes the session record,
// adds the connection to the user's socket set (refreshing its TTL), and
// marks the user online. Re-registering the same connection id overwrites.
// If the connection was previously registered to a different user, the old
// membership is evicted first so a connection never counts for two users.
func (t *Tracker) SaveSession(ctx context.Context, connectionID string, sess *model.SessionData) {
	if connectionID == "" || sess == nil || sess.UserID == 0 {
		t.logger.Warn("rejecting session with missing connection id or user id",
			zap.String("connectionId", connectionID))
		return
	}

	if prev := t.GetSession(ctx, connectionID); prev != nil && prev.UserID != sess.UserID {
		t.evict(ctx, connectionID, prev.UserID)
	}

	data, err := json.Marshal(sess)
	if err != nil {
		t.logger.Error("failed to marshal session", zap.Error(err),
			zap.String("connectionId", connectionID))
		return
	}

	if err := t.kv.Set(ctx, sessionKey(connectionID), string(data), t.ttl); err != nil {
		t.logger.Error("failed to save session", zap.Error(err),
			zap.String("connectionId", connectionID))
		return
	}

	socketsKey := userSocketsKey(sess.UserID)
	if err := t.kv.SAdd(ctx, socketsKey, connectionID); err != nil {
		t.logger.Error("failed to add connection to user socket set", zap.Error(err),
			zap.String("connectionId", connectionID),
			zap.Int64("userId", sess.UserID))
		return
	}
	if err := t.kv.Expire(ctx, socketsKey, t.ttl); err != nil {
		t.logger.Warn("failed to refresh socket set TTL", zap.Error(err),
			zap.Int64("userId", sess.UserID))
	}

	if err := t.kv.SAdd(ctx, onlineUsersKey, strconv.FormatInt(sess.UserID, 10)); err != nil {
		t.logger.Error("failed to mark user online", zap.Error(err),
			zap.Int64("userId", sess.UserID))
	}
}

// GetSession returns the session for a connection, or nil when absent,
// expired, or unreadable.
func (t *Tracker) GetSession(ctx context.Context, connectionID string) *model.SessionData {
	data, ok, err := t.kv.Get(ctx, sessionKey(connectionID))
	if err != nil {
		t.logger.Error("failed to get session", zap.Error(err),
			zap.String("connectionId", connectionID))
		return nil
	}
	if !ok {
		return nil
	}

	var sess model.SessionData
	if err := json.Unmarshal([]byte(data), &sess); err != nil {
		t.logger.Error("failed to unmarshal stored session", zap.Error(err),
			zap.String("connectionId", connectionID))
		return nil
	}
	return &sess
}

// DeleteSession unregisters a connection. It is the only path that can
// transition a user to offline: when the removed connection was the last
// one, the user leaves the online set and FullyOffline is reported so the
// caller can broadcast the transition. Unknown connection ids return nil.
func (t *Tracker) DeleteSession(ctx context.Context, connectionID string) *DisconnectResult {
	sess := t.GetSession(ctx, connectionID)
	if sess == nil {
		// Drop the bare key in case the record is unreadable rather
		// than absent.
		if err := t.kv.Del(ctx, sessionKey(connectionID)); err != nil {
			t.logger.Error("failed to delete session key", zap.Error(err),
				zap.String("connectionId", connectionID))
		}
		return nil
	}

	if err := t.kv.Del(ctx, sessionKey(connectionID)); err != nil {
		t.logger.Error("failed to delete session key", zap.Error(err),
			zap.String("connectionId", connectionID))
		return nil
	}

	socketsKey := userSocketsKey(sess.UserID)
	if err := t.kv.SRem(ctx, socketsKey, connectionID); err != nil {
		t.logger.Error("failed to remove connection from socket set", zap.Error(err),
			zap.String("connectionId", connectionID),
			zap.Int64("userId", sess.UserID))
		return nil
	}

	remaining, err := t.kv.SCard(ctx, socketsKey)
	if err != nil {
		t.logger.Error("failed to count remaining sockets", zap.Error(err),
			zap.Int64("userId", sess.UserID))
		return nil
	}

	if remaining > 0 {
		return &DisconnectResult{UserID: sess.UserID, FullyOffline: false}
	}

	if err := t.kv.SRem(ctx, onlineUsersKey, strconv.FormatInt(sess.UserID, 10)); err != nil {
		t.logger.Error("failed to remove user from online set", zap.Error(err),
			zap.Int64("userId", sess.UserID))
	}
	if err := t.kv.Del(ctx, socketsKey); err != nil {
		t.logger.Error("failed to delete empty socket set", zap.Error(err),
			zap.Int64("userId", sess.UserID))
	}

	return &DisconnectResult{UserID: sess.UserID, FullyOffline: true}
}

// GetUserSockets returns the connection ids registered for a user.
// Never nil; empty on error or absence.
func (t *Tracker) GetUserSockets(ctx context.Context, userID int64) []string {
	members, err := t.kv.SMembers(ctx, userSocketsKey(userID))
	if err != nil {
		t.logger.Error("failed to read user socket set", zap.Error(err),
			zap.Int64("userId", userID))
		return []string{}
	}
	if members == nil {
		return []string{}
	}
	return members
}

func (t *Tracker) IsUserOnline(ctx context.Context, userID int64) bool {
	online, err := t.kv.SIsMember(ctx, onlineUsersKey, strconv.FormatInt(userID, 10))
	if err != nil {
		t.logger.Error("failed to check online membership", zap.Error(err),
			zap.Int64("userId", userID))
		return false
	}
	return online
}

// GetOnlineUsers lists every online user with nickname and connect time
// sampled from one of their sessions. Entries whose socket set is empty or
// whose sampled session is gone are skipped; the reconcile sweep prunes
// such drift separately. Ordering is unspecified.
func (t *Tracker) GetOnlineUsers(ctx context.Context) []model.OnlineUser {
	ids, err := t.kv.SMembers(ctx, onlineUsersKey)
	if err != nil {
		t.logger.Error("failed to read online set", zap.Error(err))
		return []model.OnlineUser{}
	}

	users := make([]model.OnlineUser, 0, len(ids))
	for _, id := range ids {
		userID, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			t.logger.Warn("skipping malformed online set member", zap.String("member", id))
			continue
		}

		sockets := t.GetUserSockets(ctx, userID)
		if len(sockets) == 0 {
			continue
		}
		sess := t.GetSession(ctx, sockets[0])
		if sess == nil {
			continue
		}

		users = append(users, model.OnlineUser{
			UserID:      userID,
			Nickname:    sess.Nickname,
			ConnectedAt: sess.ConnectedAt,
			SocketCount: len(sockets),
		})
	}
	return users
}

func (t *Tracker) GetOnlineCount(ctx context.Context) int64 {
	count, err := t.kv.SCard(ctx, onlineUsersKey)
	if err != nil {
		t.logger.Error("failed to count online users", zap.Error(err))
		return 0
	}
	return count
}

// ClearAllSessions wipes every presence record. Test fixtures and
// maintenance only, never production traffic.
func (t *Tracker) ClearAllSessions(ctx context.Context) {
	for _, pattern := range []string{sessionKeyPrefix + "*", userSocketsKeyPrefix + "*"} {
		keys, err := t.kv.Keys(ctx, pattern)
		if err != nil {
			t.logger.Error("failed to enumerate keys for wipe", zap.Error(err),
				zap.String("pattern", pattern))
			continue
		}
		if len(keys) == 0 {
			continue
		}
		if err := t.kv.Del(ctx, keys...); err != nil {
			t.logger.Error("failed to delete keys during wipe", zap.Error(err),
				zap.String("pattern", pattern))
		}
	}
	if err := t.kv.Del(ctx, onlineUsersKey); err != nil {
		t.logger.Error("failed to delete online set during wipe", zap.Error(err))
	}
}

// ReconcileOnlineSet removes online-set members whose socket set expired
// without an explicit disconnect. Returns the evicted user ids.
func (t *Tracker) ReconcileOnlineSet(ctx context.Context) []int64 {
	ids, err := t.kv.SMembers(ctx, onlineUsersKey)
	if err != nil {
		t.logger.Error("failed to read online set for reconcile", zap.Error(err))
		return nil
	}

	var evicted []int64
	for _, id := range ids {
		userID, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			// Malformed members can only come from outside writers;
			// drop them too.
			if err := t.kv.SRem(ctx, onlineUsersKey, id); err != nil {
				t.logger.Error("failed to drop malformed online member", zap.Error(err))
			}
			continue
		}

		count, err := t.kv.SCard(ctx, userSocketsKey(userID))
		if err != nil {
			t.logger.Error("failed to count sockets during reconcile", zap.Error(err),
				zap.Int64("userId", userID))
			continue
		}
		if count > 0 {
			continue
		}

		if err := t.kv.SRem(ctx, onlineUsersKey, id); err != nil {
			t.logger.Error("failed to evict stale online member", zap.Error(err),
				zap.Int64("userId", userID))
			continue
		}
		evicted = append(evicted, userID)
	}
	return evicted
}

// evict removes a connection's membership under a user it no longer
// belongs to, flipping that user offline when it was their last socket.
func (t *Tracker) evict(ctx context.Context, connectionID string, userID int64) {
	socketsKey := userSocketsKey(userID)
	if err := t.kv.SRem(ctx, socketsKey, connectionID); err != nil {
		t.logger.Error("failed to evict stale socket membership", zap.Error(err),
			zap.String("connectionId", connectionID),
			zap.Int64("userId", userID))
		return
	}

	remaining, err := t.kv.SCard(ctx, socketsKey)
	if err != nil || remaining > 0 {
		return
	}
	if err := t.kv.SRem(ctx, onlineUsersKey, strconv.FormatInt(userID, 10)); err != nil {
		t.logger.Error("failed to remove re-authed user from online set", zap.Error(err),
			zap.Int64("userId", userID))
	}
	if err := t.kv.Del(ctx, socketsKey); err != nil {
		t.logger.Error("failed to delete empty socket set", zap.Error(err),
			zap.Int64("userId", userID))
	}
}
