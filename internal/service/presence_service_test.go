package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"presence-service/internal/model"
	"presence-service/internal/presence"
	"presence-service/internal/store"
)

// MockLastSeenStore records calls in memory.
type MockLastSeenStore struct {
	records map[int64]*model.UserLastSeen
}

func newMockLastSeenStore() *MockLastSeenStore {
	return &MockLastSeenStore{records: make(map[int64]*model.UserLastSeen)}
}

func (m *MockLastSeenStore) Record(userID int64, nickname string, at time.Time) error {
	m.records[userID] = &model.UserLastSeen{UserID: userID, Nickname: nickname, LastSeen: at}
	return nil
}

func (m *MockLastSeenStore) Get(userID int64) (*model.UserLastSeen, error) {
	if r, ok := m.records[userID]; ok {
		return r, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func newTestService(t *testing.T, lastSeen LastSeenStore) *PresenceService {
	t.Helper()
	tracker := presence.NewTracker(store.NewMemory(), time.Hour, zap.NewNop())
	// nil redis client: broadcasts are skipped, which is what unit tests want
	return NewPresenceService(tracker, lastSeen, nil, "presence:events", zap.NewNop())
}

func sess(userID int64, nickname string) *model.SessionData {
	return &model.SessionData{UserID: userID, Nickname: nickname, ConnectedAt: time.Now().UTC()}
}

func TestPresenceService_ConnectReportsFirstTransition(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, nil)

	assert.True(t, svc.Connect(ctx, "c1", sess(123, "Amina")))
	assert.False(t, svc.Connect(ctx, "c2", sess(123, "Amina")))
	assert.True(t, svc.Connect(ctx, "c3", sess(456, "Bram")))

	assert.EqualValues(t, 2, svc.GetOnlineCount(ctx))
}

func TestPresenceService_DisconnectPersistsLastSeen(t *testing.T) {
	ctx := context.Background()
	lastSeen := newMockLastSeenStore()
	svc := newTestService(t, lastSeen)

	svc.Connect(ctx, "c1", sess(123, "Amina"))
	svc.Connect(ctx, "c2", sess(123, "Amina"))

	res := svc.Disconnect(ctx, "c1")
	require.NotNil(t, res)
	assert.False(t, res.FullyOffline)
	assert.Empty(t, lastSeen.records)

	res = svc.Disconnect(ctx, "c2")
	require.NotNil(t, res)
	assert.True(t, res.FullyOffline)
	require.Contains(t, lastSeen.records, int64(123))
	assert.Equal(t, "Amina", lastSeen.records[123].Nickname)
}

func TestPresenceService_DisconnectUnknownConnection(t *testing.T) {
	ctx := context.Background()
	lastSeen := newMockLastSeenStore()
	svc := newTestService(t, lastSeen)

	assert.Nil(t, svc.Disconnect(ctx, "nope"))
	assert.Empty(t, lastSeen.records)
}

func TestPresenceService_GetUserStatus(t *testing.T) {
	ctx := context.Background()
	lastSeen := newMockLastSeenStore()
	svc := newTestService(t, lastSeen)

	svc.Connect(ctx, "c1", sess(123, "Amina"))

	status := svc.GetUserStatus(ctx, 123)
	assert.True(t, status.Online)
	assert.Nil(t, status.LastSeen)

	svc.Disconnect(ctx, "c1")

	status = svc.GetUserStatus(ctx, 123)
	assert.False(t, status.Online)
	require.NotNil(t, status.LastSeen)

	// Unknown user: offline, no history
	status = svc.GetUserStatus(ctx, 999)
	assert.False(t, status.Online)
	assert.Nil(t, status.LastSeen)
}

func TestPresenceService_Reconcile(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory()
	tracker := presence.NewTracker(kv, time.Hour, zap.NewNop())
	lastSeen := newMockLastSeenStore()
	svc := NewPresenceService(tracker, lastSeen, nil, "presence:events", zap.NewNop())

	svc.Connect(ctx, "c1", sess(123, "Amina"))
	svc.Connect(ctx, "c2", sess(456, "Bram"))

	// Socket set of 123 expires without a disconnect.
	require.NoError(t, kv.Del(ctx, "user_sockets:123"))

	assert.Equal(t, 1, svc.Reconcile(ctx))
	assert.False(t, svc.IsUserOnline(ctx, 123))
	assert.True(t, svc.IsUserOnline(ctx, 456))
	assert.Contains(t, lastSeen.records, int64(123))

	assert.Equal(t, 0, svc.Reconcile(ctx))
}

func TestPresenceService_ClearAllSessions(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, nil)

	svc.Connect(ctx, "c1", sess(123, "Amina"))
	svc.Connect(ctx, "c2", sess(456, "Bram"))

	svc.ClearAllSessions(ctx)
	assert.EqualValues(t, 0, svc.GetOnlineCount(ctx))
	assert.Empty(t, svc.GetOnlineUsers(ctx))
}
