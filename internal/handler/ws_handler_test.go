package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"presence-service/internal/model"
	"presence-service/internal/presence"
)

const testSecret = "test-secret"

func signToken(t *testing.T, userID int64, nickname string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":      float64(userID),
		"nickname": nickname,
		"exp":      time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func setupWSServer(t *testing.T, svc PresenceService) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	h := NewWSHandler(zap.NewNop(), svc, testSecret, nil, "presence:events")
	r := gin.New()
	r.GET("/ws", h.HandlePresenceWebSocket)
	return httptest.NewServer(r)
}

func TestWSHandler_RejectsMissingToken(t *testing.T) {
	srv := setupWSServer(t, &MockPresenceService{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/ws")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", resp.StatusCode)
	}
}

func TestWSHandler_RejectsInvalidToken(t *testing.T) {
	srv := setupWSServer(t, &MockPresenceService{})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/ws?token=garbage")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", resp.StatusCode)
	}
}

func TestWSHandler_ConnectAndDisconnectDrivePresence(t *testing.T) {
	connected := make(chan string, 1)
	disconnected := make(chan string, 1)

	svc := &MockPresenceService{
		ConnectFunc: func(ctx context.Context, connectionID string, sess *model.SessionData) bool {
			if sess.UserID != 123 || sess.Nickname != "Amina" {
				t.Errorf("unexpected session: %+v", sess)
			}
			connected <- connectionID
			return true
		},
		DisconnectFunc: func(ctx context.Context, connectionID string) *presence.DisconnectResult {
			disconnected <- connectionID
			return &presence.DisconnectResult{UserID: 123, FullyOffline: true}
		},
	}

	srv := setupWSServer(t, svc)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + signToken(t, 123, "Amina")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}

	var connID string
	select {
	case connID = <-connected:
	case <-time.After(2 * time.Second):
		t.Fatal("Connect was not called")
	}
	if connID == "" {
		t.Fatal("expected a generated connection id")
	}

	conn.Close()

	select {
	case gotID := <-disconnected:
		if gotID != connID {
			t.Errorf("Disconnect called with %q, want %q", gotID, connID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Disconnect was not called")
	}
}
