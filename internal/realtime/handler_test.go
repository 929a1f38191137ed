package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zombar/feedbackpulse/internal/auth"
	"github.com/zombar/feedbackpulse/internal/models"
)

func newTestServer(t *testing.T) (*Hub, *auth.Verifier, *httptest.Server) {
	t.Helper()
	hub := NewHub(nil)
	verifier := auth.NewVerifier("ws-secret")
	handler := NewHandler(hub, verifier, nil, nil)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws/dashboard", handler.ServeDashboard)
	srv := httptest.NewServer(mux)

	t.Cleanup(func() {
		srv.Close()
		hub.Close()
	})
	return hub, verifier, srv
}

func wsURL(srv *httptest.Server, token string) string {
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/dashboard"
	if token != "" {
		u += "?token=" + token
	}
	return u
}

func TestServeDashboardDeliversUpdates(t *testing.T) {
	hub, verifier, srv := newTestServer(t)

	token, err := verifier.Issue("u1", "o1", auth.RoleUser, time.Hour)
	require.NoError(t, err)

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, token), nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	require.Eventually(t, func() bool {
		return hub.ClientCount(DashboardChannel) == 1
	}, time.Second, 10*time.Millisecond)

	metrics := &models.DashboardMetrics{
		TotalSurveys:   1,
		TotalResponses: 1,
		AvgSentiment:   0.4,
		CriticalIssues: []models.CriticalIssue{},
		RecentActivity: []models.ActivityItem{},
	}
	require.NoError(t, hub.EmitMetricsUpdate(context.Background(), models.Scope{OrganizationID: "o1"}, metrics))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, MsgMetricsUpdate, msg.Type)

	var got models.DashboardMetrics
	require.NoError(t, json.Unmarshal(msg.Payload, &got))
	assert.Equal(t, 0.4, got.AvgSentiment)
	assert.Equal(t, 1, got.TotalResponses)
}

func TestServeDashboardBearerHeader(t *testing.T) {
	hub, verifier, srv := newTestServer(t)

	token, err := verifier.Issue("u1", "o1", auth.RoleAdmin, time.Hour)
	require.NoError(t, err)

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, ""), header)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return hub.ClientCount(DashboardChannel) == 1
	}, time.Second, 10*time.Millisecond)

	conn.Close()
	assert.Eventually(t, func() bool {
		return hub.ClientCount(DashboardChannel) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServeDashboardRejects(t *testing.T) {
	_, _, srv := newTestServer(t)

	tests := []struct {
		name  string
		token string
	}{
		{"missing token", ""},
		{"invalid token", "garbage"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, tt.token), nil)
			require.Error(t, err)
			require.NotNil(t, resp)
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		})
	}
}

func TestCheckOrigin(t *testing.T) {
	h := NewHandler(NewHub(nil), auth.NewVerifier("s"), []string{"https://app.example.com"}, nil)
	defer h.hub.Close()

	allowed := httptest.NewRequest(http.MethodGet, "/ws/dashboard", nil)
	allowed.Header.Set("Origin", "https://app.example.com")
	assert.True(t, h.upgrader.CheckOrigin(allowed))

	denied := httptest.NewRequest(http.MethodGet, "/ws/dashboard", nil)
	denied.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, h.upgrader.CheckOrigin(denied))
}
