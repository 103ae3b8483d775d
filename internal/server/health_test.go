package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/riaz37/groupbuy-realtime/pkg/config"
	"github.com/riaz37/groupbuy-realtime/pkg/state"
)

type mockSender struct {
	id   uuid.UUID
	mu   sync.Mutex
	sent [][]byte
}

func newMockSender() *mockSender { return &mockSender{id: uuid.New()} }

func (m *mockSender) ID() uuid.UUID { return m.id }

func (m *mockSender) Send(msg []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
}

func (m *mockSender) Close(err error) {}

func newTestApp() *App {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError + 1})
	return NewApp(slog.New(handler), context.Background(), &config.Config{})
}

func TestHealthCountsActiveConnectionsOnly(t *testing.T) {
	app := newTestApp()

	// One fully established session.
	active := newMockSender()
	app.stateManager.RegisterConnection(active, "1.1.1.1")
	app.stateManager.BindUser(active.ID(), "u1", state.RoleUser)
	app.stateManager.Activate(active.ID())

	// One session still mid-handshake.
	connecting := newMockSender()
	app.stateManager.RegisterConnection(connecting, "2.2.2.2")

	rec := httptest.NewRecorder()
	app.healthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var resp healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode health response: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("Expected status ok, got %q", resp.Status)
	}
	if resp.Connections != 1 {
		t.Errorf("Expected 1 active connection, got %d", resp.Connections)
	}
	if resp.OnlineUsers != 1 {
		t.Errorf("Expected 1 online user, got %d", resp.OnlineUsers)
	}
}

func TestStatsReportsTotalsAndAdmins(t *testing.T) {
	app := newTestApp()

	admin := newMockSender()
	app.stateManager.RegisterConnection(admin, "1.1.1.1")
	app.stateManager.BindUser(admin.ID(), "a1", state.RoleAdmin)
	app.stateManager.Activate(admin.ID())

	connecting := newMockSender()
	app.stateManager.RegisterConnection(connecting, "2.2.2.2")

	rec := httptest.NewRecorder()
	app.statsHandler(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))

	var resp statsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode stats response: %v", err)
	}
	if resp.Connections != 2 {
		t.Errorf("Expected 2 live connections, got %d", resp.Connections)
	}
	if resp.OnlineUsers != 1 {
		t.Errorf("Expected 1 online user, got %d", resp.OnlineUsers)
	}
	if resp.OnlineAdmins != 1 {
		t.Errorf("Expected 1 online admin, got %d", resp.OnlineAdmins)
	}
	if len(resp.OnlineUserIDs) != 1 || resp.OnlineUserIDs[0] != "a1" {
		t.Errorf("Expected online user ids [a1], got %v", resp.OnlineUserIDs)
	}
}
