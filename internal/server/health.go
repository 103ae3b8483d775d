package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

type healthResponse struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
	OnlineUsers int    `json:"onlineUsers"`
}

type statsResponse struct {
	Connections   int      `json:"connections"`
	OnlineUsers   int      `json:"onlineUsers"`
	OnlineAdmins  int      `json:"onlineAdmins"`
	OnlineUserIDs []string `json:"onlineUserIds"`
}

// healthHandler reports liveness and load for external monitoring. Read-only;
// no presence or room state is touched. The connections field counts active
// connections only, not sessions still mid-handshake.
func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:      "ok",
		Connections: len(a.stateManager.ActiveConnections()),
		OnlineUsers: len(a.stateManager.OnlineUserIDs()),
	}
	a.writeJSON(w, resp)
}

// statsHandler enumerates online users for dashboards. Unlike /health, the
// connections field here is every live session including those still
// handshaking, which is the number the connection limiter caps.
func (a *App) statsHandler(w http.ResponseWriter, r *http.Request) {
	onlineIDs := a.stateManager.OnlineUserIDs()
	resp := statsResponse{
		Connections:   a.stateManager.ConnectionCount(),
		OnlineUsers:   len(onlineIDs),
		OnlineAdmins:  a.stateManager.OnlineAdminCount(),
		OnlineUserIDs: onlineIDs,
	}
	a.writeJSON(w, resp)
}

func (a *App) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Error("Failed to write response", slog.Any("error", err))
	}
}
