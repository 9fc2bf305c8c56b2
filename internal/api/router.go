package api

import (
	"net/http"

	"github.com/svarog-dev/warden/internal/auth"
	"github.com/svarog-dev/warden/internal/bus"
	"github.com/svarog-dev/warden/internal/config"
	"github.com/svarog-dev/warden/internal/coordinator"
	"github.com/svarog-dev/warden/internal/monitor"
	"github.com/svarog-dev/warden/internal/storage"
)

// Router holds the HTTP routes and dependencies
type Router struct {
	mux     *http.ServeMux
	cfg     *config.Config
	store   *storage.Store
	manager *monitor.Manager
	monitor *monitor.Monitor
	coord   *coordinator.Coordinator
	wsHub   *WebSocketHub
	auth    *auth.Service
	relayIn func(actor, text string)
}

// NewRouter creates a new HTTP router. relayIn feeds inbound chat text onto
// the scheduler goroutine for bridges that speak HTTP instead of the bus.
func NewRouter(cfg *config.Config, store *storage.Store, manager *monitor.Manager, mon *monitor.Monitor, coord *coordinator.Coordinator, authService *auth.Service, eventBus *bus.Bus, relayIn func(actor, text string)) *Router {
	r := &Router{
		mux:     http.NewServeMux(),
		cfg:     cfg,
		store:   store,
		manager: manager,
		monitor: mon,
		coord:   coord,
		wsHub:   NewWebSocketHub(eventBus),
		auth:    authService,
		relayIn: relayIn,
	}

	// Automation surface (shared-secret token in the request body)
	r.mux.HandleFunc("POST /ban/player", r.handleBanPlayer)
	r.mux.HandleFunc("POST /kick/player", r.handleKickPlayer)
	r.mux.HandleFunc("POST /chat/inbound", r.handleChatInbound)
	r.mux.HandleFunc("POST /warm/server", r.handleWarmServer)
	r.mux.HandleFunc("POST /warm/player", r.handleWarmPlayer)

	// Read API
	r.mux.HandleFunc("GET /api/servers", r.handleGetServers)
	r.mux.HandleFunc("GET /api/servers/{tag}/players", r.handleGetServerPlayers)
	r.mux.HandleFunc("GET /api/audit", r.requireAuth(r.handleGetAudit))
	r.mux.HandleFunc("GET /api/audit/export", r.requireAuth(r.handleExportAudit))

	// Management API
	r.mux.HandleFunc("POST /api/admins", r.requireAuth(r.handleSetAdmin))
	r.mux.HandleFunc("DELETE /api/servers/{tag}", r.requireAuth(r.handleDeleteServer))

	// Auth routes
	r.mux.HandleFunc("POST /api/auth/login", r.handleLogin)

	// WebSocket event stream
	r.mux.HandleFunc("GET /ws", r.handleWebSocket)

	// Health check
	r.mux.HandleFunc("GET /health", r.handleHealth)

	return r
}

// ServeHTTP implements http.Handler
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

	if req.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}

	r.mux.ServeHTTP(w, req)
}

// StartWebSocketHub starts broadcasting bus events to WebSocket clients
func (r *Router) StartWebSocketHub() error {
	go r.wsHub.Run()
	return r.wsHub.SubscribeBus()
}
