package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/klauspost/compress/gzip"
	"github.com/svarog-dev/warden/internal/auth"
	"github.com/svarog-dev/warden/internal/domain"
)

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// parseLimit parses and validates a limit parameter with default and max values
func parseLimit(r *http.Request, defaultLimit, maxLimit int) int {
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= maxLimit {
			return parsed
		}
	}
	return defaultLimit
}

// handleHealth is the liveness check
func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"servers": len(r.serversSnapshot()),
	})
}

// handleGetServers returns the tracked server list with live state
func (r *Router) handleGetServers(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, r.serversSnapshot())
}

// handleGetServerPlayers returns the stored roster snapshot for a server
func (r *Router) handleGetServerPlayers(w http.ResponseWriter, req *http.Request) {
	tag := req.PathValue("tag")

	var players []domain.PlayerSnapshot
	var found bool
	r.manager.Call(func() {
		if r.monitor.Server(tag) != nil {
			found = true
			players = r.monitor.Roster(tag)
		}
	})
	if !found {
		writeError(w, http.StatusNotFound, "server not found")
		return
	}
	if players == nil {
		players = []domain.PlayerSnapshot{}
	}
	writeJSON(w, http.StatusOK, players)
}

// handleGetAudit returns recent moderation audit records
func (r *Router) handleGetAudit(w http.ResponseWriter, req *http.Request) {
	limit := parseLimit(req, 50, 500)
	records, err := r.store.ListActions(req.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if records == nil {
		records = []domain.ActionRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

// handleExportAudit streams the full recent audit trail as gzipped JSON
func (r *Router) handleExportAudit(w http.ResponseWriter, req *http.Request) {
	records, err := r.store.ListActions(req.Context(), 10000)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Encoding", "gzip")
	w.Header().Set("Content-Disposition", `attachment; filename="audit-export.json.gz"`)

	gz := gzip.NewWriter(w)
	defer gz.Close()
	json.NewEncoder(gz).Encode(records)
}

// AdminRequest is the request body for admin registry updates
type AdminRequest struct {
	GroupID int64  `json:"group_id"`
	Name    string `json:"name"`
	Level   int    `json:"level"`
}

// handleSetAdmin creates, updates or removes an admin entry; level 0
// removes it. The registry feeds the coordinator's admin exemption.
func (r *Router) handleSetAdmin(w http.ResponseWriter, req *http.Request) {
	var body AdminRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.GroupID == 0 || body.Name == "" {
		writeError(w, http.StatusBadRequest, "group_id and name are required")
		return
	}

	if err := r.store.SetAdmin(req.Context(), body.GroupID, body.Name, body.Level); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "ok"})
}

// handleDeleteServer stops tracking a server and drops its stored config
func (r *Router) handleDeleteServer(w http.ResponseWriter, req *http.Request) {
	tag := req.PathValue("tag")

	if err := r.store.DeleteServerConfig(req.Context(), tag); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	r.manager.Call(func() {
		r.monitor.RemoveServer(tag)
	})
	writeJSON(w, http.StatusOK, map[string]string{"message": "ok"})
}

// LoginRequest is the request body for login
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse is the response body for successful login
type LoginResponse struct {
	Token    string `json:"token"`
	Username string `json:"username"`
}

// handleLogin authenticates the configured operator and returns a JWT token
func (r *Router) handleLogin(w http.ResponseWriter, req *http.Request) {
	var login LoginRequest
	if err := json.NewDecoder(req.Body).Decode(&login); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if login.Username == "" || login.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	if login.Username != r.cfg.Auth.AdminUser || !auth.CheckPassword(login.Password, r.cfg.Auth.AdminPasswordHash) {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := r.auth.GenerateToken(login.Username)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{Token: token, Username: login.Username})
}

func (r *Router) serversSnapshot() []domain.TrackedServer {
	var servers []domain.TrackedServer
	r.manager.Call(func() {
		servers = r.monitor.Servers()
	})
	if servers == nil {
		servers = []domain.TrackedServer{}
	}
	return servers
}
