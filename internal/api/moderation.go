package api

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"time"
	"unicode/utf8"

	"github.com/svarog-dev/warden/internal/coordinator"
)

// maxReasonLength bounds the free-text reason forwarded to the external
// actors; their commands silently truncate anything longer.
const maxReasonLength = 30

// ModerationRequest is the body of the /ban/player and /kick/player
// automation endpoints. The field names are a fixed external contract.
type ModerationRequest struct {
	PlayerName string `json:"playerName"`
	Reason     string `json:"reason"`
	GroupID    int64  `json:"group_id"`
	Token      string `json:"token"`
}

// handleBanPlayer accepts a ban request from external automation
func (r *Router) handleBanPlayer(w http.ResponseWriter, req *http.Request) {
	r.handleModeration(w, req, r.coord.RequestBan)
}

// handleKickPlayer accepts a kick request from external automation
func (r *Router) handleKickPlayer(w http.ResponseWriter, req *http.Request) {
	r.handleModeration(w, req, r.coord.RequestKick)
}

func (r *Router) handleModeration(w http.ResponseWriter, req *http.Request, action func(coordinator.ActionRequest) string) {
	var body ModerationRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !r.checkToken(body.Token) {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	if body.PlayerName == "" || body.Reason == "" || body.GroupID == 0 {
		writeError(w, http.StatusBadRequest, "playerName, reason and group_id are required")
		return
	}
	if utf8.RuneCountInString(body.Reason) > maxReasonLength {
		writeJSON(w, http.StatusOK, map[string]string{"message": "原因过长，请缩短后重试"})
		return
	}

	var message string
	r.manager.Call(func() {
		message = action(coordinator.ActionRequest{
			Player:  body.PlayerName,
			Reason:  body.Reason,
			GroupID: body.GroupID,
			Admin:   "api",
			Report:  true,
			Manual:  true,
		})
	})
	writeJSON(w, http.StatusOK, map[string]string{"message": message})
}

// ChatInboundRequest carries one raw bot reply from an HTTP chat bridge
type ChatInboundRequest struct {
	Actor string `json:"actor"`
	Text  string `json:"text"`
	Token string `json:"token"`
}

// handleChatInbound feeds a bot reply into the relay classifier
func (r *Router) handleChatInbound(w http.ResponseWriter, req *http.Request) {
	var body ChatInboundRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !r.checkToken(body.Token) {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	if body.Actor == "" || body.Text == "" {
		writeError(w, http.StatusBadRequest, "actor and text are required")
		return
	}

	r.relayIn(body.Actor, body.Text)
	writeJSON(w, http.StatusOK, map[string]string{"message": "ok"})
}

// WarmPlayerRequest grants a player a warm grace period shielding them from
// limiter-triggered moderation. Sent by the same automation that triggers
// the limiters.
type WarmPlayerRequest struct {
	Persona string `json:"persona"`
	Seconds int    `json:"seconds"`
	Token   string `json:"token"`
}

// defaultWarmSeconds is used when the request does not carry a duration.
const defaultWarmSeconds = 600

// handleWarmPlayer records a warm grace period for a persona
func (r *Router) handleWarmPlayer(w http.ResponseWriter, req *http.Request) {
	var body WarmPlayerRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !r.checkToken(body.Token) {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	if body.Persona == "" {
		writeError(w, http.StatusBadRequest, "persona is required")
		return
	}
	seconds := body.Seconds
	if seconds <= 0 {
		seconds = defaultWarmSeconds
	}

	until := time.Now().UTC().Add(time.Duration(seconds) * time.Second)
	if err := r.store.SetWarm(req.Context(), body.Persona, until); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "ok"})
}

// WarmSignalRequest announces that a server entered warm state
type WarmSignalRequest struct {
	Server string `json:"server"`
	Token  string `json:"token"`
}

// handleWarmServer releases warm-deferred actions for a server
func (r *Router) handleWarmServer(w http.ResponseWriter, req *http.Request) {
	var body WarmSignalRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !r.checkToken(body.Token) {
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	if body.Server == "" {
		writeError(w, http.StatusBadRequest, "server is required")
		return
	}

	tag := body.Server
	r.manager.Do(func() {
		r.coord.OnServerWarm(tag)
	})
	writeJSON(w, http.StatusOK, map[string]string{"message": "ok"})
}

// checkToken compares the body token against the configured shared secret.
func (r *Router) checkToken(token string) bool {
	if r.cfg.Auth.APIToken == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(r.cfg.Auth.APIToken)) == 1
}
