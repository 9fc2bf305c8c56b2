package domain

import "time"

// Team identifiers as reported by the roster API
const (
	TeamOne       = 1
	TeamTwo       = 2
	TeamSpectator = 0
)

// PlayerSnapshot is one player's presence on a server at poll time. Snapshots
// are ephemeral: the reconciler keeps exactly one list per server (the most
// recent successful poll) and replaces it wholesale every pass.
type PlayerSnapshot struct {
	Name      string    `json:"name"`
	PersonaID string    `json:"persona_id,omitempty"`
	Team      int       `json:"team"`
	JoinTime  time.Time `json:"join_time,omitempty"`
	IsBot     bool      `json:"is_bot"`
	IsWarmed  bool      `json:"is_warmed,omitempty"`
}

// Key returns the stable identity used for roster diffing. Bots frequently
// have no persona id, so the display name is the fallback.
func (p PlayerSnapshot) Key() string {
	if p.PersonaID != "" {
		return p.PersonaID
	}
	return p.Name
}

// Roster is the full player listing for one server as returned by the
// roster API, partitioned the way the API reports it.
type Roster struct {
	Soldiers   []PlayerSnapshot `json:"soldiers"`
	Queue      []PlayerSnapshot `json:"queue"`
	Spectators []PlayerSnapshot `json:"spectators"`
	// HasSpectators marks whether the spectator list was actually fetched
	// this pass; when false the reconciler reuses its cached spectators.
	HasSpectators bool `json:"has_spectators"`
}

// RosterDelta is the join/leave difference between two reconciliation passes
type RosterDelta struct {
	Joined []PlayerSnapshot `json:"joined"`
	Left   []PlayerSnapshot `json:"left"`
}

// PersonaStats carries the optional derived fields attached to moderation
// reports. Fetched best-effort from the stats API; any field may be missing.
type PersonaStats struct {
	Level         int     `json:"level"`
	KDRatio       float64 `json:"kd_ratio"`
	PlayedMinutes int     `json:"played_minutes"`
}
