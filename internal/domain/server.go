package domain

import "time"

// Actor identifies one of the two external automated accounts that execute
// privileged server actions when asked over chat.
type Actor string

const (
	ActorRunRun Actor = "RunRun"
	ActorTVBot  Actor = "TVBot"
)

// ServerConfig is the static configuration for a tracked server
type ServerConfig struct {
	Tag         string `yaml:"tag" json:"tag"`
	ExternalID  string `yaml:"external_id" json:"external_id"`
	DisplayName string `yaml:"display_name" json:"display_name"`
	GroupID     int64  `yaml:"group_id" json:"group_id"`
	GameID      string `yaml:"game_id" json:"game_id"`
	IsTV        bool   `yaml:"is_tv" json:"is_tv"`
	Actor       Actor  `yaml:"actor" json:"actor"`
}

// BotActor returns the account responsible for this server, defaulting to
// RunRun when the config leaves it unset.
func (c ServerConfig) BotActor() Actor {
	if c.Actor != "" {
		return c.Actor
	}
	if c.IsTV {
		return ActorTVBot
	}
	return ActorRunRun
}

// TrackedServer carries the live state of a monitored server. It is created
// from a ServerConfig, mutated on every monitor tick, and removed when polling
// confirms the server is gone.
type TrackedServer struct {
	Tag              string    `json:"tag"`
	ExternalID       string    `json:"external_id"`
	DisplayName      string    `json:"display_name"`
	GroupID          int64     `json:"group_id"`
	GameID           string    `json:"game_id"`
	IsTV             bool      `json:"is_tv"`
	Actor            Actor     `json:"actor"`
	MapName          string    `json:"map_name"`
	MapRotationIndex int       `json:"map_rotation_index"`
	SoldierCount     int       `json:"soldier_count"`
	SpectatorCount   int       `json:"spectator_count"`
	QueueCount       int       `json:"queue_count"`
	LastSeenAt       time.Time `json:"last_seen_at"`
}

// Config reconstructs the static configuration for a tracked server.
func (s *TrackedServer) Config() ServerConfig {
	return ServerConfig{
		Tag:         s.Tag,
		ExternalID:  s.ExternalID,
		DisplayName: s.DisplayName,
		GroupID:     s.GroupID,
		GameID:      s.GameID,
		IsTV:        s.IsTV,
		Actor:       s.Actor,
	}
}

// SlotCounts is the per-role occupancy reported by the status API
type SlotCounts struct {
	Soldier   int `json:"soldier"`
	Spectator int `json:"spectator"`
	Queue     int `json:"queue"`
}

// ServerDetail is one poll result from the status API
type ServerDetail struct {
	MapName          string     `json:"map_name"`
	MapRotationIndex int        `json:"map_rotation_index"`
	Slots            SlotCounts `json:"slots"`
}
