package domain

import "time"

// Event types published on the bus and broadcast to WebSocket clients
const (
	EventServerClosed = "server_closed"
	EventMapRotated   = "map_rotated"
	EventPlayerJoined = "player_joined"
	EventPlayerLeft   = "player_left"
	EventRelayOutcome = "relay_outcome"
	EventGroupNotice  = "group_notice"
	EventChatOutbound = "chat_outbound"
	EventChatInbound  = "chat_inbound"
)

// Event is the envelope for all published events. Data is always one of the
// typed payload structs below, never a free-form map.
type Event struct {
	Type      string      `json:"event"`
	ServerTag string      `json:"server_tag,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// ServerClosedEvent is sent once when polling confirms a server is gone
type ServerClosedEvent struct {
	Server TrackedServer `json:"server"`
}

// MapRotatedEvent is sent when a server advances its map rotation
type MapRotatedEvent struct {
	PreviousMap string `json:"previous_map"`
	CurrentMap  string `json:"current_map"`
	NewIndex    int    `json:"new_index"`
}

// PlayerJoinedEvent is sent per joining player found by reconciliation
type PlayerJoinedEvent struct {
	Player PlayerSnapshot `json:"player"`
}

// PlayerLeftEvent is sent per leaving player found by reconciliation
type PlayerLeftEvent struct {
	Player PlayerSnapshot `json:"player"`
}

// RelayOutcomeEvent is sent when a relay task reaches a terminal state
type RelayOutcomeEvent struct {
	Kind    TaskKind `json:"kind"`
	Command string   `json:"command"`
	Actor   Actor    `json:"actor"`
	Success bool     `json:"success"`
	Reason  string   `json:"reason,omitempty"`
}

// GroupNoticeEvent is a human-readable report destined for a chat group
type GroupNoticeEvent struct {
	GroupID int64  `json:"group_id"`
	Text    string `json:"text"`
}

// ChatMessageEvent carries raw chat text to or from an external actor
type ChatMessageEvent struct {
	Actor Actor  `json:"actor"`
	Text  string `json:"text"`
}
