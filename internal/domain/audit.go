package domain

import "time"

// ActionRecord is the persisted audit trail entry for one administrative
// action, written on every terminal outcome whether it succeeded or not.
type ActionRecord struct {
	ID         string    `json:"id"`
	Action     TaskKind  `json:"action"`
	PlayerName string    `json:"player_name,omitempty"`
	PersonaID  string    `json:"persona_id,omitempty"`
	ServerTag  string    `json:"server_tag"`
	GroupID    int64     `json:"group_id"`
	Reason     string    `json:"reason,omitempty"`
	Admin      string    `json:"admin,omitempty"`
	Success    bool      `json:"success"`
	Result     string    `json:"result,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
