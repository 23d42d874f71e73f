// Package model defines the matchmaking queue entries and the HTTP
// payloads of the matchmaking endpoints.
package model

import (
	"time"

	problemmodel "bitbattle/internal/problem/model"
	roommodel "bitbattle/internal/room/model"
)

// Entry is one waiting player, keyed by connection id. Re-joining under
// the same connection id replaces the entry.
type Entry struct {
	ConnectionID string
	Username     string
	UserID       string // empty for guests
	Rating       int
	Difficulty   problemmodel.Difficulty
	Mode         roommodel.GameMode
	QueuedAt     time.Time
}

// Match is a produced pairing, kept in the recent-match ring for
// diagnostics.
type Match struct {
	ID         string
	RoomCode   string
	Players    [2]Entry
	Difficulty problemmodel.Difficulty
	Mode       roommodel.GameMode
	CreatedAt  time.Time
}

// MatchInfo is the per-side notification payload.
type MatchInfo struct {
	RoomCode   string `json:"room_code"`
	Opponent   string `json:"opponent"`
	Difficulty string `json:"difficulty"`
	GameMode   string `json:"game_mode"`
}

// JoinRequest is the body of POST /matchmaking/join.
type JoinRequest struct {
	Username     string `json:"username"`
	Difficulty   string `json:"difficulty"`
	GameMode     string `json:"game_mode"`
	ConnectionID string `json:"connection_id"`
}

// JoinResponse reports the queue state right after joining.
type JoinResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	QueueSize int    `json:"queue_size"`
}

// LeaveRequest is the body of POST /matchmaking/leave.
type LeaveRequest struct {
	ConnectionID string `json:"connection_id"`
}

// LeaveResponse reports whether the entry existed.
type LeaveResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// StatusResponse answers GET /matchmaking/status. Position is zero-based
// within the oldest-first queue and null when not queued. MatchFound is
// delivered exactly once per matched side.
type StatusResponse struct {
	InQueue    bool       `json:"in_queue"`
	Position   *int       `json:"position"`
	QueueSize  int        `json:"queue_size"`
	MatchFound bool       `json:"match_found"`
	MatchInfo  *MatchInfo `json:"match_info,omitempty"`
}
