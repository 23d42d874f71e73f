package model

import (
	"encoding/json"

	problemmodel "bitbattle/internal/problem/model"
	submissionmodel "bitbattle/internal/submission/model"
)

// Frame kinds exchanged over battle sockets.
const (
	EventUserJoined       = "user_joined"
	EventUserLeft         = "user_left"
	EventCodeChange       = "code_change"
	EventPlayerCount      = "player_count"
	EventProblemAssigned  = "problem_assigned"
	EventGameStart        = "game_start"
	EventSubmissionResult = "submission_result"
	EventGameOver         = "game_over"
	EventRoomFull         = "room_full"
	EventSpectateInit     = "spectate_init"
	EventSpectatorCount   = "spectator_count"
	EventError            = "error"
)

// Event is the outbound frame envelope.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Critical reports whether the frame must never be dropped; a socket that
// cannot queue it is closed instead.
func (e Event) Critical() bool {
	switch e.Type {
	case EventProblemAssigned, EventGameStart, EventSubmissionResult, EventGameOver:
		return true
	default:
		return false
	}
}

// ClientFrame is the inbound frame envelope.
type ClientFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// UserJoined announces a participant; Timestamp is Unix seconds.
type UserJoined struct {
	Username  string `json:"username"`
	Timestamp int64  `json:"timestamp"`
}

type UserLeft struct {
	Username string `json:"username"`
}

// CodeChange is both the inbound edit notification and the relayed frame.
// Timestamp is the sender's clock, passed through untouched.
type CodeChange struct {
	Username  string `json:"username"`
	Code      string `json:"code"`
	Timestamp int64  `json:"timestamp"`
}

type PlayerCount struct {
	Current  int `json:"current"`
	Required int `json:"required"`
}

type ProblemAssigned struct {
	Problem problemmodel.ClientView `json:"problem"`
}

type SubmissionResultPayload struct {
	Result submissionmodel.SubmissionResult `json:"result"`
}

// GameOver closes a battle. Winner is null when the room was abandoned.
type GameOver struct {
	Winner        *string                 `json:"winner"`
	SolveTimeMs   int64                   `json:"solve_time_ms"`
	ProblemID     string                  `json:"problem_id"`
	Difficulty    string                  `json:"difficulty"`
	GameMode      GameMode                `json:"game_mode"`
	RatingChanges map[string]RatingChange `json:"rating_changes"`
	Players       []string                `json:"players"`
}

type RoomFull struct {
	Message  string `json:"message"`
	Current  int    `json:"current"`
	Required int    `json:"required"`
}

// SpectateProblem is the reduced problem view sent to spectators; they do
// not receive starter code.
type SpectateProblem struct {
	ID          string                  `json:"id"`
	Title       string                  `json:"title"`
	Description string                  `json:"description"`
	Difficulty  problemmodel.Difficulty `json:"difficulty"`
	Examples    []problemmodel.TestCase `json:"examples"`
}

// SpectateInit is the snapshot sent once when a spectator connects.
type SpectateInit struct {
	RoomID         string            `json:"room_id"`
	Players        []string          `json:"players"`
	GameMode       GameMode          `json:"game_mode"`
	GameStarted    bool              `json:"game_started"`
	GameEnded      bool              `json:"game_ended"`
	Winner         *string           `json:"winner"`
	Problem        *SpectateProblem  `json:"problem"`
	PlayerCodes    map[string]string `json:"player_codes"`
	SpectatorCount int               `json:"spectator_count"`
}

type SpectatorCount struct {
	Count int `json:"count"`
}

// ErrorPayload is sent for protocol and admission errors; the socket stays
// open for protocol errors and is closed after admission ones.
type ErrorPayload struct {
	Message string `json:"message"`
	Code    int    `json:"code,omitempty"`
}

// LiveProblem is the minimal problem reference on a live-rooms row.
type LiveProblem struct {
	Title      string                  `json:"title"`
	Difficulty problemmodel.Difficulty `json:"difficulty"`
}

// LiveGame is one row of the public live-rooms listing.
type LiveGame struct {
	RoomID         string       `json:"room_id"`
	Players        []string     `json:"players"`
	PlayerCount    int          `json:"player_count"`
	SpectatorCount int          `json:"spectator_count"`
	GameMode       GameMode     `json:"game_mode"`
	Problem        *LiveProblem `json:"problem"`
	GameEnded      bool         `json:"game_ended"`
	ElapsedSeconds int64        `json:"elapsed_seconds"`
}

// LiveGames is the /rooms/live response body.
type LiveGames struct {
	LiveGames []LiveGame `json:"live_games"`
	Total     int        `json:"total"`
}
