// Package model defines the battle room wire frames and the game outcome
// contract between the room manager and the scoring service.
package model

import "strings"

// GameMode selects whether a battle affects ratings.
type GameMode string

const (
	ModeCasual GameMode = "casual"
	ModeRanked GameMode = "ranked"
)

// ParseGameMode normalizes user input to a known mode.
func ParseGameMode(raw string) (GameMode, bool) {
	switch GameMode(strings.ToLower(strings.TrimSpace(raw))) {
	case ModeCasual, "":
		return ModeCasual, true
	case ModeRanked:
		return ModeRanked, true
	default:
		return "", false
	}
}

// RatingChange is the per-player rating delta carried in game_over frames
// and recorded on game result rows.
type RatingChange struct {
	OldRating int `json:"old_rating"`
	NewRating int `json:"new_rating"`
	Change    int `json:"change"`
}

// PlayerOutcome is one participant's slice of a finished game, in
// placement order (1 = winner).
type PlayerOutcome struct {
	Username    string
	UserID      string // empty for guests
	Placement   int
	PassedTests int
	TotalTests  int
	Language    string
}

// GameOutcome is what the room manager hands to scoring when a game ends
// with a winner.
type GameOutcome struct {
	RoomID      string
	ProblemID   string
	Difficulty  string
	Mode        GameMode
	SolveTimeMs int64
	// Players is in placement order; Players[0] is the winner.
	Players []PlayerOutcome
}
