// Package model defines accounts, refresh tokens and the aggregated player
// statistics served by the profile and leaderboard endpoints.
package model

import "time"

// User is a registered account. Guests never get a row here; they exist
// only inside rooms under a generated display name.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// RefreshToken is one issued refresh token. TokenID is the jti claim of the
// signed JWT; the token itself is never stored. A non-nil RevokedAt means
// the token was rotated or logged out.
type RefreshToken struct {
	ID        string
	UserID    string
	TokenID   string
	ExpiresAt time.Time
	CreatedAt time.Time
	RevokedAt *time.Time
	UserAgent *string
	IPAddress *string
}

// Revoked reports whether the token has been invalidated.
func (t *RefreshToken) Revoked() bool {
	return t.RevokedAt != nil
}

// UserStats is the per-user rollup row updated after every finished game.
type UserStats struct {
	UserID           string
	GamesPlayed      int
	GamesWon         int
	GamesLost        int
	ProblemsSolved   int
	TotalSubmissions int
	FastestSolveMs   *int64
	CurrentStreak    int
	LongestStreak    int
	LastPlayedAt     *time.Time

	Easy   DifficultyStats
	Medium DifficultyStats
	Hard   DifficultyStats
}

// DifficultyStats holds one difficulty's ranked ladder numbers.
type DifficultyStats struct {
	Rating      int `json:"rating"`
	PeakRating  int `json:"peak_rating"`
	RankedGames int `json:"ranked_games"`
	RankedWins  int `json:"ranked_wins"`
}

// Profile is the public view of a player served by GET /users/:username.
type Profile struct {
	Username string       `json:"username"`
	JoinedAt time.Time    `json:"joined_at"`
	Stats    ProfileStats `json:"stats"`
}

// ProfileStats is the stats block of a profile. Win rates are derived, not
// stored.
type ProfileStats struct {
	GamesPlayed      int           `json:"games_played"`
	GamesWon         int           `json:"games_won"`
	GamesLost        int           `json:"games_lost"`
	WinRate          float64       `json:"win_rate"`
	ProblemsSolved   int           `json:"problems_solved"`
	TotalSubmissions int           `json:"total_submissions"`
	FastestSolveMs   *int64        `json:"fastest_solve_ms"`
	CurrentStreak    int           `json:"current_streak"`
	LongestStreak    int           `json:"longest_streak"`
	Ratings          RatingProfile `json:"ratings"`
}

// RatingProfile breaks the ranked ladder down per difficulty.
type RatingProfile struct {
	Easy   RatingSummary `json:"easy"`
	Medium RatingSummary `json:"medium"`
	Hard   RatingSummary `json:"hard"`
}

// RatingSummary is one difficulty's ladder standing. Rank is 1-based and
// zero when the player has not played ranked games at that difficulty.
type RatingSummary struct {
	Rating      int     `json:"rating"`
	PeakRating  int     `json:"peak_rating"`
	RankedGames int     `json:"ranked_games"`
	RankedWins  int     `json:"ranked_wins"`
	WinRate     float64 `json:"win_rate"`
	Rank        int64   `json:"rank,omitempty"`
}

// GameRecord is one entry of a player's match history.
type GameRecord struct {
	RoomID       string    `json:"room_id"`
	ProblemID    string    `json:"problem_id"`
	Placement    int       `json:"placement"`
	TotalPlayers int       `json:"total_players"`
	SolveTimeMs  *int64    `json:"solve_time_ms"`
	PassedTests  int       `json:"passed_tests"`
	TotalTests   int       `json:"total_tests"`
	Language     string    `json:"language"`
	GameMode     string    `json:"game_mode"`
	Difficulty   string    `json:"difficulty"`
	RatingChange int       `json:"rating_change"`
	PlayedAt     time.Time `json:"played_at"`
}

// LeaderboardEntry is one row of the public leaderboard.
type LeaderboardEntry struct {
	Rank           int    `json:"rank"`
	Username       string `json:"username"`
	Rating         int    `json:"rating"`
	RankedGames    int    `json:"ranked_games"`
	RankedWins     int    `json:"ranked_wins"`
	GamesPlayed    int    `json:"games_played"`
	GamesWon       int    `json:"games_won"`
	ProblemsSolved int    `json:"problems_solved"`
	FastestSolveMs *int64 `json:"fastest_solve_ms"`
	LongestStreak  int    `json:"longest_streak"`
}

// LeaderboardSort selects the leaderboard ordering.
type LeaderboardSort string

const (
	SortByRating         LeaderboardSort = "rating"
	SortByWins           LeaderboardSort = "wins"
	SortByProblemsSolved LeaderboardSort = "problems_solved"
	SortByFastestSolve   LeaderboardSort = "fastest_solve"
	SortByStreak         LeaderboardSort = "streak"
)

// ParseLeaderboardSort maps a query value onto a sort key. The empty string
// defaults to rating.
func ParseLeaderboardSort(s string) (LeaderboardSort, bool) {
	switch LeaderboardSort(s) {
	case SortByRating, "":
		return SortByRating, true
	case SortByWins:
		return SortByWins, true
	case SortByProblemsSolved:
		return SortByProblemsSolved, true
	case SortByFastestSolve:
		return SortByFastestSolve, true
	case SortByStreak:
		return SortByStreak, true
	default:
		return "", false
	}
}
