// Package repository persists finished battles: one game_results row per
// participant plus the user_stats rollups that the profile and leaderboard
// endpoints read.
package repository

import (
	"context"
	"fmt"
	"strings"

	"bitbattle/internal/common/db"
)

// GameResult is one participant's durable slice of a finished game.
type GameResult struct {
	RoomID       string
	ProblemID    string
	UserID       string // empty for guests, stored as NULL
	Placement    int
	TotalPlayers int
	SolveTimeMs  *int64 // winner only
	PassedTests  int
	TotalTests   int
	Language     string
	GameMode     string
	Difficulty   string
	RatingChange int
}

// GameRepository writes game outcomes. Every method takes the enclosing
// transaction so one game's rows and stat updates commit as a group.
type GameRepository interface {
	InsertResult(ctx context.Context, tx db.Transaction, row GameResult) error
	Rating(ctx context.Context, tx db.Transaction, userID, difficulty string) (int, error)
	ApplyGameStats(ctx context.Context, tx db.Transaction, userID string, won bool, solveTimeMs *int64) error
	ApplyRankedResult(ctx context.Context, tx db.Transaction, userID, difficulty string, ratingChange int, won bool) error
}

type SQLGameRepository struct {
	db db.Database
}

func NewGameRepository(database db.Database) *SQLGameRepository {
	return &SQLGameRepository{db: database}
}

func (r *SQLGameRepository) InsertResult(ctx context.Context, tx db.Transaction, row GameResult) error {
	var userID interface{}
	if row.UserID != "" {
		userID = row.UserID
	}
	var solveTime interface{}
	if row.SolveTimeMs != nil {
		solveTime = *row.SolveTimeMs
	}

	query := `
		INSERT INTO game_results
		(room_id, problem_id, user_id, placement, total_players, solve_time_ms,
		 passed_tests, total_tests, language, game_mode, difficulty, rating_change)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err := db.GetQuerier(r.db, tx).Exec(ctx, query,
		row.RoomID, row.ProblemID, userID, row.Placement, row.TotalPlayers,
		solveTime, row.PassedTests, row.TotalTests, row.Language,
		row.GameMode, row.Difficulty, row.RatingChange)
	return err
}

func (r *SQLGameRepository) Rating(ctx context.Context, tx db.Transaction, userID, difficulty string) (int, error) {
	query := fmt.Sprintf("SELECT %s_rating FROM user_stats WHERE user_id = $1", RatingBucket(difficulty))
	row := db.GetQuerier(r.db, tx).QueryRow(ctx, query, userID)
	var rating int
	if err := row.Scan(&rating); err != nil {
		return 0, err
	}
	return rating, nil
}

// ApplyGameStats rolls one finished game into the overall counters. A win
// extends the win streak; any other result resets it.
func (r *SQLGameRepository) ApplyGameStats(ctx context.Context, tx db.Transaction, userID string, won bool, solveTimeMs *int64) error {
	var solveTime interface{}
	if solveTimeMs != nil {
		solveTime = *solveTimeMs
	}

	query := `
		UPDATE user_stats SET
			games_played = games_played + 1,
			games_won = games_won + CASE WHEN $2 THEN 1 ELSE 0 END,
			games_lost = games_lost + CASE WHEN NOT $2 THEN 1 ELSE 0 END,
			problems_solved = problems_solved + CASE WHEN $2 THEN 1 ELSE 0 END,
			total_submissions = total_submissions + 1,
			fastest_solve_ms = CASE
				WHEN $3::BIGINT IS NOT NULL AND (fastest_solve_ms IS NULL OR $3 < fastest_solve_ms)
				THEN $3 ELSE fastest_solve_ms END,
			current_streak = CASE WHEN $2 THEN current_streak + 1 ELSE 0 END,
			longest_streak = CASE WHEN $2 THEN GREATEST(longest_streak, current_streak + 1) ELSE longest_streak END,
			last_played_at = NOW(),
			updated_at = NOW()
		WHERE user_id = $1`
	_, err := db.GetQuerier(r.db, tx).Exec(ctx, query, userID, won, solveTime)
	return err
}

// ApplyRankedResult moves one difficulty's rating bucket. Stored ratings
// never drop below the floor and the peak only ever rises.
func (r *SQLGameRepository) ApplyRankedResult(ctx context.Context, tx db.Transaction, userID, difficulty string, ratingChange int, won bool) error {
	bucket := RatingBucket(difficulty)
	query := fmt.Sprintf(`
		UPDATE user_stats SET
			%[1]s_rating = GREATEST(100, %[1]s_rating + $2),
			%[1]s_peak_rating = GREATEST(%[1]s_peak_rating, GREATEST(100, %[1]s_rating + $2)),
			%[1]s_ranked_games = %[1]s_ranked_games + 1,
			%[1]s_ranked_wins = %[1]s_ranked_wins + $3,
			updated_at = NOW()
		WHERE user_id = $1`, bucket)

	wins := 0
	if won {
		wins = 1
	}
	_, err := db.GetQuerier(r.db, tx).Exec(ctx, query, userID, ratingChange, wins)
	return err
}

// RatingBucket maps a difficulty onto its user_stats column prefix. The
// prefix is interpolated into SQL, so anything outside the known set falls
// back to medium.
func RatingBucket(difficulty string) string {
	switch strings.ToLower(difficulty) {
	case "easy":
		return "easy"
	case "hard":
		return "hard"
	default:
		return "medium"
	}
}
