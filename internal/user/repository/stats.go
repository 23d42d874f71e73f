package repository

import (
	"context"
	"database/sql"
	"fmt"

	"bitbattle/internal/common/db"
	"bitbattle/internal/user/model"
	pkgrepo "bitbattle/pkg/repository"
)

// StatsRepository reads the aggregated numbers the scoring pipeline writes.
type StatsRepository interface {
	Stats(ctx context.Context, tx db.Transaction, userID string) (*model.UserStats, error)
	History(ctx context.Context, userID string, opts pkgrepo.ListOptions) ([]model.GameRecord, error)
	Leaderboard(ctx context.Context, difficulty string, sortBy model.LeaderboardSort, opts pkgrepo.ListOptions) ([]model.LeaderboardEntry, error)

	// RatingRank returns the 1-based ladder position a rating would hold at
	// the given difficulty. Used as the fallback when the Redis ladder is
	// unavailable.
	RatingRank(ctx context.Context, difficulty string, rating int) (int64, error)
}

type PostgresStatsRepository struct {
	dbProvider db.Provider
}

func NewStatsRepository(provider db.Provider) StatsRepository {
	return &PostgresStatsRepository{dbProvider: provider}
}

const statsColumns = `user_id, games_played, games_won, games_lost, problems_solved, total_submissions,
	fastest_solve_ms, current_streak, longest_streak, last_played_at,
	easy_rating, easy_peak_rating, easy_ranked_games, easy_ranked_wins,
	medium_rating, medium_peak_rating, medium_ranked_games, medium_ranked_wins,
	hard_rating, hard_peak_rating, hard_ranked_games, hard_ranked_wins`

func (r *PostgresStatsRepository) Stats(ctx context.Context, tx db.Transaction, userID string) (*model.UserStats, error) {
	querier, err := db.GetProviderQuerier(r.dbProvider, tx)
	if err != nil {
		return nil, err
	}
	query := "SELECT " + statsColumns + " FROM user_stats WHERE user_id = $1"
	row := querier.QueryRow(ctx, query, userID)

	var stats model.UserStats
	var fastest sql.NullInt64
	var lastPlayed sql.NullTime
	err = row.Scan(
		&stats.UserID,
		&stats.GamesPlayed,
		&stats.GamesWon,
		&stats.GamesLost,
		&stats.ProblemsSolved,
		&stats.TotalSubmissions,
		&fastest,
		&stats.CurrentStreak,
		&stats.LongestStreak,
		&lastPlayed,
		&stats.Easy.Rating,
		&stats.Easy.PeakRating,
		&stats.Easy.RankedGames,
		&stats.Easy.RankedWins,
		&stats.Medium.Rating,
		&stats.Medium.PeakRating,
		&stats.Medium.RankedGames,
		&stats.Medium.RankedWins,
		&stats.Hard.Rating,
		&stats.Hard.PeakRating,
		&stats.Hard.RankedGames,
		&stats.Hard.RankedWins,
	)
	if err != nil {
		if db.IsNoRows(err) {
			return nil, ErrStatsNotFound
		}
		return nil, err
	}
	if fastest.Valid {
		stats.FastestSolveMs = &fastest.Int64
	}
	if lastPlayed.Valid {
		stats.LastPlayedAt = &lastPlayed.Time
	}
	return &stats, nil
}

func (r *PostgresStatsRepository) History(ctx context.Context, userID string, opts pkgrepo.ListOptions) ([]model.GameRecord, error) {
	querier, err := db.GetProviderQuerier(r.dbProvider, nil)
	if err != nil {
		return nil, err
	}
	query := `SELECT room_id, problem_id, placement, total_players, solve_time_ms,
		passed_tests, total_tests, language, game_mode, difficulty, rating_change, created_at
		FROM game_results WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	rows, err := querier.Query(ctx, query, userID, opts.Limit, opts.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]model.GameRecord, 0, opts.Limit)
	for rows.Next() {
		var record model.GameRecord
		var solveTime sql.NullInt64
		err := rows.Scan(
			&record.RoomID,
			&record.ProblemID,
			&record.Placement,
			&record.TotalPlayers,
			&solveTime,
			&record.PassedTests,
			&record.TotalTests,
			&record.Language,
			&record.GameMode,
			&record.Difficulty,
			&record.RatingChange,
			&record.PlayedAt,
		)
		if err != nil {
			return nil, err
		}
		if solveTime.Valid {
			record.SolveTimeMs = &solveTime.Int64
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func (r *PostgresStatsRepository) Leaderboard(ctx context.Context, difficulty string, sortBy model.LeaderboardSort, opts pkgrepo.ListOptions) ([]model.LeaderboardEntry, error) {
	querier, err := db.GetProviderQuerier(r.dbProvider, nil)
	if err != nil {
		return nil, err
	}

	bucket := ratingColumn(difficulty)
	query := fmt.Sprintf(`SELECT u.username,
		s.%[1]s_rating, s.%[1]s_ranked_games, s.%[1]s_ranked_wins,
		s.games_played, s.games_won, s.problems_solved, s.fastest_solve_ms, s.longest_streak
		FROM user_stats s
		JOIN users u ON u.id = s.user_id
		WHERE %[2]s
		ORDER BY %[3]s
		LIMIT $1 OFFSET $2`, bucket, leaderboardFilter(bucket, sortBy), leaderboardOrder(bucket, sortBy))

	rows, err := querier.Query(ctx, query, opts.Limit, opts.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]model.LeaderboardEntry, 0, opts.Limit)
	for rows.Next() {
		var entry model.LeaderboardEntry
		var fastest sql.NullInt64
		err := rows.Scan(
			&entry.Username,
			&entry.Rating,
			&entry.RankedGames,
			&entry.RankedWins,
			&entry.GamesPlayed,
			&entry.GamesWon,
			&entry.ProblemsSolved,
			&fastest,
			&entry.LongestStreak,
		)
		if err != nil {
			return nil, err
		}
		if fastest.Valid {
			entry.FastestSolveMs = &fastest.Int64
		}
		entry.Rank = opts.Offset + len(entries) + 1
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (r *PostgresStatsRepository) RatingRank(ctx context.Context, difficulty string, rating int) (int64, error) {
	querier, err := db.GetProviderQuerier(r.dbProvider, nil)
	if err != nil {
		return 0, err
	}
	bucket := ratingColumn(difficulty)
	query := fmt.Sprintf("SELECT COUNT(*) + 1 FROM user_stats WHERE %[1]s_rating > $1 AND %[1]s_ranked_games > 0", bucket)
	var rank int64
	if err := querier.QueryRow(ctx, query, rating).Scan(&rank); err != nil {
		return 0, err
	}
	return rank, nil
}

// leaderboardFilter hides accounts that never played the relevant games:
// the rating board lists ranked players only, the rest list anyone with at
// least one finished game.
func leaderboardFilter(bucket string, sortBy model.LeaderboardSort) string {
	if sortBy == model.SortByRating {
		return fmt.Sprintf("s.%s_ranked_games > 0", bucket)
	}
	return "s.games_played > 0"
}

func leaderboardOrder(bucket string, sortBy model.LeaderboardSort) string {
	switch sortBy {
	case model.SortByWins:
		return fmt.Sprintf("s.games_won DESC, s.%s_rating DESC", bucket)
	case model.SortByProblemsSolved:
		return fmt.Sprintf("s.problems_solved DESC, s.%s_rating DESC", bucket)
	case model.SortByFastestSolve:
		return "s.fastest_solve_ms ASC NULLS LAST, s.games_won DESC"
	case model.SortByStreak:
		return fmt.Sprintf("s.longest_streak DESC, s.%s_rating DESC", bucket)
	default:
		return fmt.Sprintf("s.%s_rating DESC, s.games_won DESC", bucket)
	}
}
