package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"math"

	"bitbattle/internal/common/cache"
	problemmodel "bitbattle/internal/problem/model"
	"bitbattle/internal/user/model"
	"bitbattle/internal/user/repository"
	pkgerrors "bitbattle/pkg/errors"
	pkgrepo "bitbattle/pkg/repository"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 50

	defaultLeaderboardLimit = 25
	maxLeaderboardLimit     = 100

	// ratingLadderKeyPrefix matches the ZSET the scoring pipeline maintains
	// per difficulty. Used as a fast path for rank lookups.
	ratingLadderKeyPrefix = "leaderboard:rating:"
)

// ProfileService serves public player profiles, match history and the
// leaderboard. All data comes from the rows the scoring pipeline writes.
type ProfileService struct {
	users repository.UserRepository
	stats repository.StatsRepository
	cache cache.Cache
}

// NewProfileService creates a ProfileService. The cache is optional; without
// it rank lookups fall back to SQL.
func NewProfileService(users repository.UserRepository, stats repository.StatsRepository, cacheClient cache.Cache) *ProfileService {
	return &ProfileService{users: users, stats: stats, cache: cacheClient}
}

// Profile returns the public profile for a username.
func (s *ProfileService) Profile(ctx context.Context, username string) (*model.Profile, error) {
	user, err := s.getUser(ctx, username)
	if err != nil {
		return nil, err
	}

	stats, err := s.stats.Stats(ctx, nil, user.ID)
	if err != nil {
		if stderrors.Is(err, repository.ErrStatsNotFound) {
			return nil, pkgerrors.New(pkgerrors.StatsNotFound)
		}
		return nil, pkgerrors.Wrap(fmt.Errorf("get user stats failed: %w", err), pkgerrors.DatabaseError)
	}

	return &model.Profile{
		Username: user.Username,
		JoinedAt: user.CreatedAt,
		Stats: model.ProfileStats{
			GamesPlayed:      stats.GamesPlayed,
			GamesWon:         stats.GamesWon,
			GamesLost:        stats.GamesLost,
			WinRate:          winRate(stats.GamesWon, stats.GamesPlayed),
			ProblemsSolved:   stats.ProblemsSolved,
			TotalSubmissions: stats.TotalSubmissions,
			FastestSolveMs:   stats.FastestSolveMs,
			CurrentStreak:    stats.CurrentStreak,
			LongestStreak:    stats.LongestStreak,
			Ratings: model.RatingProfile{
				Easy:   s.ratingSummary(ctx, user.Username, "easy", stats.Easy),
				Medium: s.ratingSummary(ctx, user.Username, "medium", stats.Medium),
				Hard:   s.ratingSummary(ctx, user.Username, "hard", stats.Hard),
			},
		},
	}, nil
}

// History returns a page of the player's most recent finished games.
func (s *ProfileService) History(ctx context.Context, username string, opts pkgrepo.ListOptions) ([]model.GameRecord, error) {
	user, err := s.getUser(ctx, username)
	if err != nil {
		return nil, err
	}

	records, err := s.stats.History(ctx, user.ID, opts.Normalize(defaultHistoryLimit, maxHistoryLimit))
	if err != nil {
		return nil, pkgerrors.Wrap(fmt.Errorf("get game history failed: %w", err), pkgerrors.DatabaseError)
	}
	return records, nil
}

// Leaderboard returns a page of top players for one difficulty and sort key.
func (s *ProfileService) Leaderboard(ctx context.Context, difficulty problemmodel.Difficulty, sortBy model.LeaderboardSort, opts pkgrepo.ListOptions) ([]model.LeaderboardEntry, error) {
	entries, err := s.stats.Leaderboard(ctx, string(difficulty), sortBy,
		opts.Normalize(defaultLeaderboardLimit, maxLeaderboardLimit))
	if err != nil {
		return nil, pkgerrors.Wrap(fmt.Errorf("get leaderboard failed: %w", err), pkgerrors.DatabaseError)
	}
	return entries, nil
}

func (s *ProfileService) getUser(ctx context.Context, username string) (*model.User, error) {
	user, err := s.users.GetByUsername(ctx, nil, username)
	if err != nil {
		if stderrors.Is(err, repository.ErrUserNotFound) {
			return nil, pkgerrors.New(pkgerrors.UserNotFound)
		}
		return nil, pkgerrors.Wrap(fmt.Errorf("get user failed: %w", err), pkgerrors.DatabaseError)
	}
	return user, nil
}

// ratingSummary builds one difficulty's ladder block. Rank resolution tries
// the Redis ladder first and falls back to counting rows; players with no
// ranked games at the difficulty get no rank.
func (s *ProfileService) ratingSummary(ctx context.Context, username, difficulty string, stats model.DifficultyStats) model.RatingSummary {
	summary := model.RatingSummary{
		Rating:      stats.Rating,
		PeakRating:  stats.PeakRating,
		RankedGames: stats.RankedGames,
		RankedWins:  stats.RankedWins,
		WinRate:     winRate(stats.RankedWins, stats.RankedGames),
	}
	if stats.RankedGames == 0 {
		return summary
	}

	if s.cache != nil {
		// ZRevRank reports -1 when the member is missing from the ladder,
		// for example after a cache flush. Fall through to SQL then.
		if idx, err := s.cache.ZRevRank(ctx, ratingLadderKeyPrefix+difficulty, username); err == nil && idx >= 0 {
			summary.Rank = idx + 1
			return summary
		}
	}
	if rank, err := s.stats.RatingRank(ctx, difficulty, stats.Rating); err == nil {
		summary.Rank = rank
	}
	return summary
}

func winRate(won, played int) float64 {
	if played <= 0 {
		return 0
	}
	return math.Round(float64(won)/float64(played)*10000) / 10000
}
