// Package service turns finished battles into durable records: game_results
// rows, user_stats rollups and per-difficulty ELO updates, all committed as
// one transaction per game.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"bitbattle/internal/common/cache"
	"bitbattle/internal/common/db"
	"bitbattle/internal/common/mq"
	problemmodel "bitbattle/internal/problem/model"
	roommodel "bitbattle/internal/room/model"
	"bitbattle/internal/scoring/repository"
	"bitbattle/pkg/utils/logger"
)

const (
	defaultRecentProblemLimit = 10
	defaultRetryTopic         = "scoring.retry"
	defaultDeadLetterTopic    = "scoring.dead"
	defaultRetryMaxAttempts   = 5
	defaultRetryDelay         = 2 * time.Second

	leaderboardKeyPrefix = "leaderboard:rating:"
)

// Transactor is the slice of db.Database the service needs: everything it
// writes for one game goes through a single transaction.
type Transactor interface {
	Transaction(ctx context.Context, fn func(tx db.Transaction) error) error
}

// Config wires a ScoringService.
type Config struct {
	DB   Transactor
	Repo repository.GameRepository

	// Cache is optional; when set, ranked writes mirror the difficulty
	// leaderboard ZSET best-effort.
	Cache cache.Cache

	// Queue is optional; when set, outcomes that failed to persist are
	// published for the retry consumer instead of being lost.
	Queue           mq.MessageQueue
	RetryTopic      string
	DeadLetterTopic string

	// RecentProblemLimit caps the per-player recent problem ring used to
	// keep rematches fresh.
	RecentProblemLimit int
}

// ScoringService persists game outcomes and answers rating lookups. It
// also remembers each player's recently played problems so the room
// manager can exclude them from the next assignment.
type ScoringService struct {
	db         Transactor
	repo       repository.GameRepository
	cache      cache.Cache
	queue      mq.MessageQueue
	retryTopic string
	deadTopic  string

	mu          sync.Mutex
	recent      map[string][]string
	recentLimit int
}

// NewScoringService creates a ScoringService.
func NewScoringService(cfg Config) (*ScoringService, error) {
	if cfg.DB == nil {
		return nil, fmt.Errorf("database is required")
	}
	if cfg.Repo == nil {
		return nil, fmt.Errorf("game repository is required")
	}
	if cfg.RetryTopic == "" {
		cfg.RetryTopic = defaultRetryTopic
	}
	if cfg.DeadLetterTopic == "" {
		cfg.DeadLetterTopic = defaultDeadLetterTopic
	}
	if cfg.RecentProblemLimit <= 0 {
		cfg.RecentProblemLimit = defaultRecentProblemLimit
	}
	return &ScoringService{
		db:          cfg.DB,
		repo:        cfg.Repo,
		cache:       cfg.Cache,
		queue:       cfg.Queue,
		retryTopic:  cfg.RetryTopic,
		deadTopic:   cfg.DeadLetterTopic,
		recent:      make(map[string][]string),
		recentLimit: cfg.RecentProblemLimit,
	}, nil
}

// RecordGame persists one finished game and returns the per-player rating
// changes for the game_over broadcast. A persistence failure publishes the
// outcome to the retry topic and returns the error; the caller broadcasts
// zeroed changes and the game is not lost.
func (s *ScoringService) RecordGame(ctx context.Context, outcome roommodel.GameOutcome) (map[string]roommodel.RatingChange, error) {
	changes, err := s.persist(ctx, outcome)
	if err != nil {
		logger.Error(ctx, "persist game outcome failed",
			zap.String("room_id", outcome.RoomID),
			zap.String("problem_id", outcome.ProblemID),
			zap.Error(err))
		s.publishRetry(ctx, outcome)
		return nil, err
	}

	s.rememberProblems(outcome)
	s.mirrorLeaderboard(ctx, outcome, changes)
	logger.Info(ctx, "game recorded",
		zap.String("room_id", outcome.RoomID),
		zap.String("problem_id", outcome.ProblemID),
		zap.String("mode", string(outcome.Mode)),
		zap.Int("players", len(outcome.Players)))
	return changes, nil
}

// persist runs every write for one game inside a single transaction.
func (s *ScoringService) persist(ctx context.Context, outcome roommodel.GameOutcome) (map[string]roommodel.RatingChange, error) {
	var changes map[string]roommodel.RatingChange
	err := s.db.Transaction(ctx, func(tx db.Transaction) error {
		ratings, err := s.currentRatings(ctx, tx, outcome)
		if err != nil {
			return err
		}
		changes = computeChanges(outcome, ratings)

		for _, p := range outcome.Players {
			won := p.Placement == 1
			var solveTime *int64
			if won && outcome.SolveTimeMs > 0 {
				ms := outcome.SolveTimeMs
				solveTime = &ms
			}

			row := repository.GameResult{
				RoomID:       outcome.RoomID,
				ProblemID:    outcome.ProblemID,
				UserID:       p.UserID,
				Placement:    p.Placement,
				TotalPlayers: len(outcome.Players),
				SolveTimeMs:  solveTime,
				PassedTests:  p.PassedTests,
				TotalTests:   p.TotalTests,
				Language:     p.Language,
				GameMode:     string(outcome.Mode),
				Difficulty:   outcome.Difficulty,
				RatingChange: changes[p.Username].Change,
			}
			if err := s.repo.InsertResult(ctx, tx, row); err != nil {
				return err
			}

			if p.UserID == "" {
				continue
			}
			if err := s.repo.ApplyGameStats(ctx, tx, p.UserID, won, solveTime); err != nil {
				return err
			}
			if outcome.Mode == roommodel.ModeRanked {
				if err := s.repo.ApplyRankedResult(ctx, tx, p.UserID, outcome.Difficulty, changes[p.Username].Change, won); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return changes, nil
}

// currentRatings reads every rated participant's bucket rating inside the
// transaction. Guests and players with no stats row count as the initial
// rating, mirroring how unknown opponents were always treated.
func (s *ScoringService) currentRatings(ctx context.Context, tx db.Transaction, outcome roommodel.GameOutcome) (map[string]int, error) {
	ratings := make(map[string]int, len(outcome.Players))
	for _, p := range outcome.Players {
		ratings[p.Username] = InitialRating
		if p.UserID == "" {
			continue
		}
		rating, err := s.repo.Rating(ctx, tx, p.UserID, outcome.Difficulty)
		if err != nil {
			if db.IsNoRows(err) {
				continue
			}
			return nil, err
		}
		ratings[p.Username] = rating
	}
	return ratings, nil
}

// computeChanges builds the rating change map. Ranked games move ratings
// pairwise between the winner and each rated loser; pairs involving a
// guest move nothing, so the recorded deltas always sum to zero. Casual
// games report current ratings with zero change.
func computeChanges(outcome roommodel.GameOutcome, ratings map[string]int) map[string]roommodel.RatingChange {
	changes := make(map[string]roommodel.RatingChange, len(outcome.Players))
	for _, p := range outcome.Players {
		old := ratings[p.Username]
		changes[p.Username] = roommodel.RatingChange{OldRating: old, NewRating: old}
	}
	if outcome.Mode != roommodel.ModeRanked || len(outcome.Players) < 2 {
		return changes
	}

	winner := outcome.Players[0]
	if winner.UserID == "" {
		return changes
	}
	winnerDelta := 0
	for _, loser := range outcome.Players[1:] {
		if loser.UserID == "" {
			continue
		}
		delta := pairDelta(ratings[winner.Username], ratings[loser.Username])
		winnerDelta += delta

		old := ratings[loser.Username]
		changes[loser.Username] = roommodel.RatingChange{
			OldRating: old,
			NewRating: clampRating(old - delta),
			Change:    -delta,
		}
	}

	old := ratings[winner.Username]
	changes[winner.Username] = roommodel.RatingChange{
		OldRating: old,
		NewRating: clampRating(old + winnerDelta),
		Change:    winnerDelta,
	}
	return changes
}

// RecentProblems returns the union of the given players' recently played
// problem ids. The room manager excludes these when choosing the next
// problem.
func (s *ScoringService) RecentProblems(usernames []string) map[string]struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	exclude := make(map[string]struct{})
	for _, name := range usernames {
		for _, id := range s.recent[name] {
			exclude[id] = struct{}{}
		}
	}
	return exclude
}

// Rating resolves a player's bucket rating for matchmaking. Lookups that
// fail fall back to the initial rating so the queue keeps moving.
func (s *ScoringService) Rating(ctx context.Context, userID string, difficulty problemmodel.Difficulty) int {
	rating, err := s.repo.Rating(ctx, nil, userID, string(difficulty))
	if err != nil {
		if !db.IsNoRows(err) {
			logger.Warn(ctx, "rating lookup failed",
				zap.String("user_id", userID), zap.Error(err))
		}
		return InitialRating
	}
	return rating
}

// rememberProblems records the game's problem against every participant.
// Everyone in the room saw the hidden tests, so a rematch should not get
// the same problem regardless of who won.
func (s *ScoringService) rememberProblems(outcome roommodel.GameOutcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range outcome.Players {
		ring := s.recent[p.Username]
		for i, id := range ring {
			if id == outcome.ProblemID {
				ring = append(ring[:i], ring[i+1:]...)
				break
			}
		}
		ring = append(ring, outcome.ProblemID)
		if len(ring) > s.recentLimit {
			ring = ring[len(ring)-s.recentLimit:]
		}
		s.recent[p.Username] = ring
	}
}

// mirrorLeaderboard pushes new ranked ratings into the difficulty ZSET.
// Strictly best-effort; the database remains authoritative.
func (s *ScoringService) mirrorLeaderboard(ctx context.Context, outcome roommodel.GameOutcome, changes map[string]roommodel.RatingChange) {
	if s.cache == nil || outcome.Mode != roommodel.ModeRanked {
		return
	}
	key := leaderboardKeyPrefix + repository.RatingBucket(outcome.Difficulty)
	members := make([]cache.ZMember, 0, len(outcome.Players))
	for _, p := range outcome.Players {
		if p.UserID == "" {
			continue
		}
		members = append(members, cache.ZMember{
			Member: p.Username,
			Score:  float64(changes[p.Username].NewRating),
		})
	}
	if len(members) == 0 {
		return
	}
	if err := s.cache.ZAdd(ctx, key, members...); err != nil {
		logger.Warn(ctx, "leaderboard mirror failed", zap.String("key", key), zap.Error(err))
	}
}

// publishRetry hands a failed outcome to the queue so the retry consumer
// can replay it once the database recovers.
func (s *ScoringService) publishRetry(ctx context.Context, outcome roommodel.GameOutcome) {
	if s.queue == nil {
		return
	}
	payload, err := json.Marshal(outcome)
	if err != nil {
		logger.Error(ctx, "marshal outcome for retry failed", zap.Error(err))
		return
	}
	message := mq.NewMessage(payload)
	message.ID = outcome.RoomID
	message.MaxRetries = defaultRetryMaxAttempts
	if err := s.queue.Publish(ctx, s.retryTopic, message); err != nil {
		logger.Error(ctx, "publish outcome retry failed",
			zap.String("room_id", outcome.RoomID), zap.Error(err))
	}
}

// StartRetryConsumer subscribes to the retry topic and replays failed
// outcomes. The queue layer handles backoff between attempts and moves
// exhausted messages to the dead letter topic.
func (s *ScoringService) StartRetryConsumer(ctx context.Context) error {
	if s.queue == nil {
		return nil
	}
	opts := &mq.SubscribeOptions{
		ConsumerGroup:   "scoring-retry",
		MaxRetries:      defaultRetryMaxAttempts,
		RetryDelay:      defaultRetryDelay,
		DeadLetterTopic: s.deadTopic,
	}
	err := s.queue.SubscribeWithOptions(ctx, s.retryTopic, s.handleRetry, opts)
	if err != nil {
		return fmt.Errorf("subscribe scoring retry: %w", err)
	}
	return s.queue.Start()
}

func (s *ScoringService) handleRetry(ctx context.Context, message *mq.Message) error {
	var outcome roommodel.GameOutcome
	if err := json.Unmarshal(message.Body, &outcome); err != nil {
		logger.Error(ctx, "drop malformed retry outcome", zap.Error(err))
		return nil
	}
	changes, err := s.persist(ctx, outcome)
	if err != nil {
		return err
	}
	s.rememberProblems(outcome)
	s.mirrorLeaderboard(ctx, outcome, changes)
	logger.Info(ctx, "game recorded on retry",
		zap.String("room_id", outcome.RoomID),
		zap.Int("attempt", message.RetryCount+1))
	return nil
}
