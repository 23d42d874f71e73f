package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"bitbattle/internal/common/cache"
	"bitbattle/internal/common/db"
	problemmodel "bitbattle/internal/problem/model"
	"bitbattle/internal/user/model"
	"bitbattle/internal/user/repository"
	"bitbattle/internal/user/service"
	appErr "bitbattle/pkg/errors"
	pkgrepo "bitbattle/pkg/repository"
)

type leaderboardCall struct {
	difficulty string
	sortBy     model.LeaderboardSort
	opts       pkgrepo.ListOptions
}

type fakeStatsRepo struct {
	stats   map[string]*model.UserStats
	history map[string][]model.GameRecord

	historyOpts      []pkgrepo.ListOptions
	leaderboardCalls []leaderboardCall
	entries          []model.LeaderboardEntry

	rank      int64
	rankCalls int
}

func newFakeStatsRepo() *fakeStatsRepo {
	return &fakeStatsRepo{
		stats:   make(map[string]*model.UserStats),
		history: make(map[string][]model.GameRecord),
	}
}

func (f *fakeStatsRepo) Stats(ctx context.Context, tx db.Transaction, userID string) (*model.UserStats, error) {
	stats, ok := f.stats[userID]
	if !ok {
		return nil, repository.ErrStatsNotFound
	}
	clone := *stats
	return &clone, nil
}

func (f *fakeStatsRepo) History(ctx context.Context, userID string, opts pkgrepo.ListOptions) ([]model.GameRecord, error) {
	f.historyOpts = append(f.historyOpts, opts)
	records := f.history[userID]
	if opts.Offset >= len(records) {
		return nil, nil
	}
	records = records[opts.Offset:]
	if opts.Limit < len(records) {
		records = records[:opts.Limit]
	}
	return records, nil
}

func (f *fakeStatsRepo) Leaderboard(ctx context.Context, difficulty string, sortBy model.LeaderboardSort, opts pkgrepo.ListOptions) ([]model.LeaderboardEntry, error) {
	f.leaderboardCalls = append(f.leaderboardCalls, leaderboardCall{difficulty, sortBy, opts})
	return f.entries, nil
}

func (f *fakeStatsRepo) RatingRank(ctx context.Context, difficulty string, rating int) (int64, error) {
	f.rankCalls++
	return f.rank, nil
}

type profileFixture struct {
	svc   *service.ProfileService
	users *fakeUserRepo
	stats *fakeStatsRepo
	store cache.Cache
}

func newProfileFixture(t *testing.T, withCache bool) *profileFixture {
	t.Helper()
	users := newFakeUserRepo()
	stats := newFakeStatsRepo()

	var store cache.Cache
	if withCache {
		mr := miniredis.RunT(t)
		redisCache, err := cache.NewRedisCache(mr.Addr())
		if err != nil {
			t.Fatalf("redis cache: %v", err)
		}
		t.Cleanup(func() { _ = redisCache.Close() })
		store = redisCache
	}

	return &profileFixture{
		svc:   service.NewProfileService(users, stats, store),
		users: users,
		stats: stats,
		store: store,
	}
}

func (f *profileFixture) addUser(t *testing.T, username string, stats *model.UserStats) *model.User {
	t.Helper()
	user := &model.User{Username: username, PasswordHash: "x"}
	if err := f.users.Create(context.Background(), nil, user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if stats != nil {
		stats.UserID = user.ID
		f.stats.stats[user.ID] = stats
	}
	return user
}

func TestProfileComputesWinRates(t *testing.T) {
	f := newProfileFixture(t, true)
	f.addUser(t, "alice", &model.UserStats{
		GamesPlayed:    10,
		GamesWon:       6,
		GamesLost:      4,
		ProblemsSolved: 7,
		Medium:         model.DifficultyStats{Rating: 1290, PeakRating: 1310, RankedGames: 4, RankedWins: 3},
		Easy:           model.DifficultyStats{Rating: 1200, PeakRating: 1200},
	})

	ctx := context.Background()
	if err := f.store.ZAdd(ctx, "leaderboard:rating:medium",
		cache.ZMember{Score: 1350, Member: "bob"},
		cache.ZMember{Score: 1290, Member: "alice"},
	); err != nil {
		t.Fatalf("seed ladder: %v", err)
	}

	profile, err := f.svc.Profile(ctx, "alice")
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}

	if profile.Username != "alice" {
		t.Errorf("username = %q", profile.Username)
	}
	if profile.Stats.WinRate != 0.6 {
		t.Errorf("overall win rate = %v, want 0.6", profile.Stats.WinRate)
	}
	medium := profile.Stats.Ratings.Medium
	if medium.WinRate != 0.75 {
		t.Errorf("medium ranked win rate = %v, want 0.75", medium.WinRate)
	}
	if medium.Rank != 2 {
		t.Errorf("medium rank = %d, want 2 (behind bob on the ladder)", medium.Rank)
	}
	// No ranked games at easy means no rank, even though a rating exists.
	if easy := profile.Stats.Ratings.Easy; easy.Rank != 0 || easy.WinRate != 0 {
		t.Errorf("easy summary = %+v, want unranked", easy)
	}
}

func TestProfileRankFallsBackToSQL(t *testing.T) {
	seed := func(f *profileFixture) {
		f.addUser(t, "alice", &model.UserStats{
			GamesPlayed: 4,
			GamesWon:    2,
			Medium:      model.DifficultyStats{Rating: 1250, PeakRating: 1250, RankedGames: 4, RankedWins: 2},
		})
		f.stats.rank = 5
	}

	t.Run("no cache", func(t *testing.T) {
		f := newProfileFixture(t, false)
		seed(f)
		profile, err := f.svc.Profile(context.Background(), "alice")
		if err != nil {
			t.Fatalf("Profile: %v", err)
		}
		if profile.Stats.Ratings.Medium.Rank != 5 {
			t.Errorf("rank = %d, want 5 from SQL", profile.Stats.Ratings.Medium.Rank)
		}
		if f.stats.rankCalls == 0 {
			t.Error("SQL rank lookup never happened")
		}
	})

	t.Run("player missing from ladder", func(t *testing.T) {
		f := newProfileFixture(t, true)
		seed(f)
		// Ladder exists but alice was never mirrored into it.
		if err := f.store.ZAdd(context.Background(), "leaderboard:rating:medium",
			cache.ZMember{Score: 1400, Member: "bob"},
		); err != nil {
			t.Fatalf("seed ladder: %v", err)
		}
		profile, err := f.svc.Profile(context.Background(), "alice")
		if err != nil {
			t.Fatalf("Profile: %v", err)
		}
		if profile.Stats.Ratings.Medium.Rank != 5 {
			t.Errorf("rank = %d, want 5 from SQL fallback", profile.Stats.Ratings.Medium.Rank)
		}
	})
}

func TestProfileUnknownUser(t *testing.T) {
	f := newProfileFixture(t, false)
	_, err := f.svc.Profile(context.Background(), "nobody")
	if !appErr.Is(err, appErr.UserNotFound) {
		t.Errorf("unknown profile error = %v, want UserNotFound", err)
	}
}

func TestHistoryPaginationNormalization(t *testing.T) {
	f := newProfileFixture(t, false)
	user := f.addUser(t, "alice", &model.UserStats{})
	f.stats.history[user.ID] = []model.GameRecord{
		{RoomID: "SWIFT-CODER-1234", ProblemID: "two-sum", Placement: 1, PlayedAt: time.Now()},
	}

	tests := []struct {
		requested pkgrepo.ListOptions
		want      pkgrepo.ListOptions
	}{
		{pkgrepo.ListOptions{}, pkgrepo.ListOptions{Limit: 20}},
		{pkgrepo.ListOptions{Limit: -3, Offset: -2}, pkgrepo.ListOptions{Limit: 20}},
		{pkgrepo.ListOptions{Limit: 7, Offset: 40}, pkgrepo.ListOptions{Limit: 7, Offset: 40}},
		{pkgrepo.ListOptions{Limit: 999}, pkgrepo.ListOptions{Limit: 50}},
	}
	for _, tt := range tests {
		if _, err := f.svc.History(context.Background(), "alice", tt.requested); err != nil {
			t.Fatalf("History(%+v): %v", tt.requested, err)
		}
	}
	for i, tt := range tests {
		if got := f.stats.historyOpts[i]; got != tt.want {
			t.Errorf("History(%+v) queried %+v, want %+v", tt.requested, got, tt.want)
		}
	}

	if _, err := f.svc.History(context.Background(), "nobody", pkgrepo.ListOptions{Limit: 10}); !appErr.Is(err, appErr.UserNotFound) {
		t.Errorf("history of unknown user error = %v, want UserNotFound", err)
	}
}

func TestLeaderboardPassesQueryThrough(t *testing.T) {
	f := newProfileFixture(t, false)
	f.stats.entries = []model.LeaderboardEntry{{Rank: 1, Username: "bob", Rating: 1400}}

	entries, err := f.svc.Leaderboard(context.Background(), problemmodel.DifficultyHard, model.SortByWins, pkgrepo.ListOptions{})
	if err != nil {
		t.Fatalf("Leaderboard: %v", err)
	}
	if len(entries) != 1 || entries[0].Username != "bob" {
		t.Errorf("entries = %+v", entries)
	}

	if _, err := f.svc.Leaderboard(context.Background(), problemmodel.DifficultyEasy, model.SortByRating, pkgrepo.ListOptions{Limit: 500, Offset: 100}); err != nil {
		t.Fatalf("Leaderboard: %v", err)
	}

	want := []leaderboardCall{
		{"hard", model.SortByWins, pkgrepo.ListOptions{Limit: 25}},
		{"easy", model.SortByRating, pkgrepo.ListOptions{Limit: 100, Offset: 100}},
	}
	for i, call := range f.stats.leaderboardCalls {
		if call != want[i] {
			t.Errorf("call %d = %+v, want %+v", i, call, want[i])
		}
	}
}
