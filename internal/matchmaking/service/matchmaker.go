// Package service implements the matchmaking queue: a FIFO of waiting
// players matched pairwise by mode, difficulty and, for ranked play, a
// rating window that widens the longer a player waits.
package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"bitbattle/internal/matchmaking/model"
	problemmodel "bitbattle/internal/problem/model"
	roommodel "bitbattle/internal/room/model"
	"bitbattle/pkg/utils/logger"
)

const (
	matchPlayers = 2

	defaultBaseRatingWindow   = 200
	defaultMaxRatingExpansion = 500
	defaultMaxWait            = 60 * time.Second
	defaultTickInterval       = 2 * time.Second
	defaultPendingTTL         = 5 * time.Minute

	recentMatchLimit = 100
)

// RoomOpener reserves a room for a matched pair before either side
// connects. Implemented by the room registry.
type RoomOpener interface {
	Open(code string, difficulty problemmodel.Difficulty, required int, mode roommodel.GameMode)
}

// RatingSource resolves a player's rating in a difficulty bucket.
// Implemented by the scoring service.
type RatingSource interface {
	Rating(ctx context.Context, userID string, difficulty problemmodel.Difficulty) int
}

// Config wires a Matchmaker. Zero values fall back to the tuned
// defaults.
type Config struct {
	Rooms RoomOpener

	// BaseRatingWindow is the ranked rating distance accepted on join.
	BaseRatingWindow int
	// MaxRatingExpansion is how far the window opens after MaxWait.
	MaxRatingExpansion int
	// MaxWait is the wait after which the window stops widening.
	MaxWait time.Duration
	// TickInterval is the background matching cadence.
	TickInterval time.Duration
	// PendingTTL bounds how long an unclaimed match notification lives.
	PendingTTL time.Duration
}

type pendingMatch struct {
	info      model.MatchInfo
	createdAt time.Time
}

// Matchmaker holds the queue under one mutex. Matching runs on a ticker
// and opportunistically on every join.
type Matchmaker struct {
	rooms        RoomOpener
	baseWindow   int
	maxExpansion int
	maxWait      time.Duration
	tick         time.Duration
	pendingTTL   time.Duration

	mu      sync.Mutex
	entries map[string]model.Entry
	pending map[string]pendingMatch
	recent  []model.Match

	now func() time.Time
}

// NewMatchmaker creates an empty queue.
func NewMatchmaker(cfg Config) *Matchmaker {
	if cfg.BaseRatingWindow <= 0 {
		cfg.BaseRatingWindow = defaultBaseRatingWindow
	}
	if cfg.MaxRatingExpansion <= 0 {
		cfg.MaxRatingExpansion = defaultMaxRatingExpansion
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = defaultMaxWait
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = defaultTickInterval
	}
	if cfg.PendingTTL <= 0 {
		cfg.PendingTTL = defaultPendingTTL
	}
	return &Matchmaker{
		rooms:        cfg.Rooms,
		baseWindow:   cfg.BaseRatingWindow,
		maxExpansion: cfg.MaxRatingExpansion,
		maxWait:      cfg.MaxWait,
		tick:         cfg.TickInterval,
		pendingTTL:   cfg.PendingTTL,
		entries:      make(map[string]model.Entry),
		pending:      make(map[string]pendingMatch),
		now:          time.Now,
	}
}

// Run ticks the matcher until ctx is done. Joins also match eagerly, so
// the ticker only exists for pairs whose compatibility arrives with time
// (ranked window widening).
func (m *Matchmaker) Run(ctx context.Context) {
	ticker := time.NewTicker(m.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Match()
		}
	}
}

// Join enqueues a player and reports the queue size. Joining again under
// the same connection id replaces the previous entry and restarts its
// wait clock; an unclaimed match notification for that id is dropped.
func (m *Matchmaker) Join(entry model.Entry) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry.QueuedAt = m.now()
	delete(m.pending, entry.ConnectionID)
	m.entries[entry.ConnectionID] = entry
	m.matchLocked()
	return len(m.entries)
}

// Leave removes an entry if present. Idempotent; also forfeits an
// unclaimed match notification.
func (m *Matchmaker) Leave(connectionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, inQueue := m.entries[connectionID]
	delete(m.entries, connectionID)
	delete(m.pending, connectionID)
	return inQueue
}

// Status answers a poll. A produced match is reported exactly once per
// side; the notification is cleared by the read.
func (m *Matchmaker) Status(connectionID string) model.StatusResponse {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.pending[connectionID]; ok {
		delete(m.pending, connectionID)
		info := p.info
		return model.StatusResponse{
			QueueSize:  len(m.entries),
			MatchFound: true,
			MatchInfo:  &info,
		}
	}
	entry, ok := m.entries[connectionID]
	if !ok {
		return model.StatusResponse{QueueSize: len(m.entries)}
	}
	pos := 0
	for _, other := range m.entries {
		if other.ConnectionID == entry.ConnectionID {
			continue
		}
		if queuedBefore(other, entry) {
			pos++
		}
	}
	return model.StatusResponse{InQueue: true, Position: &pos, QueueSize: len(m.entries)}
}

// Match sweeps the queue once and returns the pairings it produced.
func (m *Matchmaker) Match() []model.Match {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.matchLocked()
}

// QueueSize reports how many players are waiting.
func (m *Matchmaker) QueueSize() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// RecentMatches returns a copy of the diagnostics ring, oldest first.
func (m *Matchmaker) RecentMatches() []model.Match {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Match(nil), m.recent...)
}

func (m *Matchmaker) matchLocked() []model.Match {
	m.expirePendingLocked()
	if len(m.entries) < matchPlayers {
		return nil
	}

	order := make([]model.Entry, 0, len(m.entries))
	for _, e := range m.entries {
		order = append(order, e)
	}
	sort.Slice(order, func(i, j int) bool {
		return queuedBefore(order[i], order[j])
	})

	now := m.now()
	matched := make(map[string]struct{})
	var made []model.Match
	for i := 0; i < len(order); i++ {
		p1 := order[i]
		if _, ok := matched[p1.ConnectionID]; ok {
			continue
		}
		window := m.ratingWindow(now.Sub(p1.QueuedAt))
		for j := i + 1; j < len(order); j++ {
			p2 := order[j]
			if _, ok := matched[p2.ConnectionID]; ok {
				continue
			}
			if !compatible(p1, p2, window) {
				continue
			}
			made = append(made, m.pairLocked(p1, p2, now))
			matched[p1.ConnectionID] = struct{}{}
			matched[p2.ConnectionID] = struct{}{}
			break
		}
	}
	return made
}

func (m *Matchmaker) pairLocked(p1, p2 model.Entry, now time.Time) model.Match {
	code := GenerateRoomCode()
	difficulty := resolveDifficulty(p1.Difficulty, p2.Difficulty)
	match := model.Match{
		ID:         uuid.NewString(),
		RoomCode:   code,
		Players:    [2]model.Entry{p1, p2},
		Difficulty: difficulty,
		Mode:       p1.Mode,
		CreatedAt:  now,
	}

	delete(m.entries, p1.ConnectionID)
	delete(m.entries, p2.ConnectionID)
	m.pending[p1.ConnectionID] = pendingMatch{info: sideInfo(match, p2), createdAt: now}
	m.pending[p2.ConnectionID] = pendingMatch{info: sideInfo(match, p1), createdAt: now}

	m.recent = append(m.recent, match)
	if len(m.recent) > recentMatchLimit {
		m.recent = m.recent[len(m.recent)-recentMatchLimit:]
	}

	if m.rooms != nil {
		m.rooms.Open(code, difficulty, matchPlayers, match.Mode)
	}
	logger.Info(context.Background(), "match created",
		zap.String("room", code),
		zap.String("player1", p1.Username),
		zap.String("player2", p2.Username),
		zap.String("difficulty", string(difficulty)),
		zap.String("mode", string(match.Mode)))
	return match
}

func (m *Matchmaker) expirePendingLocked() {
	cutoff := m.now().Add(-m.pendingTTL)
	for id, p := range m.pending {
		if p.createdAt.Before(cutoff) {
			delete(m.pending, id)
		}
	}
}

// ratingWindow widens linearly from the base to base+expansion over the
// maximum wait.
func (m *Matchmaker) ratingWindow(wait time.Duration) int {
	factor := wait.Seconds() / m.maxWait.Seconds()
	if factor > 1 {
		factor = 1
	}
	if factor < 0 {
		factor = 0
	}
	return m.baseWindow + int(factor*float64(m.maxExpansion))
}

func compatible(p1, p2 model.Entry, ratingWindow int) bool {
	if p1.Mode != p2.Mode {
		return false
	}
	// A player cannot battle a second session of themselves.
	if p1.Username == p2.Username {
		return false
	}
	if !p1.Difficulty.Matches(p2.Difficulty) {
		return false
	}
	if p1.Mode == roommodel.ModeRanked {
		diff := p1.Rating - p2.Rating
		if diff < 0 {
			diff = -diff
		}
		if diff > ratingWindow {
			return false
		}
	}
	return true
}

// resolveDifficulty picks the concrete difficulty for a pairing: the
// oldest waiter's choice wins, an Any defers to the other side, and two
// Any entries settle on medium.
func resolveDifficulty(d1, d2 problemmodel.Difficulty) problemmodel.Difficulty {
	if d1 != problemmodel.DifficultyAny {
		return d1
	}
	if d2 != problemmodel.DifficultyAny {
		return d2
	}
	return problemmodel.DifficultyMedium
}

func sideInfo(match model.Match, opponent model.Entry) model.MatchInfo {
	return model.MatchInfo{
		RoomCode:   match.RoomCode,
		Opponent:   opponent.Username,
		Difficulty: string(match.Difficulty),
		GameMode:   string(match.Mode),
	}
}

func queuedBefore(a, b model.Entry) bool {
	if a.QueuedAt.Equal(b.QueuedAt) {
		return a.ConnectionID < b.ConnectionID
	}
	return a.QueuedAt.Before(b.QueuedAt)
}
