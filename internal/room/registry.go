package room

import (
	"sort"
	"sync"
	"time"

	problemmodel "bitbattle/internal/problem/model"
	"bitbattle/internal/room/model"
	submissionmodel "bitbattle/internal/submission/model"
	appErr "bitbattle/pkg/errors"
)

// Config wires a Registry. Zero durations fall back to the defaults the
// game was tuned for.
type Config struct {
	Problems ProblemSource
	Scorer   Scorer

	// Countdown is the delay between game_start and the playing clock.
	Countdown time.Duration
	// EndedGrace keeps finished rooms around for late results and
	// spectators before the code is released.
	EndedGrace time.Duration
	// ScoreTimeout caps the synchronous persistence call on game end.
	ScoreTimeout time.Duration
}

// Registry owns the room map. Lookups are read-locked; creation is
// insert-or-get so two players racing to open the same code always land
// in the same room.
type Registry struct {
	opt options

	mu    sync.RWMutex
	rooms map[string]*Room
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg Config) *Registry {
	if cfg.Countdown <= 0 {
		cfg.Countdown = defaultCountdown
	}
	if cfg.EndedGrace <= 0 {
		cfg.EndedGrace = defaultEndedGrace
	}
	if cfg.ScoreTimeout <= 0 {
		cfg.ScoreTimeout = defaultScoreTimeout
	}
	g := &Registry{rooms: make(map[string]*Room)}
	g.opt = options{
		problems:     cfg.Problems,
		scorer:       cfg.Scorer,
		countdown:    cfg.Countdown,
		grace:        cfg.EndedGrace,
		scoreTimeout: cfg.ScoreTimeout,
		onRelease:    g.release,
	}
	return g
}

// Ensure returns the room registered under code, creating it with the
// given parameters when it does not exist yet. An existing room keeps its
// original parameters; later joiners cannot reshape it.
func (g *Registry) Ensure(code string, difficulty problemmodel.Difficulty, required int, mode model.GameMode) *Room {
	g.mu.RLock()
	r, ok := g.rooms[code]
	g.mu.RUnlock()
	if ok {
		return r
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if r, ok := g.rooms[code]; ok {
		return r
	}
	r = newRoom(code, difficulty, required, mode, g.opt)
	g.rooms[code] = r
	return r
}

// Open pre-creates a room, used by the matchmaker to reserve a code for a
// matched pair before either side connects.
func (g *Registry) Open(code string, difficulty problemmodel.Difficulty, required int, mode model.GameMode) {
	g.Ensure(code, difficulty, required, mode)
}

// Get looks up a room without creating it.
func (g *Registry) Get(code string) (*Room, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	r, ok := g.rooms[code]
	return r, ok
}

// release drops a room from the map once its goroutine has torn down.
// Pointer equality guards against releasing a newer room that reused the
// same code.
func (g *Registry) release(r *Room) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if cur, ok := g.rooms[r.code]; ok && cur == r {
		delete(g.rooms, r.code)
	}
}

// Count reports how many rooms are currently registered.
func (g *Registry) Count() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.rooms)
}

// Close shuts down every room. Used on server drain.
func (g *Registry) Close() {
	g.mu.RLock()
	rooms := make([]*Room, 0, len(g.rooms))
	for _, r := range g.rooms {
		rooms = append(rooms, r)
	}
	g.mu.RUnlock()
	for _, r := range rooms {
		r.shutdown()
	}
}

// CanSubmit is the submit pipeline's admission check: the room must
// exist, be in the playing phase, and count the submitter among its
// players. The authoritative winner decision still happens when the
// verdict is posted; this check just rejects obviously dead submissions
// before they burn a sandbox slot.
func (g *Registry) CanSubmit(roomCode, username string) error {
	r, ok := g.Get(roomCode)
	if !ok {
		return appErr.New(appErr.RoomNotFound)
	}
	st := r.Status()
	if st.Phase != PhasePlaying {
		return appErr.New(appErr.RoomNotPlaying)
	}
	for _, name := range st.Players {
		if name == username {
			return nil
		}
	}
	return appErr.New(appErr.NotAPlayer)
}

// SubmissionJudged posts a pipeline verdict to its room. Verdicts for
// rooms that have already been released are dropped; the submitter still
// has the HTTP response.
func (g *Registry) SubmissionJudged(roomCode string, result submissionmodel.SubmissionResult) {
	if r, ok := g.Get(roomCode); ok {
		r.submissionJudged(result)
	}
}

// LiveGames lists every room whose game has started, most recent first.
// Rooms still gathering players are not shown.
func (g *Registry) LiveGames() model.LiveGames {
	g.mu.RLock()
	rooms := make([]*Room, 0, len(g.rooms))
	for _, r := range g.rooms {
		rooms = append(rooms, r)
	}
	g.mu.RUnlock()

	now := time.Now()
	games := make([]model.LiveGame, 0, len(rooms))
	for _, r := range rooms {
		st := r.Status()
		if st.Phase < PhaseCountdown {
			continue
		}
		games = append(games, model.LiveGame{
			RoomID:         st.Code,
			Players:        st.Players,
			PlayerCount:    len(st.Players),
			SpectatorCount: st.SpectatorCount,
			GameMode:       st.Mode,
			Problem:        st.Problem,
			GameEnded:      st.Phase == PhaseEnded,
			ElapsedSeconds: int64(gameElapsed(st, now).Seconds()),
		})
	}
	sort.Slice(games, func(i, j int) bool {
		return games[i].ElapsedSeconds < games[j].ElapsedSeconds
	})
	return model.LiveGames{LiveGames: games, Total: len(games)}
}

// gameElapsed measures a live game's clock. Once the problem is revealed the
// clock runs from game start; before that only waiting time has passed, which
// counts from room creation.
func gameElapsed(st Status, now time.Time) time.Duration {
	if st.Phase >= PhasePlaying && !st.StartedAt.IsZero() {
		return now.Sub(st.StartedAt)
	}
	return now.Sub(st.CreatedAt)
}
