package room

import (
	"context"
	"sync"
	"testing"
	"time"

	problemmodel "bitbattle/internal/problem/model"
	"bitbattle/internal/room/model"
	submissionmodel "bitbattle/internal/submission/model"
	appErr "bitbattle/pkg/errors"
)

// fakePeer stands in for a websocket; it records every frame the room
// hands it.
type fakePeer struct {
	mu     sync.Mutex
	events []model.Event
	closed bool
}

func (f *fakePeer) enqueue(ev model.Event) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	f.events = append(f.events, ev)
	return true
}

func (f *fakePeer) closeAfter(ev model.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.events = append(f.events, ev)
	f.closed = true
}

func (f *fakePeer) shutdown() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakePeer) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakePeer) count(kind string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, ev := range f.events {
		if ev.Type == kind {
			n++
		}
	}
	return n
}

func (f *fakePeer) last(kind string) (model.Event, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.events) - 1; i >= 0; i-- {
		if f.events[i].Type == kind {
			return f.events[i], true
		}
	}
	return model.Event{}, false
}

func (f *fakePeer) kinds() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.events))
	for i, ev := range f.events {
		out[i] = ev.Type
	}
	return out
}

type fakeProblems struct {
	mu       sync.Mutex
	problem  problemmodel.Problem
	err      error
	excludes []map[string]struct{}
}

func (f *fakeProblems) Choose(_ context.Context, _ problemmodel.Difficulty, exclude map[string]struct{}) (problemmodel.Problem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.excludes = append(f.excludes, exclude)
	if f.err != nil {
		return problemmodel.Problem{}, f.err
	}
	return f.problem, nil
}

type fakeScorer struct {
	mu       sync.Mutex
	outcomes []model.GameOutcome
	changes  map[string]model.RatingChange
	err      error
	recent   map[string]struct{}
}

func (f *fakeScorer) RecordGame(_ context.Context, outcome model.GameOutcome) (map[string]model.RatingChange, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes = append(f.outcomes, outcome)
	if f.err != nil {
		return nil, f.err
	}
	return f.changes, nil
}

func (f *fakeScorer) RecentProblems([]string) map[string]struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.recent
}

func (f *fakeScorer) recorded() []model.GameOutcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.GameOutcome(nil), f.outcomes...)
}

func testProblem() problemmodel.Problem {
	return problemmodel.Problem{
		ID:          "two-sum",
		Title:       "Two Sum",
		Description: "Find two numbers that add up to the target.",
		Difficulty:  problemmodel.DifficultyEasy,
		Examples:    []problemmodel.TestCase{{Input: "[2,7,11,15] 9", ExpectedOutput: "[0,1]"}},
		HiddenTests: []problemmodel.TestCase{{Input: "[3,3] 6", ExpectedOutput: "[0,1]"}},
	}
}

func newTestRegistry(t *testing.T, mutate func(*Config)) (*Registry, *fakeProblems, *fakeScorer) {
	t.Helper()
	problems := &fakeProblems{problem: testProblem()}
	scorer := &fakeScorer{changes: map[string]model.RatingChange{}}
	cfg := Config{
		Problems:     problems,
		Scorer:       scorer,
		Countdown:    5 * time.Millisecond,
		EndedGrace:   time.Minute,
		ScoreTimeout: time.Second,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	reg := NewRegistry(cfg)
	t.Cleanup(reg.Close)
	return reg, problems, scorer
}

func waitFor(t *testing.T, desc string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", desc)
}

func waitPhase(t *testing.T, rm *Room, phase Phase) {
	t.Helper()
	waitFor(t, "phase "+phase.String(), func() bool { return rm.Status().Phase == phase })
}

func joinPlayer(t *testing.T, rm *Room, name string) (*fakePeer, *client) {
	t.Helper()
	p := &fakePeer{}
	cl := &client{sock: p, username: name}
	reply := rm.join(cl)
	if reply.err != nil {
		t.Fatalf("join %s: %v", name, reply.err)
	}
	if reply.spectator {
		t.Fatalf("join %s: demoted to spectator", name)
	}
	return p, cl
}

func joinSpectator(t *testing.T, rm *Room) (*fakePeer, *client) {
	t.Helper()
	p := &fakePeer{}
	cl := &client{sock: p, spectator: true}
	reply := rm.spectate(cl)
	if reply.err != nil {
		t.Fatalf("spectate: %v", reply.err)
	}
	return p, cl
}

func playingRoom(t *testing.T, reg *Registry, code string) (*Room, *fakePeer, *fakePeer) {
	t.Helper()
	rm := reg.Ensure(code, problemmodel.DifficultyEasy, 2, model.ModeCasual)
	alice, _ := joinPlayer(t, rm, "alice")
	bob, _ := joinPlayer(t, rm, "bob")
	waitPhase(t, rm, PhasePlaying)
	return rm, alice, bob
}

func passedResult(username string) submissionmodel.SubmissionResult {
	return submissionmodel.SubmissionResult{
		Username:    username,
		ProblemID:   "two-sum",
		Passed:      true,
		TotalTests:  1,
		PassedTests: 1,
		Language:    "python",
	}
}

func TestRoomFillStartsGame(t *testing.T) {
	reg, problems, scorer := newTestRegistry(t, nil)
	scorer.recent = map[string]struct{}{"old-problem": {}}

	rm := reg.Ensure("SWIFT-CODER-1234", problemmodel.DifficultyEasy, 2, model.ModeCasual)
	alice, _ := joinPlayer(t, rm, "alice")
	if got := rm.Status().Phase; got != PhaseWaiting {
		t.Fatalf("phase after one join = %v, want waiting", got)
	}

	bob, _ := joinPlayer(t, rm, "bob")
	waitPhase(t, rm, PhasePlaying)

	// Bob connected second, so he catches up on alice before the deal.
	wantOrder := []string{"user_joined", "user_joined", "player_count", "problem_assigned", "game_start"}
	kinds := bob.kinds()
	if len(kinds) < len(wantOrder) {
		t.Fatalf("bob frames = %v, want at least %v", kinds, wantOrder)
	}
	for i, want := range wantOrder {
		if kinds[i] != want {
			t.Fatalf("bob frame[%d] = %s, want %s (all: %v)", i, kinds[i], want, kinds)
		}
	}
	if alice.count(model.EventProblemAssigned) != 1 || alice.count(model.EventGameStart) != 1 {
		t.Errorf("alice missing deal frames: %v", alice.kinds())
	}

	ev, ok := bob.last(model.EventProblemAssigned)
	if !ok {
		t.Fatal("bob never got problem_assigned")
	}
	assigned := ev.Data.(model.ProblemAssigned)
	if assigned.Problem.ID != "two-sum" {
		t.Errorf("assigned problem = %s, want two-sum", assigned.Problem.ID)
	}

	problems.mu.Lock()
	defer problems.mu.Unlock()
	if len(problems.excludes) != 1 {
		t.Fatalf("Choose called %d times, want 1", len(problems.excludes))
	}
	if _, ok := problems.excludes[0]["old-problem"]; !ok {
		t.Error("recent problem history not passed to Choose")
	}
}

func TestWinnerDecision(t *testing.T) {
	reg, _, scorer := newTestRegistry(t, nil)
	scorer.changes = map[string]model.RatingChange{
		"alice": {OldRating: 1200, NewRating: 1216, Change: 16},
		"bob":   {OldRating: 1200, NewRating: 1184, Change: -16},
	}
	rm, alice, bob := playingRoom(t, reg, "SWIFT-CODER-1111")

	rm.submissionJudged(passedResult("alice"))
	waitPhase(t, rm, PhaseEnded)

	for name, p := range map[string]*fakePeer{"alice": alice, "bob": bob} {
		waitFor(t, name+" game_over", func() bool { return p.count(model.EventGameOver) == 1 })
		if p.count(model.EventSubmissionResult) != 1 {
			t.Errorf("%s submission_result count = %d, want 1", name, p.count(model.EventSubmissionResult))
		}
		ev, _ := p.last(model.EventGameOver)
		over := ev.Data.(model.GameOver)
		if over.Winner == nil || *over.Winner != "alice" {
			t.Fatalf("%s saw winner %v, want alice", name, over.Winner)
		}
		if over.RatingChanges["alice"].Change != 16 || over.RatingChanges["bob"].Change != -16 {
			t.Errorf("%s rating changes = %v", name, over.RatingChanges)
		}
		if over.ProblemID != "two-sum" || over.Difficulty != "easy" {
			t.Errorf("%s game_over problem = %s/%s", name, over.ProblemID, over.Difficulty)
		}
	}

	outcomes := scorer.recorded()
	if len(outcomes) != 1 {
		t.Fatalf("RecordGame called %d times, want 1", len(outcomes))
	}
	out := outcomes[0]
	if out.Players[0].Username != "alice" || out.Players[0].Placement != 1 {
		t.Errorf("winner outcome = %+v", out.Players[0])
	}
	if out.Players[1].Username != "bob" || out.Players[1].Placement != 2 {
		t.Errorf("loser outcome = %+v", out.Players[1])
	}
	if out.SolveTimeMs < 0 {
		t.Errorf("SolveTimeMs = %d", out.SolveTimeMs)
	}

	// A second passing verdict after the race only reaches its submitter.
	rm.submissionJudged(passedResult("bob"))
	waitFor(t, "bob straggler result", func() bool { return bob.count(model.EventSubmissionResult) == 2 })
	if alice.count(model.EventSubmissionResult) != 1 {
		t.Errorf("alice got the straggler result too")
	}
	if alice.count(model.EventGameOver) != 1 || bob.count(model.EventGameOver) != 1 {
		t.Errorf("game_over repeated: alice=%d bob=%d",
			alice.count(model.EventGameOver), bob.count(model.EventGameOver))
	}
	if len(scorer.recorded()) != 1 {
		t.Errorf("RecordGame called again for straggler")
	}
}

func TestFailedSubmissionReachesSubmitterOnly(t *testing.T) {
	reg, _, scorer := newTestRegistry(t, nil)
	rm, alice, bob := playingRoom(t, reg, "SWIFT-CODER-2222")

	res := passedResult("bob")
	res.Passed = false
	res.PassedTests = 0
	rm.submissionJudged(res)

	waitFor(t, "bob result", func() bool { return bob.count(model.EventSubmissionResult) == 1 })
	if alice.count(model.EventSubmissionResult) != 0 {
		t.Error("failed result leaked to alice")
	}
	if got := rm.Status().Phase; got != PhasePlaying {
		t.Errorf("phase = %v, want playing", got)
	}
	if len(scorer.recorded()) != 0 {
		t.Error("failed submission recorded a game")
	}
}

func TestLateJoinerRejected(t *testing.T) {
	reg, _, _ := newTestRegistry(t, nil)
	rm, _, _ := playingRoom(t, reg, "SWIFT-CODER-3333")

	p := &fakePeer{}
	reply := rm.join(&client{sock: p, username: "charlie"})
	if !appErr.Is(reply.err, appErr.RoomFull) {
		t.Fatalf("join err = %v, want RoomFull", reply.err)
	}
	waitFor(t, "rejection frame", func() bool { return p.isClosed() })
	if p.count(model.EventRoomFull) != 1 {
		t.Errorf("charlie frames = %v, want room_full", p.kinds())
	}

	// The same client can still watch.
	sp, _ := joinSpectator(t, rm)
	ev, ok := sp.last(model.EventSpectateInit)
	if !ok {
		t.Fatal("spectator never got spectate_init")
	}
	init := ev.Data.(model.SpectateInit)
	if !init.GameStarted || init.GameEnded {
		t.Errorf("spectate_init started=%v ended=%v", init.GameStarted, init.GameEnded)
	}
	if len(init.Players) != 2 {
		t.Errorf("spectate_init players = %v", init.Players)
	}
	if init.Problem == nil || init.Problem.ID != "two-sum" {
		t.Errorf("spectate_init problem = %+v", init.Problem)
	}
}

func TestDuplicateUsernameDemotedToSpectator(t *testing.T) {
	reg, _, _ := newTestRegistry(t, nil)
	rm := reg.Ensure("SWIFT-CODER-4444", problemmodel.DifficultyAny, 2, model.ModeCasual)
	joinPlayer(t, rm, "alice")

	p := &fakePeer{}
	reply := rm.join(&client{sock: p, username: "alice"})
	if reply.err != nil {
		t.Fatalf("duplicate join: %v", reply.err)
	}
	if !reply.spectator {
		t.Fatal("duplicate username admitted as participant")
	}
	if p.count(model.EventError) != 1 || p.count(model.EventSpectateInit) != 1 {
		t.Errorf("duplicate frames = %v", p.kinds())
	}

	waitFor(t, "status update", func() bool {
		st := rm.Status()
		return st.PlayerCount == 1 && st.SpectatorCount == 1
	})
}

func TestRankedJoinRequiresAccount(t *testing.T) {
	reg, _, _ := newTestRegistry(t, nil)
	rm := reg.Ensure("SHARP-NINJA-5555", problemmodel.DifficultyMedium, 2, model.ModeRanked)

	guest := &fakePeer{}
	reply := rm.join(&client{sock: guest, username: "drifter"})
	if !appErr.Is(reply.err, appErr.RankedRequiresAuth) {
		t.Fatalf("guest join err = %v, want RankedRequiresAuth", reply.err)
	}
	waitFor(t, "guest closed", guest.isClosed)

	member := &fakePeer{}
	reply = rm.join(&client{sock: member, username: "alice", userID: "11111111-1111-1111-1111-111111111111"})
	if reply.err != nil {
		t.Fatalf("account join: %v", reply.err)
	}
}

func TestCodeChangeRelay(t *testing.T) {
	reg, _, _ := newTestRegistry(t, nil)
	rm := reg.Ensure("QUICK-HACKER-6666", problemmodel.DifficultyAny, 2, model.ModeCasual)
	alice, aliceCl := joinPlayer(t, rm, "alice")
	bob, _ := joinPlayer(t, rm, "bob")
	spect, _ := joinSpectator(t, rm)
	waitPhase(t, rm, PhasePlaying)

	// The payload claims to be bob; the room must trust the socket, not
	// the payload.
	rm.relayCodeChange(aliceCl, model.CodeChange{Username: "bob", Code: "x = 1", Timestamp: 42})

	waitFor(t, "bob relay", func() bool { return bob.count(model.EventCodeChange) == 1 })
	ev, _ := bob.last(model.EventCodeChange)
	change := ev.Data.(model.CodeChange)
	if change.Username != "alice" || change.Code != "x = 1" || change.Timestamp != 42 {
		t.Errorf("relayed change = %+v", change)
	}
	if alice.count(model.EventCodeChange) != 0 {
		t.Error("sender received its own code_change echo")
	}
	waitFor(t, "spectator relay", func() bool { return spect.count(model.EventCodeChange) == 1 })

	// Later spectators see the latest snapshot.
	late, _ := joinSpectator(t, rm)
	ev, ok := late.last(model.EventSpectateInit)
	if !ok {
		t.Fatal("late spectator missing spectate_init")
	}
	if got := ev.Data.(model.SpectateInit).PlayerCodes["alice"]; got != "x = 1" {
		t.Errorf("player_codes[alice] = %q, want %q", got, "x = 1")
	}
}

func TestAbandonmentEndsWithoutScoring(t *testing.T) {
	reg, _, scorer := newTestRegistry(t, nil)
	rm := reg.Ensure("BRAVE-WIZARD-7777", problemmodel.DifficultyAny, 2, model.ModeCasual)
	_, aliceCl := joinPlayer(t, rm, "alice")
	_, bobCl := joinPlayer(t, rm, "bob")
	spect, _ := joinSpectator(t, rm)
	waitPhase(t, rm, PhasePlaying)

	rm.leave(aliceCl)
	rm.leave(bobCl)
	waitPhase(t, rm, PhaseEnded)

	waitFor(t, "spectator game_over", func() bool { return spect.count(model.EventGameOver) == 1 })
	ev, _ := spect.last(model.EventGameOver)
	over := ev.Data.(model.GameOver)
	if over.Winner != nil {
		t.Errorf("abandoned winner = %v, want nil", *over.Winner)
	}
	if len(scorer.recorded()) != 0 {
		t.Error("abandoned game was scored")
	}
	if spect.count(model.EventUserLeft) != 2 {
		t.Errorf("user_left count = %d, want 2", spect.count(model.EventUserLeft))
	}
}

func TestLeaveWhileWaitingFreesSeat(t *testing.T) {
	reg, _, _ := newTestRegistry(t, nil)
	rm := reg.Ensure("SMART-GENIUS-8888", problemmodel.DifficultyAny, 2, model.ModeCasual)
	_, aliceCl := joinPlayer(t, rm, "alice")
	rm.leave(aliceCl)
	waitFor(t, "seat freed", func() bool { return rm.Status().PlayerCount == 0 })
	if got := rm.Status().Phase; got != PhaseWaiting {
		t.Fatalf("phase after lone leave = %v, want ended-free room to stay joinable", got)
	}

	// Alice's name is free again for someone else.
	joinPlayer(t, rm, "alice")
	joinPlayer(t, rm, "bob")
	waitPhase(t, rm, PhasePlaying)
	st := rm.Status()
	if len(st.Players) != 2 {
		t.Errorf("players = %v, want 2 live entries", st.Players)
	}
}

func TestProblemChoiceFailureEndsRoom(t *testing.T) {
	reg, problems, _ := newTestRegistry(t, nil)
	problems.err = appErr.New(appErr.ProblemNotFound)

	rm := reg.Ensure("FAST-MASTER-9999", problemmodel.DifficultyHard, 2, model.ModeCasual)
	alice, _ := joinPlayer(t, rm, "alice")
	joinPlayer(t, rm, "bob")

	waitPhase(t, rm, PhaseEnded)
	if alice.count(model.EventError) != 1 || alice.count(model.EventGameOver) != 1 {
		t.Errorf("alice frames = %v, want error then game_over", alice.kinds())
	}
	ev, _ := alice.last(model.EventGameOver)
	if over := ev.Data.(model.GameOver); over.Winner != nil {
		t.Errorf("winner = %v, want nil", *over.Winner)
	}
}

func TestCanSubmitGate(t *testing.T) {
	reg, _, _ := newTestRegistry(t, nil)
	playingRoom(t, reg, "COOL-CHAMP-1212")
	waiting := reg.Ensure("EPIC-HERO-2323", problemmodel.DifficultyAny, 2, model.ModeCasual)
	joinPlayer(t, waiting, "carol")

	tests := []struct {
		name     string
		room     string
		username string
		wantCode appErr.ErrorCode
	}{
		{"unknown room", "NO-SUCH-0000", "alice", appErr.RoomNotFound},
		{"waiting room", "EPIC-HERO-2323", "carol", appErr.RoomNotPlaying},
		{"not a player", "COOL-CHAMP-1212", "mallory", appErr.NotAPlayer},
		{"player in playing room", "COOL-CHAMP-1212", "alice", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := reg.CanSubmit(tt.room, tt.username)
			if tt.wantCode == 0 {
				if err != nil {
					t.Fatalf("CanSubmit: %v", err)
				}
				return
			}
			if !appErr.Is(err, tt.wantCode) {
				t.Fatalf("CanSubmit err = %v, want code %d", err, tt.wantCode)
			}
		})
	}
}

func TestLiveGamesListsStartedRooms(t *testing.T) {
	reg, _, _ := newTestRegistry(t, nil)

	idle := reg.Ensure("SWIFT-NINJA-1010", problemmodel.DifficultyAny, 2, model.ModeCasual)
	joinPlayer(t, idle, "solo")

	rm, _, _ := playingRoom(t, reg, "SHARP-CODER-2020")
	done, _, _ := playingRoom(t, reg, "QUICK-EPIC-3030")
	done.submissionJudged(passedResult("alice"))
	waitPhase(t, done, PhaseEnded)

	games := reg.LiveGames()
	if games.Total != 2 {
		t.Fatalf("Total = %d, want 2 (got %+v)", games.Total, games.LiveGames)
	}
	byID := map[string]model.LiveGame{}
	for _, g := range games.LiveGames {
		byID[g.RoomID] = g
	}
	if _, ok := byID["SWIFT-NINJA-1010"]; ok {
		t.Error("waiting room listed as live")
	}
	if g := byID[rm.code]; g.GameEnded || g.PlayerCount != 2 || g.Problem == nil {
		t.Errorf("playing row = %+v", g)
	}
	if g := byID[done.code]; !g.GameEnded {
		t.Errorf("ended row = %+v", g)
	}
}

func TestGameElapsedCountsFromStart(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name string
		st   Status
		want time.Duration
	}{
		{
			"playing room ignores waiting time",
			Status{Phase: PhasePlaying, CreatedAt: now.Add(-10 * time.Minute), StartedAt: now.Add(-30 * time.Second)},
			30 * time.Second,
		},
		{
			"ended room keeps the game clock",
			Status{Phase: PhaseEnded, CreatedAt: now.Add(-time.Hour), StartedAt: now.Add(-90 * time.Second)},
			90 * time.Second,
		},
		{
			"countdown counts from creation",
			Status{Phase: PhaseCountdown, CreatedAt: now.Add(-45 * time.Second)},
			45 * time.Second,
		},
		{
			"missing start time falls back to creation",
			Status{Phase: PhasePlaying, CreatedAt: now.Add(-2 * time.Minute)},
			2 * time.Minute,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := gameElapsed(tt.st, now); got != tt.want {
				t.Errorf("gameElapsed = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRoomReleasedAfterGrace(t *testing.T) {
	reg, _, _ := newTestRegistry(t, func(cfg *Config) {
		cfg.EndedGrace = 20 * time.Millisecond
	})
	rm, alice, _ := playingRoom(t, reg, "FAST-HERO-4040")
	rm.submissionJudged(passedResult("bob"))
	waitPhase(t, rm, PhaseEnded)

	waitFor(t, "room release", func() bool {
		_, ok := reg.Get("FAST-HERO-4040")
		return !ok
	})
	waitFor(t, "sockets closed", alice.isClosed)

	// The code is free for a fresh battle.
	again := reg.Ensure("FAST-HERO-4040", problemmodel.DifficultyAny, 2, model.ModeCasual)
	if got := again.Status().Phase; got != PhaseWaiting {
		t.Errorf("reused room phase = %v, want waiting", got)
	}
}

func TestRegistryEnsureKeepsFirstParameters(t *testing.T) {
	reg, _, _ := newTestRegistry(t, nil)
	first := reg.Ensure("EPIC-WIZARD-5050", problemmodel.DifficultyHard, 3, model.ModeCasual)
	second := reg.Ensure("EPIC-WIZARD-5050", problemmodel.DifficultyEasy, 2, model.ModeRanked)
	if first != second {
		t.Fatal("Ensure created a second room for the same code")
	}
	st := second.Status()
	if st.Required != 3 || st.Mode != model.ModeCasual {
		t.Errorf("room kept required=%d mode=%s, want 3/casual", st.Required, st.Mode)
	}
}

func TestRegistryCloseShutsRooms(t *testing.T) {
	reg, _, _ := newTestRegistry(t, nil)
	rm := reg.Ensure("COOL-GENIUS-6060", problemmodel.DifficultyAny, 2, model.ModeCasual)
	alice, _ := joinPlayer(t, rm, "alice")

	reg.Close()
	waitFor(t, "socket closed", alice.isClosed)
	waitFor(t, "registry emptied", func() bool { return reg.Count() == 0 })
}
