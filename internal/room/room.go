// Package room owns the battle rooms: admission, the per-room state
// machine, event fanout and the winner decision. Every room runs one
// goroutine that consumes a command channel; all transitions and
// broadcasts happen on that goroutine, so room state never needs a lock
// and every socket sees events in the same order.
package room

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	problemmodel "bitbattle/internal/problem/model"
	"bitbattle/internal/room/model"
	submissionmodel "bitbattle/internal/submission/model"
	appErr "bitbattle/pkg/errors"
	"bitbattle/pkg/utils/logger"
)

const (
	// cmdBuf sizes the per-room command channel. Producers (read loops,
	// the submit pipeline, timers) never block for long at this depth.
	cmdBuf = 256

	defaultCountdown    = 3 * time.Second
	defaultEndedGrace   = 60 * time.Second
	defaultScoreTimeout = 5 * time.Second
)

// Phase is the room lifecycle stage. It only ever moves forward.
type Phase int

const (
	PhaseWaiting Phase = iota
	PhaseCountdown
	PhasePlaying
	PhaseEnded
)

func (p Phase) String() string {
	switch p {
	case PhaseWaiting:
		return "waiting"
	case PhaseCountdown:
		return "countdown"
	case PhasePlaying:
		return "playing"
	case PhaseEnded:
		return "ended"
	default:
		return "unknown"
	}
}

// ProblemSource picks the battle problem once a room fills.
type ProblemSource interface {
	Choose(ctx context.Context, difficulty problemmodel.Difficulty, exclude map[string]struct{}) (problemmodel.Problem, error)
}

// Scorer persists finished games and remembers what each player solved
// recently, so a rematch draws a fresh problem.
type Scorer interface {
	RecordGame(ctx context.Context, outcome model.GameOutcome) (map[string]model.RatingChange, error)
	RecentProblems(usernames []string) map[string]struct{}
}

// client is one admitted connection.
type client struct {
	sock      peer
	username  string
	userID    string // empty for guests
	spectator bool
}

type cmdKind int

const (
	cmdJoin cmdKind = iota
	cmdSpectate
	cmdLeave
	cmdCodeChange
	cmdResult
	cmdCountdownDone
	cmdShutdown
)

type joinReply struct {
	spectator bool
	err       error
}

type command struct {
	kind   cmdKind
	client *client
	change model.CodeChange
	result submissionmodel.SubmissionResult
	reply  chan joinReply
}

type options struct {
	problems     ProblemSource
	scorer       Scorer
	countdown    time.Duration
	grace        time.Duration
	scoreTimeout time.Duration
	onRelease    func(*Room)
}

// Status is the externally visible slice of room state, refreshed by the
// room goroutine after every mutation. The submit gate and the live-rooms
// listing read it without touching actor state.
type Status struct {
	Code           string
	Phase          Phase
	Mode           model.GameMode
	Players        []string
	PlayerCount    int
	Required       int
	SpectatorCount int
	Problem        *model.LiveProblem
	Winner         *string
	CreatedAt      time.Time
	StartedAt      time.Time
}

// Room is a single battle. External callers reach it only through the
// exported methods, which post commands to the room goroutine.
type Room struct {
	code       string
	difficulty problemmodel.Difficulty
	required   int
	mode       model.GameMode
	createdAt  time.Time

	opt  options
	cmds chan command
	done chan struct{}

	mu     sync.RWMutex
	status Status

	// Actor state below. Only run touches these fields.
	phase        Phase
	participants map[string]*client
	spectators   map[*client]struct{}
	roster       []string
	playerCodes  map[string]string
	lastResults  map[string]submissionmodel.SubmissionResult
	problem      *problemmodel.Problem
	winner       *string
	startedAt    time.Time
	releaseOnce  sync.Once
}

func newRoom(code string, difficulty problemmodel.Difficulty, required int, mode model.GameMode, opt options) *Room {
	r := &Room{
		code:         code,
		difficulty:   difficulty,
		required:     required,
		mode:         mode,
		createdAt:    time.Now(),
		opt:          opt,
		cmds:         make(chan command, cmdBuf),
		done:         make(chan struct{}),
		participants: make(map[string]*client),
		spectators:   make(map[*client]struct{}),
		playerCodes:  make(map[string]string),
		lastResults:  make(map[string]submissionmodel.SubmissionResult),
	}
	r.publish()
	go r.run()
	return r
}

// Code returns the room code.
func (r *Room) Code() string { return r.code }

// Mode returns the play mode fixed at creation.
func (r *Room) Mode() model.GameMode { return r.mode }

// Status returns the latest published snapshot.
func (r *Room) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status
}

// post hands a command to the room goroutine. It reports false when the
// room has already shut down.
func (r *Room) post(cmd command) bool {
	select {
	case r.cmds <- cmd:
		return true
	case <-r.done:
		return false
	}
}

// join admits conn as a participant. The reply tells the caller whether
// the connection ended up a participant, was demoted to spectator, or was
// rejected (the socket has the closing frame queued in that case).
func (r *Room) join(c *client) joinReply {
	return r.admit(command{kind: cmdJoin, client: c})
}

// spectate admits conn as a spectator.
func (r *Room) spectate(c *client) joinReply {
	return r.admit(command{kind: cmdSpectate, client: c})
}

// admit posts an admission command and waits for the room goroutine's
// answer. A shutdown racing the admission resolves to RoomClosed even if
// the command is still sitting in the buffer, so no caller ever hangs.
func (r *Room) admit(cmd command) joinReply {
	reply := make(chan joinReply, 1)
	cmd.reply = reply
	if r.post(cmd) {
		select {
		case rep := <-reply:
			return rep
		case <-r.done:
		}
	}
	cmd.client.sock.closeAfter(errorFrame(appErr.RoomClosed, "Room has been closed"))
	return joinReply{err: appErr.New(appErr.RoomClosed)}
}

// leave unregisters a connection. Safe to call for clients that were
// never admitted; the room ignores unknown leavers.
func (r *Room) leave(c *client) {
	r.post(command{kind: cmdLeave, client: c})
}

// relayCodeChange posts an editor update for fanout.
func (r *Room) relayCodeChange(c *client, change model.CodeChange) {
	r.post(command{kind: cmdCodeChange, client: c, change: change})
}

// submissionJudged posts a pipeline verdict. The winner decision happens
// on the room goroutine, so two racing passes resolve deterministically
// to whichever command is consumed first.
func (r *Room) submissionJudged(result submissionmodel.SubmissionResult) {
	r.post(command{kind: cmdResult, result: result})
}

// shutdown releases the room immediately, closing every socket.
func (r *Room) shutdown() {
	r.post(command{kind: cmdShutdown})
}

func (r *Room) run() {
	for cmd := range r.cmds {
		switch cmd.kind {
		case cmdJoin:
			r.handleJoin(cmd)
		case cmdSpectate:
			r.handleSpectate(cmd)
		case cmdLeave:
			r.handleLeave(cmd.client)
		case cmdCodeChange:
			r.handleCodeChange(cmd.client, cmd.change)
		case cmdResult:
			r.handleResult(cmd.result)
		case cmdCountdownDone:
			r.handleCountdownDone()
		case cmdShutdown:
			r.teardown()
			return
		}
		r.publish()
	}
}

func (r *Room) handleJoin(cmd command) {
	c := cmd.client
	if r.mode == model.ModeRanked && c.userID == "" {
		cmd.reply <- joinReply{err: appErr.New(appErr.RankedRequiresAuth)}
		c.sock.closeAfter(errorFrame(appErr.RankedRequiresAuth, "Ranked games require a signed-in account"))
		return
	}
	if r.phase != PhaseWaiting || len(r.participants) >= r.required {
		cmd.reply <- joinReply{err: appErr.New(appErr.RoomFull)}
		c.sock.closeAfter(model.Event{Type: model.EventRoomFull, Data: model.RoomFull{
			Message:  "This room is full. The game has already started.",
			Current:  len(r.participants),
			Required: r.required,
		}})
		return
	}
	if _, taken := r.participants[c.username]; taken {
		// Someone is already playing under this name. Keep the connection
		// but demote it to the spectator stream.
		c.sock.enqueue(errorFrame(appErr.DuplicateUsername, "Username already taken in this room, joining as spectator"))
		r.admitSpectator(c)
		cmd.reply <- joinReply{spectator: true}
		return
	}

	now := time.Now().Unix()
	// Catch the new socket up on who is already here, then announce it.
	for _, name := range r.roster {
		c.sock.enqueue(model.Event{Type: model.EventUserJoined, Data: model.UserJoined{Username: name, Timestamp: now}})
	}
	r.participants[c.username] = c
	r.roster = append(r.roster, c.username)
	r.broadcast(model.Event{Type: model.EventUserJoined, Data: model.UserJoined{Username: c.username, Timestamp: now}})
	r.broadcastPlayerCount()
	cmd.reply <- joinReply{}
	logger.Info(context.Background(), "player joined room",
		zap.String("room", r.code),
		zap.String("username", c.username),
		zap.Int("players", len(r.participants)),
		zap.Int("required", r.required))

	if len(r.participants) == r.required {
		r.startGame()
	}
}

func (r *Room) handleSpectate(cmd command) {
	r.admitSpectator(cmd.client)
	cmd.reply <- joinReply{spectator: true}
}

func (r *Room) admitSpectator(c *client) {
	c.spectator = true
	r.spectators[c] = struct{}{}
	c.sock.enqueue(model.Event{Type: model.EventSpectateInit, Data: r.spectateSnapshot()})
	r.broadcastSpectatorCount()
}

func (r *Room) spectateSnapshot() model.SpectateInit {
	init := model.SpectateInit{
		RoomID:         r.code,
		Players:        append([]string(nil), r.roster...),
		GameMode:       r.mode,
		GameStarted:    r.phase >= PhaseCountdown,
		GameEnded:      r.phase == PhaseEnded,
		Winner:         r.winner,
		PlayerCodes:    make(map[string]string, len(r.playerCodes)),
		SpectatorCount: len(r.spectators),
	}
	for name, code := range r.playerCodes {
		init.PlayerCodes[name] = code
	}
	if r.problem != nil {
		init.Problem = &model.SpectateProblem{
			ID:          r.problem.ID,
			Title:       r.problem.Title,
			Description: r.problem.Description,
			Difficulty:  r.problem.Difficulty,
			Examples:    r.problem.Examples,
		}
	}
	return init
}

func (r *Room) handleLeave(c *client) {
	if c.spectator {
		if _, ok := r.spectators[c]; !ok {
			return
		}
		delete(r.spectators, c)
		c.sock.shutdown()
		r.broadcastSpectatorCount()
		return
	}

	current, ok := r.participants[c.username]
	if !ok || current != c {
		return
	}
	delete(r.participants, c.username)
	c.sock.shutdown()
	if r.phase == PhaseWaiting {
		// Seat opens up again before the game starts.
		r.roster = removeName(r.roster, c.username)
		delete(r.playerCodes, c.username)
	}
	r.broadcast(model.Event{Type: model.EventUserLeft, Data: model.UserLeft{Username: c.username}})
	r.broadcastPlayerCount()
	logger.Info(context.Background(), "player left room",
		zap.String("room", r.code),
		zap.String("username", c.username),
		zap.Int("players", len(r.participants)))

	if len(r.participants) == 0 && r.phase != PhaseEnded {
		r.endAbandoned()
	}
}

func (r *Room) handleCodeChange(c *client, change model.CodeChange) {
	if c.spectator || r.phase == PhaseEnded {
		return
	}
	if _, ok := r.participants[c.username]; !ok {
		return
	}
	// The sender's identity is whatever it was admitted under; the payload
	// field cannot impersonate another player.
	change.Username = c.username
	r.playerCodes[c.username] = change.Code
	ev := model.Event{Type: model.EventCodeChange, Data: change}
	for name, p := range r.participants {
		if name == c.username {
			continue
		}
		p.sock.enqueue(ev)
	}
	for s := range r.spectators {
		s.sock.enqueue(ev)
	}
}

func (r *Room) handleResult(res submissionmodel.SubmissionResult) {
	if r.phase != PhaseEnded {
		r.lastResults[res.Username] = res
	}
	ev := model.Event{Type: model.EventSubmissionResult, Data: model.SubmissionResultPayload{Result: res}}

	if !res.Passed || r.phase != PhasePlaying || r.winner != nil {
		// Failed runs and post-game stragglers only concern the submitter.
		if p, ok := r.participants[res.Username]; ok {
			p.sock.enqueue(ev)
		}
		return
	}

	winner := res.Username
	r.winner = &winner
	r.phase = PhaseEnded
	solveTimeMs := time.Since(r.startedAt).Milliseconds()

	outcome := r.buildOutcome(winner, solveTimeMs)
	ctx, cancel := context.WithTimeout(context.Background(), r.opt.scoreTimeout)
	changes, err := r.opt.scorer.RecordGame(ctx, outcome)
	cancel()
	if err != nil {
		// The game still ends for everyone watching; ratings just read as
		// unchanged until the retry path lands the write.
		logger.Error(ctx, "failed to record game",
			zap.String("room", r.code),
			zap.String("winner", winner),
			zap.Error(err))
		changes = zeroRatingChanges(r.roster)
	}

	r.broadcast(ev)
	r.broadcast(model.Event{Type: model.EventGameOver, Data: model.GameOver{
		Winner:        &winner,
		SolveTimeMs:   solveTimeMs,
		ProblemID:     r.problem.ID,
		Difficulty:    string(r.problem.Difficulty),
		GameMode:      r.mode,
		RatingChanges: changes,
		Players:       append([]string(nil), r.roster...),
	}})
	logger.Info(context.Background(), "game over",
		zap.String("room", r.code),
		zap.String("winner", winner),
		zap.Int64("solve_time_ms", solveTimeMs),
		zap.String("mode", string(r.mode)))
	r.scheduleRelease()
}

func (r *Room) handleCountdownDone() {
	if r.phase != PhaseCountdown {
		return
	}
	r.phase = PhasePlaying
	r.startedAt = time.Now()
	logger.Info(context.Background(), "game playing",
		zap.String("room", r.code),
		zap.Strings("players", r.roster))
}

// startGame moves Waiting to Countdown: pick the problem, deal it to the
// room, then let the countdown timer tick over into Playing.
func (r *Room) startGame() {
	exclude := r.opt.scorer.RecentProblems(r.roster)
	ctx, cancel := context.WithTimeout(context.Background(), r.opt.scoreTimeout)
	problem, err := r.opt.problems.Choose(ctx, r.difficulty, exclude)
	cancel()
	if err != nil {
		logger.Error(context.Background(), "no problem available for room",
			zap.String("room", r.code),
			zap.String("difficulty", string(r.difficulty)),
			zap.Error(err))
		r.broadcast(errorFrame(appErr.ProblemNotFound, "No problem available for this difficulty"))
		r.endAbandoned()
		return
	}
	r.problem = &problem
	r.phase = PhaseCountdown
	r.broadcast(model.Event{Type: model.EventProblemAssigned, Data: model.ProblemAssigned{Problem: problem.Client()}})
	r.broadcast(model.Event{Type: model.EventGameStart, Data: struct{}{}})
	logger.Info(context.Background(), "game starting",
		zap.String("room", r.code),
		zap.String("problem_id", problem.ID),
		zap.String("difficulty", string(problem.Difficulty)),
		zap.Strings("players", r.roster))
	time.AfterFunc(r.opt.countdown, func() {
		r.post(command{kind: cmdCountdownDone})
	})
}

// endAbandoned terminates a room that lost its players (or never got a
// problem). Nobody wins and nothing is persisted; spectators still get a
// terminal frame so they exit cleanly.
func (r *Room) endAbandoned() {
	r.phase = PhaseEnded
	over := model.GameOver{
		Winner:        nil,
		GameMode:      r.mode,
		RatingChanges: map[string]model.RatingChange{},
		Players:       append([]string(nil), r.roster...),
	}
	if r.problem != nil {
		over.ProblemID = r.problem.ID
		over.Difficulty = string(r.problem.Difficulty)
	}
	r.broadcast(model.Event{Type: model.EventGameOver, Data: over})
	logger.Info(context.Background(), "room abandoned",
		zap.String("room", r.code),
		zap.String("phase", r.phase.String()))
	r.scheduleRelease()
}

func (r *Room) buildOutcome(winner string, solveTimeMs int64) model.GameOutcome {
	players := make([]model.PlayerOutcome, 0, len(r.roster))
	players = append(players, r.playerOutcome(winner, 1))
	place := 2
	for _, name := range r.roster {
		if name == winner {
			continue
		}
		players = append(players, r.playerOutcome(name, place))
		place++
	}
	return model.GameOutcome{
		RoomID:      r.code,
		ProblemID:   r.problem.ID,
		Difficulty:  string(r.problem.Difficulty),
		Mode:        r.mode,
		SolveTimeMs: solveTimeMs,
		Players:     players,
	}
}

func (r *Room) playerOutcome(name string, placement int) model.PlayerOutcome {
	out := model.PlayerOutcome{Username: name, Placement: placement}
	if c, ok := r.participants[name]; ok {
		out.UserID = c.userID
	}
	if res, ok := r.lastResults[name]; ok {
		out.PassedTests = res.PassedTests
		out.TotalTests = res.TotalTests
		out.Language = res.Language
	}
	return out
}

// scheduleRelease hands the room back to the registry after a grace
// window, leaving time for late results and for spectators to read the
// final frames.
func (r *Room) scheduleRelease() {
	r.releaseOnce.Do(func() {
		time.AfterFunc(r.opt.grace, func() {
			r.post(command{kind: cmdShutdown})
		})
	})
}

func (r *Room) teardown() {
	r.phase = PhaseEnded
	for _, c := range r.participants {
		c.sock.shutdown()
	}
	for c := range r.spectators {
		c.sock.shutdown()
	}
	r.participants = map[string]*client{}
	r.spectators = map[*client]struct{}{}
	r.publish()
	close(r.done)
	if r.opt.onRelease != nil {
		r.opt.onRelease(r)
	}
}

// broadcast fans one frame out to every participant and spectator.
func (r *Room) broadcast(ev model.Event) {
	for _, c := range r.participants {
		c.sock.enqueue(ev)
	}
	for c := range r.spectators {
		c.sock.enqueue(ev)
	}
}

func (r *Room) broadcastPlayerCount() {
	r.broadcast(model.Event{Type: model.EventPlayerCount, Data: model.PlayerCount{
		Current:  len(r.participants),
		Required: r.required,
	}})
}

func (r *Room) broadcastSpectatorCount() {
	r.broadcast(model.Event{Type: model.EventSpectatorCount, Data: model.SpectatorCount{
		Count: len(r.spectators),
	}})
}

// publish refreshes the shared snapshot after actor-state mutations.
func (r *Room) publish() {
	st := Status{
		Code:           r.code,
		Phase:          r.phase,
		Mode:           r.mode,
		Players:        append([]string(nil), r.roster...),
		PlayerCount:    len(r.participants),
		Required:       r.required,
		SpectatorCount: len(r.spectators),
		Winner:         r.winner,
		CreatedAt:      r.createdAt,
		StartedAt:      r.startedAt,
	}
	if r.problem != nil {
		st.Problem = &model.LiveProblem{Title: r.problem.Title, Difficulty: r.problem.Difficulty}
	}
	r.mu.Lock()
	r.status = st
	r.mu.Unlock()
}

func errorFrame(code appErr.ErrorCode, message string) model.Event {
	return model.Event{Type: model.EventError, Data: model.ErrorPayload{
		Message: message,
		Code:    int(code),
	}}
}

func zeroRatingChanges(names []string) map[string]model.RatingChange {
	changes := make(map[string]model.RatingChange, len(names))
	for _, name := range names {
		changes[name] = model.RatingChange{}
	}
	return changes
}

func removeName(names []string, name string) []string {
	out := names[:0]
	for _, n := range names {
		if n != name {
			out = append(out, n)
		}
	}
	return out
}
