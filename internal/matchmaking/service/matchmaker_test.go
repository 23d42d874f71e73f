package service

import (
	"regexp"
	"sync"
	"testing"
	"time"

	"bitbattle/internal/matchmaking/model"
	problemmodel "bitbattle/internal/problem/model"
	roommodel "bitbattle/internal/room/model"
)

type openedRoom struct {
	code       string
	difficulty problemmodel.Difficulty
	required   int
	mode       roommodel.GameMode
}

type fakeOpener struct {
	mu     sync.Mutex
	opened []openedRoom
}

func (f *fakeOpener) Open(code string, difficulty problemmodel.Difficulty, required int, mode roommodel.GameMode) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened = append(f.opened, openedRoom{code, difficulty, required, mode})
}

func (f *fakeOpener) rooms() []openedRoom {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]openedRoom(nil), f.opened...)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestMatchmaker(t *testing.T) (*Matchmaker, *fakeOpener, *testClock) {
	t.Helper()
	opener := &fakeOpener{}
	clock := newTestClock()
	m := NewMatchmaker(Config{Rooms: opener})
	m.now = clock.Now
	return m, opener, clock
}

func entry(conn, username string, difficulty problemmodel.Difficulty, mode roommodel.GameMode) model.Entry {
	return model.Entry{
		ConnectionID: conn,
		Username:     username,
		Rating:       1200,
		Difficulty:   difficulty,
		Mode:         mode,
	}
}

func TestJoinPairsCompatiblePlayers(t *testing.T) {
	m, opener, _ := newTestMatchmaker(t)

	size := m.Join(entry("c1", "alice", problemmodel.DifficultyEasy, roommodel.ModeCasual))
	if size != 1 {
		t.Fatalf("queue size after first join = %d, want 1", size)
	}
	m.Join(entry("c2", "bob", problemmodel.DifficultyEasy, roommodel.ModeCasual))

	rooms := opener.rooms()
	if len(rooms) != 1 {
		t.Fatalf("opened %d rooms, want 1", len(rooms))
	}
	if rooms[0].difficulty != problemmodel.DifficultyEasy {
		t.Errorf("room difficulty = %q, want easy", rooms[0].difficulty)
	}
	if rooms[0].required != 2 {
		t.Errorf("room required = %d, want 2", rooms[0].required)
	}
	if rooms[0].mode != roommodel.ModeCasual {
		t.Errorf("room mode = %q, want casual", rooms[0].mode)
	}
	if m.QueueSize() != 0 {
		t.Errorf("queue size after match = %d, want 0", m.QueueSize())
	}
}

func TestStatusDeliversMatchExactlyOnce(t *testing.T) {
	m, opener, _ := newTestMatchmaker(t)

	m.Join(entry("c1", "alice", problemmodel.DifficultyMedium, roommodel.ModeCasual))
	m.Join(entry("c2", "bob", problemmodel.DifficultyMedium, roommodel.ModeCasual))

	code := opener.rooms()[0].code

	st := m.Status("c1")
	if !st.MatchFound {
		t.Fatal("first poll after match: MatchFound = false")
	}
	if st.MatchInfo == nil {
		t.Fatal("MatchInfo missing on matched poll")
	}
	if st.MatchInfo.RoomCode != code {
		t.Errorf("room code = %q, want %q", st.MatchInfo.RoomCode, code)
	}
	if st.MatchInfo.Opponent != "bob" {
		t.Errorf("opponent = %q, want bob", st.MatchInfo.Opponent)
	}
	if st.MatchInfo.Difficulty != "medium" {
		t.Errorf("difficulty = %q, want medium", st.MatchInfo.Difficulty)
	}
	if st.InQueue {
		t.Error("matched player still reported in queue")
	}

	again := m.Status("c1")
	if again.MatchFound {
		t.Error("second poll repeated the match notification")
	}

	other := m.Status("c2")
	if !other.MatchFound || other.MatchInfo == nil || other.MatchInfo.Opponent != "alice" {
		t.Errorf("c2 status = %+v, want match against alice", other)
	}
}

func TestStatusReportsQueuePosition(t *testing.T) {
	m, _, clock := newTestMatchmaker(t)

	m.Join(entry("c1", "alice", problemmodel.DifficultyEasy, roommodel.ModeCasual))
	clock.Advance(time.Second)
	m.Join(entry("c2", "bob", problemmodel.DifficultyHard, roommodel.ModeCasual))
	clock.Advance(time.Second)
	m.Join(entry("c3", "carol", problemmodel.DifficultyHard, roommodel.ModeRanked))

	st := m.Status("c2")
	if !st.InQueue {
		t.Fatal("queued player reported out of queue")
	}
	if st.Position == nil || *st.Position != 1 {
		t.Errorf("position = %v, want 1", st.Position)
	}
	if st.QueueSize != 3 {
		t.Errorf("queue size = %d, want 3", st.QueueSize)
	}

	unknown := m.Status("nope")
	if unknown.InQueue || unknown.Position != nil || unknown.MatchFound {
		t.Errorf("unknown connection status = %+v, want empty", unknown)
	}
}

func TestModesNeverMix(t *testing.T) {
	m, opener, _ := newTestMatchmaker(t)

	m.Join(entry("c1", "alice", problemmodel.DifficultyEasy, roommodel.ModeCasual))
	m.Join(entry("c2", "bob", problemmodel.DifficultyEasy, roommodel.ModeRanked))

	if len(opener.rooms()) != 0 {
		t.Fatal("casual and ranked players were paired")
	}
	if m.QueueSize() != 2 {
		t.Errorf("queue size = %d, want 2", m.QueueSize())
	}
}

func TestDifficultiesMustOverlap(t *testing.T) {
	m, opener, _ := newTestMatchmaker(t)

	m.Join(entry("c1", "alice", problemmodel.DifficultyEasy, roommodel.ModeCasual))
	m.Join(entry("c2", "bob", problemmodel.DifficultyHard, roommodel.ModeCasual))
	if len(opener.rooms()) != 0 {
		t.Fatal("easy and hard players were paired")
	}

	m.Join(entry("c3", "carol", problemmodel.DifficultyAny, roommodel.ModeCasual))
	rooms := opener.rooms()
	if len(rooms) != 1 {
		t.Fatalf("opened %d rooms after wildcard join, want 1", len(rooms))
	}
	// Oldest waiter's concrete pick wins.
	if rooms[0].difficulty != problemmodel.DifficultyEasy {
		t.Errorf("difficulty = %q, want easy", rooms[0].difficulty)
	}
}

func TestTwoWildcardsSettleOnMedium(t *testing.T) {
	m, opener, _ := newTestMatchmaker(t)

	m.Join(entry("c1", "alice", problemmodel.DifficultyAny, roommodel.ModeCasual))
	m.Join(entry("c2", "bob", problemmodel.DifficultyAny, roommodel.ModeCasual))

	rooms := opener.rooms()
	if len(rooms) != 1 {
		t.Fatalf("opened %d rooms, want 1", len(rooms))
	}
	if rooms[0].difficulty != problemmodel.DifficultyMedium {
		t.Errorf("difficulty = %q, want medium", rooms[0].difficulty)
	}
}

func TestSameUsernameNeverSelfMatches(t *testing.T) {
	m, opener, _ := newTestMatchmaker(t)

	m.Join(entry("c1", "alice", problemmodel.DifficultyEasy, roommodel.ModeCasual))
	m.Join(entry("c2", "alice", problemmodel.DifficultyEasy, roommodel.ModeCasual))

	if len(opener.rooms()) != 0 {
		t.Fatal("two sessions of the same username were paired")
	}

	m.Join(entry("c3", "bob", problemmodel.DifficultyEasy, roommodel.ModeCasual))
	if len(opener.rooms()) != 1 {
		t.Fatalf("opened %d rooms, want 1 once a distinct player arrived", len(opener.rooms()))
	}
}

func TestRankedWindowWidensWithWait(t *testing.T) {
	m, opener, clock := newTestMatchmaker(t)

	wide := entry("c1", "alice", problemmodel.DifficultyMedium, roommodel.ModeRanked)
	wide.Rating = 1200
	far := entry("c2", "bob", problemmodel.DifficultyMedium, roommodel.ModeRanked)
	far.Rating = 1700

	m.Join(wide)
	m.Join(far)
	if len(opener.rooms()) != 0 {
		t.Fatal("500-point gap matched inside the base window")
	}

	// After the full wait the window opens to base+expansion.
	clock.Advance(defaultMaxWait)
	m.Match()
	if len(opener.rooms()) != 1 {
		t.Fatalf("opened %d rooms after window expansion, want 1", len(opener.rooms()))
	}
}

func TestRankedGapBeyondMaxWindowStaysUnmatched(t *testing.T) {
	m, opener, clock := newTestMatchmaker(t)

	a := entry("c1", "alice", problemmodel.DifficultyMedium, roommodel.ModeRanked)
	a.Rating = 1000
	b := entry("c2", "bob", problemmodel.DifficultyMedium, roommodel.ModeRanked)
	b.Rating = 1800

	m.Join(a)
	m.Join(b)
	clock.Advance(10 * defaultMaxWait)
	m.Match()

	if len(opener.rooms()) != 0 {
		t.Fatal("800-point gap matched despite exceeding the widest window")
	}
}

func TestCasualIgnoresRatings(t *testing.T) {
	m, opener, _ := newTestMatchmaker(t)

	a := entry("c1", "alice", problemmodel.DifficultyEasy, roommodel.ModeCasual)
	a.Rating = 100
	b := entry("c2", "bob", problemmodel.DifficultyEasy, roommodel.ModeCasual)
	b.Rating = 2600

	m.Join(a)
	m.Join(b)
	if len(opener.rooms()) != 1 {
		t.Fatal("casual pairing applied a rating window")
	}
}

func TestOldestWaitersMatchFirst(t *testing.T) {
	m, opener, clock := newTestMatchmaker(t)

	m.Join(entry("c1", "alice", problemmodel.DifficultyEasy, roommodel.ModeCasual))
	clock.Advance(time.Second)
	m.Join(entry("c2", "bob", problemmodel.DifficultyHard, roommodel.ModeCasual))
	clock.Advance(time.Second)

	// carol can pair with either; alice has waited longest.
	m.Join(entry("c3", "carol", problemmodel.DifficultyAny, roommodel.ModeCasual))

	rooms := opener.rooms()
	if len(rooms) != 1 {
		t.Fatalf("opened %d rooms, want 1", len(rooms))
	}
	st := m.Status("c2")
	if !st.InQueue {
		t.Error("bob should still be waiting; the older entry had priority")
	}
	if got := m.Status("c1"); !got.MatchFound {
		t.Error("alice, the oldest waiter, was not matched")
	}
}

func TestRejoinReplacesEntry(t *testing.T) {
	m, _, clock := newTestMatchmaker(t)

	m.Join(entry("c1", "alice", problemmodel.DifficultyEasy, roommodel.ModeCasual))
	clock.Advance(time.Second)
	size := m.Join(entry("c1", "alice", problemmodel.DifficultyHard, roommodel.ModeCasual))
	if size != 1 {
		t.Fatalf("queue size after rejoin = %d, want 1", size)
	}

	m.Join(entry("c2", "bob", problemmodel.DifficultyEasy, roommodel.ModeCasual))
	if m.QueueSize() != 2 {
		t.Error("rejoin kept the stale easy preference")
	}
}

func TestLeaveRemovesEntryAndForfeitsMatch(t *testing.T) {
	m, _, _ := newTestMatchmaker(t)

	m.Join(entry("c1", "alice", problemmodel.DifficultyEasy, roommodel.ModeCasual))
	if !m.Leave("c1") {
		t.Fatal("leave for a queued player returned false")
	}
	if m.Leave("c1") {
		t.Fatal("second leave returned true")
	}
	if m.QueueSize() != 0 {
		t.Errorf("queue size = %d, want 0", m.QueueSize())
	}

	m.Join(entry("c1", "alice", problemmodel.DifficultyEasy, roommodel.ModeCasual))
	m.Join(entry("c2", "bob", problemmodel.DifficultyEasy, roommodel.ModeCasual))
	m.Leave("c1")
	if st := m.Status("c1"); st.MatchFound {
		t.Error("leave kept the pending match notification")
	}
}

func TestPendingMatchExpires(t *testing.T) {
	m, _, clock := newTestMatchmaker(t)

	m.Join(entry("c1", "alice", problemmodel.DifficultyEasy, roommodel.ModeCasual))
	m.Join(entry("c2", "bob", problemmodel.DifficultyEasy, roommodel.ModeCasual))

	clock.Advance(defaultPendingTTL + time.Second)
	m.Match()

	if st := m.Status("c1"); st.MatchFound {
		t.Error("stale match notification survived its TTL")
	}
}

func TestRecentMatchesKeepsRing(t *testing.T) {
	m, _, _ := newTestMatchmaker(t)

	m.Join(entry("c1", "alice", problemmodel.DifficultyEasy, roommodel.ModeCasual))
	m.Join(entry("c2", "bob", problemmodel.DifficultyEasy, roommodel.ModeCasual))

	recent := m.RecentMatches()
	if len(recent) != 1 {
		t.Fatalf("recent matches = %d, want 1", len(recent))
	}
	if recent[0].Players[0].Username != "alice" || recent[0].Players[1].Username != "bob" {
		t.Errorf("recorded players = %q, %q", recent[0].Players[0].Username, recent[0].Players[1].Username)
	}
}

func TestGeneratedRoomCodesAreWellFormed(t *testing.T) {
	shape := regexp.MustCompile(`^[A-Z]+-[A-Z]+-\d{4}$`)
	for i := 0; i < 200; i++ {
		code := GenerateRoomCode()
		if !shape.MatchString(code) {
			t.Fatalf("generated code %q does not look like WORD-WORD-1234", code)
		}
	}
}
