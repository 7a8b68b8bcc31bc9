package race_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"coderace/internal/services/race"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to race.Status
		want     bool
	}{
		{race.StatusWaiting, race.StatusCountdown, true},
		{race.StatusCountdown, race.StatusActive, true},
		{race.StatusActive, race.StatusCompleted, true},
		{race.StatusWaiting, race.StatusActive, false},
		{race.StatusWaiting, race.StatusCompleted, false},
		{race.StatusCountdown, race.StatusWaiting, false},
		{race.StatusActive, race.StatusCountdown, false},
		{race.StatusCompleted, race.StatusActive, false},
		{race.StatusCompleted, race.StatusCompleted, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s->%s", tt.from, tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, race.CanTransition(tt.from, tt.to))
		})
	}
}

func TestJoin_CreatesWaitingRoomWithQuestion(t *testing.T) {
	f := newFixture(t, 600)
	alice := &recorder{}

	res, err := f.svc.Join(context.Background(), "r1", "alice", alice)
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.Equal(t, []string{"alice"}, res.Players)

	snap, err := f.svc.GetRoom("r1")
	require.NoError(t, err)
	assert.Equal(t, race.StatusWaiting, snap.Status)
	assert.Equal(t, "q1", snap.QuestionID)
	assert.Equal(t, []string{"alice"}, snap.Players)

	frames := alice.all()
	require.Len(t, frames, 1)
	assert.Equal(t, race.TypePlayerJoined, frames[0]["type"])
	assert.Equal(t, []any{"alice"}, frames[0]["players"])
}

func TestJoin_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		existing []string
		username string
		wantErr  error
	}{
		{name: "name taken", existing: []string{"alice"}, username: "alice", wantErr: race.ErrNameTaken},
		{name: "room full", existing: []string{"alice", "bob"}, username: "carol", wantErr: race.ErrRoomFull},
		{name: "name taken in full room", existing: []string{"alice", "bob"}, username: "bob", wantErr: race.ErrNameTaken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 600)
			for _, name := range tt.existing {
				_, err := f.svc.Join(context.Background(), "r1", name, &recorder{})
				require.NoError(t, err)
			}
			before, err := f.svc.GetRoom("r1")
			require.NoError(t, err)

			intruder := &recorder{}
			_, err = f.svc.Join(context.Background(), "r1", tt.username, intruder)
			require.ErrorIs(t, err, tt.wantErr)

			after, err := f.svc.GetRoom("r1")
			require.NoError(t, err)
			assert.Equal(t, before.Players, after.Players)
			assert.Equal(t, before.Status, after.Status)
			assert.Empty(t, intruder.all(), "rejected connection must not receive room traffic")
		})
	}
}

func TestJoin_QuestionProviderFailure(t *testing.T) {
	svc := race.NewRaceService(failingQuestions{}, &codeJudge{})
	defer svc.Stop()

	_, err := svc.Join(context.Background(), "r1", "alice", &recorder{})
	require.Error(t, err)
	assert.Empty(t, svc.ListRooms())
}

func TestJoin_SecondPlayerStartsCountdownOnce(t *testing.T) {
	f := newFixture(t, 600)
	alice, bob := &recorder{}, &recorder{}

	_, err := f.svc.Join(context.Background(), "r1", "alice", alice)
	require.NoError(t, err)
	assert.Equal(t, race.StatusWaiting, f.status(t, "r1"))

	_, err = f.svc.Join(context.Background(), "r1", "bob", bob)
	require.NoError(t, err)
	assert.Equal(t, race.StatusCountdown, f.status(t, "r1"))

	// bob leaves and carol takes the seat mid-countdown: no second countdown.
	f.svc.Leave("r1", "bob")
	carol := &recorder{}
	_, err = f.svc.Join(context.Background(), "r1", "carol", carol)
	require.NoError(t, err)

	advance(t, f.clk, race.CountdownFrom)
	require.Eventually(t, func() bool { return len(alice.ofType(race.TypeRaceStarted)) == 1 }, time.Second, 5*time.Millisecond)

	var counts []any
	for _, fr := range alice.ofType(race.TypeCountdown) {
		counts = append(counts, fr["countdown"])
	}
	assert.Equal(t, []any{5.0, 4.0, 3.0, 2.0, 1.0}, counts)
	assert.Equal(t, race.StatusActive, f.status(t, "r1"))
}

func TestCountdown_OrderAndRaceStarted(t *testing.T) {
	f := newFixture(t, 600)
	alice, bob := f.startRace(t, "r1")

	want := []string{
		race.TypePlayerJoined, race.TypePlayerJoined,
		race.TypeCountdown, race.TypeCountdown, race.TypeCountdown, race.TypeCountdown, race.TypeCountdown,
		race.TypeRaceStarted,
	}
	assert.Equal(t, want, alice.types())
	assert.Equal(t, want[1:], bob.types())

	aq := alice.ofType(race.TypeRaceStarted)[0]
	bq := bob.ofType(race.TypeRaceStarted)[0]
	assert.Equal(t, aq, bq)
	assert.Equal(t, 600.0, aq["time"])

	question := aq["question"].(map[string]any)
	assert.Equal(t, "q1", question["id"])
	assert.NotContains(t, question, "private_tests")
	assert.Equal(t, []any{"assert add(1, 2) == 3"}, question["public_tests"])
}

func TestSyncCode_RelaysToOthersOnly(t *testing.T) {
	f := newFixture(t, 600)
	alice, bob := &recorder{}, &recorder{}

	_, err := f.svc.Join(context.Background(), "r1", "alice", alice)
	require.NoError(t, err)

	// alone in the room: stored, delivered to nobody
	require.NoError(t, f.svc.SyncCode(context.Background(), "r1", "alice", "x = 1"))
	assert.Empty(t, alice.ofType(race.TypeCodeUpdate))

	_, err = f.svc.Join(context.Background(), "r1", "bob", bob)
	require.NoError(t, err)
	require.NoError(t, f.svc.SyncCode(context.Background(), "r1", "alice", "x = 2"))

	updates := bob.ofType(race.TypeCodeUpdate)
	require.Len(t, updates, 1)
	assert.Equal(t, "alice", updates[0]["username"])
	assert.Equal(t, "x = 2", updates[0]["code"])
	assert.Empty(t, alice.ofType(race.TypeCodeUpdate))
}

func TestSyncCode_UnknownRoomOrPlayer(t *testing.T) {
	f := newFixture(t, 600)
	require.ErrorIs(t, f.svc.SyncCode(context.Background(), "nope", "alice", "x"), race.ErrRoomNotFound)

	_, err := f.svc.Join(context.Background(), "r1", "alice", &recorder{})
	require.NoError(t, err)
	require.ErrorIs(t, f.svc.SyncCode(context.Background(), "r1", "mallory", "x"), race.ErrNotInRoom)
	require.ErrorIs(t, f.svc.SubmitCode(context.Background(), "r1", "mallory", "pass"), race.ErrNotInRoom)
}

func TestSubmitCode_FailureKeepsRaceActive(t *testing.T) {
	f := newFixture(t, 600)
	alice, bob := f.startRace(t, "r1")

	require.NoError(t, f.svc.SubmitCode(context.Background(), "r1", "alice", "wrong"))
	assert.Equal(t, race.StatusActive, f.status(t, "r1"))

	for _, rec := range []*recorder{alice, bob} {
		results := rec.ofType(race.TypeSubmissionResult)
		require.Len(t, results, 1)
		assert.Equal(t, "alice", results[0]["username"])
		assert.Equal(t, false, results[0]["success"])
		assert.Empty(t, rec.ofType(race.TypeRaceFinished))
	}

	// both players may keep submitting
	require.NoError(t, f.svc.SubmitCode(context.Background(), "r1", "bob", "also wrong"))
	require.NoError(t, f.svc.SubmitCode(context.Background(), "r1", "alice", "wrong again"))
	assert.Len(t, bob.ofType(race.TypeSubmissionResult), 3)
	assert.Equal(t, race.StatusActive, f.status(t, "r1"))
}

func TestSubmitCode_JudgeErrorIsAFailedSubmission(t *testing.T) {
	f := newFixture(t, 600)
	alice, _ := f.startRace(t, "r1")

	require.NoError(t, f.svc.SubmitCode(context.Background(), "r1", "alice", "crash"))

	results := alice.ofType(race.TypeSubmissionResult)
	require.Len(t, results, 1)
	assert.Equal(t, false, results[0]["success"])
	assert.Contains(t, results[0]["results"].([]any)[0], "Code execution error")
	assert.Equal(t, race.StatusActive, f.status(t, "r1"))
}

func TestSubmitCode_FirstPassWinsOnce(t *testing.T) {
	f := newFixture(t, 600)
	alice, bob := f.startRace(t, "r1")

	require.NoError(t, f.svc.SubmitCode(context.Background(), "r1", "bob", "pass"))
	assert.Equal(t, race.StatusCompleted, f.status(t, "r1"))

	require.NoError(t, f.svc.SubmitCode(context.Background(), "r1", "alice", "pass"))
	assert.Equal(t, race.StatusCompleted, f.status(t, "r1"))

	for _, rec := range []*recorder{alice, bob} {
		assert.Len(t, rec.ofType(race.TypeSubmissionResult), 2)
		finished := rec.ofType(race.TypeRaceFinished)
		require.Len(t, finished, 1)
		assert.Equal(t, "bob", finished[0]["winner"])
	}

	snap, err := f.svc.GetRoom("r1")
	require.NoError(t, err)
	assert.Equal(t, "bob", snap.Winner)

	require.Eventually(t, func() bool { return len(f.sink.all()) == 1 }, time.Second, 5*time.Millisecond)
	res := f.sink.all()[0]
	assert.Equal(t, race.OutcomeSolved, res.Outcome)
	assert.Equal(t, "bob", res.Winner)
	assert.Equal(t, []string{"alice", "bob"}, res.Players)
}

func TestSubmitCode_ConcurrentWinnersProduceOneFinish(t *testing.T) {
	f := newFixture(t, 600)
	alice, _ := f.startRace(t, "r1")

	var wg sync.WaitGroup
	for _, name := range []string{"alice", "bob"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, f.svc.SubmitCode(context.Background(), "r1", name, "pass"))
		}()
	}
	wg.Wait()

	assert.Len(t, alice.ofType(race.TypeSubmissionResult), 2)
	assert.Len(t, alice.ofType(race.TypeRaceFinished), 1)
}

func TestSubmitCode_BeforeRaceStartIsInert(t *testing.T) {
	f := newFixture(t, 600)
	alice := &recorder{}
	_, err := f.svc.Join(context.Background(), "r1", "alice", alice)
	require.NoError(t, err)

	require.NoError(t, f.svc.SubmitCode(context.Background(), "r1", "alice", "pass"))
	assert.Len(t, alice.ofType(race.TypeSubmissionResult), 1)
	assert.Empty(t, alice.ofType(race.TypeRaceFinished))
	assert.Equal(t, race.StatusWaiting, f.status(t, "r1"))
}

func TestSubmitCode_RoomDeletedWhileJudging(t *testing.T) {
	f := newFixture(t, 600)
	f.judge.gate = make(chan struct{})
	alice := &recorder{}
	_, err := f.svc.Join(context.Background(), "r1", "alice", alice)
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- f.svc.SubmitCode(context.Background(), "r1", "alice", "pass") }()

	require.Eventually(t, func() bool {
		f.judge.mu.Lock()
		defer f.judge.mu.Unlock()
		return len(f.judge.calls) == 1
	}, time.Second, 5*time.Millisecond)

	f.svc.Leave("r1", "alice")
	close(f.judge.gate)

	require.ErrorIs(t, <-errCh, race.ErrRoomNotFound)
	assert.Empty(t, alice.ofType(race.TypeSubmissionResult))
}

func TestRaceTimer_TimeoutEndsRace(t *testing.T) {
	f := newFixture(t, 3)
	alice, bob := f.startRace(t, "r1")

	advance(t, f.clk, 2)
	require.Eventually(t, func() bool {
		snap, err := f.svc.GetRoom("r1")
		return err == nil && snap.Remaining == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, race.StatusActive, f.status(t, "r1"))

	advance(t, f.clk, 1)
	require.Eventually(t, func() bool { return len(alice.ofType(race.TypeGameOver)) == 1 }, time.Second, 5*time.Millisecond)

	over := bob.ofType(race.TypeGameOver)
	require.Len(t, over, 1)
	assert.Equal(t, "no one solved it in time", over[0]["message"])
	assert.NotContains(t, over[0], "winner")
	assert.Equal(t, race.StatusCompleted, f.status(t, "r1"))

	require.Eventually(t, func() bool { return len(f.sink.all()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, race.OutcomeTimeout, f.sink.all()[0].Outcome)
}

func TestRaceTimer_WinStopsTimer(t *testing.T) {
	f := newFixture(t, 3)
	alice, _ := f.startRace(t, "r1")

	require.NoError(t, f.svc.SubmitCode(context.Background(), "r1", "alice", "pass"))

	// the timer wakes once, sees the room completed and exits
	advance(t, f.clk, 1)
	f.clk.Advance(10 * time.Second)

	assert.Never(t, func() bool { return len(alice.ofType(race.TypeGameOver)) > 0 }, 100*time.Millisecond, 10*time.Millisecond)
	assert.Len(t, alice.ofType(race.TypeRaceFinished), 1)
}

func TestRaceTimer_StopsWhenRoomDeleted(t *testing.T) {
	f := newFixture(t, 3)
	f.startRace(t, "r1")

	f.svc.Leave("r1", "alice")
	f.svc.Leave("r1", "bob")
	_, err := f.svc.GetRoom("r1")
	require.ErrorIs(t, err, race.ErrRoomNotFound)

	advance(t, f.clk, 1)
	// no sleeper left: the timer returned after observing the deletion
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	assert.Error(t, f.clk.BlockUntilContext(ctx, 1))
}

func TestCountdown_StopsWhenRoomDeleted(t *testing.T) {
	f := newFixture(t, 600)
	alice, bob := &recorder{}, &recorder{}
	_, err := f.svc.Join(context.Background(), "r1", "alice", alice)
	require.NoError(t, err)
	_, err = f.svc.Join(context.Background(), "r1", "bob", bob)
	require.NoError(t, err)

	advance(t, f.clk, 2)
	require.Eventually(t, func() bool { return len(alice.ofType(race.TypeCountdown)) == 3 }, time.Second, 5*time.Millisecond)
	f.svc.Leave("r1", "alice")
	f.svc.Leave("r1", "bob")
	advance(t, f.clk, 1)

	assert.Never(t, func() bool { return len(alice.ofType(race.TypeRaceStarted)) > 0 }, 100*time.Millisecond, 10*time.Millisecond)
	assert.LessOrEqual(t, len(alice.ofType(race.TypeCountdown)), 3)
}

func TestLeave_DeletesEmptyRoomAndRejoinGetsFreshRoom(t *testing.T) {
	f := newFixture(t, 600)
	f.startRace(t, "r1")
	require.NoError(t, f.svc.SubmitCode(context.Background(), "r1", "alice", "pass"))

	f.svc.Leave("r1", "alice")
	snap, err := f.svc.GetRoom("r1")
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, snap.Players)

	f.svc.Leave("r1", "bob")
	_, err = f.svc.GetRoom("r1")
	require.ErrorIs(t, err, race.ErrRoomNotFound)

	res, err := f.svc.Join(context.Background(), "r1", "alice", &recorder{})
	require.NoError(t, err)
	assert.True(t, res.Created)

	snap, err = f.svc.GetRoom("r1")
	require.NoError(t, err)
	assert.Equal(t, race.StatusWaiting, snap.Status)
	assert.Equal(t, "q2", snap.QuestionID)
}

func TestLeave_DoesNotNotifyRemainingPlayer(t *testing.T) {
	f := newFixture(t, 600)
	alice, bob := &recorder{}, &recorder{}
	_, err := f.svc.Join(context.Background(), "r1", "alice", alice)
	require.NoError(t, err)
	_, err = f.svc.Join(context.Background(), "r1", "bob", bob)
	require.NoError(t, err)
	before := len(alice.all())

	f.svc.Leave("r1", "bob")
	f.svc.Leave("r1", "nobody")
	f.svc.Leave("missing-room", "alice")

	assert.Len(t, alice.all(), before)
}

func TestBroadcast_IsolatesFailingConnection(t *testing.T) {
	good1, broken, good2 := &recorder{}, &recorder{fail: true}, &recorder{}
	n := race.Broadcast(race.NewErrorMessage("hello"), good1, broken, nil, good2)

	assert.Equal(t, 2, n)
	assert.Len(t, good1.all(), 1)
	assert.Len(t, good2.all(), 1)
}

func TestJoin_ConcurrentJoinsSameRoom(t *testing.T) {
	f := newFixture(t, 600)

	const n = 20
	errs := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Join(context.Background(), "crowded", fmt.Sprintf("p%d", i), &recorder{})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	accepted := 0
	for err := range errs {
		if err == nil {
			accepted++
			continue
		}
		assert.ErrorIs(t, err, race.ErrRoomFull)
	}
	assert.Equal(t, race.MaxPlayers, accepted)

	snap, err := f.svc.GetRoom("crowded")
	require.NoError(t, err)
	assert.Equal(t, race.StatusCountdown, snap.Status)
	assert.Len(t, snap.Players, race.MaxPlayers)
}

func TestJoin_RaceAgainstDeletion(t *testing.T) {
	f := newFixture(t, 600)

	for i := 0; i < 50; i++ {
		roomID := fmt.Sprintf("churn-%d", i)
		_, err := f.svc.Join(context.Background(), roomID, "a", &recorder{})
		require.NoError(t, err)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() { defer wg.Done(); f.svc.Leave(roomID, "a") }()
		go func() {
			defer wg.Done()
			_, err := f.svc.Join(context.Background(), roomID, "b", &recorder{})
			assert.NoError(t, err)
		}()
		wg.Wait()

		snap, err := f.svc.GetRoom(roomID)
		require.NoError(t, err, "b must end up in a live room")
		assert.Equal(t, []string{"b"}, snap.Players)
	}
}

func TestListRooms(t *testing.T) {
	f := newFixture(t, 600)
	for _, id := range []string{"b", "a", "c"} {
		_, err := f.svc.Join(context.Background(), id, "alice", &recorder{})
		require.NoError(t, err)
	}
	rooms := f.svc.ListRooms()
	require.Len(t, rooms, 3)
	assert.Equal(t, "a", rooms[0].ID)
	assert.Equal(t, "c", rooms[2].ID)
}

func TestStop_RejectsJoins(t *testing.T) {
	f := newFixture(t, 600)
	f.svc.Stop()
	_, err := f.svc.Join(context.Background(), "r1", "alice", &recorder{})
	require.ErrorIs(t, err, race.ErrServiceStopped)
}

func TestStop_ConcurrentWithJoins(t *testing.T) {
	f := newFixture(t, 600)

	const rooms = 50
	errs := make(chan error, 2*rooms)
	var wg sync.WaitGroup
	for i := 0; i < rooms; i++ {
		roomID := fmt.Sprintf("stop-%d", i)
		for _, name := range []string{"alice", "bob"} {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := f.svc.Join(context.Background(), roomID, name, &recorder{})
				errs <- err
			}()
		}
	}
	f.svc.Stop()
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, race.ErrServiceStopped)
		}
	}
	_, err := f.svc.Join(context.Background(), "late", "carol", &recorder{})
	assert.ErrorIs(t, err, race.ErrServiceStopped)
}

// alice and bob race with TOTAL_TIME=600; bob wins after alice fails once.
func TestEndToEnd_AliceAndBob(t *testing.T) {
	f := newFixture(t, 600)
	alice, bob := &recorder{}, &recorder{}

	_, err := f.svc.Join(context.Background(), "r1", "alice", alice)
	require.NoError(t, err)
	_, err = f.svc.Join(context.Background(), "r1", "bob", bob)
	require.NoError(t, err)
	advance(t, f.clk, race.CountdownFrom)
	require.Eventually(t, func() bool { return len(bob.ofType(race.TypeRaceStarted)) == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, f.svc.SubmitCode(context.Background(), "r1", "alice", "wrong"))
	require.NoError(t, f.svc.SubmitCode(context.Background(), "r1", "bob", "pass"))

	joined := alice.ofType(race.TypePlayerJoined)
	require.Len(t, joined, 2)
	assert.Equal(t, []any{"alice"}, joined[0]["players"])
	assert.Equal(t, []any{"alice", "bob"}, joined[1]["players"])

	for _, rec := range []*recorder{alice, bob} {
		frames := rec.all()
		tail := frames[len(frames)-4:]
		assert.Equal(t, race.TypeRaceStarted, tail[0]["type"])
		assert.Equal(t, 600.0, tail[0]["time"])
		assert.Equal(t, race.TypeSubmissionResult, tail[1]["type"])
		assert.Equal(t, "alice", tail[1]["username"])
		assert.Equal(t, false, tail[1]["success"])
		assert.Equal(t, race.TypeSubmissionResult, tail[2]["type"])
		assert.Equal(t, "bob", tail[2]["username"])
		assert.Equal(t, true, tail[2]["success"])
		assert.Equal(t, race.TypeRaceFinished, tail[3]["type"])
		assert.Equal(t, "bob", tail[3]["winner"])
	}
}
