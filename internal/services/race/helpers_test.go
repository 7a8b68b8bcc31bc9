package race_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"coderace/internal/services/race"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

// recorder is a Sender that keeps every frame it receives.
type recorder struct {
	mu     sync.Mutex
	frames []map[string]any
	fail   bool
}

func (r *recorder) Send(data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("broken pipe")
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	r.frames = append(r.frames, m)
	return nil
}

func (r *recorder) all() []map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]map[string]any(nil), r.frames...)
}

func (r *recorder) ofType(t string) []map[string]any {
	var out []map[string]any
	for _, f := range r.all() {
		if f["type"] == t {
			out = append(out, f)
		}
	}
	return out
}

func (r *recorder) types() []string {
	var out []string
	for _, f := range r.all() {
		out = append(out, f["type"].(string))
	}
	return out
}

type countingQuestions struct {
	calls atomic.Int32
}

func (c *countingQuestions) GetQuestion(context.Context) (race.Question, error) {
	n := c.calls.Add(1)
	return race.Question{
		ID:           fmt.Sprintf("q%d", n),
		Title:        "Two Sum",
		Prompt:       "return the sum",
		PublicTests:  []string{"assert add(1, 2) == 3"},
		PrivateTests: []string{"assert add(2, 2) == 4"},
	}, nil
}

type failingQuestions struct{}

func (failingQuestions) GetQuestion(context.Context) (race.Question, error) {
	return race.Question{}, errors.New("db down")
}

// codeJudge passes code "pass", errors on "crash" and fails anything else.
type codeJudge struct {
	mu    sync.Mutex
	calls []string
	gate  chan struct{}
}

func (j *codeJudge) RunTests(_ context.Context, code string, public, private []string) (race.Verdict, error) {
	j.mu.Lock()
	j.calls = append(j.calls, code)
	gate := j.gate
	j.mu.Unlock()
	if gate != nil {
		<-gate
	}

	switch code {
	case "pass":
		return race.Verdict{Success: true, Results: []string{"✔️ Public test 1 passed.", "✔️ Private test 1 passed."}}, nil
	case "crash":
		return race.Verdict{}, errors.New("exit status 1")
	default:
		return race.Verdict{Success: false, Results: []string{"❌ Public test 1 failed: " + public[0] + "."}}, nil
	}
}

type sinkRecorder struct {
	mu      sync.Mutex
	results []race.RaceResult
}

func (s *sinkRecorder) PublishResult(_ context.Context, res race.RaceResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, res)
	return nil
}

func (s *sinkRecorder) all() []race.RaceResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]race.RaceResult(nil), s.results...)
}

type fakeClock interface {
	clockwork.Clock
	Advance(d time.Duration)
	BlockUntilContext(ctx context.Context, n int) error
}

// advance lets the single running timer reach its next sleep, then moves the
// clock one second forward, ticks times.
func advance(t *testing.T, clk fakeClock, ticks int) {
	t.Helper()
	for i := 0; i < ticks; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		require.NoError(t, clk.BlockUntilContext(ctx, 1), "timer never went to sleep (tick %d)", i)
		cancel()
		clk.Advance(time.Second)
	}
}

type fixture struct {
	svc   race.IRaceService
	clk   fakeClock
	qs    *countingQuestions
	judge *codeJudge
	sink  *sinkRecorder
}

func newFixture(t *testing.T, totalTime int) *fixture {
	t.Helper()
	f := &fixture{
		clk:   clockwork.NewFakeClock(),
		qs:    &countingQuestions{},
		judge: &codeJudge{},
		sink:  &sinkRecorder{},
	}
	f.svc = race.NewRaceService(f.qs, f.judge,
		race.WithClock(f.clk),
		race.WithTotalTime(totalTime),
		race.WithResultSink(f.sink),
	)
	t.Cleanup(f.svc.Stop)
	return f
}

// startRace joins alice and bob to roomID and runs the countdown to the end.
func (f *fixture) startRace(t *testing.T, roomID string) (*recorder, *recorder) {
	t.Helper()
	alice, bob := &recorder{}, &recorder{}
	_, err := f.svc.Join(context.Background(), roomID, "alice", alice)
	require.NoError(t, err)
	_, err = f.svc.Join(context.Background(), roomID, "bob", bob)
	require.NoError(t, err)

	advance(t, f.clk, race.CountdownFrom)
	require.Eventually(t, func() bool {
		return len(alice.ofType(race.TypeRaceStarted)) == 1 && len(bob.ofType(race.TypeRaceStarted)) == 1
	}, time.Second, 5*time.Millisecond)
	return alice, bob
}

func (f *fixture) status(t *testing.T, roomID string) race.Status {
	t.Helper()
	snap, err := f.svc.GetRoom(roomID)
	require.NoError(t, err)
	return snap.Status
}
