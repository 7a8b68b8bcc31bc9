package race

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// IRaceService is the room registry. Operations on one room id are
// linearized; different rooms proceed independently.
type IRaceService interface {
	Join(ctx context.Context, roomID, username string, conn Sender) (JoinResult, error)
	SyncCode(ctx context.Context, roomID, username, code string) error
	SubmitCode(ctx context.Context, roomID, username, code string) error
	Leave(roomID, username string)
	GetRoom(roomID string) (*RoomSnapshot, error)
	ListRooms() []RoomSnapshot
	Stop()
}

type Option func(*raceService)

// WithClock replaces the wall clock used by the countdown and race timer.
func WithClock(c clockwork.Clock) Option {
	return func(s *raceService) { s.clock = c }
}

// WithTotalTime sets the race length in seconds.
func WithTotalTime(seconds int) Option {
	return func(s *raceService) {
		if seconds > 0 {
			s.totalTime = seconds
		}
	}
}

// WithResultSink publishes every completed race to sink.
func WithResultSink(sink ResultSink) Option {
	return func(s *raceService) { s.results = sink }
}

type raceService struct {
	mu    sync.Mutex
	rooms map[string]*room

	questions QuestionProvider
	judge     Judge
	results   ResultSink
	clock     clockwork.Clock
	totalTime int
	unit      time.Duration

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	stopped bool // guarded by mu; no wg.Add once set
}

var _ IRaceService = (*raceService)(nil)

func NewRaceService(questions QuestionProvider, judge Judge, opts ...Option) IRaceService {
	ctx, cancel := context.WithCancel(context.Background())
	s := &raceService{
		rooms:     make(map[string]*room),
		questions: questions,
		judge:     judge,
		clock:     clockwork.NewRealClock(),
		totalTime: DefaultTotalTime,
		unit:      time.Second,
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Join adds username to roomID, creating the room on first reference.
func (s *raceService) Join(ctx context.Context, roomID, username string, conn Sender) (JoinResult, error) {
	for {
		r, created, err := s.getOrCreate(ctx, roomID)
		if err != nil {
			return JoinResult{}, err
		}

		r.mu.Lock()
		if r.closed {
			// Emptied and deleted between lookup and lock; the next pass
			// sees either a fresh room or none at all.
			r.mu.Unlock()
			continue
		}
		res, err := s.joinLocked(r, username, conn)
		r.mu.Unlock()
		if err != nil {
			return JoinResult{}, err
		}
		res.Created = created
		return res, nil
	}
}

func (s *raceService) joinLocked(r *room, username string, conn Sender) (JoinResult, error) {
	if s.isStopped() {
		return JoinResult{}, ErrServiceStopped
	}
	if r.has(username) {
		return JoinResult{}, ErrNameTaken
	}
	if len(r.roster) >= MaxPlayers {
		return JoinResult{}, ErrRoomFull
	}

	r.roster = append(r.roster, player{username: username, conn: conn})
	players := r.usernames()
	r.broadcast(PlayerJoinedMessage{Type: TypePlayerJoined, Players: players})

	zap.L().Info("race.player_joined",
		zap.String("room_id", r.id),
		zap.String("username", username),
		zap.Strings("players", players),
	)

	if len(r.roster) == MaxPlayers && r.status == StatusWaiting && r.setStatus(StatusCountdown) && s.track() {
		go s.runCountdown(r)
	}
	return JoinResult{RoomID: r.id, Players: players}, nil
}

// getOrCreate returns the registered room, asking the question provider for
// a question when the id is new. The provider is called outside the
// registry lock; a concurrent creator wins and the extra question is dropped.
func (s *raceService) getOrCreate(ctx context.Context, roomID string) (*room, bool, error) {
	if s.isStopped() {
		return nil, false, ErrServiceStopped
	}
	if r := s.lookup(roomID); r != nil {
		return r, false, nil
	}

	q, err := s.questions.GetQuestion(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("get question: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil, false, ErrServiceStopped
	}
	if r, ok := s.rooms[roomID]; ok {
		return r, false, nil
	}
	r := newRoom(roomID, q, s.clock.Now())
	s.rooms[roomID] = r
	zap.L().Info("race.room_created", zap.String("room_id", roomID), zap.String("question_id", q.ID))
	return r, true, nil
}

func (s *raceService) lookup(roomID string) *room {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rooms[roomID]
}

// member locks the room holding username. The caller must unlock it.
func (s *raceService) member(roomID, username string) (*room, error) {
	r := s.lookup(roomID)
	if r == nil {
		return nil, ErrRoomNotFound
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrRoomNotFound
	}
	if !r.has(username) {
		r.mu.Unlock()
		return nil, ErrNotInRoom
	}
	return r, nil
}

// SyncCode stores the latest code for username and relays it to the others.
func (s *raceService) SyncCode(_ context.Context, roomID, username, code string) error {
	r, err := s.member(roomID, username)
	if err != nil {
		return err
	}
	defer r.mu.Unlock()

	r.snapshots[username] = code
	r.broadcast(CodeUpdateMessage{Type: TypeCodeUpdate, Username: username, Code: code}, username)
	return nil
}

// SubmitCode judges code and reports the verdict to the whole room. The judge
// runs without the room lock; the verdict is applied under it, so a second
// passing submission after completion is reported but never wins.
func (s *raceService) SubmitCode(ctx context.Context, roomID, username, code string) error {
	r, err := s.member(roomID, username)
	if err != nil {
		return err
	}
	q := r.question
	r.mu.Unlock()

	verdict, err := s.judge.RunTests(ctx, code, q.PublicTests, q.PrivateTests)
	if err != nil {
		zap.L().Warn("race.judge_failed",
			zap.String("room_id", roomID),
			zap.String("username", username),
			zap.Error(err),
		)
		verdict = Verdict{Success: false, Results: []string{"Code execution error: " + err.Error()}}
	}
	if verdict.Results == nil {
		verdict.Results = []string{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRoomNotFound
	}

	r.broadcast(SubmissionResultMessage{
		Type:     TypeSubmissionResult,
		Username: username,
		Success:  verdict.Success,
		Results:  verdict.Results,
	})

	if !verdict.Success || r.status != StatusActive || !r.has(username) {
		return nil
	}
	if !r.setStatus(StatusCompleted) {
		return nil
	}
	r.winner = username
	r.broadcast(RaceFinishedMessage{
		Type:    TypeRaceFinished,
		Winner:  username,
		Message: username + " solved it first!",
	})
	zap.L().Info("race.finished", zap.String("room_id", r.id), zap.String("winner", username))
	s.publish(r, OutcomeSolved)
	return nil
}

// Leave removes username from roomID. The remaining player is not notified.
// The room is deleted as soon as its roster is empty.
func (s *raceService) Leave(roomID, username string) {
	r := s.lookup(roomID)
	if r == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || !r.remove(username) {
		return
	}
	zap.L().Info("race.player_left", zap.String("room_id", roomID), zap.String("username", username))

	if len(r.roster) > 0 {
		return
	}
	r.closed = true

	s.mu.Lock()
	if s.rooms[roomID] == r {
		delete(s.rooms, roomID)
	}
	s.mu.Unlock()
	zap.L().Info("race.room_deleted", zap.String("room_id", roomID), zap.Stringer("status", r.status))
}

func (s *raceService) GetRoom(roomID string) (*RoomSnapshot, error) {
	r := s.lookup(roomID)
	if r == nil {
		return nil, ErrRoomNotFound
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrRoomNotFound
	}
	snap := r.snapshot()
	return &snap, nil
}

func (s *raceService) ListRooms() []RoomSnapshot {
	s.mu.Lock()
	rooms := make([]*room, 0, len(s.rooms))
	for _, r := range s.rooms {
		rooms = append(rooms, r)
	}
	s.mu.Unlock()

	out := make([]RoomSnapshot, 0, len(rooms))
	for _, r := range rooms {
		r.mu.Lock()
		if !r.closed {
			out = append(out, r.snapshot())
		}
		r.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Stop cancels every running timer and waits for them to exit. Joins and
// new timers are refused from the moment it is called.
func (s *raceService) Stop() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
}

func (s *raceService) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// track registers one background goroutine with Stop. It reports false once
// Stop has been called, in which case the goroutine must not be started.
func (s *raceService) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	s.wg.Add(1)
	return true
}

// publish hands a completed race to the result sink. Must hold r.mu.
func (s *raceService) publish(r *room, outcome Outcome) {
	if s.results == nil {
		return
	}
	res := RaceResult{
		ID:         uuid.NewString(),
		RoomID:     r.id,
		QuestionID: r.question.ID,
		Players:    r.usernames(),
		Winner:     r.winner,
		Outcome:    outcome,
		StartedAt:  r.startedAt,
		FinishedAt: s.clock.Now(),
	}

	if !s.track() {
		zap.L().Warn("race.publish_skipped", zap.String("room_id", res.RoomID), zap.String("reason", "stopped"))
		return
	}
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := s.results.PublishResult(ctx, res); err != nil {
			zap.L().Warn("race.publish_result", zap.String("room_id", res.RoomID), zap.Error(err))
		}
	}()
}
