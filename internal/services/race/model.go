package race

import (
	"context"
	"errors"
	"time"
)

const (
	// MaxPlayers is the roster size that starts a race.
	MaxPlayers = 2
	// CountdownFrom is the first value broadcast by the countdown.
	CountdownFrom = 5
	// DefaultTotalTime is the race length in seconds.
	DefaultTotalTime = 600
)

var (
	ErrNameTaken      = errors.New("name already taken")
	ErrRoomFull       = errors.New("room is full")
	ErrRoomNotFound   = errors.New("room not found")
	ErrNotInRoom      = errors.New("player not in room")
	ErrAlreadyJoined  = errors.New("connection already joined a room")
	ErrServiceStopped = errors.New("race service stopped")
)

// Question is a problem handed to both players. Private tests stay on the
// server: they are judged against but never serialised.
type Question struct {
	ID           string   `json:"id"`
	Title        string   `json:"title,omitempty"`
	Prompt       string   `json:"prompt"`
	Description  string   `json:"description,omitempty"`
	StartingCode string   `json:"starting_code,omitempty"`
	PublicTests  []string `json:"public_tests"`
	PrivateTests []string `json:"-"` // left out of race_started; the judge still runs them
}

// Verdict is what the judge returns for one submission.
type Verdict struct {
	Success bool     `json:"success"`
	Results []string `json:"results"`
}

// Sender is the outbound half of a player connection.
type Sender interface {
	Send(data []byte) error
}

// Judge runs submitted code against a question's tests.
type Judge interface {
	RunTests(ctx context.Context, code string, publicTests, privateTests []string) (Verdict, error)
}

// QuestionProvider picks the question for a newly created room.
type QuestionProvider interface {
	GetQuestion(ctx context.Context) (Question, error)
}

// ResultSink receives every finished race.
type ResultSink interface {
	PublishResult(ctx context.Context, res RaceResult) error
}

type Outcome string

const (
	OutcomeSolved  Outcome = "solved"
	OutcomeTimeout Outcome = "timeout"
)

// RaceResult is emitted once per room when it reaches StatusCompleted.
type RaceResult struct {
	ID         string    `json:"id"`
	RoomID     string    `json:"room_id"`
	QuestionID string    `json:"question_id"`
	Players    []string  `json:"players"`
	Winner     string    `json:"winner,omitempty"`
	Outcome    Outcome   `json:"outcome"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// JoinResult describes the roster after a successful join.
type JoinResult struct {
	RoomID  string   `json:"room_id"`
	Players []string `json:"players"`
	Created bool     `json:"created"`
}

// RoomSnapshot is a read-only view of a room.
type RoomSnapshot struct {
	ID         string    `json:"id"`
	Status     Status    `json:"status"`
	Players    []string  `json:"players"`
	QuestionID string    `json:"question_id"`
	Remaining  int       `json:"remaining"`
	Winner     string    `json:"winner,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
