package race

import (
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
)

type player struct {
	username string
	conn     Sender
}

// room is the per-room state. Every field below mu is read and written only
// while mu is held.
type room struct {
	id       string
	question Question
	created  time.Time

	mu        sync.Mutex
	roster    []player
	status    Status
	snapshots map[string]string
	remaining int
	winner    string
	startedAt time.Time
	// closed is set when the roster drops to zero and the room leaves the
	// registry. Timers and late callers treat a closed room as gone.
	closed bool
}

func newRoom(id string, q Question, now time.Time) *room {
	return &room{
		id:        id,
		question:  q,
		created:   now,
		status:    StatusWaiting,
		snapshots: make(map[string]string),
	}
}

func (r *room) indexOf(username string) int {
	return slices.IndexFunc(r.roster, func(p player) bool { return p.username == username })
}

func (r *room) has(username string) bool { return r.indexOf(username) >= 0 }

func (r *room) usernames() []string {
	names := make([]string, len(r.roster))
	for i, p := range r.roster {
		names[i] = p.username
	}
	return names
}

// remove drops username from the roster and reports whether it was present.
func (r *room) remove(username string) bool {
	i := r.indexOf(username)
	if i < 0 {
		return false
	}
	r.roster = slices.Delete(r.roster, i, i+1)
	return true
}

func (r *room) setStatus(to Status) bool {
	if !CanTransition(r.status, to) {
		zap.L().Warn("race.invalid_transition",
			zap.String("room_id", r.id),
			zap.Stringer("from", r.status),
			zap.Stringer("to", to),
		)
		return false
	}
	r.status = to
	return true
}

// broadcast sends msg to every roster member except the usernames in skip.
func (r *room) broadcast(msg any, skip ...string) {
	targets := make([]Sender, 0, len(r.roster))
	for _, p := range r.roster {
		if slices.Contains(skip, p.username) {
			continue
		}
		targets = append(targets, p.conn)
	}
	Broadcast(msg, targets...)
}

// tick runs fn under the room lock unless the room is already gone and
// reports whether the calling timer should keep going.
func (r *room) tick(fn func() bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	return fn()
}

func (r *room) snapshot() RoomSnapshot {
	return RoomSnapshot{
		ID:         r.id,
		Status:     r.status,
		Players:    r.usernames(),
		QuestionID: r.question.ID,
		Remaining:  r.remaining,
		Winner:     r.winner,
		CreatedAt:  r.created,
	}
}
