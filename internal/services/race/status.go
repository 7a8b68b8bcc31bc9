package race

// Status is the lifecycle stage of a room.
//
//	waiting → countdown → active → completed
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusCountdown Status = "countdown"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// transitions lists the only legal moves; everything else is rejected.
var transitions = map[Status]Status{
	StatusWaiting:   StatusCountdown,
	StatusCountdown: StatusActive,
	StatusActive:    StatusCompleted,
}

// CanTransition reports whether a room may move from one status to another.
func CanTransition(from, to Status) bool {
	next, ok := transitions[from]
	return ok && next == to
}

func (s Status) String() string { return string(s) }
