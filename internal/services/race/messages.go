package race

// Outbound envelope types. Every frame is a flat JSON object keyed by "type".
const (
	TypeError            = "error"
	TypePlayerJoined     = "player_joined"
	TypeCodeUpdate       = "code_update"
	TypeCountdown        = "countdown"
	TypeRaceStarted      = "race_started"
	TypeSubmissionResult = "submission_result"
	TypeRaceFinished     = "race_finished"
	TypeGameOver         = "game_over"
)

const timeoutMessage = "no one solved it in time"

type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func NewErrorMessage(msg string) ErrorMessage {
	return ErrorMessage{Type: TypeError, Message: msg}
}

type PlayerJoinedMessage struct {
	Type    string   `json:"type"`
	Players []string `json:"players"`
}

type CodeUpdateMessage struct {
	Type     string `json:"type"`
	Username string `json:"username"`
	Code     string `json:"code"`
}

type CountdownMessage struct {
	Type      string `json:"type"`
	Countdown int    `json:"countdown"`
}

type RaceStartedMessage struct {
	Type     string   `json:"type"`
	Question Question `json:"question"`
	Time     int      `json:"time"`
}

type SubmissionResultMessage struct {
	Type     string   `json:"type"`
	Username string   `json:"username"`
	Success  bool     `json:"success"`
	Results  []string `json:"results"`
}

type RaceFinishedMessage struct {
	Type    string `json:"type"`
	Winner  string `json:"winner"`
	Message string `json:"message"`
}

type GameOverMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
