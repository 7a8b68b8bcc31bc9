package ws

// Inbound envelope types.
const (
	TypeJoinRoom   = "join_room"
	TypeSyncCode   = "sync_code"
	TypeSubmitCode = "submit_code"
)

// Envelope is the part of every inbound frame needed to route it.
type Envelope struct {
	Type string `json:"type"`
}

type JoinRoomRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	RoomID   string `json:"room_id"  validate:"required,max=128"`
}

type SyncCodeRequest struct {
	Code string `json:"code" validate:"max=65536"`
}

// SubmitCodeRequest accepts an empty code string; the judge answers it
// with a failing verdict like any other broken submission.
type SubmitCodeRequest struct {
	Code string `json:"code" validate:"max=65536"`
}
