package roomhandler

type ErrorResponse struct {
	Error string `json:"error"`
}

type HealthResponse struct {
	Status      string `json:"status"`
	Rooms       int    `json:"rooms"`
	Connections int    `json:"connections"`
}

type ListRoomsQuery struct {
	Status string `form:"status" binding:"omitempty,oneof=waiting countdown active completed"`
}
