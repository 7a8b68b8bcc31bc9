package roomhandler

import (
	"errors"
	"net/http"

	"coderace/internal/services/race"

	"github.com/gin-gonic/gin"
)

// ConnCounter reports how many websocket clients are connected.
type ConnCounter interface {
	Count() int
}

type Handler struct {
	svc   race.IRaceService
	conns ConnCounter
}

func New(svc race.IRaceService, conns ConnCounter) *Handler {
	return &Handler{svc: svc, conns: conns}
}

func (h *Handler) Register(r gin.IRoutes) {
	r.GET("/healthz", h.health)
	r.GET("/rooms", h.list)
	r.GET("/rooms/:id", h.info)
}

// @Summary		Liveness and load
// @Description	Reports how many rooms are live and how many websocket clients are connected.
// @Tags			Health
// @Success		200	{object}	HealthResponse
// @Router			/healthz [get]
func (h *Handler) health(c *gin.Context) {
	resp := HealthResponse{Status: "ok", Rooms: len(h.svc.ListRooms())}
	if h.conns != nil {
		resp.Connections = h.conns.Count()
	}
	c.JSON(http.StatusOK, resp)
}

// @Summary		List rooms
// @Description	Returns a snapshot of every live room ordered by id, optionally filtered by status.
// @Tags			Rooms
// @Param			status	query		string	false	"Status filter"	Enums(waiting,countdown,active,completed)
// @Success		200		{array}		race.RoomSnapshot
// @Failure		400		{object}	ErrorResponse
// @Router			/rooms [get]
func (h *Handler) list(c *gin.Context) {
	var q ListRoomsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	rooms := h.svc.ListRooms()
	if q.Status != "" {
		filtered := rooms[:0]
		for _, r := range rooms {
			if string(r.Status) == q.Status {
				filtered = append(filtered, r)
			}
		}
		rooms = filtered
	}
	c.JSON(http.StatusOK, rooms)
}

// @Summary		Get room details
// @Description	Returns the roster, status, remaining time and winner of a single room.
// @Tags			Rooms
// @Param			id	path		string	true	"Room ID"	default(room1)
// @Success		200	{object}	race.RoomSnapshot
// @Failure		404	{object}	ErrorResponse
// @Failure		500	{object}	ErrorResponse
// @Router			/rooms/{id} [get]
func (h *Handler) info(c *gin.Context) {
	snap, err := h.svc.GetRoom(c.Param("id"))
	if errors.Is(err, race.ErrRoomNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, snap)
}
