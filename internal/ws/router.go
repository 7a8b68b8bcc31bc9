package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	ErrUnknownType = errors.New("unknown_type")
	ErrBadPayload  = errors.New("bad_payload")
)

var validate = validator.New()

// ConnContext carries the room binding of one connection. It is only touched
// by that connection's reader goroutine.
type ConnContext struct {
	ConnID   string
	RoomID   string
	Username string

	conn *clientConn
}

func (cc *ConnContext) joined() bool { return cc.RoomID != "" && cc.Username != "" }

func (cc *ConnContext) bind(roomID, username string) {
	cc.RoomID = roomID
	cc.Username = username
}

// internal (untyped) handler signature.
type rawHandler func(ctx context.Context, c *ConnContext, payload []byte) error

// Router keeps a map[type]handler, à-la gin.Engine.
type Router struct {
	mu       sync.RWMutex
	handlers map[string]rawHandler
}

func NewRouter() *Router { return &Router{handlers: make(map[string]rawHandler)} }

// Register binds a message type to a strongly-typed handler. The whole frame
// is decoded into Req and validated before h runs.
func Register[Req any](
	r *Router,
	msgType string,
	h func(ctx context.Context, c *ConnContext, req Req) error,
) {
	if msgType == "" {
		panic("ws router: empty type")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.handlers[msgType] = func(ctx context.Context, c *ConnContext, payload []byte) error {
		var req Req
		if err := json.Unmarshal(payload, &req); err != nil {
			return fmt.Errorf("%w: %v", ErrBadPayload, err)
		}
		if err := validate.Struct(req); err != nil {
			return fmt.Errorf("%w: %v", ErrBadPayload, err)
		}
		return h(ctx, c, req)
	}
}

// dispatch is called by the server's reader loop.
func (r *Router) dispatch(ctx context.Context, c *ConnContext, payload []byte) error {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return fmt.Errorf("%w: %v", ErrBadPayload, err)
	}

	r.mu.RLock()
	h, ok := r.handlers[env.Type]
	r.mu.RUnlock()
	if !ok {
		return ErrUnknownType
	}
	return h(ctx, c, payload)
}
