package ws

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"slices"
	"time"

	"coderace/internal/services/race"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var errNotJoined = errors.New("connection has not joined a room")

type Options struct {
	AllowedOrigins  []string
	ReadLimit       int64
	PingPeriod      time.Duration
	PongWait        time.Duration
	DispatchTimeout time.Duration
}

func (o *Options) setDefaults() {
	if o.ReadLimit <= 0 {
		o.ReadLimit = 64 << 10
	}
	if o.PingPeriod <= 0 {
		o.PingPeriod = 30 * time.Second
	}
	if o.PongWait <= o.PingPeriod {
		o.PongWait = o.PingPeriod + o.PingPeriod/3
	}
	if o.DispatchTimeout <= 0 {
		o.DispatchTimeout = 15 * time.Second
	}
}

type WsServer struct {
	hub      *Hub
	router   *Router
	raceSvc  race.IRaceService
	upgrader websocket.Upgrader
	opts     Options
}

func NewWsServer(h *Hub, raceSvc race.IRaceService, opts Options) *WsServer {
	opts.setDefaults()
	srv := &WsServer{
		hub:     h,
		router:  NewRouter(),
		raceSvc: raceSvc,
		opts:    opts,
	}
	srv.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     srv.checkOrigin,
	}
	srv.registerHandlers() // ← all message types configured here
	return srv
}

// ---------------------------------------------------------------------------
//  Public: Gin entry-point
// ---------------------------------------------------------------------------

func (s *WsServer) Handle(ginCtx *gin.Context) {
	rawConn, err := s.upgrader.Upgrade(ginCtx.Writer, ginCtx.Request, nil)
	if err != nil {
		zap.L().Warn("ws.accept", zap.Error(err))
		return
	}
	// A frame over the limit fails the read and closes the connection
	// (close code 1009); it is not skipped like a malformed frame.
	rawConn.SetReadLimit(s.opts.ReadLimit)

	conn := newClientConn(uuid.NewString(), rawConn)
	s.hub.add(conn)
	zap.L().Debug("ws.connected", zap.String("conn_id", conn.id), zap.String("remote", ginCtx.ClientIP()))

	go conn.writePump(s.opts.PingPeriod)
	go s.reader(conn)
}

// ---------------------------------------------------------------------------
//  Private helpers
// ---------------------------------------------------------------------------

func (s *WsServer) registerHandlers() {
	// 🔹 join_room ------------------------------------------------------------
	Register(
		s.router,
		TypeJoinRoom,
		func(ctx context.Context, cc *ConnContext, req JoinRoomRequest) error {
			if cc.joined() {
				return race.ErrAlreadyJoined
			}
			if _, err := s.raceSvc.Join(ctx, req.RoomID, req.Username, cc.conn); err != nil {
				return err
			}
			cc.bind(req.RoomID, req.Username)
			return nil
		},
	)

	// 🔹 sync_code ------------------------------------------------------------
	Register(
		s.router,
		TypeSyncCode,
		func(ctx context.Context, cc *ConnContext, req SyncCodeRequest) error {
			if !cc.joined() {
				return errNotJoined
			}
			return s.raceSvc.SyncCode(ctx, cc.RoomID, cc.Username, req.Code)
		},
	)

	// 🔹 submit_code ----------------------------------------------------------
	Register(
		s.router,
		TypeSubmitCode,
		func(ctx context.Context, cc *ConnContext, req SubmitCodeRequest) error {
			if !cc.joined() {
				return errNotJoined
			}
			return s.raceSvc.SubmitCode(ctx, cc.RoomID, cc.Username, req.Code)
		},
	)
}

func (s *WsServer) reader(conn *clientConn) {
	cc := &ConnContext{ConnID: conn.id, conn: conn}

	defer func() {
		if cc.joined() {
			s.raceSvc.Leave(cc.RoomID, cc.Username)
		}
		s.hub.remove(conn)
		conn.close()
		zap.L().Debug("ws.disconnected",
			zap.String("conn_id", conn.id),
			zap.String("room_id", cc.RoomID),
			zap.String("username", cc.Username),
		)
	}()

	_ = conn.rawConn.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	conn.rawConn.SetPongHandler(func(string) error {
		return conn.rawConn.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	})

	for {
		mt, payload, err := conn.rawConn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				zap.L().Debug("ws.read", zap.String("conn_id", conn.id), zap.Error(err))
			}
			return // client closed or errored
		}
		if mt != websocket.TextMessage {
			continue
		}
		_ = conn.rawConn.SetReadDeadline(time.Now().Add(s.opts.PongWait))

		ctx, cancel := context.WithTimeout(context.Background(), s.opts.DispatchTimeout)
		err = s.router.dispatch(ctx, cc, payload)
		cancel()

		if err == nil {
			continue
		}
		if msg, ok := clientError(err); ok {
			_ = conn.sendJSON(race.NewErrorMessage(msg))
			continue
		}
		zap.L().Debug("ws.dropped",
			zap.String("conn_id", conn.id),
			zap.String("room_id", cc.RoomID),
			zap.Error(err),
		)
	}
}

// clientError decides which dispatch errors are reported to the sender.
// Protocol problems and messages from unbound connections are dropped.
func clientError(err error) (string, bool) {
	switch {
	case errors.Is(err, race.ErrNameTaken),
		errors.Is(err, race.ErrRoomFull),
		errors.Is(err, race.ErrAlreadyJoined):
		return err.Error(), true
	case errors.Is(err, ErrUnknownType),
		errors.Is(err, ErrBadPayload),
		errors.Is(err, errNotJoined),
		errors.Is(err, race.ErrRoomNotFound),
		errors.Is(err, race.ErrNotInRoom):
		return "", false
	case errors.Is(err, race.ErrServiceStopped):
		return "server is shutting down", true
	default:
		zap.L().Error("ws.dispatch", zap.Error(err))
		return "internal error", true
	}
}

func (s *WsServer) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.opts.AllowedOrigins) == 0 || slices.Contains(s.opts.AllowedOrigins, "*") {
		return true
	}
	if slices.Contains(s.opts.AllowedOrigins, origin) {
		return true
	}
	u, err := url.Parse(origin)
	return err == nil && u.Host == r.Host
}
