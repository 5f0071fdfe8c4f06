package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/chronopad/hacking-saga-app/internal/match"
	"github.com/chronopad/hacking-saga-app/internal/obslog"
	"github.com/chronopad/hacking-saga-app/pkg/duelwire"
)

const writeTimeout = 10 * time.Second

// Session is one live websocket connection in a realm. Sessions carry their
// own uuid so the hub can tell a stale close apart from the current mapping
// after a supersession.
type Session struct {
	id    string
	user  match.Identity
	realm string
	conn  *websocket.Conn

	egress    chan *duelwire.Envelope
	done      chan struct{}
	closeOnce sync.Once
}

func newSession(user match.Identity, realm string, conn *websocket.Conn, buffer int) *Session {
	if buffer <= 0 {
		buffer = 32
	}
	return &Session{
		id:     uuid.NewString(),
		user:   user,
		realm:  realm,
		conn:   conn,
		egress: make(chan *duelwire.Envelope, buffer),
		done:   make(chan struct{}),
	}
}

// send queues an envelope for delivery. A full egress buffer drops the frame
// rather than blocking the caller.
func (s *Session) send(event string, payload any) {
	env, err := duelwire.Pack(event, payload)
	if err != nil {
		obslog.L().Error("egress_encode", zap.String("event", event), zap.Error(err))
		return
	}
	select {
	case <-s.done:
		return
	default:
	}
	select {
	case s.egress <- env:
	default:
		obslog.L().Warn("egress_full",
			zap.String("session_id", s.id),
			zap.String("user_id", s.user.ID),
			zap.String("event", event),
		)
	}
}

func (s *Session) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case env := <-s.egress:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, s.conn, env)
			cancel()
			if err != nil {
				s.close(websocket.StatusAbnormalClosure, "write failed")
				return
			}
		}
	}
}

// readLoop blocks until the connection drops or the client closes.
func (s *Session) readLoop(ctx context.Context, h *Hub) {
	for {
		var env duelwire.Envelope
		if err := wsjson.Read(ctx, s.conn, &env); err != nil {
			return
		}
		h.dispatch(s, &env)
	}
}

// forceClose terminates a superseded session.
func (s *Session) forceClose(reason string) {
	s.close(websocket.StatusPolicyViolation, reason)
}

func (s *Session) close(code websocket.StatusCode, reason string) {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.conn != nil {
			_ = s.conn.Close(code, reason)
		}
	})
}
