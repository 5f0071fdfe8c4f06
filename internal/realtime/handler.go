package realtime

import (
	"net/http"
	"strings"

	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/chronopad/hacking-saga-app/internal/obslog"
)

// Routes mounts the two realm endpoints on mux.
func (h *Hub) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", h.servePresence)
	mux.HandleFunc("/ws/match", h.serveMatch)
}

func (h *Hub) servePresence(w http.ResponseWriter, r *http.Request) { h.serve(w, r, RealmPresence) }
func (h *Hub) serveMatch(w http.ResponseWriter, r *http.Request)    { h.serve(w, r, RealmMatch) }

func (h *Hub) serve(w http.ResponseWriter, r *http.Request, realm string) {
	user := h.IdentityFromRequest(r)

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		obslog.L().Warn("ws_accept", zap.String("realm", realm), zap.Error(err))
		return
	}

	// The match realm requires an authenticated identity; the presence realm
	// tolerates anonymous watchers.
	if realm == RealmMatch && strings.TrimSpace(user.ID) == "" {
		_ = conn.Close(websocket.StatusPolicyViolation, "authentication required")
		return
	}

	s := newSession(user, realm, conn, h.egressBuffer)
	obslog.L().Info("session_open",
		zap.String("realm", realm),
		zap.String("session_id", s.id),
		zap.String("user_id", user.ID),
	)

	if realm == RealmMatch {
		h.addMatch(s)
	} else {
		h.addPresence(s)
	}

	ctx := r.Context()
	go s.writeLoop(ctx)
	s.readLoop(ctx, h)
	s.close(websocket.StatusNormalClosure, "")

	if realm == RealmMatch {
		h.removeMatch(s)
	} else {
		h.removePresence(s)
	}
	obslog.L().Info("session_close",
		zap.String("realm", realm),
		zap.String("session_id", s.id),
		zap.String("user_id", user.ID),
	)
}
