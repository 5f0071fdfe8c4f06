package realtime

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/chronopad/hacking-saga-app/internal/match"
	"github.com/chronopad/hacking-saga-app/internal/obslog"
	"github.com/chronopad/hacking-saga-app/pkg/duelwire"
)

const (
	RealmPresence = "presence"
	RealmMatch    = "match"
)

// Lifecycle is the slice of the match engine the hub drives. Every method is
// a fire-and-forget command post.
type Lifecycle interface {
	Connected(user match.Identity)
	Disconnected(user match.Identity)
	JoinQueue(user match.Identity)
	LeaveQueue(user match.Identity)
	SubmitAnswer(user match.Identity, matchID, answer string)
}

// Hub owns the identity→connection mapping for both realms. At most one live
// session per identity per realm: a newer connection supersedes and
// force-closes the older one. The presence realm additionally tracks
// anonymous sessions, which receive broadcasts but never appear in them.
type Hub struct {
	mu             sync.RWMutex
	presenceAll    map[*Session]struct{}
	presenceByUser map[string]*Session
	matchByUser    map[string]*Session

	lifecycle Lifecycle

	// IdentityFromRequest extracts the authenticated identity from the
	// handshake. The default reads the userId/displayName query parameters
	// the way the frontend sends them.
	IdentityFromRequest func(r *http.Request) match.Identity

	egressBuffer   int
	originPatterns []string
}

func NewHub(egressBuffer int) *Hub {
	return &Hub{
		presenceAll:         make(map[*Session]struct{}),
		presenceByUser:      make(map[string]*Session),
		matchByUser:         make(map[string]*Session),
		IdentityFromRequest: QueryIdentity,
		egressBuffer:        egressBuffer,
		originPatterns:      []string{"*"},
	}
}

// SetLifecycle wires the match engine in after construction; the engine needs
// the hub as its Notifier first.
func (h *Hub) SetLifecycle(l Lifecycle) { h.lifecycle = l }

// QueryIdentity reads the identity the auth layer bound to the handshake
// query. An empty id means unauthenticated.
func QueryIdentity(r *http.Request) match.Identity {
	q := r.URL.Query()
	id := strings.TrimSpace(q.Get("userId"))
	name := strings.TrimSpace(q.Get("displayName"))
	if name == "" {
		name = id
	}
	return match.Identity{ID: id, DisplayName: name}
}

// Notify implements match.Notifier: the target's current match-realm session
// is looked up at send time, never cached, so a superseded connection can
// never receive events meant for the user.
func (h *Hub) Notify(userID, event string, payload any) {
	h.mu.RLock()
	sess := h.matchByUser[userID]
	h.mu.RUnlock()
	if sess == nil {
		obslog.L().Debug("notify_no_session", zap.String("user_id", userID), zap.String("event", event))
		return
	}
	sess.send(event, payload)
}

func (h *Hub) addPresence(s *Session) {
	var old *Session
	h.mu.Lock()
	if s.user.ID != "" {
		old = h.presenceByUser[s.user.ID]
		h.presenceByUser[s.user.ID] = s
	}
	h.presenceAll[s] = struct{}{}
	h.mu.Unlock()
	if old != nil && old.id != s.id {
		old.forceClose("superseded by newer connection")
	}
	h.broadcastPresence()
}

func (h *Hub) removePresence(s *Session) {
	h.mu.Lock()
	delete(h.presenceAll, s)
	if s.user.ID != "" && h.presenceByUser[s.user.ID] == s {
		delete(h.presenceByUser, s.user.ID)
	}
	h.mu.Unlock()
	h.broadcastPresence()
}

func (h *Hub) addMatch(s *Session) {
	h.mu.Lock()
	old := h.matchByUser[s.user.ID]
	h.matchByUser[s.user.ID] = s
	h.mu.Unlock()
	if old != nil && old.id != s.id {
		obslog.L().Info("session_superseded",
			zap.String("user_id", s.user.ID),
			zap.String("old_session", old.id),
			zap.String("new_session", s.id),
		)
		old.forceClose("superseded by newer connection")
	}
	h.lifecycle.Connected(s.user)
}

// removeMatch evicts the mapping only when s is still the current session, so
// the delayed close of a superseded connection cannot evict its replacement.
// Disconnect handling in the engine still runs for the identity either way.
func (h *Hub) removeMatch(s *Session) {
	h.mu.Lock()
	current := h.matchByUser[s.user.ID] == s
	if current {
		delete(h.matchByUser, s.user.ID)
	}
	h.mu.Unlock()
	if !current {
		obslog.L().Debug("stale_session_close", zap.String("user_id", s.user.ID), zap.String("session_id", s.id))
	}
	h.lifecycle.Disconnected(s.user)
}

// broadcastPresence pushes the full set of online identities to every
// presence-realm client, anonymous ones included.
func (h *Hub) broadcastPresence() {
	h.mu.RLock()
	ids := make([]string, 0, len(h.presenceByUser))
	for id := range h.presenceByUser {
		ids = append(ids, id)
	}
	sessions := make([]*Session, 0, len(h.presenceAll))
	for s := range h.presenceAll {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()

	sort.Strings(ids)
	payload := duelwire.PresenceUpdate{UserIDs: ids}
	for _, s := range sessions {
		s.send(duelwire.EventPresenceUpdate, payload)
	}
}

func (h *Hub) dispatch(s *Session, env *duelwire.Envelope) {
	if s.realm != RealmMatch {
		obslog.L().Debug("ignore_presence_event", zap.String("event", env.Event))
		return
	}
	switch env.Event {
	case duelwire.EventJoinQueue:
		h.lifecycle.JoinQueue(s.user)
	case duelwire.EventLeaveQueue:
		h.lifecycle.LeaveQueue(s.user)
	case duelwire.EventSubmitAnswer:
		var req duelwire.SubmitAnswer
		if err := json.Unmarshal(env.Data, &req); err != nil {
			obslog.L().Warn("bad_submit_answer", zap.String("user_id", s.user.ID), zap.Error(err))
			return
		}
		h.lifecycle.SubmitAnswer(s.user, req.MatchID, req.Answer)
	default:
		obslog.L().Warn("unknown_event", zap.String("event", env.Event), zap.String("user_id", s.user.ID))
	}
}
