package match

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/chronopad/hacking-saga-app/internal/msgcat"
	"github.com/chronopad/hacking-saga-app/internal/obslog"
	"github.com/chronopad/hacking-saga-app/pkg/duelwire"
)

// Notifier delivers an event to the identity's CURRENT match-realm
// connection, looked up at send time. Delivery to a user with no live
// connection is a silent no-op.
type Notifier interface {
	Notify(userID, event string, payload any)
}

// ChallengeProvider prepares a challenge bundle for a match: picks one,
// publishes its artifacts under the match id and returns the answer plus
// public locators. It is the only asynchronous step in the lifecycle.
type ChallengeProvider interface {
	Provision(ctx context.Context, matchID string) (*Challenge, error)
}

var errNilChallenge = errors.New("provider returned no challenge")

type cmdKind int

const (
	cmdConnect cmdKind = iota
	cmdDisconnect
	cmdJoinQueue
	cmdLeaveQueue
	cmdSubmitAnswer
	cmdProvisionDone
)

type command struct {
	kind    cmdKind
	user    Identity
	matchID string
	answer  string

	// provisioning completion
	pairA     Identity
	pairB     Identity
	challenge *Challenge
	err       error
}

// Engine runs the match lifecycle protocol on a single goroutine: every
// inbound event (join, leave, answer, disconnect) is a command processed to
// completion before the next one, so queue and registry mutations never
// interleave. Challenge provisioning runs off-loop and reports back as a
// command of its own.
type Engine struct {
	registry *Registry
	provider ChallengeProvider
	notifier Notifier
	messages *msgcat.Catalog

	queue *Queue

	// connCount tracks live match-realm connections per identity. A
	// superseding connection briefly overlaps with the one it replaces, so
	// this is a count rather than a set.
	connCount map[string]int

	// reserved marks the two identities of an in-flight provisioning pair so
	// they cannot re-enter the queue before the pairing settles.
	reserved map[string]bool

	statusNotices bool

	cmds chan command
	done chan struct{}
}

func NewEngine(registry *Registry, provider ChallengeProvider, notifier Notifier, messages *msgcat.Catalog) *Engine {
	return &Engine{
		registry:      registry,
		provider:      provider,
		notifier:      notifier,
		messages:      messages,
		queue:         NewQueue(),
		connCount:     make(map[string]int),
		reserved:      make(map[string]bool),
		statusNotices: true,
		cmds:          make(chan command, 64),
		done:          make(chan struct{}),
	}
}

// SetStatusNotices toggles the informational queue_status events. Protocol
// events (match_found, match_resolved, answer_result, matchmaking_error) are
// always sent.
func (e *Engine) SetStatusNotices(enabled bool) { e.statusNotices = enabled }

// Run processes commands until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	defer close(e.done)
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-e.cmds:
			e.handle(ctx, c)
		}
	}
}

func (e *Engine) post(c command) {
	select {
	case e.cmds <- c:
	case <-e.done:
	}
}

// Connected records a live match-realm connection for the identity.
func (e *Engine) Connected(user Identity) { e.post(command{kind: cmdConnect, user: user}) }

// Disconnected runs disconnect handling for the identity: queue removal and,
// if a match is in progress, forfeit. The hub calls this for every closing
// match-realm session, superseded ones included.
func (e *Engine) Disconnected(user Identity) { e.post(command{kind: cmdDisconnect, user: user}) }

func (e *Engine) JoinQueue(user Identity)  { e.post(command{kind: cmdJoinQueue, user: user}) }
func (e *Engine) LeaveQueue(user Identity) { e.post(command{kind: cmdLeaveQueue, user: user}) }

func (e *Engine) SubmitAnswer(user Identity, matchID, answer string) {
	e.post(command{kind: cmdSubmitAnswer, user: user, matchID: matchID, answer: answer})
}

func (e *Engine) handle(ctx context.Context, c command) {
	switch c.kind {
	case cmdConnect:
		e.connCount[c.user.ID]++
	case cmdDisconnect:
		e.handleDisconnect(ctx, c.user)
	case cmdJoinQueue:
		e.handleJoinQueue(ctx, c.user)
	case cmdLeaveQueue:
		e.handleLeaveQueue(c.user)
	case cmdSubmitAnswer:
		e.handleSubmitAnswer(ctx, c)
	case cmdProvisionDone:
		e.handleProvisionDone(ctx, c)
	}
}

func (e *Engine) handleJoinQueue(ctx context.Context, user Identity) {
	if strings.TrimSpace(user.ID) == "" {
		obslog.L().Warn("queue_join_no_identity")
		return
	}
	if e.reserved[user.ID] || !e.queue.Enqueue(user) {
		e.notifyStatus(user.ID, "queue.already")
		return
	}
	obslog.L().Info("queue_join", zap.String("user_id", user.ID), zap.Int("queue_len", e.queue.Len()))
	e.notifyStatus(user.ID, "queue.joined")
	e.maybePair(ctx)
}

func (e *Engine) handleLeaveQueue(user Identity) {
	removed := e.queue.Remove(user.ID)
	obslog.L().Info("queue_leave", zap.String("user_id", user.ID), zap.Bool("removed", removed))
	if removed {
		e.notifyStatus(user.ID, "queue.left")
	}
}

// maybePair dequeues the two oldest waiting users and starts provisioning
// for them. The pair is out of the queue (and reserved) for the duration, so
// no third user can be paired against either of them mid-flight.
func (e *Engine) maybePair(ctx context.Context) {
	a, b, ok := e.queue.DequeuePair()
	if !ok {
		return
	}
	e.reserved[a.ID], e.reserved[b.ID] = true, true

	// Match id is fixed before provisioning so artifacts land in a
	// match-scoped namespace in the object store.
	matchID := NewMatchID()
	obslog.L().Info("match_provision_start",
		zap.String("match_id", matchID),
		zap.String("user_a", a.ID),
		zap.String("user_b", b.ID),
	)
	go func() {
		ch, err := e.provider.Provision(ctx, matchID)
		e.post(command{kind: cmdProvisionDone, matchID: matchID, pairA: a, pairB: b, challenge: ch, err: err})
	}()
}

func (e *Engine) handleProvisionDone(ctx context.Context, c command) {
	a, b := c.pairA, c.pairB
	delete(e.reserved, a.ID)
	delete(e.reserved, b.ID)

	if c.err == nil && c.challenge == nil {
		c.err = errNilChallenge
	}
	if c.err != nil {
		obslog.L().Warn("match_provision_failed",
			zap.String("match_id", c.matchID),
			zap.String("user_a", a.ID),
			zap.String("user_b", b.ID),
			zap.Error(c.err),
		)
		// Both go back to the FRONT of the queue in their original order; a
		// later enqueue will trigger the next pairing attempt.
		e.queue.RequeueFront(a, b)
		msg := duelwire.MatchmakingError{Message: e.messages.Render("match.provision_failed", nil)}
		e.notifier.Notify(a.ID, duelwire.EventMatchmakingError, msg)
		e.notifier.Notify(b.ID, duelwire.EventMatchmakingError, msg)
		return
	}

	// A participant may have dropped while artifacts were uploading. Starting
	// the match anyway would leave it open with nobody to forfeit it, so the
	// survivor goes back to the front instead.
	aLive, bLive := e.connCount[a.ID] > 0, e.connCount[b.ID] > 0
	if !aLive || !bLive {
		obslog.L().Info("match_pair_abandoned",
			zap.String("match_id", c.matchID),
			zap.Bool("a_live", aLive),
			zap.Bool("b_live", bLive),
		)
		if aLive {
			e.requeueSurvivor(a)
		}
		if bLive {
			e.requeueSurvivor(b)
		}
		e.maybePair(ctx)
		return
	}

	m, err := e.registry.Create(ctx, c.matchID, a, b, *c.challenge)
	if err != nil {
		obslog.L().Error("match_create_failed", zap.String("match_id", c.matchID), zap.Error(err))
		e.queue.RequeueFront(a, b)
		msg := duelwire.MatchmakingError{Message: e.messages.Render("match.provision_failed", nil)}
		e.notifier.Notify(a.ID, duelwire.EventMatchmakingError, msg)
		e.notifier.Notify(b.ID, duelwire.EventMatchmakingError, msg)
		return
	}

	obslog.L().Info("match_create",
		zap.String("match_id", m.ID),
		zap.String("challenge", m.Challenge.Name),
		zap.String("user_a", a.ID),
		zap.String("user_b", b.ID),
	)
	artifacts := wireArtifacts(m.Challenge.Artifacts)
	e.notifier.Notify(a.ID, duelwire.EventMatchFound, duelwire.MatchFound{
		MatchID:      m.ID,
		OpponentID:   b.ID,
		OpponentName: b.DisplayName,
		Artifacts:    artifacts,
	})
	e.notifier.Notify(b.ID, duelwire.EventMatchFound, duelwire.MatchFound{
		MatchID:      m.ID,
		OpponentID:   a.ID,
		OpponentName: a.DisplayName,
		Artifacts:    artifacts,
	})
}

func (e *Engine) handleSubmitAnswer(ctx context.Context, c command) {
	m, err := e.registry.Get(ctx, c.matchID)
	if err != nil {
		obslog.L().Error("answer_lookup_failed", zap.String("match_id", c.matchID), zap.Error(err))
		return
	}
	if m == nil {
		e.notifier.Notify(c.user.ID, duelwire.EventAnswerResult,
			duelwire.AnswerResult{Accepted: false, Message: e.messages.Render("answer.invalid_match", nil)})
		return
	}
	if !m.HasParticipant(c.user.ID) {
		e.notifier.Notify(c.user.ID, duelwire.EventAnswerResult,
			duelwire.AnswerResult{Accepted: false, Message: e.messages.Render("answer.not_participant", nil)})
		return
	}
	if strings.TrimSpace(c.answer) != m.Challenge.Answer {
		obslog.L().Info("answer_incorrect", zap.String("match_id", m.ID), zap.String("user_id", c.user.ID))
		e.notifier.Notify(c.user.ID, duelwire.EventAnswerResult,
			duelwire.AnswerResult{Accepted: false, Message: e.messages.Render("answer.incorrect", nil)})
		return
	}

	resolved, err := e.registry.Resolve(ctx, m.ID)
	if err != nil {
		obslog.L().Error("answer_resolve_failed", zap.String("match_id", m.ID), zap.Error(err))
		return
	}
	if resolved == nil {
		// A disconnect forfeit won the race; the first resolution stands.
		obslog.L().Info("answer_after_resolution", zap.String("match_id", m.ID), zap.String("user_id", c.user.ID))
		return
	}
	winner := c.user
	loser, _ := resolved.Opponent(winner.ID)
	obslog.L().Info("match_resolve",
		zap.String("match_id", resolved.ID),
		zap.String("winner", winner.ID),
		zap.String("loser", loser.ID),
		zap.String("reason", duelwire.ReasonCorrectAnswer),
	)
	payload := duelwire.MatchResolved{
		MatchID:  resolved.ID,
		WinnerID: winner.ID,
		LoserID:  loser.ID,
		Reason:   duelwire.ReasonCorrectAnswer,
	}
	e.notifier.Notify(winner.ID, duelwire.EventMatchResolved, payload)
	e.notifier.Notify(loser.ID, duelwire.EventMatchResolved, payload)
}

func (e *Engine) handleDisconnect(ctx context.Context, user Identity) {
	if n := e.connCount[user.ID]; n > 1 {
		e.connCount[user.ID] = n - 1
	} else {
		delete(e.connCount, user.ID)
	}
	e.queue.Remove(user.ID)

	m, err := e.registry.FindByParticipant(ctx, user.ID)
	if err != nil {
		obslog.L().Error("disconnect_lookup_failed", zap.String("user_id", user.ID), zap.Error(err))
		return
	}
	if m == nil {
		return
	}
	resolved, err := e.registry.Resolve(ctx, m.ID)
	if err != nil {
		obslog.L().Error("disconnect_resolve_failed", zap.String("match_id", m.ID), zap.Error(err))
		return
	}
	if resolved == nil {
		// A correct answer got there first.
		return
	}
	winner, _ := resolved.Opponent(user.ID)
	obslog.L().Info("match_resolve",
		zap.String("match_id", resolved.ID),
		zap.String("winner", winner.ID),
		zap.String("loser", user.ID),
		zap.String("reason", duelwire.ReasonOpponentDisconnected),
	)
	e.notifier.Notify(winner.ID, duelwire.EventMatchResolved, duelwire.MatchResolved{
		MatchID:  resolved.ID,
		WinnerID: winner.ID,
		LoserID:  user.ID,
		Reason:   duelwire.ReasonOpponentDisconnected,
	})
}

func (e *Engine) requeueSurvivor(user Identity) {
	e.queue.RequeueFront(user)
	e.notifyStatus(user.ID, "queue.requeued")
}

func (e *Engine) notifyStatus(userID, key string) {
	if !e.statusNotices {
		return
	}
	e.notifier.Notify(userID, duelwire.EventQueueStatus,
		duelwire.QueueStatus{Message: e.messages.Render(key, nil)})
}

func wireArtifacts(in []Artifact) []duelwire.Artifact {
	out := make([]duelwire.Artifact, 0, len(in))
	for _, a := range in {
		out = append(out, duelwire.Artifact{DisplayName: a.DisplayName, Locator: a.Locator})
	}
	return out
}
