package duelwire

import "encoding/json"

// Event names sent by clients.
const (
	EventJoinQueue    = "join_queue"
	EventLeaveQueue   = "leave_queue"
	EventSubmitAnswer = "submit_answer"
)

// Event names sent to clients.
const (
	EventPresenceUpdate   = "presence_update"
	EventQueueStatus      = "queue_status"
	EventMatchFound       = "match_found"
	EventMatchResolved    = "match_resolved"
	EventAnswerResult     = "answer_result"
	EventMatchmakingError = "matchmaking_error"
)

// Resolution reasons carried by match_resolved.
const (
	ReasonCorrectAnswer        = "correct_answer"
	ReasonOpponentDisconnected = "opponent_disconnected"
)

// Envelope is the frame exchanged over the websocket in both directions.
// Data is decoded lazily by the receiving side based on Event.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Pack wraps a payload into an Envelope for the given event.
func Pack(event string, payload any) (*Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Envelope{Event: event, Data: raw}, nil
}

type SubmitAnswer struct {
	MatchID string `json:"matchId"`
	Answer  string `json:"answer"`
}

type PresenceUpdate struct {
	UserIDs []string `json:"userIds"`
}

type QueueStatus struct {
	Message string `json:"message"`
}

type Artifact struct {
	DisplayName string `json:"displayName"`
	Locator     string `json:"locator"`
}

type MatchFound struct {
	MatchID      string     `json:"matchId"`
	OpponentID   string     `json:"opponentId"`
	OpponentName string     `json:"opponentName"`
	Artifacts    []Artifact `json:"artifacts"`
}

type MatchResolved struct {
	MatchID  string `json:"matchId"`
	WinnerID string `json:"winnerId"`
	LoserID  string `json:"loserId"`
	Reason   string `json:"reason"`
}

type AnswerResult struct {
	Accepted bool   `json:"accepted"`
	Message  string `json:"message"`
}

type MatchmakingError struct {
	Message string `json:"message"`
}
