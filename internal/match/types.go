package match

import "time"

// Identity is the stable external user reference used as the pairing key.
// It is supplied by the auth layer at connection time and never owned here.
type Identity struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

// Artifact is a published challenge file a participant can retrieve.
type Artifact struct {
	DisplayName string `json:"display_name"`
	Locator     string `json:"locator"`
}

// Challenge is the shared secret of a match: one correct answer plus the
// artifacts both participants receive. Immutable once selected.
type Challenge struct {
	Name      string     `json:"name"`
	Answer    string     `json:"answer"`
	Artifacts []Artifact `json:"artifacts"`
}

// Match is stored as JSON in Redis under match:<id> for the lifetime of the
// game. Its presence in the registry is the mutual-exclusion mechanism for
// resolution: the first terminating path deletes it, later ones see nothing.
type Match struct {
	ID        string    `json:"id"`
	A         Identity  `json:"a"`
	B         Identity  `json:"b"`
	Challenge Challenge `json:"challenge"`
	CreatedAt time.Time `json:"created_at"`
}

// HasParticipant reports whether userID is one of the two participants.
func (m *Match) HasParticipant(userID string) bool {
	return m.A.ID == userID || m.B.ID == userID
}

// Opponent returns the other participant.
func (m *Match) Opponent(userID string) (Identity, bool) {
	switch userID {
	case m.A.ID:
		return m.B, true
	case m.B.ID:
		return m.A, true
	}
	return Identity{}, false
}
