package match

import "time"

type queueEntry struct {
	user       Identity
	enqueuedAt time.Time
}

// Queue is the strict-FIFO matchmaking queue. It is owned by the engine
// goroutine and is deliberately not safe for concurrent use.
type Queue struct {
	entries []queueEntry
}

func NewQueue() *Queue { return &Queue{} }

// Enqueue appends the user unless already present. Returns false when the
// user already holds a slot (join is idempotent, never duplicating).
func (q *Queue) Enqueue(user Identity) bool {
	if q.Contains(user.ID) {
		return false
	}
	q.entries = append(q.entries, queueEntry{user: user, enqueuedAt: time.Now()})
	return true
}

// DequeuePair removes and returns the two oldest entries when at least two
// users are waiting.
func (q *Queue) DequeuePair() (Identity, Identity, bool) {
	if len(q.entries) < 2 {
		return Identity{}, Identity{}, false
	}
	a, b := q.entries[0].user, q.entries[1].user
	q.entries = append(q.entries[:0], q.entries[2:]...)
	return a, b, true
}

// Remove deletes the user from the queue wherever it sits. Idempotent;
// reports whether a removal happened.
func (q *Queue) Remove(userID string) bool {
	for i, e := range q.entries {
		if e.user.ID == userID {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return true
		}
	}
	return false
}

// RequeueFront reinserts users at the head of the queue in the given order,
// preserving their priority over entries that arrived while a failed pairing
// was in flight. Users already present keep their existing slot.
func (q *Queue) RequeueFront(users ...Identity) {
	head := make([]queueEntry, 0, len(users))
	now := time.Now()
	for _, u := range users {
		if q.Contains(u.ID) {
			continue
		}
		head = append(head, queueEntry{user: u, enqueuedAt: now})
	}
	q.entries = append(head, q.entries...)
}

func (q *Queue) Contains(userID string) bool {
	for _, e := range q.entries {
		if e.user.ID == userID {
			return true
		}
	}
	return false
}

func (q *Queue) Len() int { return len(q.entries) }
