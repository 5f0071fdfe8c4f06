package match

import "testing"

func user(id string) Identity { return Identity{ID: id, DisplayName: id} }

func TestEnqueueIdempotent(t *testing.T) {
	q := NewQueue()
	if !q.Enqueue(user("u1")) {
		t.Fatalf("first enqueue rejected")
	}
	if q.Enqueue(user("u1")) {
		t.Fatalf("duplicate enqueue accepted")
	}
	if q.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", q.Len())
	}
}

func TestDequeuePairFIFO(t *testing.T) {
	q := NewQueue()
	if _, _, ok := q.DequeuePair(); ok {
		t.Fatalf("pair from empty queue")
	}
	q.Enqueue(user("u1"))
	if _, _, ok := q.DequeuePair(); ok {
		t.Fatalf("pair from single-entry queue")
	}
	q.Enqueue(user("u2"))
	q.Enqueue(user("u3"))
	a, b, ok := q.DequeuePair()
	if !ok {
		t.Fatalf("expected a pair")
	}
	if a.ID != "u1" || b.ID != "u2" {
		t.Fatalf("expected oldest-first pair u1,u2 got %s,%s", a.ID, b.ID)
	}
	if q.Len() != 1 || !q.Contains("u3") {
		t.Fatalf("queue should hold only u3, len=%d", q.Len())
	}
}

func TestRemove(t *testing.T) {
	q := NewQueue()
	q.Enqueue(user("u1"))
	q.Enqueue(user("u2"))
	if !q.Remove("u1") {
		t.Fatalf("remove of queued user failed")
	}
	if q.Remove("u1") {
		t.Fatalf("second remove reported a removal")
	}
	if q.Len() != 1 || q.Contains("u1") {
		t.Fatalf("u1 still present")
	}
}

func TestRequeueFrontKeepsPriority(t *testing.T) {
	q := NewQueue()
	q.Enqueue(user("u1"))
	q.Enqueue(user("u2"))
	a, b, _ := q.DequeuePair()

	// A newcomer arrives while the failed pair is in flight.
	q.Enqueue(user("u3"))
	q.RequeueFront(a, b)

	x, y, ok := q.DequeuePair()
	if !ok || x.ID != "u1" || y.ID != "u2" {
		t.Fatalf("requeued pair lost priority: got %s,%s", x.ID, y.ID)
	}
	if _, _, ok := q.DequeuePair(); ok {
		t.Fatalf("unexpected second pair")
	}
	if !q.Contains("u3") {
		t.Fatalf("newcomer dropped")
	}
}

func TestRequeueFrontSkipsPresent(t *testing.T) {
	q := NewQueue()
	q.Enqueue(user("u1"))
	q.RequeueFront(user("u1"))
	if q.Len() != 1 {
		t.Fatalf("requeue duplicated a present user: len=%d", q.Len())
	}
}
