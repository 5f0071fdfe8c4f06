package match

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(func() { mr.Close() })
	return NewRegistry(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
}

func testChallenge() Challenge {
	return Challenge{
		Name:   "shroomish",
		Answer: "FLAG{spore}",
		Artifacts: []Artifact{
			{DisplayName: "chall.py", Locator: "mem://matches/m1/chall.py"},
		},
	}
}

func TestCreateAndGet(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	id := NewMatchID()
	m, err := r.Create(ctx, id, user("u1"), user("u2"), testChallenge())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if m.ID != id {
		t.Fatalf("id mismatch: %q vs %q", m.ID, id)
	}

	got, err := r.Get(ctx, id)
	if err != nil || got == nil {
		t.Fatalf("Get: %v", err)
	}
	if got.A.ID != "u1" || got.B.ID != "u2" || got.Challenge.Answer != "FLAG{spore}" {
		t.Fatalf("stored match corrupted: %+v", got)
	}

	if missing, err := r.Get(ctx, "match-nope"); err != nil || missing != nil {
		t.Fatalf("expected nil for unknown id, got %+v err=%v", missing, err)
	}
}

func TestCreateRejectsInvalidParticipants(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()
	if _, err := r.Create(ctx, NewMatchID(), user("u1"), user("u1"), testChallenge()); err == nil {
		t.Fatalf("expected error for identical participants")
	}
	if _, err := r.Create(ctx, NewMatchID(), Identity{}, user("u2"), testChallenge()); err == nil {
		t.Fatalf("expected error for empty participant")
	}
}

func TestResolveAtMostOnce(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	id := NewMatchID()
	if _, err := r.Create(ctx, id, user("u1"), user("u2"), testChallenge()); err != nil {
		t.Fatalf("Create: %v", err)
	}

	first, err := r.Resolve(ctx, id)
	if err != nil || first == nil {
		t.Fatalf("first Resolve: %v, match=%v", err, first)
	}
	second, err := r.Resolve(ctx, id)
	if err != nil {
		t.Fatalf("second Resolve: %v", err)
	}
	if second != nil {
		t.Fatalf("second Resolve returned a match; resolution must be at-most-once")
	}
	if got, _ := r.Get(ctx, id); got != nil {
		t.Fatalf("match still present after resolution")
	}
}

func TestFindByParticipant(t *testing.T) {
	r := newTestRegistry(t)
	ctx := context.Background()

	id := NewMatchID()
	if _, err := r.Create(ctx, id, user("u1"), user("u2"), testChallenge()); err != nil {
		t.Fatalf("Create: %v", err)
	}

	for _, uid := range []string{"u1", "u2"} {
		m, err := r.FindByParticipant(ctx, uid)
		if err != nil || m == nil || m.ID != id {
			t.Fatalf("FindByParticipant(%s): m=%v err=%v", uid, m, err)
		}
	}
	m, err := r.FindByParticipant(ctx, "u3")
	if err != nil || m != nil {
		t.Fatalf("expected no match for outsider, got %v err=%v", m, err)
	}

	if _, err := r.Resolve(ctx, id); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	m, err = r.FindByParticipant(ctx, "u1")
	if err != nil || m != nil {
		t.Fatalf("resolved match still findable: %v", m)
	}
}

func TestMatchIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewMatchID()
		if seen[id] {
			t.Fatalf("duplicate match id %q", id)
		}
		seen[id] = true
	}
}
