package match

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/chronopad/hacking-saga-app/internal/obslog"
	"go.uber.org/zap"
)

// Registry holds the authoritative record of every in-progress match.
// Resolution is an atomic GETDEL on the match key, so exactly one
// terminating path ever observes the match; everyone else gets nil.
type Registry struct {
	rdb *redis.Client
}

func NewRegistry(rdb *redis.Client) *Registry { return &Registry{rdb: rdb} }

func matchKey(id string) string       { return "match:" + strings.TrimSpace(id) }
func idxUserKey(userID string) string { return "match:index:user:" + strings.TrimSpace(userID) }

// NewMatchID returns an id unique across the process lifetime: wall-clock
// nanos plus a random suffix so two pairings in the same instant cannot
// collide.
func NewMatchID() string {
	return fmt.Sprintf("match-%d-%s", time.Now().UnixNano(), uuid.NewString()[:8])
}

// Create stores a new match under the given id and indexes both participants.
// Matches carry no TTL: an abandoned match stays open until an answer or a
// disconnect ends it.
func (r *Registry) Create(ctx context.Context, id string, a, b Identity, ch Challenge) (*Match, error) {
	if strings.TrimSpace(id) == "" || a.ID == "" || b.ID == "" || a.ID == b.ID {
		return nil, fmt.Errorf("invalid participants for match %q", id)
	}
	m := &Match{ID: id, A: a, B: b, Challenge: ch, CreatedAt: time.Now()}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	if err := r.rdb.Set(ctx, matchKey(id), raw, 0).Err(); err != nil {
		return nil, err
	}
	if err := r.rdb.SAdd(ctx, idxUserKey(a.ID), id).Err(); err != nil {
		return nil, err
	}
	if err := r.rdb.SAdd(ctx, idxUserKey(b.ID), id).Err(); err != nil {
		return nil, err
	}
	return m, nil
}

// Get returns the match or nil when absent.
func (r *Registry) Get(ctx context.Context, id string) (*Match, error) {
	raw, err := r.rdb.Get(ctx, matchKey(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var m Match
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Resolve atomically fetches and deletes the match. A nil result means a
// concurrent terminating path already resolved it and the caller must do
// nothing further. This is the single choke point for ending a match.
func (r *Registry) Resolve(ctx context.Context, id string) (*Match, error) {
	raw, err := r.rdb.GetDel(ctx, matchKey(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var m Match
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	// Index cleanup is best-effort; a stale index entry only costs an extra
	// Get that comes back empty.
	if err := r.rdb.SRem(ctx, idxUserKey(m.A.ID), id).Err(); err != nil {
		obslog.L().Warn("match_index_cleanup", zap.String("match_id", id), zap.Error(err))
	}
	if err := r.rdb.SRem(ctx, idxUserKey(m.B.ID), id).Err(); err != nil {
		obslog.L().Warn("match_index_cleanup", zap.String("match_id", id), zap.Error(err))
	}
	return &m, nil
}

// FindByParticipant returns the newest in-progress match the user is part of,
// or nil when there is none.
func (r *Registry) FindByParticipant(ctx context.Context, userID string) (*Match, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, nil
	}
	ids, err := r.rdb.SMembers(ctx, idxUserKey(userID)).Result()
	if err != nil {
		return nil, err
	}
	var list []*Match
	for _, id := range ids {
		m, gerr := r.Get(ctx, id)
		if gerr != nil {
			return nil, gerr
		}
		if m != nil {
			list = append(list, m)
		}
	}
	if len(list) == 0 {
		return nil, nil
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
	return list[0], nil
}
