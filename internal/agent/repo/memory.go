package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/email-assistant-core/server/internal/agent/model"
	errx "github.com/email-assistant-core/server/internal/core/error"
	logx "github.com/email-assistant-core/server/pkg/logger"
)

// RedisMemoryStore keeps one Redis hash per namespace, field = item ID.
// Search is keyword overlap; there is no embedding index.
type RedisMemoryStore struct {
	rdb redis.Cmdable
	now func() time.Time
}

func NewRedisMemoryStore(rdb redis.Cmdable) *RedisMemoryStore {
	return &RedisMemoryStore{rdb: rdb, now: time.Now}
}

func (s *RedisMemoryStore) key(ns model.Namespace) string {
	return "memory:" + ns.String()
}

func (s *RedisMemoryStore) Put(ctx context.Context, ns model.Namespace, id, content string) (*model.MemoryItem, error) {
	now := s.now().UTC()
	item := &model.MemoryItem{ID: id, Content: content, CreatedAt: now, UpdatedAt: now}
	if item.ID == "" {
		item.ID = uuid.NewString()
	} else if prev, err := s.Get(ctx, ns, id); err == nil {
		item.CreatedAt = prev.CreatedAt
	} else if !errors.Is(err, errx.ErrNotFound) {
		return nil, err
	}

	b, err := json.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("marshal memory item: %w", err)
	}
	if err := s.rdb.HSet(ctx, s.key(ns), item.ID, b).Err(); err != nil {
		logx.Error().Err(err).Str("namespace", ns.String()).Msg("failed to store memory")
		return nil, errx.WrapRedis(err)
	}
	return item, nil
}

func (s *RedisMemoryStore) Get(ctx context.Context, ns model.Namespace, id string) (*model.MemoryItem, error) {
	raw, err := s.rdb.HGet(ctx, s.key(ns), id).Result()
	if errors.Is(err, redis.Nil) {
		return nil, errx.NotFound("memory %s in %s", id, ns)
	}
	if err != nil {
		return nil, errx.WrapRedis(err)
	}
	return decodeItem(raw)
}

func (s *RedisMemoryStore) Delete(ctx context.Context, ns model.Namespace, id string) error {
	n, err := s.rdb.HDel(ctx, s.key(ns), id).Result()
	if err != nil {
		return errx.WrapRedis(err)
	}
	if n == 0 {
		return errx.NotFound("memory %s in %s", id, ns)
	}
	return nil
}

// Search ranks items by the share of query terms they contain, newest first
// on ties. An empty query returns the most recently updated items.
func (s *RedisMemoryStore) Search(ctx context.Context, ns model.Namespace, query string, limit int) ([]*model.MemoryItem, error) {
	rows, err := s.rdb.HGetAll(ctx, s.key(ns)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, errx.WrapRedis(err)
	}

	terms := tokenize(query)
	out := make([]*model.MemoryItem, 0, len(rows))
	for id, raw := range rows {
		item, err := decodeItem(raw)
		if err != nil {
			logx.Warn().Err(err).Str("namespace", ns.String()).Str("id", id).Msg("skipping undecodable memory")
			continue
		}
		item.Score = score(terms, item.Content)
		if len(terms) > 0 && item.Score == 0 {
			continue
		}
		out = append(out, item)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func decodeItem(raw string) (*model.MemoryItem, error) {
	var item model.MemoryItem
	if err := json.Unmarshal([]byte(raw), &item); err != nil {
		return nil, fmt.Errorf("unmarshal memory item: %w", err)
	}
	return &item, nil
}

func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '@' && r != '.'
	})
	seen := make(map[string]bool, len(fields))
	out := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, ".")
		if len(f) < 2 || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}

func score(terms []string, content string) float64 {
	if len(terms) == 0 {
		return 0
	}
	content = strings.ToLower(content)
	hits := 0
	for _, t := range terms {
		if strings.Contains(content, t) {
			hits++
		}
	}
	return float64(hits) / float64(len(terms))
}

var _ model.MemoryStore = (*RedisMemoryStore)(nil)
