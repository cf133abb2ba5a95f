// Package redis persists conversation history in Redis using go-redis.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/cory-johannsen/npcfleet/internal/config"
	"github.com/cory-johannsen/npcfleet/internal/game/dialogue"
)

// NewClient connects to Redis and verifies the connection with PING.
//
// Precondition: cfg.Addr must be non-empty.
// Postcondition: Returns a connected client or a non-nil error; the caller
// must Close the client.
func NewClient(ctx context.Context, cfg config.RedisConfig) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return rdb, nil
}

// HistoryStore keeps each NPC's history as one JSON document under
// "<prefix>:history:<npcID>" and tracks the NPCs in the set
// "<prefix>:history:npcs".
//
// It implements dialogue.HistoryStore.
type HistoryStore struct {
	client goredis.UniversalClient
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

var _ dialogue.HistoryStore = (*HistoryStore)(nil)

// NewHistoryStore wraps client. A ttl of 0 keeps history forever.
//
// Precondition: client and logger must be non-nil.
func NewHistoryStore(client goredis.UniversalClient, prefix string, ttl time.Duration, logger *zap.Logger) *HistoryStore {
	if prefix == "" {
		prefix = "npcfleet"
	}
	return &HistoryStore{client: client, prefix: prefix, ttl: ttl, logger: logger}
}

func (s *HistoryStore) key(npcID string) string {
	return s.prefix + ":history:" + npcID
}

func (s *HistoryStore) indexKey() string {
	return s.prefix + ":history:npcs"
}

// Save replaces the stored history of npcID. Saving no conversations removes
// the key.
//
// Precondition: npcID must be non-empty.
func (s *HistoryStore) Save(ctx context.Context, npcID string, convs []dialogue.Conversation) error {
	if npcID == "" {
		return fmt.Errorf("saving history: empty npc id")
	}
	if len(convs) == 0 {
		_, err := s.client.TxPipelined(ctx, func(p goredis.Pipeliner) error {
			p.Del(ctx, s.key(npcID))
			p.SRem(ctx, s.indexKey(), npcID)
			return nil
		})
		if err != nil {
			return fmt.Errorf("redis clear history of %q: %w", npcID, err)
		}
		return nil
	}

	body, err := json.Marshal(convs)
	if err != nil {
		return fmt.Errorf("encoding history of %q: %w", npcID, err)
	}
	_, err = s.client.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.Set(ctx, s.key(npcID), body, s.ttl)
		p.SAdd(ctx, s.indexKey(), npcID)
		return nil
	})
	if err != nil {
		s.logger.Error("redis history save failed", zap.String("npc_id", npcID), zap.Error(err))
		return fmt.Errorf("redis save history of %q: %w", npcID, err)
	}
	s.logger.Debug("history saved",
		zap.String("npc_id", npcID),
		zap.Int("conversations", len(convs)),
		zap.Int("bytes", len(body)),
	)
	return nil
}

// Load returns the stored history of npcID, oldest first. A missing or
// expired key yields an empty slice.
func (s *HistoryStore) Load(ctx context.Context, npcID string) ([]dialogue.Conversation, error) {
	body, err := s.client.Get(ctx, s.key(npcID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return []dialogue.Conversation{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis load history of %q: %w", npcID, err)
	}
	var convs []dialogue.Conversation
	if err := json.Unmarshal(body, &convs); err != nil {
		return nil, fmt.Errorf("decoding history of %q: %w", npcID, err)
	}
	if convs == nil {
		convs = []dialogue.Conversation{}
	}
	return convs, nil
}

// NPCIDs returns every NPC with stored history, sorted. Members whose key
// has expired are pruned from the index.
func (s *HistoryStore) NPCIDs(ctx context.Context) ([]string, error) {
	members, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list history npcs: %w", err)
	}
	ids := make([]string, 0, len(members))
	for _, id := range members {
		n, err := s.client.Exists(ctx, s.key(id)).Result()
		if err != nil {
			return nil, fmt.Errorf("redis exists %q: %w", id, err)
		}
		if n == 0 {
			s.client.SRem(ctx, s.indexKey(), id)
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
