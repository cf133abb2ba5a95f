package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/npcfleet/internal/game/dialogue"
)

// HistoryRepository stores completed conversations in the conversations
// table. Exchanges are kept as a JSONB array on the conversation row.
//
// It implements dialogue.HistoryStore.
type HistoryRepository struct {
	db *pgxpool.Pool
}

var _ dialogue.HistoryStore = (*HistoryRepository)(nil)

// NewHistoryRepository creates a HistoryRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool with the
// conversations migration applied.
func NewHistoryRepository(db *pgxpool.Pool) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Save replaces the stored history of npcID with convs in one transaction.
//
// Precondition: npcID must be non-empty.
// Postcondition: Load(npcID) returns convs in the same order, or the previous
// history is untouched when an error is returned.
func (r *HistoryRepository) Save(ctx context.Context, npcID string, convs []dialogue.Conversation) error {
	if npcID == "" {
		return fmt.Errorf("saving history: empty npc id")
	}
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM conversations WHERE npc_id = $1`, npcID); err != nil {
		return fmt.Errorf("clearing history of %q: %w", npcID, err)
	}

	batch := &pgx.Batch{}
	for i, c := range convs {
		exchanges, err := marshalExchanges(c.Exchanges)
		if err != nil {
			return fmt.Errorf("encoding conversation %s: %w", c.ID, err)
		}
		id := c.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		batch.Queue(
			`INSERT INTO conversations (id, npc_id, position, started_at, ended_at, reason, exchanges)
			 VALUES ($1::uuid, $2, $3, $4, $5, $6, $7::jsonb)`,
			id.String(), npcID, i, c.StartedAt, c.EndedAt, c.Reason, exchanges,
		)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("inserting history of %q: %w", npcID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing history of %q: %w", npcID, err)
	}
	return nil
}

// Load returns the stored history of npcID, oldest first.
//
// Postcondition: An NPC with no rows yields an empty, non-nil slice.
func (r *HistoryRepository) Load(ctx context.Context, npcID string) ([]dialogue.Conversation, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id::text, started_at, ended_at, reason, exchanges::text
		 FROM conversations
		 WHERE npc_id = $1
		 ORDER BY position`,
		npcID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying history of %q: %w", npcID, err)
	}
	defer rows.Close()

	convs := make([]dialogue.Conversation, 0)
	for rows.Next() {
		var (
			id        string
			exchanges string
			c         dialogue.Conversation
		)
		if err := rows.Scan(&id, &c.StartedAt, &c.EndedAt, &c.Reason, &exchanges); err != nil {
			return nil, fmt.Errorf("scanning conversation: %w", err)
		}
		if c.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parsing conversation id %q: %w", id, err)
		}
		if c.Exchanges, err = unmarshalExchanges(exchanges); err != nil {
			return nil, fmt.Errorf("decoding conversation %s: %w", id, err)
		}
		c.NPCID = npcID
		convs = append(convs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating history of %q: %w", npcID, err)
	}
	return convs, nil
}

// NPCIDs returns every NPC with stored history, sorted.
func (r *HistoryRepository) NPCIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT DISTINCT npc_id FROM conversations ORDER BY npc_id`)
	if err != nil {
		return nil, fmt.Errorf("listing npc ids: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("collecting npc ids: %w", err)
	}
	return ids, nil
}

func marshalExchanges(ex []dialogue.Exchange) (string, error) {
	if ex == nil {
		ex = []dialogue.Exchange{}
	}
	b, err := json.Marshal(ex)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func unmarshalExchanges(s string) ([]dialogue.Exchange, error) {
	var ex []dialogue.Exchange
	if err := json.Unmarshal([]byte(s), &ex); err != nil {
		return nil, err
	}
	return ex, nil
}
