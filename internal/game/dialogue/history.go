package dialogue

import (
	"context"
	"sort"
	"sync"
)

// HistoryStore persists completed conversations per NPC.
//
// Implementations MUST be safe for concurrent use.
type HistoryStore interface {
	// Save replaces the stored history of npcID with convs.
	Save(ctx context.Context, npcID string, convs []Conversation) error
	// Load returns the stored history of npcID, oldest first. An NPC with no
	// history yields an empty slice and no error.
	Load(ctx context.Context, npcID string) ([]Conversation, error)
}

// MemoryHistory is an in-process HistoryStore.
type MemoryHistory struct {
	mu    sync.Mutex
	convs map[string][]Conversation
}

// NewMemoryHistory returns an empty MemoryHistory.
func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{convs: make(map[string][]Conversation)}
}

// Save implements HistoryStore.
func (m *MemoryHistory) Save(_ context.Context, npcID string, convs []Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.convs[npcID] = cloneConversations(convs)
	return nil
}

// Load implements HistoryStore.
func (m *MemoryHistory) Load(_ context.Context, npcID string) ([]Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneConversations(m.convs[npcID]), nil
}

// NPCIDs returns the NPCs with stored history, sorted.
func (m *MemoryHistory) NPCIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.convs))
	for id := range m.convs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func cloneConversations(convs []Conversation) []Conversation {
	out := make([]Conversation, len(convs))
	for i, c := range convs {
		c.Exchanges = append([]Exchange(nil), c.Exchanges...)
		out[i] = c
	}
	return out
}

// appendCapped appends c to convs and keeps only the newest max entries.
func appendCapped(convs []Conversation, c Conversation, max int) []Conversation {
	convs = append(convs, c)
	if max > 0 && len(convs) > max {
		convs = append([]Conversation(nil), convs[len(convs)-max:]...)
	}
	return convs
}
