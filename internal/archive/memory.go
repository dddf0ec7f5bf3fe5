package archive

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Memory keeps finished games in process. Used when no database is configured.
type Memory struct {
	mu     sync.RWMutex
	byID   map[string]FinishedGame
	byUser map[string][]string
}

func NewMemory() *Memory {
	return &Memory{
		byID:   make(map[string]FinishedGame),
		byUser: make(map[string][]string),
	}
}

func (m *Memory) Record(_ context.Context, game FinishedGame) error {
	id := game.ID.String()
	user := strings.ToLower(game.Username)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byID[id]; exists {
		return ErrDuplicateGame
	}
	game.History = append([]string(nil), game.History...)
	m.byID[id] = game
	m.byUser[user] = append(m.byUser[user], id)
	return nil
}

func (m *Memory) Recent(_ context.Context, username string, limit int) ([]FinishedGame, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := m.byUser[strings.ToLower(username)]
	items := make([]FinishedGame, 0, len(ids))
	for _, id := range ids {
		g := m.byID[id]
		g.History = append([]string(nil), g.History...)
		items = append(items, g)
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].FinishedAt.After(items[j].FinishedAt)
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}
