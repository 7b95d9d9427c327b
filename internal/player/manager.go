package player

import "sync"

// Manager keeps one player per guild.
type Manager struct {
	mu      sync.Mutex
	players map[string]*Player
}

func NewManager() *Manager {
	return &Manager{players: make(map[string]*Player)}
}

// GetOrCreate returns the guild's player, building one via build on first
// use. The build callback runs under the manager lock; creation is rare and
// cheap enough that this does not matter.
func (m *Manager) GetOrCreate(guildID string, build func() (*Player, error)) (*Player, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.players[guildID]; ok {
		return p, nil
	}
	p, err := build()
	if err != nil {
		return nil, err
	}
	m.players[guildID] = p
	return p, nil
}

// Peek returns the guild's player without creating one.
func (m *Manager) Peek(guildID string) (*Player, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.players[guildID]
	return p, ok
}

// All returns a snapshot of every live player keyed by guild.
func (m *Manager) All() map[string]*Player {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]*Player, len(m.players))
	for k, v := range m.players {
		out[k] = v
	}
	return out
}

// Remove kills and forgets the guild's player.
func (m *Manager) Remove(guildID string) {
	m.mu.Lock()
	p, ok := m.players[guildID]
	delete(m.players, guildID)
	m.mu.Unlock()
	if ok {
		p.Kill()
	}
}
