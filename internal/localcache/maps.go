package localcache

import (
	"sort"
	"sync"

	"github.com/RayAdrian/DiscordQueueBot-sub000/internal/model"
)

// entityMap is a mutex-guarded map of entity snapshots. Values are cloned on
// the way in and out so callers never share memory with the cache.
type entityMap[E any] struct {
	mu    sync.RWMutex
	items map[string]*E
	clone func(*E) *E
}

func (m *entityMap[E]) setup(clone func(*E) *E) {
	m.items = make(map[string]*E)
	m.clone = clone
}

// reset drops every entry
func (m *entityMap[E]) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.items)
}

func (m *entityMap[E]) get(key string) (*E, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.items[key]
	if !ok {
		return nil, false
	}
	return m.clone(e), true
}

func (m *entityMap[E]) put(key string, e *E) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = m.clone(e)
}

func (m *entityMap[E]) remove(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
}

func (m *entityMap[E]) keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.items))
	for k := range m.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// all returns snapshots ordered by key
func (m *entityMap[E]) all() []*E {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.items))
	for k := range m.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]*E, 0, len(keys))
	for _, k := range keys {
		out = append(out, m.clone(m.items[k]))
	}
	return out
}

func (m *entityMap[E]) size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

// GamesCache mirrors every game by name
type GamesCache struct {
	entityMap[model.Game]
}

func newGamesCache() *GamesCache {
	c := &GamesCache{}
	c.setup((*model.Game).Clone)
	return c
}

func (c *GamesCache) set(g *model.Game) { c.put(g.Name, g) }

// LineupsCache mirrors every lineup by game name
type LineupsCache struct {
	entityMap[model.Lineup]
}

func newLineupsCache() *LineupsCache {
	c := &LineupsCache{}
	c.setup((*model.Lineup).Clone)
	return c
}

func (c *LineupsCache) set(l *model.Lineup) { c.put(l.GameName, l) }

// UsersCache mirrors every known user by id
type UsersCache struct {
	entityMap[model.User]
}

func newUsersCache() *UsersCache {
	c := &UsersCache{}
	c.setup((*model.User).Clone)
	return c
}

func (c *UsersCache) set(u *model.User) { c.put(u.ID, u) }
