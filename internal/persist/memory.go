package persist

import (
	"encoding/json"
	"sort"
	"sync"
)

// Memory is a Driver without persistence, for tests and throwaway setups.
type Memory struct {
	mu   sync.RWMutex
	dirs map[string]map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{dirs: make(map[string]map[string][]byte)}
}

func (m *Memory) UserDir() string {
	return "users"
}

func (m *Memory) Init() error {
	return nil
}

func (m *Memory) Store(dir string, id string, data any) error {
	jd, err := json.Marshal(data)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dirs[dir] == nil {
		m.dirs[dir] = make(map[string][]byte)
	}
	m.dirs[dir][id] = jd
	return nil
}

func (m *Memory) Load(dir string, id string, obj any) error {
	m.mu.RLock()
	jd, ok := m.dirs[dir][id]
	m.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}
	return json.Unmarshal(jd, obj)
}

func (m *Memory) DirList(dir string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.dirs[dir]))
	for id := range m.dirs[dir] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *Memory) Delete(dir string, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.dirs[dir][id]; !ok {
		return ErrNotFound
	}
	delete(m.dirs[dir], id)
	return nil
}
