package tiered

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/RayAdrian/DiscordQueueBot-sub000/internal/storage"
)

type item struct {
	Key   string `json:"key"`
	Value int    `json:"value"`
}

func itemKey(i *item) string { return i.Key }

// memStore is an in-memory Store with injectable failures
type memStore struct {
	mu    sync.Mutex
	items map[string]item

	findOneCalls int
	findCalls    int
	failReads    int // number of upcoming reads that fail
	failWrites   error

	// afterFindOne runs once FindOne has read, before it returns
	afterFindOne func()
}

var errBoom = errors.New("boom")

func newMemStore(items ...item) *memStore {
	s := &memStore{items: make(map[string]item)}
	for _, i := range items {
		s.items[i.Key] = i
	}
	return s
}

func (s *memStore) readFault() error {
	if s.failReads > 0 {
		s.failReads--
		return errBoom
	}
	return nil
}

func (s *memStore) FindOne(_ context.Context, key string) (*item, error) {
	s.mu.Lock()
	s.findOneCalls++
	if err := s.readFault(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	i, ok := s.items[key]
	hook := s.afterFindOne
	s.afterFindOne = nil
	s.mu.Unlock()

	if hook != nil {
		hook()
	}
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &i, nil
}

func (s *memStore) value(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.items[key].Value
}

func (s *memStore) Find(context.Context) ([]*item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.findCalls++
	if err := s.readFault(); err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(s.items))
	for k := range s.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]*item, 0, len(keys))
	for _, k := range keys {
		i := s.items[k]
		out = append(out, &i)
	}
	return out, nil
}

func (s *memStore) Create(_ context.Context, i *item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrites != nil {
		return s.failWrites
	}
	if _, ok := s.items[i.Key]; ok {
		return storage.ErrAlreadyExists
	}
	s.items[i.Key] = *i
	return nil
}

func (s *memStore) Update(_ context.Context, i *item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrites != nil {
		return s.failWrites
	}
	if _, ok := s.items[i.Key]; !ok {
		return storage.ErrNotFound
	}
	s.items[i.Key] = *i
	return nil
}

func (s *memStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrites != nil {
		return s.failWrites
	}
	if _, ok := s.items[key]; !ok {
		return storage.ErrNotFound
	}
	delete(s.items, key)
	return nil
}

func (s *memStore) DeleteMany(_ context.Context, keys []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrites != nil {
		return s.failWrites
	}
	for _, k := range keys {
		delete(s.items, k)
	}
	return nil
}

// flakyTier fails every call while broken is set, and only sets while
// failSets is set
type flakyTier struct {
	mu       sync.Mutex
	data     map[string]string
	broken   bool
	failSets bool
}

func newFlakyTier() *flakyTier {
	return &flakyTier{data: make(map[string]string)}
}

func (t *flakyTier) Get(_ context.Context, key string) (string, bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.broken {
		return "", false, errBoom
	}
	v, ok := t.data[key]
	return v, ok, nil
}

func (t *flakyTier) Set(_ context.Context, key, value string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.broken || t.failSets {
		return errBoom
	}
	t.data[key] = value
	return nil
}

func (t *flakyTier) Del(_ context.Context, keys ...string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.broken {
		return errBoom
	}
	for _, k := range keys {
		delete(t.data, k)
	}
	return nil
}

func (t *flakyTier) has(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.data[key]
	return ok
}

func (t *flakyTier) get(key string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.data[key]
}

func (t *flakyTier) setFailSets(b bool) {
	t.mu.Lock()
	t.failSets = b
	t.mu.Unlock()
}

func (t *flakyTier) setBroken(b bool) {
	t.mu.Lock()
	t.broken = b
	t.mu.Unlock()
}
