// Package tiered implements the read-through/write-through repository shared
// by every entity service. Reads prefer the cache tier and fall back to the
// durable store; writes commit to the store first and then mirror the result
// into the cache tier on a best-effort basis.
package tiered

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RayAdrian/DiscordQueueBot-sub000/internal/cache"
	"github.com/RayAdrian/DiscordQueueBot-sub000/internal/storage"
	"github.com/cenkalti/backoff/v5"
)

// ErrStoreUnavailable wraps every durable store failure other than a missing
// or duplicate record.
var ErrStoreUnavailable = errors.New("durable store unavailable")

// Store is the durable persistence adapter for one entity type.
// FindOne and Delete return storage.ErrNotFound for missing keys and Create
// returns storage.ErrAlreadyExists for duplicates.
type Store[E any] interface {
	FindOne(ctx context.Context, key string) (*E, error)
	Find(ctx context.Context) ([]*E, error)
	Create(ctx context.Context, e *E) error
	Update(ctx context.Context, e *E) error
	Delete(ctx context.Context, key string) error
	DeleteMany(ctx context.Context, keys []string) error
}

// Options tunes I/O behaviour at the tier boundaries
type Options struct {
	StoreTimeout time.Duration
	CacheTimeout time.Duration
	// ReadRetries is the number of extra attempts for store reads. Writes are
	// never retried.
	ReadRetries uint
}

// Repository is a tiered repository for entities of type E
type Repository[E any] struct {
	prefix string
	store  Store[E]
	tier   cache.Tier
	keyOf  func(*E) string
	opts   Options

	// tierMu serializes cache tier writes: propagation after a commit,
	// read-through write-backs and the aggregate read-modify-write
	tierMu sync.Mutex
	// writes counts propagated commits. A read-through result is written
	// back only if no commit was propagated while it was being read.
	writes atomic.Uint64

	// dirty holds cache keys whose tier entry may be stale because a set and
	// the delete that followed it both failed. They are read from the store
	// until a later set succeeds.
	dirtyMu sync.Mutex
	dirty   map[string]struct{}
}

// New creates a repository. prefix namespaces cache keys ("game", "lineup").
// A nil tier disables the cache tier.
func New[E any](prefix string, store Store[E], tier cache.Tier, keyOf func(*E) string, opts Options) *Repository[E] {
	return &Repository[E]{
		prefix: prefix,
		store:  store,
		tier:   cache.Optional(tier),
		keyOf:  keyOf,
		opts:   opts,
		dirty:  make(map[string]struct{}),
	}
}

func (r *Repository[E]) entryKey(key string) string {
	return r.prefix + ":" + key
}

func (r *Repository[E]) allKey() string {
	return r.prefix + ":all"
}

// Get resolves one entity, populating the cache tier on a store hit
func (r *Repository[E]) Get(ctx context.Context, key string) (*E, error) {
	var e E
	if hit, _ := r.cacheGet(ctx, r.entryKey(key), &e); hit {
		return &e, nil
	}

	epoch := r.writes.Load()
	found, err := retryRead(ctx, r, func(sctx context.Context) (*E, error) {
		return r.store.FindOne(sctx, key)
	})
	if err != nil {
		return nil, err
	}

	r.writeBack(epoch, func() { r.cacheSet(ctx, r.entryKey(key), found) })
	return found, nil
}

// All resolves every entity, populating the cache tier on a store hit
func (r *Repository[E]) All(ctx context.Context) ([]*E, error) {
	var list []*E
	if hit, _ := r.cacheGet(ctx, r.allKey(), &list); hit {
		return list, nil
	}

	epoch := r.writes.Load()
	list, err := r.find(ctx)
	if err != nil {
		return nil, err
	}

	r.writeBack(epoch, func() { r.populateLocked(ctx, list) })
	return list, nil
}

// Reload reads every entity from the store, never from the cache tier, and
// rewrites the tier from the result. Entries listed by the previous aggregate
// that are no longer in the store are dropped.
func (r *Repository[E]) Reload(ctx context.Context) ([]*E, error) {
	list, err := r.find(ctx)
	if err != nil {
		return nil, err
	}
	if !cache.Enabled(r.tier) {
		return list, nil
	}

	r.tierMu.Lock()
	defer r.tierMu.Unlock()
	r.writes.Add(1)

	var prev []*E
	if hit, _ := r.cacheGet(ctx, r.allKey(), &prev); hit {
		live := make(map[string]bool, len(list))
		for _, e := range list {
			live[r.keyOf(e)] = true
		}
		var gone []string
		for _, e := range prev {
			if k := r.keyOf(e); !live[k] {
				gone = append(gone, r.entryKey(k))
			}
		}
		if len(gone) > 0 {
			r.evict(ctx, gone...)
		}
	}

	r.populateLocked(ctx, list)
	return list, nil
}

// Populate writes every entity and the aggregate entry to the cache tier
func (r *Repository[E]) Populate(ctx context.Context, list []*E) {
	if !cache.Enabled(r.tier) {
		return
	}
	r.tierMu.Lock()
	defer r.tierMu.Unlock()
	r.writes.Add(1)
	r.populateLocked(ctx, list)
}

func (r *Repository[E]) populateLocked(ctx context.Context, list []*E) {
	for _, e := range list {
		r.cacheSet(ctx, r.entryKey(r.keyOf(e)), e)
	}
	if list == nil {
		list = []*E{}
	}
	r.cacheSet(ctx, r.allKey(), list)
}

func (r *Repository[E]) find(ctx context.Context) ([]*E, error) {
	return retryRead(ctx, r, func(sctx context.Context) ([]*E, error) {
		return r.store.Find(sctx)
	})
}

// writeBack runs fn under tierMu unless a commit was propagated after epoch
func (r *Repository[E]) writeBack(epoch uint64, fn func()) {
	if !cache.Enabled(r.tier) {
		return
	}
	r.tierMu.Lock()
	defer r.tierMu.Unlock()
	if r.writes.Load() != epoch {
		return
	}
	fn()
}

// Create inserts a new entity and mirrors it into the cache tier
func (r *Repository[E]) Create(ctx context.Context, e *E) error {
	if err := r.write(ctx, "create", func(sctx context.Context) error { return r.store.Create(sctx, e) }); err != nil {
		return err
	}
	r.propagate(ctx, r.keyOf(e), e)
	return nil
}

// Update persists a mutated entity and mirrors it into the cache tier
func (r *Repository[E]) Update(ctx context.Context, e *E) error {
	if err := r.write(ctx, "update", func(sctx context.Context) error { return r.store.Update(sctx, e) }); err != nil {
		return err
	}
	r.propagate(ctx, r.keyOf(e), e)
	return nil
}

// Delete removes an entity from the store and the cache tier
func (r *Repository[E]) Delete(ctx context.Context, key string) error {
	if err := r.write(ctx, "delete", func(sctx context.Context) error { return r.store.Delete(sctx, key) }); err != nil {
		return err
	}
	r.propagate(ctx, key, nil)
	return nil
}

// DeleteMany removes several entities in one store call
func (r *Repository[E]) DeleteMany(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := r.write(ctx, "delete many", func(sctx context.Context) error { return r.store.DeleteMany(sctx, keys) }); err != nil {
		return err
	}
	for _, k := range keys {
		r.propagate(ctx, k, nil)
	}
	return nil
}

func (r *Repository[E]) write(ctx context.Context, op string, fn func(context.Context) error) error {
	sctx, cancel := withTimeout(ctx, r.opts.StoreTimeout)
	defer cancel()

	err := fn(sctx)
	if err == nil {
		return nil
	}
	if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrAlreadyExists) {
		return err
	}
	return fmt.Errorf("%w: %s %s: %w", ErrStoreUnavailable, r.prefix, op, err)
}

func retryRead[E any, T any](ctx context.Context, r *Repository[E], fn func(context.Context) (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = time.Second

	res, err := backoff.Retry(ctx, func() (T, error) {
		sctx, cancel := withTimeout(ctx, r.opts.StoreTimeout)
		defer cancel()

		v, err := fn(sctx)
		if errors.Is(err, storage.ErrNotFound) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(r.opts.ReadRetries+1))
	if err == nil {
		return res, nil
	}
	if errors.Is(err, storage.ErrNotFound) {
		return res, storage.ErrNotFound
	}
	return res, fmt.Errorf("%w: %s read: %w", ErrStoreUnavailable, r.prefix, err)
}

// propagate mirrors a committed write into the per-key and aggregate cache
// entries. e == nil means the key was deleted. Failures are logged only, and
// any entry that could not be brought up to date is evicted.
func (r *Repository[E]) propagate(ctx context.Context, key string, e *E) {
	if !cache.Enabled(r.tier) {
		return
	}

	r.tierMu.Lock()
	defer r.tierMu.Unlock()
	r.writes.Add(1)

	var ok bool
	if e == nil {
		ok = r.evict(ctx, r.entryKey(key))
	} else {
		ok = r.cacheSet(ctx, r.entryKey(key), e)
	}
	if !ok {
		// the tier is failing; the aggregate would only be patched from a
		// stale copy
		r.evict(ctx, r.allKey())
		return
	}

	var list []*E
	hit, err := r.cacheGet(ctx, r.allKey(), &list)
	if err != nil {
		r.evict(ctx, r.allKey())
		return
	}
	if !hit {
		// absent aggregate is rebuilt by the next All
		return
	}

	replaced := false
	next := list[:0]
	for _, item := range list {
		if r.keyOf(item) != key {
			next = append(next, item)
			continue
		}
		if e != nil {
			next = append(next, e)
			replaced = true
		}
	}
	if e != nil && !replaced {
		next = append(next, e)
	}
	r.cacheSet(ctx, r.allKey(), next)
}

// Invalidate drops the per-key and aggregate entries so the next read goes
// to the store
func (r *Repository[E]) Invalidate(ctx context.Context, keys ...string) {
	if !cache.Enabled(r.tier) {
		return
	}
	entries := make([]string, 0, len(keys)+1)
	for _, k := range keys {
		entries = append(entries, r.entryKey(k))
	}
	r.tierMu.Lock()
	defer r.tierMu.Unlock()
	r.writes.Add(1)
	r.evict(ctx, append(entries, r.allKey())...)
}

// cacheGet decodes a tier entry into dst. Dirty keys always miss. The error
// is the tier's own failure, already logged.
func (r *Repository[E]) cacheGet(ctx context.Context, key string, dst any) (bool, error) {
	if r.isDirty(key) {
		return false, nil
	}

	cctx, cancel := withTimeout(ctx, r.opts.CacheTimeout)
	defer cancel()

	raw, ok, err := r.tier.Get(cctx, key)
	if err != nil {
		slog.Warn("cache tier degraded", "op", "get", "key", key, "error", err)
		return false, err
	}
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		slog.Warn("Dropping undecodable cache entry", "key", key, "error", err)
		r.evict(ctx, key)
		return false, nil
	}
	return true, nil
}

// cacheSet writes one entry. On failure the entry is evicted instead.
func (r *Repository[E]) cacheSet(ctx context.Context, key string, v any) bool {
	if !cache.Enabled(r.tier) {
		return true
	}
	raw, err := json.Marshal(v)
	if err != nil {
		slog.Error("Failed to encode cache entry", "key", key, "error", err)
		r.evict(ctx, key)
		return false
	}

	cctx, cancel := withTimeout(ctx, r.opts.CacheTimeout)
	defer cancel()

	if err := r.tier.Set(cctx, key, string(raw)); err != nil {
		slog.Warn("cache tier degraded", "op", "set", "key", key, "error", err)
		r.evict(ctx, key)
		return false
	}
	r.markClean(key)
	return true
}

// evict deletes entries from the tier. Keys that cannot be deleted are
// marked dirty so reads bypass them.
func (r *Repository[E]) evict(ctx context.Context, keys ...string) bool {
	cctx, cancel := withTimeout(ctx, r.opts.CacheTimeout)
	defer cancel()

	if err := r.tier.Del(cctx, keys...); err != nil {
		slog.Warn("cache tier degraded", "op", "del", "keys", keys, "error", err)
		r.markDirty(keys...)
		return false
	}
	r.markClean(keys...)
	return true
}

func (r *Repository[E]) isDirty(key string) bool {
	r.dirtyMu.Lock()
	defer r.dirtyMu.Unlock()
	_, ok := r.dirty[key]
	return ok
}

func (r *Repository[E]) markDirty(keys ...string) {
	r.dirtyMu.Lock()
	defer r.dirtyMu.Unlock()
	for _, k := range keys {
		r.dirty[k] = struct{}{}
	}
}

func (r *Repository[E]) markClean(keys ...string) {
	r.dirtyMu.Lock()
	defer r.dirtyMu.Unlock()
	for _, k := range keys {
		delete(r.dirty, k)
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
