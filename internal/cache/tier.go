// Package cache provides the optional secondary cache tier shared between bot
// processes. Values are opaque strings addressed by key.
package cache

import "context"

// Tier is a process-external key-value store mirroring entity state
type Tier interface {
	// Get returns the value and whether the key was present
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Del(ctx context.Context, keys ...string) error
}

// Optional returns t, or a tier that misses every read and drops every write
// when t is nil. Callers never branch on whether the tier is configured.
func Optional(t Tier) Tier {
	if t == nil {
		return nopTier{}
	}
	return t
}

// Enabled reports whether t is a real tier
func Enabled(t Tier) bool {
	if t == nil {
		return false
	}
	_, nop := t.(nopTier)
	return !nop
}

type nopTier struct{}

func (nopTier) Get(context.Context, string) (string, bool, error) { return "", false, nil }
func (nopTier) Set(context.Context, string, string) error         { return nil }
func (nopTier) Del(context.Context, ...string) error              { return nil }
