/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru"
)

// keyStore keeps per-key state of a limiter.
// It is not safe for concurrent use, limiters guard it with their own mutex.
type keyStore[V any] interface {
	get(key string) (V, bool)
	peek(key string) (V, bool)
	set(key string, val V)
	remove(key string)
	keys() []string
	len() int
}

// newKeyStore returns an unbounded map store when maxKeys is 0,
// otherwise an LRU store that evicts the least recently used key.
func newKeyStore[V any](maxKeys int) (keyStore[V], error) {
	if maxKeys < 0 {
		return nil, fmt.Errorf("%w: max keys should not be negative, got %d", ErrInvalidConfiguration, maxKeys)
	}
	if maxKeys == 0 {
		return mapStore[V]{}, nil
	}
	cache, err := lru.New(maxKeys)
	if err != nil {
		return nil, fmt.Errorf("new LRU in-memory store for keys: %w", err)
	}
	return &lruStore[V]{cache}, nil
}

type mapStore[V any] map[string]V

func (s mapStore[V]) get(key string) (V, bool) {
	v, ok := s[key]
	return v, ok
}

func (s mapStore[V]) peek(key string) (V, bool) {
	return s.get(key)
}

func (s mapStore[V]) set(key string, val V) {
	s[key] = val
}

func (s mapStore[V]) remove(key string) {
	delete(s, key)
}

func (s mapStore[V]) keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	return keys
}

func (s mapStore[V]) len() int {
	return len(s)
}

type lruStore[V any] struct {
	cache *lru.Cache
}

func (s *lruStore[V]) get(key string) (V, bool) {
	v, ok := s.cache.Get(key)
	if !ok {
		var zero V
		return zero, false
	}
	return v.(V), true
}

func (s *lruStore[V]) peek(key string) (V, bool) {
	v, ok := s.cache.Peek(key)
	if !ok {
		var zero V
		return zero, false
	}
	return v.(V), true
}

func (s *lruStore[V]) set(key string, val V) {
	s.cache.Add(key, val)
}

func (s *lruStore[V]) remove(key string) {
	s.cache.Remove(key)
}

func (s *lruStore[V]) keys() []string {
	raw := s.cache.Keys()
	keys := make([]string, 0, len(raw))
	for _, k := range raw {
		keys = append(keys, k.(string))
	}
	return keys
}

func (s *lruStore[V]) len() int {
	return s.cache.Len()
}
