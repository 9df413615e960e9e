// Package syncmap provides a string-to-string map that is safe for concurrent use.
//
// Map is the store that holds a resolved project environment. Set is the only
// mutation primitive; every loader funnels through it.
package syncmap

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"
)

// Entry is a single key/value pair held by a Map
type Entry struct {
	Key   string
	Value string
}

// Map is a mutable string map guarded by a single RWMutex
type Map struct {
	mu    sync.RWMutex
	m     map[string]string
	onSet func(key, value, previous string, existed bool)
}

// New creates an empty Map
func New() *Map {
	return &Map{m: make(map[string]string)}
}

// FromMap creates a Map seeded with a copy of data
func FromMap(data map[string]string) *Map {
	sm := New()
	for k, v := range data {
		sm.Set(k, v)
	}
	return sm
}

// WithSetCallback registers fn to be called after every successful Set.
// The callback runs without the lock held, so it may read or write the map.
func (sm *Map) WithSetCallback(fn func(key, value, previous string, existed bool)) *Map {
	sm.mu.Lock()
	sm.onSet = fn
	sm.mu.Unlock()
	return sm
}

// Get returns the value for key and whether it was present
func (sm *Map) Get(key string) (string, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	v, ok := sm.m[key]
	return v, ok
}

// GetWithDefault returns the value for key, or defaultValue if the key is unset
func (sm *Map) GetWithDefault(key, defaultValue string) string {
	if v, ok := sm.Get(key); ok {
		return v
	}
	return defaultValue
}

// Set inserts or overwrites key and returns the previous value, if any.
// An empty key is ignored.
func (sm *Map) Set(key, value string) (previous string, existed bool) {
	if key == "" {
		return "", false
	}

	sm.mu.Lock()
	previous, existed = sm.m[key]
	sm.m[key] = value
	onSet := sm.onSet
	sm.mu.Unlock()

	if onSet != nil {
		onSet(key, value, previous, existed)
	}
	return previous, existed
}

// SetEntry is Set for an Entry
func (sm *Map) SetEntry(e Entry) (string, bool) {
	return sm.Set(e.Key, e.Value)
}

// ContainsKey reports whether key is present
func (sm *Map) ContainsKey(key string) bool {
	_, ok := sm.Get(key)
	return ok
}

// ContainsValue reports whether any key maps to value
func (sm *Map) ContainsValue(value string) bool {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for _, v := range sm.m {
		if v == value {
			return true
		}
	}
	return false
}

// Size returns the number of entries
func (sm *Map) Size() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	return len(sm.m)
}

// Keys returns a sorted snapshot of the keys
func (sm *Map) Keys() []string {
	sm.mu.RLock()
	keys := make([]string, 0, len(sm.m))
	for k := range sm.m {
		keys = append(keys, k)
	}
	sm.mu.RUnlock()

	sort.Strings(keys)
	return keys
}

// Values returns a snapshot of the values, ordered by their keys
func (sm *Map) Values() []string {
	entries := sm.Entries()
	values := make([]string, len(entries))
	for i, e := range entries {
		values[i] = e.Value
	}
	return values
}

// Entries returns a snapshot of all entries, ordered by key
func (sm *Map) Entries() []Entry {
	sm.mu.RLock()
	entries := make([]Entry, 0, len(sm.m))
	for k, v := range sm.m {
		entries = append(entries, Entry{Key: k, Value: v})
	}
	sm.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Key < entries[j].Key
	})
	return entries
}

// ForEach calls action for every entry in a snapshot of the map.
// No lock is held while action runs.
func (sm *Map) ForEach(action func(key, value string)) {
	for _, e := range sm.Entries() {
		action(e.Key, e.Value)
	}
}

// Snapshot returns a copy of the underlying map
func (sm *Map) Snapshot() map[string]string {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	out := make(map[string]string, len(sm.m))
	for k, v := range sm.m {
		out[k] = v
	}
	return out
}

// GetBool parses the value for key with strconv.ParseBool
func (sm *Map) GetBool(key string) (bool, error) {
	v, err := sm.lookup(key)
	if err != nil {
		return false, err
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("key %q: %w", key, err)
	}
	return b, nil
}

// GetBoolWithDefault returns GetBool or defaultValue on any error
func (sm *Map) GetBoolWithDefault(key string, defaultValue bool) bool {
	b, err := sm.GetBool(key)
	if err != nil {
		return defaultValue
	}
	return b
}

// GetInt parses the value for key as a base-10 int
func (sm *Map) GetInt(key string) (int, error) {
	v, err := sm.lookup(key)
	if err != nil {
		return 0, err
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("key %q: %w", key, err)
	}
	return i, nil
}

// GetIntWithDefault returns GetInt or defaultValue on any error
func (sm *Map) GetIntWithDefault(key string, defaultValue int) int {
	i, err := sm.GetInt(key)
	if err != nil {
		return defaultValue
	}
	return i
}

// GetInt64 parses the value for key as a base-10 int64
func (sm *Map) GetInt64(key string) (int64, error) {
	v, err := sm.lookup(key)
	if err != nil {
		return 0, err
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("key %q: %w", key, err)
	}
	return i, nil
}

// GetInt64WithDefault returns GetInt64 or defaultValue on any error
func (sm *Map) GetInt64WithDefault(key string, defaultValue int64) int64 {
	i, err := sm.GetInt64(key)
	if err != nil {
		return defaultValue
	}
	return i
}

// GetFloat64 parses the value for key as a float64
func (sm *Map) GetFloat64(key string) (float64, error) {
	v, err := sm.lookup(key)
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("key %q: %w", key, err)
	}
	return f, nil
}

// GetFloat64WithDefault returns GetFloat64 or defaultValue on any error
func (sm *Map) GetFloat64WithDefault(key string, defaultValue float64) float64 {
	f, err := sm.GetFloat64(key)
	if err != nil {
		return defaultValue
	}
	return f
}

// GetDuration parses the value for key with time.ParseDuration
func (sm *Map) GetDuration(key string) (time.Duration, error) {
	v, err := sm.lookup(key)
	if err != nil {
		return 0, err
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("key %q: %w", key, err)
	}
	return d, nil
}

// GetDurationWithDefault returns GetDuration or defaultValue on any error
func (sm *Map) GetDurationWithDefault(key string, defaultValue time.Duration) time.Duration {
	d, err := sm.GetDuration(key)
	if err != nil {
		return defaultValue
	}
	return d
}

// ErrKeyNotFound is returned by the typed getters when the key is unset
var ErrKeyNotFound = errors.New("key not found")

func (sm *Map) lookup(key string) (string, error) {
	v, ok := sm.Get(key)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}
	return v, nil
}
