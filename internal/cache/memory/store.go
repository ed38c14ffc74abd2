package memory

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/open-builders/giveaway-tickets/internal/cache"
)

type memEntry struct {
	value     []byte
	expiresAt time.Time
	hasTTL    bool
}

func (e memEntry) isExpired(now time.Time) bool {
	return e.hasTTL && !now.Before(e.expiresAt)
}

type window struct {
	events []time.Time
	span   time.Duration
}

// prune drops events at or before now-span.
func (w *window) prune(now time.Time) {
	cutoff := now.Add(-w.span)
	i := 0
	for i < len(w.events) && !w.events[i].After(cutoff) {
		i++
	}
	w.events = w.events[i:]
}

// Store is a single-process cache.ExpiringStore. Expired entries are hidden
// on access and reclaimed by Sweep.
type Store struct {
	mu      sync.Mutex
	entries map[string]memEntry
	windows map[string]*window
	now     func() time.Time
}

var (
	_ cache.ExpiringStore = (*Store)(nil)
	_ cache.Sweeper       = (*Store)(nil)
)

func NewStore() *Store {
	return NewStoreWithClock(time.Now)
}

// NewStoreWithClock is NewStore with an injectable clock for TTL checks.
func NewStoreWithClock(now func() time.Time) *Store {
	return &Store{
		entries: make(map[string]memEntry),
		windows: make(map[string]*window),
		now:     now,
	}
}

func (s *Store) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := memEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		entry.hasTTL = true
		entry.expiresAt = s.now().Add(ttl)
	}
	s.entries[key] = entry
	return nil
}

func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.live(key)
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), entry.value...), nil
}

func (s *Store) Delete(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.live(key)
	delete(s.entries, key)
	return ok, nil
}

func (s *Store) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.live(key)
	var n int64
	if ok {
		v, err := strconv.ParseInt(string(entry.value), 10, 64)
		if err != nil {
			return 0, err
		}
		n = v
	} else if ttl > 0 {
		entry = memEntry{hasTTL: true, expiresAt: s.now().Add(ttl)}
	}
	n++
	entry.value = []byte(strconv.FormatInt(n, 10))
	s.entries[key] = entry
	return n, nil
}

func (s *Store) IncrementCounterWindow(_ context.Context, key string, now time.Time, span time.Duration, limit int) (cache.WindowResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok {
		w = &window{}
		s.windows[key] = w
	}
	w.span = span
	w.prune(now)

	res := cache.WindowResult{}
	if len(w.events) < limit {
		w.events = append(w.events, now)
		res.Allowed = true
	}
	res.Count = len(w.events)
	if len(w.events) > 0 {
		res.Oldest = w.events[0]
	}
	return res, nil
}

// Sweep removes expired entries and empty windows, returning how many keys were dropped.
func (s *Store) Sweep(_ context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for k, e := range s.entries {
		if e.isExpired(now) {
			delete(s.entries, k)
			removed++
		}
	}
	for k, w := range s.windows {
		w.prune(now)
		if len(w.events) == 0 {
			delete(s.windows, k)
			removed++
		}
	}
	return removed, nil
}

// Len reports live and expired-but-unswept keys.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries) + len(s.windows)
}

// live must be called with mu held.
func (s *Store) live(key string) (memEntry, bool) {
	entry, ok := s.entries[key]
	if !ok {
		return memEntry{}, false
	}
	if entry.isExpired(s.now()) {
		delete(s.entries, key)
		return memEntry{}, false
	}
	return entry, true
}
