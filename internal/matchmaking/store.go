// Package matchmaking pairs human players by time-control bucket. The
// queue is dual-backed: an in-memory store for single-process runs and
// a Redis store whose pair-and-pop runs as a server-side script.
package matchmaking

import (
	"context"
	"sync"
	"time"

	"github.com/jcai27/Chessica/internal/session"
)

// Entry is one queued request.
type Entry struct {
	PlayerID    string              `json:"player_id"`
	Bucket      string              `json:"bucket"`
	Color       string              `json:"color"` // white, black, auto
	TimeControl session.TimeControl `json:"time_control"`
}

// Notification is the at-most-once match message a player consumes on
// their next status poll.
type Notification struct {
	Status      string `json:"status"`
	SessionID   string `json:"session_id"`
	PlayerColor string `json:"player_color"`
	OpponentID  string `json:"opponent_id"`
}

// Store is the queue backend contract. PairAndPop must be atomic: a
// returned opponent is removed from the queue in the same step.
type Store interface {
	PairAndPop(ctx context.Context, requester Entry) (*Entry, error)
	Push(ctx context.Context, e Entry) error
	Remove(ctx context.Context, playerID string) error
	IsQueued(ctx context.Context, playerID string) (bool, error)
	PutNotification(ctx context.Context, playerID string, n Notification) error
	TakeNotification(ctx context.Context, playerID string) (*Notification, bool, error)
}

// colorsCompatible implements the pairing rule: both auto, one auto, or
// complementary specific colors.
func colorsCompatible(a, b string) bool {
	if a == "auto" || b == "auto" {
		return true
	}
	return a != b
}

// MemoryStore is the in-process queue. Entries and notifications carry
// the same one-hour lifetime the Redis store enforces with key TTLs.
type MemoryStore struct {
	mu            sync.Mutex
	entries       map[string]Entry // by player id
	enqueuedAt    map[string]time.Time
	buckets       map[string][]string // FIFO of player ids
	notifications map[string]Notification
	notifiedAt    map[string]time.Time
	now           func() time.Time
}

// NewMemoryStore builds an empty queue.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries:       make(map[string]Entry),
		enqueuedAt:    make(map[string]time.Time),
		buckets:       make(map[string][]string),
		notifications: make(map[string]Notification),
		notifiedAt:    make(map[string]time.Time),
		now:           time.Now,
	}
}

// expiredLocked reports and drops a stale entry. Caller holds mu.
func (m *MemoryStore) expiredLocked(playerID string) bool {
	at, ok := m.enqueuedAt[playerID]
	if !ok || m.now().Sub(at) <= queueTTL {
		return false
	}
	delete(m.entries, playerID)
	delete(m.enqueuedAt, playerID)
	return true
}

func (m *MemoryStore) PairAndPop(_ context.Context, requester Entry) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := m.buckets[requester.Bucket]
	for i, id := range ids {
		if id == requester.PlayerID {
			continue
		}
		if m.expiredLocked(id) {
			continue
		}
		entry, ok := m.entries[id]
		if !ok {
			continue
		}
		if !colorsCompatible(requester.Color, entry.Color) {
			continue
		}
		m.buckets[requester.Bucket] = append(append([]string(nil), ids[:i]...), ids[i+1:]...)
		delete(m.entries, id)
		delete(m.enqueuedAt, id)
		return &entry, nil
	}
	return nil, nil
}

func (m *MemoryStore) Push(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, queued := m.entries[e.PlayerID]; !queued {
		m.buckets[e.Bucket] = append(m.buckets[e.Bucket], e.PlayerID)
	}
	m.entries[e.PlayerID] = e
	m.enqueuedAt[e.PlayerID] = m.now()
	return nil
}

func (m *MemoryStore) Remove(_ context.Context, playerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[playerID]
	if ok {
		delete(m.entries, playerID)
		delete(m.enqueuedAt, playerID)
		ids := m.buckets[entry.Bucket]
		for i, id := range ids {
			if id == playerID {
				m.buckets[entry.Bucket] = append(append([]string(nil), ids[:i]...), ids[i+1:]...)
				break
			}
		}
	}
	delete(m.notifications, playerID)
	delete(m.notifiedAt, playerID)
	return nil
}

func (m *MemoryStore) IsQueued(_ context.Context, playerID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.expiredLocked(playerID) {
		return false, nil
	}
	_, ok := m.entries[playerID]
	return ok, nil
}

func (m *MemoryStore) PutNotification(_ context.Context, playerID string, n Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications[playerID] = n
	m.notifiedAt[playerID] = m.now()
	return nil
}

func (m *MemoryStore) TakeNotification(_ context.Context, playerID string) (*Notification, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notifications[playerID]
	if !ok {
		return nil, false, nil
	}
	at := m.notifiedAt[playerID]
	delete(m.notifications, playerID)
	delete(m.notifiedAt, playerID)
	if m.now().Sub(at) > queueTTL {
		return nil, false, nil
	}
	return &n, true, nil
}
