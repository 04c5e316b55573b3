package stubs

import (
	"context"
	"sort"
	"sync"
	"time"

	"appealbot/internal/models"
)

// MockDB is an in-memory implementation of the Storage interface for testing
type MockDB struct {
	mu      sync.RWMutex
	config  map[models.ConfigKey]string
	members map[models.MemberSet]map[int64]struct{}
	usage   []models.UsageEntry
	chats   map[int64]models.Chat
}

// NewMockDB creates a new mock database
func NewMockDB() *MockDB {
	members := make(map[models.MemberSet]map[int64]struct{})
	for _, set := range models.MemberSets {
		members[set] = make(map[int64]struct{})
	}
	return &MockDB{
		config:  make(map[models.ConfigKey]string),
		members: members,
		usage:   make([]models.UsageEntry, 0),
		chats:   make(map[int64]models.Chat),
	}
}

// Initialize seeds the same defaults the SQL migrations insert
func (m *MockDB) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.config[models.KeyGroupMode]; !ok {
		m.config[models.KeyGroupMode] = models.GroupModeDefault
	}
	if _, ok := m.config[models.KeyOwnerID]; !ok {
		m.config[models.KeyOwnerID] = ""
	}
	return nil
}

// GetConfig returns the value stored under key
func (m *MockDB) GetConfig(ctx context.Context, key models.ConfigKey) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.config[key]
	return value, ok, nil
}

// SetConfig upserts a configuration value
func (m *MockDB) SetConfig(ctx context.Context, key models.ConfigKey, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.config[key] = value
	return nil
}

// AddMember inserts id into the set, ignoring duplicates
func (m *MockDB) AddMember(ctx context.Context, set models.MemberSet, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.members[set] == nil {
		m.members[set] = make(map[int64]struct{})
	}
	m.members[set][id] = struct{}{}
	return nil
}

// IsMember reports whether id belongs to the set
func (m *MockDB) IsMember(ctx context.Context, set models.MemberSet, id int64) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.members[set][id]
	return ok, nil
}

// ListMembers returns the members of a set in ascending order
func (m *MockDB) ListMembers(ctx context.Context, set models.MemberSet) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]int64, 0, len(m.members[set]))
	for id := range m.members[set] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// CountMembers returns the size of a set
func (m *MockDB) CountMembers(ctx context.Context, set models.MemberSet) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.members[set]), nil
}

// AppendUsage records one usage entry
func (m *MockDB) AppendUsage(ctx context.Context, userID int64, ts time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.usage = append(m.usage, models.UsageEntry{UserID: userID, Timestamp: ts})
	return nil
}

// CountUsageSince counts entries of userID strictly after cutoff
func (m *MockDB) CountUsageSince(ctx context.Context, userID int64, cutoff time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, entry := range m.usage {
		if entry.UserID == userID && entry.Timestamp.After(cutoff) {
			count++
		}
	}
	return count, nil
}

// RecentUsage returns up to limit timestamps of userID, most recent first
func (m *MockDB) RecentUsage(ctx context.Context, userID int64, limit int) ([]time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var stamps []time.Time
	for _, entry := range m.usage {
		if entry.UserID == userID {
			stamps = append(stamps, entry.Timestamp)
		}
	}

	// Sort by timestamp descending
	sort.Slice(stamps, func(i, j int) bool {
		return stamps[i].After(stamps[j])
	})

	if limit < len(stamps) {
		stamps = stamps[:limit]
	}
	return stamps, nil
}

// CountUsage returns the total number of usage entries
func (m *MockDB) CountUsage(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.usage), nil
}

// ListUsage returns a copy of the usage log ordered by timestamp
func (m *MockDB) ListUsage(ctx context.Context) ([]models.UsageEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := make([]models.UsageEntry, len(m.usage))
	copy(entries, m.usage)
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
	return entries, nil
}

// PruneUsage removes entries older than before
func (m *MockDB) PruneUsage(ctx context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.usage[:0]
	var removed int64
	for _, entry := range m.usage {
		if entry.Timestamp.Before(before) {
			removed++
			continue
		}
		kept = append(kept, entry)
	}
	m.usage = kept
	return removed, nil
}

// UpsertChat inserts or replaces a chat directory entry
func (m *MockDB) UpsertChat(ctx context.Context, chat models.Chat) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.chats[chat.ID] = chat
	return nil
}

// ListChats returns the chat directory ordered by id
func (m *MockDB) ListChats(ctx context.Context) ([]models.Chat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	chats := make([]models.Chat, 0, len(m.chats))
	for _, chat := range m.chats {
		chats = append(chats, chat)
	}
	sort.Slice(chats, func(i, j int) bool { return chats[i].ID < chats[j].ID })
	return chats, nil
}

// Close does nothing for mock DB
func (m *MockDB) Close() error {
	return nil
}
