package storage

import (
	"context"
	"time"

	"appealbot/internal/models"
)

// Storage defines the interface for data storage operations
type Storage interface {
	// Configuration operations
	// GetConfig reports found=false when the key was never written
	GetConfig(ctx context.Context, key models.ConfigKey) (string, bool, error)
	SetConfig(ctx context.Context, key models.ConfigKey, value string) error

	// Membership operations
	// AddMember is idempotent: adding an existing member is a no-op
	AddMember(ctx context.Context, set models.MemberSet, id int64) error
	IsMember(ctx context.Context, set models.MemberSet, id int64) (bool, error)
	ListMembers(ctx context.Context, set models.MemberSet) ([]int64, error)
	CountMembers(ctx context.Context, set models.MemberSet) (int, error)

	// Usage log operations
	AppendUsage(ctx context.Context, userID int64, ts time.Time) error
	// CountUsageSince counts entries of userID strictly after cutoff
	CountUsageSince(ctx context.Context, userID int64, cutoff time.Time) (int, error)
	// RecentUsage returns up to limit timestamps of userID, most recent first
	RecentUsage(ctx context.Context, userID int64, limit int) ([]time.Time, error)
	CountUsage(ctx context.Context) (int, error)
	// ListUsage returns the whole log ordered by timestamp
	ListUsage(ctx context.Context) ([]models.UsageEntry, error)
	// PruneUsage deletes entries strictly before the given time and returns how many were removed
	PruneUsage(ctx context.Context, before time.Time) (int64, error)

	// Chat directory operations
	UpsertChat(ctx context.Context, chat models.Chat) error
	ListChats(ctx context.Context) ([]models.Chat, error)

	// Lifecycle
	Initialize(ctx context.Context) error
	Close() error
}
