package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"appealbot/internal/models"
	"appealbot/migrations"
)

type configRow struct {
	Key   string `gorm:"column:key;primaryKey"`
	Value string `gorm:"column:value"`
}

func (configRow) TableName() string { return "config" }

type memberRow struct {
	SetName  string `gorm:"column:set_name;primaryKey"`
	MemberID int64  `gorm:"column:member_id;primaryKey"`
}

func (memberRow) TableName() string { return "members" }

// usage timestamps are stored as unix milliseconds so range filters compare integers
type usageRow struct {
	ID     int64 `gorm:"column:id;primaryKey;autoIncrement"`
	UserID int64 `gorm:"column:user_id"`
	TS     int64 `gorm:"column:ts"`
}

func (usageRow) TableName() string { return "usage" }

type chatRow struct {
	ChatID   int64  `gorm:"column:chat_id;primaryKey"`
	ChatType string `gorm:"column:chat_type"`
	Title    string `gorm:"column:title"`
}

func (chatRow) TableName() string { return "active_chats" }

// SQLiteDB is the file-backed store used by default
type SQLiteDB struct {
	db *gorm.DB
}

// NewSQLiteDB opens (creating if needed) the database file at path
func NewSQLiteDB(path string) (*SQLiteDB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sqlite handle: %w", err)
	}
	// a single writer avoids SQLITE_BUSY between concurrent updates
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	return &SQLiteDB{db: db}, nil
}

// OpenSQL opens the file at path and returns its database/sql handle for migration tooling
func OpenSQL(path string) (*sql.DB, error) {
	s, err := NewSQLiteDB(path)
	if err != nil {
		return nil, err
	}
	return s.db.DB()
}

// Initialize applies the embedded goose migrations
func (s *SQLiteDB) Initialize(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sqlite handle: %w", err)
	}
	return migrations.Up(ctx, sqlDB, migrations.SQLiteDialect, migrations.SQLiteDir)
}

// GetConfig returns the value stored under key
func (s *SQLiteDB) GetConfig(ctx context.Context, key models.ConfigKey) (string, bool, error) {
	var row configRow
	err := s.db.WithContext(ctx).Where("key = ?", string(key)).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get config %s: %w", key, err)
	}
	return row.Value, true, nil
}

// SetConfig upserts a configuration value
func (s *SQLiteDB) SetConfig(ctx context.Context, key models.ConfigKey, value string) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value"}),
	}).Create(&configRow{Key: string(key), Value: value}).Error
	if err != nil {
		return fmt.Errorf("failed to set config %s: %w", key, err)
	}
	return nil
}

// AddMember inserts id into the set, ignoring duplicates
func (s *SQLiteDB) AddMember(ctx context.Context, set models.MemberSet, id int64) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).
		Create(&memberRow{SetName: string(set), MemberID: id}).Error
	if err != nil {
		return fmt.Errorf("failed to add %d to %s: %w", id, set, err)
	}
	return nil
}

// IsMember reports whether id belongs to the set
func (s *SQLiteDB) IsMember(ctx context.Context, set models.MemberSet, id int64) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&memberRow{}).
		Where("set_name = ? AND member_id = ?", string(set), id).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check membership in %s: %w", set, err)
	}
	return count > 0, nil
}

// ListMembers returns the members of a set in ascending order
func (s *SQLiteDB) ListMembers(ctx context.Context, set models.MemberSet) ([]int64, error) {
	var ids []int64
	err := s.db.WithContext(ctx).Model(&memberRow{}).
		Where("set_name = ?", string(set)).
		Order("member_id").
		Pluck("member_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", set, err)
	}
	return ids, nil
}

// CountMembers returns the size of a set
func (s *SQLiteDB) CountMembers(ctx context.Context, set models.MemberSet) (int, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&memberRow{}).
		Where("set_name = ?", string(set)).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", set, err)
	}
	return int(count), nil
}

// AppendUsage records one usage entry
func (s *SQLiteDB) AppendUsage(ctx context.Context, userID int64, ts time.Time) error {
	err := s.db.WithContext(ctx).Create(&usageRow{UserID: userID, TS: ts.UnixMilli()}).Error
	if err != nil {
		return fmt.Errorf("failed to record usage: %w", err)
	}
	return nil
}

// CountUsageSince counts entries of userID strictly after cutoff
func (s *SQLiteDB) CountUsageSince(ctx context.Context, userID int64, cutoff time.Time) (int, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&usageRow{}).
		Where("user_id = ? AND ts > ?", userID, cutoff.UnixMilli()).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count usage: %w", err)
	}
	return int(count), nil
}

// RecentUsage returns up to limit timestamps of userID, most recent first
func (s *SQLiteDB) RecentUsage(ctx context.Context, userID int64, limit int) ([]time.Time, error) {
	var stamps []int64
	err := s.db.WithContext(ctx).Model(&usageRow{}).
		Where("user_id = ?", userID).
		Order("ts DESC").
		Limit(limit).
		Pluck("ts", &stamps).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get recent usage: %w", err)
	}

	result := make([]time.Time, 0, len(stamps))
	for _, ms := range stamps {
		result = append(result, time.UnixMilli(ms).UTC())
	}
	return result, nil
}

// CountUsage returns the total number of usage entries
func (s *SQLiteDB) CountUsage(ctx context.Context) (int, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&usageRow{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count usage: %w", err)
	}
	return int(count), nil
}

// ListUsage returns the usage log ordered by timestamp
func (s *SQLiteDB) ListUsage(ctx context.Context) ([]models.UsageEntry, error) {
	var rows []usageRow
	if err := s.db.WithContext(ctx).Order("ts, id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list usage: %w", err)
	}

	entries := make([]models.UsageEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, models.UsageEntry{
			UserID:    row.UserID,
			Timestamp: time.UnixMilli(row.TS).UTC(),
		})
	}
	return entries, nil
}

// PruneUsage deletes entries older than before
func (s *SQLiteDB) PruneUsage(ctx context.Context, before time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Where("ts < ?", before.UnixMilli()).Delete(&usageRow{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to prune usage: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// UpsertChat inserts or replaces a chat directory entry
func (s *SQLiteDB) UpsertChat(ctx context.Context, chat models.Chat) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "chat_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"chat_type", "title"}),
	}).Create(&chatRow{ChatID: chat.ID, ChatType: chat.Type, Title: chat.Title}).Error
	if err != nil {
		return fmt.Errorf("failed to save chat %d: %w", chat.ID, err)
	}
	return nil
}

// ListChats returns the chat directory ordered by id
func (s *SQLiteDB) ListChats(ctx context.Context) ([]models.Chat, error) {
	var rows []chatRow
	if err := s.db.WithContext(ctx).Order("chat_id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}

	chats := make([]models.Chat, 0, len(rows))
	for _, row := range rows {
		chats = append(chats, models.Chat{ID: row.ChatID, Type: row.ChatType, Title: row.Title})
	}
	return chats, nil
}

// Close closes the database connection
func (s *SQLiteDB) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
