package ch

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"appealbot/internal/models"

	"github.com/ClickHouse/clickhouse-go/v2"
)

// ClickHouseDB stores configuration and sets in ReplacingMergeTree tables,
// so reads collapse duplicates with argMax/uniqExact instead of relying on merges.
type ClickHouseDB struct {
	conn clickhouse.Conn
}

// NewClickHouseDB creates a new ClickHouse database connection
func NewClickHouseDB(host string, port int, database, user, password string, useTLS bool) (*ClickHouseDB, error) {
	addr := fmt.Sprintf("%s:%d", host, port)

	options := &clickhouse.Options{
		Addr:     []string{addr},
		Protocol: clickhouse.Native,
		Auth: clickhouse.Auth{
			Database: database,
			Username: user,
			Password: password,
		},
	}

	// Configure TLS if enabled
	if useTLS {
		options.TLS = &tls.Config{
			InsecureSkipVerify: false,
		}
	}

	conn, err := clickhouse.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	// Test the connection
	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	return &ClickHouseDB{conn: conn}, nil
}

// Initialize is a no-op - tables are managed via migrations
func (db *ClickHouseDB) Initialize(ctx context.Context) error {
	// Tables are managed via migrations (see migrations/clickhouse)
	return nil
}

// GetConfig returns the latest value written under key
func (db *ClickHouseDB) GetConfig(ctx context.Context, key models.ConfigKey) (string, bool, error) {
	rows, err := db.conn.Query(ctx,
		`SELECT argMax(value, updated_at) FROM config WHERE key = ? GROUP BY key`, string(key))
	if err != nil {
		return "", false, fmt.Errorf("failed to get config %s: %w", key, err)
	}
	defer rows.Close()

	if !rows.Next() {
		return "", false, rows.Err()
	}
	var value string
	if err := rows.Scan(&value); err != nil {
		return "", false, fmt.Errorf("failed to scan config %s: %w", key, err)
	}
	return value, true, nil
}

// SetConfig writes a new version of key
func (db *ClickHouseDB) SetConfig(ctx context.Context, key models.ConfigKey, value string) error {
	err := db.conn.Exec(ctx, `INSERT INTO config (key, value, updated_at) VALUES (?, ?, ?)`,
		string(key), value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to set config %s: %w", key, err)
	}
	return nil
}

// AddMember inserts id into the set; duplicates collapse in the ReplacingMergeTree
func (db *ClickHouseDB) AddMember(ctx context.Context, set models.MemberSet, id int64) error {
	ok, err := db.IsMember(ctx, set, id)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	err = db.conn.Exec(ctx, `INSERT INTO members (set_name, member_id) VALUES (?, ?)`, string(set), id)
	if err != nil {
		return fmt.Errorf("failed to add %d to %s: %w", id, set, err)
	}
	return nil
}

// IsMember reports whether id belongs to the set
func (db *ClickHouseDB) IsMember(ctx context.Context, set models.MemberSet, id int64) (bool, error) {
	var count uint64
	err := db.conn.QueryRow(ctx,
		`SELECT count() FROM members WHERE set_name = ? AND member_id = ?`, string(set), id).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check membership in %s: %w", set, err)
	}
	return count > 0, nil
}

// ListMembers returns the distinct members of a set in ascending order
func (db *ClickHouseDB) ListMembers(ctx context.Context, set models.MemberSet) ([]int64, error) {
	rows, err := db.conn.Query(ctx,
		`SELECT DISTINCT member_id FROM members WHERE set_name = ? ORDER BY member_id`, string(set))
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", set, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CountMembers returns the number of distinct members of a set
func (db *ClickHouseDB) CountMembers(ctx context.Context, set models.MemberSet) (int, error) {
	var count uint64
	err := db.conn.QueryRow(ctx,
		`SELECT uniqExact(member_id) FROM members WHERE set_name = ?`, string(set)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", set, err)
	}
	return int(count), nil
}

// AppendUsage records one usage entry
func (db *ClickHouseDB) AppendUsage(ctx context.Context, userID int64, ts time.Time) error {
	err := db.conn.Exec(ctx, `INSERT INTO usage (user_id, ts) VALUES (?, ?)`, userID, ts.UTC())
	if err != nil {
		return fmt.Errorf("failed to record usage: %w", err)
	}
	return nil
}

// CountUsageSince counts entries of userID strictly after cutoff
func (db *ClickHouseDB) CountUsageSince(ctx context.Context, userID int64, cutoff time.Time) (int, error) {
	var count uint64
	err := db.conn.QueryRow(ctx,
		`SELECT count() FROM usage WHERE user_id = ? AND ts > ?`, userID, cutoff.UTC()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count usage: %w", err)
	}
	return int(count), nil
}

// RecentUsage returns up to limit timestamps of userID, most recent first
func (db *ClickHouseDB) RecentUsage(ctx context.Context, userID int64, limit int) ([]time.Time, error) {
	rows, err := db.conn.Query(ctx,
		`SELECT ts FROM usage WHERE user_id = ? ORDER BY ts DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent usage: %w", err)
	}
	defer rows.Close()

	var stamps []time.Time
	for rows.Next() {
		var ts time.Time
		if err := rows.Scan(&ts); err != nil {
			return nil, fmt.Errorf("failed to scan usage: %w", err)
		}
		stamps = append(stamps, ts)
	}
	return stamps, rows.Err()
}

// CountUsage returns the total number of usage entries
func (db *ClickHouseDB) CountUsage(ctx context.Context) (int, error) {
	var count uint64
	if err := db.conn.QueryRow(ctx, `SELECT count() FROM usage`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count usage: %w", err)
	}
	return int(count), nil
}

// ListUsage returns the usage log ordered by timestamp
func (db *ClickHouseDB) ListUsage(ctx context.Context) ([]models.UsageEntry, error) {
	rows, err := db.conn.Query(ctx, `SELECT user_id, ts FROM usage ORDER BY ts`)
	if err != nil {
		return nil, fmt.Errorf("failed to list usage: %w", err)
	}
	defer rows.Close()

	var entries []models.UsageEntry
	for rows.Next() {
		var entry models.UsageEntry
		if err := rows.Scan(&entry.UserID, &entry.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan usage: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// PruneUsage deletes entries older than before.
// The delete runs as a synchronous mutation so the returned count matches what was removed.
func (db *ClickHouseDB) PruneUsage(ctx context.Context, before time.Time) (int64, error) {
	var count uint64
	err := db.conn.QueryRow(ctx, `SELECT count() FROM usage WHERE ts < ?`, before.UTC()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count prunable usage: %w", err)
	}
	if count == 0 {
		return 0, nil
	}

	ctx = clickhouse.Context(ctx, clickhouse.WithSettings(clickhouse.Settings{
		"mutations_sync": 1,
	}))
	err = db.conn.Exec(ctx, `ALTER TABLE usage DELETE WHERE ts < ?`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune usage: %w", err)
	}
	return int64(count), nil
}

// UpsertChat writes a new version of the chat entry
func (db *ClickHouseDB) UpsertChat(ctx context.Context, chat models.Chat) error {
	err := db.conn.Exec(ctx,
		`INSERT INTO active_chats (chat_id, chat_type, title, updated_at) VALUES (?, ?, ?, ?)`,
		chat.ID, chat.Type, chat.Title, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save chat %d: %w", chat.ID, err)
	}
	return nil
}

// ListChats returns the latest version of every chat ordered by id
func (db *ClickHouseDB) ListChats(ctx context.Context) ([]models.Chat, error) {
	rows, err := db.conn.Query(ctx, `
		SELECT chat_id, argMax(chat_type, updated_at), argMax(title, updated_at)
		FROM active_chats
		GROUP BY chat_id
		ORDER BY chat_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}
	defer rows.Close()

	var chats []models.Chat
	for rows.Next() {
		var chat models.Chat
		if err := rows.Scan(&chat.ID, &chat.Type, &chat.Title); err != nil {
			return nil, fmt.Errorf("failed to scan chat: %w", err)
		}
		chats = append(chats, chat)
	}
	return chats, rows.Err()
}

// Close closes the database connection
func (db *ClickHouseDB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}
