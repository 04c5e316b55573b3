// Package access derives user roles and group permissions from the store.
package access

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"appealbot/internal/models"
	"appealbot/internal/storage"
)

// ErrOwnerAlreadySet is returned by BootstrapOwner once an owner exists
var ErrOwnerAlreadySet = errors.New("owner already set")

// Service answers role questions for handlers
type Service struct {
	db storage.Storage

	// serializes the read-then-write of owner bootstrap
	bootstrapMu sync.Mutex
}

// NewService creates an access service over db
func NewService(db storage.Storage) *Service {
	return &Service{db: db}
}

// Owner returns the stored owner identity, or "" when none is set
func (s *Service) Owner(ctx context.Context) (string, error) {
	owner, _, err := s.db.GetConfig(ctx, models.KeyOwnerID)
	if err != nil {
		return "", fmt.Errorf("failed to read owner: %w", err)
	}
	return owner, nil
}

// OwnerID returns the owner as a numeric chat id; ok is false when unset or not numeric
func (s *Service) OwnerID(ctx context.Context) (int64, bool, error) {
	owner, err := s.Owner(ctx)
	if err != nil || owner == "" {
		return 0, false, err
	}
	id, err := strconv.ParseInt(owner, 10, 64)
	if err != nil {
		return 0, false, nil
	}
	return id, true, nil
}

// BootstrapOwner sets the owner once.
// When an owner already exists it returns the existing value and ErrOwnerAlreadySet.
func (s *Service) BootstrapOwner(ctx context.Context, id int64) (string, error) {
	s.bootstrapMu.Lock()
	defer s.bootstrapMu.Unlock()

	current, err := s.Owner(ctx)
	if err != nil {
		return "", err
	}
	if current != "" {
		return current, ErrOwnerAlreadySet
	}

	owner := strconv.FormatInt(id, 10)
	if err := s.db.SetConfig(ctx, models.KeyOwnerID, owner); err != nil {
		return "", fmt.Errorf("failed to set owner: %w", err)
	}
	return owner, nil
}

// IsOwner reports whether id is the configured owner
func (s *Service) IsOwner(ctx context.Context, id int64) (bool, error) {
	owner, err := s.Owner(ctx)
	if err != nil {
		return false, err
	}
	return owner != "" && owner == strconv.FormatInt(id, 10), nil
}

// IsAdmin reports whether id is the owner or in the admin set
func (s *Service) IsAdmin(ctx context.Context, id int64) (bool, error) {
	return s.ownerOrMember(ctx, models.SetAdmins, id)
}

// IsPremium reports whether id is the owner or in the premium set
func (s *Service) IsPremium(ctx context.Context, id int64) (bool, error) {
	return s.ownerOrMember(ctx, models.SetPremium, id)
}

func (s *Service) ownerOrMember(ctx context.Context, set models.MemberSet, id int64) (bool, error) {
	owner, err := s.IsOwner(ctx, id)
	if err != nil || owner {
		return owner, err
	}
	ok, err := s.db.IsMember(ctx, set, id)
	if err != nil {
		return false, fmt.Errorf("failed to check %s membership: %w", set, err)
	}
	return ok, nil
}

// Role returns the highest role held by id
func (s *Service) Role(ctx context.Context, id int64) (models.Role, error) {
	if ok, err := s.IsOwner(ctx, id); err != nil || ok {
		return models.RoleOwner, err
	}
	if ok, err := s.IsAdmin(ctx, id); err != nil || ok {
		return models.RoleAdmin, err
	}
	if ok, err := s.IsPremium(ctx, id); err != nil || ok {
		return models.RolePremium, err
	}
	return models.RoleUser, nil
}

// AddAdmin grants admin to id
func (s *Service) AddAdmin(ctx context.Context, id int64) error {
	return s.db.AddMember(ctx, models.SetAdmins, id)
}

// AddPremium exempts id from rate limiting
func (s *Service) AddPremium(ctx context.Context, id int64) error {
	return s.db.AddMember(ctx, models.SetPremium, id)
}

// AllowGroup allow-lists a group chat
func (s *Service) AllowGroup(ctx context.Context, chatID int64) error {
	return s.db.AddMember(ctx, models.SetGroups, chatID)
}

// GroupMode returns the stored group mode, falling back to the seeded default
func (s *Service) GroupMode(ctx context.Context) (string, error) {
	mode, found, err := s.db.GetConfig(ctx, models.KeyGroupMode)
	if err != nil {
		return "", fmt.Errorf("failed to read group mode: %w", err)
	}
	if !found || mode == "" {
		return models.GroupModeDefault, nil
	}
	return mode, nil
}

// SetGroupMode stores mode verbatim
func (s *Service) SetGroupMode(ctx context.Context, mode string) error {
	return s.db.SetConfig(ctx, models.KeyGroupMode, mode)
}

// GroupModeEnabled compares the stored mode exactly against "enable"
func (s *Service) GroupModeEnabled(ctx context.Context) (bool, error) {
	mode, err := s.GroupMode(ctx)
	if err != nil {
		return false, err
	}
	return mode == models.GroupModeEnable, nil
}

// GroupAllowed reports whether the bot may serve appeals in the chat.
// Private chats are always allowed.
func (s *Service) GroupAllowed(ctx context.Context, chatID int64, private bool) (bool, error) {
	if private {
		return true, nil
	}
	enabled, err := s.GroupModeEnabled(ctx)
	if err != nil || enabled {
		return enabled, err
	}
	ok, err := s.db.IsMember(ctx, models.SetGroups, chatID)
	if err != nil {
		return false, fmt.Errorf("failed to check group allow-list: %w", err)
	}
	return ok, nil
}

// Stats collects the counters shown in the owner panel
func (s *Service) Stats(ctx context.Context) (models.Stats, error) {
	var stats models.Stats
	var err error

	if stats.Appeals, err = s.db.CountUsage(ctx); err != nil {
		return stats, fmt.Errorf("failed to count appeals: %w", err)
	}
	if stats.Premium, err = s.db.CountMembers(ctx, models.SetPremium); err != nil {
		return stats, fmt.Errorf("failed to count premium users: %w", err)
	}
	if stats.Admins, err = s.db.CountMembers(ctx, models.SetAdmins); err != nil {
		return stats, fmt.Errorf("failed to count admins: %w", err)
	}
	if stats.Groups, err = s.db.CountMembers(ctx, models.SetGroups); err != nil {
		return stats, fmt.Errorf("failed to count groups: %w", err)
	}
	return stats, nil
}

// BroadcastRecipients returns admins, premium users and the owner without duplicates
func (s *Service) BroadcastRecipients(ctx context.Context) ([]int64, error) {
	seen := make(map[int64]struct{})
	var recipients []int64
	add := func(id int64) {
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		recipients = append(recipients, id)
	}

	for _, set := range []models.MemberSet{models.SetAdmins, models.SetPremium} {
		ids, err := s.db.ListMembers(ctx, set)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", set, err)
		}
		for _, id := range ids {
			add(id)
		}
	}

	ownerID, ok, err := s.OwnerID(ctx)
	if err != nil {
		return nil, err
	}
	if ok {
		add(ownerID)
	}
	return recipients, nil
}
