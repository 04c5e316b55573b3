package models

import "time"

// ConfigKey names an entry in the persistent key-value configuration
type ConfigKey string

const (
	KeyOwnerID       ConfigKey = "owner_id"
	KeyGroupMode     ConfigKey = "group_mode"
	KeyEmailFrom     ConfigKey = "email_from"
	KeyEmailPassword ConfigKey = "email_password"
)

// Group mode values as written by the set-mode buttons.
// The seeded default is "disabled"; only an exact "enable" turns group mode on.
const (
	GroupModeEnable  = "enable"
	GroupModeDisable = "disable"
	GroupModeDefault = "disabled"
)

// MemberSet names one of the grow-only membership sets
type MemberSet string

const (
	SetAdmins  MemberSet = "admins"
	SetPremium MemberSet = "premium"
	SetGroups  MemberSet = "groups"
)

// MemberSets lists every membership set
var MemberSets = []MemberSet{SetAdmins, SetPremium, SetGroups}

// Role is the effective permission level of a user
type Role int

const (
	RoleUser Role = iota
	RolePremium
	RoleAdmin
	RoleOwner
)

func (r Role) String() string {
	switch r {
	case RoleOwner:
		return "owner"
	case RoleAdmin:
		return "admin"
	case RolePremium:
		return "premium"
	default:
		return "user"
	}
}

// Chat is an entry of the active chat directory
type Chat struct {
	ID    int64
	Type  string
	Title string
}

// UsageEntry is one successful non-premium relay
type UsageEntry struct {
	UserID    int64
	Timestamp time.Time
}

// Stats summarizes the store for the owner panel
type Stats struct {
	Appeals int
	Premium int
	Admins  int
	Groups  int
}
