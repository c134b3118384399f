// internal/model/presence.go
package model

import (
	"time"
)

type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "ONLINE"
	PresenceOffline PresenceStatus = "OFFLINE"
)

// SessionData is the record stored for one live connection.
// Extra is round-tripped untouched so callers can attach their own metadata.
type SessionData struct {
	UserID      int64          `json:"userId"`
	Nickname    string         `json:"nickname"`
	ConnectedAt time.Time      `json:"connectedAt"`
	Extra       map[string]any `json:"extra,omitempty"`
}

// OnlineUser is one entry of the online-users listing, projected from the
// first reachable session of each user.
type OnlineUser struct {
	UserID      int64     `json:"userId"`
	Nickname    string    `json:"nickname"`
	ConnectedAt time.Time `json:"connectedAt"`
	SocketCount int       `json:"socketCount"`
}

// UserLastSeen keeps the most recent fully-offline transition per user.
type UserLastSeen struct {
	UserID   int64     `gorm:"primaryKey" json:"userId"`
	Nickname string    `gorm:"type:varchar(100)" json:"nickname"`
	LastSeen time.Time `gorm:"index" json:"lastSeen"`
}

func (UserLastSeen) TableName() string {
	return "user_last_seen"
}
