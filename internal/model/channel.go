package model

import (
	"time"

	"github.com/mwaltman/guild-archiver/internal/utility"
)

type (
	// ChannelID is a platform channel snowflake.
	ChannelID string
)

// PlaceholderName is stored when a channel is referenced before its metadata
// is known. A known name is never overwritten by the placeholder.
const PlaceholderName = "unknown-channel"

// ChannelKind mirrors the platform channel types the archiver cares about.
type ChannelKind string

const (
	ChannelKindText     ChannelKind = "text"
	ChannelKindCategory ChannelKind = "category"
	ChannelKindThread   ChannelKind = "thread"
	ChannelKindForum    ChannelKind = "forum"
)

type Channel struct {
	ID       ChannelID   `gorm:"primaryKey" hash:"x" json:"id"`        // Unique channel identifier.
	GuildID  string      `hash:"x"          json:"guild_id"`           // Guild the channel belongs to.
	ParentID ChannelID   `gorm:"index"      hash:"x" json:"parent_id"` // Optional. Category or parent channel.
	Name     string      `hash:"x"          json:"name"`               // Display name.
	Kind     ChannelKind `hash:"x"          json:"kind"`               // Channel type.
	Topic    string      `hash:"x"          json:"topic"`              // Optional. Channel topic.

	// Accessibility bookkeeping, owned by the crawler.
	Accessible  bool  `gorm:"default:true" json:"accessible"` // False after a permission or not-found failure.
	AccessTS    int64 `json:"access_ts"`                      // Unix ms of the last accessibility decision.
	LastMessage MessageID `json:"last_message"`               // Newest message id seen in this channel.

	// Meta fields
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"` // Time when the channel was last updated.
}

// TableName - set the table name.
func (Channel) TableName() string {
	return "channels"
}

// GetID - get the channel ID.
func (obj *Channel) GetID() string {
	return string(obj.ID)
}

// ToString - get the channel ID.
func (id ChannelID) ToString() string {
	return string(id)
}

// IsThread - true for thread-like channels.
func (obj *Channel) IsThread() bool {
	return obj.Kind == ChannelKindThread
}

// Hash - calculate the hash of the observable fields.
func (obj *Channel) Hash() (string, error) {
	return utility.Hash(obj)
}
