package model

import (
	"time"

	"github.com/mwaltman/guild-archiver/internal/utility"
)

type (
	// MemberID is a platform user snowflake.
	MemberID string
)

type Member struct {
	ID MemberID `gorm:"primaryKey" hash:"x" json:"id"` // Unique identifier for this member.

	// Member fields
	Username    string `hash:"x" json:"username"`     // Account name.
	DisplayName string `hash:"x" json:"display_name"` // Guild display name.
	AvatarURL   string `hash:"x" json:"avatar_url"`   // Avatar image URL.
	IsBot       bool   `hash:"x" json:"is_bot"`       // True if the member is a bot.

	// GM fields, seeded at startup and never derived from events.
	IsGameMaster   bool   `gorm:"index" json:"is_game_master"` // True for members whose posts are mirrored.
	GameMasterName string `json:"game_master_name"`            // Optional display-name override for reposts.

	// Meta fields
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"` // Time when the member was last updated.
}

// TableName - set the table name.
func (Member) TableName() string {
	return "members"
}

// GetID - get the member ID.
func (obj *Member) GetID() string {
	return string(obj.ID)
}

// ToString - get the member ID.
func (id MemberID) ToString() string {
	return string(id)
}

// RepostName - the name shown on mirrored posts.
func (obj *Member) RepostName() string {
	if obj.GameMasterName != "" {
		return obj.GameMasterName
	}
	if obj.DisplayName != "" {
		return obj.DisplayName
	}
	return obj.Username
}

// Hash - calculate the hash of the observable fields.
func (obj *Member) Hash() (string, error) {
	return utility.Hash(obj)
}
