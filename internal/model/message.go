package model

import (
	"database/sql"
	"time"

	"github.com/mwaltman/guild-archiver/internal/utility"
)

type (
	// MessageID is a platform message snowflake.
	MessageID string
)

type Message struct {
	ID        MessageID `gorm:"primaryKey" hash:"x"      json:"id"`         // Unique message identifier.
	ChannelID ChannelID `gorm:"index"      hash:"x"      json:"channel_id"` // ID of the channel the message belongs to.
	AuthorID  MemberID  `gorm:"index"      hash:"x"      json:"author_id"`  // ID of the author.
	Content   string    `hash:"x"          json:"content"`                  // Current message content.
	CreatedTS int64     `gorm:"index"      hash:"x"      json:"created_ts"` // Unix ms when the message was sent.
	EditedTS  sql.NullInt64 `json:"edited_ts"`                              // Unix ms of the last observed edit.
	Pinned    bool      `hash:"x"          json:"pinned"`                   // True if the message is pinned.
	Deleted   bool      `gorm:"index"      json:"deleted"`                  // True once a delete event was observed.
	ReplyToID MessageID `gorm:"index"      json:"reply_to_id"`              // Optional. ID of the replied-to message.

	// Relations
	Author      *Member      `gorm:"foreignKey:AuthorID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL;"`  // Reference to the author.
	Channel     *Channel     `gorm:"foreignKey:ChannelID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL;"` // Reference to the channel.
	Revisions   []Revision   `gorm:"foreignKey:MessageID"`                                                // Append-only content history.
	Attachments []Attachment `gorm:"foreignKey:MessageID"`                                                // Files posted with the message.

	// Meta fields
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"` // Time when the message was stored.
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"` // Time when the message was last updated.
}

// TableName - set the table name.
func (Message) TableName() string {
	return "messages"
}

// GetID - get the message ID.
func (obj *Message) GetID() string {
	return string(obj.ID)
}

// ToString - get the message ID.
func (id MessageID) ToString() string {
	return string(id)
}

// Hash - calculate the hash of the observable fields.
func (obj *Message) Hash() (string, error) {
	return utility.Hash(obj)
}
