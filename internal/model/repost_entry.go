package model

import "time"

// RepostStatus is the delivery state of a queued GM post.
type RepostStatus string

const (
	RepostPending   RepostStatus = "pending"
	RepostDelivered RepostStatus = "delivered"
	RepostFailed    RepostStatus = "failed" // Terminal, excluded from polling forever.
)

// RepostEntry is one element of the delayed cross-guild repost queue. The
// message id is the primary key, so a message can be queued at most once no
// matter how many times capture and crawler both observe it.
type RepostEntry struct {
	MessageID    MessageID    `gorm:"primaryKey" json:"message_id"`
	ChannelID    ChannelID    `json:"channel_id"`
	DiscoveredTS int64        `gorm:"index" json:"discovered_ts"` // Unix ms when the GM post was first observed.
	EligibleTS   int64        `gorm:"index" json:"eligible_ts"`   // Unix ms after which the entry is due.
	Status       RepostStatus `gorm:"index;default:pending" json:"status"`
	Attempts     int          `json:"attempts"` // Failed delivery attempts so far.

	// Meta fields
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName - set the table name.
func (RepostEntry) TableName() string {
	return "repost_queue"
}
