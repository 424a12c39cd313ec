package model

import "time"

// CrawlProgress is the per-channel resume cursor of the historical crawler.
// One row per channel, owned exclusively by the crawler: the cursor only
// advances together with the rows of the page it covers.
type CrawlProgress struct {
	ChannelID   ChannelID `gorm:"primaryKey" json:"channel_id"`
	Cursor      MessageID `json:"cursor"`       // Oldest message id ingested so far.
	OldestTS    int64     `json:"oldest_ts"`    // Unix ms of the oldest ingested message.
	Exhausted   bool      `json:"exhausted"`    // True once history was walked to the horizon.
	AttemptedTS int64     `json:"attempted_ts"` // Unix ms of the last crawl attempt.

	// Meta fields
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName - set the table name.
func (CrawlProgress) TableName() string {
	return "crawl_progress"
}
