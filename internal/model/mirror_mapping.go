package model

import "time"

// MirrorMapping links a source channel to its mirrored counterpart in the
// destination guild. Persisted so restarts never recreate destination
// channels; the in-memory cache in front of it is advisory only.
type MirrorMapping struct {
	SourceID      ChannelID `gorm:"primaryKey" json:"source_id"`
	DestinationID ChannelID `json:"destination_id"`

	// Hierarchy link, empty for top-level channels.
	SourceParentID      ChannelID `json:"source_parent_id"`
	DestinationParentID ChannelID `json:"destination_parent_id"`

	// Meta fields
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName - set the table name.
func (MirrorMapping) TableName() string {
	return "mirror_mappings"
}
