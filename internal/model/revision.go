package model

// RevisionKind distinguishes content edits from deletions in the revision log.
type RevisionKind string

const (
	RevisionEdit   RevisionKind = "edit"
	RevisionDelete RevisionKind = "delete"
)

// Revision is one entry of a message's append-only content history. A row is
// written for every distinct content version ever observed, plus one terminal
// row when the message is deleted. Rows are never updated or removed.
type Revision struct {
	ID         uint64       `gorm:"primaryKey;autoIncrement" json:"id"`
	MessageID  MessageID    `gorm:"index"                    json:"message_id"` // Message this revision belongs to.
	ChannelID  ChannelID    `json:"channel_id"`                                 // Channel of the message at capture time.
	AuthorID   MemberID     `json:"author_id"`                                  // Author of the message at capture time.
	Content    string       `json:"content"`                                    // Content snapshot.
	Kind       RevisionKind `gorm:"index"                    json:"kind"`       // Edit or delete.
	CapturedTS int64        `json:"captured_ts"`                                // Unix ms when the snapshot was taken.
}

// TableName - set the table name.
func (Revision) TableName() string {
	return "revisions"
}
