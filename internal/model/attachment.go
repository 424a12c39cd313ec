package model

import "time"

type (
	// AttachmentID is a platform attachment snowflake.
	AttachmentID string
)

// Attachment is the metadata of a file posted with a message. The file
// itself stays on the platform CDN, only the pointer is archived.
type Attachment struct {
	ID          AttachmentID `gorm:"primaryKey" json:"id"`         // Unique attachment identifier.
	MessageID   MessageID    `gorm:"index"      json:"message_id"` // Message the file was posted with.
	Filename    string       `json:"filename"`                     // Original file name.
	URL         string       `json:"url"`                          // CDN URL of the file.
	ContentType string       `json:"content_type"`                 // Optional. MIME type reported by the platform.
	Size        int          `json:"size"`                         // File size in bytes.
	Width       int          `json:"width"`                        // Optional. Image width in pixels.
	Height      int          `json:"height"`                       // Optional. Image height in pixels.

	// Meta fields
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"` // Time when the attachment was stored.
}

// TableName - set the table name.
func (Attachment) TableName() string {
	return "attachments"
}

// GetID - get the attachment ID.
func (obj *Attachment) GetID() string {
	return string(obj.ID)
}

// ToString - get the attachment ID.
func (id AttachmentID) ToString() string {
	return string(id)
}
