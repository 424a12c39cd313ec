package storage

import (
	"context"
	"errors"

	"github.com/mwaltman/guild-archiver/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UpsertMessageInput - a message together with the members and channels it
// references, persisted atomically.
type UpsertMessageInput struct {
	Message  *model.Message
	Members  []*model.Member
	Channels []*model.Channel
}

// UpsertMessage stores a captured message with its author and channel.
// The whole write happens in one transaction, so either the archive and
// the revision log advance together or not at all.
func (s *Storage) UpsertMessage(ctx context.Context, input UpsertMessageInput) error {
	if input.Message == nil {
		return errorNilMessage
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, channel := range input.Channels {
			if err := upsertChannelTx(tx, channel); err != nil {
				return err
			}
		}
		for _, member := range input.Members {
			if err := upsertMemberTx(tx, member); err != nil {
				return err
			}
		}
		_, err := upsertMessageTx(tx, input.Message)
		return err
	})
}

// upsertMessageTx writes a single message and appends revision entries:
// one for the original content on first insert, and one per content
// change afterwards. Returns whether the row was newly created.
func upsertMessageTx(tx *gorm.DB, msg *model.Message) (bool, error) {
	var existing model.Message
	err := tx.Where("id = ?", msg.ID).First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		// Create stores the attachment rows along with the message.
		if err := tx.Create(msg).Error; err != nil {
			return false, err
		}
		return true, appendRevision(tx, msg, model.RevisionEdit, msg.CreatedTS)
	case err != nil:
		return false, err
	}

	// Same content hash means nothing to do, the common case when the
	// crawler walks over already archived pages. Attachment metadata is
	// not hashed, so it is refreshed either way.
	same, err := unchanged(&existing, msg)
	if err != nil {
		return false, err
	}
	if same {
		return false, upsertAttachmentsTx(tx, msg)
	}

	contentChanged := existing.Content != msg.Content

	// Last writer wins on the mutable columns, the revision log keeps
	// the history.
	updates := map[string]any{
		"content":     msg.Content,
		"edited_ts":   msg.EditedTS,
		"pinned":      msg.Pinned,
		"reply_to_id": msg.ReplyToID,
	}
	if err := tx.Model(&model.Message{}).Where("id = ?", msg.ID).Updates(updates).Error; err != nil {
		return false, err
	}
	if err := upsertAttachmentsTx(tx, msg); err != nil {
		return false, err
	}

	if contentChanged {
		capturedTS := msg.EditedTS.Int64
		if !msg.EditedTS.Valid {
			capturedTS = nowUnixMilli()
		}
		if err := appendRevision(tx, msg, model.RevisionEdit, capturedTS); err != nil {
			return false, err
		}
	}
	return false, nil
}

// upsertAttachmentsTx refreshes the attachment metadata of a message.
// Attachments removed by a later edit keep their rows, the archive never
// forgets a file it has seen.
func upsertAttachmentsTx(tx *gorm.DB, msg *model.Message) error {
	if len(msg.Attachments) == 0 {
		return nil
	}
	for i := range msg.Attachments {
		msg.Attachments[i].MessageID = msg.ID
	}
	return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&msg.Attachments).Error
}

func appendRevision(tx *gorm.DB, msg *model.Message, kind model.RevisionKind, capturedTS int64) error {
	return tx.Create(&model.Revision{
		MessageID:  msg.ID,
		ChannelID:  msg.ChannelID,
		AuthorID:   msg.AuthorID,
		Content:    msg.Content,
		Kind:       kind,
		CapturedTS: capturedTS,
	}).Error
}

// MarkMessageDeleted flags an archived message as deleted and appends a
// delete revision. Deleting a message we never archived is not an error.
func (s *Storage) MarkMessageDeleted(ctx context.Context, id model.MessageID, capturedTS int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var msg model.Message
		err := tx.Where("id = ?", id).First(&msg).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if msg.Deleted {
			return nil
		}
		if err := tx.Model(&model.Message{}).Where("id = ?", id).Update("deleted", true).Error; err != nil {
			return err
		}
		return appendRevision(tx, &msg, model.RevisionDelete, capturedTS)
	})
}

// Message fetches a single archived message with its author loaded.
func (s *Storage) Message(ctx context.Context, id model.MessageID) (*model.Message, error) {
	var msg model.Message
	if err := s.db.WithContext(ctx).Preload(clause.Associations).Where("id = ?", id).First(&msg).Error; err != nil {
		return nil, err
	}
	return &msg, nil
}

// Revisions returns the revision log of a message in append order.
func (s *Storage) Revisions(ctx context.Context, id model.MessageID) ([]model.Revision, error) {
	var revisions []model.Revision
	err := s.db.WithContext(ctx).
		Where("message_id = ?", id).
		Order("id asc").
		Find(&revisions).Error
	return revisions, err
}
