package storage

import (
	"context"
	"errors"

	"github.com/mwaltman/guild-archiver/internal/model"
	"gorm.io/gorm"
)

// ReadProgress returns the crawl cursor of a channel, or nil when the
// channel has never been crawled.
func (s *Storage) ReadProgress(ctx context.Context, id model.ChannelID) (*model.CrawlProgress, error) {
	var progress model.CrawlProgress
	err := s.db.WithContext(ctx).Where("channel_id = ?", id).First(&progress).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &progress, nil
}

// WriteProgress persists the crawl cursor of a channel.
func (s *Storage) WriteProgress(ctx context.Context, progress *model.CrawlProgress) error {
	return writeProgressTx(s.db.WithContext(ctx), progress)
}

func writeProgressTx(tx *gorm.DB, progress *model.CrawlProgress) error {
	var existing model.CrawlProgress
	err := tx.Where("channel_id = ?", progress.ChannelID).First(&existing).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return tx.Create(progress).Error
	}
	if err != nil {
		return err
	}
	return tx.Model(&model.CrawlProgress{}).
		Where("channel_id = ?", progress.ChannelID).
		Updates(map[string]any{
			"cursor":       progress.Cursor,
			"oldest_ts":    progress.OldestTS,
			"exhausted":    progress.Exhausted,
			"attempted_ts": progress.AttemptedTS,
		}).Error
}

// SavePageResult - the outcome of persisting one crawled page.
type SavePageResult struct {
	// CreatedIDs lists the messages that were new to the archive,
	// in the order they appeared on the page.
	CreatedIDs []model.MessageID
}

// SavePage persists a crawled page of messages together with the
// advanced cursor in a single transaction. A crash between the two would
// otherwise either lose messages or skip them on resume.
func (s *Storage) SavePage(ctx context.Context, inputs []UpsertMessageInput, progress *model.CrawlProgress) (*SavePageResult, error) {
	result := &SavePageResult{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, input := range inputs {
			if input.Message == nil {
				return errorNilMessage
			}
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
			created, err := upsertMessageTx(tx, input.Message)
			if err != nil {
				return err
			}
			if created {
				result.CreatedIDs = append(result.CreatedIDs, input.Message.ID)
			}
		}
		if progress != nil {
			return writeProgressTx(tx, progress)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
