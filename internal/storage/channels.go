package storage

import (
	"context"
	"errors"

	"github.com/mwaltman/guild-archiver/internal/model"
	"gorm.io/gorm"
)

// upsertChannelTx writes a channel row, short-circuiting on an unchanged
// hash. A placeholder stub only reserves the row for a message reference;
// once the row exists the stub never touches metadata discovery has
// already learned, including the parent the mirror hierarchy is built from.
func upsertChannelTx(tx *gorm.DB, channel *model.Channel) error {
	var existing model.Channel
	err := tx.Where("id = ?", channel.ID).First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return tx.Create(channel).Error
	case err != nil:
		return err
	}

	if channel.Name == model.PlaceholderName {
		return nil
	}

	same, err := unchanged(&existing, channel)
	if err != nil {
		return err
	}
	if same {
		return nil
	}

	return tx.Model(&model.Channel{}).Where("id = ?", channel.ID).Updates(map[string]any{
		"guild_id":  channel.GuildID,
		"parent_id": channel.ParentID,
		"name":      channel.Name,
		"kind":      channel.Kind,
		"topic":     channel.Topic,
	}).Error
}

// UpsertChannel stores or refreshes a single channel row.
func (s *Storage) UpsertChannel(ctx context.Context, channel *model.Channel) error {
	return upsertChannelTx(s.db.WithContext(ctx), channel)
}

// GetOrCreateChannel returns the stored channel, creating a placeholder
// row when a message references a channel we have not seen yet.
func (s *Storage) GetOrCreateChannel(ctx context.Context, id model.ChannelID, guildID string) (*model.Channel, error) {
	var channel model.Channel
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&channel).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		channel = model.Channel{
			ID:      id,
			GuildID: guildID,
			Name:    model.PlaceholderName,
			Kind:    model.ChannelKindText,
		}
		if err := s.db.WithContext(ctx).Create(&channel).Error; err != nil {
			return nil, err
		}
		return &channel, nil
	}
	if err != nil {
		return nil, err
	}
	return &channel, nil
}

// Channel fetches a single channel row.
func (s *Storage) Channel(ctx context.Context, id model.ChannelID) (*model.Channel, error) {
	var channel model.Channel
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&channel).Error; err != nil {
		return nil, err
	}
	return &channel, nil
}

// MarkChannelAccess records the outcome of the latest fetch attempt
// against a channel, so the crawler stops hammering channels the bot
// cannot read.
func (s *Storage) MarkChannelAccess(ctx context.Context, id model.ChannelID, accessible bool, checkedTS int64) error {
	return s.db.WithContext(ctx).Model(&model.Channel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"accessible": accessible,
			"access_ts":  checkedTS,
		}).Error
}

// Channels lists every known channel of a guild.
func (s *Storage) Channels(ctx context.Context, guildID string) ([]model.Channel, error) {
	var channels []model.Channel
	err := s.db.WithContext(ctx).Where("guild_id = ?", guildID).Order("id asc").Find(&channels).Error
	return channels, err
}
