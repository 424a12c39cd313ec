package storage

import (
	"context"
	"errors"

	"github.com/mwaltman/guild-archiver/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// MirrorMapping returns the stored mirror mapping for a source channel,
// or nil when the channel has no mirror yet.
func (s *Storage) MirrorMapping(ctx context.Context, sourceID model.ChannelID) (*model.MirrorMapping, error) {
	var mapping model.MirrorMapping
	err := s.db.WithContext(ctx).Where("source_id = ?", sourceID).First(&mapping).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &mapping, nil
}

// SaveMirrorMapping persists a source to destination channel mapping.
// The upsert keeps the operation safe against a racing second writer.
func (s *Storage) SaveMirrorMapping(ctx context.Context, mapping *model.MirrorMapping) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "source_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"destination_id", "source_parent_id", "destination_parent_id"}),
		}).
		Create(mapping).Error
}

// MirrorMappings lists every stored mapping.
func (s *Storage) MirrorMappings(ctx context.Context) ([]model.MirrorMapping, error) {
	var mappings []model.MirrorMapping
	err := s.db.WithContext(ctx).Order("source_id asc").Find(&mappings).Error
	return mappings, err
}
