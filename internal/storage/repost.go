package storage

import (
	"context"
	"errors"

	"github.com/mwaltman/guild-archiver/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EnqueueRepost adds a game master message to the repost queue. The
// message id is the primary key, so re-discovering the same message is
// a no-op and the original discovery time is kept.
func (s *Storage) EnqueueRepost(ctx context.Context, entry *model.RepostEntry) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(entry).Error
}

// FetchDueReposts returns pending entries whose delay has elapsed,
// oldest discovery first.
func (s *Storage) FetchDueReposts(ctx context.Context, now int64, limit int) ([]model.RepostEntry, error) {
	var entries []model.RepostEntry
	err := s.db.WithContext(ctx).
		Where("status = ? AND eligible_ts <= ?", model.RepostPending, now).
		Order("discovered_ts asc").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

// MarkRepostDelivered moves a pending entry to delivered. Only a pending
// entry transitions, so a concurrent second dispatch cannot double-send.
func (s *Storage) MarkRepostDelivered(ctx context.Context, id model.MessageID) error {
	return s.db.WithContext(ctx).Model(&model.RepostEntry{}).
		Where("message_id = ? AND status = ?", id, model.RepostPending).
		Update("status", model.RepostDelivered).Error
}

// RegisterRepostFailure bumps the attempt counter and, once the budget
// is exhausted, parks the entry in the terminal failed status. Returns
// whether the entry went terminal.
func (s *Storage) RegisterRepostFailure(ctx context.Context, id model.MessageID, maxAttempts int) (bool, error) {
	terminal := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var entry model.RepostEntry
		if err := tx.Where("message_id = ?", id).First(&entry).Error; err != nil {
			return err
		}
		entry.Attempts++
		updates := map[string]any{"attempts": entry.Attempts}
		if entry.Attempts >= maxAttempts {
			updates["status"] = model.RepostFailed
			terminal = true
		}
		return tx.Model(&model.RepostEntry{}).Where("message_id = ?", id).Updates(updates).Error
	})
	return terminal, err
}

// DiscardRepost drops a queue entry whose source message no longer
// qualifies, for example because it was deleted during the delay window.
func (s *Storage) DiscardRepost(ctx context.Context, id model.MessageID) error {
	err := s.db.WithContext(ctx).Where("message_id = ?", id).Delete(&model.RepostEntry{}).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	return err
}

// RepostQueueStats - queue depth by status, for the admin endpoint.
type RepostQueueStats struct {
	Pending   int64 `json:"pending"`
	Delivered int64 `json:"delivered"`
	Failed    int64 `json:"failed"`
}

// RepostStats counts queue entries per status.
func (s *Storage) RepostStats(ctx context.Context) (*RepostQueueStats, error) {
	stats := &RepostQueueStats{}
	counts := map[model.RepostStatus]*int64{
		model.RepostPending:   &stats.Pending,
		model.RepostDelivered: &stats.Delivered,
		model.RepostFailed:    &stats.Failed,
	}
	for status, target := range counts {
		if err := s.db.WithContext(ctx).Model(&model.RepostEntry{}).
			Where("status = ?", status).
			Count(target).Error; err != nil {
			return nil, err
		}
	}
	return stats, nil
}
