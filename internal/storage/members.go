package storage

import (
	"context"
	"errors"

	"github.com/mwaltman/guild-archiver/internal/model"
	"gorm.io/gorm"
)

// upsertMemberTx writes a member row. Game master flags are managed
// through SeedGameMasters and survive profile refreshes.
func upsertMemberTx(tx *gorm.DB, member *model.Member) error {
	var existing model.Member
	err := tx.Where("id = ?", member.ID).First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return tx.Create(member).Error
	case err != nil:
		return err
	}

	same, err := unchanged(&existing, member)
	if err != nil {
		return err
	}
	if same {
		return nil
	}

	return tx.Model(&model.Member{}).Where("id = ?", member.ID).Updates(map[string]any{
		"username":     member.Username,
		"display_name": member.DisplayName,
		"avatar_url":   member.AvatarURL,
		"is_bot":       member.IsBot,
	}).Error
}

// UpsertMember stores or refreshes a single member profile.
func (s *Storage) UpsertMember(ctx context.Context, member *model.Member) error {
	return upsertMemberTx(s.db.WithContext(ctx), member)
}

// SeedGameMasters marks the configured author ids as game masters and
// applies display name overrides. Members we have not archived yet get
// a stub row so the flag is in place before their first message.
func (s *Storage) SeedGameMasters(ctx context.Context, ids []string, names map[string]string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, id := range ids {
			memberID := model.MemberID(id)
			var member model.Member
			err := tx.Where("id = ?", memberID).First(&member).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				member = model.Member{ID: memberID}
				if err := tx.Create(&member).Error; err != nil {
					return err
				}
			} else if err != nil {
				return err
			}
			updates := map[string]any{"is_game_master": true}
			if name, ok := names[id]; ok {
				updates["game_master_name"] = name
			}
			if err := tx.Model(&model.Member{}).Where("id = ?", memberID).Updates(updates).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// IsGameMaster reports whether the author id belongs to a seeded game master.
func (s *Storage) IsGameMaster(ctx context.Context, id model.MemberID) (bool, error) {
	var member model.Member
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&member).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return member.IsGameMaster, nil
}

// Member fetches a single member profile.
func (s *Storage) Member(ctx context.Context, id model.MemberID) (*model.Member, error) {
	var member model.Member
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&member).Error; err != nil {
		return nil, err
	}
	return &member, nil
}
