package mirror

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"
	"github.com/dgraph-io/ristretto"
	"github.com/mwaltman/guild-archiver/internal/model"
	"github.com/mwaltman/guild-archiver/internal/storage"
	"golang.org/x/sync/singleflight"
)

var errorDepthExceeded = errors.New("mirror parent chain too deep")

// The topology is tiny, the cache only needs to absorb dispatcher lookups.
const (
	cacheNumCounters = 10_000
	cacheMaxCost     = 1_000
	cacheBufferItems = 64
)

// ChannelCreator creates channels in the destination guild. Implemented by
// the rate-limited platform client.
type ChannelCreator interface {
	CreateChannel(ctx context.Context, guildID, name string, kind discordgo.ChannelType, parentID string) (*discordgo.Channel, error)
}

// Manager resolves the mirrored counterpart of a source channel, creating
// it on first use. Lookups go cache, then database, then a single-flighted
// create, so concurrent dispatches for the same channel produce exactly
// one destination channel.
type Manager struct {
	db      *storage.Storage
	creator ChannelCreator
	cache   *ristretto.Cache
	group   singleflight.Group
	guildID string // destination guild
	logger  *slog.Logger
}

func New(db *storage.Storage, creator ChannelCreator, destGuildID string, logger *slog.Logger) (*Manager, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cacheNumCounters,
		MaxCost:     cacheMaxCost,
		BufferItems: cacheBufferItems,
	})
	if err != nil {
		return nil, err
	}
	return &Manager{
		db:      db,
		creator: creator,
		cache:   cache,
		guildID: destGuildID,
		logger:  logger,
	}, nil
}

// EnsureMirror returns the destination channel id mirroring the source
// channel, creating the destination channel and its parent category first
// if needed.
func (m *Manager) EnsureMirror(ctx context.Context, sourceID model.ChannelID) (model.ChannelID, error) {
	const maxDepth = 4
	return m.ensure(ctx, sourceID, maxDepth)
}

func (m *Manager) ensure(ctx context.Context, sourceID model.ChannelID, depth int) (model.ChannelID, error) {
	if depth <= 0 {
		return "", errorDepthExceeded
	}

	if cached, ok := m.cache.Get(sourceID.ToString()); ok {
		return cached.(model.ChannelID), nil
	}

	result, err, _ := m.group.Do(sourceID.ToString(), func() (interface{}, error) {
		// A losing racer lands here after the winner finished, so check
		// the database again before creating anything.
		mapping, err := m.db.MirrorMapping(ctx, sourceID)
		if err != nil {
			return nil, err
		}
		if mapping != nil {
			m.remember(sourceID, mapping.DestinationID)
			return mapping.DestinationID, nil
		}
		return m.create(ctx, sourceID, depth)
	})
	if err != nil {
		return "", err
	}
	return result.(model.ChannelID), nil
}

// create builds the destination channel, recursing into the parent chain
// so a mirrored channel lands under a mirrored category.
func (m *Manager) create(ctx context.Context, sourceID model.ChannelID, depth int) (model.ChannelID, error) {
	source, err := m.db.Channel(ctx, sourceID)
	if err != nil {
		return "", fmt.Errorf("mirror source lookup: %w", err)
	}

	var destParentID model.ChannelID
	if source.ParentID != "" {
		destParentID, err = m.ensure(ctx, source.ParentID, depth-1)
		if err != nil {
			// A missing parent is not fatal, the mirror just becomes
			// a top-level channel.
			m.logger.Warn("mirror parent unavailable",
				slog.String("source_id", sourceID.ToString()),
				slog.String("parent_id", source.ParentID.ToString()),
				slog.String("error", err.Error()),
			)
			destParentID = ""
		}
	}

	created, err := m.creator.CreateChannel(ctx, m.guildID, source.Name, destinationKind(source.Kind), destParentID.ToString())
	if err != nil {
		return "", fmt.Errorf("mirror create: %w", err)
	}

	mapping := &model.MirrorMapping{
		SourceID:            sourceID,
		DestinationID:       model.ChannelID(created.ID),
		SourceParentID:      source.ParentID,
		DestinationParentID: destParentID,
	}
	if err := m.db.SaveMirrorMapping(ctx, mapping); err != nil {
		return "", fmt.Errorf("mirror persist: %w", err)
	}

	m.logger.Info("mirror channel created",
		slog.String("source_id", sourceID.ToString()),
		slog.String("destination_id", created.ID),
		slog.String("name", source.Name),
	)
	m.remember(sourceID, mapping.DestinationID)
	return mapping.DestinationID, nil
}

// destinationKind flattens thread and forum sources into plain text
// channels; only categories keep their type on the destination side.
func destinationKind(kind model.ChannelKind) discordgo.ChannelType {
	if kind == model.ChannelKindCategory {
		return discordgo.ChannelTypeGuildCategory
	}
	return discordgo.ChannelTypeGuildText
}

func (m *Manager) remember(sourceID, destinationID model.ChannelID) {
	m.cache.Set(sourceID.ToString(), destinationID, 1)
}

// Close releases the cache resources.
func (m *Manager) Close() {
	m.cache.Close()
}
