package crawler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"
	config "github.com/mwaltman/guild-archiver/internal/config"
	"github.com/mwaltman/guild-archiver/internal/converters"
	"github.com/mwaltman/guild-archiver/internal/discord"
	"github.com/mwaltman/guild-archiver/internal/metrics"
	"github.com/mwaltman/guild-archiver/internal/model"
	"github.com/mwaltman/guild-archiver/internal/storage"
)

// Pager is the slice of the platform client the crawler needs.
type Pager interface {
	GuildChannels(ctx context.Context, guildID string) ([]*discordgo.Channel, error)
	ActiveThreads(ctx context.Context, guildID string) ([]*discordgo.Channel, error)
	ArchivedThreads(ctx context.Context, channelID string, before *time.Time, limit int) ([]*discordgo.Channel, error)
	FetchPage(ctx context.Context, channelID string, beforeID string, limit int) ([]*discordgo.Message, error)
}

// Crawler walks the source guild's history: every pass it refreshes the
// channel registry, then pages each readable channel backwards from its
// persisted cursor until the page runs dry or the backfill horizon is
// crossed. Pages and cursors commit together, so a crash resumes exactly
// where the previous run stopped.
type Crawler struct {
	db      *storage.Storage
	pager   Pager
	config  *config.Config
	logger  *slog.Logger
	metrics metrics.Metrics
	private map[string]bool
}

func New(db *storage.Storage, pager Pager, cfg *config.Config, logger *slog.Logger, m metrics.Metrics) *Crawler {
	private := make(map[string]bool, len(cfg.Discord.PrivateChannels))
	for _, id := range cfg.Discord.PrivateChannels {
		private[id] = true
	}
	return &Crawler{
		db:      db,
		pager:   pager,
		config:  cfg,
		logger:  logger,
		metrics: m,
		private: private,
	}
}

// Run performs crawl passes until the context is canceled.
func (c *Crawler) Run(ctx context.Context) {
	for {
		if err := c.Pass(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("crawl pass failed", slog.String("error", err.Error()))
		}
		if err := sleepCtx(ctx, c.config.Crawler.CycleInterval); err != nil {
			return
		}
	}
}

// Pass refreshes the channel registry and crawls every eligible channel
// once. Per-channel failures are logged and skipped, they never abort
// the rest of the pass.
func (c *Crawler) Pass(ctx context.Context) error {
	channels, err := c.discoverChannels(ctx)
	if err != nil {
		return err
	}

	for _, channel := range channels {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !crawlable(&channel) {
			continue
		}
		if err := c.crawlChannel(ctx, channel.ID); err != nil {
			c.logger.Warn("channel crawl failed",
				slog.String("channel_id", channel.ID.ToString()),
				slog.String("name", channel.Name),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// discoverChannels lists guild channels plus active and archived threads,
// persists them all, and returns the refreshed registry.
func (c *Crawler) discoverChannels(ctx context.Context) ([]model.Channel, error) {
	guildID := c.config.Discord.SourceGuildID

	listed, err := c.pager.GuildChannels(ctx, guildID)
	if err != nil {
		return nil, err
	}

	threads, err := c.pager.ActiveThreads(ctx, guildID)
	if err != nil {
		c.logger.Warn("active thread listing failed", slog.String("error", err.Error()))
	} else {
		listed = append(listed, threads...)
	}

	for _, ch := range listed {
		if ch.Type == discordgo.ChannelTypeGuildText || ch.Type == discordgo.ChannelTypeGuildForum {
			archived, err := c.archivedThreads(ctx, ch.ID)
			if err != nil {
				c.logger.Debug("archived thread listing failed",
					slog.String("channel_id", ch.ID),
					slog.String("error", err.Error()),
				)
				continue
			}
			listed = append(listed, archived...)
		}
	}

	for _, ch := range listed {
		converted := converters.ChannelFromDiscord(ch)
		if converted.GuildID == "" {
			converted.GuildID = guildID
		}
		if err := c.db.UpsertChannel(ctx, converted); err != nil {
			return nil, err
		}
	}

	return c.db.Channels(ctx, guildID)
}

// archivedThreads pages through a channel's public archived threads.
func (c *Crawler) archivedThreads(ctx context.Context, channelID string) ([]*discordgo.Channel, error) {
	const pageLimit = 100
	var all []*discordgo.Channel
	var before *time.Time
	for {
		page, err := c.pager.ArchivedThreads(ctx, channelID, before, pageLimit)
		if err != nil {
			if errors.Is(err, discord.ErrInaccessible) {
				return all, nil
			}
			return nil, err
		}
		all = append(all, page...)
		if len(page) < pageLimit {
			return all, nil
		}
		last := page[len(page)-1]
		if last.ThreadMetadata == nil {
			return all, nil
		}
		ts := last.ThreadMetadata.ArchiveTimestamp
		before = &ts
	}
}

func crawlable(channel *model.Channel) bool {
	return channel.Kind == model.ChannelKindText || channel.IsThread()
}

// crawlChannel pages one channel backwards from its cursor.
func (c *Crawler) crawlChannel(ctx context.Context, id model.ChannelID) error {
	now := time.Now().UTC()

	stored, err := c.db.Channel(ctx, id)
	if err != nil {
		return err
	}
	if !stored.Accessible {
		// Inaccessible channels rest until the cooldown elapses.
		if now.UnixMilli()-stored.AccessTS < c.config.Crawler.RecheckCooldown.Milliseconds() {
			return nil
		}
	}

	progress, err := c.db.ReadProgress(ctx, id)
	if err != nil {
		return err
	}
	if progress == nil {
		progress = &model.CrawlProgress{ChannelID: id}
	}
	if progress.Exhausted {
		progress.AttemptedTS = now.UnixMilli()
		return c.db.WriteProgress(ctx, progress)
	}

	horizon := now.Add(-c.config.Crawler.BackfillHorizon).UnixMilli()
	cursor := progress.Cursor

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		page, err := c.pager.FetchPage(ctx, id.ToString(), cursor.ToString(), c.config.Crawler.PageSize)
		if err != nil {
			if errors.Is(err, discord.ErrInaccessible) {
				c.logger.Info("channel inaccessible, flagged",
					slog.String("channel_id", id.ToString()),
				)
				return c.db.MarkChannelAccess(ctx, id, false, now.UnixMilli())
			}
			return err
		}

		if len(page) == 0 {
			progress.Exhausted = true
			progress.AttemptedTS = now.UnixMilli()
			if err := c.db.WriteProgress(ctx, progress); err != nil {
				return err
			}
			break
		}

		// Pages arrive newest first; the last entry is the new cursor.
		oldest := page[len(page)-1]
		oldestTS := oldest.Timestamp.UTC().UnixMilli()

		progress.Cursor = model.MessageID(oldest.ID)
		progress.OldestTS = oldestTS
		progress.AttemptedTS = now.UnixMilli()
		progress.Exhausted = oldestTS < horizon || len(page) < c.config.Crawler.PageSize

		inputs := c.pageInputs(page, stored.GuildID, id)
		result, err := c.db.SavePage(ctx, inputs, progress)
		if err != nil {
			return err
		}
		c.metrics.LogChannelEvent("crawl_page", id.ToString(), map[string]interface{}{
			"messages": len(page),
			"created":  len(result.CreatedIDs),
		})

		c.enqueueDiscovered(ctx, id, inputs, result.CreatedIDs)

		if progress.Exhausted {
			break
		}
		cursor = progress.Cursor
	}

	if !stored.Accessible {
		return c.db.MarkChannelAccess(ctx, id, true, now.UnixMilli())
	}
	return nil
}

// pageInputs converts a fetched page into storage inputs.
func (c *Crawler) pageInputs(page []*discordgo.Message, guildID string, channelID model.ChannelID) []storage.UpsertMessageInput {
	inputs := make([]storage.UpsertMessageInput, 0, len(page))
	for _, raw := range page {
		msg := converters.MessageFromDiscord(raw)
		if msg == nil {
			continue
		}
		input := storage.UpsertMessageInput{
			Message: msg,
			Channels: []*model.Channel{{
				ID:      channelID,
				GuildID: guildID,
				Name:    model.PlaceholderName,
				Kind:    model.ChannelKindText,
			}},
		}
		if msg.Author != nil {
			input.Members = []*model.Member{msg.Author}
		}
		inputs = append(inputs, input)
	}
	return inputs
}

// enqueueDiscovered feeds newly archived game master posts into the
// repost queue. Already-known messages were either queued when first seen
// or never qualified.
func (c *Crawler) enqueueDiscovered(ctx context.Context, channelID model.ChannelID, inputs []storage.UpsertMessageInput, createdIDs []model.MessageID) {
	if c.private[channelID.ToString()] {
		return
	}

	created := make(map[model.MessageID]bool, len(createdIDs))
	for _, id := range createdIDs {
		created[id] = true
	}

	now := time.Now().UTC().UnixMilli()
	for _, input := range inputs {
		msg := input.Message
		if !created[msg.ID] || msg.Author == nil || msg.Author.IsBot {
			continue
		}
		isGM, err := c.db.IsGameMaster(ctx, msg.AuthorID)
		if err != nil || !isGM {
			continue
		}
		entry := &model.RepostEntry{
			MessageID:    msg.ID,
			ChannelID:    channelID,
			DiscoveredTS: now,
			EligibleTS:   now + c.config.Repost.Delay.Milliseconds(),
			Status:       model.RepostPending,
		}
		if err := c.db.EnqueueRepost(ctx, entry); err != nil {
			c.logger.Error("enqueue discovered repost failed",
				slog.String("message_id", msg.GetID()),
				slog.String("error", err.Error()),
			)
			continue
		}
		c.metrics.CounterAdd("gm_detected", 1)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
