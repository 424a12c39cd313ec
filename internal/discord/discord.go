// Library repository: https://github.com/bwmarrin/discordgo

package discord

import (
	"context"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"
	config "github.com/mwaltman/guild-archiver/internal/config"
	"github.com/mwaltman/guild-archiver/internal/converters"
	"github.com/mwaltman/guild-archiver/internal/metrics"
	"github.com/mwaltman/guild-archiver/internal/model"
	"github.com/mwaltman/guild-archiver/internal/storage"
)

// Discord owns the gateway session and the real-time capture pipeline.
// Events are decoded on the websocket goroutine, then handed to a bounded
// worker pool that writes to storage and feeds the repost queue.
type Discord struct {
	session *discordgo.Session
	client  *Client
	queue   *workQueue

	db      *storage.Storage
	config  *config.Config
	logger  *slog.Logger
	metrics metrics.Metrics

	private map[string]bool // channels archived but never reposted
}

func New(db *storage.Storage, cfg *config.Config, logger *slog.Logger, m metrics.Metrics) (*Discord, error) {
	session, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		return nil, err
	}
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentMessageContent

	private := make(map[string]bool, len(cfg.Discord.PrivateChannels))
	for _, id := range cfg.Discord.PrivateChannels {
		private[id] = true
	}

	d := &Discord{
		session: session,
		client:  NewClient(session, cfg.Crawler.RequestPause, cfg.Crawler.MaxRetries, logger),
		db:      db,
		config:  cfg,
		logger:  logger,
		metrics: m,
		private: private,
	}
	d.queue = newWorkQueue(cfg.Discord.QueueSize, cfg.Discord.Workers, logger, func() {
		m.CounterAdd("capture_dropped", 1)
	})

	session.AddHandler(d.onMessageCreate)
	session.AddHandler(d.onMessageUpdate)
	session.AddHandler(d.onMessageDelete)

	return d, nil
}

// Client exposes the shared rate-limited REST client.
func (d *Discord) Client() *Client {
	return d.client
}

// Start opens the gateway connection.
func (d *Discord) Start() error {
	return d.session.Open()
}

// Stop closes the gateway and drains the capture queue.
func (d *Discord) Stop() error {
	err := d.session.Close()
	d.queue.Close()
	return err
}

func (d *Discord) onMessageCreate(_ *discordgo.Session, event *discordgo.MessageCreate) {
	if event.Message == nil || event.GuildID != d.config.Discord.SourceGuildID {
		return
	}
	msg := event.Message
	d.queue.Submit(func(ctx context.Context) {
		d.captureMessage(ctx, msg, true)
	})
}

func (d *Discord) onMessageUpdate(_ *discordgo.Session, event *discordgo.MessageUpdate) {
	if event.Message == nil || event.GuildID != d.config.Discord.SourceGuildID {
		return
	}
	// Update payloads for embeds resolving late arrive without an author.
	if event.Message.Author == nil {
		return
	}
	msg := event.Message
	d.queue.Submit(func(ctx context.Context) {
		d.captureMessage(ctx, msg, false)
	})
}

func (d *Discord) onMessageDelete(_ *discordgo.Session, event *discordgo.MessageDelete) {
	if event.GuildID != d.config.Discord.SourceGuildID {
		return
	}
	id := model.MessageID(event.ID)
	d.queue.Submit(func(ctx context.Context) {
		capturedTS := time.Now().UTC().UnixMilli()
		if err := d.db.MarkMessageDeleted(ctx, id, capturedTS); err != nil {
			d.logger.Error("mark deleted failed",
				slog.String("message_id", id.ToString()),
				slog.String("error", err.Error()),
			)
			return
		}
		// A deleted message must not be reposted later.
		if err := d.db.DiscardRepost(ctx, id); err != nil {
			d.logger.Error("discard repost failed",
				slog.String("message_id", id.ToString()),
				slog.String("error", err.Error()),
			)
		}
	})
}

// captureMessage archives one gateway message and, for fresh game master
// posts in public channels, enqueues the delayed repost.
func (d *Discord) captureMessage(ctx context.Context, m *discordgo.Message, fresh bool) {
	msg := converters.MessageFromDiscord(m)
	if msg == nil || msg.Author == nil {
		return
	}

	// Reserve the channel row; the crawler fills in real metadata later.
	if _, err := d.db.GetOrCreateChannel(ctx, msg.ChannelID, d.config.Discord.SourceGuildID); err != nil {
		d.logger.Error("channel lookup failed",
			slog.String("channel_id", msg.ChannelID.ToString()),
			slog.String("error", err.Error()),
		)
		return
	}

	input := storage.UpsertMessageInput{
		Message: msg,
		Members: []*model.Member{msg.Author},
	}
	if err := d.db.UpsertMessage(ctx, input); err != nil {
		d.logger.Error("capture failed",
			slog.String("message_id", msg.GetID()),
			slog.String("error", err.Error()),
		)
		return
	}
	d.metrics.CounterAdd("messages_captured", 1)

	if fresh && !msg.Author.IsBot && !d.private[msg.ChannelID.ToString()] {
		d.maybeEnqueueRepost(ctx, msg)
	}
}

func (d *Discord) maybeEnqueueRepost(ctx context.Context, msg *model.Message) {
	isGM, err := d.db.IsGameMaster(ctx, msg.AuthorID)
	if err != nil {
		d.logger.Error("game master lookup failed",
			slog.String("author_id", msg.AuthorID.ToString()),
			slog.String("error", err.Error()),
		)
		return
	}
	if !isGM {
		return
	}

	now := time.Now().UTC().UnixMilli()
	entry := &model.RepostEntry{
		MessageID:    msg.ID,
		ChannelID:    msg.ChannelID,
		DiscoveredTS: now,
		EligibleTS:   now + d.config.Repost.Delay.Milliseconds(),
		Status:       model.RepostPending,
	}
	if err := d.db.EnqueueRepost(ctx, entry); err != nil {
		d.logger.Error("enqueue repost failed",
			slog.String("message_id", msg.GetID()),
			slog.String("error", err.Error()),
		)
		return
	}
	d.metrics.CounterAdd("reposts_enqueued", 1)
}
