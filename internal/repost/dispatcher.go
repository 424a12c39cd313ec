package repost

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"time"

	config "github.com/mwaltman/guild-archiver/internal/config"
	"github.com/mwaltman/guild-archiver/internal/discord"
	"github.com/mwaltman/guild-archiver/internal/metrics"
	"github.com/mwaltman/guild-archiver/internal/model"
	"github.com/mwaltman/guild-archiver/internal/notify"
	"github.com/mwaltman/guild-archiver/internal/storage"
	"gorm.io/gorm"
)

// Sender posts content into a destination channel under an assumed identity.
type Sender interface {
	SendAs(ctx context.Context, channelID, username, avatarURL, content string) error
}

// Mirrors resolves the mirrored counterpart of a source channel.
type Mirrors interface {
	EnsureMirror(ctx context.Context, sourceID model.ChannelID) (model.ChannelID, error)
}

// Dispatcher drains the repost queue: once a game master post has sat out
// its cooldown it is sent to the central feed channel and to the mirrored
// copy of its source channel. The content sent is whatever the archive
// holds at dispatch time, so edits made during the cooldown are reflected.
type Dispatcher struct {
	db       *storage.Storage
	sender   Sender
	mirrors  Mirrors
	notifier *notify.Notifier
	config   *config.Config
	logger   *slog.Logger
	metrics  metrics.Metrics
}

func New(
	db *storage.Storage,
	sender Sender,
	mirrors Mirrors,
	notifier *notify.Notifier,
	cfg *config.Config,
	logger *slog.Logger,
	m metrics.Metrics,
) *Dispatcher {
	return &Dispatcher{
		db:       db,
		sender:   sender,
		mirrors:  mirrors,
		notifier: notifier,
		config:   cfg,
		logger:   logger,
		metrics:  m,
	}
}

// Run polls the queue until the context is canceled.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.config.Repost.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.cycle(ctx)
		}
	}
}

// cycle processes one batch of due entries in discovery order.
func (d *Dispatcher) cycle(ctx context.Context) {
	now := time.Now().UTC().UnixMilli()
	entries, err := d.db.FetchDueReposts(ctx, now, d.config.Repost.BatchSize)
	if err != nil {
		d.logger.Error("fetch due reposts failed", slog.String("error", err.Error()))
		return
	}

	for i, entry := range entries {
		if ctx.Err() != nil {
			return
		}
		if i > 0 {
			if err := sleepCtx(ctx, d.config.Repost.SendPause); err != nil {
				return
			}
		}
		d.dispatch(ctx, entry)
	}
}

// dispatch delivers a single queue entry.
func (d *Dispatcher) dispatch(ctx context.Context, entry model.RepostEntry) {
	msg, err := d.db.Message(ctx, entry.MessageID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		_ = d.db.DiscardRepost(ctx, entry.MessageID)
		return
	}
	if err != nil {
		d.logger.Error("repost source lookup failed",
			slog.String("message_id", entry.MessageID.ToString()),
			slog.String("error", err.Error()),
		)
		return
	}

	// Deleted during the cooldown: the post no longer qualifies.
	if msg.Deleted {
		if err := d.db.DiscardRepost(ctx, entry.MessageID); err != nil {
			d.logger.Error("discard repost failed",
				slog.String("message_id", entry.MessageID.ToString()),
				slog.String("error", err.Error()),
			)
		}
		return
	}

	snippet, authorName, avatarURL := d.render(ctx, msg)

	if err := d.send(ctx, msg, snippet, authorName, avatarURL); err != nil {
		d.logger.Warn("repost delivery failed",
			slog.String("message_id", entry.MessageID.ToString()),
			slog.Int("attempts", entry.Attempts+1),
			slog.String("error", err.Error()),
		)
		terminal, regErr := d.db.RegisterRepostFailure(ctx, entry.MessageID, d.config.Repost.MaxAttempts)
		if regErr != nil {
			d.logger.Error("register repost failure failed",
				slog.String("message_id", entry.MessageID.ToString()),
				slog.String("error", regErr.Error()),
			)
			return
		}
		if terminal {
			d.logger.Error("repost gave up",
				slog.String("message_id", entry.MessageID.ToString()),
				slog.Int("attempts", d.config.Repost.MaxAttempts),
			)
			d.metrics.CounterAdd("repost_failed", 1)
		}
		return
	}

	if err := d.db.MarkRepostDelivered(ctx, entry.MessageID); err != nil {
		d.logger.Error("mark delivered failed",
			slog.String("message_id", entry.MessageID.ToString()),
			slog.String("error", err.Error()),
		)
		return
	}
	d.metrics.CounterAdd("repost_delivered", 1)

	if d.notifier != nil {
		go d.notifier.GameMasterPost(msg)
	}
}

// render builds the snippet and resolves the repost identity.
func (d *Dispatcher) render(ctx context.Context, msg *model.Message) (snippet, authorName, avatarURL string) {
	authorName = "unknown"
	if msg.Author != nil {
		authorName = msg.Author.RepostName()
		avatarURL = msg.Author.AvatarURL
	}

	channelName := model.PlaceholderName
	if channel, err := d.db.Channel(ctx, msg.ChannelID); err == nil {
		channelName = channel.Name
	}

	// Replies quote the archived parent, when it was captured at all.
	var quote string
	if msg.ReplyToID != "" {
		if parent, err := d.db.Message(ctx, msg.ReplyToID); err == nil {
			parentName := "unknown"
			if parent.Author != nil {
				parentName = parent.Author.RepostName()
			}
			quote = replyQuote(parentName, parent.Content)
		}
	}

	jump := jumpURL(d.config.Discord.SourceGuildID, msg.ChannelID.ToString(), msg.GetID())
	snippet = buildSnippet(authorName, d.config.Discord.SourceGuildName, channelName, quote, msg.Content, jump)
	return snippet, authorName, avatarURL
}

// send delivers to the central channel and the mirrored channel with a
// bounded in-cycle retry. Both targets must succeed for the entry to be
// considered delivered.
func (d *Dispatcher) send(ctx context.Context, msg *model.Message, snippet, authorName, avatarURL string) error {
	targets := make([]string, 0, 2)
	if central := d.config.Discord.CentralChannelID; central != "" {
		targets = append(targets, central)
	}
	if d.mirrors != nil {
		mirrorID, err := d.mirrors.EnsureMirror(ctx, msg.ChannelID)
		if err != nil {
			return err
		}
		targets = append(targets, mirrorID.ToString())
	}

	for _, target := range targets {
		if err := d.sendWithRetry(ctx, target, authorName, avatarURL, snippet); err != nil {
			return err
		}
	}
	return nil
}

const inCycleRetries = 2

func (d *Dispatcher) sendWithRetry(ctx context.Context, channelID, authorName, avatarURL, content string) error {
	var lastErr error
	for attempt := 0; attempt <= inCycleRetries; attempt++ {
		if attempt > 0 {
			wait := jitteredBackoff(d.config.Repost.RetryBase, attempt)
			if err := sleepCtx(ctx, wait); err != nil {
				return err
			}
		}
		lastErr = d.sender.SendAs(ctx, channelID, authorName, avatarURL, content)
		if lastErr == nil {
			return nil
		}
		// No point hammering a channel the bot cannot post into.
		if errors.Is(lastErr, discord.ErrInaccessible) {
			return lastErr
		}
	}
	return lastErr
}

// jitteredBackoff returns base*2^(attempt-1) plus up to 25% jitter.
func jitteredBackoff(base time.Duration, attempt int) time.Duration {
	d := base << uint(attempt-1)
	return d + time.Duration(rand.Int63n(int64(d)/4+1))
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
