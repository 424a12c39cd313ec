package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
)

const defaultBackoffBase = 500 * time.Millisecond

// Client is the archiver's single doorway to the platform REST API. Every
// call goes through one shared pacer, so capture, crawler and dispatcher
// together stay under the request budget.
type Client struct {
	session    *discordgo.Session
	pacer      *Pacer
	logger     *slog.Logger
	maxRetries int

	mu       sync.Mutex
	webhooks map[string]*discordgo.Webhook // channel id -> reusable webhook
}

// NewClient wraps an open session with pacing and retry handling.
func NewClient(session *discordgo.Session, pause time.Duration, maxRetries int, logger *slog.Logger) *Client {
	// The session must not retry on its own, RetryAfter handling lives here.
	session.ShouldRetryOnRateLimit = false
	return &Client{
		session:    session,
		pacer:      NewPacer(pause),
		logger:     logger,
		maxRetries: maxRetries,
		webhooks:   make(map[string]*discordgo.Webhook),
	}
}

// call runs one REST operation under the pacer with the client's retry
// policy: rate limits honor the server's retry-after, transient failures
// back off exponentially with jitter, inaccessible targets fail fast.
func (c *Client) call(ctx context.Context, op string, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := c.pacer.Await(ctx); err != nil {
			return err
		}

		err := classify(fn())
		if err == nil {
			return nil
		}
		lastErr = err

		switch {
		case errors.Is(err, ErrInaccessible):
			return err
		case errors.Is(err, ErrRateLimited):
			wait := retryAfter(err)
			if wait == 0 {
				wait = backoffDelay(defaultBackoffBase, attempt)
			}
			c.pacer.Penalize(wait)
			c.logger.Warn("rate limited",
				slog.String("op", op),
				slog.Duration("retry_after", wait),
				slog.Int("attempt", attempt+1),
			)
		default:
			wait := backoffDelay(defaultBackoffBase, attempt)
			c.logger.Debug("transient failure, backing off",
				slog.String("op", op),
				slog.Duration("wait", wait),
				slog.Int("attempt", attempt+1),
			)
			if err := sleepCtx(ctx, wait); err != nil {
				return err
			}
		}
	}
	return fmt.Errorf("%s: retries exhausted: %w", op, lastErr)
}

// backoffDelay returns base*2^attempt with up to 25% jitter.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	d := base << uint(attempt)
	const maxDelay = 30 * time.Second
	if d > maxDelay {
		d = maxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(d)/4 + 1))
	return d + jitter
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

// FetchPage returns up to limit messages strictly older than beforeID,
// newest first. An empty beforeID starts from the channel's newest message.
func (c *Client) FetchPage(ctx context.Context, channelID string, beforeID string, limit int) ([]*discordgo.Message, error) {
	var page []*discordgo.Message
	err := c.call(ctx, "fetch_page", func() error {
		messages, err := c.session.ChannelMessages(channelID, limit, beforeID, "", "")
		if err != nil {
			return err
		}
		page = messages
		return nil
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

// GuildChannels lists every channel of a guild the bot can see.
func (c *Client) GuildChannels(ctx context.Context, guildID string) ([]*discordgo.Channel, error) {
	var channels []*discordgo.Channel
	err := c.call(ctx, "guild_channels", func() error {
		list, err := c.session.GuildChannels(guildID)
		if err != nil {
			return err
		}
		channels = list
		return nil
	})
	if err != nil {
		return nil, err
	}
	return channels, nil
}

// ActiveThreads lists the threads currently active in a guild.
func (c *Client) ActiveThreads(ctx context.Context, guildID string) ([]*discordgo.Channel, error) {
	var threads []*discordgo.Channel
	err := c.call(ctx, "active_threads", func() error {
		list, err := c.session.GuildThreadsActive(guildID)
		if err != nil {
			return err
		}
		threads = list.Threads
		return nil
	})
	if err != nil {
		return nil, err
	}
	return threads, nil
}

// ArchivedThreads lists the public archived threads of a channel, newest
// archive timestamp first.
func (c *Client) ArchivedThreads(ctx context.Context, channelID string, before *time.Time, limit int) ([]*discordgo.Channel, error) {
	var threads []*discordgo.Channel
	err := c.call(ctx, "archived_threads", func() error {
		list, err := c.session.ThreadsArchived(channelID, before, limit)
		if err != nil {
			return err
		}
		threads = list.Threads
		return nil
	})
	if err != nil {
		return nil, err
	}
	return threads, nil
}

// CreateChannel creates a channel in the destination guild, optionally
// under a parent category.
func (c *Client) CreateChannel(ctx context.Context, guildID, name string, kind discordgo.ChannelType, parentID string) (*discordgo.Channel, error) {
	var channel *discordgo.Channel
	err := c.call(ctx, "create_channel", func() error {
		created, err := c.session.GuildChannelCreateComplex(guildID, discordgo.GuildChannelCreateData{
			Name:     name,
			Type:     kind,
			ParentID: parentID,
		})
		if err != nil {
			return err
		}
		channel = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return channel, nil
}

// ensureWebhook returns a reusable webhook for the channel, creating one
// on first use. The cache avoids a webhook lookup per repost.
func (c *Client) ensureWebhook(ctx context.Context, channelID string) (*discordgo.Webhook, error) {
	c.mu.Lock()
	cached, ok := c.webhooks[channelID]
	c.mu.Unlock()
	if ok {
		return cached, nil
	}

	var hook *discordgo.Webhook
	err := c.call(ctx, "list_webhooks", func() error {
		hooks, err := c.session.ChannelWebhooks(channelID)
		if err != nil {
			return err
		}
		for _, h := range hooks {
			if h.Token != "" {
				hook = h
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if hook == nil {
		err = c.call(ctx, "create_webhook", func() error {
			created, err := c.session.WebhookCreate(channelID, "archive-repost", "")
			if err != nil {
				return err
			}
			hook = created
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	c.mu.Lock()
	c.webhooks[channelID] = hook
	c.mu.Unlock()
	return hook, nil
}

// SendAs posts content into a channel through a webhook, impersonating the
// given display name and avatar. Mentions are always suppressed so a
// mirrored @everyone never pings the destination guild.
func (c *Client) SendAs(ctx context.Context, channelID, username, avatarURL, content string) error {
	hook, err := c.ensureWebhook(ctx, channelID)
	if err != nil {
		return err
	}
	return c.call(ctx, "send_webhook", func() error {
		_, err := c.session.WebhookExecute(hook.ID, hook.Token, true, &discordgo.WebhookParams{
			Content:         content,
			Username:        username,
			AvatarURL:       avatarURL,
			AllowedMentions: &discordgo.MessageAllowedMentions{},
		})
		return err
	})
}
