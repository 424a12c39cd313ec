package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	config "github.com/mwaltman/guild-archiver/internal/config"
	"github.com/mwaltman/guild-archiver/internal/model"
)

const contentPrefixRunes = 100

// gmPostPayload is the body of the viewer notification.
type gmPostPayload struct {
	MessageID   string `json:"message_id"`
	ChannelID   string `json:"channel_id"`
	ChannelName string `json:"channel_name"`
	AuthorName  string `json:"author_name"`
	Preview     string `json:"preview"`
	Timestamp   int64  `json:"timestamp"`
}

// ChannelNames resolves channel display names for the payload.
type ChannelNames interface {
	Channel(ctx context.Context, id model.ChannelID) (*model.Channel, error)
}

// Notifier tells the companion viewer service about delivered game master
// posts. Notification delivery is best-effort: failures are logged and
// swallowed, the repost pipeline never waits on the viewer.
type Notifier struct {
	url      string
	timeout  time.Duration
	client   *http.Client
	channels ChannelNames
	logger   *slog.Logger
}

// New builds a notifier, or nil when no viewer URL is configured.
func New(cfg *config.ViewerConfig, client *http.Client, channels ChannelNames, logger *slog.Logger) *Notifier {
	if cfg.URL == "" {
		return nil
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Notifier{
		url:      cfg.URL,
		timeout:  cfg.Timeout,
		client:   client,
		channels: channels,
		logger:   logger,
	}
}

// GameMasterPost announces one delivered GM post to the viewer.
func (n *Notifier) GameMasterPost(msg *model.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()

	payload := gmPostPayload{
		MessageID: msg.GetID(),
		ChannelID: msg.ChannelID.ToString(),
		Preview:   prefixRunes(msg.Content, contentPrefixRunes),
		Timestamp: msg.CreatedTS,
	}
	if msg.Author != nil {
		payload.AuthorName = msg.Author.RepostName()
	}
	if channel, err := n.channels.Channel(ctx, msg.ChannelID); err == nil {
		payload.ChannelName = channel.Name
	}

	if err := n.post(ctx, payload); err != nil {
		n.logger.Warn("viewer notification failed",
			slog.String("message_id", payload.MessageID),
			slog.String("error", err.Error()),
		)
	}
}

func (n *Notifier) post(ctx context.Context, payload gmPostPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url+"/api/notify_gm_post", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("viewer returned %s", resp.Status)
	}
	return nil
}

// prefixRunes returns the first n runes of s.
func prefixRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
