package repost

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	config "github.com/mwaltman/guild-archiver/internal/config"
	"github.com/mwaltman/guild-archiver/internal/metrics"
	"github.com/mwaltman/guild-archiver/internal/model"
	"github.com/mwaltman/guild-archiver/internal/storage"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	model.InitHashFunction()
	os.Exit(m.Run())
}

type sentMessage struct {
	ChannelID string
	Username  string
	Content   string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMessage
	fail error
}

func (f *fakeSender) SendAs(_ context.Context, channelID, username, _, content string) error {
	if f.fail != nil {
		return f.fail
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{ChannelID: channelID, Username: username, Content: content})
	return nil
}

type fakeMirrors struct{}

func (fakeMirrors) EnsureMirror(_ context.Context, sourceID model.ChannelID) (model.ChannelID, error) {
	return model.ChannelID("mirror-" + sourceID.ToString()), nil
}

func newTestStorage(t *testing.T) *storage.Storage {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	cfg := &config.Config{}
	cfg.Database.Driver = "sqlite3"
	cfg.Database.Connection = fmt.Sprintf("file:repost_%s?mode=memory&cache=shared", name)
	cfg.Database.MaxConnections = 2
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := storage.New(cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Discord.SourceGuildID = "guild-src"
	cfg.Discord.SourceGuildName = "Emberfall"
	cfg.Discord.CentralChannelID = "central-1"
	cfg.Repost.PollInterval = 10 * time.Millisecond
	cfg.Repost.SendPause = time.Millisecond
	cfg.Repost.MaxAttempts = 2
	cfg.Repost.RetryBase = time.Millisecond
	cfg.Repost.BatchSize = 10
	return cfg
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seedGMMessage(t *testing.T, db *storage.Storage, id string, content string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, db.UpsertMessage(ctx, storage.UpsertMessageInput{
		Message: &model.Message{
			ID:        model.MessageID(id),
			ChannelID: "chan-1",
			AuthorID:  "gm-1",
			Content:   content,
			CreatedTS: 1000,
		},
		Members: []*model.Member{{ID: "gm-1", Username: "aster", GameMasterName: "GM Aster"}},
		Channels: []*model.Channel{{
			ID: "chan-1", GuildID: "guild-src", Name: "tavern", Kind: model.ChannelKindText,
		}},
	}))
}

func TestDispatchDeliversToBothTargets(t *testing.T) {
	db := newTestStorage(t)
	ctx := context.Background()

	seedGMMessage(t, db, "msg-1", "The gates creak open.")
	require.NoError(t, db.EnqueueRepost(ctx, &model.RepostEntry{
		MessageID: "msg-1", ChannelID: "chan-1", DiscoveredTS: 1000, EligibleTS: 0, Status: model.RepostPending,
	}))

	sender := &fakeSender{}
	d := New(db, sender, fakeMirrors{}, nil, testConfig(), testLogger(), metrics.NewMetricsFake())
	d.cycle(ctx)

	require.Len(t, sender.sent, 2)
	require.Equal(t, "central-1", sender.sent[0].ChannelID)
	require.Equal(t, "mirror-chan-1", sender.sent[1].ChannelID)
	for _, sent := range sender.sent {
		require.Equal(t, "GM Aster", sent.Username)
		require.Contains(t, sent.Content, "The gates creak open.")
		require.Contains(t, sent.Content, "#tavern")
	}

	stats, err := db.RepostStats(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, stats.Delivered)
	require.EqualValues(t, 0, stats.Pending)

	// A second cycle finds nothing due.
	d.cycle(ctx)
	require.Len(t, sender.sent, 2)
}

func TestDispatchSendsCurrentContent(t *testing.T) {
	db := newTestStorage(t)
	ctx := context.Background()

	seedGMMessage(t, db, "msg-1", "first draft")
	require.NoError(t, db.EnqueueRepost(ctx, &model.RepostEntry{
		MessageID: "msg-1", ChannelID: "chan-1", Status: model.RepostPending,
	}))

	// Edited during the cooldown window.
	seedGMMessage(t, db, "msg-1", "final wording")

	sender := &fakeSender{}
	d := New(db, sender, fakeMirrors{}, nil, testConfig(), testLogger(), metrics.NewMetricsFake())
	d.cycle(ctx)

	require.Len(t, sender.sent, 2)
	require.Contains(t, sender.sent[0].Content, "final wording")
	require.NotContains(t, sender.sent[0].Content, "first draft")
}

func TestDispatchQuotesRepliedMessage(t *testing.T) {
	db := newTestStorage(t)
	ctx := context.Background()

	// The parent was archived earlier by the crawler.
	require.NoError(t, db.UpsertMessage(ctx, storage.UpsertMessageInput{
		Message: &model.Message{
			ID:        "msg-parent",
			ChannelID: "chan-1",
			AuthorID:  "user-2",
			Content:   "Do we open the gates?",
			CreatedTS: 500,
		},
		Members: []*model.Member{{ID: "user-2", Username: "rhea", DisplayName: "Rhea"}},
		Channels: []*model.Channel{{
			ID: "chan-1", GuildID: "guild-src", Name: "tavern", Kind: model.ChannelKindText,
		}},
	}))

	require.NoError(t, db.UpsertMessage(ctx, storage.UpsertMessageInput{
		Message: &model.Message{
			ID:        "msg-1",
			ChannelID: "chan-1",
			AuthorID:  "gm-1",
			Content:   "The gates creak open.",
			CreatedTS: 1000,
			ReplyToID: "msg-parent",
		},
		Members: []*model.Member{{ID: "gm-1", Username: "aster", GameMasterName: "GM Aster"}},
	}))
	require.NoError(t, db.EnqueueRepost(ctx, &model.RepostEntry{
		MessageID: "msg-1", ChannelID: "chan-1", Status: model.RepostPending,
	}))

	sender := &fakeSender{}
	d := New(db, sender, fakeMirrors{}, nil, testConfig(), testLogger(), metrics.NewMetricsFake())
	d.cycle(ctx)

	require.Len(t, sender.sent, 2)
	require.Contains(t, sender.sent[0].Content, "> **↪️ Rhea:** Do we open the gates?")
	require.Contains(t, sender.sent[0].Content, "The gates creak open.")
}

func TestDispatchDropsDeletedMessage(t *testing.T) {
	db := newTestStorage(t)
	ctx := context.Background()

	seedGMMessage(t, db, "msg-1", "soon gone")
	require.NoError(t, db.EnqueueRepost(ctx, &model.RepostEntry{
		MessageID: "msg-1", ChannelID: "chan-1", Status: model.RepostPending,
	}))
	require.NoError(t, db.MarkMessageDeleted(ctx, "msg-1", 2000))

	sender := &fakeSender{}
	d := New(db, sender, fakeMirrors{}, nil, testConfig(), testLogger(), metrics.NewMetricsFake())
	d.cycle(ctx)

	require.Empty(t, sender.sent)
	due, err := db.FetchDueReposts(ctx, time.Now().UnixMilli(), 10)
	require.NoError(t, err)
	require.Empty(t, due)
}

func TestDispatchTerminalAfterMaxAttempts(t *testing.T) {
	db := newTestStorage(t)
	ctx := context.Background()

	seedGMMessage(t, db, "msg-1", "never delivered")
	require.NoError(t, db.EnqueueRepost(ctx, &model.RepostEntry{
		MessageID: "msg-1", ChannelID: "chan-1", Status: model.RepostPending,
	}))

	sender := &fakeSender{fail: errors.New("webhook down")}
	d := New(db, sender, fakeMirrors{}, nil, testConfig(), testLogger(), metrics.NewMetricsFake())

	// MaxAttempts is 2 in the test config.
	d.cycle(ctx)
	d.cycle(ctx)

	stats, err := db.RepostStats(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, stats.Failed)
	require.EqualValues(t, 0, stats.Pending)

	// Terminal entries are never retried.
	d.cycle(ctx)
	require.Empty(t, sender.sent)
}
