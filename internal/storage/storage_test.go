package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"testing"

	config "github.com/mwaltman/guild-archiver/internal/config"
	"github.com/mwaltman/guild-archiver/internal/model"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	model.InitHashFunction()
	os.Exit(m.Run())
}

// newTestStorage opens an isolated in-memory database per test.
func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	cfg := &config.Config{}
	cfg.Database.Driver = "sqlite3"
	cfg.Database.Connection = fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	cfg.Database.MaxConnections = 2
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := New(cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testMessage(id, content string, createdTS int64) UpsertMessageInput {
	return UpsertMessageInput{
		Message: &model.Message{
			ID:        model.MessageID(id),
			ChannelID: "chan-1",
			AuthorID:  "user-1",
			Content:   content,
			CreatedTS: createdTS,
		},
		Members: []*model.Member{{
			ID:       "user-1",
			Username: "rhea",
		}},
		Channels: []*model.Channel{{
			ID:      "chan-1",
			GuildID: "guild-1",
			Name:    "general",
			Kind:    model.ChannelKindText,
		}},
	}
}

func TestUpsertMessageIdempotent(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	input := testMessage("msg-1", "hello", 1000)
	require.NoError(t, s.UpsertMessage(ctx, input))

	// A second observation of the same content is a no-op.
	again := testMessage("msg-1", "hello", 1000)
	require.NoError(t, s.UpsertMessage(ctx, again))

	msg, err := s.Message(ctx, "msg-1")
	require.NoError(t, err)
	require.Equal(t, "hello", msg.Content)
	require.False(t, msg.Deleted)

	revisions, err := s.Revisions(ctx, "msg-1")
	require.NoError(t, err)
	require.Len(t, revisions, 1)
	require.Equal(t, model.RevisionEdit, revisions[0].Kind)
	require.Equal(t, "hello", revisions[0].Content)
}

func TestUpsertMessageEditAppendsRevision(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertMessage(ctx, testMessage("msg-1", "hello", 1000)))

	edited := testMessage("msg-1", "hello, edited", 1000)
	edited.Message.EditedTS.Int64 = 2000
	edited.Message.EditedTS.Valid = true
	require.NoError(t, s.UpsertMessage(ctx, edited))

	msg, err := s.Message(ctx, "msg-1")
	require.NoError(t, err)
	require.Equal(t, "hello, edited", msg.Content)
	require.True(t, msg.EditedTS.Valid)
	require.EqualValues(t, 2000, msg.EditedTS.Int64)

	// Original and edited content both live in the revision log.
	revisions, err := s.Revisions(ctx, "msg-1")
	require.NoError(t, err)
	require.Len(t, revisions, 2)
	require.Equal(t, "hello", revisions[0].Content)
	require.Equal(t, "hello, edited", revisions[1].Content)
	require.EqualValues(t, 2000, revisions[1].CapturedTS)
}

func TestUpsertMessageStoresAttachments(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	input := testMessage("msg-1", "", 1000)
	input.Message.Attachments = []model.Attachment{{
		ID:          "att-1",
		Filename:    "map.png",
		URL:         "https://cdn.example/map.png",
		ContentType: "image/png",
		Size:        2048,
		Width:       800,
		Height:      600,
	}}
	require.NoError(t, s.UpsertMessage(ctx, input))

	msg, err := s.Message(ctx, "msg-1")
	require.NoError(t, err)
	require.Len(t, msg.Attachments, 1)
	require.EqualValues(t, "att-1", msg.Attachments[0].ID)
	require.Equal(t, "map.png", msg.Attachments[0].Filename)
	require.Equal(t, 2048, msg.Attachments[0].Size)

	// A re-archive with a refreshed CDN URL updates the row in place.
	again := testMessage("msg-1", "", 1000)
	again.Message.Attachments = []model.Attachment{{
		ID:       "att-1",
		Filename: "map.png",
		URL:      "https://cdn.example/map.png?ex=refreshed",
		Size:     2048,
	}}
	require.NoError(t, s.UpsertMessage(ctx, again))

	msg, err = s.Message(ctx, "msg-1")
	require.NoError(t, err)
	require.Len(t, msg.Attachments, 1)
	require.Equal(t, "https://cdn.example/map.png?ex=refreshed", msg.Attachments[0].URL)
}

func TestMarkMessageDeleted(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertMessage(ctx, testMessage("msg-1", "hello", 1000)))
	require.NoError(t, s.MarkMessageDeleted(ctx, "msg-1", 3000))

	msg, err := s.Message(ctx, "msg-1")
	require.NoError(t, err)
	require.True(t, msg.Deleted)

	revisions, err := s.Revisions(ctx, "msg-1")
	require.NoError(t, err)
	require.Len(t, revisions, 2)
	require.Equal(t, model.RevisionDelete, revisions[1].Kind)

	// Deleting twice, or deleting something never archived, is fine.
	require.NoError(t, s.MarkMessageDeleted(ctx, "msg-1", 3500))
	require.NoError(t, s.MarkMessageDeleted(ctx, "msg-unknown", 3500))

	revisions, err = s.Revisions(ctx, "msg-1")
	require.NoError(t, err)
	require.Len(t, revisions, 2)
}

func TestChannelPlaceholderNeverDowngrades(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertChannel(ctx, &model.Channel{
		ID:      "chan-1",
		GuildID: "guild-1",
		Name:    "tavern",
		Kind:    model.ChannelKindText,
	}))

	// A later placeholder write keeps the real name.
	require.NoError(t, s.UpsertChannel(ctx, &model.Channel{
		ID:      "chan-1",
		GuildID: "guild-1",
		Name:    model.PlaceholderName,
		Kind:    model.ChannelKindText,
	}))

	channel, err := s.Channel(ctx, "chan-1")
	require.NoError(t, err)
	require.Equal(t, "tavern", channel.Name)

	// A real rename still lands.
	require.NoError(t, s.UpsertChannel(ctx, &model.Channel{
		ID:      "chan-1",
		GuildID: "guild-1",
		Name:    "tavern-ooc",
		Kind:    model.ChannelKindText,
	}))
	channel, err = s.Channel(ctx, "chan-1")
	require.NoError(t, err)
	require.Equal(t, "tavern-ooc", channel.Name)
}

func TestChannelStubKeepsDiscoveredMetadata(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertChannel(ctx, &model.Channel{
		ID:       "chan-1",
		GuildID:  "guild-1",
		ParentID: "parent-9",
		Name:     "gm-updates",
		Kind:     model.ChannelKindThread,
		Topic:    "gm updates",
	}))

	// Archiving a message carries only a channel stub. The stub must not
	// flatten the parent the mirror hierarchy is rebuilt from.
	input := testMessage("msg-1", "hello", 1000)
	input.Channels = []*model.Channel{{
		ID:      "chan-1",
		GuildID: "guild-1",
		Name:    model.PlaceholderName,
		Kind:    model.ChannelKindText,
	}}
	require.NoError(t, s.UpsertMessage(ctx, input))

	channel, err := s.Channel(ctx, "chan-1")
	require.NoError(t, err)
	require.EqualValues(t, "parent-9", channel.ParentID)
	require.Equal(t, "gm-updates", channel.Name)
	require.Equal(t, model.ChannelKindThread, channel.Kind)
	require.Equal(t, "gm updates", channel.Topic)
}

func TestGetOrCreateChannel(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	channel, err := s.GetOrCreateChannel(ctx, "chan-ref", "guild-1")
	require.NoError(t, err)
	require.Equal(t, model.PlaceholderName, channel.Name)

	again, err := s.GetOrCreateChannel(ctx, "chan-ref", "guild-1")
	require.NoError(t, err)
	require.Equal(t, channel.ID, again.ID)
}

func TestSeedGameMasters(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	err := s.SeedGameMasters(ctx, []string{"gm-1", "gm-2"}, map[string]string{"gm-1": "GM Aster"})
	require.NoError(t, err)

	isGM, err := s.IsGameMaster(ctx, "gm-1")
	require.NoError(t, err)
	require.True(t, isGM)

	isGM, err = s.IsGameMaster(ctx, "user-9")
	require.NoError(t, err)
	require.False(t, isGM)

	// A later profile refresh must not strip the GM flag or the override.
	require.NoError(t, s.UpsertMember(ctx, &model.Member{
		ID:          "gm-1",
		Username:    "aster_real",
		DisplayName: "Aster",
	}))
	member, err := s.Member(ctx, "gm-1")
	require.NoError(t, err)
	require.True(t, member.IsGameMaster)
	require.Equal(t, "GM Aster", member.GameMasterName)
	require.Equal(t, "GM Aster", member.RepostName())

	// Re-seeding is idempotent.
	require.NoError(t, s.SeedGameMasters(ctx, []string{"gm-1"}, nil))
}

func TestRepostQueue(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	entry := &model.RepostEntry{
		MessageID:    "msg-1",
		ChannelID:    "chan-1",
		DiscoveredTS: 1000,
		EligibleTS:   2000,
		Status:       model.RepostPending,
	}
	require.NoError(t, s.EnqueueRepost(ctx, entry))

	// Re-discovery keeps the original entry.
	require.NoError(t, s.EnqueueRepost(ctx, &model.RepostEntry{
		MessageID:    "msg-1",
		ChannelID:    "chan-1",
		DiscoveredTS: 9999,
		EligibleTS:   9999,
		Status:       model.RepostPending,
	}))

	due, err := s.FetchDueReposts(ctx, 1500, 10)
	require.NoError(t, err)
	require.Empty(t, due)

	due, err = s.FetchDueReposts(ctx, 2500, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.EqualValues(t, 1000, due[0].DiscoveredTS)

	require.NoError(t, s.MarkRepostDelivered(ctx, "msg-1"))
	due, err = s.FetchDueReposts(ctx, 2500, 10)
	require.NoError(t, err)
	require.Empty(t, due)
}

func TestRepostQueueOrdering(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	for i, id := range []string{"msg-c", "msg-a", "msg-b"} {
		require.NoError(t, s.EnqueueRepost(ctx, &model.RepostEntry{
			MessageID:    model.MessageID(id),
			ChannelID:    "chan-1",
			DiscoveredTS: int64(300 - i*100), // c discovered last
			EligibleTS:   0,
			Status:       model.RepostPending,
		}))
	}

	due, err := s.FetchDueReposts(ctx, 1000, 10)
	require.NoError(t, err)
	require.Len(t, due, 3)
	require.EqualValues(t, "msg-b", due[0].MessageID)
	require.EqualValues(t, "msg-a", due[1].MessageID)
	require.EqualValues(t, "msg-c", due[2].MessageID)
}

func TestRegisterRepostFailure(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.EnqueueRepost(ctx, &model.RepostEntry{
		MessageID:  "msg-1",
		ChannelID:  "chan-1",
		EligibleTS: 0,
		Status:     model.RepostPending,
	}))

	terminal, err := s.RegisterRepostFailure(ctx, "msg-1", 3)
	require.NoError(t, err)
	require.False(t, terminal)

	terminal, err = s.RegisterRepostFailure(ctx, "msg-1", 3)
	require.NoError(t, err)
	require.False(t, terminal)

	terminal, err = s.RegisterRepostFailure(ctx, "msg-1", 3)
	require.NoError(t, err)
	require.True(t, terminal)

	// Terminal entries never come back as due.
	due, err := s.FetchDueReposts(ctx, 1000, 10)
	require.NoError(t, err)
	require.Empty(t, due)

	stats, err := s.RepostStats(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, stats.Failed)
	require.EqualValues(t, 0, stats.Pending)
}

func TestDiscardRepost(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.EnqueueRepost(ctx, &model.RepostEntry{
		MessageID: "msg-1",
		ChannelID: "chan-1",
		Status:    model.RepostPending,
	}))
	require.NoError(t, s.DiscardRepost(ctx, "msg-1"))
	require.NoError(t, s.DiscardRepost(ctx, "msg-gone"))

	due, err := s.FetchDueReposts(ctx, 1000, 10)
	require.NoError(t, err)
	require.Empty(t, due)
}

func TestSavePage(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	// One of the page's messages was already archived by live capture.
	require.NoError(t, s.UpsertMessage(ctx, testMessage("msg-2", "seen before", 2000)))

	page := []UpsertMessageInput{
		testMessage("msg-3", "newest", 3000),
		testMessage("msg-2", "seen before", 2000),
		testMessage("msg-1", "oldest", 1000),
	}
	progress := &model.CrawlProgress{
		ChannelID:   "chan-1",
		Cursor:      "msg-1",
		OldestTS:    1000,
		AttemptedTS: 5000,
	}
	result, err := s.SavePage(ctx, page, progress)
	require.NoError(t, err)
	require.Equal(t, []model.MessageID{"msg-3", "msg-1"}, result.CreatedIDs)

	stored, err := s.ReadProgress(ctx, "chan-1")
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.EqualValues(t, "msg-1", stored.Cursor)
	require.False(t, stored.Exhausted)

	// Re-walking the same page creates nothing and just moves the cursor.
	progress.Exhausted = true
	result, err = s.SavePage(ctx, page, progress)
	require.NoError(t, err)
	require.Empty(t, result.CreatedIDs)

	stored, err = s.ReadProgress(ctx, "chan-1")
	require.NoError(t, err)
	require.True(t, stored.Exhausted)
}

func TestReadProgressUnknownChannel(t *testing.T) {
	s := newTestStorage(t)

	progress, err := s.ReadProgress(context.Background(), "chan-never")
	require.NoError(t, err)
	require.Nil(t, progress)
}

func TestMirrorMapping(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	mapping, err := s.MirrorMapping(ctx, "chan-1")
	require.NoError(t, err)
	require.Nil(t, mapping)

	require.NoError(t, s.SaveMirrorMapping(ctx, &model.MirrorMapping{
		SourceID:            "chan-1",
		DestinationID:       "mirror-1",
		SourceParentID:      "cat-1",
		DestinationParentID: "mirror-cat-1",
	}))

	mapping, err = s.MirrorMapping(ctx, "chan-1")
	require.NoError(t, err)
	require.NotNil(t, mapping)
	require.EqualValues(t, "mirror-1", mapping.DestinationID)

	// A racing second writer just rewrites the same row.
	require.NoError(t, s.SaveMirrorMapping(ctx, &model.MirrorMapping{
		SourceID:      "chan-1",
		DestinationID: "mirror-1b",
	}))
	mapping, err = s.MirrorMapping(ctx, "chan-1")
	require.NoError(t, err)
	require.EqualValues(t, "mirror-1b", mapping.DestinationID)
}

func TestMarkChannelAccess(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertChannel(ctx, &model.Channel{
		ID:      "chan-1",
		GuildID: "guild-1",
		Name:    "tavern",
		Kind:    model.ChannelKindText,
	}))
	require.NoError(t, s.MarkChannelAccess(ctx, "chan-1", false, 4000))

	channel, err := s.Channel(ctx, "chan-1")
	require.NoError(t, err)
	require.False(t, channel.Accessible)
	require.EqualValues(t, 4000, channel.AccessTS)
}
