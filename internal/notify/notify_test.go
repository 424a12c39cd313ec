package notify

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	config "github.com/mwaltman/guild-archiver/internal/config"
	"github.com/mwaltman/guild-archiver/internal/model"
	"github.com/stretchr/testify/require"
)

type staticChannels struct {
	name string
}

func (s *staticChannels) Channel(_ context.Context, id model.ChannelID) (*model.Channel, error) {
	return &model.Channel{ID: id, Name: s.name}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifierDisabledWithoutURL(t *testing.T) {
	n := New(&config.ViewerConfig{URL: ""}, nil, &staticChannels{}, testLogger())
	require.Nil(t, n)
}

func TestGameMasterPost(t *testing.T) {
	received := make(chan gmPostPayload, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/notify_gm_post", r.URL.Path)
		var payload gmPostPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		received <- payload
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := New(&config.ViewerConfig{URL: server.URL, Timeout: time.Second}, nil, &staticChannels{name: "tavern"}, testLogger())
	require.NotNil(t, n)

	n.GameMasterPost(&model.Message{
		ID:        "msg-1",
		ChannelID: "chan-1",
		Content:   strings.Repeat("я", 150),
		CreatedTS: 1000,
		Author:    &model.Member{ID: "gm-1", Username: "aster", GameMasterName: "GM Aster"},
	})

	select {
	case payload := <-received:
		require.Equal(t, "msg-1", payload.MessageID)
		require.Equal(t, "tavern", payload.ChannelName)
		require.Equal(t, "GM Aster", payload.AuthorName)
		require.Equal(t, 100, len([]rune(payload.Preview)))
		require.EqualValues(t, 1000, payload.Timestamp)
	case <-time.After(time.Second):
		t.Fatal("notification never arrived")
	}
}

func TestGameMasterPostSwallowsServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	n := New(&config.ViewerConfig{URL: server.URL, Timeout: time.Second}, nil, &staticChannels{}, testLogger())
	// Must not panic or block past the timeout.
	n.GameMasterPost(&model.Message{ID: "msg-1", ChannelID: "chan-1"})
}
