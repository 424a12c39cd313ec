package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/mwaltman/guild-archiver/api"
	"github.com/mwaltman/guild-archiver/internal/model"
	"github.com/mwaltman/guild-archiver/internal/storage"
)

// echo route for testing purposes
func echoRoute(w http.ResponseWriter, r *http.Request) {
	// Create a map to hold the request data
	var data map[string]any

	// Decode the request body into the data map
	if r.ContentLength != 0 {
		if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
			if err := render.Decode(r, &data); err != nil {
				api.NewResponse().SetError("bad_request", err.Error()).BadRequest(w)

				return
			}
		} else {
			msg := fmt.Sprintf("Content-Type: %s", r.Header.Get("Content-Type"))

			api.NewResponse().SetError("bad_request", "Content-Type must be application/json", msg).BadRequest(w)

			return
		}
	}

	api.NewResponse().SetData(struct {
		URL     string         `json:"url"`
		Remote  string         `json:"remote"`
		Method  string         `json:"method"`
		Headers http.Header    `json:"headers"`
		Body    map[string]any `json:"body"`
	}{
		URL:     r.URL.String(),
		Remote:  r.RemoteAddr,
		Method:  r.Method,
		Headers: r.Header,
		Body:    data,
	}).Ok(w)
}

// AddArchiveRoutes mounts the admin endpoints exposing archive state:
// repost queue depth, mirror topology and the channel registry.
func (srv *Server) AddArchiveRoutes(db *storage.Storage, guildID string) {
	srv.admin.Route("/admin", func(r chi.Router) {
		r.Get("/stats", func(w http.ResponseWriter, req *http.Request) {
			stats, err := db.RepostStats(req.Context())
			if err != nil {
				api.NewResponse().SetError("storage_error", err.Error()).InternalServerError(w)

				return
			}

			mappings, err := db.MirrorMappings(req.Context())
			if err != nil {
				api.NewResponse().SetError("storage_error", err.Error()).InternalServerError(w)

				return
			}

			api.NewResponse().SetData(map[string]any{
				"repost_queue":    stats,
				"mirror_channels": len(mappings),
			}).Ok(w)
		})

		r.Get("/channels", func(w http.ResponseWriter, req *http.Request) {
			channels, err := db.Channels(req.Context(), guildID)
			if err != nil {
				api.NewResponse().SetError("storage_error", err.Error()).InternalServerError(w)

				return
			}

			api.NewResponse().SetData(channels).Ok(w)
		})

		r.Get("/messages/{id}", func(w http.ResponseWriter, req *http.Request) {
			id := model.MessageID(chi.URLParam(req, "id"))

			msg, err := db.Message(req.Context(), id)
			if err != nil {
				api.NewResponse().SetError("not_found", "Message is not archived").NotFound(w)

				return
			}

			revisions, err := db.Revisions(req.Context(), id)
			if err != nil {
				api.NewResponse().SetError("storage_error", err.Error()).InternalServerError(w)

				return
			}

			msg.Revisions = revisions
			api.NewResponse().SetData(msg).Ok(w)
		})
	})
}
