package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"vacancy-watch/poster/internal/models"
	"vacancy-watch/poster/internal/server/pagination"
	"vacancy-watch/poster/internal/server/storage"
)

const defaultLimit = 100
const maxLimit = 1000

// Response is the body of every list endpoint.
type Response[T any] struct {
	Items      []T     `json:"items"`
	NextCursor *string `json:"next_cursor,omitempty"`
}

// Handler serves the read-only listing endpoints.
type Handler struct {
	repo storage.ListingRepository
}

// NewHandler creates a new handler instance.
func NewHandler(repo storage.ListingRepository) *Handler {
	return &Handler{repo: repo}
}

// GetListings returns listings in posting order, filtered by ?status=all|unposted|posted.
func (h *Handler) GetListings(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	log.Debug().Msg("Processing listings request")

	limit, after, ok := pageParams(w, r, log)
	if !ok {
		return
	}
	status, err := storage.ParseStatus(r.URL.Query().Get("status"))
	if err != nil {
		log.Warn().Err(err).Msg("Invalid 'status' parameter")
		http.Error(w, "Invalid 'status' parameter: use all, unposted or posted", http.StatusBadRequest)
		return
	}

	items, err := h.repo.FetchListings(r.Context(), status, limit+1, after) // one extra to detect the next page
	if err != nil {
		log.Error().Err(err).Str("status", string(status)).Msg("Error fetching listings from repository")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	page, next := pagination.Page(items, limit, func(l models.Listing) pagination.Cursor {
		return pagination.Cursor{Time: l.InsertedAt, ID: l.ID}
	})
	writeJSON(w, log, Response[models.Listing]{Items: page, NextCursor: next})
}

// GetDeletions returns the deletion log, oldest first.
func (h *Handler) GetDeletions(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	log.Debug().Msg("Processing deletions request")

	limit, after, ok := pageParams(w, r, log)
	if !ok {
		return
	}

	items, err := h.repo.FetchDeletions(r.Context(), limit+1, after)
	if err != nil {
		log.Error().Err(err).Msg("Error fetching deletions from repository")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	page, next := pagination.Page(items, limit, func(d models.Deletion) pagination.Cursor {
		return pagination.Cursor{Time: d.DeletedAt, ID: d.ID}
	})
	writeJSON(w, log, Response[models.Deletion]{Items: page, NextCursor: next})
}

func pageParams(w http.ResponseWriter, r *http.Request, log *zerolog.Logger) (int, *pagination.Cursor, bool) {
	query := r.URL.Query()

	limit := defaultLimit
	if limitStr := query.Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 || parsed > maxLimit {
			log.Warn().Err(err).Str("limit", limitStr).Msg("Invalid 'limit' parameter value")
			http.Error(w, fmt.Sprintf("Invalid 'limit' parameter: must be between 1 and %d", maxLimit), http.StatusBadRequest)
			return 0, nil, false
		}
		limit = parsed
	}

	var after *pagination.Cursor
	if cursorStr := query.Get("cursor"); cursorStr != "" {
		c, err := pagination.DecodeCursor(cursorStr)
		if err != nil {
			log.Warn().Err(err).Str("cursor", cursorStr).Msg("Invalid 'cursor' parameter")
			http.Error(w, "Invalid 'cursor' parameter", http.StatusBadRequest)
			return 0, nil, false
		}
		after = &c
	}
	return limit, after, true
}

func writeJSON(w http.ResponseWriter, log *zerolog.Logger, body any) {
	jsonBytes, err := json.Marshal(body)
	if err != nil {
		log.Error().Err(err).Msg("Error marshaling JSON response")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(jsonBytes); err != nil {
		log.Error().Err(err).Msg("Error writing JSON response body to client")
	}
	log.Debug().Int("bytes_written", len(jsonBytes)).Msg("Response completed")
}
