package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/vrsandeep/vidl/internal/models"
)

// PageSize is the number of videos per page of a listing.
const PageSize = 50

// videoPage is the response of the video list endpoints.
type videoPage struct {
	Videos  []*models.Video `json:"videos"`
	Total   int             `json:"total"`
	Page    int             `json:"page"`
	PerPage int             `json:"per_page"`
}

// getListParams extracts the video filter from the query string. Pages are
// 0-based.
func getListParams(r *http.Request) (models.VideoFilter, int, error) {
	q := r.URL.Query()
	page := 0
	if p := q.Get("page"); p != "" {
		var err error
		page, err = strconv.Atoi(p)
		if err != nil || page < 0 {
			return models.VideoFilter{}, 0, fmt.Errorf("invalid page %q", p)
		}
	}
	statuses, err := models.ParseStatusList(q.Get("status"))
	if err != nil {
		return models.VideoFilter{}, 0, err
	}
	return models.VideoFilter{
		Statuses: statuses,
		Title:    q.Get("title"),
		Limit:    PageSize,
		Offset:   page * PageSize,
	}, page, nil
}

// idParam parses a numeric URL parameter.
func idParam(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return id, nil
}

// decodeJSON reads a JSON request body into dst. An empty body, with or
// without a Content-Length, leaves dst unchanged.
func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		RespondWithError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	counts, err := s.store.CountByStatus(r.Context())
	if err != nil {
		s.respondWithDomainError(w, r, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.app.Version,
		"videos":  counts,
		"workers": s.app.Pool.Stats(),
	})
}
