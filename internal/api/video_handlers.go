package api

import (
	"context"
	"net/http"

	"github.com/vrsandeep/vidl/internal/models"
)

type downloadRequest struct {
	IDs []int64 `json:"ids"`
}

func (s *Server) handleListVideos(w http.ResponseWriter, r *http.Request) {
	s.listVideos(w, r, 0)
}

func (s *Server) listVideos(w http.ResponseWriter, r *http.Request, channelID int64) {
	filter, page, err := getListParams(r)
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter.ChannelID = channelID

	videos, err := s.store.ListVideos(r.Context(), filter)
	if err != nil {
		s.respondWithDomainError(w, r, err)
		return
	}
	total, err := s.store.CountVideos(r.Context(), filter)
	if err != nil {
		s.respondWithDomainError(w, r, err)
		return
	}
	if videos == nil {
		videos = []*models.Video{}
	}
	RespondWithJSON(w, http.StatusOK, videoPage{Videos: videos, Total: total, Page: page, PerPage: PageSize})
}

func (s *Server) handleGetVideo(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "videoID")
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	v, err := s.store.GetVideo(r.Context(), id)
	if err != nil {
		s.respondWithDomainError(w, r, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, v)
}

// handleDownloadVideo queues a single video. Re-queueing a queued video is
// not an error.
func (s *Server) handleDownloadVideo(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "videoID")
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	res := s.app.Pool.Enqueue(r.Context(), []int64{id})[0]
	if res.Err != nil {
		s.respondWithDomainError(w, r, res.Err)
		return
	}
	RespondWithJSON(w, http.StatusAccepted, res)
}

// handleDownloadVideos queues many videos. Each id succeeds or fails on its
// own, so the response is always 200 with one result per id.
func (s *Server) handleDownloadVideos(w http.ResponseWriter, r *http.Request) {
	var req downloadRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.IDs) == 0 {
		RespondWithError(w, http.StatusBadRequest, "ids must not be empty")
		return
	}
	results := s.app.Pool.Enqueue(r.Context(), req.IDs)
	RespondWithJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) handleIgnoreVideo(w http.ResponseWriter, r *http.Request) {
	s.changeVideo(w, r, s.store.IgnoreVideo)
}

func (s *Server) handleUnignoreVideo(w http.ResponseWriter, r *http.Request) {
	s.changeVideo(w, r, s.store.UnignoreVideo)
}

// changeVideo applies a status change to the video in the URL and responds
// with the updated video.
func (s *Server) changeVideo(w http.ResponseWriter, r *http.Request, change func(ctx context.Context, id int64) error) {
	id, err := idParam(r, "videoID")
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := change(r.Context(), id); err != nil {
		s.respondWithDomainError(w, r, err)
		return
	}
	v, err := s.store.GetVideo(r.Context(), id)
	if err != nil {
		s.respondWithDomainError(w, r, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, v)
}
