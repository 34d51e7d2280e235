package api

import (
	"net/http"
	"strings"

	"github.com/vrsandeep/vidl/internal/models"
)

type addChannelRequest struct {
	Service string `json:"service"`
	Name    string `json:"name"`
}

func (s *Server) handleListChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := s.store.FindChannels(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		s.respondWithDomainError(w, r, err)
		return
	}
	if channels == nil {
		channels = []*models.Channel{}
	}
	RespondWithJSON(w, http.StatusOK, channels)
}

func (s *Server) handleAddChannel(w http.ResponseWriter, r *http.Request) {
	var req addChannelRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		RespondWithError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.Service == "" {
		req.Service = string(models.ServiceYoutube)
	}
	service, err := models.ParseService(req.Service)
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	ch, err := s.app.Engine.AddChannel(r.Context(), service, req.Name)
	if err != nil {
		s.respondWithDomainError(w, r, err)
		return
	}
	RespondWithJSON(w, http.StatusCreated, ch)
}

func (s *Server) handleDeleteChannel(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "channelID")
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.DeleteChannel(r.Context(), id); err != nil {
		s.respondWithDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRefreshChannel(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "channelID")
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	ch, err := s.app.Engine.RefreshChannel(r.Context(), id)
	if err != nil {
		s.respondWithDomainError(w, r, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, ch)
}

func (s *Server) handleListChannelVideos(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "channelID")
	if err != nil {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := s.store.GetChannel(r.Context(), id); err != nil {
		s.respondWithDomainError(w, r, err)
		return
	}
	s.listVideos(w, r, id)
}
