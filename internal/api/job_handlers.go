package api

import (
	"net/http"

	"github.com/vrsandeep/vidl/internal/jobs"
	"github.com/vrsandeep/vidl/internal/updater"
)

type updateRequest struct {
	// Channel selects channels by id, title or remote id. Empty means all.
	Channel string `json:"channel"`
	Force   bool   `json:"force"`
	Full    bool   `json:"full"`
}

// handleRunUpdate starts a channel update in the background. Progress is read
// from /api/jobs/status.
func (s *Server) handleRunUpdate(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := decodeJSON(r, &req); err != nil {
		RespondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	task := jobs.UpdateTask(s.app.Engine, updater.Selector{Query: req.Channel},
		updater.Options{Force: req.Force, Full: req.Full})
	if err := s.app.Jobs.RunTask(jobs.UpdateJobID, task); err != nil {
		s.respondWithDomainError(w, r, err)
		return
	}
	RespondWithJSON(w, http.StatusAccepted, map[string]string{"message": "Update started"})
}

func (s *Server) handleGetJobsStatus(w http.ResponseWriter, r *http.Request) {
	RespondWithJSON(w, http.StatusOK, map[string]any{
		"jobs":    s.app.Jobs.GetStatus(),
		"workers": s.app.Pool.Stats(),
	})
}
