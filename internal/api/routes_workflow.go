package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/sagereplay/sagereplay/internal/session"
	"github.com/sagereplay/sagereplay/internal/workflow"
)

// workflowRequest optionally overrides the configured credentials.
type workflowRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// handleRunWorkflow runs one session and returns its report.
func (s *Server) handleRunWorkflow(c *gin.Context) {
	var req workflowRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
	}

	var creds *workflow.Credentials
	if req.Username != "" || req.Password != "" {
		creds = &workflow.Credentials{Username: req.Username, Password: req.Password}
	}

	report, err := s.runner.Run(c.Request.Context(), creds)
	switch {
	case errors.Is(err, session.ErrMissingCredentials):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil && report == nil:
		log.Error().Err(err).Msg("API: workflow could not start")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	case err != nil:
		body := gin.H{
			"session_id": report.SessionID,
			"state":      report.State,
			"error":      report.Error,
			"steps":      report.Steps,
		}
		var stepErr *workflow.StepError
		if errors.As(err, &stepErr) {
			body["failed_step"] = stepErr.Step
			body["target"] = stepErr.Target
		}
		c.JSON(http.StatusBadGateway, body)
		return
	}

	log.Info().Str("session", report.SessionID).Msg("API: workflow complete")
	c.JSON(http.StatusOK, report)
}

// handleGetLastRun returns the most recent report, successful or not.
func (s *Server) handleGetLastRun(c *gin.Context) {
	last := s.runner.Last()
	if last == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no workflow has run yet"})
		return
	}
	c.JSON(http.StatusOK, last)
}

// handleGetCharacters returns the roster and selected character of the
// last successful run.
func (s *Server) handleGetCharacters(c *gin.Context) {
	report, ok := s.runner.LastSuccessful()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no successful workflow run"})
		return
	}

	res := report.Result
	c.JSON(http.StatusOK, gin.H{
		"session_id":       report.SessionID,
		"account_type":     res.Characters.AccountType,
		"total_characters": res.Characters.TotalCharacters,
		"characters":       res.Characters.Characters,
		"selected_index":   res.SelectedIndex,
		"character_data":   res.CharacterData,
	})
}
