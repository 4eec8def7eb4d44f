package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// handleGetConfig returns the session-related configuration without
// credentials or the character key.
func (s *Server) handleGetConfig(c *gin.Context) {
	opts := s.cfg.WorkflowOptions()
	conn := s.cfg.ConnectorOptions()
	analyticsBase, library := s.cfg.AssetURLs()

	c.JSON(http.StatusOK, gin.H{
		"username":                 opts.Credentials.Username,
		"has_password":             opts.Credentials.Password != "",
		"base_url":                 conn.BaseURL,
		"endpoint_path":            conn.EndpointPath,
		"request_timeout_sec":      int(conn.Timeout.Seconds()),
		"channel":                  opts.Channel,
		"include_events":           opts.IncludeEvents,
		"selected_character_index": opts.SelectedCharacterIndex,
		"character_seed_override":  opts.CharacterSeed != nil,
		"character_key_override":   opts.CharacterKey != "",
		"loader_info":              opts.Loader,
		"analytics_base_url":       analyticsBase,
		"library_url":              library,
	})
}
