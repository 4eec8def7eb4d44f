package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sagereplay/sagereplay/internal/util"
)

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "sagereplay",
		"version": util.Version,
	})
}

// handleGetVersion returns the application version.
func (s *Server) handleGetVersion(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"version": util.Version,
		"name":    "sagereplay",
	})
}

// handleGetSystemInfo returns host information.
func (s *Server) handleGetSystemInfo(c *gin.Context) {
	c.JSON(http.StatusOK, util.GetHostInfo())
}
