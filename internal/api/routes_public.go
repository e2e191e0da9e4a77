package api

import (
	"net/http"
	"runtime"

	"github.com/gin-gonic/gin"

	"github.com/hearthlink/hearthlink/internal/util"
)

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"service":   "hearthlink",
		"connected": s.engine.Stats().Connected,
	})
}

// handleGetVersion returns the client version.
func (s *Server) handleGetVersion(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":       "Hearthlink",
		"version":    s.opts.Version,
		"go_version": runtime.Version(),
	})
}

// handleGetSystem returns host information and the resource usage of this
// process.
func (s *Server) handleGetSystem(c *gin.Context) {
	resp := gin.H{
		"system": util.GetSystemInfo(),
	}
	if usage, err := util.GetProcessUsage(); err == nil {
		resp["process"] = usage
	}
	c.JSON(http.StatusOK, resp)
}
