package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const redacted = "********"

// handleGetConfig returns the running configuration with secrets masked.
func (s *Server) handleGetConfig(c *gin.Context) {
	cfg := s.opts.Config
	if cfg == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "configuration not available"})
		return
	}

	account := cfg.GetAccount()
	if account.Password != "" {
		account.Password = redacted
	}
	apiCfg := cfg.GetAPI()
	if apiCfg.Token != "" {
		apiCfg.Token = redacted
	}

	c.JSON(http.StatusOK, gin.H{
		"path":    cfg.Path(),
		"server":  cfg.GetServer(),
		"account": account,
		"network": cfg.GetNetwork(),
		"logging": cfg.GetLogging(),
		"api":     apiCfg,
		"mqtt":    cfg.GetMQTT(),
		"journal": cfg.GetJournal(),
	})
}
