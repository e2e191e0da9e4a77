package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/hearthlink/hearthlink/internal/command"
	"github.com/hearthlink/hearthlink/internal/network"
	"github.com/hearthlink/hearthlink/internal/protocol"
)

type talkRequest struct {
	Mode string `json:"mode"`
	Text string `json:"text" binding:"required"`
}

type moveRequest struct {
	Direction string `json:"direction" binding:"required"`
	Run       bool   `json:"run"`
}

// handleTalk queues a say, shout or whisper.
func (s *Server) handleTalk(c *gin.Context) {
	var req talkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	id, err := command.TalkID(req.Mode)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cmd, err := command.Acquire[*command.Talk](s.engine.Commands(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	cmd.Text = req.Text

	if !s.send(c, cmd) {
		return
	}
	log.Info().Str("command", protocol.CommandName(id)).Int("length", len(req.Text)).Msg("API: talk queued")
	c.JSON(http.StatusAccepted, gin.H{"status": "queued", "command": protocol.CommandName(id)})
}

// handleMove queues one step.
func (s *Server) handleMove(c *gin.Context) {
	var req moveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	dir, err := command.ParseDirection(req.Direction)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cmd, err := command.Acquire[*command.Move](s.engine.Commands(), protocol.CmdMove)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	cmd.Direction = dir
	cmd.Mode = command.ModeWalk
	if req.Run {
		cmd.Mode = command.ModeRun
	}

	if !s.send(c, cmd) {
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "queued", "command": "move"})
}

// handleTurn queues a turn in place.
func (s *Server) handleTurn(c *gin.Context) {
	var req moveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	dir, err := command.ParseDirection(req.Direction)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cmd, err := command.Acquire[*command.Turn](s.engine.Commands(), protocol.CmdTurn)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	cmd.Direction = dir

	if !s.send(c, cmd) {
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "queued", "command": "turn"})
}

// send queues cmd and writes the error response on failure.
func (s *Server) send(c *gin.Context, cmd protocol.Command) bool {
	err := s.engine.SendCommand(cmd)
	if err == nil {
		return true
	}
	s.engine.Commands().Recycle(cmd)

	if errors.Is(err, network.ErrNotConnected) {
		c.JSON(http.StatusConflict, gin.H{"error": "not connected"})
	} else {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
	return false
}
