package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"ticker_backend/services/commands"
	"ticker_backend/services/format"
)

// CommandController runs chat commands delivered over HTTP
type CommandController struct {
	handler *commands.Handler
}

// NewCommandController creates a new command controller
func NewCommandController(handler *commands.Handler) *CommandController {
	return &CommandController{handler: handler}
}

// CommandRequest is a chat message as seen by the bot
type CommandRequest struct {
	Sender  commands.Sender `json:"sender"`
	Message string          `json:"message" binding:"required"`
}

// Run executes a !check or !predict message
// POST /api/v1/commands
func (cc *CommandController) Run(c *gin.Context) {
	var req CommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Sender.Nick == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sender.nick is required"})
		return
	}

	reply, err := cc.handler.Handle(c.Request.Context(), req.Sender, req.Message)
	if err != nil {
		var perr *commands.ParseError
		if errors.As(err, &perr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unrecognized command"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to run command"})
		return
	}

	if reply == "" {
		c.JSON(http.StatusOK, gin.H{"ignored": true})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"reply": reply,
		"plain": format.Strip(reply),
	})
}
