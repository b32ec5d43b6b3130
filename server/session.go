package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type sessionRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) handleSessionStatus(c *gin.Context) {
	st, err := s.session.Status(c.Request.Context(), account(c))
	if err != nil {
		s.respondError(c, "session status", err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) handleLogin(c *gin.Context) {
	var req sessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "username and password are required")
		return
	}
	st, err := s.session.Login(c.Request.Context(), account(c), req.Username, req.Password)
	if err != nil {
		s.respondError(c, "login", err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) handleLogout(c *gin.Context) {
	if err := s.session.Logout(c.Request.Context(), account(c)); err != nil && !s.isNotFound(err) {
		s.respondError(c, "logout", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleVote(c *gin.Context) {
	s.vote(c, true)
}

func (s *Server) handleUnvote(c *gin.Context) {
	s.vote(c, false)
}

// vote serves both the post and comment routes; items share one id space.
func (s *Server) vote(c *gin.Context, up bool) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	if err := s.session.Vote(c.Request.Context(), account(c), id, up); err != nil {
		s.respondError(c, "vote", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "upvoted": up})
}
