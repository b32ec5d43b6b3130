package server

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"hackers/pkg/hn"
	"hackers/readlater"
	"hackers/render"
)

const defaultAccount = "default"

// account scopes read-later and Hacker News logins; clients without their own notion of users share one.
func account(c *gin.Context) string {
	if a := strings.TrimSpace(c.Query("account")); a != "" {
		return a
	}
	return defaultAccount
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password"`
}

type addRequest struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Folder      string `json:"folder"`
	PostID      int    `json:"post_id"`
}

func (s *Server) handleReadLaterServices(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"services": s.readLater.Services()})
}

func (s *Server) handleReadLaterStatus(c *gin.Context) {
	st, err := s.readLater.Status(c.Request.Context(), c.Param("service"), account(c))
	if err != nil {
		s.respondError(c, "read-later status", err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) handleReadLaterLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "username and password are required")
		return
	}
	st, err := s.readLater.Login(c.Request.Context(), c.Param("service"), account(c), req.Username, req.Password)
	if err != nil {
		s.respondError(c, "read-later login", err)
		return
	}
	s.logger.Info("Read-later login succeeded", "service", st.Service, "account", account(c))
	c.JSON(http.StatusOK, st)
}

func (s *Server) handleReadLaterLogout(c *gin.Context) {
	if err := s.readLater.Logout(c.Request.Context(), c.Param("service"), account(c)); err != nil && !s.isNotFound(err) {
		s.respondError(c, "read-later logout", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// handleReadLaterAdd bookmarks either a cached post or an explicit URL.
func (s *Server) handleReadLaterAdd(c *gin.Context) {
	var req addRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	item := readlater.Item{URL: req.URL, Title: req.Title, Description: req.Description, Folder: req.Folder}
	if req.PostID > 0 {
		post, err := s.cache.GetPost(c.Request.Context(), req.PostID)
		if err != nil {
			s.respondError(c, "get post", err)
			return
		}
		item.URL = post.URL
		if !post.HasExternalURL() {
			item.URL = hn.ItemURL(post.ID)
		}
		if item.Title == "" {
			item.Title = post.Title
		}
		if item.Description == "" && post.Text != "" {
			item.Description = render.Excerpt(render.Text(post.Text), 200)
		}
	}

	u, err := url.Parse(item.URL)
	if item.URL == "" || err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		badRequest(c, "an http(s) url or a cached post_id is required")
		return
	}

	if err := s.readLater.Send(c.Request.Context(), c.Param("service"), account(c), item); err != nil {
		s.respondError(c, "read-later add", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "added", "url": item.URL})
}
