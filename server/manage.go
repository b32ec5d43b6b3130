package server

import (
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"

	"hackers/pkg/hn"
)

// tokenParam reads the manage token; tokens are 64 hex characters.
func tokenParam(c *gin.Context) (string, bool) {
	token := c.Query("token")
	if len(token) != 64 {
		badRequest(c, "invalid or missing token")
		return "", false
	}
	return token, true
}

func (s *Server) loadByToken(c *gin.Context, token string) (*hn.Subscription, bool) {
	sub, err := s.subs.LoadByToken(c.Request.Context(), token)
	if err != nil {
		if s.isNotFound(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "subscription not found"})
			return nil, false
		}
		s.respondError(c, "load subscription", err)
		return nil, false
	}
	return sub, true
}

// handleListWatched lists the threads of the subscription owning token.
func (s *Server) handleListWatched(c *gin.Context) {
	token, ok := tokenParam(c)
	if !ok {
		return
	}
	sub, ok := s.loadByToken(c, token)
	if !ok {
		return
	}

	threads := make([]*hn.Thread, 0, len(sub.Threads))
	for _, t := range sub.Threads {
		threads = append(threads, t)
	}
	slices.SortFunc(threads, func(a, b *hn.Thread) int { return b.CreatedAt.Compare(a.CreatedAt) })

	c.JSON(http.StatusOK, gin.H{"email": sub.Email, "threads": threads})
}

// handleUnwatch removes one item, or every item when none is given. A
// subscription left without threads is deleted.
func (s *Server) handleUnwatch(c *gin.Context) {
	token, ok := tokenParam(c)
	if !ok {
		return
	}
	sub, ok := s.loadByToken(c, token)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	if item := c.Query("item"); item != "" {
		if _, exists := sub.Threads[item]; !exists {
			c.JSON(http.StatusNotFound, gin.H{"error": "not watching item " + item})
			return
		}
		delete(sub.Threads, item)
	} else {
		clear(sub.Threads)
	}

	if len(sub.Threads) == 0 {
		if err := s.subs.Delete(ctx, sub.Email); err != nil {
			s.respondError(c, "delete subscription", err)
			return
		}
		s.logger.Info("All subscriptions removed", "email", sub.Email)
		c.JSON(http.StatusOK, gin.H{"status": "unsubscribed", "remaining": 0})
		return
	}

	if err := s.subs.Save(ctx, sub); err != nil {
		s.respondError(c, "save subscription", err)
		return
	}
	s.logger.Info("Thread unsubscribed", "email", sub.Email, "item", c.Query("item"))
	c.JSON(http.StatusOK, gin.H{"status": "unwatched", "remaining": len(sub.Threads)})
}
