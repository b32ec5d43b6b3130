package server

import (
	"fmt"
	"net/http"
	"net/mail"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"hackers/pkg/hn"
)

// maxThreadsPerUser bounds how many items one address may watch.
const maxThreadsPerUser = 100

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

type watchRequest struct {
	Email string `json:"email" binding:"required"`
	Item  string `json:"item" binding:"required"` // Item id or discussion URL
}

func isValidEmail(email string) bool {
	if len(email) < 3 || len(email) > 254 {
		return false
	}
	_, err := mail.ParseAddress(email)
	return err == nil && emailRegex.MatchString(email)
}

// parseItemID accepts "123" or a news.ycombinator.com/item?id=123 URL.
func parseItemID(item string) (int, error) {
	item = strings.TrimSpace(item)
	if id, err := strconv.Atoi(item); err == nil {
		if id <= 0 {
			return 0, fmt.Errorf("invalid item id %d", id)
		}
		return id, nil
	}

	u, err := url.Parse(item)
	if err != nil {
		return 0, fmt.Errorf("parse item url: %w", err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return 0, fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if host := strings.TrimPrefix(u.Hostname(), "www."); host != "news.ycombinator.com" || u.Path != "/item" {
		return 0, fmt.Errorf("not a Hacker News item url: %s", item)
	}
	id, err := strconv.Atoi(u.Query().Get("id"))
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("missing item id in %s", item)
	}
	return id, nil
}

// handleWatch subscribes an address to an item's new comments.
func (s *Server) handleWatch(c *gin.Context) {
	ip := clientIP(c.Request)
	if !s.limiter.allow(ip) {
		s.logger.Warn("Rate limit exceeded", "ip", ip)
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many requests, please try again later"})
		return
	}

	var req watchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "email and item are required")
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if !isValidEmail(email) {
		badRequest(c, "invalid email address")
		return
	}
	itemID, err := parseItemID(req.Item)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	ctx := c.Request.Context()

	sub, err := s.subs.LoadByEmail(ctx, email)
	if err != nil {
		if !s.isNotFound(err) {
			s.respondError(c, "load subscription", err)
			return
		}
		sub = &hn.Subscription{
			Email:   email,
			Token:   s.subs.TokenFromEmail(email),
			Threads: make(map[string]*hn.Thread),
		}
	}

	key := strconv.Itoa(itemID)
	if existing, ok := sub.Threads[key]; ok {
		c.JSON(http.StatusOK, gin.H{"status": "already_watching", "thread": existing})
		return
	}
	if len(sub.Threads) >= maxThreadsPerUser {
		s.logger.Warn("Thread limit exceeded", "email", email, "current_count", len(sub.Threads))
		badRequest(c, fmt.Sprintf("maximum thread limit reached (%d threads per user)", maxThreadsPerUser))
		return
	}

	// Verify the item exists and take the current comments as the baseline
	post, comments, err := s.scraper.Post(ctx, itemID, true)
	if err != nil {
		s.logger.Warn("Failed to verify item", "item_id", itemID, "error", err)
		s.respondError(c, "verify item", err)
		return
	}

	now := time.Now().UTC()
	thread := &hn.Thread{
		ItemID:       itemID,
		Title:        post.Title,
		URL:          hn.ItemURL(itemID),
		CreatedAt:    now,
		LastPolledAt: now,
	}
	for _, cm := range comments {
		if cm.ID == itemID {
			continue
		}
		if cm.ID > thread.LastCommentID {
			thread.LastCommentID = cm.ID
		}
		if cm.Time.After(thread.LastCommentTime) {
			thread.LastCommentTime = cm.Time
		}
	}
	sub.Threads[key] = thread

	if err := s.subs.Save(ctx, sub); err != nil {
		s.respondError(c, "save subscription", err)
		return
	}

	if err := s.emailer.SendWelcome(ctx, sub, thread, ip, c.GetHeader("User-Agent")); err != nil {
		// The watch is already saved
		s.logger.Warn("Failed to send welcome email", "email", email, "error", err)
	}

	s.logger.Info("Subscription created", "email", email, "item_id", itemID, "ip", ip)
	c.JSON(http.StatusCreated, gin.H{"status": "watching", "thread": thread})
}
