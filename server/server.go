// Package server exposes the cache, the read-later services and thread watching as a JSON API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	hnaccount "hackers/account"
	"hackers/pkg/hn"
	"hackers/readlater"
	"hackers/syncer"
)

// Cache is the local post and comment store.
type Cache interface {
	ListPosts(ctx context.Context, postType hn.PostType, offset, limit int) ([]*hn.Post, error)
	ListPostsAfter(ctx context.Context, postType hn.PostType, afterID, limit int) ([]*hn.Post, error)
	SaveListing(ctx context.Context, postType hn.PostType, posts []*hn.Post) error
	GetPost(ctx context.Context, id int) (*hn.Post, error)
	UpsertPost(ctx context.Context, p *hn.Post) error
	Comments(ctx context.Context, postID int) ([]*hn.Comment, error)
	ReplaceComments(ctx context.Context, postID int, comments []*hn.Comment) error
	ToggleComment(ctx context.Context, id int) (*hn.Comment, error)
	MarkRead(ctx context.Context, postID int) error
	MarkUnread(ctx context.Context, postID int) error
	ReadIDs(ctx context.Context, ids []int) (map[int]bool, error)
	AddBookmark(ctx context.Context, postID int) error
	RemoveBookmark(ctx context.Context, postID int) error
	ToggleBookmark(ctx context.Context, postID int) (bool, error)
	Bookmarks(ctx context.Context) ([]*hn.Post, error)
}

// Scraper fetches live pages when the cache cannot answer.
type Scraper interface {
	Posts(ctx context.Context, postType hn.PostType, page, nextID int) ([]*hn.Post, error)
	Post(ctx context.Context, id int, allPages bool) (*hn.Post, []*hn.Comment, error)
	User(ctx context.Context, name string) (*hn.User, error)
}

// Articles returns readable extractions of post links.
type Articles interface {
	ForPost(ctx context.Context, postID int) (*hn.Article, error)
}

// ReadLater manages read-later logins and bookmarks.
type ReadLater interface {
	Services() []string
	Login(ctx context.Context, service, account, username, password string) (*readlater.Status, error)
	Send(ctx context.Context, service, account string, item readlater.Item) error
	Logout(ctx context.Context, service, account string) error
	Status(ctx context.Context, service, account string) (*readlater.Status, error)
}

// Session keeps Hacker News logins and votes with them.
type Session interface {
	Login(ctx context.Context, account, username, password string) (*hnaccount.Status, error)
	Logout(ctx context.Context, account string) error
	Status(ctx context.Context, account string) (*hnaccount.Status, error)
	Vote(ctx context.Context, account string, itemID int, up bool) error
}

// Search finds stories by keyword.
type Search interface {
	Stories(ctx context.Context, query string, page int) ([]*hn.Post, error)
}

// Subscriptions persists watched threads.
type Subscriptions interface {
	TokenFromEmail(email string) string
	LoadByEmail(ctx context.Context, email string) (*hn.Subscription, error)
	LoadByToken(ctx context.Context, token string) (*hn.Subscription, error)
	Save(ctx context.Context, sub *hn.Subscription) error
	Delete(ctx context.Context, email string) error
}

// Emailer interface for sending welcome emails.
type Emailer interface {
	SendWelcome(ctx context.Context, sub *hn.Subscription, thread *hn.Thread, ip, userAgent string) error
}

// Poller interface for triggering checks.
type Poller interface {
	CheckAll(ctx context.Context) error
}

// Feeds reports and triggers feed syncs.
type Feeds interface {
	Feeds(ctx context.Context) ([]syncer.FeedStatus, error)
	TriggerFeed(name string) (string, error)
}

// Config holds server dependencies.
type Config struct {
	Cache         Cache
	Scraper       Scraper
	Articles      Articles
	ReadLater     ReadLater
	Session       Session
	Search        Search
	Subscriptions Subscriptions
	Emailer       Emailer
	Poller        Poller
	Feeds         Feeds
	Logger        *slog.Logger
	IsNotFound    func(error) bool // Subscription store misses
	APIKey        string           // Optional; required on /api when set
}

// Server handles HTTP requests.
type Server struct {
	cache      Cache
	scraper    Scraper
	articles   Articles
	readLater  ReadLater
	session    Session
	search     Search
	subs       Subscriptions
	emailer    Emailer
	poller     Poller
	feeds      Feeds
	logger     *slog.Logger
	isNotFound func(error) bool
	limiter    *rateLimiter
	apiKey     string
}

// New creates a new HTTP server handler.
func New(cfg *Config) *Server {
	isNotFound := cfg.IsNotFound
	if isNotFound == nil {
		isNotFound = hn.IsNotFound
	}
	return &Server{
		cache:      cfg.Cache,
		scraper:    cfg.Scraper,
		articles:   cfg.Articles,
		readLater:  cfg.ReadLater,
		session:    cfg.Session,
		search:     cfg.Search,
		subs:       cfg.Subscriptions,
		emailer:    cfg.Emailer,
		poller:     cfg.Poller,
		feeds:      cfg.Feeds,
		logger:     cfg.Logger,
		isNotFound: isNotFound,
		limiter:    newRateLimiter(5, time.Hour),
		apiKey:     cfg.APIKey,
	}
}

// Router builds the gin engine with every route.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(requestLogger(s.logger), gin.Recovery())

	r.GET("/health", s.handleHealth)
	r.POST("/pollz", s.handlePoll)

	api := r.Group("/api")
	if s.apiKey != "" {
		api.Use(apiKeyAuth(s.apiKey))
	}

	api.GET("/posts", s.handleListPosts)
	api.GET("/posts/:id", s.handleGetPost)
	api.POST("/posts/:id/read", s.handleMarkRead)
	api.DELETE("/posts/:id/read", s.handleMarkUnread)
	api.GET("/posts/:id/article", s.handleArticle)
	api.POST("/comments/:id/toggle", s.handleToggleComment)
	api.GET("/users/:name", s.handleUser)
	api.GET("/search", s.handleSearch)

	api.GET("/bookmarks", s.handleListBookmarks)
	api.POST("/bookmarks/:id", s.handleAddBookmark)
	api.DELETE("/bookmarks/:id", s.handleRemoveBookmark)
	api.POST("/posts/:id/bookmark", s.handleToggleBookmark)

	api.GET("/session", s.handleSessionStatus)
	api.POST("/session", s.handleLogin)
	api.DELETE("/session", s.handleLogout)
	api.POST("/posts/:id/vote", s.handleVote)
	api.DELETE("/posts/:id/vote", s.handleUnvote)
	api.POST("/comments/:id/vote", s.handleVote)
	api.DELETE("/comments/:id/vote", s.handleUnvote)

	api.GET("/readlater", s.handleReadLaterServices)
	api.GET("/readlater/:service", s.handleReadLaterStatus)
	api.POST("/readlater/:service/login", s.handleReadLaterLogin)
	api.DELETE("/readlater/:service/login", s.handleReadLaterLogout)
	api.POST("/readlater/:service/items", s.handleReadLaterAdd)

	api.POST("/watch", s.handleWatch)
	api.GET("/watch", s.handleListWatched)
	api.DELETE("/watch", s.handleUnwatch)

	api.GET("/feeds", s.handleListFeeds)
	api.POST("/feeds/:name/sync", s.handleSyncFeed)

	return r
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func (s *Server) handlePoll(c *gin.Context) {
	s.logger.Info("Poll endpoint triggered")

	if err := s.poller.CheckAll(c.Request.Context()); err != nil {
		s.logger.Error("Poll check failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "check failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "completed"})
}
