package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"hackers/pkg/hn"
)

// pageSize matches the site's listing pages.
const pageSize = 30

func (s *Server) handleListPosts(c *gin.Context) {
	ctx := c.Request.Context()

	postType, err := hn.ParsePostType(c.DefaultQuery("type", string(hn.News)))
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		badRequest(c, "invalid page")
		return
	}
	nextID, _ := strconv.Atoi(c.Query("next")) //nolint:errcheck // optional, zero when absent

	source := "cache"
	var posts []*hn.Post
	if nextID > 0 {
		posts, err = s.cache.ListPostsAfter(ctx, postType, nextID, pageSize)
	} else {
		posts, err = s.cache.ListPosts(ctx, postType, (page-1)*pageSize, pageSize)
	}
	if err != nil {
		s.respondError(c, "list posts", err)
		return
	}

	if len(posts) == 0 {
		source = "live"
		posts, err = s.scraper.Posts(ctx, postType, page, nextID)
		if err != nil {
			s.respondError(c, "scrape posts", err)
			return
		}
		// Only a first page can seed the cached ranking
		if page == 1 && nextID == 0 && len(posts) > 0 {
			if err := s.cache.SaveListing(ctx, postType, posts); err != nil {
				s.logger.Warn("Failed to cache live listing", "type", postType, "error", err)
			}
		}
	}

	if err := s.applyReadFlags(c, posts); err != nil {
		s.respondError(c, "read flags", err)
		return
	}

	resp := gin.H{
		"type":   postType,
		"title":  postType.Title(),
		"page":   page,
		"source": source,
		"posts":  posts,
	}
	if postType.PagesByID() && len(posts) > 0 {
		resp["next"] = posts[len(posts)-1].ID
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) applyReadFlags(c *gin.Context, posts []*hn.Post) error {
	if len(posts) == 0 {
		return nil
	}
	ids := make([]int, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
	}
	read, err := s.cache.ReadIDs(c.Request.Context(), ids)
	if err != nil {
		return err
	}
	for _, p := range posts {
		p.Read = read[p.ID]
	}
	return nil
}

// handleGetPost serves a post with its visible comments and marks it read.
// The thread is scraped when its comments were never fetched or ?refresh=1 is set.
func (s *Server) handleGetPost(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()

	refresh := c.Query("refresh") == "1" || c.Query("refresh") == "true"
	if !refresh {
		cached, err := s.cache.GetPost(ctx, id)
		switch {
		case hn.IsNotFound(err):
			refresh = true
		case err != nil:
			s.respondError(c, "get post", err)
			return
		default:
			refresh = cached.CommentsAt.IsZero()
		}
	}

	if refresh {
		post, comments, err := s.scraper.Post(ctx, id, true)
		if err != nil {
			s.respondError(c, "scrape post", err)
			return
		}
		if err := s.cache.UpsertPost(ctx, post); err != nil {
			s.respondError(c, "cache post", err)
			return
		}
		if err := s.cache.ReplaceComments(ctx, id, comments); err != nil {
			s.respondError(c, "cache comments", err)
			return
		}
	}

	post, err := s.cache.GetPost(ctx, id)
	if err != nil {
		s.respondError(c, "get post", err)
		return
	}
	comments, err := s.cache.Comments(ctx, id)
	if err != nil {
		s.respondError(c, "get comments", err)
		return
	}
	if err := s.cache.MarkRead(ctx, id); err != nil {
		s.respondError(c, "mark read", err)
		return
	}
	post.Read = true

	c.JSON(http.StatusOK, gin.H{
		"post":     post,
		"comments": hn.VisibleComments(comments),
		"total":    len(comments),
	})
}

func (s *Server) handleMarkRead(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	if err := s.cache.MarkRead(c.Request.Context(), id); err != nil {
		s.respondError(c, "mark read", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleMarkUnread(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	if err := s.cache.MarkUnread(c.Request.Context(), id); err != nil {
		s.respondError(c, "mark unread", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleArticle(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	a, err := s.articles.ForPost(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, "article", err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (s *Server) handleToggleComment(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	comment, err := s.cache.ToggleComment(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, "toggle comment", err)
		return
	}
	c.JSON(http.StatusOK, comment)
}

func (s *Server) handleUser(c *gin.Context) {
	name := c.Param("name")
	if name == "" || len(name) > 64 {
		badRequest(c, "invalid user name")
		return
	}
	u, err := s.scraper.User(c.Request.Context(), name)
	if err != nil {
		s.respondError(c, "user", err)
		return
	}
	c.JSON(http.StatusOK, u)
}
