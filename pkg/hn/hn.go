// Package hn contains the core domain types for the Hacker News reader service.
package hn

import "time"

// Post represents a single submitted item in a feed.
type Post struct {
	Time         time.Time `json:"time"`
	CommentsAt   time.Time `json:"comments_fetched_at,omitzero"` // When the comment tree was last cached
	Title        string    `json:"title"`
	URL          string    `json:"url"`
	Domain       string    `json:"domain,omitempty"`
	By           string    `json:"by"`
	Age          string    `json:"age,omitempty"`  // Relative age as displayed ("3 hours ago")
	Text         string    `json:"text,omitempty"` // Self text HTML for Ask HN style posts
	Type         PostType  `json:"type"`
	ID           int       `json:"id"`
	Score        int       `json:"score"`
	CommentCount int       `json:"comment_count"`
	Rank         int       `json:"rank"`
	Read         bool      `json:"read"`
	Bookmarked   bool      `json:"bookmarked"`
}

// HasExternalURL reports whether the post links off-site.
func (p *Post) HasExternalURL() bool {
	return p.URL != "" && p.URL != ItemURL(p.ID)
}

// Comment is one node of a post's discussion tree.
type Comment struct {
	Time       time.Time  `json:"time"`
	By         string     `json:"by"`
	Age        string     `json:"age,omitempty"`
	Body       string     `json:"body_html"` // Raw HTML as scraped
	Text       string     `json:"text"`      // Rendered plain text
	Visibility Visibility `json:"visibility"`
	ID         int        `json:"id"`
	PostID     int        `json:"post_id"`
	ParentID   int        `json:"parent_id,omitempty"` // 0 for roots
	Level      int        `json:"level"`
	Expanded   bool       `json:"expanded"`
}

// IsRoot reports whether the comment hangs directly off the post.
func (c *Comment) IsRoot() bool {
	return c.ParentID == 0
}

// Visibility describes how a comment should be displayed.
type Visibility string

// Comment visibility states.
const (
	Visible Visibility = "visible"
	Compact Visibility = "compact" // Collapsed by the reader
	Hidden  Visibility = "hidden"  // An ancestor is collapsed
)

// User is a public Hacker News profile.
type User struct {
	Created  time.Time `json:"created"`
	Username string    `json:"username"`
	About    string    `json:"about,omitempty"`
	Karma    int       `json:"karma"`
}

// Article is the readable extraction of a post's link.
type Article struct {
	FetchedAt   time.Time `json:"fetched_at"`
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	Byline      string    `json:"byline,omitempty"`
	SiteName    string    `json:"site_name,omitempty"`
	Excerpt     string    `json:"excerpt,omitempty"`
	Content     string    `json:"content"`
	TextContent string    `json:"text_content"`
	PostID      int       `json:"post_id"`
}

// Credential is an OAuth access grant for a read-later service or a Hacker News
// session, where Account holds the username and Token the session cookie.
type Credential struct {
	ExpiresAt    time.Time `json:"expires_at,omitzero"`
	CreatedAt    time.Time `json:"created_at"`
	Service      string    `json:"service"`
	Account      string    `json:"account"`
	Token        string    `json:"token"`
	Secret       string    `json:"secret,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
}

// IsEmpty reports whether the credential carries no access token.
func (c *Credential) IsEmpty() bool {
	return c == nil || c.Token == ""
}

// IsExpired reports whether the credential can no longer be used at now.
// A zero expiry means the grant does not expire.
func (c *Credential) IsExpired(now time.Time) bool {
	if c.IsEmpty() {
		return true
	}
	if c.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(c.ExpiresAt)
}

// Thread represents a watched item with its polling state.
type Thread struct {
	LastCommentTime time.Time `json:"last_comment_time"` // When the newest comment was posted
	LastPolledAt    time.Time `json:"last_polled_at"`    // When we last checked this item
	CreatedAt       time.Time `json:"created_at"`        // Subscription timestamp
	Title           string    `json:"title"`
	URL             string    `json:"url"`
	ItemID          int       `json:"item_id"`
	LastCommentID   int       `json:"last_comment_id"` // Highest comment ID already notified
}

// Subscription represents a subscriber watching one or more items.
type Subscription struct {
	Threads map[string]*Thread `json:"threads"` // Map of item ID -> Thread
	Email   string             `json:"email"`
	Token   string             `json:"token"` // Secure token for manage links
}
