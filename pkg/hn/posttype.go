package hn

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// PostType identifies a Hacker News listing.
type PostType string

// Listings served by news.ycombinator.com.
const (
	News   PostType = "news"
	Ask    PostType = "ask"
	Show   PostType = "show"
	Jobs   PostType = "jobs"
	Newest PostType = "newest"
	Best   PostType = "best"
	Active PostType = "active"
)

// PostTypes lists every listing in display order.
var PostTypes = []PostType{News, Ask, Show, Jobs, Newest, Best, Active}

var titleCaser = cases.Title(language.English)

// ParsePostType validates a listing name.
func ParsePostType(s string) (PostType, error) {
	t := PostType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range PostTypes {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown post type %q", s)
}

// Title is the human label of the listing.
func (t PostType) Title() string {
	switch t {
	case News:
		return "Top"
	case Newest:
		return "New"
	default:
		return titleCaser.String(string(t))
	}
}

// PagesByID reports whether the listing pages by the last seen item ID rather than page number.
func (t PostType) PagesByID() bool {
	return t == Newest || t == Jobs
}
