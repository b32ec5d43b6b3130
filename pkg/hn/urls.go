package hn

import (
	"fmt"
	"net/url"
)

// BaseURL is the Hacker News site root.
const BaseURL = "https://news.ycombinator.com"

// ItemURL returns the discussion page of an item.
func ItemURL(id int) string {
	return BaseURL + ItemPath(id, 0)
}

// ItemPath returns the path of an item page. Page 0 omits the page parameter.
func ItemPath(id, page int) string {
	if page == 0 {
		return fmt.Sprintf("/item?id=%d", id)
	}
	return fmt.Sprintf("/item?id=%d&p=%d", id, page)
}

// ListPath returns the path of a listing page.
// newest and jobs continue from nextID; the rest use page numbers.
func ListPath(t PostType, page, nextID int) string {
	switch {
	case t.PagesByID():
		if nextID > 0 {
			return fmt.Sprintf("/%s?next=%d", t, nextID)
		}
		return "/" + string(t)
	case page <= 1:
		return "/" + string(t)
	default:
		return fmt.Sprintf("/%s?p=%d", t, page)
	}
}

// UserPath returns the path of a user profile page.
func UserPath(name string) string {
	return "/user?id=" + url.QueryEscape(name)
}

// AbsoluteURL resolves a link found on a Hacker News page.
func AbsoluteURL(ref string) string {
	if ref == "" {
		return ""
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	if u.IsAbs() {
		return u.String()
	}
	base, _ := url.Parse(BaseURL + "/") //nolint:errcheck // constant URL
	return base.ResolveReference(u).String()
}
