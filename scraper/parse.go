package scraper

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"hackers/pkg/hn"
	"hackers/render"

	"github.com/PuerkitoBio/goquery"
)

const indentWidth = 40 // Pixels of indent per comment level

func parseListing(doc *goquery.Document, postType hn.PostType) ([]*hn.Post, error) {
	var posts []*hn.Post
	var firstErr error

	doc.Find("tr.athing").Each(func(_ int, row *goquery.Selection) {
		if row.HasClass("comtr") || row.Find("span.titleline").Length() == 0 {
			return
		}
		post, err := parsePostRows(row, row.Next(), postType)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return
		}
		posts = append(posts, post)
	})

	// A page with rows we could not read at all means the markup changed
	if len(posts) == 0 && firstErr != nil {
		return nil, hn.Errorf(hn.KindScraper, "parse listing", "%w", firstErr)
	}

	return posts, nil
}

func parsePostRows(titleRow, metaRow *goquery.Selection, postType hn.PostType) (*hn.Post, error) {
	idAttr, _ := titleRow.Attr("id")
	id, err := strconv.Atoi(strings.TrimSpace(idAttr))
	if err != nil {
		return nil, fmt.Errorf("parse post id %q: %w", idAttr, err)
	}

	link := titleRow.Find("span.titleline > a").First()
	title := strings.TrimSpace(link.Text())
	if title == "" {
		return nil, fmt.Errorf("post %d: missing title", id)
	}
	href, _ := link.Attr("href")

	post := &hn.Post{
		ID:     id,
		Title:  title,
		URL:    hn.AbsoluteURL(href),
		Domain: strings.TrimSpace(titleRow.Find("span.sitestr").First().Text()),
		Rank:   leadingInt(strings.TrimSuffix(strings.TrimSpace(titleRow.Find("span.rank").First().Text()), ".")),
		Type:   postType,
	}
	if post.URL == "" {
		post.URL = hn.ItemURL(id)
	}

	if metaRow != nil && metaRow.Length() > 0 {
		post.Score = leadingInt(metaRow.Find("span.score").First().Text())
		post.By = strings.TrimSpace(metaRow.Find("a.hnuser").First().Text())
		age := metaRow.Find("span.age").First()
		post.Age = strings.TrimSpace(age.Text())
		post.Time = hn.ParseAge(age.AttrOr("title", ""))
		post.CommentCount = commentCount(metaRow)
	}

	return post, nil
}

// commentCount reads the "N comments" link; "discuss" or a missing link is zero.
func commentCount(metaRow *goquery.Selection) int {
	count := 0
	metaRow.Find("a").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		text := a.Text()
		if !strings.Contains(text, "comment") {
			return true
		}
		count = leadingInt(text)
		return false
	})
	return count
}

func parseItem(doc *goquery.Document, id int) (*hn.Post, error) {
	table := doc.Find("table.fatitem").First()
	if table.Length() == 0 {
		return nil, hn.NotFound(fmt.Sprintf("item %d", id))
	}

	titleRow := table.Find("tr.athing").First()
	if titleRow.Length() == 0 {
		return nil, hn.Errorf(hn.KindScraper, "parse item", "item %d: missing title row", id)
	}

	// Comment permalinks use the same layout without a title line
	if titleRow.Find("span.titleline").Length() == 0 {
		return nil, hn.Errorf(hn.KindScraper, "parse item", "item %d is not a story", id)
	}

	post, err := parsePostRows(titleRow, titleRow.Next(), "")
	if err != nil {
		return nil, hn.Errorf(hn.KindScraper, "parse item", "%w", err)
	}

	if top := table.Find("div.toptext").First(); top.Length() > 0 {
		if body, err := top.Html(); err == nil && strings.TrimSpace(top.Text()) != "" {
			post.Text = strings.TrimSpace(body)
		}
	}

	return post, nil
}

// postComment turns an item's self text into a level-0 comment carrying the item's ID.
func postComment(post *hn.Post) *hn.Comment {
	if post.Text == "" {
		return nil
	}
	return &hn.Comment{
		ID:       post.ID,
		PostID:   post.ID,
		By:       post.By,
		Age:      post.Age,
		Time:     post.Time,
		Body:     post.Text,
		Text:     render.Text(post.Text),
		Expanded: true,
	}
}

func parseComments(doc *goquery.Document) []*hn.Comment {
	var comments []*hn.Comment
	doc.Find("tr.comtr").Each(func(_ int, row *goquery.Selection) {
		if c := parseComment(row); c != nil {
			comments = append(comments, c)
		}
	})
	return comments
}

// parseComment returns nil for rows without readable text, such as deleted comments.
func parseComment(row *goquery.Selection) *hn.Comment {
	id, err := strconv.Atoi(row.AttrOr("id", ""))
	if err != nil {
		return nil
	}

	text := row.Find(".commtext").First()
	if text.Length() == 0 {
		return nil
	}
	text.Find(".reply").Remove()
	text.Find("a").Each(func(_ int, a *goquery.Selection) {
		if href, ok := a.Attr("href"); ok && href != "" {
			a.SetText(href)
		}
	})
	body, err := text.Html()
	if err != nil || strings.TrimSpace(text.Text()) == "" {
		return nil
	}

	age := row.Find("span.age").First()
	return &hn.Comment{
		ID:       id,
		Level:    commentLevel(row),
		By:       strings.TrimSpace(row.Find("a.hnuser").First().Text()),
		Age:      strings.TrimSpace(age.Text()),
		Time:     hn.ParseAge(age.AttrOr("title", "")),
		Body:     strings.TrimSpace(body),
		Text:     render.Text(body),
		Expanded: true,
	}
}

func commentLevel(row *goquery.Selection) int {
	ind := row.Find("td.ind").First()
	if v, ok := ind.Attr("indent"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	if w, err := strconv.Atoi(ind.Find("img").AttrOr("width", "")); err == nil {
		return w / indentWidth
	}
	return 0
}

func parseUser(doc *goquery.Document, name string) (*hn.User, error) {
	user := &hn.User{}
	doc.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Children().Filter("td")
		if cells.Length() < 2 {
			return
		}
		label := strings.TrimSpace(cells.First().Text())
		value := cells.Eq(1)
		switch label {
		case "user:":
			user.Username = strings.TrimSpace(value.Text())
		case "created:":
			user.Created = parseCreated(value)
		case "karma:":
			user.Karma = leadingInt(value.Text())
		case "about:":
			if html, err := value.Html(); err == nil {
				user.About = render.Text(html)
			}
		}
	})
	if user.Username == "" {
		return nil, hn.NotFound("user " + name)
	}
	return user, nil
}

// parseCreated reads the signup date from the "front?day=" link, falling back to the link text.
func parseCreated(cell *goquery.Selection) time.Time {
	href := cell.Find("a").AttrOr("href", "")
	if i := strings.Index(href, "day="); i >= 0 {
		day := href[i+len("day="):]
		if j := strings.IndexByte(day, '&'); j >= 0 {
			day = day[:j]
		}
		if t, err := time.Parse("2006-01-02", day); err == nil {
			return t
		}
	}
	if t, err := time.Parse("January 2, 2006", strings.TrimSpace(cell.Text())); err == nil {
		return t
	}
	return time.Time{}
}

// leadingInt parses the first whitespace-separated field of s, returning 0 when it is not a number.
func leadingInt(s string) int {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return 0
	}
	n, err := strconv.Atoi(strings.ReplaceAll(fields[0], ",", ""))
	if err != nil {
		return 0
	}
	return n
}
