package email

import (
	"bytes"
	"html/template"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"hackers/pkg/hn"
)

const baseStyle = `body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 800px; margin: 0 auto; padding: 20px; background: #fff; }
.comment { margin-bottom: 24px; padding-bottom: 24px; border-bottom: 2px solid #ff6600; }
.comment:last-of-type { border-bottom: none; padding-bottom: 0; margin-bottom: 0; }
.meta { margin-bottom: 8px; }
.comment-link { color: #828282; text-decoration: none; }
.author { color: #ff6600; font-weight: 600; }
.timestamp { color: #828282; font-size: 0.9em; }
.content pre { white-space: pre-wrap; background: #f6f6ef; padding: 8px; }
.header { border-bottom: 2px solid #ff6600; padding-bottom: 10px; margin-bottom: 20px; }
.info { color: #828282; font-size: 0.9em; margin: 15px 0; }
.footer { margin-top: 30px; padding-top: 15px; font-size: 0.9em; color: #828282; }
.footer.with-border { border-top: 1px solid #ddd; }
.footer a { color: #828282; text-decoration: underline; margin-right: 12px; }
a { color: #ff6600; text-decoration: none; }
@media (prefers-color-scheme: dark) {
body { background: #1a1a1a; color: #e0e0e0; }
.content pre { background: #2a2a2a; }
.footer, .timestamp, .comment-link, .info { color: #a0a0a0; }
}`

var notificationTmpl = template.Must(template.New("notification").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<style>{{.Style}}</style>
</head>
<body>
{{range .Comments}}<div class="comment"{{if $.Single}} style="border-bottom: none; padding-bottom: 0;"{{end}}>
<div class="meta">
<a href="{{.URL}}" class="comment-link">#{{.ID}}</a>
<span class="author"> &bull; {{.By}}</span>
{{if .When}}<span class="timestamp"> &bull; {{.When}}</span>{{end}}
</div>
<div class="content">{{.Body}}</div>
</div>
{{end}}<div class="footer{{if not .Single}} with-border{{end}}">
<a href="{{.ThreadURL}}">View thread</a>
<a href="{{.ManageURL}}">Manage</a>
</div>
</body>
</html>`))

var welcomeTmpl = template.Must(template.New("welcome").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<style>{{.Style}}</style>
</head>
<body>
<div class="header"><h2>Watching Hacker News Thread</h2></div>
<div class="content">
<p>You are now watching <strong>{{.Title}}</strong>.</p>
<p>You will receive an email whenever new comments are posted.</p>
</div>
<div class="info">
<p><strong>Request details:</strong></p>
<ul>
<li>IP Address: {{.IP}}</li>
<li>Browser: {{.UserAgent}}</li>
</ul>
</div>
<div class="footer with-border">
<a href="{{.ThreadURL}}">View thread</a>
<a href="{{.ManageURL}}">Manage</a>
</div>
</body>
</html>`))

type commentView struct {
	URL  string
	By   string
	When string
	Body template.HTML
	ID   int
}

func (s *Sender) notificationBody(sub *hn.Subscription, thread *hn.Thread, comments []*hn.Comment) (string, error) {
	views := make([]commentView, 0, len(comments))
	for _, c := range comments {
		v := commentView{
			ID:   c.ID,
			By:   c.By,
			URL:  hn.ItemURL(c.ID),
			Body: commentBody(c),
		}
		if !c.Time.IsZero() {
			v.When = c.Time.UTC().Format("Jan 2, 2006 at 3:04 PM") + " UTC"
		}
		views = append(views, v)
	}

	// Link to the newest comment so the reader lands on it
	link := threadURL(thread)
	if len(comments) > 0 {
		link = hn.ItemURL(comments[len(comments)-1].ID)
	}

	var buf bytes.Buffer
	err := notificationTmpl.Execute(&buf, map[string]any{
		"Style":     template.CSS(baseStyle),
		"Comments":  views,
		"Single":    len(views) == 1,
		"ThreadURL": link,
		"ManageURL": s.manageURL(sub),
	})
	return buf.String(), err
}

func (s *Sender) welcomeBody(sub *hn.Subscription, thread *hn.Thread, ip, userAgent string) (string, error) {
	title := thread.Title
	if title == "" {
		title = threadURL(thread)
	}
	var buf bytes.Buffer
	err := welcomeTmpl.Execute(&buf, map[string]any{
		"Style":     template.CSS(baseStyle),
		"Title":     title,
		"IP":        ip,
		"UserAgent": userAgent,
		"ThreadURL": threadURL(thread),
		"ManageURL": s.manageURL(sub),
	})
	return buf.String(), err
}

// commentBody prefers the sanitized comment HTML and falls back to escaped text.
func commentBody(c *hn.Comment) template.HTML {
	if c.Body != "" {
		return template.HTML(sanitizeHTML(c.Body)) //nolint:gosec // output of sanitizeHTML
	}
	escaped := template.HTMLEscapeString(c.Text)
	return template.HTML(strings.ReplaceAll(escaped, "\n", "<br>")) //nolint:gosec // escaped above
}

var allowedTags = map[atom.Atom]bool{
	atom.P:          true,
	atom.Br:         true,
	atom.B:          true,
	atom.Strong:     true,
	atom.I:          true,
	atom.Em:         true,
	atom.U:          true,
	atom.Blockquote: true,
	atom.Pre:        true,
	atom.Code:       true,
	atom.A:          true,
	atom.Ul:         true,
	atom.Ol:         true,
	atom.Li:         true,
}

// sanitizeHTML keeps a small whitelist of formatting tags from untrusted comment
// HTML. Only href survives on links, and only for http(s) targets. Everything
// inside script and style elements is dropped.
func sanitizeHTML(raw string) string {
	z := html.NewTokenizer(strings.NewReader(raw))
	var (
		b    strings.Builder
		skip int
	)
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if z.Err() != io.EOF {
				b.WriteString(html.EscapeString(string(z.Raw())))
			}
			return b.String()
		}
		tok := z.Token()
		switch tt {
		case html.StartTagToken, html.SelfClosingTagToken:
			if tok.DataAtom == atom.Script || tok.DataAtom == atom.Style {
				if tt == html.StartTagToken {
					skip++
				}
				continue
			}
			if skip > 0 || !allowedTags[tok.DataAtom] {
				continue
			}
			b.WriteString("<" + tok.Data)
			if tok.DataAtom == atom.A {
				for _, attr := range tok.Attr {
					if attr.Key == "href" && isSafeURL(attr.Val) {
						b.WriteString(` href="` + html.EscapeString(attr.Val) + `"`)
					}
				}
			}
			b.WriteString(">")
		case html.EndTagToken:
			if tok.DataAtom == atom.Script || tok.DataAtom == atom.Style {
				if skip > 0 {
					skip--
				}
				continue
			}
			if skip > 0 || !allowedTags[tok.DataAtom] || tok.DataAtom == atom.Br {
				continue
			}
			b.WriteString("</" + tok.Data + ">")
		case html.TextToken:
			if skip == 0 {
				b.WriteString(html.EscapeString(tok.Data))
			}
		}
	}
}

func isSafeURL(raw string) bool {
	u := strings.ToLower(strings.TrimSpace(raw))
	return strings.HasPrefix(u, "https://") || strings.HasPrefix(u, "http://")
}
