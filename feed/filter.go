package feed

import (
	"strings"

	"hackers/pkg/hn"

	"golang.org/x/text/cases"
)

// Filter keeps posts matching keyword and score rules.
// Keywords are matched case-insensitively against title, domain and submitter.
type Filter struct {
	Include  []string `yaml:"include" json:"include,omitempty"`
	Exclude  []string `yaml:"exclude" json:"exclude,omitempty"`
	MinScore int      `yaml:"min_score" json:"min_score,omitempty"`
}

var folder = cases.Fold()

// Match reports whether the post passes the filter.
func (f *Filter) Match(p *hn.Post) bool {
	if f == nil {
		return true
	}
	if p.Score < f.MinScore {
		return false
	}
	haystack := folder.String(strings.Join([]string{p.Title, p.Domain, p.By}, "\n"))
	for _, kw := range f.Exclude {
		if kw != "" && strings.Contains(haystack, folder.String(kw)) {
			return false
		}
	}
	if len(f.Include) == 0 {
		return true
	}
	for _, kw := range f.Include {
		if kw != "" && strings.Contains(haystack, folder.String(kw)) {
			return true
		}
	}
	return false
}

// Apply returns the posts that pass the filter, keeping their order.
func (f *Filter) Apply(posts []*hn.Post) []*hn.Post {
	if f == nil || (len(f.Include) == 0 && len(f.Exclude) == 0 && f.MinScore == 0) {
		return posts
	}
	out := make([]*hn.Post, 0, len(posts))
	for _, p := range posts {
		if f.Match(p) {
			out = append(out, p)
		}
	}
	return out
}
