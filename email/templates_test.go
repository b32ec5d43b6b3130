package email

import (
	"strings"
	"testing"
)

// Comment HTML as served on item pages.
func TestSanitizeHTMLWithRealComment(t *testing.T) {
	input := `The trick is to not parse it at all.<p>See <a href="https:&#x2F;&#x2F;example.com&#x2F;post" rel="nofollow">https:&#x2F;&#x2F;example.com&#x2F;post</a> for <i>why</i>.<p><pre><code>  x := 1
  y := 2
</code></pre>`

	result := sanitizeHTML(input)

	for _, want := range []string{
		"<p>",
		"<i>why</i>",
		`<a href="https://example.com/post">`,
		"<pre><code>  x := 1\n  y := 2\n</code></pre>",
	} {
		if !strings.Contains(result, want) {
			t.Errorf("sanitizeHTML() missing %q\ngot: %s", want, result)
		}
	}
	if strings.Contains(result, "rel=") {
		t.Errorf("sanitizeHTML() kept rel attribute: %s", result)
	}
}

func TestSanitizeHTMLDropsDangerousContent(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		reject  []string
		require []string
	}{
		{
			name:    "script element",
			input:   `hi<script>alert(1)</script> there`,
			reject:  []string{"script", "alert"},
			require: []string{"hi", " there"},
		},
		{
			name:    "javascript link",
			input:   `<a href="javascript:alert(1)">click</a>`,
			reject:  []string{"javascript"},
			require: []string{"<a>click</a>"},
		},
		{
			name:    "event handler",
			input:   `<p onclick="steal()">text</p>`,
			reject:  []string{"onclick", "steal"},
			require: []string{"<p>text</p>"},
		},
		{
			name:    "iframe",
			input:   `<iframe src="https://evil.example"></iframe>after`,
			reject:  []string{"iframe", "evil"},
			require: []string{"after"},
		},
		{
			name:    "escaped text stays escaped",
			input:   `a &lt;b&gt; c`,
			reject:  []string{"<b>"},
			require: []string{"a &lt;b&gt; c"},
		},
		{
			name:    "style element",
			input:   `<style>body{display:none}</style>ok`,
			reject:  []string{"display"},
			require: []string{"ok"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sanitizeHTML(tt.input)
			for _, r := range tt.reject {
				if strings.Contains(got, r) {
					t.Errorf("sanitizeHTML(%q) = %q, should not contain %q", tt.input, got, r)
				}
			}
			for _, r := range tt.require {
				if !strings.Contains(got, r) {
					t.Errorf("sanitizeHTML(%q) = %q, should contain %q", tt.input, got, r)
				}
			}
		})
	}
}

func TestSanitizeHeader(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Show HN: thing", "Show HN: thing"},
		{"evil\r\nBcc: victim@example.com", "evilBcc: victim@example.com"},
		{"tab\there", "tabhere"},
		{"  padded  ", "padded"},
		{"Ünïcode ✓", "Ünïcode ✓"},
	}
	for _, tt := range tests {
		if got := sanitizeHeader(tt.in); got != tt.want {
			t.Errorf("sanitizeHeader(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
