package render

import "testing"

func TestText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "empty",
			in:   "   ",
			want: "",
		},
		{
			name: "plain",
			in:   "Just one line",
			want: "Just one line",
		},
		{
			name: "paragraphs and inline markup",
			in:   `First paragraph<p>Second <i>italic</i> and <a href="https://x.com/long">x.com/lo...</a></p><p>Third</p>`,
			want: "First paragraph\n\nSecond italic and https://x.com/long\n\nThird",
		},
		{
			name: "entities decoded",
			in:   `&gt; quoted &amp; escaped<p>reply</p>`,
			want: "> quoted & escaped\n\nreply",
		},
		{
			name: "whitespace collapsed",
			in:   "lots   of\n\n   space",
			want: "lots of space",
		},
		{
			name: "preformatted kept",
			in:   "Code:<p><pre><code>  x := 1\n  y := 2\n</code></pre>After",
			want: "Code:\n\n  x := 1\n  y := 2\n\nAfter",
		},
		{
			name: "line break",
			in:   "a<br>b",
			want: "a\nb",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Text(tt.in); got != tt.want {
				t.Errorf("Text() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExcerpt(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"hello world foo", 8, "hello…"},
		{"héllo wörld", 0, "héllo wörld"},
		{"abcdefghij", 4, "abcd…"},
		{"multi\n\nline   text", 50, "multi line text"},
	}
	for _, tt := range tests {
		if got := Excerpt(tt.in, tt.n); got != tt.want {
			t.Errorf("Excerpt(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}
