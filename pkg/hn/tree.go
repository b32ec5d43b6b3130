package hn

// BuildTree links a flat, thread-ordered comment list into a tree owned by postID.
// A comment whose level skips ahead attaches to the nearest shallower comment
// and has its level normalised to one below that parent.
func BuildTree(postID int, comments []*Comment) {
	var stack []*Comment
	for _, c := range comments {
		c.PostID = postID
		for len(stack) > 0 && stack[len(stack)-1].Level >= c.Level {
			stack = stack[:len(stack)-1]
		}
		if len(stack) == 0 {
			c.ParentID = 0
			c.Level = 0
		} else {
			parent := stack[len(stack)-1]
			c.ParentID = parent.ID
			c.Level = parent.Level + 1
		}
		stack = append(stack, c)
	}
}

// ApplyVisibility derives each comment's Visibility from the Expanded flags.
// Comments must be in thread order.
func ApplyVisibility(comments []*Comment) {
	collapsedAt := -1
	for _, c := range comments {
		if collapsedAt >= 0 && c.Level > collapsedAt {
			c.Visibility = Hidden
			continue
		}
		collapsedAt = -1
		if c.Expanded {
			c.Visibility = Visible
			continue
		}
		c.Visibility = Compact
		collapsedAt = c.Level
	}
}

// VisibleComments returns the comments that are not hidden by a collapsed ancestor.
func VisibleComments(comments []*Comment) []*Comment {
	out := make([]*Comment, 0, len(comments))
	for _, c := range comments {
		if c.Visibility != Hidden {
			out = append(out, c)
		}
	}
	return out
}

// Children returns the direct replies of parentID, in thread order.
func Children(comments []*Comment, parentID int) []*Comment {
	var out []*Comment
	for _, c := range comments {
		if c.ParentID == parentID {
			out = append(out, c)
		}
	}
	return out
}

// CountDescendants returns the size of the subtree below comment id.
func CountDescendants(comments []*Comment, id int) int {
	start := -1
	for i, c := range comments {
		if c.ID == id {
			start = i
			break
		}
	}
	if start < 0 {
		return 0
	}
	level := comments[start].Level
	n := 0
	for _, c := range comments[start+1:] {
		if c.Level <= level {
			break
		}
		n++
	}
	return n
}
