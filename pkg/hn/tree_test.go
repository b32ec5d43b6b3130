package hn

import "testing"

func flat(levels ...int) []*Comment {
	out := make([]*Comment, len(levels))
	for i, l := range levels {
		out[i] = &Comment{ID: 100 + i, Level: l, Expanded: true}
	}
	return out
}

func TestBuildTree(t *testing.T) {
	tests := []struct {
		name       string
		levels     []int
		wantParent []int
		wantLevel  []int
	}{
		{
			name:       "flat roots",
			levels:     []int{0, 0, 0},
			wantParent: []int{0, 0, 0},
			wantLevel:  []int{0, 0, 0},
		},
		{
			name:       "nested then back out",
			levels:     []int{0, 1, 2, 1, 0},
			wantParent: []int{0, 100, 101, 100, 0},
			wantLevel:  []int{0, 1, 2, 1, 0},
		},
		{
			name:       "level jump attaches to nearest shallower",
			levels:     []int{0, 3, 1},
			wantParent: []int{0, 100, 100},
			wantLevel:  []int{0, 1, 1},
		},
		{
			name:       "orphan first comment becomes root",
			levels:     []int{2, 3},
			wantParent: []int{0, 100},
			wantLevel:  []int{0, 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			comments := flat(tt.levels...)
			BuildTree(42, comments)
			for i, c := range comments {
				if c.PostID != 42 {
					t.Errorf("comment %d PostID = %d, want 42", c.ID, c.PostID)
				}
				if c.ParentID != tt.wantParent[i] {
					t.Errorf("comment %d ParentID = %d, want %d", c.ID, c.ParentID, tt.wantParent[i])
				}
				if c.Level != tt.wantLevel[i] {
					t.Errorf("comment %d Level = %d, want %d", c.ID, c.Level, tt.wantLevel[i])
				}
			}
		})
	}
}

func TestApplyVisibility(t *testing.T) {
	comments := flat(0, 1, 2, 1, 0, 1)
	BuildTree(1, comments)
	comments[1].Expanded = false // collapse 101 and its reply 102

	ApplyVisibility(comments)

	want := []Visibility{Visible, Compact, Hidden, Visible, Visible, Visible}
	for i, c := range comments {
		if c.Visibility != want[i] {
			t.Errorf("comment %d visibility = %s, want %s", c.ID, c.Visibility, want[i])
		}
	}

	visible := VisibleComments(comments)
	if len(visible) != 5 {
		t.Fatalf("VisibleComments() returned %d, want 5", len(visible))
	}
	for _, c := range visible {
		if c.ID == 102 {
			t.Error("hidden comment 102 returned by VisibleComments()")
		}
	}
}

func TestApplyVisibilityNestedCollapse(t *testing.T) {
	comments := flat(0, 1, 2, 3, 0)
	BuildTree(1, comments)
	comments[0].Expanded = false
	comments[2].Expanded = false

	ApplyVisibility(comments)

	want := []Visibility{Compact, Hidden, Hidden, Hidden, Visible}
	for i, c := range comments {
		if c.Visibility != want[i] {
			t.Errorf("comment %d visibility = %s, want %s", c.ID, c.Visibility, want[i])
		}
	}
}

func TestCountDescendantsAndChildren(t *testing.T) {
	comments := flat(0, 1, 2, 1, 0)
	BuildTree(1, comments)

	if got := CountDescendants(comments, 100); got != 3 {
		t.Errorf("CountDescendants(100) = %d, want 3", got)
	}
	if got := CountDescendants(comments, 104); got != 0 {
		t.Errorf("CountDescendants(104) = %d, want 0", got)
	}
	if got := CountDescendants(comments, 999); got != 0 {
		t.Errorf("CountDescendants(999) = %d, want 0", got)
	}
	if got := len(Children(comments, 100)); got != 2 {
		t.Errorf("Children(100) = %d, want 2", got)
	}
	if got := len(Children(comments, 0)); got != 2 {
		t.Errorf("Children(0) = %d, want 2", got)
	}
}
