package thread

import (
	"reflect"
	"testing"

	"campusfeed/pkg/models"
)

func ptr(id int64) *int64 {
	return &id
}

func ids(lines []Line) []int64 {
	out := make([]int64, len(lines))
	for i, l := range lines {
		out[i] = l.Comment.ID
	}
	return out
}

func depths(lines []Line) []int {
	out := make([]int, len(lines))
	for i, l := range lines {
		out[i] = l.Depth
	}
	return out
}

func TestBuild(t *testing.T) {
	tests := []struct {
		name       string
		comments   []models.Comment
		wantRoots  int
		wantIDs    []int64
		wantDepths []int
	}{
		{
			name:       "empty",
			comments:   nil,
			wantRoots:  0,
			wantIDs:    []int64{},
			wantDepths: []int{},
		},
		{
			name: "reply to top level",
			comments: []models.Comment{
				{ID: 1},
				{ID: 2, ParentID: ptr(1)},
			},
			wantRoots:  1,
			wantIDs:    []int64{1, 2},
			wantDepths: []int{0, 1},
		},
		{
			name: "nested with siblings in input order",
			comments: []models.Comment{
				{ID: 1},
				{ID: 2, ParentID: ptr(1)},
				{ID: 3},
				{ID: 4, ParentID: ptr(2)},
				{ID: 5, ParentID: ptr(1)},
			},
			wantRoots:  2,
			wantIDs:    []int64{1, 2, 4, 5, 3},
			wantDepths: []int{0, 1, 2, 1, 0},
		},
		{
			name: "reply listed before its parent",
			comments: []models.Comment{
				{ID: 2, ParentID: ptr(1)},
				{ID: 1},
			},
			wantRoots:  1,
			wantIDs:    []int64{1, 2},
			wantDepths: []int{0, 1},
		},
		{
			name: "orphan promoted",
			comments: []models.Comment{
				{ID: 1},
				{ID: 3, ParentID: ptr(99)},
			},
			wantRoots:  2,
			wantIDs:    []int64{1, 3},
			wantDepths: []int{0, 0},
		},
		{
			name: "self parent",
			comments: []models.Comment{
				{ID: 1, ParentID: ptr(1)},
			},
			wantRoots:  1,
			wantIDs:    []int64{1},
			wantDepths: []int{0},
		},
		{
			name: "parent loop",
			comments: []models.Comment{
				{ID: 1, ParentID: ptr(2)},
				{ID: 2, ParentID: ptr(1)},
			},
			wantRoots:  2,
			wantIDs:    []int64{1, 2},
			wantDepths: []int{0, 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			roots := Build(tt.comments)
			if len(roots) != tt.wantRoots {
				t.Errorf("want %d roots, got %d", tt.wantRoots, len(roots))
			}

			lines := Flatten(roots)
			if got := ids(lines); !reflect.DeepEqual(got, tt.wantIDs) {
				t.Errorf("want ids %v, got %v", tt.wantIDs, got)
			}
			if got := depths(lines); !reflect.DeepEqual(got, tt.wantDepths) {
				t.Errorf("want depths %v, got %v", tt.wantDepths, got)
			}
			if got := Count(roots); got != len(tt.comments) {
				t.Errorf("want count %d, got %d", len(tt.comments), got)
			}
		})
	}
}

func TestBuildKeepsComments(t *testing.T) {
	comments := []models.Comment{
		{ID: 1, User: "Bob", Text: "top"},
		{ID: 2, User: "Alice", Text: "reply", ParentID: ptr(1)},
	}

	roots := Build(comments)
	if roots[0].Comment.Text != "top" || roots[0].Replies[0].Comment.User != "Alice" {
		t.Errorf("unexpected thread %+v", roots[0])
	}
	if comments[0].ParentID != nil || *comments[1].ParentID != 1 {
		t.Errorf("want input left flat, got %+v", comments)
	}
}
