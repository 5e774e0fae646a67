// Package thread nests the flat comment list of a post for display.
//
// The cache keeps comments flat with parent references; nesting is derived
// here on every read and never stored.
package thread

import "campusfeed/pkg/models"

type Node struct {
	Comment models.Comment
	Replies []*Node
}

// Line is one comment of a flattened thread with its nesting depth.
type Line struct {
	Comment models.Comment
	Depth   int
}

// Build nests comments by parent id, keeping the input order among siblings.
// Comments whose parent is missing, or whose parent chain loops back to
// them, become roots.
func Build(comments []models.Comment) []*Node {
	nodes := make([]*Node, len(comments))
	byID := make(map[int64]*Node, len(comments))
	parents := make(map[int64]int64, len(comments))
	for i, c := range comments {
		nodes[i] = &Node{Comment: c}
		if _, dup := byID[c.ID]; dup {
			continue
		}
		byID[c.ID] = nodes[i]
		if c.ParentID != nil {
			parents[c.ID] = *c.ParentID
		}
	}

	var roots []*Node
	for _, n := range nodes {
		var (
			parent *Node
			ok     bool
		)
		if n.Comment.ParentID != nil {
			parent, ok = byID[*n.Comment.ParentID]
		}
		if !ok || parent == n || loops(n.Comment.ID, parents) {
			roots = append(roots, n)
			continue
		}
		parent.Replies = append(parent.Replies, n)
	}

	return roots
}

// loops reports whether following parent ids from id leads back to id.
func loops(id int64, parents map[int64]int64) bool {
	cur := id
	for i := 0; i < len(parents); i++ {
		p, ok := parents[cur]
		if !ok {
			return false
		}
		if p == id {
			return true
		}
		cur = p
	}
	return false
}

// Flatten walks the thread depth-first, replies right after their parent.
func Flatten(roots []*Node) []Line {
	var lines []Line
	var walk func(nodes []*Node, depth int)
	walk = func(nodes []*Node, depth int) {
		for _, n := range nodes {
			lines = append(lines, Line{Comment: n.Comment, Depth: depth})
			walk(n.Replies, depth+1)
		}
	}
	walk(roots, 0)

	return lines
}

// Count returns the number of comments in the thread.
func Count(roots []*Node) int {
	n := 0
	for _, r := range roots {
		n += 1 + Count(r.Replies)
	}
	return n
}
