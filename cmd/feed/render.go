package main

import (
	"fmt"
	"io"
	"strings"

	"campusfeed/pkg/models"
	"campusfeed/pkg/thread"
)

func printPost(w io.Writer, p models.Post) {
	liked := " "
	if p.IsLiked {
		liked = "*"
	}
	fmt.Fprintf(w, "#%d %s · %s · %s", p.ID, p.Author.Name, p.Timestamp, p.Visibility)
	if p.Category != "" {
		fmt.Fprintf(w, " · %s", p.Category)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %s\n", p.Content)
	if p.Image != "" {
		fmt.Fprintf(w, "  [image] %s\n", p.Image)
	}
	fmt.Fprintf(w, "  %s%d likes  %d comments\n", liked, p.Likes, p.CommentCount)
}

func printThread(w io.Writer, comments []models.Comment) {
	for _, l := range thread.Flatten(thread.Build(comments)) {
		indent := strings.Repeat("  ", l.Depth+2)
		fmt.Fprintf(w, "%s[%d] %s (%s): %s\n", indent, l.Comment.ID, l.Comment.User, l.Comment.Time, l.Comment.Text)
	}
}
