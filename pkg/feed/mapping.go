package feed

import (
	"net/url"
	"strings"
	"time"

	"campusfeed/pkg/models"
)

const (
	postTimeLayout    = "1/2/2006"
	commentTimeLayout = "1/2/2006 15:04"

	avatarServiceURL = "https://ui-avatars.com/api/"
	rawCampus        = "campus"
)

var createdAtLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func mapPosts(raw []models.RawPost, loc *time.Location) []models.Post {
	posts := make([]models.Post, 0, len(raw))
	for _, p := range raw {
		posts = append(posts, mapPost(p, loc))
	}
	return posts
}

func mapPost(p models.RawPost, loc *time.Location) models.Post {
	avatar := p.AvatarURL
	if avatar == "" {
		avatar = DefaultAvatar(p.UserName)
	}

	visibility := models.VisibilityPublic
	if p.Visibility == rawCampus {
		visibility = models.VisibilityCampus
	}

	return models.Post{
		ID: p.ID,
		Author: models.Author{
			ID:     p.UserID,
			Name:   p.UserName,
			Avatar: avatar,
		},
		Content:      p.Content,
		Image:        p.ImageURL,
		Likes:        p.LikeCount,
		IsLiked:      bool(p.IsLiked),
		Comments:     []models.Comment{},
		CommentCount: p.CommentCount,
		Shares:       0,
		Timestamp:    formatTime(p.CreatedAt, postTimeLayout, loc),
		Visibility:   visibility,
		Category:     p.Category,
	}
}

func mapComments(raw []models.RawComment, loc *time.Location) []models.Comment {
	comments := make([]models.Comment, 0, len(raw))
	for _, c := range raw {
		comments = append(comments, models.Comment{
			ID:       c.ID,
			UserID:   c.UserID,
			User:     c.Name,
			Avatar:   c.AvatarURL,
			Text:     c.Text,
			ParentID: c.ParentID,
			Time:     formatTime(c.CreatedAt, commentTimeLayout, loc),
		}.Clone())
	}
	return comments
}

// DefaultAvatar returns the generated placeholder avatar URL for a display name.
func DefaultAvatar(name string) string {
	return avatarServiceURL + "?name=" + strings.ReplaceAll(url.QueryEscape(name), "+", "%20") + "&background=random"
}

// formatTime renders raw in loc using layout. Unparseable values are returned unchanged.
func formatTime(raw, layout string, loc *time.Location) string {
	for _, l := range createdAtLayouts {
		if t, err := time.ParseInLocation(l, raw, loc); err == nil {
			return t.In(loc).Format(layout)
		}
	}
	return raw
}
