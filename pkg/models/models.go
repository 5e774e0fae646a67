package models

import (
	"bytes"
	"encoding/json"
	"io"
	"strconv"
)

type Visibility string

const (
	VisibilityPublic Visibility = "Public"
	VisibilityCampus Visibility = "Campus Only"
)

type Author struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

// Post is the cached, display-ready shape of a feed item.
type Post struct {
	ID           int64      `json:"id"`
	Author       Author     `json:"author"`
	Content      string     `json:"content"`
	Image        string     `json:"image,omitempty"`
	Likes        int        `json:"likes"`
	IsLiked      bool       `json:"is_liked"`
	Comments     []Comment  `json:"comments"`
	CommentCount int        `json:"comment_count"`
	Shares       int        `json:"shares"`
	Timestamp    string     `json:"timestamp"`
	Visibility   Visibility `json:"visibility"`
	Category     string     `json:"category"`
}

// Clone returns a deep copy of the post, comments included.
func (p Post) Clone() Post {
	cp := p
	cp.Comments = make([]Comment, len(p.Comments))
	for i, c := range p.Comments {
		cp.Comments[i] = c.Clone()
	}
	return cp
}

type Comment struct {
	ID       int64  `json:"id"`
	UserID   int64  `json:"user_id"`
	User     string `json:"user"`
	Avatar   string `json:"avatar"`
	Text     string `json:"text"`
	ParentID *int64 `json:"parent_id"`
	Time     string `json:"time"`
}

func (c Comment) Clone() Comment {
	if c.ParentID != nil {
		id := *c.ParentID
		c.ParentID = &id
	}
	return c
}

type User struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Role      string `json:"role,omitempty"`
}

// Flag decodes booleans that some backends serialize as 0/1 or null.
type Flag bool

func (f *Flag) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch string(b) {
	case "null", "false", "0", `""`:
		*f = false
		return nil
	case "true", "1":
		*f = true
		return nil
	}

	if n, err := strconv.ParseFloat(string(b), 64); err == nil {
		*f = n != 0
		return nil
	}

	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return err
	}
	*f = Flag(v)
	return nil
}

// RawPost is a feed record as served by GET /api/posts/feed.
type RawPost struct {
	ID           int64  `json:"id"`
	UserID       int64  `json:"user_id"`
	UserName     string `json:"user_name"`
	AvatarURL    string `json:"avatar_url"`
	Content      string `json:"content"`
	ImageURL     string `json:"image_url"`
	LikeCount    int    `json:"like_count"`
	IsLiked      Flag   `json:"is_liked"`
	CommentCount int    `json:"comment_count"`
	CreatedAt    string `json:"created_at"`
	Visibility   string `json:"visibility"`
	Category     string `json:"category"`
}

type FeedResponse struct {
	Data []RawPost `json:"data"`
}

// RawComment is a comment record as served by GET /api/comments/{postId}.
type RawComment struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	UserID    int64  `json:"user_id"`
	AvatarURL string `json:"avatar_url"`
	Text      string `json:"text"`
	ParentID  *int64 `json:"parent_id"`
	CreatedAt string `json:"created_at"`
}

type MeResponse struct {
	User User `json:"user"`
}

type CommentRequest struct {
	Text     string `json:"text"`
	ParentID *int64 `json:"parentId"`
}

type EditCommentRequest struct {
	Text string `json:"text"`
}

type ReportRequest struct {
	Reason string `json:"reason"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// NewPost is the create-post payload. When Image is set the request is sent
// as multipart/form-data, otherwise as JSON.
type NewPost struct {
	Content    string      `json:"content"`
	Visibility string      `json:"visibility,omitempty"`
	Category   string      `json:"category,omitempty"`
	Image      *Attachment `json:"-"`
}

type Attachment struct {
	Filename string
	Data     io.Reader
}
