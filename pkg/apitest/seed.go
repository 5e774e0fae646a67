package apitest

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"campusfeed/pkg/models"
)

// Seed is the JSON layout of a data file loaded with LoadSeed.
type Seed struct {
	Users []SeedUser   `json:"users"`
	Posts []SeedThread `json:"posts"`
}

type SeedUser struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

// SeedThread is a post with its comments. ReplyTo is the 1-based position of
// the parent among the same post's comments; zero makes a top-level comment.
type SeedThread struct {
	SeedPost
	Comments []SeedComment `json:"comments"`
}

type SeedComment struct {
	UserID    int64     `json:"userId"`
	Text      string    `json:"text"`
	ReplyTo   int       `json:"replyTo"`
	CreatedAt time.Time `json:"createdAt"`
}

// LoadSeed reads a seed file.
func LoadSeed(path string) (Seed, error) {
	var seed Seed

	data, err := os.ReadFile(path)
	if err != nil {
		return seed, err
	}
	if err := json.Unmarshal(data, &seed); err != nil {
		return seed, fmt.Errorf("failed to decode seed file %s: %w", path, err)
	}
	return seed, nil
}

// Apply adds the users, posts and comments of seed to s. Posts are added in
// file order, so the last post of the file is the newest in the feed.
func (s *Server) Apply(seed Seed) error {
	for _, u := range seed.Users {
		if u.Token == "" {
			return fmt.Errorf("seed user %d has no token", u.User.ID)
		}
		s.AddUser(u.Token, u.User)
	}

	for _, p := range seed.Posts {
		postID := s.AddPost(p.SeedPost)

		ids := make([]int64, 0, len(p.Comments))
		for i, c := range p.Comments {
			var parentID *int64
			if c.ReplyTo != 0 {
				if c.ReplyTo < 1 || c.ReplyTo > i {
					return fmt.Errorf("post %d comment %d: replyTo %d does not name an earlier comment", postID, i+1, c.ReplyTo)
				}
				pid := ids[c.ReplyTo-1]
				parentID = &pid
			}
			ids = append(ids, s.AddComment(postID, c.UserID, c.Text, parentID, c.CreatedAt))
		}
	}

	return nil
}
