// Package feed holds the in-memory feed cache and the optimistic mutation engine
// operating on it.
//
// The Store is the single owner of the cached posts. Readers get deep copies;
// all writes go through LoadFeed, FetchComments and the mutation methods in
// mutation.go. Network calls are never made while the cache lock is held.
package feed

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"campusfeed/pkg/gateway"
	"campusfeed/pkg/invalidation"
	"campusfeed/pkg/models"
)

// ErrSuperseded is returned when a newer request for the same data was issued
// while this one was in flight. Its response is discarded.
var ErrSuperseded = errors.New("response superseded by a newer request")

// Gateway is the subset of the request gateway the store depends on.
type Gateway interface {
	Feed(ctx context.Context) ([]models.RawPost, error)
	Comments(ctx context.Context, postID int64) ([]models.RawComment, error)
	ToggleLike(ctx context.Context, postID int64) error
	CreateComment(ctx context.Context, postID int64, text string, parentID *int64) error
	EditComment(ctx context.Context, commentID int64, text string) error
	DeleteComment(ctx context.Context, commentID int64) error
	DeletePost(ctx context.Context, postID int64) error
	CreatePost(ctx context.Context, p models.NewPost) error
	ReportPost(ctx context.Context, postID int64, reason string) error
}

type Option func(*Store)

// WithLocation sets the time zone used to render timestamps. Defaults to time.Local.
func WithLocation(loc *time.Location) Option {
	return func(s *Store) {
		if loc != nil {
			s.loc = loc
		}
	}
}

type Store struct {
	gw      Gateway
	counter *invalidation.Counter
	loc     *time.Location

	mu             sync.Mutex
	posts          []models.Post
	feedTicket     uint64
	commentTickets map[int64]uint64
}

func New(gw Gateway, counter *invalidation.Counter, opts ...Option) *Store {
	if counter == nil {
		counter = invalidation.New()
	}
	s := Store{
		gw:             gw,
		counter:        counter,
		loc:            time.Local,
		posts:          []models.Post{},
		commentTickets: make(map[int64]uint64),
	}
	for _, opt := range opts {
		opt(&s)
	}

	return &s
}

// Counter returns the invalidation counter bumped by this store.
func (s *Store) Counter() *invalidation.Counter {
	return s.counter
}

// Posts returns a deep copy of the cached feed in server order.
func (s *Store) Posts() []models.Post {
	s.mu.Lock()
	defer s.mu.Unlock()

	posts := make([]models.Post, len(s.posts))
	for i, p := range s.posts {
		posts[i] = p.Clone()
	}
	return posts
}

// Post returns a copy of the cached post with the given id.
func (s *Store) Post(id int64) (models.Post, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return models.Post{}, false
	}
	return s.posts[i].Clone(), true
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.posts)
}

// LoadFeed replaces the whole cache with the current feed and bumps the counter.
//
// On failure the cache is cleared and the error is returned after being logged.
// When several loads overlap, only the response to the most recently issued one
// is applied; earlier responses are dropped with ErrSuperseded.
func (s *Store) LoadFeed(ctx context.Context) error {
	s.mu.Lock()
	s.feedTicket++
	ticket := s.feedTicket
	s.mu.Unlock()

	raw, err := s.gw.Feed(ctx)

	s.mu.Lock()
	if ticket != s.feedTicket {
		s.mu.Unlock()
		log.Debugf("[Store.LoadFeed] dropping response of superseded load #%d", ticket)
		return ErrSuperseded
	}
	if err != nil {
		s.posts = []models.Post{}
		s.mu.Unlock()
		if gateway.Classify(err) == gateway.ClassUnauthorized {
			log.Warnf("[Store.LoadFeed] unauthorized, login required: %v", err)
		} else {
			log.Errorf("[Store.LoadFeed] failed to fetch feed: %v", err)
		}
		return err
	}
	s.posts = mapPosts(raw, s.loc)
	n := len(s.posts)
	s.mu.Unlock()

	v := s.counter.Bump()
	log.Debugf("[Store.LoadFeed] feed loaded: %d posts, version %d", n, v)
	return nil
}

// FetchComments replaces the comments of postID and its comment count from a
// single response, so CommentCount always equals len(Comments) afterwards.
// Comments keep their parent references and are not nested.
func (s *Store) FetchComments(ctx context.Context, postID int64) error {
	s.mu.Lock()
	s.commentTickets[postID]++
	ticket := s.commentTickets[postID]
	s.mu.Unlock()

	raw, err := s.gw.Comments(ctx, postID)
	if err != nil {
		log.Errorf("[Store.FetchComments] post %d: %v", postID, err)
		return err
	}
	comments := mapComments(raw, s.loc)

	s.mu.Lock()
	defer s.mu.Unlock()

	if ticket != s.commentTickets[postID] {
		log.Debugf("[Store.FetchComments] post %d: dropping response of superseded fetch #%d", postID, ticket)
		return ErrSuperseded
	}

	i := s.indexOf(postID)
	if i < 0 {
		log.Debugf("[Store.FetchComments] post %d is not cached, comments dropped", postID)
		return nil
	}

	p := s.posts[i]
	p.Comments = comments
	p.CommentCount = len(comments)
	s.posts[i] = p

	return nil
}

// update applies fn to the cached post with the given id under the lock.
// It reports whether the post was found.
func (s *Store) update(id int64, fn func(p *models.Post)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return false
	}
	p := s.posts[i]
	fn(&p)
	s.posts[i] = p
	return true
}

// remove drops every cached post with the given id and returns how many were removed.
func (s *Store) remove(id int64) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := make([]models.Post, 0, len(s.posts))
	for _, p := range s.posts {
		if p.ID != id {
			kept = append(kept, p)
		}
	}
	removed := len(s.posts) - len(kept)
	s.posts = kept
	return removed
}

// indexOf must be called with s.mu held.
func (s *Store) indexOf(id int64) int {
	for i := range s.posts {
		if s.posts[i].ID == id {
			return i
		}
	}
	return -1
}
