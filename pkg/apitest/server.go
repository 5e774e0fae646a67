// Package apitest is an in-memory stand-in for the feed service REST API.
// It backs end-to-end tests of the client packages and the local dev server.
package apitest

import (
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"campusfeed/pkg/eventlog"
	"campusfeed/pkg/models"
)

// Route names, usable with FailNext and BeforeHandle.
const (
	RouteMe            = "auth.me"
	RouteFeed          = "posts.feed"
	RouteCreatePost    = "posts.create"
	RouteDeletePost    = "posts.delete"
	RouteToggleLike    = "likes.toggle"
	RouteComments      = "comments.list"
	RouteCreateComment = "comments.create"
	RouteEditComment   = "comments.edit"
	RouteDeleteComment = "comments.delete"
	RouteReport        = "reports.create"
)

type post struct {
	id         int64
	userID     int64
	content    string
	imageURL   string
	visibility string
	category   string
	createdAt  time.Time
}

type comment struct {
	id        int64
	postID    int64
	userID    int64
	parentID  *int64
	text      string
	createdAt time.Time
}

// Report is a post report received by the server.
type Report struct {
	PostID int64
	UserID int64
	Reason string
}

// SeedPost describes a post added with AddPost.
type SeedPost struct {
	UserID     int64     `json:"userId"`
	Content    string    `json:"content"`
	ImageURL   string    `json:"imageUrl"`
	Visibility string    `json:"visibility"`
	Category   string    `json:"category"`
	CreatedAt  time.Time `json:"createdAt"`
	LikedBy    []int64   `json:"likedBy"`
}

type failure struct {
	status  int
	message string
}

type Server struct {
	r           *mux.Router
	censor      *Censor
	serviceName string

	mu            sync.Mutex
	tokens        map[string]int64
	users         map[int64]models.User
	posts         map[int64]*post
	comments      map[int64]*comment
	likes         map[int64]map[int64]bool
	reports       []Report
	nextPostID    int64
	nextCommentID int64
	failures      map[string][]failure
	hooks         map[string]func()
	rec           eventlog.Recorder
	now           func() time.Time
}

// New returns an empty server. A nil censor accepts every post.
func New(censor *Censor) *Server {
	s := Server{
		r:           mux.NewRouter(),
		censor:      censor,
		serviceName: "feedapi",
		tokens:      make(map[string]int64),
		users:       make(map[int64]models.User),
		posts:       make(map[int64]*post),
		comments:    make(map[int64]*comment),
		likes:       make(map[int64]map[int64]bool),
		failures:    make(map[string][]failure),
		hooks:       make(map[string]func()),
		now:         time.Now,
	}
	s.endpoints()

	return &s
}

func (s *Server) Router() *mux.Router {
	return s.r
}

// SetRecorder makes the server report every handled request to rec under
// the given service name.
func (s *Server) SetRecorder(serviceName string, rec eventlog.Recorder) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if serviceName != "" {
		s.serviceName = serviceName
	}
	s.rec = rec
}

func (s *Server) endpoints() {
	s.r.Use(s.requestIDMiddleware)
	s.r.Use(s.headerMiddleware)
	s.r.Use(s.loggingMiddleware)
	s.r.Use(s.faultMiddleware)

	api := s.r.PathPrefix("/api").Subrouter()
	api.Use(s.authMiddleware)

	api.HandleFunc("/auth/me", s.meHandler).Methods(http.MethodGet).Name(RouteMe)
	api.HandleFunc("/posts/feed", s.feedHandler).Methods(http.MethodGet).Name(RouteFeed)
	api.HandleFunc("/posts", s.createPostHandler).Methods(http.MethodPost).Name(RouteCreatePost)
	api.HandleFunc("/posts/{id:[0-9]+}", s.deletePostHandler).Methods(http.MethodDelete).Name(RouteDeletePost)
	api.HandleFunc("/likes/{id:[0-9]+}", s.toggleLikeHandler).Methods(http.MethodPost).Name(RouteToggleLike)
	api.HandleFunc("/comments/{id:[0-9]+}", s.commentsHandler).Methods(http.MethodGet).Name(RouteComments)
	api.HandleFunc("/comments/{id:[0-9]+}", s.createCommentHandler).Methods(http.MethodPost).Name(RouteCreateComment)
	api.HandleFunc("/comments/{id:[0-9]+}", s.editCommentHandler).Methods(http.MethodPut).Name(RouteEditComment)
	api.HandleFunc("/comments/{id:[0-9]+}", s.deleteCommentHandler).Methods(http.MethodDelete).Name(RouteDeleteComment)
	api.HandleFunc("/reports/{id:[0-9]+}", s.reportHandler).Methods(http.MethodPost).Name(RouteReport)
}

// AddUser registers u and the bearer token that authenticates as u.
func (s *Server) AddUser(token string, u models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tokens[token] = u.ID
	s.users[u.ID] = u
}

// RevokeToken makes token unauthorized from now on.
func (s *Server) RevokeToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, token)
}

// AddPost stores a post and returns its id. Ids grow with insertion order and
// the feed lists newer posts first.
func (s *Server) AddPost(p SeedPost) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now()
	}
	id := s.insertPost(&post{
		userID:     p.UserID,
		content:    p.Content,
		imageURL:   p.ImageURL,
		visibility: p.Visibility,
		category:   p.Category,
		createdAt:  createdAt,
	})
	for _, uid := range p.LikedBy {
		s.likes[id][uid] = true
	}
	return id
}

// AddComment stores a comment on postID and returns its id.
func (s *Server) AddComment(postID, userID int64, text string, parentID *int64, createdAt time.Time) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if createdAt.IsZero() {
		createdAt = s.now()
	}
	if parentID != nil {
		pid := *parentID
		parentID = &pid
	}
	return s.insertComment(&comment{postID: postID, userID: userID, parentID: parentID, text: text, createdAt: createdAt})
}

// Liked reports whether userID currently likes postID.
func (s *Server) Liked(postID, userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.likes[postID][userID]
}

// Reports returns the reports received so far.
func (s *Server) Reports() []Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Report(nil), s.reports...)
}

// PostCount returns the number of stored posts.
func (s *Server) PostCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.posts)
}

// FailNext makes the next request to the named route fail with status and an
// optional {"error": message} body. Calls queue up.
func (s *Server) FailNext(route string, status int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[route] = append(s.failures[route], failure{status: status, message: message})
}

// BeforeHandle registers fn to run before every request to the named route is handled.
func (s *Server) BeforeHandle(route string, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks[route] = fn
}

// insertPost must be called with s.mu held.
func (s *Server) insertPost(p *post) int64 {
	s.nextPostID++
	p.id = s.nextPostID
	s.posts[p.id] = p
	s.likes[p.id] = make(map[int64]bool)
	return p.id
}

// insertComment must be called with s.mu held.
func (s *Server) insertComment(c *comment) int64 {
	s.nextCommentID++
	c.id = s.nextCommentID
	s.comments[c.id] = c
	return c.id
}

// sortedPosts must be called with s.mu held.
func (s *Server) sortedPosts() []*post {
	posts := make([]*post, 0, len(s.posts))
	for _, p := range s.posts {
		posts = append(posts, p)
	}
	sort.Slice(posts, func(i, j int) bool {
		return posts[i].id > posts[j].id
	})
	return posts
}

// postComments must be called with s.mu held.
func (s *Server) postComments(postID int64) []*comment {
	var comments []*comment
	for _, c := range s.comments {
		if c.postID == postID {
			comments = append(comments, c)
		}
	}
	sort.Slice(comments, func(i, j int) bool {
		if comments[i].createdAt.Equal(comments[j].createdAt) {
			return comments[i].id < comments[j].id
		}
		return comments[i].createdAt.Before(comments[j].createdAt)
	})
	return comments
}
