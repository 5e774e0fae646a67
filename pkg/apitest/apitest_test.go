package apitest

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	log "github.com/sirupsen/logrus"

	"campusfeed/pkg/eventlog"
	"campusfeed/pkg/models"
)

const (
	aliceToken = "alice-token"
	bobToken   = "bob-token"
)

func TestMain(m *testing.M) {
	log.SetLevel(log.PanicLevel)
	exitCode := m.Run()
	os.Exit(exitCode)
}

func newTestServer(t *testing.T) *Server {
	t.Helper()

	var c Censor
	if err := c.LoadFromJSON(filepath.Join("test_data", "words.json")); err != nil {
		t.Fatalf("failed to load words: %v", err)
	}

	s := New(&c)
	s.AddUser(aliceToken, models.User{ID: 1, Name: "Alice", Email: "alice@campus.edu"})
	s.AddUser(bobToken, models.User{ID: 2, Name: "Bob", AvatarURL: "https://img/bob.png"})
	return s
}

func serve(s *Server, method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)
	return rr
}

func errorMessage(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var resp models.ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unexpected error while decoding error body %q: %v", rr.Body.String(), err)
	}
	return resp.Error
}

func TestCensor_Check(t *testing.T) {
	var c Censor
	if err := c.LoadFromJSON(filepath.Join("test_data", "words.json")); err != nil {
		t.Fatalf("failed to load words: %v", err)
	}

	tests := []struct {
		name string
		text string
		want bool
	}{
		{"No match", "hello world", false},
		{"Exact match", "this is spam", true},
		{"Upper case", "SPAMMM everywhere", true},
		{"Punctuation", "what a scam!", true},
		{"Exception", "the dog will scamper off", false},
		{"Substring pattern", "idiotic idea", true},
		{"Empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Check(tt.text); got != tt.want {
				t.Errorf("want %v, got %v", tt.want, got)
			}
		})
	}
}

func TestNewCensor(t *testing.T) {
	c, err := NewCensor(Word{Text: "Forbidden"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !c.Check("a forbidden word") {
		t.Errorf("want text rejected by plain word entry")
	}
	if c.Check("forbiddenness") {
		t.Errorf("want plain word entry to match whole words only")
	}

	if _, err := NewCensor(Word{Pattern: "("}); err == nil {
		t.Errorf("want error for invalid pattern")
	}

	var nilCensor *Censor
	if nilCensor.Check("spam") {
		t.Errorf("want nil censor to accept everything")
	}
}

func TestServer_auth(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{"no token", "", http.StatusUnauthorized},
		{"unknown token", "nope", http.StatusUnauthorized},
		{"valid token", aliceToken, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := serve(s, http.MethodGet, "/api/auth/me", tt.token, nil)
			if rr.Code != tt.want {
				t.Errorf("want status code %v, got %v", tt.want, rr.Code)
			}
		})
	}

	s.RevokeToken(aliceToken)
	if rr := serve(s, http.MethodGet, "/api/auth/me", aliceToken, nil); rr.Code != http.StatusUnauthorized {
		t.Errorf("want status code %v after revoke, got %v", http.StatusUnauthorized, rr.Code)
	}
}

func TestServer_me(t *testing.T) {
	s := newTestServer(t)

	rr := serve(s, http.MethodGet, "/api/auth/me", aliceToken, nil)
	var resp models.MeResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.User.ID != 1 || resp.User.Name != "Alice" {
		t.Errorf("want Alice, got %+v", resp.User)
	}
	if rr.Header().Get("X-Request-Id") == "" {
		t.Errorf("want generated X-Request-Id header")
	}
}

func TestServer_feed(t *testing.T) {
	s := newTestServer(t)
	first := s.AddPost(SeedPost{UserID: 2, Content: "first", Visibility: "campus", LikedBy: []int64{1, 2}})
	second := s.AddPost(SeedPost{UserID: 1, Content: "second", Category: "events"})
	s.AddComment(first, 1, "hi", nil, s.now())

	rr := serve(s, http.MethodGet, "/api/posts/feed", aliceToken, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("want status code %v, got %v", http.StatusOK, rr.Code)
	}

	var resp models.FeedResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp.Data) != 2 {
		t.Fatalf("want 2 posts, got %d", len(resp.Data))
	}
	if resp.Data[0].ID != second || resp.Data[1].ID != first {
		t.Errorf("want newest first, got ids %d, %d", resp.Data[0].ID, resp.Data[1].ID)
	}

	p := resp.Data[1]
	if p.UserName != "Bob" || p.AvatarURL != "https://img/bob.png" {
		t.Errorf("want author Bob with avatar, got %q %q", p.UserName, p.AvatarURL)
	}
	if p.LikeCount != 2 || !bool(p.IsLiked) {
		t.Errorf("want 2 likes liked by viewer, got %d %v", p.LikeCount, p.IsLiked)
	}
	if p.CommentCount != 1 {
		t.Errorf("want 1 comment, got %d", p.CommentCount)
	}
	if p.Visibility != "campus" {
		t.Errorf("want visibility campus, got %q", p.Visibility)
	}
}

func TestServer_createPost(t *testing.T) {
	tests := []struct {
		name    string
		body    models.NewPost
		want    int
		wantErr string
	}{
		{"valid", models.NewPost{Content: "hello campus"}, http.StatusCreated, ""},
		{"empty", models.NewPost{Content: "  "}, http.StatusBadRequest, "content is required"},
		{"banned", models.NewPost{Content: "buy spam now"}, http.StatusUnprocessableEntity, "banned word"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			rr := serve(s, http.MethodPost, "/api/posts", aliceToken, tt.body)
			if rr.Code != tt.want {
				t.Fatalf("want status code %v, got %v", tt.want, rr.Code)
			}
			if tt.wantErr != "" {
				if got := errorMessage(t, rr); got != tt.wantErr {
					t.Errorf("want error %q, got %q", tt.wantErr, got)
				}
				if s.PostCount() != 0 {
					t.Errorf("want no post stored, got %d", s.PostCount())
				}
				return
			}
			if s.PostCount() != 1 {
				t.Errorf("want 1 post stored, got %d", s.PostCount())
			}
		})
	}
}

func TestServer_createPostMultipart(t *testing.T) {
	s := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("content", "look")
	mw.WriteField("visibility", "campus")
	fw, _ := mw.CreateFormFile("image", "cat.png")
	fw.Write([]byte("png"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/posts", &buf)
	req.Header.Set("Authorization", "Bearer "+aliceToken)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusCreated {
		t.Fatalf("want status code %v, got %v: %s", http.StatusCreated, rr.Code, rr.Body.String())
	}

	rr = serve(s, http.MethodGet, "/api/posts/feed", aliceToken, nil)
	var resp models.FeedResponse
	json.Unmarshal(rr.Body.Bytes(), &resp)
	if len(resp.Data) != 1 {
		t.Fatalf("want 1 post, got %d", len(resp.Data))
	}
	if resp.Data[0].ImageURL != "/uploads/cat.png" || resp.Data[0].Visibility != "campus" {
		t.Errorf("want image and campus visibility, got %+v", resp.Data[0])
	}
}

func TestServer_deletePost(t *testing.T) {
	s := newTestServer(t)
	id := s.AddPost(SeedPost{UserID: 1, Content: "mine"})

	if rr := serve(s, http.MethodDelete, "/api/posts/999", aliceToken, nil); rr.Code != http.StatusNotFound {
		t.Errorf("want status code %v, got %v", http.StatusNotFound, rr.Code)
	}
	if rr := serve(s, http.MethodDelete, "/api/posts/1", bobToken, nil); rr.Code != http.StatusForbidden {
		t.Errorf("want status code %v, got %v", http.StatusForbidden, rr.Code)
	}
	if rr := serve(s, http.MethodDelete, "/api/posts/1", aliceToken, nil); rr.Code != http.StatusOK {
		t.Errorf("want status code %v, got %v", http.StatusOK, rr.Code)
	}
	if s.PostCount() != 0 {
		t.Errorf("want post %d deleted, got %d posts", id, s.PostCount())
	}
}

func TestServer_toggleLike(t *testing.T) {
	s := newTestServer(t)
	id := s.AddPost(SeedPost{UserID: 2, Content: "like me"})

	serve(s, http.MethodPost, "/api/likes/1", aliceToken, nil)
	if !s.Liked(id, 1) {
		t.Errorf("want liked after first toggle")
	}
	serve(s, http.MethodPost, "/api/likes/1", aliceToken, nil)
	if s.Liked(id, 1) {
		t.Errorf("want unliked after second toggle")
	}
	if rr := serve(s, http.MethodPost, "/api/likes/42", aliceToken, nil); rr.Code != http.StatusNotFound {
		t.Errorf("want status code %v, got %v", http.StatusNotFound, rr.Code)
	}
}

func TestServer_comments(t *testing.T) {
	s := newTestServer(t)
	postID := s.AddPost(SeedPost{UserID: 2, Content: "discuss"})

	rr := serve(s, http.MethodPost, "/api/comments/1", aliceToken, models.CommentRequest{Text: "top"})
	if rr.Code != http.StatusCreated {
		t.Fatalf("want status code %v, got %v", http.StatusCreated, rr.Code)
	}
	parent := int64(1)
	rr = serve(s, http.MethodPost, "/api/comments/1", bobToken, models.CommentRequest{Text: "reply", ParentID: &parent})
	if rr.Code != http.StatusCreated {
		t.Fatalf("want status code %v, got %v", http.StatusCreated, rr.Code)
	}
	missing := int64(77)
	rr = serve(s, http.MethodPost, "/api/comments/1", bobToken, models.CommentRequest{Text: "orphan", ParentID: &missing})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("want status code %v for unknown parent, got %v", http.StatusBadRequest, rr.Code)
	}

	rr = serve(s, http.MethodGet, "/api/comments/1", aliceToken, nil)
	var comments []models.RawComment
	if err := json.Unmarshal(rr.Body.Bytes(), &comments); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(comments) != 2 {
		t.Fatalf("want 2 comments on post %d, got %d", postID, len(comments))
	}
	if comments[0].ParentID != nil || comments[1].ParentID == nil || *comments[1].ParentID != 1 {
		t.Errorf("want second comment to reply to the first, got %+v", comments)
	}
	if comments[1].Name != "Bob" {
		t.Errorf("want reply by Bob, got %q", comments[1].Name)
	}

	if rr := serve(s, http.MethodPut, "/api/comments/1", bobToken, models.EditCommentRequest{Text: "x"}); rr.Code != http.StatusForbidden {
		t.Errorf("want status code %v editing someone else's comment, got %v", http.StatusForbidden, rr.Code)
	}
	if rr := serve(s, http.MethodPut, "/api/comments/1", aliceToken, models.EditCommentRequest{Text: "edited"}); rr.Code != http.StatusOK {
		t.Errorf("want status code %v, got %v", http.StatusOK, rr.Code)
	}
	if rr := serve(s, http.MethodDelete, "/api/comments/1", aliceToken, nil); rr.Code != http.StatusOK {
		t.Errorf("want status code %v, got %v", http.StatusOK, rr.Code)
	}

	rr = serve(s, http.MethodGet, "/api/comments/1", aliceToken, nil)
	comments = nil
	json.Unmarshal(rr.Body.Bytes(), &comments)
	if len(comments) != 1 || comments[0].Text != "reply" {
		t.Errorf("want only the reply left, got %+v", comments)
	}
}

func TestServer_report(t *testing.T) {
	s := newTestServer(t)
	s.AddPost(SeedPost{UserID: 2, Content: "suspicious"})

	if rr := serve(s, http.MethodPost, "/api/reports/1", aliceToken, models.ReportRequest{}); rr.Code != http.StatusBadRequest {
		t.Errorf("want status code %v without reason, got %v", http.StatusBadRequest, rr.Code)
	}
	if rr := serve(s, http.MethodPost, "/api/reports/1", aliceToken, models.ReportRequest{Reason: "spam"}); rr.Code != http.StatusCreated {
		t.Errorf("want status code %v, got %v", http.StatusCreated, rr.Code)
	}

	want := []Report{{PostID: 1, UserID: 1, Reason: "spam"}}
	got := s.Reports()
	if len(got) != 1 || got[0] != want[0] {
		t.Errorf("want %+v, got %+v", want, got)
	}
}

func TestServer_FailNext(t *testing.T) {
	s := newTestServer(t)
	s.FailNext(RouteFeed, http.StatusInternalServerError, "boom")
	s.FailNext(RouteFeed, http.StatusBadGateway, "")

	rr := serve(s, http.MethodGet, "/api/posts/feed", aliceToken, nil)
	if rr.Code != http.StatusInternalServerError {
		t.Errorf("want status code %v, got %v", http.StatusInternalServerError, rr.Code)
	}
	if got := errorMessage(t, rr); got != "boom" {
		t.Errorf("want error %q, got %q", "boom", got)
	}

	rr = serve(s, http.MethodGet, "/api/posts/feed", aliceToken, nil)
	if rr.Code != http.StatusBadGateway || strings.TrimSpace(rr.Body.String()) != "" {
		t.Errorf("want bare %v, got %v %q", http.StatusBadGateway, rr.Code, rr.Body.String())
	}

	if rr := serve(s, http.MethodGet, "/api/posts/feed", aliceToken, nil); rr.Code != http.StatusOK {
		t.Errorf("want status code %v once failures are used up, got %v", http.StatusOK, rr.Code)
	}
}

func TestServer_BeforeHandle(t *testing.T) {
	s := newTestServer(t)
	calls := 0
	s.BeforeHandle(RouteMe, func() { calls++ })

	serve(s, http.MethodGet, "/api/auth/me", aliceToken, nil)
	serve(s, http.MethodGet, "/api/posts/feed", aliceToken, nil)

	if calls != 1 {
		t.Errorf("want hook called once, got %d", calls)
	}
}

type entrySink struct {
	mu      sync.Mutex
	entries []eventlog.Entry
}

func (s *entrySink) Record(e eventlog.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, e)
}

func TestServer_SetRecorder(t *testing.T) {
	s := newTestServer(t)
	var sink entrySink
	s.SetRecorder("feedapi-test", &sink)

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.Header.Set("X-Request-Id", "req-1")
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)

	if len(sink.entries) != 1 {
		t.Fatalf("want 1 entry, got %d", len(sink.entries))
	}
	e := sink.entries[0]
	if e.RequestID != "req-1" || e.StatusCode != http.StatusUnauthorized || e.Service != "feedapi-test" {
		t.Errorf("unexpected entry %+v", e)
	}
	if e.Path != "/api/auth/me" || e.Method != http.MethodGet {
		t.Errorf("want GET /api/auth/me, got %s %s", e.Method, e.Path)
	}
}

func TestLoadSeed(t *testing.T) {
	seed, err := LoadSeed(filepath.Join("test_data", "seed.json"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s := New(nil)
	if err := s.Apply(seed); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if s.PostCount() != 2 {
		t.Errorf("want 2 posts, got %d", s.PostCount())
	}
	if !s.Liked(1, 1) {
		t.Errorf("want post 1 liked by user 1")
	}

	rr := serve(s, http.MethodGet, "/api/comments/1", "alice-token", nil)
	var comments []models.RawComment
	if err := json.Unmarshal(rr.Body.Bytes(), &comments); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(comments) != 2 {
		t.Fatalf("want 2 comments, got %d", len(comments))
	}
	if comments[1].ParentID == nil || *comments[1].ParentID != comments[0].ID {
		t.Errorf("want second comment to reply to the first, got %+v", comments[1])
	}
	if comments[0].CreatedAt != "2024-12-02T09:15:00Z" {
		t.Errorf("want seeded time kept, got %q", comments[0].CreatedAt)
	}
}

func TestApplySeedErrors(t *testing.T) {
	tests := []struct {
		name string
		seed Seed
	}{
		{"user without token", Seed{Users: []SeedUser{{User: models.User{ID: 1}}}}},
		{"reply to later comment", Seed{Posts: []SeedThread{{Comments: []SeedComment{{Text: "a", ReplyTo: 1}}}}}},
		{"negative reply", Seed{Posts: []SeedThread{{Comments: []SeedComment{{Text: "a"}, {Text: "b", ReplyTo: -1}}}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := New(nil).Apply(tt.seed); err == nil {
				t.Errorf("want error")
			}
		})
	}
}
