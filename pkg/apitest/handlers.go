package apitest

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"campusfeed/pkg/eventlog"
	"campusfeed/pkg/models"
)

const maxUploadSize = 10 << 20

var errBadID = errors.New("invalid id")

func (s *Server) meHandler(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	u, ok := s.users[userID(r.Context())]
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusUnauthorized, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, models.MeResponse{User: u})
}

func (s *Server) feedHandler(w http.ResponseWriter, r *http.Request) {
	viewer := userID(r.Context())

	s.mu.Lock()
	posts := s.sortedPosts()
	data := make([]models.RawPost, 0, len(posts))
	for _, p := range posts {
		author := s.users[p.userID]
		data = append(data, models.RawPost{
			ID:           p.id,
			UserID:       p.userID,
			UserName:     author.Name,
			AvatarURL:    author.AvatarURL,
			Content:      p.content,
			ImageURL:     p.imageURL,
			LikeCount:    len(s.likes[p.id]),
			IsLiked:      models.Flag(s.likes[p.id][viewer]),
			CommentCount: len(s.postComments(p.id)),
			CreatedAt:    p.createdAt.UTC().Format(time.RFC3339),
			Visibility:   p.visibility,
			Category:     p.category,
		})
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, models.FeedResponse{Data: data})
}

func (s *Server) createPostHandler(w http.ResponseWriter, r *http.Request) {
	sID := eventlog.Shorten(GetRequestID(r.Context()))

	np, imageURL, err := decodeNewPost(r)
	if err != nil {
		log.Errorf("[createPostHandler][%s] failed to decode request body: %v", sID, err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(np.Content) == "" && imageURL == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}
	if s.censor.Check(np.Content) {
		log.Infof("[createPostHandler][%s] post rejected by censor", sID)
		writeError(w, http.StatusUnprocessableEntity, "banned word")
		return
	}

	visibility := np.Visibility
	if visibility == "" {
		visibility = "public"
	}

	s.mu.Lock()
	id := s.insertPost(&post{
		userID:     userID(r.Context()),
		content:    np.Content,
		imageURL:   imageURL,
		visibility: visibility,
		category:   np.Category,
		createdAt:  s.now(),
	})
	s.mu.Unlock()

	log.Debugf("[createPostHandler][%s] created post %d", sID, id)
	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

// decodeNewPost reads a JSON or multipart/form-data post. For multipart
// requests with a file in the image field it returns the stored image URL.
func decodeNewPost(r *http.Request) (models.NewPost, string, error) {
	var np models.NewPost

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		defer r.Body.Close()
		err := json.NewDecoder(r.Body).Decode(&np)
		return np, "", err
	}

	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		return np, "", err
	}
	np.Content = r.FormValue("content")
	np.Visibility = r.FormValue("visibility")
	np.Category = r.FormValue("category")

	file, header, err := r.FormFile("image")
	if errors.Is(err, http.ErrMissingFile) {
		return np, "", nil
	}
	if err != nil {
		return np, "", err
	}
	defer file.Close()

	return np, "/uploads/" + header.Filename, nil
}

func (s *Server) deletePostHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.posts[id]
	if !ok {
		writeError(w, http.StatusNotFound, "post not found")
		return
	}
	if p.userID != userID(r.Context()) {
		writeError(w, http.StatusForbidden, "not the author of this post")
		return
	}

	delete(s.posts, id)
	delete(s.likes, id)
	for cid, c := range s.comments {
		if c.postID == id {
			delete(s.comments, cid)
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

func (s *Server) toggleLikeHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	uid := userID(r.Context())

	s.mu.Lock()
	likes, ok := s.likes[id]
	if !ok {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "post not found")
		return
	}
	liked := !likes[uid]
	if liked {
		likes[uid] = true
	} else {
		delete(likes, uid)
	}
	n := len(likes)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"liked": liked, "likes": n})
}

func (s *Server) commentsHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	if _, ok := s.posts[id]; !ok {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "post not found")
		return
	}
	comments := s.postComments(id)
	raw := make([]models.RawComment, 0, len(comments))
	for _, c := range comments {
		author := s.users[c.userID]
		raw = append(raw, models.RawComment{
			ID:        c.id,
			Name:      author.Name,
			UserID:    c.userID,
			AvatarURL: author.AvatarURL,
			Text:      c.text,
			ParentID:  c.parentID,
			CreatedAt: c.createdAt.UTC().Format(time.RFC3339),
		})
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, raw)
}

func (s *Server) createCommentHandler(w http.ResponseWriter, r *http.Request) {
	sID := eventlog.Shorten(GetRequestID(r.Context()))

	postID, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req models.CommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Errorf("[createCommentHandler][%s] failed to decode request body: %v", sID, err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer r.Body.Close()

	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.posts[postID]; !ok {
		writeError(w, http.StatusNotFound, "post not found")
		return
	}
	if req.ParentID != nil {
		parent, ok := s.comments[*req.ParentID]
		if !ok || parent.postID != postID {
			writeError(w, http.StatusBadRequest, "parent comment not found")
			return
		}
	}

	var parentID *int64
	if req.ParentID != nil {
		v := *req.ParentID
		parentID = &v
	}
	id := s.insertComment(&comment{
		postID:    postID,
		userID:    userID(r.Context()),
		parentID:  parentID,
		text:      req.Text,
		createdAt: s.now(),
	})

	log.Debugf("[createCommentHandler][%s] created comment %d on post %d", sID, id, postID)
	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (s *Server) editCommentHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req models.EditCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer r.Body.Close()

	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.ownComment(w, r, id)
	if !ok {
		return
	}
	c.text = req.Text
	writeJSON(w, http.StatusOK, nil)
}

func (s *Server) deleteCommentHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ownComment(w, r, id); !ok {
		return
	}
	// Replies stay; clients show them as top-level comments.
	delete(s.comments, id)
	writeJSON(w, http.StatusOK, nil)
}

// ownComment must be called with s.mu held. It writes the error response
// itself when the comment is missing or belongs to someone else.
func (s *Server) ownComment(w http.ResponseWriter, r *http.Request, id int64) (*comment, bool) {
	c, ok := s.comments[id]
	if !ok {
		writeError(w, http.StatusNotFound, "comment not found")
		return nil, false
	}
	if c.userID != userID(r.Context()) {
		writeError(w, http.StatusForbidden, "not the author of this comment")
		return nil, false
	}
	return c, true
}

func (s *Server) reportHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req models.ReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer r.Body.Close()

	if strings.TrimSpace(req.Reason) == "" {
		writeError(w, http.StatusBadRequest, "reason is required")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.posts[id]; !ok {
		writeError(w, http.StatusNotFound, "post not found")
		return
	}
	s.reports = append(s.reports, Report{PostID: id, UserID: userID(r.Context()), Reason: req.Reason})
	writeJSON(w, http.StatusCreated, nil)
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		return 0, errBadID
	}
	return id, nil
}
