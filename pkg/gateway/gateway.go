// Package gateway is the single HTTP client of the feed service. It attaches the
// session token and a request id to every call and normalizes failures into the
// error types declared in errors.go.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gofrs/uuid"
	log "github.com/sirupsen/logrus"

	"campusfeed/pkg/eventlog"
	"campusfeed/pkg/models"
)

const (
	defaultTimeout = 10 * time.Second
	maxErrorBody   = 1 << 16
)

// TokenSource supplies the bearer token for outgoing requests. An empty token
// means the request is sent without an Authorization header.
type TokenSource interface {
	Token() string
}

type TokenFunc func() string

func (f TokenFunc) Token() string {
	return f()
}

type Config struct {
	BaseURL     string
	Timeout     time.Duration
	ServiceName string
}

type Client struct {
	baseURL *url.URL
	http    *http.Client
	tokens  TokenSource
	service string
	rec     eventlog.Recorder
}

func New(conf Config, tokens TokenSource) (*Client, error) {
	if conf.BaseURL == "" {
		return nil, errors.New("gateway: base URL is empty")
	}
	u, err := url.Parse(conf.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("gateway: invalid base URL %q: %w", conf.BaseURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("gateway: base URL %q must be absolute", conf.BaseURL)
	}

	timeout := conf.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if tokens == nil {
		tokens = TokenFunc(func() string { return "" })
	}

	return &Client{
		baseURL: u,
		http:    &http.Client{Timeout: timeout},
		tokens:  tokens,
		service: conf.ServiceName,
	}, nil
}

// SetRecorder makes the client report every completed request to r.
func (c *Client) SetRecorder(r eventlog.Recorder) {
	c.rec = r
}

// Me returns the user the current token belongs to.
func (c *Client) Me(ctx context.Context) (models.User, error) {
	var resp models.MeResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/auth/me", nil, &resp); err != nil {
		return models.User{}, err
	}
	return resp.User, nil
}

func (c *Client) Feed(ctx context.Context) ([]models.RawPost, error) {
	var resp models.FeedResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/posts/feed", nil, &resp); err != nil {
		return nil, err
	}
	if resp.Data == nil {
		return []models.RawPost{}, nil
	}
	return resp.Data, nil
}

func (c *Client) ToggleLike(ctx context.Context, postID int64) error {
	return c.doJSON(ctx, http.MethodPost, "/api/likes/"+itoa(postID), nil, nil)
}

func (c *Client) Comments(ctx context.Context, postID int64) ([]models.RawComment, error) {
	var comments []models.RawComment
	if err := c.doJSON(ctx, http.MethodGet, "/api/comments/"+itoa(postID), nil, &comments); err != nil {
		return nil, err
	}
	if comments == nil {
		return []models.RawComment{}, nil
	}
	return comments, nil
}

// CreateComment posts a comment on postID. A nil parentID creates a top-level comment.
func (c *Client) CreateComment(ctx context.Context, postID int64, text string, parentID *int64) error {
	body := models.CommentRequest{Text: text, ParentID: parentID}
	return c.doJSON(ctx, http.MethodPost, "/api/comments/"+itoa(postID), body, nil)
}

func (c *Client) EditComment(ctx context.Context, commentID int64, text string) error {
	body := models.EditCommentRequest{Text: text}
	return c.doJSON(ctx, http.MethodPut, "/api/comments/"+itoa(commentID), body, nil)
}

func (c *Client) DeleteComment(ctx context.Context, commentID int64) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/comments/"+itoa(commentID), nil, nil)
}

func (c *Client) DeletePost(ctx context.Context, postID int64) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/posts/"+itoa(postID), nil, nil)
}

// CreatePost sends p as JSON, or as multipart/form-data when it carries an image.
func (c *Client) CreatePost(ctx context.Context, p models.NewPost) error {
	if p.Image == nil {
		return c.doJSON(ctx, http.MethodPost, "/api/posts", p, nil)
	}

	body, contentType, err := multipartPost(p)
	if err != nil {
		return fmt.Errorf("error building multipart body: %w", err)
	}
	return c.do(ctx, http.MethodPost, "/api/posts", body, contentType, nil)
}

func (c *Client) ReportPost(ctx context.Context, postID int64, reason string) error {
	body := models.ReportRequest{Reason: reason}
	return c.doJSON(ctx, http.MethodPost, "/api/reports/"+itoa(postID), body, nil)
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	if in == nil {
		return c.do(ctx, method, path, nil, "", out)
	}

	b, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("error encoding request body for %s %s: %w", method, path, err)
	}
	return c.do(ctx, method, path, bytes.NewReader(b), "application/json", out)
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) (err error) {
	target := c.baseURL.JoinPath(path).String()

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("error creating request %s %s: %w", method, path, err)
	}

	reqID, err := uuid.NewV4()
	if err != nil {
		return fmt.Errorf("error generating request id: %w", err)
	}
	req.Header.Set("X-Request-Id", reqID.String())
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token := c.tokens.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	sID := eventlog.Shorten(reqID.String())
	start := time.Now()
	status := 0
	defer func() {
		c.record(reqID.String(), method, path, status, time.Since(start), err)
	}()

	resp, err := c.http.Do(req)
	if err != nil {
		log.Debugf("[gateway][%s] %s %s failed: %v", sID, method, path, err)
		return fmt.Errorf("%w: %s %s: %v", ErrTransport, method, path, err)
	}
	defer resp.Body.Close()
	status = resp.StatusCode
	log.Debugf("[gateway][%s] %s %s -> %d", sID, method, path, status)

	if err := checkStatus(resp, method, path); err != nil {
		return err
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("error decoding response from %s %s: %w", method, path, err)
	}
	return nil
}

func checkStatus(resp *http.Response, method, path string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var msg string
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err == nil {
		var errResp models.ErrorResponse
		if json.Unmarshal(b, &errResp) == nil {
			msg = errResp.Error
		}
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		return fmt.Errorf("%s %s: %w", method, path, &StatusError{Code: resp.StatusCode, Message: msg})
	case http.StatusNotFound:
		return &ErrNotFound{msg: method + " " + path + " returned 404", Message: msg}
	}
	return &StatusError{Code: resp.StatusCode, Message: msg}
}

func (c *Client) record(reqID, method, path string, status int, d time.Duration, err error) {
	if c.rec == nil {
		return
	}

	entry := eventlog.Entry{
		Timestamp:  time.Now(),
		StatusCode: status,
		RequestID:  reqID,
		Method:     method,
		Path:       path,
		Duration:   d.Seconds(),
		Service:    c.service,
	}
	if err != nil {
		entry.Error = err.Error()
	}
	c.rec.Record(entry)
}

func multipartPost(p models.NewPost) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fields := []struct{ name, value string }{
		{"content", p.Content},
		{"visibility", p.Visibility},
		{"category", p.Category},
	}
	for _, f := range fields {
		if f.value == "" && f.name != "content" {
			continue
		}
		if err := mw.WriteField(f.name, f.value); err != nil {
			return nil, "", err
		}
	}

	if p.Image.Data == nil {
		return nil, "", errors.New("image attachment has no data")
	}
	filename := p.Image.Filename
	if filename == "" {
		filename = "image"
	}
	fw, err := mw.CreateFormFile("image", filename)
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(fw, p.Image.Data); err != nil {
		return nil, "", err
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}

	return &buf, mw.FormDataContentType(), nil
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
