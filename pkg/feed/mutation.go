package feed

import (
	"context"

	log "github.com/sirupsen/logrus"

	"campusfeed/pkg/gateway"
	"campusfeed/pkg/models"
)

const createPostFailed = "failed to create post"

type State int

// A mutation starts Pending and ends either Confirmed or RolledBack. RolledBack
// means the service did not confirm the change; the mutation's compensation,
// if it has one, has already run.
const (
	Pending State = iota
	Confirmed
	RolledBack
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Confirmed:
		return "confirmed"
	case RolledBack:
		return "rolled back"
	}
	return "unknown"
}

type Op string

const (
	OpToggleLike    Op = "ToggleLike"
	OpAddComment    Op = "AddComment"
	OpEditComment   Op = "EditComment"
	OpDeleteComment Op = "DeleteComment"
	OpDeletePost    Op = "DeletePost"
	OpCreatePost    Op = "CreatePost"
	OpReportPost    Op = "ReportPost"
)

// Result is the outcome of one mutation. Err is the request failure and is set
// exactly when State is RolledBack. Mutations without a local transform, such as
// ReportPost and the comment operations, leave the cache as it was.
type Result struct {
	Op     Op
	PostID int64
	State  State
	Err    error
}

func (r Result) OK() bool {
	return r.State == Confirmed
}

// PostError is the user-displayable failure of CreatePost.
type PostError struct {
	Message string
	Err     error
}

func (e *PostError) Error() string {
	return e.Message
}

func (e *PostError) Unwrap() error {
	return e.Err
}

// mutation describes one pass through the optimistic protocol:
// apply locally, send, then confirm or compensate, then settle.
type mutation struct {
	op     Op
	postID int64

	apply      func()
	send       func(ctx context.Context) error
	confirm    func(ctx context.Context)
	compensate func(ctx context.Context)
	settle     func(ctx context.Context)
}

func (s *Store) run(ctx context.Context, m mutation) Result {
	res := Result{Op: m.op, PostID: m.postID, State: Pending}

	if m.apply != nil {
		m.apply()
	}

	err := m.send(ctx)

	// Follow-up work runs even when the caller's context ended with the request.
	bg := context.WithoutCancel(ctx)
	if err != nil {
		res.State = RolledBack
		res.Err = err
		logFailure(m.op, m.postID, err)
		if m.compensate != nil {
			m.compensate(bg)
		}
	} else {
		res.State = Confirmed
		if m.confirm != nil {
			m.confirm(bg)
		}
	}

	if m.settle != nil {
		m.settle(bg)
	}

	log.Debugf("[Store.%s] post %d: %v", m.op, m.postID, res.State)
	return res
}

// ToggleLike flips the liked flag and moves the like count by one before the
// request is sent. A failed request is compensated by reloading the whole feed.
func (s *Store) ToggleLike(ctx context.Context, postID int64) Result {
	return s.run(ctx, mutation{
		op:     OpToggleLike,
		postID: postID,
		apply: func() {
			s.update(postID, func(p *models.Post) {
				p.IsLiked = !p.IsLiked
				if p.IsLiked {
					p.Likes++
				} else {
					p.Likes--
				}
			})
		},
		send: func(ctx context.Context) error {
			return s.gw.ToggleLike(ctx, postID)
		},
		confirm: func(context.Context) {
			s.counter.Bump()
		},
		compensate: func(ctx context.Context) {
			s.LoadFeed(ctx)
		},
	})
}

// AddComment posts a comment without inserting it locally; the comment set is
// refetched afterwards so the new comment arrives with its server id and time.
func (s *Store) AddComment(ctx context.Context, postID int64, text string, parentID *int64) Result {
	return s.run(ctx, mutation{
		op:     OpAddComment,
		postID: postID,
		send: func(ctx context.Context) error {
			return s.gw.CreateComment(ctx, postID, text, parentID)
		},
		confirm: s.bump,
		settle:  s.refetchComments(postID),
	})
}

func (s *Store) EditComment(ctx context.Context, commentID, postID int64, text string) Result {
	return s.run(ctx, mutation{
		op:     OpEditComment,
		postID: postID,
		send: func(ctx context.Context) error {
			return s.gw.EditComment(ctx, commentID, text)
		},
		confirm: s.bump,
		settle:  s.refetchComments(postID),
	})
}

func (s *Store) DeleteComment(ctx context.Context, commentID, postID int64) Result {
	return s.run(ctx, mutation{
		op:     OpDeleteComment,
		postID: postID,
		send: func(ctx context.Context) error {
			return s.gw.DeleteComment(ctx, commentID)
		},
		confirm: s.bump,
		settle:  s.refetchComments(postID),
	})
}

// DeletePost removes the post from the cache only after the service confirmed it.
func (s *Store) DeletePost(ctx context.Context, postID int64) Result {
	return s.run(ctx, mutation{
		op:     OpDeletePost,
		postID: postID,
		send: func(ctx context.Context) error {
			return s.gw.DeletePost(ctx, postID)
		},
		confirm: func(context.Context) {
			s.remove(postID)
			s.counter.Bump()
		},
	})
}

// CreatePost sends a new post and reloads the feed on success. On failure
// Result.Err is a *PostError whose Message is the service's reason when it
// gave one.
func (s *Store) CreatePost(ctx context.Context, p models.NewPost) Result {
	return s.run(ctx, mutation{
		op: OpCreatePost,
		send: func(ctx context.Context) error {
			err := s.gw.CreatePost(ctx, p)
			if err == nil {
				return nil
			}
			msg := gateway.Message(err)
			if msg == "" {
				msg = createPostFailed
			}
			return &PostError{Message: msg, Err: err}
		},
		confirm: func(ctx context.Context) {
			s.counter.Bump()
			s.LoadFeed(ctx)
		},
	})
}

// ReportPost is fire-and-forget: failures are logged and the cache is never touched.
func (s *Store) ReportPost(ctx context.Context, postID int64, reason string) Result {
	return s.run(ctx, mutation{
		op:     OpReportPost,
		postID: postID,
		send: func(ctx context.Context) error {
			return s.gw.ReportPost(ctx, postID, reason)
		},
	})
}

func (s *Store) bump(context.Context) {
	s.counter.Bump()
}

func (s *Store) refetchComments(postID int64) func(context.Context) {
	return func(ctx context.Context) {
		s.FetchComments(ctx, postID)
	}
}

func logFailure(op Op, postID int64, err error) {
	switch gateway.Classify(err) {
	case gateway.ClassUnauthorized:
		log.Warnf("[Store.%s] post %d: unauthorized, session must re-authenticate: %v", op, postID, err)
	case gateway.ClassTransport:
		log.Errorf("[Store.%s] post %d: service unreachable: %v", op, postID, err)
	default:
		log.Errorf("[Store.%s] post %d: %v", op, postID, err)
	}
}
