// Package session holds the identity token and the current user of the feed client.
//
// Every token change is persisted and, for a non-empty token, verified by
// asking the service who the token belongs to. A failed check tears the
// session down.
package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	log "github.com/sirupsen/logrus"

	"campusfeed/pkg/models"
)

var (
	// ErrInvalidSession is returned when the service rejected the token check.
	ErrInvalidSession = errors.New("session is no longer valid")
	ErrNotStarted     = errors.New("session not started")
)

// Identifier resolves the current token to a user.
type Identifier interface {
	Me(ctx context.Context) (models.User, error)
}

// State is a snapshot passed to change listeners.
type State struct {
	Token string
	User  *models.User
	Ready bool
}

type Listener func(State)

type Session struct {
	store TokenStore

	mu        sync.Mutex
	ids       Identifier
	token     string
	user      *models.User
	ready     bool
	gen       uint64
	listeners map[uint64]Listener
	nextID    uint64
}

func New(store TokenStore) *Session {
	return &Session{
		store:     store,
		listeners: make(map[uint64]Listener),
	}
}

// Start restores the persisted token and verifies it with ids. It returns
// ErrInvalidSession when the restored token was rejected.
func (s *Session) Start(ctx context.Context, ids Identifier) error {
	token, err := s.store.Load()
	if err != nil {
		log.Errorf("[Session.Start] failed to load token: %v", err)
		token = ""
	}

	s.mu.Lock()
	s.ids = ids
	s.mu.Unlock()

	return s.change(ctx, token, nil)
}

// Login stores a freshly issued token and the user returned with it. The
// user is then refreshed from the service.
func (s *Session) Login(ctx context.Context, token string, user *models.User) error {
	if token == "" {
		return errors.New("login requires a token")
	}
	return s.change(ctx, token, user)
}

// SetToken replaces the token without a known user.
func (s *Session) SetToken(ctx context.Context, token string) error {
	return s.change(ctx, token, nil)
}

// Logout clears the token and the user. The cleared token is persisted as an empty value.
func (s *Session) Logout() error {
	s.mu.Lock()
	s.gen++
	s.token = ""
	s.user = nil
	s.ready = true
	s.mu.Unlock()

	err := s.persist("")
	s.notify()
	return err
}

// Token returns the current token. It satisfies gateway.TokenSource.
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

func (s *Session) User() (models.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.user == nil {
		return models.User{}, false
	}
	return *s.user, true
}

// Ready reports whether the first token check has finished.
func (s *Session) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// UpdateUser merges the non-empty fields of patch into the current user.
func (s *Session) UpdateUser(patch models.User) {
	s.mu.Lock()
	u := models.User{}
	if s.user != nil {
		u = *s.user
	}
	if patch.ID != 0 {
		u.ID = patch.ID
	}
	if patch.Name != "" {
		u.Name = patch.Name
	}
	if patch.Email != "" {
		u.Email = patch.Email
	}
	if patch.AvatarURL != "" {
		u.AvatarURL = patch.AvatarURL
	}
	if patch.Role != "" {
		u.Role = patch.Role
	}
	s.user = &u
	s.mu.Unlock()

	s.notify()
}

// OnChange registers l to be called after every token or user change.
func (s *Session) OnChange(l Listener) (remove func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.listeners[id] = l

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

func (s *Session) change(ctx context.Context, token string, user *models.User) error {
	s.mu.Lock()
	ids := s.ids
	if ids == nil {
		s.mu.Unlock()
		return ErrNotStarted
	}
	s.gen++
	gen := s.gen
	s.token = token
	s.user = cloneUser(user)
	s.mu.Unlock()

	persistErr := s.persist(token)
	s.notify()

	if token == "" {
		s.mu.Lock()
		if gen == s.gen {
			s.ready = true
		}
		s.mu.Unlock()
		return persistErr
	}

	return errors.Join(persistErr, s.whoAmI(ctx, ids, gen))
}

// whoAmI refreshes the user for the token of generation gen. Results for an
// older token are dropped.
func (s *Session) whoAmI(ctx context.Context, ids Identifier, gen uint64) error {
	u, err := ids.Me(ctx)

	s.mu.Lock()
	if gen != s.gen {
		s.mu.Unlock()
		log.Debugf("[Session.whoAmI] token changed while checking, result dropped")
		return nil
	}
	s.ready = true
	if err != nil {
		s.gen++
		s.token = ""
		s.user = nil
		s.mu.Unlock()

		log.Warnf("[Session.whoAmI] failed to fetch user, logging out: %v", err)
		if perr := s.persist(""); perr != nil {
			err = errors.Join(err, perr)
		}
		s.notify()
		return fmt.Errorf("%w: %w", ErrInvalidSession, err)
	}
	s.user = &u
	s.mu.Unlock()

	log.Debugf("[Session.whoAmI] signed in as user %d", u.ID)
	s.notify()
	return nil
}

func (s *Session) persist(token string) error {
	if err := s.store.Save(token); err != nil {
		log.Errorf("[Session.persist] failed to save token: %v", err)
		return err
	}
	return nil
}

func (s *Session) notify() {
	s.mu.Lock()
	st := State{Token: s.token, User: cloneUser(s.user), Ready: s.ready}
	ids := make([]uint64, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	listeners := make([]Listener, 0, len(ids))
	for _, id := range ids {
		listeners = append(listeners, s.listeners[id])
	}
	s.mu.Unlock()

	for _, l := range listeners {
		l(st)
	}
}

func cloneUser(u *models.User) *models.User {
	if u == nil {
		return nil
	}
	cp := *u
	return &cp
}
