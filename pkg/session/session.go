// Package session owns the lifecycle of the conversation identifier: it is
// loaded from (or created in) a persistent Store on start and removed on
// teardown.
package session

import (
	"context"
	"encoding/binary"
	stderrors "errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// StorageKey is the key the identifier is persisted under.
const StorageKey = "conversationId"

const suffixLen = 10

// InitResult describes the outcome of Session.Init.
type InitResult struct {
	ID string
	// Created is true when no identifier was stored and a new one was
	// generated. A reused identifier means history already exists upstream.
	Created bool
}

// Session is the explicit "which conversation is active" handle passed to the
// controller and the renderer.
type Session struct {
	store     Store
	key       string
	now       func() time.Time
	newSuffix func() string

	mu      sync.RWMutex
	id      string
	fixedID string
	// detached is set when a fixed id is cleared: the process keeps away from
	// the store, whose id belongs to other invocations.
	detached bool
}

type Option func(*Session)

// WithFixedID pins the identifier for this process; Init neither reads nor
// writes the store.
func WithFixedID(id string) Option {
	return func(s *Session) {
		s.fixedID = strings.TrimSpace(id)
	}
}

// WithClock replaces the time source used for new identifiers.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSuffixFunc replaces the random suffix generator used for new identifiers.
func WithSuffixFunc(f func() string) Option {
	return func(s *Session) {
		if f != nil {
			s.newSuffix = f
		}
	}
}

// WithKey changes the storage key, for stores shared between tools.
func WithKey(key string) Option {
	return func(s *Session) {
		if key != "" {
			s.key = key
		}
	}
}

func New(store Store, opts ...Option) *Session {
	s := &Session{
		store:     store,
		key:       StorageKey,
		now:       time.Now,
		newSuffix: RandomSuffix,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ID returns the active identifier, or "" before Init.
func (s *Session) ID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id
}

// Init loads the stored identifier or creates and stores a new one.
func (s *Session) Init(ctx context.Context) (InitResult, error) {
	s.mu.RLock()
	fixedID, detached := s.fixedID, s.detached
	s.mu.RUnlock()

	if fixedID != "" {
		s.setID(fixedID)
		return InitResult{ID: fixedID}, nil
	}
	if detached {
		id := s.generate()
		s.setID(id)
		log.Debug().Str("conversation_id", id).Msg("created unstored conversation id")
		return InitResult{ID: id, Created: true}, nil
	}
	if s.store == nil {
		return InitResult{}, errors.New("session: no store configured")
	}

	stored, err := s.store.Get(ctx, s.key)
	switch {
	case err == nil && strings.TrimSpace(stored) != "":
		s.setID(stored)
		log.Debug().Str("conversation_id", stored).Msg("reusing stored conversation id")
		return InitResult{ID: stored}, nil
	case err != nil && !stderrors.Is(err, ErrNotFound):
		return InitResult{}, errors.Wrap(err, "session: load conversation id")
	}

	id := s.generate()
	if err := s.store.Set(ctx, s.key, id); err != nil {
		return InitResult{}, errors.Wrap(err, "session: store conversation id")
	}
	s.setID(id)
	log.Debug().Str("conversation_id", id).Msg("created conversation id")
	return InitResult{ID: id, Created: true}, nil
}

// Clear forgets the active identifier; the next Init creates a new one. The
// stored identifier is removed unless the session was pinned with
// WithFixedID, in which case the store is left alone for good.
func (s *Session) Clear(ctx context.Context) error {
	s.mu.Lock()
	wasFixed := s.fixedID != ""
	if wasFixed {
		s.fixedID = ""
		s.detached = true
	}
	skipStore := s.detached
	s.id = ""
	s.mu.Unlock()

	if skipStore || s.store == nil {
		return nil
	}
	if err := s.store.Delete(ctx, s.key); err != nil {
		return errors.Wrap(err, "session: clear conversation id")
	}
	return nil
}

func (s *Session) setID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.id = id
}

func (s *Session) generate() string {
	return NewConversationID(s.now(), s.newSuffix())
}

// NewConversationID formats an identifier as thread-<unix millis>-<suffix>.
func NewConversationID(t time.Time, suffix string) string {
	return fmt.Sprintf("thread-%d-%s", t.UnixMilli(), suffix)
}

// RandomSuffix returns up to ten lowercase base36 characters.
func RandomSuffix() string {
	u := uuid.New()
	s := strconv.FormatUint(binary.BigEndian.Uint64(u[:8]), 36)
	if len(s) > suffixLen {
		s = s[:suffixLen]
	}
	return s
}
