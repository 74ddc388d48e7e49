package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/fjod/cheeseshop/internal/domain"
	"github.com/fjod/cheeseshop/internal/repository"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// CartStore persists cart lines per session so carts outlive the process
// and the in-memory session cache.
type CartStore interface {
	LoadCart(ctx context.Context, sessionID string) ([]domain.CartLineItem, error)
	SaveCart(ctx context.Context, sessionID string, lines []domain.CartLineItem) error
	DeleteCart(ctx context.Context, sessionID string) error
}

// Registry hands out the live Session for an identity, keeping a bounded
// number of them in memory. Sessions that are acquired or checking out are
// pinned: the cache may drop them, but Get keeps returning the same object
// until they are released and idle again.
type Registry struct {
	sessions *lru.Cache[string, *Session]
	store    CartStore
	logger   *zap.Logger
	sfg      singleflight.Group

	mu     sync.Mutex
	pinned map[string]*pin
}

type pin struct {
	s    *Session
	refs int
}

// NewRegistry creates a registry holding at most size sessions. store may
// be nil, in which case carts live only in memory.
func NewRegistry(size int, store CartStore, logger *zap.Logger) (*Registry, error) {
	r := &Registry{
		store:  store,
		logger: logger,
		pinned: make(map[string]*pin),
	}
	sessions, err := lru.NewWithEvict[string, *Session](size, r.onEvict)
	if err != nil {
		return nil, fmt.Errorf("failed to create session cache: %w", err)
	}
	r.sessions = sessions
	return r, nil
}

// onEvict parks a session the cache dropped in the middle of a checkout.
func (r *Registry) onEvict(id string, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pinned[id]; ok {
		return
	}
	if s.Committing() {
		r.pinned[id] = &pin{s: s}
	}
}

// Get returns the session for id, restoring its cart from the store when
// it is not in memory. Store failures degrade to an empty cart.
func (r *Registry) Get(ctx context.Context, id string) *Session {
	if s, ok := r.getPinned(id); ok {
		return s
	}
	if s, ok := r.sessions.Get(id); ok {
		return s
	}

	v, _, _ := r.sfg.Do(id, func() (interface{}, error) {
		if s, ok := r.getPinned(id); ok {
			return s, nil
		}
		if s, ok := r.sessions.Get(id); ok {
			return s, nil
		}
		s := r.restore(ctx, id)
		r.sessions.Add(id, s)
		return s, nil
	})
	return v.(*Session)
}

// Acquire returns the session for id pinned in memory until release is
// called. Mutations and checkouts go through Acquire so the cache cannot
// swap the session out while they run.
func (r *Registry) Acquire(ctx context.Context, id string) (s *Session, release func()) {
	s = r.Get(ctx, id)

	r.mu.Lock()
	p, ok := r.pinned[id]
	if !ok {
		if cur, ok := r.sessions.Peek(id); ok {
			s = cur
		}
		p = &pin{s: s}
		r.pinned[id] = p
	}
	p.refs++
	r.mu.Unlock()

	var once sync.Once
	return p.s, func() { once.Do(func() { r.release(id, p) }) }
}

func (r *Registry) release(id string, p *pin) {
	r.mu.Lock()
	p.refs--
	unpin := p.refs == 0 && !p.s.Committing()
	if unpin {
		delete(r.pinned, id)
	}
	r.mu.Unlock()

	if unpin {
		r.sessions.Add(id, p.s)
	}
}

// getPinned returns a pinned session, moving it back into the cache once
// nobody holds it and its checkout is over.
func (r *Registry) getPinned(id string) (*Session, bool) {
	r.mu.Lock()
	p, ok := r.pinned[id]
	if !ok {
		r.mu.Unlock()
		return nil, false
	}
	unpin := p.refs == 0 && !p.s.Committing()
	if unpin {
		delete(r.pinned, id)
	}
	r.mu.Unlock()

	if unpin {
		r.sessions.Add(id, p.s)
	}
	return p.s, true
}

func (r *Registry) restore(ctx context.Context, id string) *Session {
	if r.store == nil {
		return New(id)
	}

	lines, err := r.store.LoadCart(ctx, id)
	if err != nil {
		if !errors.Is(err, repository.ErrCartNotFound) {
			r.logger.Warn("cart load failed, starting empty", zap.String("session_id", id), zap.Error(err))
		}
		return New(id)
	}
	return Restore(id, lines)
}

// Save persists the current cart of s. Failures are logged, never returned:
// the in-memory session stays authoritative. Saves of one session are
// serialized and a snapshot already stored is not written again.
func (r *Registry) Save(ctx context.Context, s *Session) {
	if r.store == nil {
		return
	}

	s.persist.Lock()
	defer s.persist.Unlock()

	items, version := s.snapshot()
	if version == s.persisted {
		return
	}

	var err error
	if len(items) == 0 {
		err = r.store.DeleteCart(ctx, s.ID())
		if errors.Is(err, repository.ErrCartNotFound) {
			err = nil
		}
	} else {
		err = r.store.SaveCart(ctx, s.ID(), items)
	}
	if err != nil {
		r.logger.Warn("cart save failed", zap.String("session_id", s.ID()), zap.Error(err))
		return
	}
	s.persisted = version
}

// Evict drops the in-memory session for id so the next Get reloads its cart
// from the store. Without a store, or while the session is pinned or
// checking out, the session is kept and Evict reports false.
func (r *Registry) Evict(id string) bool {
	if r.store == nil {
		return false
	}
	r.mu.Lock()
	_, held := r.pinned[id]
	r.mu.Unlock()
	if held {
		return false
	}
	s, ok := r.sessions.Peek(id)
	if !ok || s.Committing() {
		return false
	}
	return r.sessions.Remove(id)
}

func (r *Registry) Len() int {
	return r.sessions.Len()
}
