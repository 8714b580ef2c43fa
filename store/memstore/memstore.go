// Package memstore is the in-memory Store used by tests and the daemon's dev
// mode. Gets and Puts exchange deep copies, so the engine's working state is
// never aliased with persisted state.
package memstore

import (
	"context"
	"sync"

	"github.com/susuprotocol/rosca/engine"
)

type Store struct {
	mu       sync.RWMutex
	nextID   uint64
	circles  map[uint64]*engine.Circle
	protocol *engine.Protocol
}

func New() *Store {
	return &Store{
		circles: make(map[uint64]*engine.Circle),
	}
}

func (s *Store) NextCircleID(_ context.Context) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	return s.nextID, nil
}

func (s *Store) GetCircle(_ context.Context, id uint64) (*engine.Circle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.circles[id]
	if !ok {
		return nil, engine.ErrNotFound
	}
	return c.Clone(), nil
}

func (s *Store) PutCircle(_ context.Context, c *engine.Circle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.circles[c.ID] = c.Clone()
	return nil
}

func (s *Store) GetProtocol(_ context.Context) (*engine.Protocol, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.protocol == nil {
		return nil, engine.ErrNotFound
	}
	return s.protocol.Clone(), nil
}

func (s *Store) PutProtocol(_ context.Context, p *engine.Protocol) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.protocol = p.Clone()
	return nil
}
