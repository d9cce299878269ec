package round

import (
	"context"
	"sort"
	"sync"

	appErr "wager-service/pkg/errors"
	"wager-service/pkg/logger"

	"go.uber.org/zap"
)

// ConfigSource extends ConfigProvider with room discovery for the registry.
type ConfigSource interface {
	ConfigProvider
	ListRoomIDs(ctx context.Context) ([]string, error)
}

// Service holds one engine per enabled room and is the entry point the API
// and socket layers go through.
type Service struct {
	deps   EngineDeps
	source ConfigSource

	mu      sync.RWMutex
	engines map[string]*Engine
}

func NewService(deps EngineDeps, source ConfigSource) *Service {
	return &Service{
		deps:    deps,
		source:  source,
		engines: make(map[string]*Engine),
	}
}

// Start builds an engine for every enabled room and recovers or opens its
// round. A room that fails to start is logged and skipped so one bad room
// cannot keep the rest of the service down.
func (s *Service) Start(ctx context.Context) error {
	ids, err := s.source.ListRoomIDs(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, roomID := range ids {
		cfg, err := s.source.RoomConfig(ctx, roomID)
		if err != nil {
			logger.Log.Error("load room config", zap.String("room", roomID), zap.Error(err))
			continue
		}
		engine, err := NewEngine(cfg, s.deps)
		if err != nil {
			logger.Log.Error("build room engine", zap.String("room", roomID), zap.Error(err))
			continue
		}
		if err := engine.Start(ctx); err != nil {
			logger.Log.Error("start room engine", zap.String("room", roomID), zap.Error(err))
			continue
		}
		s.engines[roomID] = engine
	}
	logger.Log.Info("round engines started", zap.Int("rooms", len(s.engines)))
	return nil
}

// Stop cancels every engine's pending timers.
func (s *Service) Stop() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, engine := range s.engines {
		engine.Stop()
	}
}

// Engine returns the engine for a room.
func (s *Service) Engine(roomID string) (*Engine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	engine, ok := s.engines[roomID]
	if !ok {
		return nil, appErr.ErrRoomNotFound
	}
	return engine, nil
}

// Rooms returns the current round of every running room, sorted by room ID.
func (s *Service) Rooms() []View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	views := make([]View, 0, len(s.engines))
	for _, engine := range s.engines {
		if v, ok := engine.CurrentRound(); ok {
			views = append(views, v)
		}
	}
	sort.Slice(views, func(i, j int) bool { return views[i].RoomID < views[j].RoomID })
	return views
}

// Store exposes the round store for history and verification lookups.
func (s *Service) Store() *Store {
	return s.deps.Store
}
