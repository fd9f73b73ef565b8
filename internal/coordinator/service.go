package coordinator

import (
	"context"
	"net/http"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mlowery/pointdeck/internal/poker"
)

// Service is the coordinator: the authoritative owner of all rooms, wired to
// the WebSocket connection manager and the HTTP side channel.
type Service struct {
	registry          *Registry
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	roomsHandler      *RoomsHandler
}

// Config holds configuration for the coordinator service.
type Config struct {
	ConnectionConfig ConnectionConfig
	Deck             poker.Deck
	Clock            clockwork.Clock
}

// DefaultConfig returns default configuration: the standard deck and the
// real clock.
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		Deck:             poker.DefaultDeck(),
		Clock:            clockwork.NewRealClock(),
	}
}

// NewService creates a new coordinator service.
func NewService(config Config) *Service {
	registry := NewRegistry(config.Deck, config.Clock)
	connectionManager := NewConnectionManager(config.ConnectionConfig, registry)
	registry.SetConnectionManager(connectionManager)

	return &Service{
		registry:          registry,
		connectionManager: connectionManager,
		wsHandler:         NewWebSocketHandler(connectionManager),
		roomsHandler:      NewRoomsHandler(registry),
	}
}

// Start begins the coordinator service and blocks until ctx is cancelled.
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting coordinator service")

	go s.connectionManager.Start(ctx)

	<-ctx.Done()

	log.Info().Msg("coordinator service shutting down")
	return nil
}

// RegisterRoutes registers the WebSocket and side-channel HTTP routes.
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.roomsHandler.RegisterRoomRoutes(mux)
	log.Info().Msg("coordinator routes registered")
}

// Registry exposes the room registry.
func (s *Service) Registry() *Registry {
	return s.registry
}

// GetStats returns statistics about the service.
func (s *Service) GetStats() map[string]interface{} {
	stats := s.connectionManager.GetConnectionStats()
	stats["service"] = "coordinator"
	stats["live_rooms"] = s.registry.RoomCount()
	return stats
}
