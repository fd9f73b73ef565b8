package coordinator

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// RoomsHandler is the request/response side channel next to the event
// protocol: room id allocation and read-only room snapshots.
type RoomsHandler struct {
	registry *Registry
}

// NewRoomsHandler creates a new rooms handler.
func NewRoomsHandler(registry *Registry) *RoomsHandler {
	return &RoomsHandler{
		registry: registry,
	}
}

// AllocateRoomResponse is the body of a successful room allocation.
type AllocateRoomResponse struct {
	RoomID string `json:"room_id"`
}

// HandleAllocateRoom handles POST /api/rooms. The returned id seeds a join
// intent; the room itself comes into existence on first join.
func (h *RoomsHandler) HandleAllocateRoom(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	roomID, err := h.registry.AllocateRoomID()
	if err != nil {
		log.Error().Err(err).Msg("failed to allocate room id")
		http.Error(w, "Failed to allocate room id", http.StatusInternalServerError)
		return
	}

	log.Info().Str("room_id", roomID).Msg("room id allocated")

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(AllocateRoomResponse{RoomID: roomID}); err != nil {
		log.Error().Err(err).Msg("failed to encode room allocation response")
	}
}

// HandleGetRoom handles GET /api/rooms/{id}. The snapshot applies the same
// masking rule as broadcasts, so hidden votes stay hidden here too.
func (h *RoomsHandler) HandleGetRoom(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	roomID := extractRoomIDFromPath(r.URL.Path)
	if roomID == "" {
		http.Error(w, "Room ID is required", http.StatusBadRequest)
		return
	}

	snapshot, ok := h.registry.Snapshot(roomID)
	if !ok {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snapshot); err != nil {
		log.Error().Err(err).Msg("failed to encode room snapshot")
	}
}

// RegisterRoomRoutes registers the side-channel HTTP routes.
func (h *RoomsHandler) RegisterRoomRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/rooms", h.HandleAllocateRoom)
	mux.HandleFunc("/api/rooms/", h.HandleGetRoom)
}

// extractRoomIDFromPath extracts the room id from a path like /api/rooms/{id}.
func extractRoomIDFromPath(path string) string {
	const prefix = "/api/rooms/"

	if len(path) <= len(prefix) || path[:len(prefix)] != prefix {
		return ""
	}

	id := path[len(prefix):]
	for _, c := range id {
		if c == '/' {
			return ""
		}
	}
	return id
}
