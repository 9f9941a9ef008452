package api

import (
	"encoding/json"
	"net/http"

	"hamster-duel/internal/protocol"

	"github.com/go-chi/chi/v5"
)

// routerHandlers holds the dependencies of the plain HTTP handlers.
type routerHandlers struct {
	broker BrokerInterface
}

func (h *routerHandlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func (h *routerHandlers) handleRoomStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.broker.Stats())
}

// handleGetRoom reports whether a code is waiting for a guest. It lets a
// client check an invite before dialing.
func (h *routerHandlers) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	code := protocol.NormalizeRoomCode(chi.URLParam(r, "code"))
	if err := protocol.ValidateRoomCode(code); err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	info, ok := h.broker.Lookup(code)
	if !ok {
		writeError(w, "room not found", http.StatusNotFound)
		return
	}
	writeJSON(w, info)
}

// Helper functions (package-level for reuse)

func writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
