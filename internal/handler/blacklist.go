package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/xenking/rodela-order-api/internal/domain/blacklist"
)

type blacklistEntryResponse struct {
	Phone     string    `json:"phone"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func (h *Handler) listBlacklist(w http.ResponseWriter, r *http.Request) {
	entries, err := h.blacklist.List(r.Context())
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}

	out := make([]blacklistEntryResponse, len(entries))
	for i, e := range entries {
		out[i] = blacklistEntryResponse{Phone: e.Phone, Reason: e.Reason, CreatedAt: e.CreatedAt}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) addBlacklistEntry(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Phone  string `json:"phone"`
		Reason string `json:"reason,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Phone == "" {
		writeErrorMessage(w, http.StatusBadRequest, "phone is required")
		return
	}

	if err := h.blacklist.Add(r.Context(), blacklist.Entry{Phone: req.Phone, Reason: req.Reason}); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) removeBlacklistEntry(w http.ResponseWriter, r *http.Request) {
	if err := h.blacklist.Remove(r.Context(), r.PathValue("phone")); err != nil {
		writeError(r.Context(), w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
