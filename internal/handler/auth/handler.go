package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/z-tavern/chatengine/internal/auth"
	"github.com/zhouzirui/z-tavern/chatengine/pkg/utils"
)

// Handler issues development member tokens.
type Handler struct {
	tokens *auth.Service
}

// New creates the token handler.
func New(tokens *auth.Service) *Handler {
	return &Handler{tokens: tokens}
}

// RegisterRoutes registers POST /auth/token.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/auth/token", h.handleIssue)
}

func (h *Handler) handleIssue(w http.ResponseWriter, r *http.Request) {
	var req auth.TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	issued, err := h.tokens.Issue(req.UserID)
	switch {
	case errors.Is(err, auth.ErrMissingUser):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		utils.RespondError(w, http.StatusInternalServerError, "failed to issue token")
		return
	}
	utils.RespondJSON(w, http.StatusCreated, issued)
}
