package history

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"arcade-lobby/internal/auth"
)

type HTTPHandler struct {
	service Service
	auth    auth.Service
}

func NewHTTPHandler(service Service, authService auth.Service) *HTTPHandler {
	return &HTTPHandler{service: service, auth: authService}
}

func (h *HTTPHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/history/recent", h.handleRecent).Methods(http.MethodGet)
}

type recentResponse struct {
	Matches []MatchSummary `json:"matches"`
}

func (h *HTTPHandler) handleRecent(w http.ResponseWriter, r *http.Request) {
	token := auth.BearerToken(r.Header.Get("Authorization"))
	if token == "" {
		httpError(w, http.StatusUnauthorized, "missing session token")
		return
	}
	userID, _, ok := h.auth.ResolveSession(token)
	if !ok {
		httpError(w, http.StatusUnauthorized, "invalid session token")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			httpError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	matches, err := h.service.Recent(r.Context(), userID, limit)
	if err != nil {
		log.Printf("[History] recent query for user %d failed: %v", userID, err)
		httpError(w, http.StatusInternalServerError, "history unavailable")
		return
	}
	if matches == nil {
		matches = []MatchSummary{}
	}

	httpJSON(w, http.StatusOK, recentResponse{Matches: matches})
}

func httpError(w http.ResponseWriter, status int, msg string) {
	httpJSON(w, status, map[string]string{"error": msg})
}

func httpJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
