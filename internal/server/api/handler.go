package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/hlog"

	"internship-sync/tracker/internal/models"
	"internship-sync/tracker/internal/server/pagination"
	"internship-sync/tracker/internal/store"
)

const defaultLimit = 50
const maxLimit = 500

// ListResponse wraps a page of internships with its continuation cursor.
type ListResponse struct {
	Items      []models.InternshipRow `json:"items"`
	NextCursor *string                `json:"next_cursor,omitempty"`
}

// Handler serves the dashboard endpoints over the store.
type Handler struct {
	store *store.Store
}

// NewHandler creates a new handler instance.
func NewHandler(st *store.Store) *Handler {
	return &Handler{store: st}
}

// GetInternships handles the paginated, filtered listing.
func (h *Handler) GetInternships(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)

	query := r.URL.Query()

	limit := defaultLimit
	if limitStr := query.Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed <= 0 || parsed > maxLimit {
			log.Warn().Str("limit", limitStr).Msg("Invalid 'limit' parameter value")
			http.Error(w, fmt.Sprintf("Invalid 'limit' parameter: must be between 1 and %d", maxLimit), http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	filter := store.Filter{
		Status:     query.Get("status"),
		UserStatus: query.Get("user_status"),
		Site:       query.Get("site"),
		Company:    query.Get("company"),
		Search:     query.Get("search"),
		Limit:      limit + 1, // one extra row decides next_cursor
	}
	if filter.Status != "" && filter.Status != models.StatusOpen && filter.Status != models.StatusClosed {
		http.Error(w, "Invalid 'status' parameter: must be open or closed", http.StatusBadRequest)
		return
	}
	if filter.UserStatus != "" && !models.ValidUserStatus(filter.UserStatus) {
		http.Error(w, "Invalid 'user_status' parameter", http.StatusBadRequest)
		return
	}
	if remoteStr := query.Get("remote"); remoteStr != "" {
		remote, err := strconv.ParseBool(remoteStr)
		if err != nil {
			http.Error(w, "Invalid 'remote' parameter: must be a boolean", http.StatusBadRequest)
			return
		}
		filter.Remote = &remote
	}
	if cursorStr := query.Get("cursor"); cursorStr != "" {
		beforeID, err := pagination.DecodeCursor(cursorStr)
		if err != nil {
			log.Warn().Err(err).Str("cursor", cursorStr).Msg("Invalid 'cursor' parameter")
			http.Error(w, "Invalid 'cursor' parameter", http.StatusBadRequest)
			return
		}
		filter.BeforeID = beforeID
	}

	rows, err := h.store.ListInternships(r.Context(), filter)
	if err != nil {
		log.Error().Err(err).Msg("Error listing internships")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	var nextCursor *string
	if len(rows) > limit {
		rows = rows[:limit]
		cursor := pagination.EncodeCursor(rows[len(rows)-1].ID)
		nextCursor = &cursor
	}

	writeJSON(w, r, http.StatusOK, ListResponse{Items: rows, NextCursor: nextCursor})
}

// GetInternship handles a single-row lookup by id.
func (h *Handler) GetInternship(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "Invalid internship id", http.StatusBadRequest)
		return
	}

	row, err := h.store.GetInternship(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "Internship not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Error().Err(err).Int64("id", id).Msg("Error fetching internship")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, r, http.StatusOK, row)
}

// statusUpdate is the PATCH body for moving a listing through the user's
// application pipeline.
type statusUpdate struct {
	UserStatus string  `json:"user_status"`
	Notes      *string `json:"notes,omitempty"`
	Rating     *int    `json:"rating,omitempty"`
}

// UpdateUserStatus handles the user-facing status transition. Listing status
// (open/closed) is not writable here; only the sync pipeline changes it.
func (h *Handler) UpdateUserStatus(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "Invalid internship id", http.StatusBadRequest)
		return
	}

	var update statusUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if !models.ValidUserStatus(update.UserStatus) {
		http.Error(w, "Invalid 'user_status' value", http.StatusBadRequest)
		return
	}

	err = h.store.UpdateUserStatus(r.Context(), id, update.UserStatus, update.Notes, update.Rating)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "Internship not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Error().Err(err).Int64("id", id).Msg("Error updating user status")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	row, err := h.store.GetInternship(r.Context(), id)
	if err != nil {
		log.Error().Err(err).Int64("id", id).Msg("Error reloading internship after update")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	log.Info().Int64("id", id).Str("user_status", update.UserStatus).Msg("User status updated")

	writeJSON(w, r, http.StatusOK, row)
}

// GetCompanies handles the company listing.
func (h *Handler) GetCompanies(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)

	limit := parseLimit(r, defaultLimit)
	companies, err := h.store.ListCompanies(r.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("Error listing companies")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]any{"items": companies})
}

// GetRuns handles the scrape-run audit listing.
func (h *Handler) GetRuns(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)

	limit := parseLimit(r, defaultLimit)
	runs, err := h.store.ListRuns(r.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("Error listing runs")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]any{"items": runs})
}

func parseLimit(r *http.Request, fallback int) int {
	limitStr := r.URL.Query().Get("limit")
	if limitStr == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(limitStr)
	if err != nil || parsed <= 0 || parsed > maxLimit {
		return fallback
	}
	return parsed
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	jsonBytes, err := json.Marshal(payload)
	if err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("Error marshaling JSON response")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(jsonBytes); err != nil {
		hlog.FromRequest(r).Error().Err(err).Msg("Error writing JSON response body")
	}
}
