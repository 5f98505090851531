// backend/src/handlers/helpers.go
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/username/folioledger/backend/src/logger"
	"github.com/username/folioledger/backend/src/models"
	"github.com/username/folioledger/backend/src/security/validation"
	"github.com/username/folioledger/backend/src/services"
	"github.com/username/folioledger/backend/src/utils"
)

// getPortfolioID reads the {id} URL parameter.
func getPortfolioID(r *http.Request) (int64, error) {
	idStr := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid portfolio ID %q", idStr)
	}
	return id, nil
}

// statusForError maps service errors onto HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, models.ErrPortfolioNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrInsufficientLots):
		return http.StatusConflict
	case errors.Is(err, models.ErrValidation),
		errors.Is(err, validation.ErrValidationFailed),
		errors.Is(err, services.ErrParsingFailed),
		errors.Is(err, services.ErrProcessingFailed):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// sendServiceError writes err with the mapped status. Internal errors are logged and
// replaced by message so storage details do not leak to clients.
func sendServiceError(w http.ResponseWriter, r *http.Request, err error, message string) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error(message, "path", r.URL.Path, "error", err)
		utils.SendJSONError(w, message, status)
		return
	}
	utils.SendJSONError(w, err.Error(), status)
}

// writeWithETag answers 304 when the client already holds the same representation.
func writeWithETag(w http.ResponseWriter, r *http.Request, payload any) {
	etag, err := utils.GenerateETag(payload)
	w.Header().Set("Cache-Control", "no-cache, private")
	if err != nil {
		logger.FromContext(r.Context()).Warn("Proceeding without ETag", "error", err)
		utils.WriteJSON(w, http.StatusOK, payload)
		return
	}

	quoted := fmt.Sprintf("%q", etag)
	w.Header().Set("ETag", quoted)
	for _, candidate := range strings.Split(r.Header.Get("If-None-Match"), ",") {
		if strings.TrimSpace(candidate) == quoted {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}
	utils.WriteJSON(w, http.StatusOK, payload)
}
