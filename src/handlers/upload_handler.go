// backend/src/handlers/upload_handler.go
package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/username/folioledger/backend/src/logger"
	"github.com/username/folioledger/backend/src/model"
	"github.com/username/folioledger/backend/src/security/validation"
	"github.com/username/folioledger/backend/src/services"
	"github.com/username/folioledger/backend/src/utils"
)

type UploadHandler struct {
	uploadService  services.UploadService
	maxUploadBytes int64
}

func NewUploadHandler(service services.UploadService, maxUploadBytes int64) *UploadHandler {
	return &UploadHandler{
		uploadService:  service,
		maxUploadBytes: maxUploadBytes,
	}
}

// HandleUpload accepts a multipart form with a "file" part and a "source" field naming
// the broker format.
func (h *UploadHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())
	portfolioID, err := getPortfolioID(r)
	if err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+1024*1024)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		log.Warn("Failed to parse multipart form or request too large", "portfolioID", portfolioID, "error", err, "limit", h.maxUploadBytes)
		utils.SendJSONError(w, fmt.Sprintf("Failed to process the upload or the file is too large (max %d MB)", h.maxUploadBytes/(1024*1024)), http.StatusBadRequest)
		return
	}

	source := strings.TrimSpace(r.FormValue("source"))
	if source == "" {
		utils.SendJSONError(w, "Broker source is required.", http.StatusBadRequest)
		return
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		log.Warn("Failed to retrieve file from request", "portfolioID", portfolioID, "error", err)
		utils.SendJSONError(w, "Failed to retrieve file from request. Ensure 'file' field is used.", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if fileHeader.Size > h.maxUploadBytes {
		utils.SendJSONError(w, fmt.Sprintf("File too large, max %d MB", h.maxUploadBytes/(1024*1024)), http.StatusBadRequest)
		return
	}

	clientContentType := fileHeader.Header.Get("Content-Type")
	if err := validation.ValidateClientContentType(clientContentType); err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	detectedContentType, err := validation.ValidateFileContentByMagicBytes(file)
	if err != nil {
		log.Warn("Server-side file content validation failed", "filename", fileHeader.Filename, "error", err)
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	filename := validation.SanitizeForFormulaInjection(validation.CleanText(fileHeader.Filename))
	log.Info("Processing upload request", "portfolioID", portfolioID, "source", source, "filename", filename, "detectedType", detectedContentType)

	result, err := h.uploadService.ProcessUpload(r.Context(), file, portfolioID, source, filename, fileHeader.Size)
	if err != nil {
		sendServiceError(w, r, err, "Failed to process upload")
		return
	}
	utils.WriteJSON(w, http.StatusOK, result)
}

func (h *UploadHandler) HandleGetUploadHistory(w http.ResponseWriter, r *http.Request) {
	portfolioID, err := getPortfolioID(r)
	if err != nil {
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	history, err := h.uploadService.GetUploadHistory(r.Context(), portfolioID)
	if err != nil {
		sendServiceError(w, r, err, "Failed to retrieve upload history")
		return
	}
	if history == nil {
		history = []model.UploadRecord{}
	}
	utils.WriteJSON(w, http.StatusOK, history)
}
