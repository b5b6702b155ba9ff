// internal/api/handlers.go
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"concord/internal/conflict"
	"concord/internal/document"
	apperrors "concord/internal/errors"
	"concord/internal/validation"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// FileStore is the part of the document store the file endpoints use
type FileStore interface {
	CreateFile(ctx context.Context, f *document.File) error
	GetFile(ctx context.Context, fileID string) (*document.File, error)
	ListFiles(ctx context.Context) ([]*document.File, error)
	ListVersions(ctx context.Context, fileID string) ([]int, error)
}

// FileWriter changes stored files under the conflict engine's locks
type FileWriter interface {
	Write(ctx context.Context, p conflict.DetectParams) (*conflict.WriteResult, error)
	DeleteFile(ctx context.Context, fileID string) error
}

// ConflictService is the caller-facing surface of the conflict engine
type ConflictService interface {
	DetectConflict(ctx context.Context, p conflict.DetectParams) (*conflict.DetectResult, error)
	ResolveConflict(ctx context.Context, fileID string, strategy conflict.Strategy, mergedContent *string, resolvedBy string) (*conflict.ResolveResult, error)
	GetActiveConflicts() []*conflict.Record
	GetConflictHistory(limit int) []*conflict.Record
	ClearHistory()
}

type errorResponse struct {
	Error *apperrors.Error `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError renders typed errors with their own status and hides the
// message of anything else behind a generic internal error.
func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	var e *apperrors.Error
	if !errors.As(err, &e) {
		logger.Error("request failed", zap.Error(err))
		e = &apperrors.Error{
			Type:    apperrors.ErrorTypeInternal,
			Message: "internal error",
			Code:    http.StatusInternalServerError,
		}
	}
	writeJSON(w, apperrors.StatusCode(e), errorResponse{Error: e})
}

// FileHandler serves the files under conflict control
type FileHandler struct {
	store  FileStore
	writer FileWriter
	logger *zap.Logger
}

func NewFileHandler(store FileStore, writer FileWriter, logger *zap.Logger) *FileHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileHandler{store: store, writer: writer, logger: logger}
}

type createFileRequest struct {
	ID         string `json:"id"`
	FileName   string `json:"file_name"`
	Content    string `json:"content"`
	ModifiedBy string `json:"modified_by"`
}

func (r *createFileRequest) Validate() error {
	if r.FileName == "" {
		return apperrors.ValidationError("file_name is required", nil)
	}
	return nil
}

func (h *FileHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createFileRequest
	if err := validation.DecodeRequest(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	// Set system fields
	f := &document.File{
		ID:         req.ID,
		FileName:   req.FileName,
		Content:    req.Content,
		Version:    1,
		UpdatedAt:  time.Now(),
		ModifiedBy: req.ModifiedBy,
	}
	if f.ID == "" {
		f.ID = uuid.New().String()
	}

	if err := h.store.CreateFile(r.Context(), f); err != nil {
		if errors.Is(err, document.ErrExists) {
			writeError(w, h.logger, apperrors.AlreadyExists(err.Error()))
			return
		}
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, f)
}

func (h *FileHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, h.logger, apperrors.ValidationError("missing id", nil))
		return
	}

	f, err := h.store.GetFile(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if f == nil {
		writeError(w, h.logger, apperrors.NotFound("file not found: "+id))
		return
	}

	writeJSON(w, http.StatusOK, f)
}

func (h *FileHandler) List(w http.ResponseWriter, r *http.Request) {
	files, err := h.store.ListFiles(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if files == nil {
		files = []*document.File{}
	}

	writeJSON(w, http.StatusOK, files)
}

type writeFileRequest struct {
	Content    string `json:"content"`
	Version    *int   `json:"version"`
	ModifiedBy string `json:"modified_by"`
}

func (r *writeFileRequest) Validate() error {
	if r.Version == nil {
		return apperrors.ValidationError("version is required", nil)
	}
	return nil
}

// Write commits new content when the version matches. A stale version
// answers 200 with committed=false and the conflict it raised.
func (h *FileHandler) Write(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req writeFileRequest
	if err := validation.DecodeRequest(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	res, err := h.writer.Write(r.Context(), conflict.DetectParams{
		FileID:     id,
		Content:    req.Content,
		Version:    req.Version,
		ModifiedBy: req.ModifiedBy,
	})
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

func (h *FileHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.writer.DeleteFile(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type versionsResponse struct {
	FileID   string `json:"file_id"`
	Versions []int  `json:"versions"`
}

// Versions lists the snapshot versions kept for a file in ascending order
func (h *FileHandler) Versions(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	versions, err := h.store.ListVersions(r.Context(), id)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if len(versions) == 0 {
		writeError(w, h.logger, apperrors.NotFound("file not found: "+id))
		return
	}

	writeJSON(w, http.StatusOK, versionsResponse{FileID: id, Versions: versions})
}

// ConflictHandler exposes detection and resolution over HTTP
type ConflictHandler struct {
	svc          ConflictService
	historyLimit int
	logger       *zap.Logger
}

func NewConflictHandler(svc ConflictService, historyLimit int, logger *zap.Logger) *ConflictHandler {
	if historyLimit <= 0 {
		historyLimit = conflict.DefaultHistoryLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConflictHandler{svc: svc, historyLimit: historyLimit, logger: logger}
}

func (h *ConflictHandler) Detect(w http.ResponseWriter, r *http.Request) {
	var p conflict.DetectParams
	if err := validation.DecodeRequest(w, r, &p); err != nil {
		writeError(w, h.logger, err)
		return
	}

	res, err := h.svc.DetectConflict(r.Context(), p)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// ResolveRequest is the body of a resolve call
type ResolveRequest struct {
	Strategy      string  `json:"strategy"`
	MergedContent *string `json:"merged_content,omitempty"`
	ResolvedBy    string  `json:"resolved_by,omitempty"`
}

func (h *ConflictHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	fileID := r.PathValue("fileId")
	if fileID == "" {
		writeError(w, h.logger, apperrors.ValidationError("missing file id", nil))
		return
	}

	var req ResolveRequest
	if err := validation.DecodeRequest(w, r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	strategy, err := conflict.ParseStrategy(req.Strategy)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	res, err := h.svc.ResolveConflict(r.Context(), fileID, strategy, req.MergedContent, req.ResolvedBy)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

func (h *ConflictHandler) Active(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.GetActiveConflicts())
}

func (h *ConflictHandler) History(w http.ResponseWriter, r *http.Request) {
	limit := h.historyLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, h.logger, apperrors.ValidationError("limit must be a positive integer", map[string]string{"limit": raw}))
			return
		}
		limit = n
	}

	writeJSON(w, http.StatusOK, h.svc.GetConflictHistory(limit))
}

func (h *ConflictHandler) ClearHistory(w http.ResponseWriter, r *http.Request) {
	h.svc.ClearHistory()
	w.WriteHeader(http.StatusNoContent)
}

// Routes registers every endpoint on mux
func Routes(mux *http.ServeMux, files *FileHandler, conflicts *ConflictHandler) {
	mux.HandleFunc("GET /health", healthCheck)

	mux.HandleFunc("POST /api/files", files.Create)
	mux.HandleFunc("GET /api/files", files.List)
	mux.HandleFunc("GET /api/files/{id}", files.Get)
	mux.HandleFunc("PUT /api/files/{id}", files.Write)
	mux.HandleFunc("DELETE /api/files/{id}", files.Delete)
	mux.HandleFunc("GET /api/files/{id}/versions", files.Versions)

	mux.HandleFunc("POST /api/conflicts/detect", conflicts.Detect)
	mux.HandleFunc("GET /api/conflicts", conflicts.Active)
	mux.HandleFunc("GET /api/conflicts/history", conflicts.History)
	mux.HandleFunc("DELETE /api/conflicts/history", conflicts.ClearHistory)
	mux.HandleFunc("POST /api/conflicts/{fileId}/resolve", conflicts.Resolve)
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"healthy"}`))
}
