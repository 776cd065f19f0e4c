package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/temporalmem/temporalmem/pkg/api/response"
	"github.com/temporalmem/temporalmem/pkg/memory"
	"github.com/temporalmem/temporalmem/pkg/store"
)

// MemoryEngine is the engine surface the HTTP handlers depend on.
type MemoryEngine interface {
	WriteBatch(ctx context.Context, userID, sourceTurnID string, candidates []memory.FactCandidate) (*memory.BatchResult, error)
	Search(ctx context.Context, userID, query string, limit int, filters map[string]string) (*memory.SearchResult, error)
	List(ctx context.Context, userID string, status memory.Status) ([]memory.RankedRecord, error)
	Get(ctx context.Context, userID, id string) (*memory.MemoryRecord, error)
	Delete(ctx context.Context, userID, id string) error
}

// MemoryHandler handles memory record API endpoints.
type MemoryHandler struct {
	engine MemoryEngine
	logger memoryLogger
}

type memoryLogger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// NewMemoryHandler creates a new memory handler.
func NewMemoryHandler(engine MemoryEngine, log memoryLogger) *MemoryHandler {
	return &MemoryHandler{
		engine: engine,
		logger: log,
	}
}

// --- Request/Response types ---

type writeRequest struct {
	SourceTurnID string                 `json:"source_turn_id,omitempty"`
	Facts        []memory.FactCandidate `json:"facts"`
}

type searchRequest struct {
	Query   string            `json:"query"`
	Limit   int               `json:"limit,omitempty"`
	Filters map[string]string `json:"filters,omitempty"`
}

type listResponse struct {
	Records []memory.RankedRecord `json:"records"`
	Total   int                   `json:"total"`
}

type deleteResponse struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted"`
}

// WriteMemories handles POST /api/v1/users/{userID}/memories
func (h *MemoryHandler) WriteMemories(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := chi.URLParam(r, "userID")

	if userID == "" {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "User ID is required", getRequestID(ctx))
		return
	}

	var req writeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "Invalid request body", getRequestID(ctx))
		return
	}

	if len(req.Facts) == 0 {
		response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, "At least one fact is required", getRequestID(ctx))
		return
	}

	batch, err := h.engine.WriteBatch(ctx, userID, req.SourceTurnID, req.Facts)
	if err != nil {
		if errors.Is(err, memory.ErrInvalidUserID) {
			response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, err.Error(), getRequestID(ctx))
			return
		}
		h.logger.Error("Failed to write memories", "user_id", userID, "error", err)
		response.Error(w, http.StatusInternalServerError, response.ErrCodeInternalServer, "Failed to write memories", getRequestID(ctx))
		return
	}

	response.JSON(w, http.StatusOK, batch)
}

// SearchMemories handles POST /api/v1/users/{userID}/memories/search
func (h *MemoryHandler) SearchMemories(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := chi.URLParam(r, "userID")

	if userID == "" {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "User ID is required", getRequestID(ctx))
		return
	}

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "Invalid request body", getRequestID(ctx))
		return
	}

	if strings.TrimSpace(req.Query) == "" {
		response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, "Query is required", getRequestID(ctx))
		return
	}

	result, err := h.engine.Search(ctx, userID, req.Query, req.Limit, req.Filters)
	if err != nil {
		if errors.Is(err, memory.ErrInvalidQuery) || errors.Is(err, memory.ErrInvalidUserID) {
			response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, err.Error(), getRequestID(ctx))
			return
		}
		h.logger.Error("Failed to search memories", "user_id", userID, "error", err)
		response.Error(w, http.StatusInternalServerError, response.ErrCodeInternalServer, "Failed to search memories", getRequestID(ctx))
		return
	}

	response.JSON(w, http.StatusOK, result)
}

// ListMemories handles GET /api/v1/users/{userID}/memories
func (h *MemoryHandler) ListMemories(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := chi.URLParam(r, "userID")

	if userID == "" {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "User ID is required", getRequestID(ctx))
		return
	}

	status := memory.StatusActive
	if v := r.URL.Query().Get("status"); v != "" {
		status = memory.Status(v)
		if !status.Valid() {
			response.Error(w, http.StatusBadRequest, response.ErrCodeValidationFailed, "Invalid status filter", getRequestID(ctx))
			return
		}
	}

	records, err := h.engine.List(ctx, userID, status)
	if err != nil {
		h.logger.Error("Failed to list memories", "user_id", userID, "error", err)
		response.Error(w, http.StatusInternalServerError, response.ErrCodeInternalServer, "Failed to list memories", getRequestID(ctx))
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	total := len(records)
	if limit > 0 && limit < len(records) {
		records = records[:limit]
	}

	response.JSON(w, http.StatusOK, listResponse{Records: records, Total: total})
}

// GetMemory handles GET /api/v1/users/{userID}/memories/{id}
func (h *MemoryHandler) GetMemory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := chi.URLParam(r, "userID")
	id := chi.URLParam(r, "id")

	if userID == "" || id == "" {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "User ID and record ID are required", getRequestID(ctx))
		return
	}

	rec, err := h.engine.Get(ctx, userID, id)
	if err != nil {
		if errors.Is(err, memory.ErrNotFound) {
			response.Error(w, http.StatusNotFound, response.ErrCodeNotFound, "Memory record not found", getRequestID(ctx))
			return
		}
		h.logger.Error("Failed to get memory", "user_id", userID, "record_id", id, "error", err)
		response.Error(w, http.StatusInternalServerError, response.ErrCodeInternalServer, "Failed to get memory", getRequestID(ctx))
		return
	}

	response.JSON(w, http.StatusOK, rec)
}

// DeleteMemory handles DELETE /api/v1/users/{userID}/memories/{id}
func (h *MemoryHandler) DeleteMemory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := chi.URLParam(r, "userID")
	id := chi.URLParam(r, "id")

	if userID == "" || id == "" {
		response.Error(w, http.StatusBadRequest, response.ErrCodeBadRequest, "User ID and record ID are required", getRequestID(ctx))
		return
	}

	if err := h.engine.Delete(ctx, userID, id); err != nil {
		var transition *store.InvalidTransitionError
		switch {
		case errors.Is(err, memory.ErrNotFound):
			response.Error(w, http.StatusNotFound, response.ErrCodeNotFound, "Memory record not found", getRequestID(ctx))
		case memory.IsConflict(err) || errors.Is(err, memory.ErrWriteConflict):
			response.Error(w, http.StatusConflict, response.ErrCodeConflict, "Memory record changed concurrently", getRequestID(ctx))
		case errors.As(err, &transition):
			response.Error(w, http.StatusConflict, response.ErrCodeConflict, "Memory record is no longer active", getRequestID(ctx))
		default:
			h.logger.Error("Failed to delete memory", "user_id", userID, "record_id", id, "error", err)
			response.Error(w, http.StatusInternalServerError, response.ErrCodeInternalServer, "Failed to delete memory", getRequestID(ctx))
		}
		return
	}

	response.JSON(w, http.StatusOK, deleteResponse{ID: id, Deleted: true})
}

// getRequestID extracts request ID from context
func getRequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value("request_id").(string); ok {
		return reqID
	}
	return "unknown"
}
