package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/civiclens/policyd/internal/ingest"
	"github.com/civiclens/policyd/internal/models"
	"github.com/civiclens/policyd/internal/pipeline"
	"github.com/civiclens/policyd/internal/stages"
	"github.com/civiclens/policyd/internal/storage"
)

// Stable machine-checkable error kinds carried in every error body.
const (
	kindNotFound         = "not_found"
	kindConflict         = "conflict"
	kindAlreadyRunning   = "already_running"
	kindAlreadyCompleted = "already_completed"
	kindUnsupportedType  = "unsupported_type"
	kindTooLarge         = "too_large"
	kindInvalidRequest   = "invalid_request"
	kindExtractionFailed = "extraction_failed"
	kindTextNotExtracted = "text_not_extracted"
	kindInternal         = "internal"
)

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	// Bound the request body so oversized uploads fail fast instead of
	// being buffered in full; the precise limit check lives in ingest.
	r.Body = http.MaxBytesReader(w, r.Body, s.config.Ingest.MaxUploadBytes+1<<20)

	file, header, err := r.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.respondError(w, http.StatusBadRequest, kindTooLarge, "file size exceeds maximum allowed size")
			return
		}
		s.respondError(w, http.StatusBadRequest, kindInvalidRequest, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.respondError(w, http.StatusBadRequest, kindTooLarge, "file size exceeds maximum allowed size")
			return
		}
		s.logger.Error("upload read failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, kindInternal, "failed to read upload")
		return
	}

	doc, err := s.ingest.Admit(r.Context(), header.Filename, header.Header.Get("Content-Type"), content)
	if err != nil {
		var conflict *ingest.ConflictError
		switch {
		case errors.As(err, &conflict):
			s.respondJSON(w, http.StatusConflict, map[string]string{
				"error":       conflict.Error(),
				"kind":        kindConflict,
				"existing_id": conflict.ExistingID,
			})
		case errors.Is(err, ingest.ErrUnsupportedType):
			s.respondError(w, http.StatusBadRequest, kindUnsupportedType, err.Error())
		case errors.Is(err, ingest.ErrTooLarge):
			s.respondError(w, http.StatusBadRequest, kindTooLarge, err.Error())
		default:
			s.logger.Error("upload failed", zap.String("filename", header.Filename), zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, kindInternal, "failed to upload file")
		}
		return
	}

	s.respondJSON(w, http.StatusCreated, &models.UploadResponse{
		PolicyID:    doc.ID,
		Filename:    doc.Filename,
		FileSize:    doc.FileSize,
		ContentType: doc.ContentType,
		UploadedAt:  doc.CreatedAt,
		StoragePath: doc.FilePath,
		Status:      doc.Status,
	})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	status, err := models.ParseDocumentStatus(q.Get("status"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, kindInvalidRequest, err.Error())
		return
	}
	category, err := models.ParseCategory(q.Get("category"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, kindInvalidRequest, err.Error())
		return
	}

	limit := s.config.List.DefaultLimit
	if v := q.Get("limit"); v != "" {
		limit, err = strconv.Atoi(v)
		if err != nil || limit < 1 || limit > s.config.List.MaxLimit {
			s.respondError(w, http.StatusBadRequest, kindInvalidRequest,
				"limit must be between 1 and "+strconv.Itoa(s.config.List.MaxLimit))
			return
		}
	}
	offset := 0
	if v := q.Get("offset"); v != "" {
		offset, err = strconv.Atoi(v)
		if err != nil || offset < 0 {
			s.respondError(w, http.StatusBadRequest, kindInvalidRequest, "offset must be >= 0")
			return
		}
	}

	filter := models.DocumentFilter{
		Status:       status,
		Category:     category,
		Jurisdiction: q.Get("jurisdiction"),
	}
	docs, total, err := s.storage.ListDocuments(r.Context(), filter, limit, offset)
	if err != nil {
		s.logger.Error("list failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, kindInternal, "failed to list policies")
		return
	}
	if docs == nil {
		docs = []*models.Document{}
	}
	s.respondJSON(w, http.StatusOK, &models.ListResponse{
		Policies: docs,
		Total:    total,
		Limit:    limit,
		Offset:   offset,
	})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	doc, err := s.storage.GetDocument(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, kindNotFound, "policy not found")
			return
		}
		s.logger.Error("get failed", zap.String("policy_id", id), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, kindInternal, "failed to fetch policy")
		return
	}
	s.respondJSON(w, http.StatusOK, doc)
}

// updateRequest carries optional classification edits; nil fields are
// left untouched.
type updateRequest struct {
	Title         *string    `json:"title"`
	Description   *string    `json:"description"`
	Language      *string    `json:"language"`
	Jurisdiction  *string    `json:"jurisdiction"`
	Category      *string    `json:"category"`
	EffectiveDate *time.Time `json:"effective_date"`
	ExpiryDate    *time.Time `json:"expiry_date"`
	SourceURL     *string    `json:"source_url"`
	Status        *string    `json:"status"`
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, kindInvalidRequest, "invalid request body")
		return
	}

	doc, err := s.storage.GetDocument(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, kindNotFound, "policy not found")
			return
		}
		s.logger.Error("update lookup failed", zap.String("policy_id", id), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, kindInternal, "failed to fetch policy")
		return
	}

	if req.Title != nil {
		doc.Title = *req.Title
	}
	if req.Description != nil {
		doc.Description = *req.Description
	}
	if req.Language != nil {
		doc.Language = *req.Language
	}
	if req.Jurisdiction != nil {
		doc.Jurisdiction = *req.Jurisdiction
	}
	if req.Category != nil {
		category, err := models.ParseCategory(*req.Category)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, kindInvalidRequest, err.Error())
			return
		}
		doc.Category = category
	}
	if req.EffectiveDate != nil {
		doc.EffectiveDate = req.EffectiveDate
	}
	if req.ExpiryDate != nil {
		doc.ExpiryDate = req.ExpiryDate
	}
	if req.SourceURL != nil {
		doc.SourceURL = *req.SourceURL
	}
	if req.Status != nil {
		status, err := models.ParseDocumentStatus(*req.Status)
		if err != nil || status == "" {
			s.respondError(w, http.StatusBadRequest, kindInvalidRequest, "invalid status")
			return
		}
		doc.Status = status
	}

	if err := s.storage.UpdateDocument(r.Context(), doc); err != nil {
		s.logger.Error("update failed", zap.String("policy_id", id), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, kindInternal, "failed to update policy")
		return
	}
	s.respondJSON(w, http.StatusOK, doc)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.storage.SoftDeleteDocument(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, kindNotFound, "policy not found")
			return
		}
		s.logger.Error("delete failed", zap.String("policy_id", id), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, kindInternal, "failed to delete policy")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	force := false
	if v := r.URL.Query().Get("force"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, kindInvalidRequest, "force must be a boolean")
			return
		}
		force = parsed
	}

	summary, err := s.pipeline.Run(r.Context(), id, force)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			s.respondError(w, http.StatusNotFound, kindNotFound, "policy not found")
		case errors.Is(err, stages.ErrAlreadyCompleted):
			s.respondError(w, http.StatusConflict, kindAlreadyCompleted,
				"text has already been extracted, use force=true to re-extract")
		case errors.Is(err, stages.ErrAlreadyRunning):
			s.respondError(w, http.StatusConflict, kindAlreadyRunning,
				"text extraction is already in progress")
		case errors.Is(err, pipeline.ErrExtraction):
			s.respondError(w, http.StatusInternalServerError, kindExtractionFailed, err.Error())
		default:
			s.logger.Error("extraction failed", zap.String("policy_id", id), zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, kindInternal, "extraction failed")
		}
		return
	}
	s.respondJSON(w, http.StatusOK, summary)
}

func (s *Server) handleExtractedText(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	text, err := s.pipeline.ExtractedText(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			s.respondError(w, http.StatusNotFound, kindNotFound, "policy not found")
		case errors.Is(err, pipeline.ErrNoExtractedText):
			s.respondError(w, http.StatusNotFound, kindTextNotExtracted, err.Error())
		default:
			s.logger.Error("extracted text fetch failed", zap.String("policy_id", id), zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, kindInternal, "failed to fetch extracted text")
		}
		return
	}
	s.respondJSON(w, http.StatusOK, text)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	docCount, err := s.storage.CountDocuments(ctx)
	if err != nil {
		s.logger.Error("status: count documents failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, kindInternal, "failed to compute status")
		return
	}
	byStatus, err := s.storage.CountDocumentsByStatus(ctx)
	if err != nil {
		s.logger.Error("status: count by status failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, kindInternal, "failed to compute status")
		return
	}
	runCount, err := s.storage.CountStageRuns(ctx)
	if err != nil {
		s.logger.Error("status: count stage runs failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, kindInternal, "failed to compute status")
		return
	}

	resp := map[string]interface{}{
		"policies":           docCount,
		"policies_by_status": byStatus,
		"stage_runs":         runCount,
	}
	diskBytes, err := storage.DiskUsageBytes(s.config.Storage.DatabasePath, s.config.Storage.UploadDir)
	if err == nil {
		resp["disk_usage_bytes"] = diskBytes
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, kind, message string) {
	s.respondJSON(w, status, map[string]string{"error": message, "kind": kind})
}
