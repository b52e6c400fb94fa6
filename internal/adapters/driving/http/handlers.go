package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/custodia-labs/persona-core/internal/core/domain"
)

// ErrorResponse represents an API error response
// @Description API error response
type ErrorResponse struct {
	Error string `json:"error" example:"invalid request body"`
}

// StatusResponse represents a simple status response
// @Description Simple status response
type StatusResponse struct {
	Status string `json:"status" example:"ok"`
}

// AskRequest is the body of an ask call
// @Description Question to answer from the corpus
type AskRequest struct {
	Question string `json:"question" example:"did you work on the billing migration?"`
	K        int    `json:"k" example:"5"`
}

// ReindexRequest selects the embedding model version to rebuild under
// @Description Bulk reindex parameters
type ReindexRequest struct {
	ModelVersion string `json:"model_version" example:"text-embedding-3-large"`
}

// RetryEmbeddingsRequest bounds one retry sweep
// @Description Embedding retry parameters
type RetryEmbeddingsRequest struct {
	Limit int `json:"limit" example:"100"`
}

// StatsResponse summarises the corpus
// @Description Corpus statistics
type StatsResponse struct {
	Documents int                       `json:"documents"`
	ByKind    map[domain.SourceKind]int `json:"by_kind"`
}

// Health endpoints

// handleHealth godoc
// @Summary      Health check
// @Description  Returns the health status of the API
// @Tags         Health
// @Produce      json
// @Success      200  {object}  StatusResponse
// @Router       /health [get]
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady godoc
// @Summary      Readiness check
// @Description  Returns the readiness status of the API (checks database and queue connections)
// @Tags         Health
// @Produce      json
// @Success      200  {object}  StatusResponse
// @Failure      503  {object}  ErrorResponse  "A backend dependency is down"
// @Router       /ready [get]
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		if err := s.db.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
	}
	if s.redis != nil {
		if err := s.redis.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "redis unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleVersion godoc
// @Summary      Get API version
// @Description  Returns the current API version
// @Tags         Health
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /version [get]
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}

// Auth endpoints

// handleIssueToken godoc
// @Summary      Issue API token
// @Description  Exchange a client ID and API key for a short-lived JWT
// @Tags         Authentication
// @Accept       json
// @Produce      json
// @Param        request  body      domain.TokenRequest  true  "Client credentials"
// @Success      200      {object}  domain.TokenResponse
// @Failure      400      {object}  ErrorResponse  "Invalid request body"
// @Failure      401      {object}  ErrorResponse  "Invalid credentials"
// @Router       /auth/token [post]
func (s *Server) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	var req domain.TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := s.authService.IssueToken(r.Context(), &req)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		writeError(w, http.StatusInternalServerError, "authentication failed")
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// Ingestion endpoints

// handleIngest godoc
// @Summary      Ingest a raw record
// @Description  Normalize one source item, upsert its document and replace its passages. Idempotent for identical content.
// @Tags         Ingestion
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body      domain.RawRecord  true  "Raw source record"
// @Success      200      {object}  domain.Document
// @Failure      400      {object}  ErrorResponse  "Invalid request body or unknown source kind"
// @Failure      422      {object}  ErrorResponse  "Record failed normalization"
// @Failure      500      {object}  ErrorResponse  "Ingestion failed"
// @Router       /ingest [post]
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var record domain.RawRecord
	if err := json.NewDecoder(r.Body).Decode(&record); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	doc, err := s.ingestService.Ingest(r.Context(), &record)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNormalization):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		case errors.Is(err, domain.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "ingestion failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, doc)
}

// handleIngestDelete godoc
// @Summary      Delete an ingested item
// @Description  Remove the document identified by source kind and external ID, with its passages and index entries. Unknown items are a no-op.
// @Tags         Ingestion
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body      domain.Deletion  true  "Item to delete"
// @Success      200      {object}  StatusResponse
// @Failure      400      {object}  ErrorResponse  "Invalid request body"
// @Failure      500      {object}  ErrorResponse  "Deletion failed"
// @Router       /ingest/delete [post]
func (s *Server) handleIngestDelete(w http.ResponseWriter, r *http.Request) {
	var del domain.Deletion
	if err := json.NewDecoder(r.Body).Decode(&del); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.ingestService.IngestDelete(r.Context(), &del); err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "deletion failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// Query endpoints

// handleAsk godoc
// @Summary      Ask a question
// @Description  Retrieve the most relevant passages and synthesize a grounded answer in the persona's voice. Weak evidence yields a normal insufficient answer, not an error.
// @Tags         Query
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body      AskRequest  true  "Question"
// @Success      200      {object}  domain.Answer
// @Failure      400      {object}  ErrorResponse  "Empty question"
// @Failure      500      {object}  ErrorResponse  "Query failed"
// @Router       /ask [post]
func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	answer, err := s.queryService.Ask(r.Context(), req.Question, req.K)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, "question must not be empty")
			return
		}
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}

	writeJSON(w, http.StatusOK, answer)
}

// handleRetrieve godoc
// @Summary      Retrieve passages
// @Description  The retrieval stage alone: ranked, document-deduplicated top-k passages for a question
// @Tags         Query
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body      AskRequest  true  "Question"
// @Success      200      {object}  domain.RetrievalResult
// @Failure      400      {object}  ErrorResponse  "Empty question"
// @Failure      500      {object}  ErrorResponse  "Retrieval failed"
// @Router       /retrieve [post]
func (s *Server) handleRetrieve(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := s.queryService.Retrieve(r.Context(), req.Question, req.K)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, "question must not be empty")
			return
		}
		writeError(w, http.StatusInternalServerError, "retrieval failed")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Document endpoints

// handleListDocuments godoc
// @Summary      List documents
// @Description  List documents with pagination, most recently updated first
// @Tags         Documents
// @Produce      json
// @Security     BearerAuth
// @Param        limit   query     int  false  "Page size (default 20, max 100)"
// @Param        offset  query     int  false  "Offset"
// @Success      200     {array}   domain.Document
// @Failure      500     {object}  ErrorResponse  "Listing failed"
// @Router       /documents [get]
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 0)
	offset := queryInt(r, "offset", 0)

	docs, err := s.docService.List(r.Context(), limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list documents")
		return
	}

	writeJSON(w, http.StatusOK, docs)
}

// handleGetDocument godoc
// @Summary      Get document
// @Description  Retrieve a document by ID
// @Tags         Documents
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Document ID"
// @Success      200  {object}  domain.Document
// @Failure      404  {object}  ErrorResponse  "Document not found"
// @Router       /documents/{id} [get]
func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.docService.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "document not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get document")
		return
	}

	writeJSON(w, http.StatusOK, doc)
}

// handleGetDocumentPassages godoc
// @Summary      Get document with passages
// @Description  Retrieve a document together with its passages in position order
// @Tags         Documents
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Document ID"
// @Success      200  {object}  domain.DocumentWithPassages
// @Failure      404  {object}  ErrorResponse  "Document not found"
// @Router       /documents/{id}/passages [get]
func (s *Server) handleGetDocumentPassages(w http.ResponseWriter, r *http.Request) {
	doc, err := s.docService.GetWithPassages(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "document not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to get document")
		return
	}

	writeJSON(w, http.StatusOK, doc)
}

// handleStats godoc
// @Summary      Corpus statistics
// @Description  Document counts, total and per source kind
// @Tags         Documents
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  StatsResponse
// @Failure      500  {object}  ErrorResponse  "Stats failed"
// @Router       /stats [get]
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	total, err := s.docService.Count(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to count documents")
		return
	}

	stats := StatsResponse{
		Documents: total,
		ByKind:    make(map[domain.SourceKind]int),
	}
	for _, kind := range []domain.SourceKind{
		domain.SourceKindChat, domain.SourceKindTicket,
		domain.SourceKindCommit, domain.SourceKindOfficeDoc,
	} {
		count, err := s.docService.CountByKind(r.Context(), kind)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to count documents")
			return
		}
		stats.ByKind[kind] = count
	}

	writeJSON(w, http.StatusOK, stats)
}

// Admin endpoints

// handleReindex godoc
// @Summary      Start bulk reindex
// @Description  Re-embed the whole corpus under a new model version (admin only). The build runs in the background; the previous version stays queryable until promotion. With a queue backend configured the run is enqueued as a task.
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body      ReindexRequest  true  "Target model version"
// @Success      202      {object}  StatusResponse
// @Failure      400      {object}  ErrorResponse  "Invalid request body"
// @Failure      401      {object}  ErrorResponse  "Unauthorized"
// @Failure      403      {object}  ErrorResponse  "Forbidden - admin only"
// @Failure      409      {object}  ErrorResponse  "Reindex already in progress"
// @Failure      503      {object}  ErrorResponse  "No embedding service configured"
// @Router       /admin/reindex [post]
func (s *Server) handleReindex(w http.ResponseWriter, r *http.Request) {
	var req ReindexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && r.ContentLength > 0 {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if s.taskQueue != nil {
		task := domain.NewReindexTask(req.ModelVersion)
		if err := s.taskQueue.Enqueue(r.Context(), task); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to enqueue reindex")
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued", "task_id": task.ID})
		return
	}

	if err := s.adminService.Reindex(r.Context(), req.ModelVersion); err != nil {
		switch {
		case errors.Is(err, domain.ErrReindexInProgress):
			writeError(w, http.StatusConflict, "reindex already in progress")
		case errors.Is(err, domain.ErrNoEmbeddingService):
			writeError(w, http.StatusServiceUnavailable, "embedding service not configured")
		default:
			writeError(w, http.StatusInternalServerError, "failed to start reindex")
		}
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

// handleCancelReindex godoc
// @Summary      Cancel reindex
// @Description  Stop an active reindex run and discard the partial build (admin only). The previously active version stays intact.
// @Tags         Admin
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  StatusResponse
// @Failure      401  {object}  ErrorResponse  "Unauthorized"
// @Failure      403  {object}  ErrorResponse  "Forbidden - admin only"
// @Router       /admin/reindex/cancel [post]
func (s *Server) handleCancelReindex(w http.ResponseWriter, r *http.Request) {
	if err := s.adminService.CancelReindex(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to cancel reindex")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// handleReindexStatus godoc
// @Summary      Reindex status
// @Description  State of the current or last reindex run (admin only)
// @Tags         Admin
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  domain.ReindexStatus
// @Failure      401  {object}  ErrorResponse  "Unauthorized"
// @Failure      403  {object}  ErrorResponse  "Forbidden - admin only"
// @Router       /admin/reindex/status [get]
func (s *Server) handleReindexStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.adminService.ReindexStatus(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get reindex status")
		return
	}

	writeJSON(w, http.StatusOK, status)
}

// handleRetryEmbeddings godoc
// @Summary      Retry failed embeddings
// @Description  Re-embed passages whose earlier embedding attempts failed (admin only)
// @Tags         Admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body      RetryEmbeddingsRequest  false  "Sweep limit"
// @Success      200      {object}  map[string]int
// @Failure      401      {object}  ErrorResponse  "Unauthorized"
// @Failure      403      {object}  ErrorResponse  "Forbidden - admin only"
// @Failure      500      {object}  ErrorResponse  "Retry sweep failed"
// @Router       /admin/retry-embeddings [post]
func (s *Server) handleRetryEmbeddings(w http.ResponseWriter, r *http.Request) {
	var req RetryEmbeddingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && r.ContentLength > 0 {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	recovered, err := s.ingestService.RetryUnindexed(r.Context(), req.Limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "retry sweep failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{"recovered": recovered})
}

// Settings endpoints

// handleGetAISettings godoc
// @Summary      Get AI settings
// @Description  Stored AI provider configuration with API keys blanked (admin only)
// @Tags         Settings
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  domain.AISettings
// @Failure      401  {object}  ErrorResponse  "Unauthorized"
// @Failure      403  {object}  ErrorResponse  "Forbidden - admin only"
// @Router       /settings/ai [get]
func (s *Server) handleGetAISettings(w http.ResponseWriter, r *http.Request) {
	settings, err := s.settingsService.GetAISettings(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get AI settings")
		return
	}

	writeJSON(w, http.StatusOK, settings)
}

// handleUpdateAISettings godoc
// @Summary      Update AI settings
// @Description  Validate and apply new AI provider settings, hot-swapping the live embedding and LLM services (admin only)
// @Tags         Settings
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body      domain.AISettings  true  "AI settings"
// @Success      200      {object}  StatusResponse
// @Failure      400      {object}  ErrorResponse  "Invalid request body or provider"
// @Failure      401      {object}  ErrorResponse  "Unauthorized"
// @Failure      403      {object}  ErrorResponse  "Forbidden - admin only"
// @Failure      503      {object}  ErrorResponse  "Provider validation failed"
// @Router       /settings/ai [put]
func (s *Server) handleUpdateAISettings(w http.ResponseWriter, r *http.Request) {
	var settings domain.AISettings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.settingsService.UpdateAISettings(r.Context(), &settings); err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidProvider):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, domain.ErrServiceUnavailable):
			writeError(w, http.StatusServiceUnavailable, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "failed to update AI settings")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// handleGetPersona godoc
// @Summary      Get persona
// @Description  Stored persona settings used by the synthesizer (admin only)
// @Tags         Settings
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  domain.PersonaSettings
// @Failure      401  {object}  ErrorResponse  "Unauthorized"
// @Failure      403  {object}  ErrorResponse  "Forbidden - admin only"
// @Router       /settings/persona [get]
func (s *Server) handleGetPersona(w http.ResponseWriter, r *http.Request) {
	persona, err := s.settingsService.GetPersona(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get persona")
		return
	}

	writeJSON(w, http.StatusOK, persona)
}

// handleUpdatePersona godoc
// @Summary      Update persona
// @Description  Store the persona description used to frame answers (admin only)
// @Tags         Settings
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request  body      domain.PersonaSettings  true  "Persona settings"
// @Success      200      {object}  StatusResponse
// @Failure      400      {object}  ErrorResponse  "Invalid request body or missing name"
// @Failure      401      {object}  ErrorResponse  "Unauthorized"
// @Failure      403      {object}  ErrorResponse  "Forbidden - admin only"
// @Router       /settings/persona [put]
func (s *Server) handleUpdatePersona(w http.ResponseWriter, r *http.Request) {
	var persona domain.PersonaSettings
	if err := json.NewDecoder(r.Body).Decode(&persona); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.settingsService.UpdatePersona(r.Context(), &persona); err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, "persona name is required")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to update persona")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// Helper functions

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}
