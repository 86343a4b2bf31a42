package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-finance/bonusledger/internal/domain"
	"github.com/opensource-finance/bonusledger/internal/ledger"
	"github.com/opensource-finance/bonusledger/internal/reconcile"
	"github.com/opensource-finance/bonusledger/internal/repository"
	"github.com/opensource-finance/bonusledger/internal/rules"
	"github.com/opensource-finance/bonusledger/internal/worker"
)

// Deps are the collaborators the HTTP handlers need.
// Cache, Bus and Metrics are optional.
type Deps struct {
	Repo       domain.Repository
	Cache      domain.Cache
	Bus        domain.EventBus
	Reconciler *reconcile.Engine
	Rules      *rules.Engine
	BatchTTL   time.Duration
	Version    string
}

// Handler holds dependencies for API handlers.
type Handler struct {
	repo       domain.Repository
	cache      domain.Cache
	bus        domain.EventBus
	reconciler *reconcile.Engine
	rules      *rules.Engine
	batchTTL   time.Duration
	version    string

	uploadDir      string
	maxUploadBytes int64
	async          bool
}

// NewHandler creates a new API handler.
func NewHandler(cfg domain.ServerConfig, deps Deps) *Handler {
	batchTTL := deps.BatchTTL
	if batchTTL <= 0 {
		batchTTL = 24 * time.Hour
	}
	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 32 << 20
	}
	return &Handler{
		repo:           deps.Repo,
		cache:          deps.Cache,
		bus:            deps.Bus,
		reconciler:     deps.Reconciler,
		rules:          deps.Rules,
		batchTTL:       batchTTL,
		version:        deps.Version,
		uploadDir:      cfg.UploadDir,
		maxUploadBytes: maxUpload,
		async:          cfg.AsyncUploads && deps.Bus != nil,
	}
}

// UploadResponse is the response for POST /uploads.
type UploadResponse struct {
	Batch   *domain.ProcessingBatch `json:"batch"`
	Queued  bool                    `json:"queued"`
	TraceID string                  `json:"traceId,omitempty"`
}

// Upload handles POST /uploads: a multipart form with the export in "file"
// and optional "as_of" (YYYY-MM-DD) and "default_kind" fields.
// In async mode the batch is queued and 202 is returned; otherwise the batch
// runs in the request and its report is returned.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(h.maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart upload: "+err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	if !ledger.SupportedExtension(header.Filename) {
		writeError(w, http.StatusBadRequest, "unsupported file type: "+filepath.Ext(header.Filename))
		return
	}

	job := reconcile.Job{
		Filename:    filepath.Base(header.Filename),
		SubmittedBy: GetOperatorID(ctx),
	}
	if v := r.FormValue("as_of"); v != "" {
		asOf, err := time.Parse("2006-01-02", v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "as_of must be YYYY-MM-DD")
			return
		}
		job.AsOf = asOf
	}
	if v := r.FormValue("default_kind"); v != "" {
		kind, ok := domain.ParseDocumentKind(v)
		if !ok {
			writeError(w, http.StatusBadRequest, "default_kind must be invoice or credit_note")
			return
		}
		job.DefaultKind = kind
	}

	path, err := h.saveUpload(file, header.Filename)
	if err != nil {
		slog.Error("failed to store upload", "filename", header.Filename, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}
	job.Path = path

	if h.async {
		batch, err := h.reconciler.Submit(ctx, &job)
		if err != nil {
			os.Remove(path)
			slog.Error("failed to submit batch", "filename", job.Filename, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to submit batch")
			return
		}
		if err := worker.Enqueue(ctx, h.bus, job); err != nil {
			// The PENDING batch stays visible; it can be resubmitted.
			slog.Error("failed to enqueue batch", "batch_id", batch.ID, "error", err)
			writeError(w, http.StatusServiceUnavailable, "failed to enqueue batch")
			return
		}
		writeJSON(w, http.StatusAccepted, UploadResponse{Batch: batch, Queued: true, TraceID: GetTraceID(ctx)})
		return
	}

	defer os.Remove(path)
	batch, err := h.reconciler.Process(ctx, job)
	switch {
	case batch == nil:
		slog.Error("failed to process upload", "filename", job.Filename, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to process upload")
	case err != nil:
		// Finalized as FAILED; the batch carries the reason.
		status := http.StatusInternalServerError
		if domain.IsMalformedInput(err) {
			status = http.StatusUnprocessableEntity
		}
		writeJSON(w, status, UploadResponse{Batch: batch, TraceID: GetTraceID(ctx)})
	default:
		h.cacheBatch(r, batch)
		writeJSON(w, http.StatusCreated, UploadResponse{Batch: batch, TraceID: GetTraceID(ctx)})
	}
}

func (h *Handler) saveUpload(src io.Reader, filename string) (string, error) {
	if err := os.MkdirAll(h.uploadDir, 0o750); err != nil {
		return "", err
	}
	dst, err := os.CreateTemp(h.uploadDir, "upload-*"+strings.ToLower(filepath.Ext(filename)))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(dst.Name())
		return "", err
	}
	if err := dst.Close(); err != nil {
		os.Remove(dst.Name())
		return "", err
	}
	return dst.Name(), nil
}

// ListBatches handles GET /batches.
func (h *Handler) ListBatches(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	batches, err := h.repo.ListBatches(r.Context(), limit)
	if err != nil {
		slog.Error("failed to list batches", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list batches")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"batches": batches,
		"count":   len(batches),
	})
}

// GetBatch handles GET /batches/{id}. Finalized batches are immutable and
// served from the cache when present.
func (h *Handler) GetBatch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	batchID := chi.URLParam(r, "id")

	if h.cache != nil {
		if batch, err := h.cache.GetBatch(ctx, batchID); err == nil && batch != nil {
			w.Header().Set("X-Cache", "HIT")
			writeJSON(w, http.StatusOK, batch)
			return
		}
	}

	batch, err := h.repo.GetBatch(ctx, batchID)
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "batch not found")
		return
	}
	if err != nil {
		slog.Error("failed to get batch", "batch_id", batchID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get batch")
		return
	}

	h.cacheBatch(r, batch)
	writeJSON(w, http.StatusOK, batch)
}

func (h *Handler) cacheBatch(r *http.Request, batch *domain.ProcessingBatch) {
	if h.cache == nil || !batch.Status.Finished() {
		return
	}
	if err := h.cache.SetBatch(r.Context(), batch, h.batchTTL); err != nil {
		slog.Warn("failed to cache batch", "batch_id", batch.ID, "error", err)
	}
}

// ListClientTransactions handles GET /clients/{code}/transactions with
// optional kind, document, batch and limit query parameters.
func (h *Handler) ListClientTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	code := chi.URLParam(r, "code")

	if _, err := h.repo.GetClientByCode(ctx, code); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "client not found")
			return
		}
		slog.Error("failed to get client", "client_code", code, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get client")
		return
	}

	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	q := r.URL.Query()
	filter := domain.TransactionFilter{
		ClientCode: code,
		DocumentID: q.Get("document"),
		BatchID:    q.Get("batch"),
		Kind:       domain.TransactionKind(strings.ToUpper(q.Get("kind"))),
		Limit:      limit,
	}
	switch filter.Kind {
	case "", domain.KindStandardPoints, domain.KindCreditReversal:
	default:
		writeError(w, http.StatusBadRequest, "unknown transaction kind: "+q.Get("kind"))
		return
	}

	txs, err := h.repo.ListTransactions(ctx, filter)
	if err != nil {
		slog.Error("failed to list transactions", "client_code", code, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list transactions")
		return
	}
	if txs == nil {
		txs = []*domain.PointsTransaction{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"clientCode":   code,
		"transactions": txs,
		"count":        len(txs),
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.bus != nil {
		if err := h.bus.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready reports whether the store is reachable.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil || h.repo.Ping(r.Context()) != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"ready": "false",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// ListRules returns the exclusion rules loaded in the engine.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	loaded := h.rules.GetLoadedRules()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules":  loaded,
		"count":  len(loaded),
		"source": "database",
	})
}

// GetRule retrieves a loaded rule by ID.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "id")

	for _, rule := range h.rules.GetLoadedRules() {
		if rule.ID == ruleID {
			writeJSON(w, http.StatusOK, rule)
			return
		}
	}

	writeError(w, http.StatusNotFound, "rule not found")
}

// CreateRuleRequest is the request body for creating a rule.
type CreateRuleRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Expression  string `json:"expression"`
	Enabled     bool   `json:"enabled"`
}

// CreateRule validates and saves an exclusion rule.
// After saving, call POST /rules/reload to apply it to new runs.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}

	if req.ID == "" || req.Name == "" || req.Expression == "" {
		writeError(w, http.StatusBadRequest, "id, name, and expression are required")
		return
	}

	rule := &domain.LineRule{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
		Expression:  req.Expression,
		Enabled:     req.Enabled,
	}

	if err := h.rules.ValidateRule(rule); err != nil {
		writeError(w, http.StatusBadRequest, "invalid CEL expression: "+err.Error())
		return
	}

	if err := h.repo.SaveLineRule(r.Context(), rule); err != nil {
		slog.Error("failed to save rule", "id", rule.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save rule")
		return
	}

	slog.Info("rule saved", "id", rule.ID, "name", rule.Name, "operator_id", GetOperatorID(r.Context()))
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"rule":    rule,
		"message": "Rule saved. Call POST /rules/reload to apply changes.",
	})
}

// ReloadRules reloads all rules from the database into the engine.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	dbRules, err := h.repo.ListLineRules(r.Context())
	if err != nil {
		slog.Error("failed to list rules from database", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load rules from database")
		return
	}

	if err := h.rules.ReloadRules(dbRules); err != nil {
		slog.Error("failed to reload rules into engine", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to reload rules: "+err.Error())
		return
	}

	slog.Info("rules reloaded from database", "count", h.rules.RulesCount())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "rules reloaded successfully",
		"count":   h.rules.RulesCount(),
	})
}

func queryLimit(r *http.Request) (int, error) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("limit must be a non-negative integer")
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
