// Package server exposes the evaluation API: submitting stability runs,
// polling their state, and listing recent reports.
package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/explainlab/stability-platform/internal/stability"
	"github.com/explainlab/stability-platform/internal/stability/store"
	apperrors "github.com/explainlab/stability-platform/pkg/errors"
	"github.com/explainlab/stability-platform/pkg/logger"
)

// RunStore is the persistence boundary the handler needs. Implemented by
// the PostgreSQL store; tests supply an in-memory version.
type RunStore interface {
	Create(ctx context.Context, run store.Run) error
	SetState(ctx context.Context, runID string, state stability.State) error
	Finish(ctx context.Context, runID string, state stability.State, report *stability.Report, runErr error) error
	Get(ctx context.Context, runID string) (*store.Run, error)
	List(ctx context.Context, limit int) ([]store.Run, error)
}

// EvaluatorFactory builds a ready Evaluator for a run. The service wires
// the classifier, explainer, dataset, and perturber; only per-run options
// vary per request.
type EvaluatorFactory func(runID string, opts stability.Options) *stability.Evaluator

// Handler serves the run API.
type Handler struct {
	store        RunStore
	newEvaluator EvaluatorFactory
	classifierID string
	method       string
	defaults     stability.Options
	runTimeout   time.Duration
	logger       *slog.Logger
}

// NewHandler creates the run API handler. defaults fills request fields the
// caller omits; runTimeout bounds background run execution (zero means no
// bound).
func NewHandler(runStore RunStore, factory EvaluatorFactory, classifierID, method string, defaults stability.Options, runTimeout time.Duration) *Handler {
	return &Handler{
		store:        runStore,
		newEvaluator: factory,
		classifierID: classifierID,
		method:       method,
		defaults:     defaults,
		runTimeout:   runTimeout,
		logger:       slog.Default().With("component", "run-handler"),
	}
}

// RunRequest is the POST /api/v1/runs payload. Zero-valued fields fall back
// to the configured defaults.
type RunRequest struct {
	SampleSize              int      `json:"sample_size"`
	SubstitutionProbability *float64 `json:"substitution_probability"`
	TopK                    int      `json:"top_k"`
	Seed                    *int64   `json:"seed"`
	Parallelism             int      `json:"parallelism"`
}

// RunResponse acknowledges an accepted run.
type RunResponse struct {
	RunID string `json:"run_id"`
	State string `json:"state"`
}

// Submit handles POST /api/v1/runs: it validates the request, records the
// run, and evaluates it in the background.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, apperrors.Newf(apperrors.ErrInvalidInput, 400, "decoding request: %v", err))
		return
	}
	opts := h.mergeOptions(req)
	if p := opts.SubstitutionProbability; p < 0 || p > 1 {
		h.writeError(w, r, apperrors.Newf(apperrors.ErrInvalidInput, 400,
			"substitution_probability %v outside [0,1]", p))
		return
	}
	if opts.TopK <= 0 {
		h.writeError(w, r, apperrors.Newf(apperrors.ErrInvalidInput, 400,
			"top_k must be positive, got %d", opts.TopK))
		return
	}

	runID := newRunID()
	run := store.Run{
		ID:           runID,
		State:        stability.StateInit.String(),
		ClassifierID: h.classifierID,
		Method:       h.method,
		Options:      opts,
	}
	if err := h.store.Create(r.Context(), run); err != nil {
		h.writeError(w, r, err)
		return
	}

	go h.execute(runID, opts)

	logger.FromContext(r.Context()).Info("run accepted", "run_id", runID)
	h.writeJSON(w, http.StatusAccepted, RunResponse{RunID: runID, State: stability.StateInit.String()})
}

// execute drives one run to a terminal state in the background.
func (h *Handler) execute(runID string, opts stability.Options) {
	ctx := context.Background()
	if h.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.runTimeout)
		defer cancel()
	}

	if err := h.store.SetState(ctx, runID, stability.StateScoring); err != nil {
		h.logger.Error("failed to mark run scoring", "run_id", runID, "error", err)
	}

	evaluator := h.newEvaluator(runID, opts)
	report, err := evaluator.Run(ctx)
	state := stability.StateDone
	if err != nil {
		state = stability.StateFailed
	}
	if storeErr := h.store.Finish(ctx, runID, state, report, err); storeErr != nil {
		h.logger.Error("failed to persist run result", "run_id", runID, "error", storeErr)
	}
}

// Get handles GET /api/v1/runs/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	run, err := h.store.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, run)
}

// List handles GET /api/v1/runs.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			h.writeError(w, r, apperrors.Newf(apperrors.ErrInvalidInput, 400, "invalid limit %q", v))
			return
		}
		limit = parsed
	}
	runs, err := h.store.List(r.Context(), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

func (h *Handler) mergeOptions(req RunRequest) stability.Options {
	opts := h.defaults
	if req.SampleSize > 0 {
		opts.SampleSize = req.SampleSize
	}
	if req.SubstitutionProbability != nil {
		opts.SubstitutionProbability = *req.SubstitutionProbability
	}
	if req.TopK > 0 {
		opts.TopK = req.TopK
	}
	if req.Seed != nil {
		opts.Seed = *req.Seed
	}
	if req.Parallelism > 0 {
		opts.Parallelism = req.Parallelism
	}
	return opts
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatusCode(err)
	logger.FromContext(r.Context()).Warn("request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"status", status,
		"error", err,
	)
	h.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func newRunID() string {
	var b [12]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "run-" + strconv.FormatInt(time.Now().UnixNano(), 36)
	}
	return hex.EncodeToString(b[:])
}
