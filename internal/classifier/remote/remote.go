// Package remote adapts an HTTP inference server (the fine-tuned
// transformer lives behind one) to the Classifier interface. Calls are
// wrapped with retry and a circuit breaker because a GPU-backed server is
// the least reliable dependency of a run.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/explainlab/stability-platform/pkg/config"
	apperrors "github.com/explainlab/stability-platform/pkg/errors"
	"github.com/explainlab/stability-platform/pkg/resilience"
)

type predictRequest struct {
	Texts []string `json:"texts"`
}

type predictResponse struct {
	Probabilities [][]float64 `json:"probabilities"`
}

type infoResponse struct {
	ModelID string   `json:"model_id"`
	Labels  []string `json:"labels"`
}

// Classifier calls a remote inference server exposing:
//
//	GET  /v1/model            -> {"model_id": ..., "labels": [...]}
//	POST /v1/predict          -> {"probabilities": [[...], ...]}
type Classifier struct {
	baseURL string
	client  *http.Client
	breaker *resilience.CircuitBreaker
	logger  *slog.Logger

	modelID string
	labels  []string
}

// New connects to the inference server and fetches model metadata. A server
// that cannot be reached or describes no labels is ErrModelUnavailable.
func New(cfg config.ClassifierConfig, breakerCfg resilience.CircuitBreakerConfig) (*Classifier, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Classifier{
		baseURL: cfg.RemoteURL,
		client:  &http.Client{Timeout: timeout},
		breaker: resilience.NewCircuitBreaker("remote-classifier", breakerCfg),
		logger:  slog.Default().With("component", "remote-classifier", "url", cfg.RemoteURL),
	}

	var info *infoResponse
	err := resilience.WithTimeout(context.Background(), timeout, "model-info", func(ctx context.Context) error {
		var ferr error
		info, ferr = c.fetchInfo(ctx)
		return ferr
	})
	if err != nil {
		return nil, apperrors.Newf(apperrors.ErrModelUnavailable, 503,
			"fetching model info from %s: %v", cfg.RemoteURL, err)
	}
	if len(info.Labels) == 0 {
		return nil, apperrors.Newf(apperrors.ErrModelUnavailable, 503,
			"inference server %s reports no labels", cfg.RemoteURL)
	}
	c.modelID = info.ModelID
	c.labels = info.Labels
	c.logger.Info("remote model attached", "model_id", c.modelID, "labels", len(c.labels))
	return c, nil
}

func (c *Classifier) ID() string {
	return c.modelID
}

func (c *Classifier) Labels() []string {
	out := make([]string, len(c.labels))
	copy(out, c.labels)
	return out
}

// PredictProba sends one batch request. Transient failures are retried with
// backoff; repeated failures trip the breaker so a dead server fails runs
// fast instead of stalling them.
func (c *Classifier) PredictProba(ctx context.Context, texts []string) ([][]float64, error) {
	var probs [][]float64
	retryCfg := resilience.RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 200 * time.Millisecond,
	}
	err := resilience.Retry(ctx, "remote-predict", retryCfg, func() error {
		return c.breaker.Execute(func() error {
			result, err := c.predictOnce(ctx, texts)
			if err != nil {
				return err
			}
			probs = result
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("remote predict (%d texts): %w", len(texts), err)
	}
	if len(probs) != len(texts) {
		return nil, fmt.Errorf("remote predict: got %d rows for %d texts", len(probs), len(texts))
	}
	return probs, nil
}

func (c *Classifier) predictOnce(ctx context.Context, texts []string) ([][]float64, error) {
	body, err := json.Marshal(predictRequest{Texts: texts})
	if err != nil {
		return nil, fmt.Errorf("marshaling predict request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/predict", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building predict request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling inference server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("inference server returned %d: %s", resp.StatusCode, payload)
	}
	var decoded predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decoding predict response: %w", err)
	}
	return decoded.Probabilities, nil
}

func (c *Classifier) fetchInfo(ctx context.Context) (*infoResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/model", nil)
	if err != nil {
		return nil, fmt.Errorf("building info request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling inference server: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("inference server returned %d", resp.StatusCode)
	}
	var info infoResponse
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decoding model info: %w", err)
	}
	return &info, nil
}

// Ping verifies the server still answers model-info requests. Used by the
// health checker.
func (c *Classifier) Ping(ctx context.Context) error {
	_, err := c.fetchInfo(ctx)
	return err
}
