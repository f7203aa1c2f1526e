package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/explainlab/stability-platform/pkg/config"
	apperrors "github.com/explainlab/stability-platform/pkg/errors"
	"github.com/explainlab/stability-platform/pkg/resilience"
)

func newInferenceServer(t *testing.T, predictStatus int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/model", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"model_id": "distilbert-tweet-sentiment",
			"labels":   []string{"Positive", "Neutral", "Negative", "Irrelevant"},
		})
	})
	mux.HandleFunc("POST /v1/predict", func(w http.ResponseWriter, r *http.Request) {
		if predictStatus != http.StatusOK {
			w.WriteHeader(predictStatus)
			return
		}
		var req struct {
			Texts []string `json:"texts"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		probs := make([][]float64, len(req.Texts))
		for i := range probs {
			probs[i] = []float64{0.7, 0.1, 0.1, 0.1}
		}
		json.NewEncoder(w).Encode(map[string]any{"probabilities": probs})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(url string) config.ClassifierConfig {
	return config.ClassifierConfig{
		Kind:      "remote",
		RemoteURL: url,
		Timeout:   2 * time.Second,
	}
}

func TestNewFetchesModelInfo(t *testing.T) {
	srv := newInferenceServer(t, http.StatusOK)
	clf, err := New(testConfig(srv.URL), resilience.CircuitBreakerConfig{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if clf.ID() != "distilbert-tweet-sentiment" {
		t.Errorf("ID = %q", clf.ID())
	}
	if labels := clf.Labels(); len(labels) != 4 || labels[0] != "Positive" {
		t.Errorf("Labels = %v", labels)
	}
}

func TestNewUnreachableServer(t *testing.T) {
	_, err := New(testConfig("http://127.0.0.1:1"), resilience.CircuitBreakerConfig{})
	if !errors.Is(err, apperrors.ErrModelUnavailable) {
		t.Fatalf("err = %v, want ErrModelUnavailable", err)
	}
}

func TestPredictProbaRoundTrip(t *testing.T) {
	srv := newInferenceServer(t, http.StatusOK)
	clf, err := New(testConfig(srv.URL), resilience.CircuitBreakerConfig{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	probs, err := clf.PredictProba(context.Background(), []string{"one", "two", "three"})
	if err != nil {
		t.Fatalf("PredictProba: %v", err)
	}
	if len(probs) != 3 || len(probs[0]) != 4 {
		t.Fatalf("got shape %dx%d, want 3x4", len(probs), len(probs[0]))
	}
	if probs[0][0] != 0.7 {
		t.Errorf("probs[0][0] = %v", probs[0][0])
	}
}

func TestPredictProbaServerError(t *testing.T) {
	srv := newInferenceServer(t, http.StatusInternalServerError)
	clf, err := New(testConfig(srv.URL), resilience.CircuitBreakerConfig{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := clf.PredictProba(context.Background(), []string{"text"}); err == nil {
		t.Fatal("expected error for failing predict endpoint")
	}
}

func TestPredictProbaRetriesTransientFailure(t *testing.T) {
	var calls atomic.Int64
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/model", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"model_id": "m", "labels": []string{"a", "b"}})
	})
	mux.HandleFunc("POST /v1/predict", func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"probabilities": [][]float64{{0.5, 0.5}}})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	clf, err := New(testConfig(srv.URL), resilience.CircuitBreakerConfig{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	probs, err := clf.PredictProba(context.Background(), []string{"text"})
	if err != nil {
		t.Fatalf("PredictProba after transient failure: %v", err)
	}
	if len(probs) != 1 {
		t.Fatalf("got %d rows", len(probs))
	}
	if calls.Load() < 2 {
		t.Errorf("predict endpoint called %d times, expected a retry", calls.Load())
	}
}

func TestPing(t *testing.T) {
	srv := newInferenceServer(t, http.StatusOK)
	clf, err := New(testConfig(srv.URL), resilience.CircuitBreakerConfig{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := clf.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
	srv.Close()
	if err := clf.Ping(context.Background()); err == nil {
		t.Error("Ping must fail after server shutdown")
	}
}
