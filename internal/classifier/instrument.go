package classifier

import (
	"context"
	"time"

	"github.com/explainlab/stability-platform/pkg/metrics"
)

// Instrumented wraps a Classifier and records predict-batch latency.
type Instrumented struct {
	inner Classifier
	m     *metrics.Metrics
}

// Instrument wraps clf with latency recording. A nil metrics registry
// returns clf unchanged.
func Instrument(clf Classifier, m *metrics.Metrics) Classifier {
	if m == nil {
		return clf
	}
	return &Instrumented{inner: clf, m: m}
}

func (i *Instrumented) ID() string       { return i.inner.ID() }
func (i *Instrumented) Labels() []string { return i.inner.Labels() }

func (i *Instrumented) PredictProba(ctx context.Context, texts []string) ([][]float64, error) {
	start := time.Now()
	probs, err := i.inner.PredictProba(ctx, texts)
	if err == nil {
		i.m.PredictLatency.WithLabelValues(i.inner.ID()).Observe(time.Since(start).Seconds())
	}
	return probs, err
}

// Ping forwards to the inner classifier when it supports health probes.
func (i *Instrumented) Ping(ctx context.Context) error {
	if pinger, ok := i.inner.(interface{ Ping(context.Context) error }); ok {
		return pinger.Ping(ctx)
	}
	return nil
}
