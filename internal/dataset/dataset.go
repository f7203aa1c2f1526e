// Package dataset loads the four-column tweet sentiment corpus
// (identifier, entity, sentiment label, raw text) and provides seeded
// subsampling for reproducible evaluation runs.
package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"strings"
)

// Sample is one labelled input text. Immutable once drawn from the corpus.
type Sample struct {
	ID     string
	Entity string
	Label  string
	Text   string
}

// Dataset holds the usable rows of a corpus file plus a count of rows
// rejected at load time.
type Dataset struct {
	Samples []Sample
	// Malformed counts rows dropped for missing text, wrong column count,
	// or an unknown label. Malformed rows never reach the evaluator.
	Malformed int
}

// Load reads a CSV corpus from path. Only rows whose label appears in
// labels are kept.
func Load(path string, labels []string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening dataset %s: %w", path, err)
	}
	defer f.Close()
	d, err := LoadReader(f, labels)
	if err != nil {
		return nil, fmt.Errorf("loading dataset %s: %w", path, err)
	}
	return d, nil
}

// LoadReader reads a CSV corpus from r. Rows with missing or whitespace-only
// text are excluded here, before any evaluation sees them.
func LoadReader(r io.Reader, labels []string) (*Dataset, error) {
	known := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		known[l] = struct{}{}
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	d := &Dataset{}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading csv: %w", err)
		}
		if len(record) != 4 {
			d.Malformed++
			continue
		}
		label := strings.TrimSpace(record[2])
		text := record[3]
		if strings.TrimSpace(text) == "" {
			d.Malformed++
			continue
		}
		if _, ok := known[label]; !ok {
			d.Malformed++
			continue
		}
		d.Samples = append(d.Samples, Sample{
			ID:     strings.TrimSpace(record[0]),
			Entity: strings.TrimSpace(record[1]),
			Label:  label,
			Text:   text,
		})
	}

	if d.Malformed > 0 {
		slog.Default().With("component", "dataset").Warn("dropped malformed rows",
			"malformed", d.Malformed,
			"kept", len(d.Samples),
		)
	}
	return d, nil
}

// Len returns the number of usable samples.
func (d *Dataset) Len() int {
	return len(d.Samples)
}

// Subsample draws n samples without replacement using the supplied random
// source. Deterministic for a given seed. When n is zero or exceeds the
// corpus size, all samples are returned in corpus order.
func (d *Dataset) Subsample(n int, rng *rand.Rand) []Sample {
	if n <= 0 || n >= len(d.Samples) {
		out := make([]Sample, len(d.Samples))
		copy(out, d.Samples)
		return out
	}
	perm := rng.Perm(len(d.Samples))
	out := make([]Sample, 0, n)
	for _, idx := range perm[:n] {
		out = append(out, d.Samples[idx])
	}
	return out
}
