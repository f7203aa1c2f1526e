package benchmark

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/explainlab/stability-platform/internal/classifier/linear"
	"github.com/explainlab/stability-platform/internal/explain/lime"
	"github.com/explainlab/stability-platform/internal/explain/shap"
	"github.com/explainlab/stability-platform/internal/perturb"
	"github.com/explainlab/stability-platform/internal/stability"
	"github.com/explainlab/stability-platform/internal/thesaurus"
)

var sampleTweets = map[string]string{
	"short":  "I love this game",
	"medium": "the new update broke everything and now the game crashes every time I try to play with my team really annoying",
	"long": strings.Repeat("the servers keep lagging and support never answers which is a huge problem "+
		"because I spent money on this product and the quality keeps getting worse with every release ", 5),
}

func benchClassifier(b *testing.B) *linear.Classifier {
	b.Helper()
	vocab := make(map[string]int)
	words := []string{"love", "hate", "game", "update", "crash", "lag", "server", "support", "money", "quality", "product", "release", "team", "play"}
	for i, w := range words {
		vocab[w] = i
	}
	idf := make([]float64, len(words))
	coefs := make([][]float64, 2)
	for c := range coefs {
		coefs[c] = make([]float64, len(words))
	}
	for i := range words {
		idf[i] = 1
		coefs[0][i] = float64(i%3) - 1
		coefs[1][i] = 1 - float64(i%3)
	}
	clf, err := linear.New(linear.Model{
		ID:           "bench-model",
		Labels:       []string{"Positive", "Negative"},
		Vocabulary:   vocab,
		IDF:          idf,
		Coefficients: coefs,
		Intercepts:   []float64{0, 0},
	})
	if err != nil {
		b.Fatalf("building bench model: %v", err)
	}
	return clf
}

func BenchmarkPerturb(b *testing.B) {
	th := thesaurus.Embedded()
	for name, text := range sampleTweets {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			p := perturb.New(th, 42)
			for i := 0; i < b.N; i++ {
				out := p.Perturb(text, 0.2)
				_ = out
			}
		})
	}
}

func BenchmarkJaccard(b *testing.B) {
	sizes := []int{5, 10, 50}
	for _, size := range sizes {
		a := make(map[string]struct{}, size)
		c := make(map[string]struct{}, size)
		for i := 0; i < size; i++ {
			a[fmt.Sprintf("token%d", i)] = struct{}{}
			c[fmt.Sprintf("token%d", i+size/2)] = struct{}{}
		}
		b.Run(fmt.Sprintf("size_%d", size), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				score, err := stability.Jaccard(a, c)
				if err != nil {
					b.Fatal(err)
				}
				_ = score
			}
		})
	}
}

func BenchmarkLimeExplain(b *testing.B) {
	clf := benchClassifier(b)
	ctx := context.Background()
	for name, text := range sampleTweets {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			e := lime.New(100, 42)
			for i := 0; i < b.N; i++ {
				if _, err := e.Explain(ctx, text, clf, 10); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkShapExplain(b *testing.B) {
	clf := benchClassifier(b)
	ctx := context.Background()
	for name, text := range sampleTweets {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			e := shap.New(8, 42)
			for i := 0; i < b.N; i++ {
				if _, err := e.Explain(ctx, text, clf, 10); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkLinearPredict(b *testing.B) {
	clf := benchClassifier(b)
	ctx := context.Background()
	texts := make([]string, 0, len(sampleTweets))
	for _, t := range sampleTweets {
		texts = append(texts, t)
	}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := clf.PredictProba(ctx, texts); err != nil {
			b.Fatal(err)
		}
	}
}
