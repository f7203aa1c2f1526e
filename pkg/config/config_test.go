package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Perturbation.SubstitutionProbability != 0.2 {
		t.Errorf("SubstitutionProbability = %v, want 0.2", cfg.Perturbation.SubstitutionProbability)
	}
	if cfg.Explainer.Method != "lime" || cfg.Explainer.TopK != 10 {
		t.Errorf("Explainer = %+v", cfg.Explainer)
	}
	if len(cfg.Dataset.Labels) != 4 {
		t.Errorf("Labels = %v, want 4 classes", cfg.Dataset.Labels)
	}
	if cfg.Evaluator.Seed != 42 {
		t.Errorf("Seed = %d, want 42", cfg.Evaluator.Seed)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: 9999
explainer:
  method: shap
  topK: 5
evaluator:
  sampleSize: 100
  timeout: 1m
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9999 {
		t.Errorf("Server.Port = %d, want 9999", cfg.Server.Port)
	}
	if cfg.Explainer.Method != "shap" || cfg.Explainer.TopK != 5 {
		t.Errorf("Explainer = %+v", cfg.Explainer)
	}
	if cfg.Evaluator.Timeout != time.Minute {
		t.Errorf("Evaluator.Timeout = %v, want 1m", cfg.Evaluator.Timeout)
	}
	// Untouched sections keep defaults.
	if cfg.Kafka.Topics.SampleOutcomes != "stability.sample-outcomes" {
		t.Errorf("SampleOutcomes topic = %q", cfg.Kafka.Topics.SampleOutcomes)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ES_SERVER_PORT", "7070")
	t.Setenv("ES_CLASSIFIER_KIND", "remote")
	t.Setenv("ES_CLASSIFIER_REMOTE_URL", "http://inference:9000")
	t.Setenv("ES_EVALUATOR_SEED", "7")
	t.Setenv("ES_KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("Server.Port = %d, want 7070", cfg.Server.Port)
	}
	if cfg.Classifier.Kind != "remote" || cfg.Classifier.RemoteURL != "http://inference:9000" {
		t.Errorf("Classifier = %+v", cfg.Classifier)
	}
	if cfg.Evaluator.Seed != 7 {
		t.Errorf("Seed = %d, want 7", cfg.Evaluator.Seed)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "k2:9092" {
		t.Errorf("Brokers = %v", cfg.Kafka.Brokers)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"probability above one", func(c *Config) { c.Perturbation.SubstitutionProbability = 1.5 }},
		{"negative probability", func(c *Config) { c.Perturbation.SubstitutionProbability = -0.2 }},
		{"unknown method", func(c *Config) { c.Explainer.Method = "gradcam" }},
		{"zero top-k", func(c *Config) { c.Explainer.TopK = 0 }},
		{"unknown classifier kind", func(c *Config) { c.Classifier.Kind = "quantum" }},
		{"remote without url", func(c *Config) { c.Classifier.Kind = "remote"; c.Classifier.RemoteURL = "" }},
		{"negative sample size", func(c *Config) { c.Evaluator.SampleSize = -1 }},
		{"wrong label count", func(c *Config) { c.Dataset.Labels = []string{"Positive"} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestPostgresDSN(t *testing.T) {
	p := PostgresConfig{
		Host: "db", Port: 5433, Database: "stability",
		User: "u", Password: "p", SSLMode: "disable",
	}
	want := "host=db port=5433 user=u password=p dbname=stability sslmode=disable"
	if got := p.DSN(); got != want {
		t.Errorf("DSN = %q, want %q", got, want)
	}
}
