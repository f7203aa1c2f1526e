// Package config loads and validates application configuration from YAML
// files with environment-variable overrides. It provides typed structs for
// every subsystem (Server, Postgres, Kafka, Redis, Dataset, Classifier,
// Perturbation, Explainer, Evaluator, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Postgres     PostgresConfig     `yaml:"postgres"`
	Kafka        KafkaConfig        `yaml:"kafka"`
	Redis        RedisConfig        `yaml:"redis"`
	Dataset      DatasetConfig      `yaml:"dataset"`
	Classifier   ClassifierConfig   `yaml:"classifier"`
	Perturbation PerturbationConfig `yaml:"perturbation"`
	Explainer    ExplainerConfig    `yaml:"explainer"`
	Evaluator    EvaluatorConfig    `yaml:"evaluator"`
	Logging      LoggingConfig      `yaml:"logging"`
	Metrics      MetricsConfig      `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// PostgresConfig holds PostgreSQL connection parameters for the run store.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	SampleOutcomes string `yaml:"sampleOutcomes"`
	RunEvents      string `yaml:"runEvents"`
}

// RedisConfig holds Redis connection and explanation-cache parameters.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// DatasetConfig locates the tweet corpus and controls label space.
type DatasetConfig struct {
	Path   string   `yaml:"path"`
	Labels []string `yaml:"labels"`
}

// ClassifierConfig selects and configures the classifier under evaluation.
type ClassifierConfig struct {
	// Kind is "linear" (native TF-IDF + logistic regression) or "remote"
	// (HTTP inference server, e.g. the fine-tuned transformer).
	Kind      string        `yaml:"kind"`
	ModelPath string        `yaml:"modelPath"`
	RemoteURL string        `yaml:"remoteUrl"`
	Timeout   time.Duration `yaml:"timeout"`
}

// PerturbationConfig controls synonym substitution.
type PerturbationConfig struct {
	SubstitutionProbability float64 `yaml:"substitutionProbability"`
	ThesaurusPath           string  `yaml:"thesaurusPath"`
}

// ExplainerConfig selects the attribution method and its budget.
type ExplainerConfig struct {
	// Method is "lime" or "shap".
	Method string `yaml:"method"`
	TopK   int    `yaml:"topK"`
	// Samples is the perturbation budget per explanation (masked variants
	// for lime, permutations for shap).
	Samples      int  `yaml:"samples"`
	CacheEnabled bool `yaml:"cacheEnabled"`
}

// EvaluatorConfig controls the stability run itself.
type EvaluatorConfig struct {
	SampleSize  int           `yaml:"sampleSize"`
	Seed        int64         `yaml:"seed"`
	Parallelism int           `yaml:"parallelism"`
	Timeout     time.Duration `yaml:"timeout"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// defaultConfig returns a Config with the standard evaluation defaults
// (substitution probability 0.2, top-10 features).
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "stability",
			User:            "stability",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "stability-group",
			Topics: KafkaTopics{
				SampleOutcomes: "stability.sample-outcomes",
				RunEvents:      "stability.run-events",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			PoolSize: 10,
			CacheTTL: 10 * time.Minute,
		},
		Dataset: DatasetConfig{
			Path:   "data/twitter_validation.csv",
			Labels: []string{"Positive", "Neutral", "Negative", "Irrelevant"},
		},
		Classifier: ClassifierConfig{
			Kind:    "linear",
			Timeout: 30 * time.Second,
		},
		Perturbation: PerturbationConfig{
			SubstitutionProbability: 0.2,
		},
		Explainer: ExplainerConfig{
			Method:  "lime",
			TopK:    10,
			Samples: 500,
		},
		Evaluator: EvaluatorConfig{
			SampleSize:  50,
			Seed:        42,
			Parallelism: 1,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// Validate checks cross-field constraints that YAML parsing cannot express.
func (c *Config) Validate() error {
	if p := c.Perturbation.SubstitutionProbability; p < 0 || p > 1 {
		return fmt.Errorf("perturbation.substitutionProbability must be in [0,1], got %v", p)
	}
	switch c.Explainer.Method {
	case "lime", "shap":
	default:
		return fmt.Errorf("explainer.method must be lime or shap, got %q", c.Explainer.Method)
	}
	if c.Explainer.TopK <= 0 {
		return fmt.Errorf("explainer.topK must be positive, got %d", c.Explainer.TopK)
	}
	switch c.Classifier.Kind {
	case "linear", "remote":
	default:
		return fmt.Errorf("classifier.kind must be linear or remote, got %q", c.Classifier.Kind)
	}
	if c.Classifier.Kind == "remote" && c.Classifier.RemoteURL == "" {
		return fmt.Errorf("classifier.remoteUrl is required when classifier.kind is remote")
	}
	if c.Evaluator.SampleSize < 0 {
		return fmt.Errorf("evaluator.sampleSize must be non-negative, got %d", c.Evaluator.SampleSize)
	}
	if len(c.Dataset.Labels) != 3 && len(c.Dataset.Labels) != 4 {
		return fmt.Errorf("dataset.labels must name 3 or 4 classes, got %d", len(c.Dataset.Labels))
	}
	return nil
}

// applyEnvOverrides reads ES_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ES_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("ES_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("ES_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("ES_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("ES_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("ES_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("ES_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("ES_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("ES_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("ES_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("ES_DATASET_PATH"); v != "" {
		cfg.Dataset.Path = v
	}
	if v := os.Getenv("ES_CLASSIFIER_KIND"); v != "" {
		cfg.Classifier.Kind = v
	}
	if v := os.Getenv("ES_CLASSIFIER_MODEL_PATH"); v != "" {
		cfg.Classifier.ModelPath = v
	}
	if v := os.Getenv("ES_CLASSIFIER_REMOTE_URL"); v != "" {
		cfg.Classifier.RemoteURL = v
	}
	if v := os.Getenv("ES_EVALUATOR_SEED"); v != "" {
		if seed, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Evaluator.Seed = seed
		}
	}
	if v := os.Getenv("ES_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("ES_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
