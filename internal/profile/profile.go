// Package profile loads runtime configuration from flags, environment
// variables, and an optional config file, in that precedence order.
package profile

import (
	"encoding/hex"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/mnemolabs/mnemo/core"
)

// Profile is the configuration to start the ingestion service.
type Profile struct {
	// Mode can be "prod" or "dev" or "demo"
	Mode string
	// Data is the data directory
	Data string
	// Driver is the memory store driver (sqlite or postgres)
	Driver string
	// DSN points to where mnemo stores its memories
	DSN string
	// MasterKey is the hex-encoded 32-byte encryption master key.
	// Memories are stored encrypted; an empty key is rejected outside demo mode.
	MasterKey string
	// Version is the current version of the binary
	Version string

	// Vector index configuration
	VectorBackend string // MNEMO_VECTOR_BACKEND: chromem (embedded) or pgvector
	VectorDSN     string // MNEMO_VECTOR_DSN (pgvector only)

	// Gateway configuration
	LLMProvider string  // MNEMO_LLM_PROVIDER (default: deepseek)
	LLMModel    string  // MNEMO_LLM_MODEL (default: deepseek-chat)
	LLMAPIKey   string  // MNEMO_LLM_API_KEY
	LLMBaseURL  string  // MNEMO_LLM_BASE_URL
	LLMRPS      float64 // MNEMO_LLM_RPS (default: 2, requests per second)

	// Embedding configuration
	EmbeddingProvider string // MNEMO_EMBEDDING_PROVIDER (default: siliconflow)
	EmbeddingModel    string // MNEMO_EMBEDDING_MODEL (default: BAAI/bge-m3)
	EmbeddingAPIKey   string // MNEMO_EMBEDDING_API_KEY
	EmbeddingBaseURL  string // MNEMO_EMBEDDING_BASE_URL
	EmbeddingDims     int    // MNEMO_EMBEDDING_DIMS (default: 1024, matches bge-m3)

	// RedactPII enables scrubbing of emails, phone numbers, and card
	// numbers before any text reaches the gateway.
	RedactPII bool // MNEMO_REDACT_PII (default: true)

	// Pipeline tuning. Zero values fall back to core defaults.
	ExtractionThreshold float64 // MNEMO_EXTRACTION_THRESHOLD
	SimilarityThreshold float64 // MNEMO_SIMILARITY_THRESHOLD
	MaxSummaryTokens    int     // MNEMO_MAX_SUMMARY_TOKENS
	AutoResolve         bool    // MNEMO_AUTO_RESOLVE (default: true)
	Concurrency         int     // MNEMO_CONCURRENCY
	GatewayTimeoutSecs  int     // MNEMO_GATEWAY_TIMEOUT_SECS
}

func (p *Profile) IsDev() bool {
	return p.Mode != "prod"
}

// PipelineConfig builds the per-run pipeline configuration from the
// profile, falling back to defaults for unset values.
func (p *Profile) PipelineConfig() core.Config {
	cfg := core.DefaultConfig()
	if p.ExtractionThreshold > 0 {
		cfg.ExtractionThreshold = p.ExtractionThreshold
	}
	if p.SimilarityThreshold > 0 {
		cfg.SimilarityThreshold = p.SimilarityThreshold
	}
	if p.MaxSummaryTokens > 0 {
		cfg.MaxSummaryTokens = p.MaxSummaryTokens
	}
	if p.Concurrency > 0 {
		cfg.Concurrency = p.Concurrency
	}
	if p.GatewayTimeoutSecs > 0 {
		cfg.GatewayTimeout = time.Duration(p.GatewayTimeoutSecs) * time.Second
	}
	cfg.AutoResolve = p.AutoResolve
	return cfg
}

// MasterKeyBytes decodes the configured master key.
func (p *Profile) MasterKeyBytes() ([]byte, error) {
	key, err := hex.DecodeString(p.MasterKey)
	if err != nil {
		return nil, errors.Wrap(err, "master key is not valid hex")
	}
	if len(key) != 32 {
		return nil, errors.Errorf("master key must be 32 bytes, got %d", len(key))
	}
	return key, nil
}

// Load reads configuration from the environment and an optional config
// file into a Profile. Environment variables use the MNEMO_ prefix.
func Load(configFile string) (*Profile, error) {
	v := viper.New()
	v.SetEnvPrefix("mnemo")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("mode", "demo")
	v.SetDefault("data", "")
	v.SetDefault("driver", "sqlite")
	v.SetDefault("vector_backend", "chromem")
	v.SetDefault("llm_provider", "deepseek")
	v.SetDefault("llm_model", "deepseek-chat")
	v.SetDefault("llm_rps", 2.0)
	v.SetDefault("embedding_provider", "siliconflow")
	v.SetDefault("embedding_model", "BAAI/bge-m3")
	v.SetDefault("embedding_dims", 1024)
	v.SetDefault("redact_pii", true)
	v.SetDefault("auto_resolve", true)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "unable to read config file %s", configFile)
		}
	}

	p := &Profile{
		Mode:                v.GetString("mode"),
		Data:                v.GetString("data"),
		Driver:              v.GetString("driver"),
		DSN:                 v.GetString("dsn"),
		MasterKey:           v.GetString("master_key"),
		VectorBackend:       v.GetString("vector_backend"),
		VectorDSN:           v.GetString("vector_dsn"),
		LLMProvider:         v.GetString("llm_provider"),
		LLMModel:            v.GetString("llm_model"),
		LLMAPIKey:           v.GetString("llm_api_key"),
		LLMBaseURL:          v.GetString("llm_base_url"),
		LLMRPS:              v.GetFloat64("llm_rps"),
		EmbeddingProvider:   v.GetString("embedding_provider"),
		EmbeddingModel:      v.GetString("embedding_model"),
		EmbeddingAPIKey:     v.GetString("embedding_api_key"),
		EmbeddingBaseURL:    v.GetString("embedding_base_url"),
		EmbeddingDims:       v.GetInt("embedding_dims"),
		RedactPII:           v.GetBool("redact_pii"),
		ExtractionThreshold: v.GetFloat64("extraction_threshold"),
		SimilarityThreshold: v.GetFloat64("similarity_threshold"),
		MaxSummaryTokens:    v.GetInt("max_summary_tokens"),
		AutoResolve:         v.GetBool("auto_resolve"),
		Concurrency:         v.GetInt("concurrency"),
		GatewayTimeoutSecs:  v.GetInt("gateway_timeout_secs"),
	}
	return p, nil
}

func checkDataDir(dataDir string) (string, error) {
	// Convert to absolute path if relative path is supplied.
	if !filepath.IsAbs(dataDir) {
		relativeDir := filepath.Join(filepath.Dir(os.Args[0]), dataDir)
		absDir, err := filepath.Abs(relativeDir)
		if err != nil {
			return "", err
		}
		dataDir = absDir
	}

	// Trim trailing \ or / in case user supplies
	dataDir = strings.TrimRight(dataDir, "\\/")
	if _, err := os.Stat(dataDir); err != nil {
		return "", errors.Wrapf(err, "unable to access data folder %s", dataDir)
	}
	return dataDir, nil
}

// Validate normalizes the profile and rejects configurations that
// cannot start.
func (p *Profile) Validate() error {
	if p.Mode != "demo" && p.Mode != "dev" && p.Mode != "prod" {
		p.Mode = "demo"
	}

	if p.Data == "" {
		if p.Mode == "prod" {
			if runtime.GOOS == "windows" {
				p.Data = filepath.Join(os.Getenv("ProgramData"), "mnemo")
			} else {
				p.Data = "/var/opt/mnemo"
			}
		} else {
			p.Data = "."
		}
	}
	if p.Mode == "prod" {
		if _, err := os.Stat(p.Data); os.IsNotExist(err) {
			if err := os.MkdirAll(p.Data, 0770); err != nil {
				slog.Error("failed to create data directory", "data", p.Data, "error", err)
				return err
			}
		}
	}

	dataDir, err := checkDataDir(p.Data)
	if err != nil {
		slog.Error("failed to check data directory", "data", p.Data, "error", err)
		return err
	}
	p.Data = dataDir

	if p.Driver != "sqlite" && p.Driver != "postgres" {
		return errors.Errorf("unsupported store driver %q", p.Driver)
	}
	if p.Driver == "sqlite" && p.DSN == "" {
		p.DSN = filepath.Join(dataDir, "mnemo_"+p.Mode+".db")
	}
	if p.Driver == "postgres" && p.DSN == "" {
		return errors.New("postgres driver requires a DSN")
	}

	if p.VectorBackend != "chromem" && p.VectorBackend != "pgvector" {
		return errors.Errorf("unsupported vector backend %q", p.VectorBackend)
	}
	if p.VectorBackend == "pgvector" && p.VectorDSN == "" {
		// Share the store DSN when it is already postgres.
		if p.Driver == "postgres" {
			p.VectorDSN = p.DSN
		} else {
			return errors.New("pgvector backend requires MNEMO_VECTOR_DSN")
		}
	}

	if p.MasterKey == "" {
		if p.Mode == "prod" {
			return errors.New("MNEMO_MASTER_KEY is required in prod mode")
		}
		// Demo and dev fall back to an all-zero key so the encrypted
		// store works out of the box. Never usable in prod.
		p.MasterKey = strings.Repeat("00", 32)
		slog.Warn("no master key configured, using insecure demo key", "mode", p.Mode)
	}
	if _, err := p.MasterKeyBytes(); err != nil {
		return err
	}

	return nil
}
