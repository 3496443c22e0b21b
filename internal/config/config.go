// Package config provides configuration loading for knowledged.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the knowledged daemon.
type Config struct {
	Server        ServerConfig        `koanf:"server"`
	Log           LogConfig           `koanf:"log"`
	Database      DatabaseConfig      `koanf:"database"`
	VectorStore   VectorStoreConfig   `koanf:"vectorstore"`
	Embeddings    EmbeddingsConfig    `koanf:"embeddings"`
	Completion    CompletionConfig    `koanf:"completion"`
	Quota         QuotaConfig         `koanf:"quota"`
	Retrieval     RetrievalConfig     `koanf:"retrieval"`
	Customization CustomizationConfig `koanf:"customization"`
}

// ServerConfig configures the operational HTTP endpoints (health, metrics).
type ServerConfig struct {
	Host string `koanf:"host"`
	Port int    `koanf:"port"`
}

// LogConfig configures zap construction.
type LogConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // json or console
}

// DatabaseConfig configures the relational store.
// Driver "sqlite" uses a pure-Go driver and suits tests and single-node
// deploys; "postgres" is the production target.
type DatabaseConfig struct {
	Driver   string `koanf:"driver"`
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	Name     string `koanf:"name"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	SSLMode  string `koanf:"sslmode"`
	Path     string `koanf:"path"` // sqlite file path, ":memory:" for in-memory
}

// VectorStoreConfig selects and configures the vector store capability.
type VectorStoreConfig struct {
	Provider   string        `koanf:"provider"` // qdrant or chromem
	Collection string        `koanf:"collection"`
	VectorSize int           `koanf:"vector_size"`
	Qdrant     QdrantConfig  `koanf:"qdrant"`
	Chromem    ChromemConfig `koanf:"chromem"`
}

// QdrantConfig holds connection settings for the Qdrant gRPC client.
type QdrantConfig struct {
	Host         string        `koanf:"host"`
	Port         int           `koanf:"port"`
	UseTLS       bool          `koanf:"use_tls"`
	MaxRetries   int           `koanf:"max_retries"`
	RetryBackoff time.Duration `koanf:"retry_backoff"`
}

// ChromemConfig holds settings for the embedded chromem-go store.
type ChromemConfig struct {
	Path     string `koanf:"path"` // empty = in-memory
	Compress bool   `koanf:"compress"`
}

// EmbeddingsConfig configures the embedding capability (OpenAI-compatible API).
type EmbeddingsConfig struct {
	BaseURL string `koanf:"base_url"`
	Model   string `koanf:"model"`
	APIKey  string `koanf:"api_key"`
}

// CompletionConfig configures the completion capability.
type CompletionConfig struct {
	BaseURL      string        `koanf:"base_url"`
	APIKey       string        `koanf:"api_key"`
	MaxRetries   int           `koanf:"max_retries"`
	RetryBackoff time.Duration `koanf:"retry_backoff"`
	RatePerSec   float64       `koanf:"rate_per_sec"` // upstream QPS guard, 0 = unlimited
}

// QuotaConfig holds platform quota defaults applied when rows are first created.
type QuotaConfig struct {
	PersonalMaxDocuments    int              `koanf:"personal_max_documents"`
	PersonalMaxQueriesDaily int              `koanf:"personal_max_queries_daily"`
	DefaultOrg              OrgQuotaDefaults `koanf:"default_org"`
}

// OrgQuotaDefaults are the limits assigned to newly created organizations.
type OrgQuotaDefaults struct {
	MaxMembers             int `koanf:"max_members"`
	MaxDocuments           int `koanf:"max_documents"`
	MaxStorageMB           int `koanf:"max_storage_mb"`
	MaxQueriesPerUserDaily int `koanf:"max_queries_per_user_daily"`
	MaxQueriesOrgDaily     int `koanf:"max_queries_org_daily"`
}

// RetrievalConfig tunes the retrieval engine.
type RetrievalConfig struct {
	TopK           int               `koanf:"top_k"`
	ScoreThreshold float64           `koanf:"score_threshold"`
	CacheTTL       time.Duration     `koanf:"cache_ttl"`
	ExpandQueries  bool              `koanf:"expand_queries"`
	Synonyms       map[string]string `koanf:"synonyms"`
}

// CustomizationConfig holds the platform-default answer configuration and the
// settings cache TTL.
type CustomizationConfig struct {
	CacheTTL time.Duration  `koanf:"cache_ttl"`
	Defaults AnswerDefaults `koanf:"defaults"`
}

// AnswerDefaults are the platform defaults overlaid by organization settings.
type AnswerDefaults struct {
	SystemPrompt     string  `koanf:"system_prompt"`
	Model            string  `koanf:"model"`
	Temperature      float64 `koanf:"temperature"`
	MaxTokens        int     `koanf:"max_tokens"`
	PrimaryLanguage  string  `koanf:"primary_language"`
	CitationFormat   string  `koanf:"citation_format"`
	ResponseFormat   string  `koanf:"response_format"` // plain or markdown
	ShowConfidence   bool    `koanf:"show_confidence"`
	NoResultsMessage string  `koanf:"no_results_message"`
}

// DefaultSystemPrompt is the platform-wide answering prompt used when an
// organization has not customized its own.
const DefaultSystemPrompt = `You are a knowledge-base assistant. Answer questions using ONLY the information in the provided context.

Rules:
- If the context does not contain the answer, say so plainly instead of guessing.
- Cite the source document for every fact, e.g. [filename].
- Preserve original numbering, codes and indexes from the documents.
- Keep answers structured and concise.`

// DefaultNoResultsMessage is returned when retrieval yields no context.
const DefaultNoResultsMessage = "No relevant information was found in the uploaded documents. " +
	"Try rephrasing the question, using different keywords, or uploading documents on this topic."

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "localhost"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 9090
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Path == "" {
		c.Database.Path = "knowledged.db"
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.VectorStore.Provider == "" {
		c.VectorStore.Provider = "chromem"
	}
	if c.VectorStore.Collection == "" {
		c.VectorStore.Collection = "kb_chunks"
	}
	if c.VectorStore.VectorSize == 0 {
		c.VectorStore.VectorSize = 1536
	}
	if c.VectorStore.Qdrant.Host == "" {
		c.VectorStore.Qdrant.Host = "localhost"
	}
	if c.VectorStore.Qdrant.Port == 0 {
		c.VectorStore.Qdrant.Port = 6334
	}
	if c.VectorStore.Qdrant.MaxRetries == 0 {
		c.VectorStore.Qdrant.MaxRetries = 3
	}
	if c.VectorStore.Qdrant.RetryBackoff == 0 {
		c.VectorStore.Qdrant.RetryBackoff = time.Second
	}
	if c.Embeddings.BaseURL == "" {
		c.Embeddings.BaseURL = "https://api.openai.com/v1"
	}
	if c.Embeddings.Model == "" {
		c.Embeddings.Model = "text-embedding-3-small"
	}
	if c.Completion.BaseURL == "" {
		c.Completion.BaseURL = "https://api.openai.com/v1"
	}
	if c.Completion.MaxRetries == 0 {
		c.Completion.MaxRetries = 3
	}
	if c.Completion.RetryBackoff == 0 {
		c.Completion.RetryBackoff = 2 * time.Second
	}
	if c.Quota.PersonalMaxDocuments == 0 {
		c.Quota.PersonalMaxDocuments = 5
	}
	if c.Quota.PersonalMaxQueriesDaily == 0 {
		c.Quota.PersonalMaxQueriesDaily = 100
	}
	if c.Quota.DefaultOrg.MaxMembers == 0 {
		c.Quota.DefaultOrg.MaxMembers = 10
	}
	if c.Quota.DefaultOrg.MaxDocuments == 0 {
		c.Quota.DefaultOrg.MaxDocuments = 50
	}
	if c.Quota.DefaultOrg.MaxStorageMB == 0 {
		c.Quota.DefaultOrg.MaxStorageMB = 1000
	}
	if c.Quota.DefaultOrg.MaxQueriesPerUserDaily == 0 {
		c.Quota.DefaultOrg.MaxQueriesPerUserDaily = 100
	}
	if c.Quota.DefaultOrg.MaxQueriesOrgDaily == 0 {
		c.Quota.DefaultOrg.MaxQueriesOrgDaily = 500
	}
	if c.Retrieval.TopK == 0 {
		c.Retrieval.TopK = 5
	}
	if c.Retrieval.ScoreThreshold == 0 {
		c.Retrieval.ScoreThreshold = 0.35
	}
	if c.Retrieval.CacheTTL == 0 {
		c.Retrieval.CacheTTL = 5 * time.Minute
	}
	if c.Customization.CacheTTL == 0 {
		c.Customization.CacheTTL = 30 * time.Second
	}
	if c.Customization.Defaults.SystemPrompt == "" {
		c.Customization.Defaults.SystemPrompt = DefaultSystemPrompt
	}
	if c.Customization.Defaults.Model == "" {
		c.Customization.Defaults.Model = "gpt-4o-mini"
	}
	if c.Customization.Defaults.Temperature == 0 {
		c.Customization.Defaults.Temperature = 0.5
	}
	if c.Customization.Defaults.MaxTokens == 0 {
		c.Customization.Defaults.MaxTokens = 4096
	}
	if c.Customization.Defaults.PrimaryLanguage == "" {
		c.Customization.Defaults.PrimaryLanguage = "en"
	}
	if c.Customization.Defaults.CitationFormat == "" {
		c.Customization.Defaults.CitationFormat = "inline"
	}
	if c.Customization.Defaults.ResponseFormat == "" {
		c.Customization.Defaults.ResponseFormat = "plain"
	}
	if c.Customization.Defaults.NoResultsMessage == "" {
		c.Customization.Defaults.NoResultsMessage = DefaultNoResultsMessage
	}
}

// Validate checks configuration consistency.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres", "postgresql":
	default:
		return fmt.Errorf("unsupported database driver: %q", c.Database.Driver)
	}
	switch c.VectorStore.Provider {
	case "qdrant", "chromem":
	default:
		return fmt.Errorf("unsupported vector store provider: %q", c.VectorStore.Provider)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("unsupported log format: %q", c.Log.Format)
	}
	if c.VectorStore.VectorSize <= 0 {
		return fmt.Errorf("vector size must be positive, got %d", c.VectorStore.VectorSize)
	}
	if c.Retrieval.ScoreThreshold < 0 || c.Retrieval.ScoreThreshold > 1 {
		return fmt.Errorf("score threshold must be in [0,1], got %f", c.Retrieval.ScoreThreshold)
	}
	if t := c.Customization.Defaults.Temperature; t < 0 || t > 2 {
		return fmt.Errorf("default temperature must be in [0,2], got %f", t)
	}
	return nil
}
