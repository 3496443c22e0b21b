package vectorstore

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/knowledged/internal/config"
)

// New constructs the configured Store implementation.
func New(ctx context.Context, cfg config.VectorStoreConfig, logger *zap.Logger) (Store, error) {
	switch cfg.Provider {
	case "chromem":
		return NewChromemStore(cfg.Chromem.Path, cfg.Collection, cfg.Chromem.Compress, logger)
	case "qdrant":
		return NewQdrantStore(ctx, QdrantOptions{
			Host:         cfg.Qdrant.Host,
			Port:         cfg.Qdrant.Port,
			UseTLS:       cfg.Qdrant.UseTLS,
			Collection:   cfg.Collection,
			VectorSize:   cfg.VectorSize,
			MaxRetries:   cfg.Qdrant.MaxRetries,
			RetryBackoff: cfg.Qdrant.RetryBackoff,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown vector store provider: %q", cfg.Provider)
	}
}
