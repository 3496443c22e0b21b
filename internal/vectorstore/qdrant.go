package vectorstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/fyrsmithlabs/knowledged/internal/kberr"
)

// QdrantStore is a Store backed by Qdrant's native gRPC client. The gRPC
// transport avoids the HTTP layer's payload limits during bulk indexing.
type QdrantStore struct {
	client     *qdrant.Client
	collection string
	vectorSize int

	maxRetries   int
	retryBackoff time.Duration

	log *zap.Logger
}

// QdrantOptions configures NewQdrantStore.
type QdrantOptions struct {
	Host         string
	Port         int
	UseTLS       bool
	Collection   string
	VectorSize   int
	MaxRetries   int
	RetryBackoff time.Duration
}

// NewQdrantStore connects to Qdrant and ensures the collection exists.
func NewQdrantStore(ctx context.Context, opts QdrantOptions, logger *zap.Logger) (*QdrantStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = time.Second
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   opts.Host,
		Port:   opts.Port,
		UseTLS: opts.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to qdrant: %w", err)
	}

	s := &QdrantStore{
		client:       client,
		collection:   opts.Collection,
		vectorSize:   opts.VectorSize,
		maxRetries:   opts.MaxRetries,
		retryBackoff: opts.RetryBackoff,
		log:          logger,
	}

	healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := client.HealthCheck(healthCtx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("qdrant health check: %w", err)
	}
	if err := s.ensureCollection(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return s, nil
}

func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("checking collection: %w", err)
	}
	if exists {
		return nil
	}
	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(s.vectorSize),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("creating collection %s: %w", s.collection, err)
	}
	return nil
}

// isTransient reports whether a gRPC failure is worth retrying.
func isTransient(err error) bool {
	st, ok := status.FromError(err)
	if !ok {
		return false
	}
	switch st.Code() {
	case grpccodes.Unavailable, grpccodes.DeadlineExceeded, grpccodes.Aborted, grpccodes.ResourceExhausted:
		return true
	default:
		return false
	}
}

// retry runs op with exponential backoff on transient failures, then wraps
// the final error into the transient/permanent taxonomy.
func (s *QdrantStore) retry(ctx context.Context, name string, op func() error) error {
	backoff := s.retryBackoff
	var err error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if err = op(); err == nil {
			return nil
		}
		if !isTransient(err) {
			return fmt.Errorf("%s: %v: %w", name, err, kberr.ErrUpstreamPermanent)
		}
		if attempt == s.maxRetries {
			break
		}
		s.log.Warn("qdrant operation failed, retrying",
			zap.String("operation", name),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return fmt.Errorf("%s after %d retries: %v: %w", name, s.maxRetries, err, kberr.ErrUpstreamTransient)
}

// Upsert writes chunks with their ownership metadata as point payloads.
func (s *QdrantStore) Upsert(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	points := make([]*qdrant.PointStruct, len(chunks))
	for i, c := range chunks {
		id := c.ID
		if id == "" {
			id = uuid.New().String()
		}
		payload := map[string]any{"text": c.Text}
		for k, v := range chunkMetadata(c) {
			payload[k] = v
		}
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(id),
			Vectors: qdrant.NewVectors(c.Embedding...),
			Payload: qdrant.NewValueMap(payload),
		}
	}

	return s.retry(ctx, "upsert", func() error {
		_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: s.collection,
			Points:         points,
		})
		return err
	})
}

// Query runs a filtered similarity search.
func (s *QdrantStore) Query(ctx context.Context, embedding []float32, filter Filter, topK int) ([]Result, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, nil
	}

	conditions := make([]*qdrant.Condition, 0, 4)
	for k, v := range filter.metadata() {
		conditions = append(conditions, qdrant.NewMatch(k, v))
	}

	var points []*qdrant.ScoredPoint
	err := s.retry(ctx, "query", func() error {
		res, err := s.client.Query(ctx, &qdrant.QueryPoints{
			CollectionName: s.collection,
			Query:          qdrant.NewQuery(embedding...),
			Filter:         &qdrant.Filter{Must: conditions},
			Limit:          qdrant.PtrOf(uint64(topK)),
			WithPayload:    qdrant.NewWithPayload(true),
		})
		if err != nil {
			return err
		}
		points = res
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]Result, 0, len(points))
	for _, p := range points {
		meta := make(map[string]string, len(p.Payload))
		for k, v := range p.Payload {
			meta[k] = v.GetStringValue()
		}
		docID, err := uuid.Parse(meta[MetaDocumentID])
		if err != nil {
			s.log.Warn("point with unparseable document id skipped",
				zap.String("point_id", p.Id.String()))
			continue
		}
		out = append(out, Result{
			ChunkID:    pointIDString(p.Id),
			DocumentID: docID,
			Text:       meta["text"],
			Filename:   meta[MetaFilename],
			Scope:      scopeOf(meta),
			Score:      float64(p.Score),
		})
	}
	return out, nil
}

func pointIDString(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if u := id.GetUuid(); u != "" {
		return u
	}
	return fmt.Sprintf("%d", id.GetNum())
}

// DeleteByDocument removes every point of a document via a payload filter.
// Deleting an absent document is a successful no-op on the Qdrant side.
func (s *QdrantStore) DeleteByDocument(ctx context.Context, docID uuid.UUID) error {
	return s.retry(ctx, "delete", func() error {
		_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
			CollectionName: s.collection,
			Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
				Must: []*qdrant.Condition{
					qdrant.NewMatch(MetaDocumentID, docID.String()),
				},
			}),
		})
		return err
	})
}

// Close closes the gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}
