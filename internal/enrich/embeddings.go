package enrich

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"hopper/internal/flags"
	"hopper/internal/logging"
	"hopper/internal/queue"
	"hopper/internal/services"
	"hopper/internal/stage"
)

const embeddingBatchSize = 30

// Embedder is the slice of the embeddings client this stage needs.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	HealthCheck(ctx context.Context) error
}

// EmbeddingGeneration vectorizes post content for similarity search.
type EmbeddingGeneration struct {
	store       *queue.Store
	embedder    Embedder
	logger      *slog.Logger
	maxAttempts int
}

// NewEmbeddingGeneration constructs the embedding stage.
func NewEmbeddingGeneration(store *queue.Store, embedder Embedder, logger *slog.Logger, maxAttempts int) *EmbeddingGeneration {
	return &EmbeddingGeneration{
		store:       store,
		embedder:    embedder,
		logger:      logging.NewComponentLogger(logger, "embedding-generation"),
		maxAttempts: maxAttempts,
	}
}

func (e *EmbeddingGeneration) Name() string { return flags.WorkerGenerateEmbedding }

func (e *EmbeddingGeneration) FollowUps() []string { return nil }

func (e *EmbeddingGeneration) Select(ctx context.Context) ([]stage.Item, error) {
	posts, err := e.store.PostsNeeding(ctx, queue.StageEmbedding, e.maxAttempts, embeddingBatchSize)
	if err != nil {
		return nil, err
	}
	return postItems(posts), nil
}

func (e *EmbeddingGeneration) Process(ctx context.Context, item stage.Item) error {
	post, err := e.store.GetPost(ctx, item.ID)
	if err != nil {
		return err
	}
	if post == nil || !post.NeedsEmbedding {
		return nil
	}

	content := strings.TrimSpace(post.Content)
	if content == "" {
		err := services.Wrap(services.ErrValidation, "embedding-generation", "embed", "post has no content", nil)
		if recordErr := e.store.RecordStageError(ctx, post.ID, queue.StageEmbedding, err.Error()); recordErr != nil {
			return recordErr
		}
		return err
	}

	input := content
	if hook := strings.TrimSpace(post.Hook); hook != "" {
		input = hook + "\n\n" + content
	}
	vector, err := e.embedder.Embed(ctx, truncate(input, embeddingInputLimit))
	if err != nil {
		if services.AbortsBatch(err) {
			return err
		}
		if recordErr := e.store.RecordStageError(ctx, post.ID, queue.StageEmbedding, err.Error()); recordErr != nil {
			return recordErr
		}
		return err
	}

	e.logger.Debug("generated embedding",
		logging.String(logging.FieldItemID, post.ID),
		logging.Int("dimensions", len(vector)))
	return e.store.SetEmbedding(ctx, post.ID, vector)
}

func (e *EmbeddingGeneration) HealthCheck(ctx context.Context) stage.Health {
	if err := e.embedder.HealthCheck(ctx); err != nil {
		return stage.Unhealthy(e.Name(), fmt.Sprintf("embeddings api unavailable: %v", err))
	}
	return stage.Healthy(e.Name())
}
