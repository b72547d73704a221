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

const hookBatchSize = 20

// ChatClient is the slice of the chat-completions client the stages need.
type ChatClient interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	HealthCheck(ctx context.Context) error
}

// HookExtraction pulls the attention-grabbing opener out of each post.
type HookExtraction struct {
	store       *queue.Store
	chat        ChatClient
	logger      *slog.Logger
	maxAttempts int
}

// NewHookExtraction constructs the hook extraction stage.
func NewHookExtraction(store *queue.Store, chat ChatClient, logger *slog.Logger, maxAttempts int) *HookExtraction {
	return &HookExtraction{
		store:       store,
		chat:        chat,
		logger:      logging.NewComponentLogger(logger, "hook-extraction"),
		maxAttempts: maxAttempts,
	}
}

func (h *HookExtraction) Name() string { return flags.WorkerExtractHooks }

func (h *HookExtraction) FollowUps() []string {
	return []string{flags.WorkerClassifyHooks, flags.WorkerGenerateEmbedding}
}

func (h *HookExtraction) Select(ctx context.Context) ([]stage.Item, error) {
	posts, err := h.store.PostsNeeding(ctx, queue.StageHookExtraction, h.maxAttempts, hookBatchSize)
	if err != nil {
		return nil, err
	}
	return postItems(posts), nil
}

func (h *HookExtraction) Process(ctx context.Context, item stage.Item) error {
	post, err := h.store.GetPost(ctx, item.ID)
	if err != nil {
		return err
	}
	if post == nil || !post.NeedsHookExtraction {
		return nil
	}

	hook, err := h.extract(ctx, post)
	if err != nil {
		if services.AbortsBatch(err) {
			return err
		}
		if recordErr := h.store.RecordStageError(ctx, post.ID, queue.StageHookExtraction, err.Error()); recordErr != nil {
			return recordErr
		}
		return err
	}
	return h.store.SetHook(ctx, post.ID, hook)
}

func (h *HookExtraction) extract(ctx context.Context, post *queue.Post) (string, error) {
	content := strings.TrimSpace(post.Content)
	if content == "" {
		return "", services.Wrap(services.ErrValidation, "hook-extraction", "extract", "post has no content", nil)
	}

	raw, err := h.chat.Complete(ctx, hookExtractionSystemPrompt, truncate(content, hookContentLimit))
	if err != nil {
		return "", err
	}
	hook := strings.TrimSpace(strings.Trim(strings.TrimSpace(raw), `"`))
	if hook == "" {
		return "", services.Wrap(services.ErrValidation, "hook-extraction", "extract", "model returned no hook", nil)
	}
	if runes := []rune(hook); len(runes) > hookMaxLength {
		hook = strings.TrimSpace(string(runes[:hookMaxLength]))
	}
	h.logger.Debug("extracted hook",
		logging.String(logging.FieldItemID, post.ID),
		logging.String("hook", snippet(hook, 80)))
	return hook, nil
}

func (h *HookExtraction) HealthCheck(ctx context.Context) stage.Health {
	if err := h.chat.HealthCheck(ctx); err != nil {
		return stage.Unhealthy(h.Name(), fmt.Sprintf("chat api unavailable: %v", err))
	}
	return stage.Healthy(h.Name())
}

func postItems(posts []*queue.Post) []stage.Item {
	items := make([]stage.Item, 0, len(posts))
	for _, post := range posts {
		items = append(items, stage.Item{ID: post.ID, Label: snippet(post.Content, 60)})
	}
	return items
}
