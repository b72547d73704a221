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
	"hopper/internal/services/llm"
	"hopper/internal/stage"
)

const classifyBatchSize = 50

// Classification assigns one taxonomy category to each post's hook. The
// three classification workers share this implementation and differ only in
// the stage column, taxonomy table, and the text they classify.
type Classification struct {
	store       *queue.Store
	chat        ChatClient
	logger      *slog.Logger
	maxAttempts int

	workerName string
	kind       string
	queueStage queue.Stage
	list       func(context.Context) ([]queue.Category, error)
	write      func(ctx context.Context, postID, categoryID string) error
	input      func(*queue.Post) string

	// loaded by Select for the duration of one run
	options []queue.Category
}

// NewHookClassification classifies extracted hooks by hook type.
func NewHookClassification(store *queue.Store, chat ChatClient, logger *slog.Logger, maxAttempts int) *Classification {
	c := newClassification(store, chat, logger, maxAttempts)
	c.workerName = flags.WorkerClassifyHooks
	c.kind = "hook type"
	c.queueStage = queue.StageHookClassification
	c.list = store.HookTypes
	c.write = store.SetHookType
	c.input = func(post *queue.Post) string { return post.Hook }
	return c
}

// NewTopicClassification classifies post content by topic.
func NewTopicClassification(store *queue.Store, chat ChatClient, logger *slog.Logger, maxAttempts int) *Classification {
	c := newClassification(store, chat, logger, maxAttempts)
	c.workerName = flags.WorkerClassifyTopics
	c.kind = "topic"
	c.queueStage = queue.StageTopicClassification
	c.list = store.Topics
	c.write = store.SetTopic
	c.input = func(post *queue.Post) string { return post.Content }
	return c
}

// NewAudienceClassification classifies post content by target audience.
func NewAudienceClassification(store *queue.Store, chat ChatClient, logger *slog.Logger, maxAttempts int) *Classification {
	c := newClassification(store, chat, logger, maxAttempts)
	c.workerName = flags.WorkerClassifyAudiences
	c.kind = "audience"
	c.queueStage = queue.StageAudienceClassification
	c.list = store.Audiences
	c.write = store.SetAudience
	c.input = func(post *queue.Post) string { return post.Content }
	return c
}

func newClassification(store *queue.Store, chat ChatClient, logger *slog.Logger, maxAttempts int) *Classification {
	return &Classification{
		store:       store,
		chat:        chat,
		logger:      logging.NewComponentLogger(logger, "classification"),
		maxAttempts: maxAttempts,
	}
}

func (c *Classification) Name() string { return c.workerName }

func (c *Classification) FollowUps() []string {
	return []string{flags.WorkerCompleteProfiles}
}

// Select loads the taxonomy alongside the batch. With no categories defined
// there is nothing meaningful to classify, so the run quietly finds no work.
func (c *Classification) Select(ctx context.Context) ([]stage.Item, error) {
	options, err := c.list(ctx)
	if err != nil {
		return nil, err
	}
	c.options = options
	if len(options) == 0 {
		c.logger.Warn("no categories defined, skipping run",
			logging.String(logging.FieldWorker, c.workerName),
			logging.String("kind", c.kind))
		return nil, nil
	}

	posts, err := c.store.PostsNeeding(ctx, c.queueStage, c.maxAttempts, classifyBatchSize)
	if err != nil {
		return nil, err
	}
	return postItems(posts), nil
}

func (c *Classification) Process(ctx context.Context, item stage.Item) error {
	post, err := c.store.GetPost(ctx, item.ID)
	if err != nil {
		return err
	}
	if post == nil || !post.Needs(c.queueStage) {
		return nil
	}

	category, err := c.classify(ctx, post)
	if err != nil {
		if services.AbortsBatch(err) {
			return err
		}
		if recordErr := c.store.RecordStageError(ctx, post.ID, c.queueStage, err.Error()); recordErr != nil {
			return recordErr
		}
		return err
	}
	return c.write(ctx, post.ID, category.ID)
}

type classificationAnswer struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (c *Classification) classify(ctx context.Context, post *queue.Post) (queue.Category, error) {
	var empty queue.Category
	text := strings.TrimSpace(c.input(post))
	if text == "" {
		return empty, services.Wrap(services.ErrValidation, "classification", "classify",
			fmt.Sprintf("post has no %s input", c.kind), nil)
	}

	system := classificationSystemPrompt(c.kind, c.options)
	raw, err := c.chat.CompleteJSON(ctx, system, truncate(text, classifyContentLimit))
	if err != nil {
		return empty, err
	}

	var answer classificationAnswer
	if err := llm.DecodeJSON(raw, &answer); err != nil {
		return empty, services.Wrap(services.ErrValidation, "classification", "classify", "parse model answer", err)
	}
	category, ok := matchCategory(c.options, answer)
	if !ok {
		return empty, services.Wrap(services.ErrValidation, "classification", "classify",
			fmt.Sprintf("model chose unknown %s %q/%q", c.kind, answer.ID, answer.Name), nil)
	}

	c.logger.Debug("classified post",
		logging.String(logging.FieldItemID, post.ID),
		logging.String("kind", c.kind),
		logging.String("category", category.Name))
	return category, nil
}

// matchCategory resolves the model's answer against the taxonomy: exact id
// first, then case-insensitive name.
func matchCategory(options []queue.Category, answer classificationAnswer) (queue.Category, bool) {
	id := strings.TrimSpace(answer.ID)
	for _, option := range options {
		if option.ID == id && id != "" {
			return option, true
		}
	}
	name := strings.TrimSpace(answer.Name)
	if name == "" {
		return queue.Category{}, false
	}
	for _, option := range options {
		if strings.EqualFold(option.Name, name) {
			return option, true
		}
	}
	return queue.Category{}, false
}

func (c *Classification) HealthCheck(ctx context.Context) stage.Health {
	if err := c.chat.HealthCheck(ctx); err != nil {
		return stage.Unhealthy(c.Name(), fmt.Sprintf("chat api unavailable: %v", err))
	}
	return stage.Healthy(c.Name())
}
