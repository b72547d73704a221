package enrich_test

import (
	"context"
	"fmt"
	"testing"

	"hopper/internal/enrich"
	"hopper/internal/logging"
	"hopper/internal/queue"
	"hopper/internal/services"
	"hopper/internal/stage"
	"hopper/internal/testsupport"
)

type stubChat struct {
	reply     string
	replyJSON string
	err       error
	calls     int
}

func (s *stubChat) Complete(_ context.Context, _, _ string) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.reply, nil
}

func (s *stubChat) CompleteJSON(_ context.Context, _, _ string) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return s.replyJSON, nil
}

func (s *stubChat) HealthCheck(_ context.Context) error { return s.err }

type stubEmbedder struct {
	vector []float32
	err    error
	input  string
}

func (s *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	s.input = text
	if s.err != nil {
		return nil, s.err
	}
	return s.vector, nil
}

func (s *stubEmbedder) HealthCheck(_ context.Context) error { return s.err }

func upstreamErr() error {
	return services.Wrap(services.ErrUpstream, "test", "call", "api down", nil)
}

func TestHookExtractionWritesHookAndClearsFlag(t *testing.T) {
	store := testsupport.MustOpenStore(t)
	ctx := context.Background()
	post := testsupport.SeedPost(t, store, "profile-1", "Why do most launches fail? Let me tell you.")

	chat := &stubChat{reply: "Why do most launches fail?"}
	hooks := enrich.NewHookExtraction(store, chat, logging.NewNop(), 10)

	items, err := hooks.Select(ctx)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(items) != 1 || items[0].ID != post.ID {
		t.Fatalf("unexpected selection %+v", items)
	}
	if err := hooks.Process(ctx, items[0]); err != nil {
		t.Fatalf("process: %v", err)
	}

	updated, err := store.GetPost(ctx, post.ID)
	if err != nil {
		t.Fatalf("get post: %v", err)
	}
	if updated.Hook != "Why do most launches fail?" {
		t.Errorf("unexpected hook %q", updated.Hook)
	}
	if updated.NeedsHookExtraction {
		t.Error("flag should be cleared with the hook write")
	}
}

func TestHookExtractionTruncatesLongHooks(t *testing.T) {
	store := testsupport.MustOpenStore(t)
	ctx := context.Background()
	post := testsupport.SeedPost(t, store, "profile-1", "content")

	long := make([]byte, 0, 400)
	for i := 0; i < 400; i++ {
		long = append(long, 'a')
	}
	chat := &stubChat{reply: string(long)}
	hooks := enrich.NewHookExtraction(store, chat, logging.NewNop(), 10)

	if err := hooks.Process(ctx, itemFor(post)); err != nil {
		t.Fatalf("process: %v", err)
	}
	updated, _ := store.GetPost(ctx, post.ID)
	if len([]rune(updated.Hook)) != 300 {
		t.Fatalf("expected hook capped at 300 runes, got %d", len([]rune(updated.Hook)))
	}
}

func TestHookExtractionUpstreamFailureLeavesItemUntouched(t *testing.T) {
	store := testsupport.MustOpenStore(t)
	ctx := context.Background()
	post := testsupport.SeedPost(t, store, "profile-1", "content")

	chat := &stubChat{err: upstreamErr()}
	hooks := enrich.NewHookExtraction(store, chat, logging.NewNop(), 10)

	err := hooks.Process(ctx, itemFor(post))
	if !services.AbortsBatch(err) {
		t.Fatalf("expected batch-aborting error, got %v", err)
	}

	updated, _ := store.GetPost(ctx, post.ID)
	if !updated.NeedsHookExtraction {
		t.Error("flag must survive an upstream failure")
	}
	if updated.HookExtractionAttempts != 0 {
		t.Error("upstream failure must not charge the item an attempt")
	}
}

func TestHookExtractionModelFailureChargesAttempt(t *testing.T) {
	store := testsupport.MustOpenStore(t)
	ctx := context.Background()
	post := testsupport.SeedPost(t, store, "profile-1", "content")

	chat := &stubChat{reply: "   "}
	hooks := enrich.NewHookExtraction(store, chat, logging.NewNop(), 10)

	err := hooks.Process(ctx, itemFor(post))
	if err == nil {
		t.Fatal("expected error for empty hook")
	}
	if services.AbortsBatch(err) {
		t.Fatal("a bad answer for one item must not abort the batch")
	}

	updated, _ := store.GetPost(ctx, post.ID)
	if updated.HookExtractionAttempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", updated.HookExtractionAttempts)
	}
	if !updated.NeedsHookExtraction {
		t.Error("flag must remain set for retry")
	}
}

func TestEmbeddingGenerationRoundTrip(t *testing.T) {
	store := testsupport.MustOpenStore(t)
	ctx := context.Background()
	post := testsupport.SeedPost(t, store, "profile-1", "content to vectorize")
	if err := store.SetHook(ctx, post.ID, "the hook line"); err != nil {
		t.Fatalf("set hook: %v", err)
	}

	embedder := &stubEmbedder{vector: []float32{0.5, 0.25}}
	worker := enrich.NewEmbeddingGeneration(store, embedder, logging.NewNop(), 10)

	items, err := worker.Select(ctx)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected one item, got %d", len(items))
	}
	if err := worker.Process(ctx, items[0]); err != nil {
		t.Fatalf("process: %v", err)
	}
	if embedder.input != "the hook line\n\ncontent to vectorize" {
		t.Errorf("embedding input should lead with the hook, got %q", embedder.input)
	}

	updated, _ := store.GetPost(ctx, post.ID)
	if updated.NeedsEmbedding || len(updated.Embedding) != 2 {
		t.Fatalf("embedding not stored: %+v", updated)
	}
}

func TestClassificationMatchesByIDThenName(t *testing.T) {
	store := testsupport.MustOpenStore(t)
	ctx := context.Background()

	cases := []struct {
		name     string
		answer   string
		expected string
	}{
		{"by id", `{"id":"tp-sales","name":""}`, "tp-sales"},
		{"by name case-insensitive", `{"id":"","name":"LEADERSHIP"}`, "tp-leadership"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			post := testsupport.SeedPost(t, store, "profile-1", "post about work")
			chat := &stubChat{replyJSON: tc.answer}
			worker := enrich.NewTopicClassification(store, chat, logging.NewNop(), 10)
			if _, err := worker.Select(ctx); err != nil {
				t.Fatalf("select: %v", err)
			}
			if err := worker.Process(ctx, itemFor(post)); err != nil {
				t.Fatalf("process: %v", err)
			}
			updated, _ := store.GetPost(ctx, post.ID)
			if updated.TopicID != tc.expected {
				t.Fatalf("expected topic %s, got %q", tc.expected, updated.TopicID)
			}
			if updated.NeedsTopicClassification {
				t.Error("topic flag should be cleared")
			}
		})
	}
}

func TestClassificationRejectsUnknownCategory(t *testing.T) {
	store := testsupport.MustOpenStore(t)
	ctx := context.Background()
	post := testsupport.SeedPost(t, store, "profile-1", "post about work")

	chat := &stubChat{replyJSON: `{"id":"tp-nope","name":"astrology"}`}
	worker := enrich.NewTopicClassification(store, chat, logging.NewNop(), 10)
	if _, err := worker.Select(ctx); err != nil {
		t.Fatalf("select: %v", err)
	}

	err := worker.Process(ctx, itemFor(post))
	if err == nil || services.AbortsBatch(err) {
		t.Fatalf("expected per-item error, got %v", err)
	}
	updated, _ := store.GetPost(ctx, post.ID)
	if updated.TopicClassificationAttempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", updated.TopicClassificationAttempts)
	}
}

func TestHookClassificationSelectsOnlyExtractedHooks(t *testing.T) {
	store := testsupport.MustOpenStore(t)
	ctx := context.Background()

	withHook := testsupport.SeedPost(t, store, "profile-1", "one")
	testsupport.SeedPost(t, store, "profile-1", "two")
	if err := store.SetHook(ctx, withHook.ID, "a hook"); err != nil {
		t.Fatalf("set hook: %v", err)
	}

	chat := &stubChat{replyJSON: `{"id":"ht-question","name":"question"}`}
	worker := enrich.NewHookClassification(store, chat, logging.NewNop(), 10)
	items, err := worker.Select(ctx)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(items) != 1 || items[0].ID != withHook.ID {
		t.Fatalf("only posts with hooks should be selected, got %+v", items)
	}
}

func TestProfileCompletionWaitsForSettledPosts(t *testing.T) {
	store := testsupport.MustOpenStore(t)
	ctx := context.Background()

	profile := testsupport.SeedProfile(t, store, "Dana Author", queue.ProfileScraped)
	testsupport.SeedPost(t, store, profile.ID, "still enriching")

	chat := &stubChat{replyJSON: `{"writing_style_prompt":"Write like Dana."}`}
	worker := enrich.NewProfileCompletion(store, chat, logging.NewNop(), 10)

	items, err := worker.Select(ctx)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected profile in selection, got %d", len(items))
	}
	if err := worker.Process(ctx, items[0]); err != nil {
		t.Fatalf("process should skip quietly: %v", err)
	}
	if chat.calls != 0 {
		t.Fatal("no analysis should run while posts are in flight")
	}

	updated, _ := store.GetProfile(ctx, profile.ID)
	if updated.SyncStatus != queue.ProfileScraped || updated.CompletionAttempts != 0 {
		t.Fatalf("waiting profile must be untouched, got %+v", updated)
	}
}

func TestProfileCompletionRequiresMinimumPosts(t *testing.T) {
	store := testsupport.MustOpenStore(t)
	ctx := context.Background()

	profile := testsupport.SeedProfile(t, store, "Dana Author", queue.ProfileScraped)
	seedCompletedPost(t, store, profile.ID, "only one")

	chat := &stubChat{replyJSON: `{"writing_style_prompt":"x"}`}
	worker := enrich.NewProfileCompletion(store, chat, logging.NewNop(), 10)

	err := worker.Process(ctx, itemForProfile(profile))
	if err == nil || services.AbortsBatch(err) {
		t.Fatalf("expected per-item error, got %v", err)
	}
	updated, _ := store.GetProfile(ctx, profile.ID)
	if updated.CompletionAttempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", updated.CompletionAttempts)
	}
}

func TestProfileCompletionStoresStylePrompt(t *testing.T) {
	store := testsupport.MustOpenStore(t)
	ctx := context.Background()

	profile := testsupport.SeedProfile(t, store, "Dana Author", queue.ProfileScraped)
	for i := 0; i < 3; i++ {
		seedCompletedPost(t, store, profile.ID, fmt.Sprintf("post number %d", i))
	}

	chat := &stubChat{replyJSON: `{"writing_style_prompt":"Write like Dana.","tone":"direct"}`}
	worker := enrich.NewProfileCompletion(store, chat, logging.NewNop(), 10)

	if err := worker.Process(ctx, itemForProfile(profile)); err != nil {
		t.Fatalf("process: %v", err)
	}
	updated, _ := store.GetProfile(ctx, profile.ID)
	if updated.SyncStatus != queue.ProfileCompleted {
		t.Errorf("expected completed profile, got %s", updated.SyncStatus)
	}
	if updated.WritingStylePrompt != "Write like Dana." {
		t.Errorf("unexpected style prompt %q", updated.WritingStylePrompt)
	}
	if updated.StyleAnalysisJSON == "" {
		t.Error("raw analysis JSON should be stored")
	}
}

func TestProfileCompletionUpstreamFailureAborts(t *testing.T) {
	store := testsupport.MustOpenStore(t)
	ctx := context.Background()

	profile := testsupport.SeedProfile(t, store, "Dana Author", queue.ProfileScraped)
	for i := 0; i < 3; i++ {
		seedCompletedPost(t, store, profile.ID, fmt.Sprintf("post %d", i))
	}

	chat := &stubChat{err: upstreamErr()}
	worker := enrich.NewProfileCompletion(store, chat, logging.NewNop(), 10)

	err := worker.Process(ctx, itemForProfile(profile))
	if !services.AbortsBatch(err) {
		t.Fatalf("expected batch abort, got %v", err)
	}
	updated, _ := store.GetProfile(ctx, profile.ID)
	if updated.CompletionAttempts != 0 {
		t.Error("upstream failure must not charge the profile an attempt")
	}
}

func TestStageNamesAndFollowUps(t *testing.T) {
	store := testsupport.MustOpenStore(t)
	chat := &stubChat{}
	embedder := &stubEmbedder{}
	logger := logging.NewNop()

	hooks := enrich.NewHookExtraction(store, chat, logger, 10)
	if hooks.Name() != "worker_extract_hooks_v2" {
		t.Errorf("unexpected name %s", hooks.Name())
	}
	if got := hooks.FollowUps(); len(got) != 2 || got[0] != "worker_classify_hooks_v2" || got[1] != "worker_generate_embeddings_v2" {
		t.Errorf("hook extraction should nudge hook classification and embeddings, got %v", got)
	}

	embeddings := enrich.NewEmbeddingGeneration(store, embedder, logger, 10)
	if embeddings.Name() != "worker_generate_embeddings_v2" {
		t.Errorf("unexpected name %s", embeddings.Name())
	}

	names := map[string]string{
		enrich.NewHookClassification(store, chat, logger, 10).Name():     "worker_classify_hooks_v2",
		enrich.NewTopicClassification(store, chat, logger, 10).Name():    "worker_classify_topics_v2",
		enrich.NewAudienceClassification(store, chat, logger, 10).Name(): "worker_classify_audiences_v2",
		enrich.NewProfileCompletion(store, chat, logger, 10).Name():      "worker_complete_profiles_v2",
	}
	for got, expected := range names {
		if got != expected {
			t.Errorf("expected %s, got %s", expected, got)
		}
	}
}

func itemFor(post *queue.Post) stage.Item {
	return stage.Item{ID: post.ID, Label: post.Content}
}

func itemForProfile(profile *queue.Profile) stage.Item {
	return stage.Item{ID: profile.ID, Label: profile.FullName}
}

func seedCompletedPost(t *testing.T, store *queue.Store, authorID, content string) *queue.Post {
	t.Helper()
	ctx := context.Background()
	post := testsupport.SeedPost(t, store, authorID, content)
	steps := []error{
		store.SetHook(ctx, post.ID, "hook"),
		store.SetEmbedding(ctx, post.ID, []float32{0.1}),
		store.SetHookType(ctx, post.ID, "ht-question"),
		store.SetTopic(ctx, post.ID, "tp-leadership"),
		store.SetAudience(ctx, post.ID, "au-founders"),
	}
	for _, err := range steps {
		if err != nil {
			t.Fatalf("complete post stage: %v", err)
		}
	}
	return post
}
