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

const (
	profileBatchSize     = 5
	profileMinPosts      = 3
	profileAnalysisPosts = 50
)

// ProfileCompletion derives a creator's writing-style prompt once every post
// of theirs has settled through the enrichment stages.
type ProfileCompletion struct {
	store       *queue.Store
	chat        ChatClient
	logger      *slog.Logger
	maxAttempts int
}

// NewProfileCompletion constructs the profile completion stage.
func NewProfileCompletion(store *queue.Store, chat ChatClient, logger *slog.Logger, maxAttempts int) *ProfileCompletion {
	return &ProfileCompletion{
		store:       store,
		chat:        chat,
		logger:      logging.NewComponentLogger(logger, "profile-completion"),
		maxAttempts: maxAttempts,
	}
}

func (p *ProfileCompletion) Name() string { return flags.WorkerCompleteProfiles }

func (p *ProfileCompletion) FollowUps() []string { return nil }

func (p *ProfileCompletion) Select(ctx context.Context) ([]stage.Item, error) {
	profiles, err := p.store.ProfilesForCompletion(ctx, p.maxAttempts, profileBatchSize)
	if err != nil {
		return nil, err
	}
	items := make([]stage.Item, 0, len(profiles))
	for _, profile := range profiles {
		items = append(items, stage.Item{ID: profile.ID, Label: profile.FullName})
	}
	return items, nil
}

func (p *ProfileCompletion) Process(ctx context.Context, item stage.Item) error {
	profile, err := p.store.GetProfile(ctx, item.ID)
	if err != nil {
		return err
	}
	if profile == nil || profile.WritingStylePrompt != "" {
		return nil
	}

	// A profile is only analyzable once its posts stop moving through the
	// pipeline. Until then, leave it for a later run without charging an
	// attempt.
	pending, err := p.store.ProfileHasPendingPosts(ctx, profile.ID)
	if err != nil {
		return err
	}
	if pending {
		p.logger.Debug("profile still has posts in flight",
			logging.String(logging.FieldItemID, profile.ID))
		return nil
	}

	posts, err := p.store.PostsByAuthor(ctx, profile.ID, profileAnalysisPosts)
	if err != nil {
		return err
	}
	if len(posts) < profileMinPosts {
		err := services.Wrap(services.ErrValidation, "profile-completion", "analyze",
			fmt.Sprintf("profile has %d posts, need at least %d", len(posts), profileMinPosts), nil)
		if recordErr := p.store.RecordProfileError(ctx, profile.ID, err.Error()); recordErr != nil {
			return recordErr
		}
		return err
	}

	stylePrompt, analysisJSON, err := p.analyze(ctx, profile, posts)
	if err != nil {
		if services.AbortsBatch(err) {
			return err
		}
		if recordErr := p.store.RecordProfileError(ctx, profile.ID, err.Error()); recordErr != nil {
			return recordErr
		}
		return err
	}
	return p.store.CompleteProfile(ctx, profile.ID, stylePrompt, analysisJSON)
}

func (p *ProfileCompletion) analyze(ctx context.Context, profile *queue.Profile, posts []*queue.Post) (string, string, error) {
	raw, err := p.chat.CompleteJSON(ctx, styleAnalysisSystemPrompt, styleAnalysisUserPrompt(profile, posts))
	if err != nil {
		return "", "", err
	}

	var parsed struct {
		WritingStylePrompt string `json:"writing_style_prompt"`
	}
	if err := llm.DecodeJSON(raw, &parsed); err != nil {
		return "", "", services.Wrap(services.ErrValidation, "profile-completion", "analyze", "parse style analysis", err)
	}
	stylePrompt := strings.TrimSpace(parsed.WritingStylePrompt)
	if stylePrompt == "" {
		return "", "", services.Wrap(services.ErrValidation, "profile-completion", "analyze",
			"analysis missing writing_style_prompt", nil)
	}

	p.logger.Info("completed profile style analysis",
		logging.String(logging.FieldItemID, profile.ID),
		logging.Int("posts", len(posts)))
	return stylePrompt, raw, nil
}

func (p *ProfileCompletion) HealthCheck(ctx context.Context) stage.Health {
	if err := p.chat.HealthCheck(ctx); err != nil {
		return stage.Unhealthy(p.Name(), fmt.Sprintf("chat api unavailable: %v", err))
	}
	return stage.Healthy(p.Name())
}
