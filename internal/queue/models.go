package queue

import (
	"strings"
	"time"
)

// Stage identifies one enrichment stage over the posts table.
type Stage string

const (
	StageHookExtraction         Stage = "hook_extraction"
	StageEmbedding              Stage = "embeddings"
	StageHookClassification     Stage = "hook_classification"
	StageTopicClassification    Stage = "topic_classification"
	StageAudienceClassification Stage = "audience_classification"
	StageProfileCompletion      Stage = "profile_completion"
)

// PostStages lists the stages that dequeue from the posts table, in the
// order they are reported by backlog queries.
var PostStages = []Stage{
	StageHookExtraction,
	StageEmbedding,
	StageHookClassification,
	StageTopicClassification,
	StageAudienceClassification,
}

type stageColumns struct {
	flag     string
	output   string
	attempts string
}

var postStageColumns = map[Stage]stageColumns{
	StageHookExtraction:         {flag: "needs_hook_extraction", output: "hook", attempts: "hook_extraction_attempts"},
	StageEmbedding:              {flag: "needs_embedding", output: "embedding", attempts: "embedding_attempts"},
	StageHookClassification:     {flag: "needs_hook_classification", output: "hook_type_id", attempts: "hook_classification_attempts"},
	StageTopicClassification:    {flag: "needs_topic_classification", output: "topic_id", attempts: "topic_classification_attempts"},
	StageAudienceClassification: {flag: "needs_audience_classification", output: "audience_id", attempts: "audience_classification_attempts"},
}

// ParseStage converts a string into a known Stage.
func ParseStage(value string) (Stage, bool) {
	normalized := Stage(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	for _, stage := range PostStages {
		if stage == normalized {
			return stage, true
		}
	}
	if normalized == StageProfileCompletion {
		return normalized, true
	}
	return "", false
}

// Post is a scraped post undergoing multi-stage enrichment.
type Post struct {
	ID        string
	AuthorID  string
	Content   string
	SourceURL string
	PostedAt  *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time

	Hook       string
	Embedding  []float32
	HookTypeID string
	TopicID    string
	AudienceID string

	NeedsHookExtraction         bool
	NeedsEmbedding              bool
	NeedsHookClassification     bool
	NeedsTopicClassification    bool
	NeedsAudienceClassification bool

	HookExtractionAttempts         int
	EmbeddingAttempts              int
	HookClassificationAttempts     int
	TopicClassificationAttempts    int
	AudienceClassificationAttempts int

	LastError string
}

// Needs reports whether the post still requires the given stage.
func (p *Post) Needs(stage Stage) bool {
	switch stage {
	case StageHookExtraction:
		return p.NeedsHookExtraction
	case StageEmbedding:
		return p.NeedsEmbedding
	case StageHookClassification:
		return p.NeedsHookClassification
	case StageTopicClassification:
		return p.NeedsTopicClassification
	case StageAudienceClassification:
		return p.NeedsAudienceClassification
	default:
		return false
	}
}

// Attempts returns the failure count recorded for the given stage.
func (p *Post) Attempts(stage Stage) int {
	switch stage {
	case StageHookExtraction:
		return p.HookExtractionAttempts
	case StageEmbedding:
		return p.EmbeddingAttempts
	case StageHookClassification:
		return p.HookClassificationAttempts
	case StageTopicClassification:
		return p.TopicClassificationAttempts
	case StageAudienceClassification:
		return p.AudienceClassificationAttempts
	default:
		return 0
	}
}

// NewPost carries the fields an ingestion source supplies for a post.
type NewPost struct {
	AuthorID  string
	Content   string
	SourceURL string
	PostedAt  *time.Time
}

// Profile sync statuses.
const (
	ProfilePending    = "pending"
	ProfileScraped    = "scraped"
	ProfileProcessing = "processing"
	ProfileCompleted  = "completed"
	ProfileFailed     = "failed"
)

// Profile is a creator profile whose writing style is derived once all of
// its posts are fully enriched.
type Profile struct {
	ID                  string
	FullName            string
	Headline            string
	SyncStatus          string
	WritingStylePrompt  string
	StyleAnalysisJSON   string
	LastStyleAnalysisAt *time.Time
	CompletionAttempts  int
	LastError           string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// NewProfile carries the fields an ingestion source supplies for a profile.
type NewProfile struct {
	FullName   string
	Headline   string
	SyncStatus string
}

// Flag is a persisted feature flag row.
type Flag struct {
	Name      string
	Enabled   bool
	UpdatedAt time.Time
}

// Run statuses recorded in the execution log.
const (
	RunStatusRunning = "running"
	RunStatusSuccess = "success"
	RunStatusFailure = "failure"
)

// Run is one execution-log entry: exactly one per worker invocation attempt,
// written at start and finalized at end.
type Run struct {
	ID             string
	WorkerName     string
	StartedAt      time.Time
	FinishedAt     *time.Time
	Status         string
	ItemsFound     int
	ItemsProcessed int
	ItemsFailed    int
	DurationMillis int64
	ErrorMessage   string
}

// WorkerHealth aggregates execution-log rows for one worker.
type WorkerHealth struct {
	LastRunAt      *time.Time
	LastStatus     string
	Runs           int
	Successful     int
	Failed         int
	AvgDurationMS  int64
	ItemsProcessed int
}

// Category is a taxonomy row (hook type, topic, or audience).
type Category struct {
	ID          string
	Name        string
	Description string
}
