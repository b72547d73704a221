package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

const postColumns = `id, author_id, content, source_url, posted_at, created_at, updated_at,
    hook, embedding, hook_type_id, topic_id, audience_id,
    needs_hook_extraction, needs_embedding, needs_hook_classification,
    needs_topic_classification, needs_audience_classification,
    hook_extraction_attempts, embedding_attempts, hook_classification_attempts,
    topic_classification_attempts, audience_classification_attempts, last_error`

var postColumnList = []string{
	"id", "author_id", "content", "source_url", "posted_at", "created_at", "updated_at",
	"hook", "embedding", "hook_type_id", "topic_id", "audience_id",
	"needs_hook_extraction", "needs_embedding", "needs_hook_classification",
	"needs_topic_classification", "needs_audience_classification",
	"hook_extraction_attempts", "embedding_attempts", "hook_classification_attempts",
	"topic_classification_attempts", "audience_classification_attempts", "last_error",
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner) (*Post, error) {
	var (
		post       Post
		postedAt   sql.NullString
		createdAt  string
		updatedAt  string
		hook       sql.NullString
		embedding  sql.NullString
		hookTypeID sql.NullString
		topicID    sql.NullString
		audienceID sql.NullString
	)
	err := row.Scan(
		&post.ID, &post.AuthorID, &post.Content, &post.SourceURL, &postedAt, &createdAt, &updatedAt,
		&hook, &embedding, &hookTypeID, &topicID, &audienceID,
		&post.NeedsHookExtraction, &post.NeedsEmbedding, &post.NeedsHookClassification,
		&post.NeedsTopicClassification, &post.NeedsAudienceClassification,
		&post.HookExtractionAttempts, &post.EmbeddingAttempts, &post.HookClassificationAttempts,
		&post.TopicClassificationAttempts, &post.AudienceClassificationAttempts, &post.LastError,
	)
	if err != nil {
		return nil, err
	}

	if post.PostedAt, err = parseNullableTime(postedAt); err != nil {
		return nil, err
	}
	if post.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if post.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	post.Hook = hook.String
	post.HookTypeID = hookTypeID.String
	post.TopicID = topicID.String
	post.AudienceID = audienceID.String
	if embedding.Valid && embedding.String != "" {
		if err := json.Unmarshal([]byte(embedding.String), &post.Embedding); err != nil {
			return nil, fmt.Errorf("decode embedding for post %s: %w", post.ID, err)
		}
	}
	return &post, nil
}

// InsertPost creates a post with every readiness flag set.
func (s *Store) InsertPost(ctx context.Context, input NewPost) (*Post, error) {
	ctx = ensureContext(ctx)
	id := uuid.NewString()
	timestamp := formatTime(time.Now())

	var postedAt any
	if input.PostedAt != nil {
		postedAt = formatTime(*input.PostedAt)
	}

	_, err := s.execWithRetry(ctx,
		`INSERT INTO posts (id, author_id, content, source_url, posted_at, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, input.AuthorID, input.Content, input.SourceURL, postedAt, timestamp, timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert post: %w", err)
	}
	return s.GetPost(ctx, id)
}

// GetPost fetches a post by identifier. Returns nil when no row exists.
func (s *Store) GetPost(ctx context.Context, id string) (*Post, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, `SELECT `+postColumns+` FROM posts WHERE id = ?`, id)
	post, err := scanPost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get post: %w", err)
	}
	return post, nil
}

// PostsNeeding dequeues a bounded batch for one stage: flag set, output
// missing, attempts under bound, oldest first. Hook classification
// additionally requires an extracted hook, so posts whose extraction has not
// completed yet are simply skipped and retried on a later run.
func (s *Store) PostsNeeding(ctx context.Context, stage Stage, maxAttempts, limit int) ([]*Post, error) {
	ctx = ensureContext(ctx)
	cols, ok := postStageColumns[stage]
	if !ok {
		return nil, fmt.Errorf("stage %q does not dequeue from posts", stage)
	}
	if limit <= 0 {
		return nil, nil
	}

	q := builder.
		Select(postColumnList...).
		From("posts").
		Where(sq.Eq{cols.flag: 1}).
		Where(cols.output + " IS NULL").
		OrderBy("created_at ASC").
		Limit(uint64(limit))
	if maxAttempts > 0 {
		q = q.Where(sq.Lt{cols.attempts: maxAttempts})
	}
	if stage == StageHookClassification {
		q = q.Where("hook IS NOT NULL")
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build selection query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select posts for %s: %w", stage, err)
	}
	defer rows.Close()

	var posts []*Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	return posts, nil
}

// SetHook writes the extracted hook and clears the extraction flag in one
// statement, preserving the flag/output invariant.
func (s *Store) SetHook(ctx context.Context, id, hook string) error {
	return s.completeStage(ctx, id, StageHookExtraction, hook)
}

// SetEmbedding writes the embedding vector and clears the embedding flag.
func (s *Store) SetEmbedding(ctx context.Context, id string, vector []float32) error {
	if len(vector) == 0 {
		return errors.New("embedding vector must not be empty")
	}
	encoded, err := json.Marshal(vector)
	if err != nil {
		return fmt.Errorf("encode embedding: %w", err)
	}
	return s.completeStage(ctx, id, StageEmbedding, string(encoded))
}

// SetHookType records the hook classification and clears its flag.
func (s *Store) SetHookType(ctx context.Context, id, hookTypeID string) error {
	return s.completeStage(ctx, id, StageHookClassification, hookTypeID)
}

// SetTopic records the topic classification and clears its flag.
func (s *Store) SetTopic(ctx context.Context, id, topicID string) error {
	return s.completeStage(ctx, id, StageTopicClassification, topicID)
}

// SetAudience records the audience classification and clears its flag.
func (s *Store) SetAudience(ctx context.Context, id, audienceID string) error {
	return s.completeStage(ctx, id, StageAudienceClassification, audienceID)
}

func (s *Store) completeStage(ctx context.Context, id string, stage Stage, output string) error {
	ctx = ensureContext(ctx)
	cols, ok := postStageColumns[stage]
	if !ok {
		return fmt.Errorf("stage %q does not write to posts", stage)
	}
	if output == "" {
		return fmt.Errorf("%s output must not be empty", stage)
	}

	res, err := s.execWithRetry(ctx,
		`UPDATE posts SET `+cols.output+` = ?, `+cols.flag+` = 0, last_error = '', updated_at = ? WHERE id = ?`,
		output, formatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("complete %s for post %s: %w", stage, id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("post %s not found", id)
	}
	return nil
}

// RecordStageError notes a per-item failure: the flag stays set so the item
// is retried, the attempt counter advances toward the retry bound, and the
// message is kept for diagnostics.
func (s *Store) RecordStageError(ctx context.Context, id string, stage Stage, message string) error {
	ctx = ensureContext(ctx)
	cols, ok := postStageColumns[stage]
	if !ok {
		return fmt.Errorf("stage %q does not write to posts", stage)
	}
	_, err := s.execWithRetry(ctx,
		`UPDATE posts SET `+cols.attempts+` = `+cols.attempts+` + 1, last_error = ?, updated_at = ? WHERE id = ?`,
		message, formatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("record %s error for post %s: %w", stage, id, err)
	}
	return nil
}

// PendingCounts returns the backlog per stage: rows still flagged as needing
// work, regardless of attempt count. Profile completion counts profiles in a
// scraped or processing state without a style prompt.
func (s *Store) PendingCounts(ctx context.Context) (map[Stage]int, error) {
	ctx = ensureContext(ctx)
	counts := make(map[Stage]int, len(PostStages)+1)
	for _, stage := range PostStages {
		cols := postStageColumns[stage]
		query, args, err := builder.
			Select("COUNT(1)").
			From("posts").
			Where(sq.Eq{cols.flag: 1}).
			ToSql()
		if err != nil {
			return nil, fmt.Errorf("build pending query: %w", err)
		}
		var count int
		if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
			return nil, fmt.Errorf("count pending %s: %w", stage, err)
		}
		counts[stage] = count
	}

	var profileCount int
	query, args, err := builder.
		Select("COUNT(1)").
		From("profiles").
		Where(sq.Eq{"sync_status": []string{ProfileScraped, ProfileProcessing}}).
		Where("writing_style_prompt IS NULL").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build profile pending query: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&profileCount); err != nil {
		return nil, fmt.Errorf("count pending profiles: %w", err)
	}
	counts[StageProfileCompletion] = profileCount
	return counts, nil
}

// StalledCounts returns, per stage, the number of items that exhausted the
// retry bound without producing output. Stalled items keep their flag set but
// are no longer selected.
func (s *Store) StalledCounts(ctx context.Context, maxAttempts int) (map[Stage]int, error) {
	ctx = ensureContext(ctx)
	if maxAttempts <= 0 {
		return map[Stage]int{}, nil
	}
	counts := make(map[Stage]int, len(PostStages)+1)
	for _, stage := range PostStages {
		cols := postStageColumns[stage]
		query, args, err := builder.
			Select("COUNT(1)").
			From("posts").
			Where(sq.Eq{cols.flag: 1}).
			Where(sq.GtOrEq{cols.attempts: maxAttempts}).
			ToSql()
		if err != nil {
			return nil, fmt.Errorf("build stalled query: %w", err)
		}
		var count int
		if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
			return nil, fmt.Errorf("count stalled %s: %w", stage, err)
		}
		counts[stage] = count
	}

	var profileCount int
	query, args, err := builder.
		Select("COUNT(1)").
		From("profiles").
		Where(sq.Eq{"sync_status": []string{ProfileScraped, ProfileProcessing}}).
		Where("writing_style_prompt IS NULL").
		Where(sq.GtOrEq{"completion_attempts": maxAttempts}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build stalled profile query: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&profileCount); err != nil {
		return nil, fmt.Errorf("count stalled profiles: %w", err)
	}
	counts[StageProfileCompletion] = profileCount
	return counts, nil
}
