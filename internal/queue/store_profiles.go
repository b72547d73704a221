package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

const profileColumns = `id, full_name, headline, sync_status, writing_style_prompt,
    style_analysis, last_style_analysis_at, completion_attempts, last_error, created_at, updated_at`

var profileColumnList = []string{
	"id", "full_name", "headline", "sync_status", "writing_style_prompt",
	"style_analysis", "last_style_analysis_at", "completion_attempts", "last_error", "created_at", "updated_at",
}

func scanProfile(row rowScanner) (*Profile, error) {
	var (
		profile       Profile
		stylePrompt   sql.NullString
		styleAnalysis sql.NullString
		lastAnalysis  sql.NullString
		createdAt     string
		updatedAt     string
	)
	err := row.Scan(
		&profile.ID, &profile.FullName, &profile.Headline, &profile.SyncStatus, &stylePrompt,
		&styleAnalysis, &lastAnalysis, &profile.CompletionAttempts, &profile.LastError, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	profile.WritingStylePrompt = stylePrompt.String
	profile.StyleAnalysisJSON = styleAnalysis.String
	if profile.LastStyleAnalysisAt, err = parseNullableTime(lastAnalysis); err != nil {
		return nil, err
	}
	if profile.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if profile.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &profile, nil
}

// InsertProfile creates a profile row. SyncStatus defaults to pending.
func (s *Store) InsertProfile(ctx context.Context, input NewProfile) (*Profile, error) {
	ctx = ensureContext(ctx)
	id := uuid.NewString()
	timestamp := formatTime(time.Now())
	status := strings.TrimSpace(input.SyncStatus)
	if status == "" {
		status = ProfilePending
	}

	_, err := s.execWithRetry(ctx,
		`INSERT INTO profiles (id, full_name, headline, sync_status, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		id, input.FullName, input.Headline, status, timestamp, timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert profile: %w", err)
	}
	return s.GetProfile(ctx, id)
}

// GetProfile fetches a profile by identifier. Returns nil when no row exists.
func (s *Store) GetProfile(ctx context.Context, id string) (*Profile, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = ?`, id)
	profile, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return profile, nil
}

// ProfilesForCompletion selects profiles ready for style analysis: scraped or
// processing, no style prompt yet, attempts under bound, oldest first.
func (s *Store) ProfilesForCompletion(ctx context.Context, maxAttempts, limit int) ([]*Profile, error) {
	ctx = ensureContext(ctx)
	if limit <= 0 {
		return nil, nil
	}
	q := builder.
		Select(profileColumnList...).
		From("profiles").
		Where(sq.Eq{"sync_status": []string{ProfileScraped, ProfileProcessing}}).
		Where("writing_style_prompt IS NULL").
		OrderBy("created_at ASC").
		Limit(uint64(limit))
	if maxAttempts > 0 {
		q = q.Where(sq.Lt{"completion_attempts": maxAttempts})
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build profile selection query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select profiles: %w", err)
	}
	defer rows.Close()

	var profiles []*Profile
	for rows.Next() {
		profile, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan profile: %w", err)
		}
		profiles = append(profiles, profile)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profiles: %w", err)
	}
	return profiles, nil
}

// ProfileHasPendingPosts reports whether any of the profile's posts still
// carry a readiness flag. Profile completion waits until enrichment settles.
func (s *Store) ProfileHasPendingPosts(ctx context.Context, profileID string) (bool, error) {
	ctx = ensureContext(ctx)
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM posts WHERE author_id = ? AND (
            needs_hook_extraction = 1 OR needs_embedding = 1 OR needs_hook_classification = 1
            OR needs_topic_classification = 1 OR needs_audience_classification = 1)`,
		profileID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("count pending posts for profile %s: %w", profileID, err)
	}
	return count > 0, nil
}

// PostsByAuthor returns up to limit posts for a profile, newest source
// activity first, for style analysis input.
func (s *Store) PostsByAuthor(ctx context.Context, profileID string, limit int) ([]*Post, error) {
	ctx = ensureContext(ctx)
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+postColumns+` FROM posts WHERE author_id = ? AND content != ''
         ORDER BY COALESCE(posted_at, created_at) DESC LIMIT ?`,
		profileID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select posts for author %s: %w", profileID, err)
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

// CompleteProfile stores the style analysis and marks the profile completed.
func (s *Store) CompleteProfile(ctx context.Context, id, stylePrompt, analysisJSON string) error {
	ctx = ensureContext(ctx)
	if strings.TrimSpace(stylePrompt) == "" {
		return errors.New("writing style prompt must not be empty")
	}
	now := formatTime(time.Now())
	res, err := s.execWithRetry(ctx,
		`UPDATE profiles SET writing_style_prompt = ?, style_analysis = ?, last_style_analysis_at = ?,
            sync_status = ?, last_error = '', updated_at = ? WHERE id = ?`,
		stylePrompt, nullableString(analysisJSON), now, ProfileCompleted, now, id,
	)
	if err != nil {
		return fmt.Errorf("complete profile %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("profile %s not found", id)
	}
	return nil
}

// RecordProfileError advances the profile's attempt counter and keeps the
// message for diagnostics. The profile remains eligible for retry until the
// bound is reached.
func (s *Store) RecordProfileError(ctx context.Context, id, message string) error {
	ctx = ensureContext(ctx)
	_, err := s.execWithRetry(ctx,
		`UPDATE profiles SET completion_attempts = completion_attempts + 1, last_error = ?, updated_at = ? WHERE id = ?`,
		message, formatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("record profile error for %s: %w", id, err)
	}
	return nil
}
