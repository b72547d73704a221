// Package testsupport provides helpers shared by package tests.
package testsupport

import (
	"context"
	"testing"
	"time"

	"hopper/internal/config"
	"hopper/internal/queue"
)

// NewConfig returns a validated config rooted in a per-test temp directory.
func NewConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.DataDir = t.TempDir()
	cfg.Paths.LogDir = t.TempDir()
	cfg.LLM.APIKey = "test-key"
	cfg.Embeddings.APIKey = "test-key"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("test config should validate: %v", err)
	}
	return &cfg
}

// MustOpenStore opens a store on a temp database and closes it on cleanup.
func MustOpenStore(t *testing.T) *queue.Store {
	t.Helper()
	store, err := queue.Open(NewConfig(t))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

// SeedPost inserts a post and fails the test on error.
func SeedPost(t *testing.T, store *queue.Store, authorID, content string) *queue.Post {
	t.Helper()
	post, err := store.InsertPost(context.Background(), queue.NewPost{
		AuthorID:  authorID,
		Content:   content,
		SourceURL: "https://example.com/posts/" + authorID,
	})
	if err != nil {
		t.Fatalf("insert post: %v", err)
	}
	return post
}

// SeedProfile inserts a profile in the given sync status.
func SeedProfile(t *testing.T, store *queue.Store, fullName, status string) *queue.Profile {
	t.Helper()
	profile, err := store.InsertProfile(context.Background(), queue.NewProfile{
		FullName:   fullName,
		Headline:   "Builder of things",
		SyncStatus: status,
	})
	if err != nil {
		t.Fatalf("insert profile: %v", err)
	}
	return profile
}

// WaitFor polls the condition until it is true or the deadline expires.
func WaitFor(t *testing.T, timeout time.Duration, condition func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}
