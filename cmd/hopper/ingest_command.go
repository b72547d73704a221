package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"hopper/internal/notifications"
	"hopper/internal/queue"
)

func newIngestCommand(ctx *commandContext) *cobra.Command {
	ingestCmd := &cobra.Command{
		Use:   "ingest",
		Short: "Queue new content for enrichment",
	}

	ingestCmd.AddCommand(newIngestPostCommand(ctx))
	ingestCmd.AddCommand(newIngestProfileCommand(ctx))
	ingestCmd.AddCommand(newIngestFileCommand(ctx))

	return ingestCmd
}

type ingestDocument struct {
	Posts []struct {
		AuthorID  string     `json:"author_id"`
		Content   string     `json:"content"`
		SourceURL string     `json:"source_url"`
		PostedAt  *time.Time `json:"posted_at"`
	} `json:"posts"`
	Profiles []struct {
		FullName string `json:"full_name"`
		Headline string `json:"headline"`
	} `json:"profiles"`
}

func newIngestFileCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "file <path.json>",
		Short: "Bulk-queue scraped posts and profiles from a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read ingest file: %w", err)
			}
			var doc ingestDocument
			if err := json.Unmarshal(raw, &doc); err != nil {
				return fmt.Errorf("parse ingest file: %w", err)
			}
			if len(doc.Posts) == 0 && len(doc.Profiles) == 0 {
				return errors.New("ingest file contains no posts or profiles")
			}

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := queue.Open(cfg)
			if err != nil {
				return fmt.Errorf("open work item store: %w", err)
			}
			defer store.Close()

			skipped := 0
			posts := 0
			for i, entry := range doc.Posts {
				if strings.TrimSpace(entry.Content) == "" || strings.TrimSpace(entry.AuthorID) == "" {
					skipped++
					continue
				}
				if _, err := store.InsertPost(cmd.Context(), queue.NewPost{
					AuthorID:  strings.TrimSpace(entry.AuthorID),
					Content:   strings.TrimSpace(entry.Content),
					SourceURL: strings.TrimSpace(entry.SourceURL),
					PostedAt:  entry.PostedAt,
				}); err != nil {
					return fmt.Errorf("queue post %d: %w", i+1, err)
				}
				posts++
			}
			profiles := 0
			for i, entry := range doc.Profiles {
				if strings.TrimSpace(entry.FullName) == "" {
					skipped++
					continue
				}
				if _, err := store.InsertProfile(cmd.Context(), queue.NewProfile{
					FullName: strings.TrimSpace(entry.FullName),
					Headline: strings.TrimSpace(entry.Headline),
				}); err != nil {
					return fmt.Errorf("queue profile %d: %w", i+1, err)
				}
				profiles++
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Queued %d posts and %d profiles.\n", posts, profiles)
			if skipped > 0 {
				fmt.Fprintf(out, "Skipped %d entries with missing required fields.\n", skipped)
			}
			return nil
		},
	}
}

func newIngestPostCommand(ctx *commandContext) *cobra.Command {
	var authorID string
	var content string
	var contentFile string
	var sourceURL string

	cmd := &cobra.Command{
		Use:   "post",
		Short: "Queue a post with every enrichment stage pending",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			body := strings.TrimSpace(content)
			if contentFile != "" {
				if body != "" {
					return errors.New("use either --content or --file, not both")
				}
				raw, err := os.ReadFile(contentFile)
				if err != nil {
					return fmt.Errorf("read content file: %w", err)
				}
				body = strings.TrimSpace(string(raw))
			}
			if body == "" {
				return errors.New("post content is required (--content or --file)")
			}
			if strings.TrimSpace(authorID) == "" {
				return errors.New("--author is required")
			}

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := queue.Open(cfg)
			if err != nil {
				return fmt.Errorf("open work item store: %w", err)
			}
			defer store.Close()

			post, err := store.InsertPost(cmd.Context(), queue.NewPost{
				AuthorID:  strings.TrimSpace(authorID),
				Content:   body,
				SourceURL: strings.TrimSpace(sourceURL),
			})
			if err != nil {
				return fmt.Errorf("queue post: %w", err)
			}

			notifier := notifications.NewService(cfg)
			if err := notifier.NotifyPostIngested(cmd.Context(), post.AuthorID); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: ingest notification failed: %v\n", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Queued post %s with all enrichment stages pending.\n", post.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&authorID, "author", "", "Author identifier for the post")
	cmd.Flags().StringVar(&content, "content", "", "Post content")
	cmd.Flags().StringVar(&contentFile, "file", "", "Read post content from a file")
	cmd.Flags().StringVar(&sourceURL, "url", "", "Source URL of the post")
	return cmd
}

func newIngestProfileCommand(ctx *commandContext) *cobra.Command {
	var fullName string
	var headline string

	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Queue an author profile for style completion",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(fullName) == "" {
				return errors.New("--name is required")
			}

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := queue.Open(cfg)
			if err != nil {
				return fmt.Errorf("open work item store: %w", err)
			}
			defer store.Close()

			profile, err := store.InsertProfile(cmd.Context(), queue.NewProfile{
				FullName: strings.TrimSpace(fullName),
				Headline: strings.TrimSpace(headline),
			})
			if err != nil {
				return fmt.Errorf("queue profile: %w", err)
			}

			notifier := notifications.NewService(cfg)
			if err := notifier.NotifyProfileIngested(cmd.Context(), profile.FullName); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: ingest notification failed: %v\n", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Queued profile %s for style completion.\n", profile.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&fullName, "name", "", "Full name of the author")
	cmd.Flags().StringVar(&headline, "headline", "", "Profile headline")
	return cmd
}
