package enrich

import (
	"fmt"
	"strings"

	"hopper/internal/queue"
)

const (
	hookContentLimit     = 2000
	embeddingInputLimit  = 8000
	classifyContentLimit = 1500
	hookMaxLength        = 300
)

const hookExtractionSystemPrompt = `You extract the hook from LinkedIn posts.
The hook is the opening portion that grabs attention and makes the reader stop scrolling.
Return the hook text verbatim from the post. Do not paraphrase, do not add quotes,
do not explain. Keep it under 300 characters.`

const classificationSystemPromptTemplate = `You classify LinkedIn post hooks into exactly one %s.
Choose from the numbered options below. Respond with JSON only:
{"id": "<option id>", "name": "<option name>"}
If none fits well, pick the closest match.

Options:
%s`

const styleAnalysisSystemPrompt = `You analyze a LinkedIn creator's writing style from their posts.
Respond with JSON only, using this shape:
{
  "writing_style_prompt": "<an instruction paragraph a ghostwriter could follow to write in this creator's voice>",
  "style_metrics": {"tone": "<dominant tone>", "structure": "<how posts are typically structured>", "vocabulary": "<notable word choices and phrasing>"},
  "signature_elements": ["<recurring phrases, openers, or formatting habits>"],
  "content_themes": ["<topics the creator returns to>"]
}`

// truncate bounds prompt input without splitting a rune.
func truncate(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}

func classificationSystemPrompt(kind string, options []queue.Category) string {
	var b strings.Builder
	for i, option := range options {
		fmt.Fprintf(&b, "%d. id=%s name=%s", i+1, option.ID, option.Name)
		if option.Description != "" {
			fmt.Fprintf(&b, " (%s)", option.Description)
		}
		b.WriteString("\n")
	}
	return fmt.Sprintf(classificationSystemPromptTemplate, kind, strings.TrimRight(b.String(), "\n"))
}

func styleAnalysisUserPrompt(profile *queue.Profile, posts []*queue.Post) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Creator: %s\n", profile.FullName)
	if profile.Headline != "" {
		fmt.Fprintf(&b, "Headline: %s\n", profile.Headline)
	}
	fmt.Fprintf(&b, "\nPosts (%d):\n", len(posts))
	for i, post := range posts {
		fmt.Fprintf(&b, "\n--- Post %d ---\n%s\n", i+1, truncate(post.Content, classifyContentLimit))
	}
	return b.String()
}

func snippet(text string, limit int) string {
	clean := strings.Join(strings.Fields(text), " ")
	runes := []rune(clean)
	if len(runes) > limit {
		return string(runes[:limit]) + "..."
	}
	return clean
}
