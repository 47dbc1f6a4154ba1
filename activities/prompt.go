package activities

import (
	"context"
	"errors"
	"fmt"

	"go.temporal.io/sdk/temporal"

	"goa.design/docchat/security"
)

// BuildSafePromptName registers the prompt assembly activity.
const BuildSafePromptName = "build_safe_prompt"

// systemInstruction frames every assembled prompt.
const systemInstruction = "You are a helpful document analysis assistant. " +
	"Answer using only the documents provided below and say so when they do not contain the answer."

// PromptInput carries the documents and user query to fold into one prompt.
type PromptInput struct {
	Documents       []Document `json:"documents"`
	Query           string     `json:"query"`
	MaxCharsPerFile int        `json:"max_chars_per_file"`
}

// PromptResult is the assembled prompt plus how much source material made it in.
type PromptResult struct {
	Prompt        string `json:"prompt"`
	DocumentCount int    `json:"document_count"`
	Truncated     int    `json:"truncated"`
}

// PromptActivities assembles guarded prompts from documents and queries.
type PromptActivities struct {
	guard *security.PromptGuard
}

// NewPromptActivities returns prompt activities using the given guard.
func NewPromptActivities(guard *security.PromptGuard) *PromptActivities {
	return &PromptActivities{guard: guard}
}

// BuildSafePrompt validates the query against injection patterns, truncates
// each document to the per-file character limit and assembles the structured
// prompt.
// Injection matches are non-retryable: retrying cannot change the input.
func (p *PromptActivities) BuildSafePrompt(ctx context.Context, in PromptInput) (PromptResult, error) {
	if err := p.guard.Validate(in.Query); err != nil {
		if errors.Is(err, security.ErrPromptInjection) {
			return PromptResult{}, temporal.NewNonRetryableApplicationError(
				"query rejected by safety filter", "PromptInjection", err)
		}
		return PromptResult{}, err
	}

	var (
		docs      []security.PromptDocument
		truncated int
	)
	for _, doc := range in.Documents {
		if doc.Error != "" || doc.Content == "" {
			continue
		}
		content := doc.Content
		if in.MaxCharsPerFile > 0 && len(content) > in.MaxCharsPerFile {
			content = content[:in.MaxCharsPerFile] + "\n[Document truncated to fit context window]"
			truncated++
		}
		docs = append(docs, security.PromptDocument{
			Filename: doc.Filename,
			Content:  content,
		})
	}
	if len(docs) == 0 {
		return PromptResult{}, fmt.Errorf("no readable documents to build prompt from")
	}

	prompt, err := p.guard.BuildPrompt(in.Query, docs, systemInstruction)
	if err != nil {
		return PromptResult{}, err
	}
	return PromptResult{
		Prompt:        prompt,
		DocumentCount: len(docs),
		Truncated:     truncated,
	}, nil
}
