package ai

import (
	"context"
	"time"
)

// PromptParser turns a free-text ride request into structured search criteria.
type PromptParser interface {
	ParseSearchPrompt(ctx context.Context, prompt string, now time.Time) (*SearchIntent, error)
}
