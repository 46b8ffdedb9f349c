// Package content drafts post text, hashtags and image prompts with an
// external language model. It is optional: without a model every call fails
// with UNAVAILABLE and post creation is unaffected.
package content

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"devfeed/internal/utils"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
)

// Model completes a text prompt.
type Model interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

const (
	KindText         = "text"
	KindCode         = "code"
	KindMotivational = "motivational"
	KindTechNews     = "tech-news"

	MaxPromptLength = 1000
	MaxHashtags     = 8
	MaxImagePrompts = 3
)

var kindInstructions = map[string]string{
	KindText:         "Write an engaging, concise social media post for a developer community. Include a few relevant hashtags.",
	KindCode:         "Write a short post sharing a programming tip or tech trend for developers. Include relevant hashtags.",
	KindMotivational: "Write an encouraging post about learning and career growth in software development.",
	KindTechNews:     "Write a short post summarising a technology trend relevant to working developers.",
}

type Draft struct {
	Content       string `json:"content"`
	Type          string `json:"type"`
	IsAIGenerated bool   `json:"isAIGenerated"`
}

type Generator struct {
	model   Model
	breaker *gobreaker.CircuitBreaker
}

// NewGenerator wraps model in a circuit breaker that opens after
// failureThreshold consecutive failures and probes again after timeout.
// A nil model yields a generator that is always unavailable.
func NewGenerator(model Model, failureThreshold uint32, timeout time.Duration) *Generator {
	st := gobreaker.Settings{Name: "content-generator"}
	st.ReadyToTrip = func(counts gobreaker.Counts) bool { return counts.ConsecutiveFailures >= failureThreshold }
	st.Timeout = timeout
	st.OnStateChange = func(name string, from, to gobreaker.State) {
		log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
	}
	return &Generator{model: model, breaker: gobreaker.NewCircuitBreaker(st)}
}

func (g *Generator) Available() bool {
	return g != nil && g.model != nil
}

// GeneratePost drafts a post of the given kind. Unknown kinds fall back to plain text.
func (g *Generator) GeneratePost(ctx context.Context, prompt, kind string) (*Draft, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, utils.NewValidationError("prompt is required")
	}
	if len(prompt) > MaxPromptLength {
		return nil, utils.NewValidationError("prompt exceeds %d characters", MaxPromptLength)
	}
	instruction, ok := kindInstructions[kind]
	if !ok {
		kind = KindText
		instruction = kindInstructions[KindText]
	}

	full := fmt.Sprintf("%s\n\nUser request: %s\n\nGenerate a social media post (max 300 characters):", instruction, prompt)
	text, err := g.complete(ctx, "generate post", full)
	if err != nil {
		return nil, err
	}
	return &Draft{Content: text, Type: kind, IsAIGenerated: true}, nil
}

// GenerateHashtags suggests up to MaxHashtags '#'-prefixed tags for content.
func (g *Generator) GenerateHashtags(ctx context.Context, content string) ([]string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, utils.NewValidationError("content is required")
	}

	prompt := fmt.Sprintf("Generate 5-8 relevant hashtags for this developer community post. "+
		"Return only the hashtags separated by spaces, each starting with #.\n\nContent: %q\n\nHashtags:", content)
	text, err := g.complete(ctx, "generate hashtags", prompt)
	if err != nil {
		return nil, err
	}
	return ParseHashtags(text, MaxHashtags), nil
}

// SuggestImagePrompts proposes up to MaxImagePrompts image generator prompts for content.
func (g *Generator) SuggestImagePrompts(ctx context.Context, content string) ([]string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, utils.NewValidationError("post content is required")
	}

	prompt := fmt.Sprintf("Based on this social media post, suggest 3 creative image prompts for an AI image generator, "+
		"one per line.\n\nPost content: %q\n\nImage prompts:", content)
	text, err := g.complete(ctx, "suggest image prompts", prompt)
	if err != nil {
		return nil, err
	}
	return ParseLines(text, MaxImagePrompts), nil
}

func (g *Generator) complete(ctx context.Context, operation, prompt string) (string, error) {
	if !g.Available() {
		return "", utils.NewAppError(utils.ErrUnavailable, "AI service not available. Please configure GEMINI_API_KEY.", nil)
	}

	out, err := g.breaker.Execute(func() (interface{}, error) {
		return g.model.Complete(ctx, prompt)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", utils.NewUnavailableError(operation, err)
		}
		log.Error().Err(err).Str("operation", operation).Msg("content generation failed")
		return "", utils.NewUnavailableError(operation, err)
	}
	return out.(string), nil
}

// ParseHashtags picks whitespace separated '#' tokens, strips trailing
// punctuation and de-duplicates case-insensitively.
func ParseHashtags(text string, limit int) []string {
	tags := []string{}
	seen := make(map[string]bool)
	for _, tok := range strings.Fields(text) {
		if !strings.HasPrefix(tok, "#") {
			continue
		}
		tok = strings.TrimRightFunc(tok, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
		})
		if len(tok) < 2 {
			continue
		}
		key := strings.ToLower(tok)
		if seen[key] {
			continue
		}
		seen[key] = true
		tags = append(tags, tok)
		if len(tags) == limit {
			break
		}
	}
	return tags
}

// ParseLines returns the non-blank lines of text with list markers removed.
func ParseLines(text string, limit int) []string {
	lines := []string{}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*• ")
		line = strings.TrimSpace(trimNumbering(line))
		if line == "" {
			continue
		}
		lines = append(lines, line)
		if len(lines) == limit {
			break
		}
	}
	return lines
}

// trimNumbering drops a leading "1." or "2)" marker.
func trimNumbering(line string) string {
	i := 0
	for i < len(line) && line[i] >= '0' && line[i] <= '9' {
		i++
	}
	if i > 0 && i < len(line) && (line[i] == '.' || line[i] == ')') {
		return line[i+1:]
	}
	return line
}
