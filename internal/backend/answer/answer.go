// Package answer composes streamed replies for the chat backend.
package answer

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/time/rate"
)

// Answerer streams an answer to question grounded on menu context.
type Answerer interface {
	Stream(ctx context.Context, contextText, question string, emit func(chunk string) error) error
}

// Fallback is used when no menu context matches the question.
const Fallback = "I'm sorry, I don't know the answer to that. " +
	"Try asking about the dishes on our menu, like our soups, curries, noodles or desserts."

// Refusal is streamed for questions the policy denies.
const Refusal = "Sorry, I can only help with questions about our menu."

// MenuAnswerer builds a concierge reply from the context lines and emits it
// in fixed-size rune chunks, paced by a rate limiter.
type MenuAnswerer struct {
	chunkSize int
	rate      rate.Limit
}

// NewMenuAnswerer creates an answerer. A non-positive chunksPerSecond
// disables pacing.
func NewMenuAnswerer(chunkSize int, chunksPerSecond float64) *MenuAnswerer {
	if chunkSize <= 0 {
		chunkSize = 8
	}
	limit := rate.Inf
	if chunksPerSecond > 0 {
		limit = rate.Limit(chunksPerSecond)
	}
	return &MenuAnswerer{chunkSize: chunkSize, rate: limit}
}

var _ Answerer = (*MenuAnswerer)(nil)

// Stream emits Compose(contextText, question) chunk by chunk.
func (a *MenuAnswerer) Stream(ctx context.Context, contextText, question string, emit func(string) error) error {
	return StreamText(ctx, Compose(contextText, question), a.chunkSize, rate.NewLimiter(a.rate, 1), emit)
}

// StreamText emits text in chunks of chunkSize runes, waiting on limiter
// before each one.
func StreamText(ctx context.Context, text string, chunkSize int, limiter *rate.Limiter, emit func(string) error) error {
	for _, chunk := range splitIntoChunks(text, chunkSize) {
		if err := limiter.Wait(ctx); err != nil {
			return fmt.Errorf("stream answer: %w", err)
		}
		if err := emit(chunk); err != nil {
			return err
		}
	}
	return nil
}

// Compose renders the answer text.
func Compose(contextText, question string) string {
	contextText = strings.TrimSpace(contextText)
	if contextText == "" {
		return Fallback
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Here is what I found on our menu for %q:\n", truncate(strings.TrimSpace(question), 80))
	for _, line := range strings.Split(contextText, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		b.WriteString("- ")
		b.WriteString(line)
		b.WriteString("\n")
	}
	b.WriteString("Let me know if you'd like to hear about anything else!")
	return b.String()
}

// splitIntoChunks splits s into chunks of at most chunkSize runes.
func splitIntoChunks(s string, chunkSize int) []string {
	runes := []rune(s)
	var chunks []string
	for i := 0; i < len(runes); i += chunkSize {
		end := i + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[i:end]))
	}
	return chunks
}

// truncate truncates s to maxLen runes.
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
