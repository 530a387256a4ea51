// Package intent maps free text to the closed intent set and routes each
// intent to its dialogue handler.
package intent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"restaurant-agent/internal/domain"
	"restaurant-agent/internal/metrics"
)

// Completer is the generation capability: one prompt in, one text out.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

type Classifier struct {
	llm    Completer
	logger zerolog.Logger
}

func NewClassifier(llm Completer, logger zerolog.Logger) (*Classifier, error) {
	if llm == nil {
		return nil, errors.New("intent: completer must not be nil")
	}
	return &Classifier{llm: llm, logger: logger}, nil
}

// Classify asks the generation capability for a label. It only fails when the
// capability call fails; unknown labels become IntentInfo.
func (c *Classifier) Classify(ctx context.Context, text string) (domain.Intent, error) {
	raw, err := c.llm.Complete(ctx, buildPrompt(text))
	if err != nil {
		return "", fmt.Errorf("intent: classify: %w", err)
	}
	got, ok := Parse(raw)
	if !ok {
		metrics.IncIntentFallback()
		c.logger.Debug().Str("raw_label", truncate(raw, 64)).Msg("unrecognized intent label, using info")
	}
	return got, nil
}

// Parse normalizes a raw label. The boolean reports whether raw named a member
// of the intent set; when it did not, IntentInfo is returned.
func Parse(raw string) (domain.Intent, bool) {
	i := domain.Intent(strings.ToLower(strings.TrimSpace(raw)))
	if !i.Valid() {
		return domain.IntentInfo, false
	}
	return i, true
}

func buildPrompt(text string) string {
	labels := make([]string, 0, len(domain.Intents()))
	for _, i := range domain.Intents() {
		labels = append(labels, string(i))
	}
	return "Classify intent into one of: " + strings.Join(labels, ", ") + ".\n" +
		"User message: " + text + "\n" +
		"Return only the label."
}

// truncate keeps at most n runes of s.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
