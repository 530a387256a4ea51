// Package strategy holds the per-intent dialogue strategies that produce the
// assistant's reply for a turn.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"restaurant-agent/internal/domain"
	"restaurant-agent/internal/intent"
	"restaurant-agent/internal/metrics"
)

// Context is what a strategy knows about the conversation besides the current
// user text. History already ends with the current user message.
type Context struct {
	UserID         int64
	ConversationID int64
	History        []domain.Message
}

// Strategy produces one assistant reply.
type Strategy interface {
	Name() string
	Respond(ctx context.Context, text string, conv Context) (string, error)
}

// Completer is the generation capability: one prompt in, one text out.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Dispatcher resolves a handler id to its strategy.
type Dispatcher struct {
	byID map[intent.HandlerID]Strategy
}

// NewDispatcher fails unless every handler id has a strategy.
func NewDispatcher(strategies map[intent.HandlerID]Strategy) (*Dispatcher, error) {
	byID := make(map[intent.HandlerID]Strategy, len(strategies))
	for _, id := range intent.Handlers() {
		s, ok := strategies[id]
		if !ok || s == nil {
			return nil, fmt.Errorf("strategy: no strategy for handler %q", id)
		}
		byID[id] = s
	}
	for id := range strategies {
		if _, ok := byID[id]; !ok {
			return nil, fmt.Errorf("strategy: unknown handler %q", id)
		}
	}
	return &Dispatcher{byID: byID}, nil
}

// Respond runs the strategy registered for id and records its latency.
func (d *Dispatcher) Respond(ctx context.Context, id intent.HandlerID, text string, conv Context) (string, string, error) {
	s, ok := d.byID[id]
	if !ok {
		return "", "", fmt.Errorf("strategy: unknown handler %q", id)
	}
	start := time.Now()
	out, err := s.Respond(ctx, text, conv)
	metrics.ObserveStrategy(s.Name(), time.Since(start))
	if err != nil {
		return "", s.Name(), err
	}
	return out, s.Name(), nil
}

var errNilDependency = errors.New("strategy: dependency must not be nil")
