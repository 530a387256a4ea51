package strategy

import (
	"context"
	"fmt"
	"strings"
)

// Facts are the fixed restaurant details the info strategy answers from.
type Facts struct {
	Hours    string
	Location string
}

// DefaultFacts is what the restaurant currently publishes.
var DefaultFacts = Facts{
	Hours:    "Mon-Sun 11:00-23:00",
	Location: "123 Main St, Downtown",
}

// Info answers general questions about the restaurant.
type Info struct {
	llm   Completer
	facts Facts
}

func NewInfo(llm Completer, facts Facts) (*Info, error) {
	if llm == nil {
		return nil, fmt.Errorf("%w: info completer", errNilDependency)
	}
	if strings.TrimSpace(facts.Hours) == "" || strings.TrimSpace(facts.Location) == "" {
		facts = DefaultFacts
	}
	return &Info{llm: llm, facts: facts}, nil
}

func (s *Info) Name() string { return "info" }

func (s *Info) Respond(ctx context.Context, text string, _ Context) (string, error) {
	prompt := "Hours: " + s.facts.Hours + "\n" +
		"Location: " + s.facts.Location + "\n\n" +
		"User: " + text + "\n" +
		"Answer briefly and accurately."
	out, err := s.llm.Complete(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("strategy: info: %w", err)
	}
	return out, nil
}
