package strategy

import (
	"context"
	"fmt"

	"restaurant-agent/internal/integrations/openai"
)

// NegotiationAgent runs one role-played task to completion.
type NegotiationAgent interface {
	Run(ctx context.Context, role openai.RoleDescriptor, task openai.Task) (string, error)
}

var salesAgent = openai.RoleDescriptor{
	Role:      "Sales Agent",
	Goal:      "Increase conversions while respecting user preferences.",
	Backstory: "Expert at upsell combos and confirming order details.",
}

// Delivery hands ordering and delivery requests to a sales agent.
type Delivery struct {
	agent NegotiationAgent
}

func NewDelivery(agent NegotiationAgent) (*Delivery, error) {
	if agent == nil {
		return nil, fmt.Errorf("%w: delivery agent", errNilDependency)
	}
	return &Delivery{agent: agent}, nil
}

func (s *Delivery) Name() string { return "delivery" }

func (s *Delivery) Respond(ctx context.Context, text string, _ Context) (string, error) {
	out, err := s.agent.Run(ctx, salesAgent, deliveryTask(text))
	if err != nil {
		return "", fmt.Errorf("strategy: delivery: %w", err)
	}
	return out, nil
}

func deliveryTask(text string) openai.Task {
	return openai.Task{
		Description: "User wants delivery/order help. Message: " + text + ". " +
			"Ask for missing details: address, items, customizations, payment instructions.",
		ExpectedOutput: "A clear, step-by-step message confirming cart and next questions.",
	}
}
