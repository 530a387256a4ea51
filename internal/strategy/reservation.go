package strategy

import (
	"context"
	"fmt"
)

// DialogueAgent runs an autonomous exchange seeded with one message and
// returns the agent's final message.
type DialogueAgent interface {
	Run(ctx context.Context, systemPrompt, initialMessage string) (string, error)
}

const reservationPrompt = "You book restaurant tables. Ask for date, time, party size, name, phone (optional)."

// Reservation books tables through a dialogue agent.
type Reservation struct {
	agent DialogueAgent
}

func NewReservation(agent DialogueAgent) (*Reservation, error) {
	if agent == nil {
		return nil, fmt.Errorf("%w: reservation agent", errNilDependency)
	}
	return &Reservation{agent: agent}, nil
}

func (s *Reservation) Name() string { return "reservation" }

func (s *Reservation) Respond(ctx context.Context, text string, _ Context) (string, error) {
	out, err := s.agent.Run(ctx, reservationPrompt, text)
	if err != nil {
		return "", fmt.Errorf("strategy: reservation: %w", err)
	}
	return out, nil
}
