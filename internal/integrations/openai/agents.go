package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"restaurant-agent/internal/domain"
)

// chatter is the slice of Client the agents need.
type chatter interface {
	Chat(ctx context.Context, messages []domain.ChatMessage) (string, error)
}

// RoleDescriptor describes the persona a negotiation agent plays.
type RoleDescriptor struct {
	Role      string
	Goal      string
	Backstory string
}

// Task is the unit of work handed to a negotiation agent.
type Task struct {
	Description    string
	ExpectedOutput string
}

// NegotiationAgent runs a single-agent, single-task crew: the persona becomes
// the system prompt and the task the user turn.
type NegotiationAgent struct {
	llm chatter
}

func NewNegotiationAgent(llm chatter) (*NegotiationAgent, error) {
	if llm == nil {
		return nil, errors.New("openai: negotiation agent needs a chat client")
	}
	return &NegotiationAgent{llm: llm}, nil
}

func (a *NegotiationAgent) Run(ctx context.Context, role RoleDescriptor, task Task) (string, error) {
	if strings.TrimSpace(task.Description) == "" {
		return "", errors.New("openai: negotiation task description is empty")
	}
	system := fmt.Sprintf("You are %s. %s\nYour personal goal is: %s",
		role.Role, role.Backstory, role.Goal)

	user := "Current Task: " + task.Description
	if task.ExpectedOutput != "" {
		user += "\n\nThis is the expected criteria for your final answer: " + task.ExpectedOutput +
			"\nyou MUST return the actual complete content as the final answer, not a summary."
	}

	out, err := a.llm.Chat(ctx, []domain.ChatMessage{
		domain.SystemMessage(system),
		domain.UserMessage(user),
	})
	if err != nil {
		return "", fmt.Errorf("openai: negotiation agent: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// TerminationMarker ends a dialogue early when the agent includes it.
const TerminationMarker = "TERMINATE"

// counterpartReply is what the scripted counterpart says on every round. It
// never supplies new information, so the agent can only wrap up.
const counterpartReply = "No further input is available from the customer right now. " +
	"Reply with your final message to them. Append " + TerminationMarker + " when you are done."

// DialogueAgent runs an autonomous exchange between an assistant and a
// scripted counterpart that takes no human input, and keeps only the
// assistant's last message.
type DialogueAgent struct {
	llm       chatter
	maxRounds int
}

func NewDialogueAgent(llm chatter, maxRounds int) (*DialogueAgent, error) {
	if llm == nil {
		return nil, errors.New("openai: dialogue agent needs a chat client")
	}
	if maxRounds <= 0 {
		maxRounds = 1
	}
	return &DialogueAgent{llm: llm, maxRounds: maxRounds}, nil
}

func (a *DialogueAgent) Run(ctx context.Context, systemPrompt, initialMessage string) (string, error) {
	history := []domain.ChatMessage{
		domain.SystemMessage(systemPrompt),
		domain.UserMessage(initialMessage),
	}

	var last string
	for round := 1; round <= a.maxRounds; round++ {
		reply, err := a.llm.Chat(ctx, history)
		if err != nil {
			return "", fmt.Errorf("openai: dialogue agent round %d: %w", round, err)
		}
		text, done := stripTermination(reply)
		if text != "" {
			last = text
		}
		if done {
			break
		}
		history = append(history, domain.AssistantMessage(reply), domain.UserMessage(counterpartReply))
	}
	if last == "" {
		return "", errors.New("openai: dialogue agent produced no message")
	}
	return last, nil
}

func stripTermination(reply string) (string, bool) {
	if !strings.Contains(reply, TerminationMarker) {
		return strings.TrimSpace(reply), false
	}
	return strings.TrimSpace(strings.ReplaceAll(reply, TerminationMarker, "")), true
}
