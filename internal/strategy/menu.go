package strategy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"restaurant-agent/internal/domain"
	"restaurant-agent/internal/menu"
)

const (
	menuSearchLimit = 10
	// menuDetailLimit matches the number of dishes the model is asked to
	// recommend.
	menuDetailLimit = 3
)

// MenuSearcher finds active menu items by name and looks up their details.
type MenuSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]domain.MenuItem, error)
	Get(ctx context.Context, id int64) (domain.MenuItemDetail, error)
}

// Menu recommends dishes from a catalog search on the user's text.
type Menu struct {
	llm     Completer
	catalog MenuSearcher
}

func NewMenu(llm Completer, catalog MenuSearcher) (*Menu, error) {
	if llm == nil || catalog == nil {
		return nil, fmt.Errorf("%w: menu completer and catalog", errNilDependency)
	}
	return &Menu{llm: llm, catalog: catalog}, nil
}

func (s *Menu) Name() string { return "menu" }

// Respond passes the search results to the model even when there are none;
// the model then asks the user to clarify.
func (s *Menu) Respond(ctx context.Context, text string, _ Context) (string, error) {
	items, err := s.catalog.Search(ctx, text, menuSearchLimit)
	if err != nil {
		return "", fmt.Errorf("strategy: menu search: %w", err)
	}
	if items == nil {
		items = []domain.MenuItem{}
	}
	results, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("strategy: menu encode results: %w", err)
	}

	prompt := "You are a restaurant assistant. Use the following menu search results to answer.\n" +
		"Results: " + string(results) + "\n"
	details, err := s.details(ctx, items)
	if err != nil {
		return "", err
	}
	if len(details) > 0 {
		encoded, err := json.Marshal(details)
		if err != nil {
			return "", fmt.Errorf("strategy: menu encode details: %w", err)
		}
		prompt += "Details: " + string(encoded) + "\n"
	}
	prompt += "User: " + text + "\n" +
		"Recommend up to 3 items and ask a clarification if needed."
	out, err := s.llm.Complete(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("strategy: menu: %w", err)
	}
	return out, nil
}

// details fetches descriptions and allergens for the leading results. Items
// withdrawn since the search are skipped.
func (s *Menu) details(ctx context.Context, items []domain.MenuItem) ([]domain.MenuItemDetail, error) {
	n := min(len(items), menuDetailLimit)
	out := make([]domain.MenuItemDetail, 0, n)
	for _, it := range items[:n] {
		d, err := s.catalog.Get(ctx, it.ID)
		if errors.Is(err, menu.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("strategy: menu detail %d: %w", it.ID, err)
		}
		out = append(out, d)
	}
	return out, nil
}
