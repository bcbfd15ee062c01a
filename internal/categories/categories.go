// Package categories provides the category catalogue offered to the
// classifier, seeding a default set the first time a user needs one.
package categories

import (
	"context"
	"fmt"
	"strings"

	"github.com/sacha-rebbouh/optim-financials/internal/domain"
	"github.com/sacha-rebbouh/optim-financials/internal/store"
)

// Defaults is the catalogue given to a user without categories.
var Defaults = []string{
	"Housing",
	"Transport",
	"Subscriptions",
	"Restaurants",
	"Groceries",
	"Health",
	"Education",
	"Leisure",
	"Family",
	"Travel",
	"Insurance",
	"Taxes",
	"Tsedaka",
	"Maaser",
}

type Service struct {
	repo store.CategoryRepository
}

func NewService(repo store.CategoryRepository) *Service {
	return &Service{repo: repo}
}

// GetOrCreate returns the categories of userID, inserting Defaults when the
// user has none. Without a user there is no catalogue.
func (s *Service) GetOrCreate(ctx context.Context, userID string) ([]domain.Category, error) {
	if userID == "" {
		return nil, nil
	}
	existing, err := s.repo.ListCategories(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("GetOrCreate: listing: %w", err)
	}
	if len(existing) > 0 {
		return existing, nil
	}

	seed := make([]domain.Category, len(Defaults))
	for i, name := range Defaults {
		seed[i] = domain.Category{UserID: userID, Name: name}
	}
	if err := s.repo.InsertCategories(ctx, seed); err != nil {
		return nil, fmt.Errorf("GetOrCreate: seeding: %w", err)
	}
	return seed, nil
}

// Index maps lower-cased category names to ids.
type Index map[string]string

func NewIndex(categories []domain.Category) Index {
	idx := make(Index, len(categories))
	for _, c := range categories {
		idx[strings.ToLower(strings.TrimSpace(c.Name))] = c.ID
	}
	return idx
}

// Lookup resolves a category name case-insensitively.
func (i Index) Lookup(name string) (string, bool) {
	id, ok := i[strings.ToLower(strings.TrimSpace(name))]
	return id, ok
}
