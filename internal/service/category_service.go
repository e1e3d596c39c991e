package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/openlot/auction/internal/domain"
)

// CategoryStore is the category persistence surface. Implemented by
// repository.CategoryRepository.
type CategoryStore interface {
	Create(ctx context.Context, c *domain.Category) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Category, error)
	List(ctx context.Context) ([]*domain.Category, error)
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

// CategoryService manages the flat category taxonomy auctions are filed under.
type CategoryService struct {
	categories CategoryStore
}

// NewCategoryService creates a CategoryService.
func NewCategoryService(categories CategoryStore) *CategoryService {
	return &CategoryService{categories: categories}
}

// CreateCategory adds a category. Names are trimmed and must be unique;
// uniqueness is enforced by the database constraint, not a racy pre-check.
func (s *CategoryService) CreateCategory(ctx context.Context, name, description string) (*domain.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", domain.ErrValidation)
	}
	if len(name) > domain.MaxCategoryNameLen {
		return nil, fmt.Errorf("%w: name exceeds %d characters", domain.ErrValidation, domain.MaxCategoryNameLen)
	}

	c := &domain.Category{
		ID:          uuid.New(),
		Name:        name,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.categories.Create(ctx, c); err != nil {
		if domain.IsConflict(err) {
			return nil, err
		}
		return nil, fmt.Errorf("category_service.CreateCategory: %w", err)
	}
	return c, nil
}

// GetCategory fetches one category by id.
func (s *CategoryService) GetCategory(ctx context.Context, id uuid.UUID) (*domain.Category, error) {
	c, err := s.categories.GetByID(ctx, id)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("category_service.GetCategory: %w", err)
	}
	return c, nil
}

// ListCategories returns every category ordered by name.
func (s *CategoryService) ListCategories(ctx context.Context) ([]*domain.Category, error) {
	categories, err := s.categories.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("category_service.ListCategories: %w", err)
	}
	return categories, nil
}
