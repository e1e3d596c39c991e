package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/openlot/auction/internal/domain"
)

// CategoryRepository handles all database operations for categories.
type CategoryRepository struct {
	db *sqlx.DB
}

// NewCategoryRepository creates a new CategoryRepository.
func NewCategoryRepository(db *sqlx.DB) *CategoryRepository {
	return &CategoryRepository{db: db}
}

// Create inserts a new category, surfacing a duplicate name as a domain error.
func (r *CategoryRepository) Create(ctx context.Context, c *domain.Category) error {
	query := `
		INSERT INTO categories (id, name, description, created_at)
		VALUES (:id, :name, :description, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, c); err != nil {
		if isUniqueViolation(err, "categories_name_key") {
			return domain.ErrCategoryNameTaken
		}
		return fmt.Errorf("category_repo.Create: %w", err)
	}
	return nil
}

// GetByID fetches a category by primary key.
func (r *CategoryRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Category, error) {
	var c domain.Category
	err := r.db.GetContext(ctx, &c, `SELECT * FROM categories WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrCategoryNotFound
		}
		return nil, fmt.Errorf("category_repo.GetByID: %w", err)
	}
	return &c, nil
}

// List returns every category ordered by name. The set is small enough that
// pagination would be noise.
func (r *CategoryRepository) List(ctx context.Context) ([]*domain.Category, error) {
	var categories []*domain.Category
	err := r.db.SelectContext(ctx, &categories, `SELECT * FROM categories ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("category_repo.List: %w", err)
	}
	return categories, nil
}

// Exists reports whether a category with the given id exists.
func (r *CategoryRepository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM categories WHERE id = $1)`, id)
	if err != nil {
		return false, fmt.Errorf("category_repo.Exists: %w", err)
	}
	return exists, nil
}
