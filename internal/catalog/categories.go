package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/roach88/stockbook/internal/apperr"
	"github.com/roach88/stockbook/internal/store"
)

// Category groups products.
type Category struct {
	ID   int64  `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

// CategoryDeleteResult reports what a category delete did to its products.
type CategoryDeleteResult struct {
	ID int64 `json:"id"`

	// Detached counts products whose category was cleared.
	Detached int64 `json:"detached"`
}

// CreateCategory inserts a category.
func (s *Service) CreateCategory(ctx context.Context, name string) (*Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("create category: %w", apperr.Validation("category name must not be empty"))
	}

	var c *Category
	err := s.withStore(ctx, func(st *store.Store) error {
		res, err := st.DB().ExecContext(ctx, "INSERT INTO categories (name) VALUES (?)", name)
		if err != nil {
			return fmt.Errorf("insert: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("insert: last id: %w", err)
		}
		c = &Category{ID: id, Name: name}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create category: %w", err)
	}
	return c, nil
}

// GetCategory returns one category.
func (s *Service) GetCategory(ctx context.Context, id int64) (*Category, error) {
	var c *Category
	err := s.withStore(ctx, func(st *store.Store) error {
		var err error
		c, err = getCategory(ctx, st.DB(), id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get category: %w", err)
	}
	return c, nil
}

// ListCategories returns all categories ordered by name.
func (s *Service) ListCategories(ctx context.Context) ([]Category, error) {
	var categories []Category
	err := s.withStore(ctx, func(st *store.Store) error {
		return st.DB().SelectContext(ctx, &categories,
			"SELECT id, name FROM categories ORDER BY name COLLATE NOCASE, id")
	})
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return categories, nil
}

// RenameCategory changes a category's name.
func (s *Service) RenameCategory(ctx context.Context, id int64, name string) (*Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("rename category %d: %w", id, apperr.Validation("category name must not be empty"))
	}

	err := s.withStore(ctx, func(st *store.Store) error {
		res, err := st.DB().ExecContext(ctx, "UPDATE categories SET name = ? WHERE id = ?", name, id)
		if err != nil {
			return fmt.Errorf("update: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperr.NotFound("category", id)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("rename category %d: %w", id, err)
	}
	return &Category{ID: id, Name: name}, nil
}

// DeleteCategory removes a category according to the service's policy.
// Under PolicyRestrict a category still used by any product, active or not,
// yields an *InUseError. Under PolicyNullify those products lose the
// reference in the same transaction.
func (s *Service) DeleteCategory(ctx context.Context, id int64) (CategoryDeleteResult, error) {
	result := CategoryDeleteResult{ID: id}
	err := s.withStore(ctx, func(st *store.Store) error {
		tx, err := st.DB().BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback() // No-op if committed

		if _, err := getCategory(ctx, tx, id); err != nil {
			return err
		}

		var refs int
		if err := tx.GetContext(ctx, &refs, "SELECT COUNT(*) FROM products WHERE category_id = ?", id); err != nil {
			return fmt.Errorf("count references: %w", err)
		}

		if refs > 0 {
			if s.policy == PolicyRestrict {
				return &InUseError{Entity: "category", ID: id, References: refs}
			}
			res, err := tx.ExecContext(ctx,
				"UPDATE products SET category_id = NULL, updated_at = ? WHERE category_id = ?", s.stamp(), id)
			if err != nil {
				return fmt.Errorf("detach products: %w", err)
			}
			result.Detached, _ = res.RowsAffected()
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM categories WHERE id = ?", id); err != nil {
			return fmt.Errorf("delete: %w", err)
		}
		return tx.Commit()
	})
	if err != nil {
		return CategoryDeleteResult{}, fmt.Errorf("delete category %d: %w", id, err)
	}

	s.logger.Info("category deleted",
		zap.Int64("category_id", id),
		zap.Int64("detached", result.Detached),
		zap.String("policy", string(s.policy)),
	)
	return result, nil
}

func getCategory(ctx context.Context, q sqlx.QueryerContext, id int64) (*Category, error) {
	var c Category
	err := sqlx.GetContext(ctx, q, &c, "SELECT id, name FROM categories WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("category", id)
	}
	if err != nil {
		return nil, fmt.Errorf("select category %d: %w", id, err)
	}
	return &c, nil
}
