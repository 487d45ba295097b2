package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/roach88/stockbook/internal/apperr"
	"github.com/roach88/stockbook/internal/store"
)

// Product is a sellable item.
type Product struct {
	ID         int64           `db:"id" json:"id"`
	Name       string          `db:"name" json:"name"`
	CategoryID *int64          `db:"category_id" json:"category_id,omitempty"`
	ImagePath  *string         `db:"image_path" json:"image_path,omitempty"`
	Thumbnail  *string         `db:"thumbnail" json:"thumbnail,omitempty"`
	Stock      int64           `db:"stock" json:"stock"`
	Price      decimal.Decimal `db:"price" json:"price"`
	CreatedAt  store.Time      `db:"created_at" json:"created_at"`
	UpdatedAt  store.Time      `db:"updated_at" json:"updated_at"`
	Active     bool            `db:"active" json:"active"`
}

// ProductInput carries the editable fields of a product.
type ProductInput struct {
	Name       string
	CategoryID *int64
	ImagePath  *string
	Thumbnail  *string
	Stock      int64
	Price      decimal.Decimal
}

func (in ProductInput) validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return apperr.Validation("product name must not be empty")
	}
	if in.Stock < 0 {
		return apperr.Validation("stock must not be negative, got %d", in.Stock)
	}
	if in.Price.IsNegative() {
		return apperr.Validation("price must not be negative, got %s", in.Price)
	}
	return nil
}

const productColumns = `id, name, category_id, image_path, thumbnail, stock, price, created_at, updated_at, active`

// DeleteResult reports how a product was removed.
type DeleteResult struct {
	ID int64 `json:"id"`

	// Deactivated is true when sales reference the product and it was only
	// marked inactive.
	Deactivated bool `json:"deactivated"`
}

// CreateProduct inserts a new, active product.
func (s *Service) CreateProduct(ctx context.Context, in ProductInput) (*Product, error) {
	if err := in.validate(); err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}
	in.Name = strings.TrimSpace(in.Name)

	var p *Product
	err := s.withStore(ctx, func(st *store.Store) error {
		tx, err := st.DB().BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback() // No-op if committed

		if err := checkCategory(ctx, tx, in.CategoryID); err != nil {
			return err
		}

		now := s.stamp()
		res, err := tx.ExecContext(ctx, `
			INSERT INTO products (name, category_id, image_path, thumbnail, stock, price, created_at, updated_at, active)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1)
		`, in.Name, in.CategoryID, in.ImagePath, in.Thumbnail, in.Stock, in.Price, now, now)
		if err != nil {
			return fmt.Errorf("insert: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("insert: last id: %w", err)
		}
		if p, err = getProduct(ctx, tx, id); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return nil, fmt.Errorf("create product: %w", err)
	}

	s.logger.Info("product created", zap.Int64("product_id", p.ID), zap.String("name", p.Name))
	return p, nil
}

// GetProduct returns one product, active or not.
func (s *Service) GetProduct(ctx context.Context, id int64) (*Product, error) {
	var p *Product
	err := s.withStore(ctx, func(st *store.Store) error {
		var err error
		p, err = getProduct(ctx, st.DB(), id)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

// ListProducts returns products ordered by name. Inactive products are only
// included when includeInactive is set.
func (s *Service) ListProducts(ctx context.Context, includeInactive bool) ([]Product, error) {
	query := `SELECT ` + productColumns + ` FROM products`
	if !includeInactive {
		query += ` WHERE active = 1`
	}
	query += ` ORDER BY name COLLATE NOCASE, id`

	var products []Product
	err := s.withStore(ctx, func(st *store.Store) error {
		return st.DB().SelectContext(ctx, &products, query)
	})
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return products, nil
}

// UpdateProduct replaces the editable fields of a product. Setting stock is
// an inventory adjustment; it can never go below zero.
func (s *Service) UpdateProduct(ctx context.Context, id int64, in ProductInput) (*Product, error) {
	if err := in.validate(); err != nil {
		return nil, fmt.Errorf("update product %d: %w", id, err)
	}
	in.Name = strings.TrimSpace(in.Name)

	var p *Product
	err := s.withStore(ctx, func(st *store.Store) error {
		tx, err := st.DB().BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback() // No-op if committed

		if err := checkCategory(ctx, tx, in.CategoryID); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE products
			SET name = ?, category_id = ?, image_path = ?, thumbnail = ?, stock = ?, price = ?, updated_at = ?
			WHERE id = ?
		`, in.Name, in.CategoryID, in.ImagePath, in.Thumbnail, in.Stock, in.Price, s.stamp(), id)
		if err != nil {
			return fmt.Errorf("update: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apperr.NotFound("product", id)
		}
		if p, err = getProduct(ctx, tx, id); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return nil, fmt.Errorf("update product %d: %w", id, err)
	}
	return p, nil
}

// DeleteProduct removes a product. When any recorded line item references it
// the row is kept and marked inactive instead, so history still resolves.
func (s *Service) DeleteProduct(ctx context.Context, id int64) (DeleteResult, error) {
	result := DeleteResult{ID: id}
	err := s.withStore(ctx, func(st *store.Store) error {
		tx, err := st.DB().BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback() // No-op if committed

		if _, err := getProduct(ctx, tx, id); err != nil {
			return err
		}

		var refs int
		if err := tx.GetContext(ctx, &refs, "SELECT COUNT(*) FROM sold_line_items WHERE product_id = ?", id); err != nil {
			return fmt.Errorf("count references: %w", err)
		}

		if refs > 0 {
			if _, err := tx.ExecContext(ctx,
				"UPDATE products SET active = 0, updated_at = ? WHERE id = ?", s.stamp(), id); err != nil {
				return fmt.Errorf("deactivate: %w", err)
			}
			result.Deactivated = true
		} else if _, err := tx.ExecContext(ctx, "DELETE FROM products WHERE id = ?", id); err != nil {
			return fmt.Errorf("delete: %w", err)
		}
		return tx.Commit()
	})
	if err != nil {
		return DeleteResult{}, fmt.Errorf("delete product %d: %w", id, err)
	}

	s.logger.Info("product deleted", zap.Int64("product_id", id), zap.Bool("deactivated", result.Deactivated))
	return result, nil
}

func getProduct(ctx context.Context, q sqlx.QueryerContext, id int64) (*Product, error) {
	var p Product
	err := sqlx.GetContext(ctx, q, &p, `SELECT `+productColumns+` FROM products WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("product", id)
	}
	if err != nil {
		return nil, fmt.Errorf("select product %d: %w", id, err)
	}
	return &p, nil
}

func checkCategory(ctx context.Context, q sqlx.QueryerContext, id *int64) error {
	if id == nil {
		return nil
	}
	_, err := getCategory(ctx, q, *id)
	return err
}
