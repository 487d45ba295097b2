package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/stockbook/internal/apperr"
	"github.com/roach88/stockbook/internal/store"
)

// profileID is the only row the profile table may hold.
const profileID = 1

// Profile is the shop owner's profile.
type Profile struct {
	Name      string  `db:"name" json:"name"`
	Role      string  `db:"role" json:"role"`
	PhotoPath *string `db:"photo_path" json:"photo_path,omitempty"`
	Thumbnail *string `db:"thumbnail" json:"thumbnail,omitempty"`
}

// GetProfile returns the profile, or nil when none was saved yet.
func (s *Service) GetProfile(ctx context.Context) (*Profile, error) {
	var p *Profile
	err := s.withStore(ctx, func(st *store.Store) error {
		var row Profile
		err := st.DB().GetContext(ctx, &row,
			"SELECT name, role, photo_path, thumbnail FROM profile WHERE id = ?", profileID)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		p = &row
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return p, nil
}

// SaveProfile creates or replaces the profile. A nil PhotoPath or Thumbnail
// keeps the stored value.
func (s *Service) SaveProfile(ctx context.Context, p Profile) (*Profile, error) {
	p.Name = strings.TrimSpace(p.Name)
	p.Role = strings.TrimSpace(p.Role)
	if p.Name == "" || p.Role == "" {
		return nil, fmt.Errorf("save profile: %w", apperr.Validation("profile name and role are required"))
	}

	var saved Profile
	err := s.withStore(ctx, func(st *store.Store) error {
		tx, err := st.DB().BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer tx.Rollback() // No-op if committed

		_, err = tx.ExecContext(ctx, `
			INSERT INTO profile (id, name, role, photo_path, thumbnail)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name       = excluded.name,
				role       = excluded.role,
				photo_path = COALESCE(excluded.photo_path, profile.photo_path),
				thumbnail  = COALESCE(excluded.thumbnail, profile.thumbnail)
		`, profileID, p.Name, p.Role, p.PhotoPath, p.Thumbnail)
		if err != nil {
			return fmt.Errorf("upsert: %w", err)
		}
		if err := tx.GetContext(ctx, &saved,
			"SELECT name, role, photo_path, thumbnail FROM profile WHERE id = ?", profileID); err != nil {
			return fmt.Errorf("reload: %w", err)
		}
		return tx.Commit()
	})
	if err != nil {
		return nil, fmt.Errorf("save profile: %w", err)
	}
	return &saved, nil
}
