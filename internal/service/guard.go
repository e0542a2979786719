package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/tableside/api/internal/database"
)

// CatalogStore is the catalog lookup used by the price guard.
type CatalogStore interface {
	GetMenuItem(ctx context.Context, id uuid.UUID) (database.MenuItem, error)
	GetModifierOption(ctx context.Context, id uuid.UUID) (database.GetModifierOptionRow, error)
}

// PriceGuard compares cart snapshots against the live catalog inside the
// submission transaction. Disabled by default: snapshots are trusted and a
// mid-session menu price change does not reprice an in-flight cart.
type PriceGuard struct{}

// Check returns ErrPriceMismatch for the first line whose unit price or
// modifier delta differs from the catalog, or that references an unknown or
// unavailable item.
func (PriceGuard) Check(ctx context.Context, store CatalogStore, lines []CartLine) error {
	for i, line := range lines {
		item, err := store.GetMenuItem(ctx, line.MenuItemID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("item[%d]: menu item %s: %w", i, line.MenuItemID, ErrPriceMismatch)
			}
			return fmt.Errorf("get menu item: %w", err)
		}
		if !item.IsAvailable || !numericToDecimal(item.Price).Equal(line.UnitPrice) {
			return fmt.Errorf("item[%d]: unit price: %w", i, ErrPriceMismatch)
		}

		for groupID, mods := range line.SelectedModifiers {
			for _, m := range mods {
				opt, err := store.GetModifierOption(ctx, m.ModifierOptionID)
				if err != nil {
					if errors.Is(err, pgx.ErrNoRows) {
						return fmt.Errorf("item[%d]: modifier %s: %w", i, m.ModifierOptionID, ErrPriceMismatch)
					}
					return fmt.Errorf("get modifier option: %w", err)
				}
				if opt.GroupID != groupID || opt.MenuItemID != line.MenuItemID {
					return fmt.Errorf("item[%d]: modifier %s not in group: %w", i, m.ModifierOptionID, ErrPriceMismatch)
				}
				if !numericToDecimal(opt.PriceDelta).Equal(m.PriceDelta) {
					return fmt.Errorf("item[%d]: modifier %s price delta: %w", i, m.ModifierOptionID, ErrPriceMismatch)
				}
			}
		}
	}
	return nil
}
