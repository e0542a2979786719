package service

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// SelectedModifier is one chosen option with the price delta the guest saw.
type SelectedModifier struct {
	ModifierOptionID uuid.UUID
	PriceDelta       decimal.Decimal
}

// CartLine is a single line of a cart submission. Prices are snapshots taken
// when the guest added the item and are stored as-is.
type CartLine struct {
	MenuItemID        uuid.UUID
	Quantity          int32
	UnitPrice         decimal.Decimal
	Note              string
	SelectedModifiers map[uuid.UUID][]SelectedModifier // keyed by modifier group ID
}

// LineTotal is (unitPrice + sum(priceDeltas)) * quantity.
func LineTotal(line CartLine) decimal.Decimal {
	unit := line.UnitPrice
	for _, mods := range line.SelectedModifiers {
		for _, m := range mods {
			unit = unit.Add(m.PriceDelta)
		}
	}
	return unit.Mul(decimal.NewFromInt32(line.Quantity))
}

// CartTotal sums LineTotal over all lines.
func CartTotal(lines []CartLine) decimal.Decimal {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(LineTotal(line))
	}
	return total
}

func validateCart(lines []CartLine) error {
	if len(lines) == 0 {
		return ErrEmptyCart
	}
	for i, line := range lines {
		if line.MenuItemID == uuid.Nil {
			return fmt.Errorf("item[%d]: %w", i, ErrInvalidMenuItemID)
		}
		if line.Quantity <= 0 {
			return fmt.Errorf("item[%d]: %w", i, ErrInvalidQuantity)
		}
		if line.UnitPrice.IsNegative() {
			return fmt.Errorf("item[%d]: %w", i, ErrInvalidPrice)
		}
		if !isCents(line.UnitPrice) {
			return fmt.Errorf("item[%d]: %w", i, ErrPricePrecision)
		}
		effective := line.UnitPrice
		for groupID, mods := range line.SelectedModifiers {
			if groupID == uuid.Nil {
				return fmt.Errorf("item[%d]: %w", i, ErrInvalidModifierID)
			}
			for j, m := range mods {
				if m.ModifierOptionID == uuid.Nil {
					return fmt.Errorf("item[%d].modifiers[%d]: %w", i, j, ErrInvalidModifierID)
				}
				if !isCents(m.PriceDelta) {
					return fmt.Errorf("item[%d].modifiers[%d]: %w", i, j, ErrPricePrecision)
				}
				effective = effective.Add(m.PriceDelta)
			}
		}
		// Negative deltas are allowed but cannot push a line below zero.
		if effective.IsNegative() {
			return fmt.Errorf("item[%d]: %w", i, ErrInvalidPrice)
		}
	}
	return nil
}

// isCents reports whether d fits NUMERIC(12,2) without rounding. Stored
// snapshots and the running total are both exact only at this scale.
func isCents(d decimal.Decimal) bool {
	return d.Equal(d.Round(2))
}

// sortedGroupIDs gives modifier rows a deterministic insert order.
func sortedGroupIDs(m map[uuid.UUID][]SelectedModifier) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}

func numericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid {
		return decimal.Zero
	}
	val, err := n.Value()
	if err != nil || val == nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(val.(string))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func decimalToNumeric(d decimal.Decimal) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(d.StringFixed(2))
	return n
}

func nullDecimalToNumeric(d decimal.NullDecimal) pgtype.Numeric {
	if !d.Valid {
		return pgtype.Numeric{}
	}
	return decimalToNumeric(d.Decimal)
}
