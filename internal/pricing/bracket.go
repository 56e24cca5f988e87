// Package pricing resolves tiered discount brackets. It is pure and
// side-effect-free; callers may invoke it concurrently.
package pricing

import (
	"fmt"
	"sort"

	"groupbuy-service/internal/models"
)

// Resolution is the outcome of resolving a quantity against a bracket list.
// Next is nil when the quantity already sits in the unbounded top bracket, in
// which case Progress is nil as well (absent, not zero).
type Resolution struct {
	Current  models.DiscountBracket  `json:"current"`
	Next     *models.DiscountBracket `json:"next,omitempty"`
	Progress *float64                `json:"progress_percent,omitempty"`
}

// Resolve returns the bracket containing quantity, the following bracket if
// one exists, and the percentage progress toward it.
func Resolve(brackets []models.DiscountBracket, quantity int64) (*Resolution, error) {
	if err := ValidateBrackets(brackets); err != nil {
		return nil, err
	}
	if quantity < 0 {
		return nil, fmt.Errorf("%w: negative quantity %d", models.ErrBracketConfigInvalid, quantity)
	}

	ordered := sortedByPosition(brackets)
	if quantity < ordered[0].MinQuantity {
		return nil, fmt.Errorf("%w: quantity %d below first bracket minimum %d",
			models.ErrBracketConfigInvalid, quantity, ordered[0].MinQuantity)
	}

	for i, b := range ordered {
		if !b.Contains(quantity) {
			continue
		}

		res := &Resolution{Current: b}
		if i+1 < len(ordered) {
			next := ordered[i+1]
			res.Next = &next
			progress := float64(quantity-b.MinQuantity) / float64(next.MinQuantity-b.MinQuantity) * 100
			res.Progress = &progress
		}
		return res, nil
	}

	// Unreachable for a valid partition; Contains covers all of [min, +inf).
	return nil, fmt.Errorf("%w: quantity %d not covered by any bracket", models.ErrBracketConfigInvalid, quantity)
}

// ValidateBrackets checks that the list forms a contiguous, non-overlapping,
// ascending partition: each bracket's minimum equals the previous maximum+1
// and the final bracket has no upper bound.
func ValidateBrackets(brackets []models.DiscountBracket) error {
	if len(brackets) == 0 {
		return fmt.Errorf("%w: empty bracket list", models.ErrBracketConfigInvalid)
	}

	ordered := sortedByPosition(brackets)
	for i, b := range ordered {
		if b.UnitPrice.IsNegative() {
			return fmt.Errorf("%w: bracket %d has negative unit price %s",
				models.ErrBracketConfigInvalid, i, b.UnitPrice)
		}

		last := i == len(ordered)-1
		if last {
			if b.MaxQuantity != nil {
				return fmt.Errorf("%w: final bracket must be unbounded", models.ErrBracketConfigInvalid)
			}
			continue
		}

		if b.MaxQuantity == nil {
			return fmt.Errorf("%w: only the final bracket may be unbounded", models.ErrBracketConfigInvalid)
		}
		if *b.MaxQuantity < b.MinQuantity {
			return fmt.Errorf("%w: bracket %d range [%d, %d] is inverted",
				models.ErrBracketConfigInvalid, i, b.MinQuantity, *b.MaxQuantity)
		}
		if next := ordered[i+1]; next.MinQuantity != *b.MaxQuantity+1 {
			return fmt.Errorf("%w: bracket %d starts at %d, expected %d",
				models.ErrBracketConfigInvalid, i+1, next.MinQuantity, *b.MaxQuantity+1)
		}
	}

	return nil
}

func sortedByPosition(brackets []models.DiscountBracket) []models.DiscountBracket {
	ordered := make([]models.DiscountBracket, len(brackets))
	copy(ordered, brackets)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Position < ordered[j].Position
	})
	return ordered
}
