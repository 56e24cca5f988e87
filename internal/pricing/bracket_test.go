package pricing

import (
	"errors"
	"testing"

	"groupbuy-service/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v int64) *int64 { return &v }

// standardBrackets is the [0-99 @ $10, 100-249 @ $9, 250+ @ $8] partition.
func standardBrackets() []models.DiscountBracket {
	return []models.DiscountBracket{
		{MinQuantity: 0, MaxQuantity: ptr(99), UnitPrice: decimal.NewFromInt(10), Position: 0},
		{MinQuantity: 100, MaxQuantity: ptr(249), UnitPrice: decimal.NewFromInt(9), Position: 1},
		{MinQuantity: 250, MaxQuantity: nil, UnitPrice: decimal.NewFromInt(8), Position: 2},
	}
}

func TestResolveMiddleBracket(t *testing.T) {
	res, err := Resolve(standardBrackets(), 150)
	require.NoError(t, err)

	assert.True(t, res.Current.UnitPrice.Equal(decimal.NewFromInt(9)))
	require.NotNil(t, res.Next)
	assert.True(t, res.Next.UnitPrice.Equal(decimal.NewFromInt(8)))
	assert.Equal(t, int64(250), res.Next.MinQuantity)

	// (150-100)/(250-100)*100 = 33.33...
	require.NotNil(t, res.Progress)
	assert.InDelta(t, 33.33, *res.Progress, 0.01)
}

func TestResolveTopBracketHasNoNext(t *testing.T) {
	res, err := Resolve(standardBrackets(), 1000)
	require.NoError(t, err)

	assert.True(t, res.Current.UnitPrice.Equal(decimal.NewFromInt(8)))
	assert.Nil(t, res.Next)
	assert.Nil(t, res.Progress, "progress is absent in the top bracket, not zero")
}

func TestResolveBoundaries(t *testing.T) {
	cases := []struct {
		quantity int64
		price    int64
	}{
		{0, 10},
		{99, 10},
		{100, 9},
		{249, 9},
		{250, 8},
	}
	for _, tc := range cases {
		res, err := Resolve(standardBrackets(), tc.quantity)
		require.NoError(t, err, "quantity %d", tc.quantity)
		assert.True(t, res.Current.UnitPrice.Equal(decimal.NewFromInt(tc.price)),
			"quantity %d resolved to %s", tc.quantity, res.Current.UnitPrice)
	}
}

func TestResolveMonotonic(t *testing.T) {
	brackets := standardBrackets()
	lastPosition := -1
	for q := int64(0); q <= 600; q += 10 {
		res, err := Resolve(brackets, q)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, res.Current.Position, lastPosition,
			"resolved tier regressed at quantity %d", q)
		lastPosition = res.Current.Position
	}
}

func TestResolveEmptyList(t *testing.T) {
	_, err := Resolve(nil, 10)
	assert.ErrorIs(t, err, models.ErrBracketConfigInvalid)
}

func TestResolveBelowFirstMinimum(t *testing.T) {
	brackets := []models.DiscountBracket{
		{MinQuantity: 10, MaxQuantity: ptr(99), UnitPrice: decimal.NewFromInt(10), Position: 0},
		{MinQuantity: 100, MaxQuantity: nil, UnitPrice: decimal.NewFromInt(9), Position: 1},
	}
	_, err := Resolve(brackets, 5)
	assert.ErrorIs(t, err, models.ErrBracketConfigInvalid)
}

func TestResolveIgnoresInputOrder(t *testing.T) {
	brackets := standardBrackets()
	brackets[0], brackets[2] = brackets[2], brackets[0]

	res, err := Resolve(brackets, 50)
	require.NoError(t, err)
	assert.True(t, res.Current.UnitPrice.Equal(decimal.NewFromInt(10)))
}

func TestValidateBrackets(t *testing.T) {
	assert.NoError(t, ValidateBrackets(standardBrackets()))
}

func TestValidateBracketsGap(t *testing.T) {
	brackets := []models.DiscountBracket{
		{MinQuantity: 0, MaxQuantity: ptr(99), UnitPrice: decimal.NewFromInt(10), Position: 0},
		{MinQuantity: 150, MaxQuantity: nil, UnitPrice: decimal.NewFromInt(9), Position: 1},
	}
	err := ValidateBrackets(brackets)
	assert.ErrorIs(t, err, models.ErrBracketConfigInvalid)
}

func TestValidateBracketsOverlap(t *testing.T) {
	brackets := []models.DiscountBracket{
		{MinQuantity: 0, MaxQuantity: ptr(99), UnitPrice: decimal.NewFromInt(10), Position: 0},
		{MinQuantity: 50, MaxQuantity: nil, UnitPrice: decimal.NewFromInt(9), Position: 1},
	}
	err := ValidateBrackets(brackets)
	assert.ErrorIs(t, err, models.ErrBracketConfigInvalid)
}

func TestValidateBracketsBoundedFinal(t *testing.T) {
	brackets := []models.DiscountBracket{
		{MinQuantity: 0, MaxQuantity: ptr(99), UnitPrice: decimal.NewFromInt(10), Position: 0},
		{MinQuantity: 100, MaxQuantity: ptr(249), UnitPrice: decimal.NewFromInt(9), Position: 1},
	}
	err := ValidateBrackets(brackets)
	assert.ErrorIs(t, err, models.ErrBracketConfigInvalid)
}

func TestValidateBracketsUnboundedMiddle(t *testing.T) {
	brackets := []models.DiscountBracket{
		{MinQuantity: 0, MaxQuantity: nil, UnitPrice: decimal.NewFromInt(10), Position: 0},
		{MinQuantity: 100, MaxQuantity: nil, UnitPrice: decimal.NewFromInt(9), Position: 1},
	}
	err := ValidateBrackets(brackets)
	assert.ErrorIs(t, err, models.ErrBracketConfigInvalid)
}

func TestValidateBracketsNegativePrice(t *testing.T) {
	brackets := []models.DiscountBracket{
		{MinQuantity: 0, MaxQuantity: nil, UnitPrice: decimal.NewFromInt(-1), Position: 0},
	}
	err := ValidateBrackets(brackets)
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrBracketConfigInvalid))
}
