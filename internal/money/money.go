// Package money holds the decimal helpers shared by the storefront and the
// reference backend. Amounts are kept at two decimal places half-up.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

const Places = 2

// Tolerance is the largest difference treated as equal when comparing sums.
var Tolerance = decimal.New(1, -Places)

// Round rounds d to cents.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Places)
}

// LineTotal returns unitPrice × quantity rounded to cents.
func LineTotal(unitPrice decimal.Decimal, quantity int) decimal.Decimal {
	return Round(unitPrice.Mul(decimal.NewFromInt(int64(quantity))))
}

// Sum adds amounts and rounds the result.
func Sum(amounts ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return Round(total)
}

// Equal reports whether a and b differ by no more than Tolerance.
func Equal(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(Tolerance)
}

// Parse reads a decimal amount such as "33" or "12.50".
func Parse(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return Round(d), nil
}

// Split divides total into n shares that sum exactly to total. Remainder
// cents go to the earliest shares.
func Split(total decimal.Decimal, n int) []decimal.Decimal {
	if n <= 0 {
		return nil
	}
	cents := Round(total).Shift(Places).IntPart()
	base := cents / int64(n)
	extra := cents % int64(n)

	shares := make([]decimal.Decimal, n)
	for i := range shares {
		c := base
		if int64(i) < extra {
			c++
		}
		shares[i] = decimal.New(c, -Places)
	}
	return shares
}
