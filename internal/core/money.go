// Package core holds the domain entities shared by the providers, the derived
// computations and the HTTP surface.
//
// This file contains helpers for parsing and summing decimal amounts. Amounts
// are kept as decimals end to end so that exported values reproduce exactly
// what the user typed.
package core

import (
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrInvalidAmount = errors.New("invalid amount")

// ParseAmount converts user input to a decimal amount.
//
// Both dot (12.34) and comma (12,34) decimal separators are accepted. Negative
// values are accepted as well: amounts are not validated beyond being numbers.
//
// Examples:
//
//	ParseAmount("50")     -> 50
//	ParseAmount("12,5")   -> 12.5
//	ParseAmount("abc")    -> ErrInvalidAmount
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// SumExpenses adds the amounts of every expense accepted by keep. A nil keep
// sums all of them.
func SumExpenses(items []Expense, keep func(Expense) bool) decimal.Decimal {
	total := decimal.Zero
	for _, e := range items {
		if keep == nil || keep(e) {
			total = total.Add(e.Amount)
		}
	}
	return total
}

func SumIncomes(items []Income, keep func(Income) bool) decimal.Decimal {
	total := decimal.Zero
	for _, in := range items {
		if keep == nil || keep(in) {
			total = total.Add(in.Amount)
		}
	}
	return total
}
