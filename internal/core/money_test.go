package core

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out string
		ok  bool
	}{
		{"1", "1", true},
		{"1.23", "1.23", true},
		{"1,23", "1.23", true},
		{" 2.50 ", "2.5", true},
		{"-4", "-4", true},
		{"abc", "", false},
		{"1.2.3", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil || got.String() != tc.out {
				t.Fatalf("%q expected %s, got %s (err=%v)", tc.in, tc.out, got, err)
			}
		} else if err == nil {
			t.Fatalf("%q expected error", tc.in)
		}
	}
}

func TestSumExpenses(t *testing.T) {
	items := []Expense{
		{Amount: decimal.RequireFromString("10.10"), Category: "Food"},
		{Amount: decimal.RequireFromString("0.20"), Category: "Taxi"},
		{Amount: decimal.RequireFromString("5"), Category: "Food"},
	}
	if got := SumExpenses(items, nil); !got.Equal(decimal.RequireFromString("15.3")) {
		t.Fatalf("total = %s", got)
	}
	food := SumExpenses(items, func(e Expense) bool { return e.Category == "Food" })
	if !food.Equal(decimal.RequireFromString("15.1")) {
		t.Fatalf("food = %s", food)
	}
}
