package core

import "testing"

func TestParseDecimalToCents(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"1", 100, true},
		{"1.0", 100, true},
		{"1.23", 123, true},
		{"1,23", 123, true},
		{"0.01", 1, true},
		{"1.005", 101, true}, // half-up rounding
		{"1.004", 100, true},
		{" 2.50 ", 250, true},
		{"-1", 0, false},
		{"0", 0, false},
		{"0.001", 0, false},
		{"abc", 0, false},
		{"1.2.3", 0, false},
		{"1e3", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseDecimalToCents(tc.in)
		if tc.ok {
			if err != nil || got != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got, err)
			}
		} else {
			if err == nil {
				t.Fatalf("%q expected error", tc.in)
			}
		}
	}
}

func TestMoneyFromFloat(t *testing.T) {
	cases := []struct {
		in  float64
		out int64
		ok  bool
	}{
		{50, 5000, true},
		{12.34, 1234, true},
		{0.1 + 0.2, 30, true},
		{-5, 0, false},
		{0, 0, false},
	}
	for _, tc := range cases {
		got, err := MoneyFromFloat(tc.in)
		if tc.ok && (err != nil || got.Cents != tc.out) {
			t.Fatalf("%v expected %d, got %d (err=%v)", tc.in, tc.out, got.Cents, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("%v expected error", tc.in)
		}
	}
}

func TestMoneyFormatting(t *testing.T) {
	m := Money{Cents: 123456}
	if m.String() != "1234.56" {
		t.Fatalf("String() = %q", m.String())
	}
	if m.Float() != 1234.56 {
		t.Fatalf("Float() = %v", m.Float())
	}
	if got := m.Add(Money{Cents: 44}); got.Cents != 123500 {
		t.Fatalf("Add = %d", got.Cents)
	}
}
