package core

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"500000", "500000", true},
		{"12.34", "12.34", true},
		{"12,5", "12.5", true},
		{"1 250.75", "1250.75", true},
		{".5", "0.5", true},
		{"7.", "7", true},
		{"0", "0", true},
		{"", "", false},
		{"-3", "", false},
		{"+3", "", false},
		{"1.2.3", "", false},
		{"12a", "", false},
		{".", "", false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil {
				t.Fatalf("ParseAmount(%q) unexpected error: %v", tc.in, err)
			}
			if !got.Equal(decimal.RequireFromString(tc.want)) {
				t.Fatalf("ParseAmount(%q) = %s, want %s", tc.in, got, tc.want)
			}
			continue
		}
		if err == nil {
			t.Fatalf("ParseAmount(%q) expected error, got %s", tc.in, got)
		}
	}
}

func TestAmountMarshalsAsNumber(t *testing.T) {
	b, err := json.Marshal(struct {
		Amount decimal.Decimal `json:"amount"`
	}{decimal.NewFromInt(500000)})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"amount":500000}` {
		t.Fatalf("unexpected json %s", b)
	}
}
