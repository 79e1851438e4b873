package core

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseDate(t *testing.T) {
	cases := []struct {
		in string
		ok bool
	}{
		{"2024-03-05", true},
		{"2024-02-29", true}, // leap year
		{" 2024-03-05 ", true},
		{"2023-02-29", false},
		{"2024-13-01", false},
		{"2024-3-5", false},
		{"yesterday", false},
		{"", false},
	}
	for _, tc := range cases {
		d, err := ParseDate(tc.in)
		if tc.ok && err != nil {
			t.Fatalf("ParseDate(%q) = %v, want ok", tc.in, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("ParseDate(%q) = %s, want error", tc.in, d)
		}
	}
}

func TestDateString(t *testing.T) {
	if got := NewDate(2024, 3, 5).String(); got != "2024-03-05" {
		t.Fatalf("got %q", got)
	}
	if got := NewDate(2024, 12, 31).AddDays(1).String(); got != "2025-01-01" {
		t.Fatalf("year rollover: got %q", got)
	}
}

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"120", "120", true},
		{"120.5", "120.5", true},
		{"-30", "-30", true},
		{"0", "0", true},
		{"12.345", "12.345", true},
		{"1,200", "", false},
		{"12.3.4", "", false},
		{"12.", "", false},
		{".5", "", false},
		{"-", "", false},
		{"abc", "", false},
		{"+5", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil {
				t.Fatalf("ParseAmount(%q) = %v, want ok", tc.in, err)
			}
			if got.String() != tc.want {
				t.Fatalf("ParseAmount(%q) = %s, want %s", tc.in, got, tc.want)
			}
			continue
		}
		if err == nil {
			t.Fatalf("ParseAmount(%q) = %s, want error", tc.in, got)
		}
	}
}

func TestMemoDisplay(t *testing.T) {
	e := ExpenseRecord{Memo: ""}
	if got := e.MemoDisplay(); got != "-" {
		t.Fatalf("empty memo: got %q", got)
	}
	e.Memo = "牛肉麵"
	if got := e.MemoDisplay(); got != "牛肉麵" {
		t.Fatalf("got %q", got)
	}
}

func TestExpenseRecordValidate(t *testing.T) {
	good := ExpenseRecord{
		UserID:    "U1",
		Amount:    decimal.NewFromInt(100),
		Category:  "午餐",
		SpentDate: NewDate(2024, 3, 5),
	}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	bads := []ExpenseRecord{
		{UserID: "", Category: "c", SpentDate: NewDate(2024, 3, 5)},
		{UserID: "U1", Category: " ", SpentDate: NewDate(2024, 3, 5)},
		{UserID: "U1", Category: "c"}, // zero date
	}
	for i, e := range bads {
		if err := e.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}
