package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestDateRoundTrip(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2024-01-01", "2024-01-01"},
		{"1970-01-01", "1970-01-01"},
		{"2018-09-20 00:00:00", "2018-09-20"},
		{"2020-02-29T13:45:00Z", "2020-02-29"},
	}
	for _, tt := range tests {
		d, err := ParseDate(tt.in)
		if err != nil {
			t.Fatalf("ParseDate(%q) error: %v", tt.in, err)
		}
		if got := d.String(); got != tt.want {
			t.Errorf("ParseDate(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestDateEpoch(t *testing.T) {
	if d := NewDate(1970, time.January, 1); d != 0 {
		t.Errorf("epoch = %d, want 0", d)
	}
	if d := NewDate(1970, time.January, 2); d != 1 {
		t.Errorf("epoch+1 = %d, want 1", d)
	}
	if d := NewDate(1969, time.December, 31); d != -1 {
		t.Errorf("epoch-1 = %d, want -1", d)
	}
}

func TestDateOfIgnoresZone(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*3600)
	ts := time.Date(2024, time.March, 5, 1, 0, 0, 0, loc)
	if got := DateOf(ts).String(); got != "2024-03-05" {
		t.Errorf("DateOf = %s, want 2024-03-05", got)
	}
}

func TestDateWeekend(t *testing.T) {
	sat := NewDate(2024, time.January, 6)
	mon := NewDate(2024, time.January, 8)
	if !sat.IsWeekend() {
		t.Error("2024-01-06 should be a weekend day")
	}
	if mon.IsWeekend() {
		t.Error("2024-01-08 should not be a weekend day")
	}
	if got := sat.AddDays(2); got != mon {
		t.Errorf("AddDays(2) = %s, want %s", got, mon)
	}
}

func TestDateText(t *testing.T) {
	d := NewDate(2024, time.July, 14)
	b, err := d.MarshalText()
	if err != nil {
		t.Fatal(err)
	}
	var back Date
	if err := back.UnmarshalText(b); err != nil {
		t.Fatal(err)
	}
	if back != d {
		t.Errorf("text round trip = %s, want %s", back, d)
	}
	if err := back.UnmarshalText([]byte("not-a-date")); err == nil {
		t.Error("expected error for malformed date")
	}
}

func TestSalesRowValidate(t *testing.T) {
	ok := SalesRow{
		ArticleID:    "0108775001",
		Date:         NewDate(2024, time.January, 1),
		TotalRevenue: decimal.RequireFromString("32.00"),
		AvgPrice:     RoundMoney(decimal.RequireFromString("32").Div(decimal.NewFromInt(3))),
		UnitsSold:    3,
	}
	if err := ok.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}

	zero := ok
	zero.UnitsSold = 0
	if err := zero.Validate(); err == nil {
		t.Error("expected error for zero units")
	}

	bad := ok
	bad.TotalRevenue = decimal.RequireFromString("40")
	if err := bad.Validate(); err == nil {
		t.Error("expected error for inconsistent revenue")
	}
}

func TestProductSearchText(t *testing.T) {
	p := Product{
		ArticleID:   "1",
		Name:        OptStr("Running Shoes"),
		ProductType: OptStr("Shoes"),
		Colour:      OptStr(""),
		Department:  OptStr("Sport"),
	}
	if p.Colour != nil {
		t.Error("OptStr(\"\") should be nil")
	}
	if got, want := p.SearchText(), "running shoes shoes sport"; got != want {
		t.Errorf("SearchText() = %q, want %q", got, want)
	}
	if p.Category() != "Shoes" {
		t.Errorf("Category() = %q", p.Category())
	}
}
