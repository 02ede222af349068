package domain_test

import (
	"testing"

	"github.com/vladislavdragonenkov/orderdesk/internal/domain"
)

func TestOrderFilterNormalize(t *testing.T) {
	tests := []struct {
		name         string
		in           domain.OrderFilter
		wantPage     int
		wantPageSize int
		wantOffset   int
	}{
		{name: "defaults", in: domain.OrderFilter{}, wantPage: 1, wantPageSize: 3, wantOffset: 0},
		{name: "second page", in: domain.OrderFilter{Page: 2, PageSize: 4}, wantPage: 2, wantPageSize: 4, wantOffset: 4},
		{name: "page size capped", in: domain.OrderFilter{Page: 3, PageSize: 10}, wantPage: 3, wantPageSize: 6, wantOffset: 12},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in.Normalize()
			if got.Page != tt.wantPage || got.PageSize != tt.wantPageSize {
				t.Fatalf("got page=%d size=%d, want page=%d size=%d", got.Page, got.PageSize, tt.wantPage, tt.wantPageSize)
			}
			if got.Offset() != tt.wantOffset {
				t.Fatalf("got offset %d, want %d", got.Offset(), tt.wantOffset)
			}
		})
	}
}

func TestTotalPrice(t *testing.T) {
	if domain.TotalPrice(nil) != nil {
		t.Fatal("empty cart must have nil total")
	}

	total := domain.TotalPrice([]domain.CartLine{
		{ProductID: 1, Quantity: 2, Price: 150},
		{ProductID: 2, Quantity: 1, Price: 999},
	})
	if total == nil || *total != 1299 {
		t.Fatalf("unexpected total: %v", total)
	}
}

func TestParseSortDirection(t *testing.T) {
	cases := map[string]domain.SortDirection{
		"":      domain.SortNone,
		"true":  domain.SortDesc,
		"false": domain.SortAsc,
		"asc":   domain.SortAsc,
		"TRUE":  domain.SortAsc,
	}
	for raw, want := range cases {
		if got := domain.ParseSortDirection(raw); got != want {
			t.Errorf("ParseSortDirection(%q) = %q, want %q", raw, got, want)
		}
	}
}
