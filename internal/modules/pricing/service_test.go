package pricing

import (
	"context"
	"errors"
	"testing"

	"scrapyard/internal/testdb"
	"scrapyard/internal/types"
)

func TestService_Estimate(t *testing.T) {
	svc := NewService(nil)
	ctx := context.Background()

	tests := []struct {
		name     string
		category string
		qty      float64
		want     int64
	}{
		{name: "paper midpoint 17.5", category: "paper", qty: 10, want: 175},
		{name: "plastic midpoint 17.5 rounds", category: "plastic", qty: 3, want: 53},
		{name: "metal", category: "Metal", qty: 2, want: 80},
		{name: "e-waste alias", category: "ewaste", qty: 1, want: 60},
		{name: "glass fractional kg", category: "glass", qty: 0.5, want: 4},
		{name: "zero quantity", category: "paper", qty: 0, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.Estimate(ctx, tt.category, tt.qty)
			if err != nil {
				t.Fatalf("estimate: %v", err)
			}
			if got.Amount != tt.want || got.Currency != "INR" {
				t.Errorf("Estimate(%s, %v) = %+v, want %d INR", tt.category, tt.qty, got, tt.want)
			}
		})
	}
}

func TestService_EstimateRejects(t *testing.T) {
	svc := NewService(nil)
	if _, err := svc.Estimate(context.Background(), "gold", 1); !errors.Is(err, ErrUnknownCategory) {
		t.Fatalf("err = %v, want ErrUnknownCategory", err)
	}
	var fe types.FieldErrors
	if _, err := svc.Estimate(context.Background(), "paper", -1); !errors.As(err, &fe) {
		t.Fatalf("err = %v, want FieldErrors", err)
	}
}

func TestStoreSeededRates(t *testing.T) {
	svc := NewService(NewStore(testdb.Open(t)))
	rates, err := svc.Rates(context.Background())
	if err != nil {
		t.Fatalf("rates: %v", err)
	}
	if len(rates) != len(DefaultRates) {
		t.Fatalf("rates = %d, want %d", len(rates), len(DefaultRates))
	}
	m, err := svc.Estimate(context.Background(), "metal", 10)
	if err != nil || m.Amount != 400 {
		t.Fatalf("estimate = %+v, %v", m, err)
	}
}
