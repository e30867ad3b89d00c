// README: Pricing service estimates pickup value from scrap rates.
package pricing

import (
	"context"
	"errors"
	"math"
	"strings"

	"scrapyard/internal/types"
)

var ErrUnknownCategory = errors.New("unknown scrap category")

type RateSource interface {
	GetRate(ctx context.Context, category string) (Rate, error)
	ListRates(ctx context.Context) ([]Rate, error)
}

type Service struct {
	rates RateSource
}

// NewService uses the built-in catalogue when rates is nil.
func NewService(rates RateSource) *Service {
	if rates == nil {
		rates = staticRates(DefaultRates)
	}
	return &Service{rates: rates}
}

// Estimate returns quantityKg times the category midpoint rate, rounded to whole currency units.
func (s *Service) Estimate(ctx context.Context, category string, quantityKg float64) (types.Money, error) {
	if quantityKg < 0 || math.IsNaN(quantityKg) || math.IsInf(quantityKg, 0) {
		return types.Money{}, types.FieldErrors{"quantity_kg": "must be a non-negative number"}
	}
	r, err := s.rates.GetRate(ctx, NormalizeCategory(category))
	if err != nil {
		return types.Money{}, err
	}
	cur := r.Currency
	if cur == "" {
		cur = types.DefaultCurrency
	}
	return types.Money{Amount: int64(math.Round(quantityKg * r.Midpoint())), Currency: cur}, nil
}

func (s *Service) Rates(ctx context.Context) ([]Rate, error) {
	return s.rates.ListRates(ctx)
}

// NormalizeCategory folds case and the spellings "ewaste" / "e_waste".
func NormalizeCategory(c string) string {
	c = strings.ToLower(strings.TrimSpace(c))
	switch c {
	case "ewaste", "e_waste", "e waste":
		return "e-waste"
	}
	return c
}

type staticRates []Rate

func (s staticRates) GetRate(_ context.Context, category string) (Rate, error) {
	for _, r := range s {
		if r.Category == category {
			return r, nil
		}
	}
	return Rate{}, ErrUnknownCategory
}

func (s staticRates) ListRates(context.Context) ([]Rate, error) {
	out := make([]Rate, len(s))
	copy(out, s)
	return out, nil
}
