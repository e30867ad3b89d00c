// README: Scrap rate per category (INR per kg range).
package pricing

type Rate struct {
	Category string `json:"category"`
	MinPerKg int64  `json:"min_per_kg"`
	MaxPerKg int64  `json:"max_per_kg"`
	Currency string `json:"currency"`
}

// Midpoint is the per-kg price used for estimates.
func (r Rate) Midpoint() float64 {
	return float64(r.MinPerKg+r.MaxPerKg) / 2
}

// DefaultRates mirrors the rows seeded by the initial migration.
var DefaultRates = []Rate{
	{Category: "paper", MinPerKg: 15, MaxPerKg: 20, Currency: "INR"},
	{Category: "plastic", MinPerKg: 10, MaxPerKg: 25, Currency: "INR"},
	{Category: "metal", MinPerKg: 30, MaxPerKg: 50, Currency: "INR"},
	{Category: "e-waste", MinPerKg: 20, MaxPerKg: 100, Currency: "INR"},
	{Category: "glass", MinPerKg: 5, MaxPerKg: 10, Currency: "INR"},
}
