// README: Common money value object used across modules.
package types

// DefaultCurrency is used when a stored amount carries no currency.
const DefaultCurrency = "INR"

type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

func INR(amount int64) Money {
	return Money{Amount: amount, Currency: DefaultCurrency}
}
