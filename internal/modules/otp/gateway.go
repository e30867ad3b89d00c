// README: OTP gateway contracts, contact normalisation and code generation.
package otp

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"strings"
)

type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
)

func (c Channel) Valid() bool {
	return c == ChannelSMS || c == ChannelEmail
}

// Verdict is the outcome of checking a code.
type Verdict string

const (
	Verified Verdict = "approved"
	Rejected Verdict = "rejected"
	// Locked means the contact used up its verify attempts for now.
	Locked Verdict = "locked"
)

var (
	// ErrUnavailable means the provider is unconfigured or failed; callers answer 5xx.
	ErrUnavailable = errors.New("otp provider unavailable")
	ErrRateLimited = errors.New("too many otp requests, try again later")
	ErrBadRequest  = errors.New("invalid otp request")
)

// DeliveryToken describes an accepted send.
type DeliveryToken struct {
	Status  string  `json:"status"`
	Channel Channel `json:"channel"`
	SID     string  `json:"sid,omitempty"`
}

// Gateway verifies a contact end to end: the provider owns the code.
// Implementations never return raw provider errors: Send fails with
// ErrUnavailable and Check folds every failure into Rejected.
type Gateway interface {
	Send(ctx context.Context, contact string, ch Channel) (DeliveryToken, error)
	Check(ctx context.Context, contact, code string) Verdict
}

// CodeSender delivers a code generated by this service.
type CodeSender interface {
	SendCode(ctx context.Context, contact string, ch Channel, code string) error
}

// NormalizeContact trims the contact and, for phone contacts without an
// international prefix, prepends countryCode. Emails are lower-cased.
func NormalizeContact(contact string, ch Channel, countryCode string) string {
	c := strings.TrimSpace(contact)
	if ch == ChannelEmail || strings.Contains(c, "@") {
		return strings.ToLower(c)
	}
	c = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')', '.':
			return -1
		}
		return r
	}, c)
	if c == "" || strings.HasPrefix(c, "+") {
		return c
	}
	return countryCode + c
}

// ChannelFor infers the channel of a contact for checks that carry no channel.
func ChannelFor(contact string) Channel {
	if strings.Contains(contact, "@") {
		return ChannelEmail
	}
	return ChannelSMS
}

const digits = "0123456789"

// GenerateCode returns a numeric code of length n from crypto/rand.
func GenerateCode(n int) string {
	if n <= 0 {
		return ""
	}
	max := big.NewInt(int64(len(digits)))
	b := make([]byte, n)
	for i := range b {
		v, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic("otp: crypto/rand failed: " + err.Error())
		}
		b[i] = digits[v.Int64()]
	}
	return string(b)
}
