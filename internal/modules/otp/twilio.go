// README: Twilio Verify gateway and Twilio Messaging code sender behind a circuit breaker.
package otp

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"github.com/twilio/twilio-go"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"
	verify "github.com/twilio/twilio-go/rest/verify/v2"
	"go.uber.org/zap"
)

type verifyAPI interface {
	CreateVerification(serviceSid string, params *verify.CreateVerificationParams) (*verify.VerifyV2Verification, error)
	CreateVerificationCheck(serviceSid string, params *verify.CreateVerificationCheckParams) (*verify.VerifyV2VerificationCheck, error)
}

type messageAPI interface {
	CreateMessage(params *twilioapi.CreateMessageParams) (*twilioapi.ApiV2010Message, error)
}

// TwilioCredentials are the account values; empty fields leave the provider unconfigured.
type TwilioCredentials struct {
	AccountSID       string
	AuthToken        string
	VerifyServiceSID string
	FromNumber       string
}

func newTwilioClient(c TwilioCredentials) *twilio.RestClient {
	if c.AccountSID == "" || c.AuthToken == "" {
		return nil
	}
	return twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: c.AccountSID,
		Password: c.AuthToken,
	})
}

func newBreaker(name string, logger *zap.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
}

// TwilioVerify is a Gateway backed by a Twilio Verify service.
type TwilioVerify struct {
	api        verifyAPI
	serviceSID string
	breaker    *gobreaker.CircuitBreaker
	logger     *zap.Logger
}

func NewTwilioVerify(c TwilioCredentials, logger *zap.Logger) *TwilioVerify {
	g := &TwilioVerify{
		serviceSID: c.VerifyServiceSID,
		breaker:    newBreaker("twilio-verify", logger),
		logger:     logger,
	}
	if client := newTwilioClient(c); client != nil && c.VerifyServiceSID != "" {
		g.api = client.VerifyV2
	}
	return g
}

func (g *TwilioVerify) Configured() bool {
	return g.api != nil
}

func (g *TwilioVerify) Send(_ context.Context, contact string, ch Channel) (DeliveryToken, error) {
	if g.api == nil {
		g.logger.Warn("twilio verify not configured")
		return DeliveryToken{}, ErrUnavailable
	}
	params := &verify.CreateVerificationParams{}
	params.SetTo(contact)
	params.SetChannel(string(ch))

	out, err := g.breaker.Execute(func() (interface{}, error) {
		return g.api.CreateVerification(g.serviceSID, params)
	})
	if err != nil {
		g.logger.Warn("twilio verify send failed", zap.String("channel", string(ch)), zap.Error(err))
		return DeliveryToken{}, ErrUnavailable
	}
	v, _ := out.(*verify.VerifyV2Verification)
	tok := DeliveryToken{Status: "pending", Channel: ch}
	if v != nil {
		if v.Status != nil {
			tok.Status = *v.Status
		}
		if v.Sid != nil {
			tok.SID = *v.Sid
		}
	}
	return tok, nil
}

func (g *TwilioVerify) Check(_ context.Context, contact, code string) Verdict {
	if g.api == nil {
		g.logger.Warn("twilio verify not configured")
		return Rejected
	}
	params := &verify.CreateVerificationCheckParams{}
	params.SetTo(contact)
	params.SetCode(code)

	out, err := g.breaker.Execute(func() (interface{}, error) {
		return g.api.CreateVerificationCheck(g.serviceSID, params)
	})
	if err != nil {
		g.logger.Warn("twilio verify check failed", zap.Error(err))
		return Rejected
	}
	v, _ := out.(*verify.VerifyV2VerificationCheck)
	if v != nil && v.Status != nil && *v.Status == string(Verified) {
		return Verified
	}
	return Rejected
}

// TwilioSMS delivers locally generated codes as plain SMS.
type TwilioSMS struct {
	api     messageAPI
	from    string
	ttl     time.Duration
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

func NewTwilioSMS(c TwilioCredentials, ttl time.Duration, logger *zap.Logger) *TwilioSMS {
	s := &TwilioSMS{
		from:    c.FromNumber,
		ttl:     ttl,
		breaker: newBreaker("twilio-sms", logger),
		logger:  logger,
	}
	if client := newTwilioClient(c); client != nil && c.FromNumber != "" {
		s.api = client.Api
	}
	return s
}

func (s *TwilioSMS) Configured() bool {
	return s.api != nil
}

func (s *TwilioSMS) SendCode(_ context.Context, contact string, ch Channel, code string) error {
	if s.api == nil || ch != ChannelSMS {
		return ErrUnavailable
	}
	params := &twilioapi.CreateMessageParams{}
	params.SetTo(contact)
	params.SetFrom(s.from)
	params.SetBody(fmt.Sprintf("Your Scrapyard verification code is %s. It expires in %d minutes.", code, int(s.ttl.Minutes())))

	if _, err := s.breaker.Execute(func() (interface{}, error) {
		return s.api.CreateMessage(params)
	}); err != nil {
		s.logger.Warn("twilio sms send failed", zap.Error(err))
		return ErrUnavailable
	}
	return nil
}
