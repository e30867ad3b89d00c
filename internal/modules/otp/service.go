// README: OTP service: normalises contacts, applies send and verify quotas and delegates to the gateway.
package otp

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

type Service struct {
	gateway     Gateway
	sender      CodeSender
	limiter     *Limiter
	attempts    *Limiter
	countryCode string
	logger      *zap.Logger
}

func NewService(gateway Gateway, sender CodeSender, limiter, attempts *Limiter, countryCode string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		gateway:     gateway,
		sender:      sender,
		limiter:     limiter,
		attempts:    attempts,
		countryCode: countryCode,
		logger:      logger,
	}
}

// Normalize exposes the contact form used for quota keys and provider calls.
func (s *Service) Normalize(contact string, ch Channel) string {
	return NormalizeContact(contact, ch, s.countryCode)
}

func (s *Service) Send(ctx context.Context, contact string, ch Channel) (DeliveryToken, error) {
	if !ch.Valid() || strings.TrimSpace(contact) == "" {
		return DeliveryToken{}, ErrBadRequest
	}
	to := s.Normalize(contact, ch)
	if err := s.allow(ctx, to); err != nil {
		return DeliveryToken{}, err
	}
	if s.gateway == nil {
		return DeliveryToken{}, ErrUnavailable
	}
	tok, err := s.gateway.Send(ctx, to, ch)
	if err != nil {
		s.logger.Warn("otp send failed", zap.String("channel", string(ch)), zap.Error(err))
		return DeliveryToken{}, ErrUnavailable
	}
	return tok, nil
}

func (s *Service) Verify(ctx context.Context, contact, code string) Verdict {
	code = strings.TrimSpace(code)
	if s.gateway == nil || code == "" || strings.TrimSpace(contact) == "" {
		return Rejected
	}
	to := s.Normalize(contact, ChannelFor(contact))
	if ok, err := s.attempts.Allow(ctx, to); err != nil {
		s.logger.Warn("otp attempt check failed", zap.Error(err))
	} else if !ok {
		return Locked
	}
	return s.gateway.Check(ctx, to, code)
}

// DeliverCode sends a code generated by the caller, such as a pickup OTP.
func (s *Service) DeliverCode(ctx context.Context, phone, code string) error {
	if strings.TrimSpace(phone) == "" {
		return ErrBadRequest
	}
	to := s.Normalize(phone, ChannelSMS)
	if err := s.allow(ctx, to); err != nil {
		return err
	}
	if s.sender == nil {
		return ErrUnavailable
	}
	if err := s.sender.SendCode(ctx, to, ChannelSMS, code); err != nil {
		s.logger.Warn("otp code delivery failed", zap.Error(err))
		return ErrUnavailable
	}
	return nil
}

func (s *Service) allow(ctx context.Context, contact string) error {
	ok, err := s.limiter.Allow(ctx, contact)
	if err != nil {
		// Quota storage down: fail open so verification keeps working.
		s.logger.Warn("otp quota check failed", zap.Error(err))
		return nil
	}
	if !ok {
		return ErrRateLimited
	}
	return nil
}
