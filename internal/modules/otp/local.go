// README: Self-hosted gateway: codes generated here, kept in redis, delivered by a CodeSender.
package otp

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	codeKeyPrefix = "otp:code:"
	codeLength    = 6
)

type LocalGateway struct {
	redis  *redis.Client
	sender CodeSender
	ttl    time.Duration
	logger *zap.Logger
}

func NewLocalGateway(rdb *redis.Client, sender CodeSender, ttl time.Duration, logger *zap.Logger) *LocalGateway {
	return &LocalGateway{redis: rdb, sender: sender, ttl: ttl, logger: logger}
}

func (g *LocalGateway) Send(ctx context.Context, contact string, ch Channel) (DeliveryToken, error) {
	if g.redis == nil || g.sender == nil {
		return DeliveryToken{}, ErrUnavailable
	}
	code := GenerateCode(codeLength)
	if err := g.redis.Set(ctx, codeKeyPrefix+contact, code, g.ttl).Err(); err != nil {
		g.logger.Warn("store otp code failed", zap.Error(err))
		return DeliveryToken{}, ErrUnavailable
	}
	if err := g.sender.SendCode(ctx, contact, ch, code); err != nil {
		g.redis.Del(ctx, codeKeyPrefix+contact)
		return DeliveryToken{}, ErrUnavailable
	}
	return DeliveryToken{Status: "pending", Channel: ch}, nil
}

// Check is single use: a matching code is deleted.
func (g *LocalGateway) Check(ctx context.Context, contact, code string) Verdict {
	if g.redis == nil {
		return Rejected
	}
	stored, err := g.redis.Get(ctx, codeKeyPrefix+contact).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			g.logger.Warn("load otp code failed", zap.Error(err))
		}
		return Rejected
	}
	if subtle.ConstantTimeCompare([]byte(stored), []byte(code)) != 1 {
		return Rejected
	}
	g.redis.Del(ctx, codeKeyPrefix+contact)
	return Verified
}

// ConsoleSender writes codes to the log. Development only.
type ConsoleSender struct {
	logger *zap.Logger
}

func NewConsoleSender(logger *zap.Logger) *ConsoleSender {
	return &ConsoleSender{logger: logger}
}

func (s *ConsoleSender) SendCode(_ context.Context, contact string, ch Channel, code string) error {
	s.logger.Info("otp code issued", zap.String("contact", contact), zap.String("channel", string(ch)), zap.String("code", code))
	return nil
}
