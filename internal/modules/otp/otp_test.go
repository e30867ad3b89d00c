package otp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	verify "github.com/twilio/twilio-go/rest/verify/v2"
	"go.uber.org/zap"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

type recordingSender struct {
	codes map[string]string
	err   error
}

func (r *recordingSender) SendCode(_ context.Context, contact string, _ Channel, code string) error {
	if r.err != nil {
		return r.err
	}
	if r.codes == nil {
		r.codes = map[string]string{}
	}
	r.codes[contact] = code
	return nil
}

func TestNormalizeContact(t *testing.T) {
	cases := []struct {
		in   string
		ch   Channel
		want string
	}{
		{"9876543210", ChannelSMS, "+919876543210"},
		{" +1 (415) 555-0100 ", ChannelSMS, "+14155550100"},
		{"98765.43210", ChannelSMS, "+919876543210"},
		{" Asha@Example.COM ", ChannelEmail, "asha@example.com"},
		{"asha@example.com", ChannelSMS, "asha@example.com"},
		{"", ChannelSMS, ""},
	}
	for _, c := range cases {
		if got := NormalizeContact(c.in, c.ch, "+91"); got != c.want {
			t.Errorf("NormalizeContact(%q, %s) = %q, want %q", c.in, c.ch, got, c.want)
		}
	}
}

func TestGenerateCode(t *testing.T) {
	code := GenerateCode(6)
	if len(code) != 6 {
		t.Fatalf("len = %d", len(code))
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			t.Fatalf("non-digit in %q", code)
		}
	}
}

func TestLocalGatewaySendCheckSingleUse(t *testing.T) {
	_, rdb := newRedis(t)
	sender := &recordingSender{}
	gw := NewLocalGateway(rdb, sender, time.Minute, zap.NewNop())
	ctx := context.Background()

	tok, err := gw.Send(ctx, "+919876543210", ChannelSMS)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if tok.Status != "pending" {
		t.Fatalf("status = %q", tok.Status)
	}
	code := sender.codes["+919876543210"]
	if gw.Check(ctx, "+919876543210", "000000x") != Rejected {
		t.Fatal("wrong code verified")
	}
	if gw.Check(ctx, "+919876543210", code) != Verified {
		t.Fatal("right code rejected")
	}
	if gw.Check(ctx, "+919876543210", code) != Rejected {
		t.Fatal("code verified twice")
	}
}

func TestLocalGatewayExpiry(t *testing.T) {
	mr, rdb := newRedis(t)
	sender := &recordingSender{}
	gw := NewLocalGateway(rdb, sender, time.Minute, zap.NewNop())
	ctx := context.Background()

	if _, err := gw.Send(ctx, "a@b.c", ChannelEmail); err != nil {
		t.Fatalf("send: %v", err)
	}
	mr.FastForward(2 * time.Minute)
	if gw.Check(ctx, "a@b.c", sender.codes["a@b.c"]) != Rejected {
		t.Fatal("expired code verified")
	}
}

func TestLocalGatewaySenderFailure(t *testing.T) {
	mr, rdb := newRedis(t)
	gw := NewLocalGateway(rdb, &recordingSender{err: errors.New("boom")}, time.Minute, zap.NewNop())
	if _, err := gw.Send(context.Background(), "+15550100", ChannelSMS); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
	if mr.Exists(codeKeyPrefix + "+15550100") {
		t.Fatal("code kept after failed delivery")
	}
}

func TestServiceRateLimit(t *testing.T) {
	_, rdb := newRedis(t)
	sender := &recordingSender{}
	gw := NewLocalGateway(rdb, sender, time.Minute, zap.NewNop())
	svc := NewService(gw, sender, NewLimiter(rdb, ScopeSend, 2, time.Hour), nil, "+91", zap.NewNop())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := svc.Send(ctx, "9876543210", ChannelSMS); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	if _, err := svc.Send(ctx, "+91 98765 43210", ChannelSMS); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}
	if err := svc.DeliverCode(ctx, "9876543210", "123456"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("deliver err = %v, want ErrRateLimited", err)
	}
}

func TestServiceVerifyNormalizes(t *testing.T) {
	_, rdb := newRedis(t)
	sender := &recordingSender{}
	svc := NewService(NewLocalGateway(rdb, sender, time.Minute, zap.NewNop()), sender, nil, nil, "+91", zap.NewNop())
	ctx := context.Background()

	if _, err := svc.Send(ctx, "9876543210", ChannelSMS); err != nil {
		t.Fatalf("send: %v", err)
	}
	code := sender.codes["+919876543210"]
	if v := svc.Verify(ctx, "98765-43210", code); v != Verified {
		t.Fatalf("verdict = %s", v)
	}
}

func TestServiceVerifyLocksAfterAttempts(t *testing.T) {
	_, rdb := newRedis(t)
	sender := &recordingSender{}
	gw := NewLocalGateway(rdb, sender, time.Minute, zap.NewNop())
	svc := NewService(gw, sender, nil, NewLimiter(rdb, ScopeVerify, 2, time.Minute), "+91", zap.NewNop())
	ctx := context.Background()

	if _, err := svc.Send(ctx, "9876543210", ChannelSMS); err != nil {
		t.Fatalf("send: %v", err)
	}
	code := sender.codes["+919876543210"]
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	for i := 0; i < 2; i++ {
		if v := svc.Verify(ctx, "9876543210", wrong); v != Rejected {
			t.Fatalf("attempt %d verdict = %s", i, v)
		}
	}
	if v := svc.Verify(ctx, "+91 98765 43210", code); v != Locked {
		t.Fatalf("verdict = %s, want locked", v)
	}
}

func TestServiceRejectsBadInput(t *testing.T) {
	svc := NewService(nil, nil, nil, nil, "+91", nil)
	if _, err := svc.Send(context.Background(), "x", Channel("fax")); !errors.Is(err, ErrBadRequest) {
		t.Fatalf("err = %v", err)
	}
	if _, err := svc.Send(context.Background(), "9876543210", ChannelSMS); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
	if svc.Verify(context.Background(), "9876543210", "123456") != Rejected {
		t.Fatal("verified without gateway")
	}
}

type fakeVerifyAPI struct {
	sendErr  error
	status   string
	lastTo   string
	lastCode string
}

func (f *fakeVerifyAPI) CreateVerification(_ string, p *verify.CreateVerificationParams) (*verify.VerifyV2Verification, error) {
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.lastTo = *p.To
	st, sid := "pending", "VE123"
	return &verify.VerifyV2Verification{Status: &st, Sid: &sid}, nil
}

func (f *fakeVerifyAPI) CreateVerificationCheck(_ string, p *verify.CreateVerificationCheckParams) (*verify.VerifyV2VerificationCheck, error) {
	f.lastCode = *p.Code
	st := f.status
	return &verify.VerifyV2VerificationCheck{Status: &st}, nil
}

func TestTwilioVerifyUnconfigured(t *testing.T) {
	gw := NewTwilioVerify(TwilioCredentials{}, zap.NewNop())
	if gw.Configured() {
		t.Fatal("configured without credentials")
	}
	if _, err := gw.Send(context.Background(), "+15550100", ChannelSMS); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
	if gw.Check(context.Background(), "+15550100", "123456") != Rejected {
		t.Fatal("unconfigured check verified")
	}
}

func TestTwilioVerifyMapsResults(t *testing.T) {
	api := &fakeVerifyAPI{status: "approved"}
	gw := NewTwilioVerify(TwilioCredentials{}, zap.NewNop())
	gw.api = api

	tok, err := gw.Send(context.Background(), "+15550100", ChannelSMS)
	if err != nil || tok.SID != "VE123" || api.lastTo != "+15550100" {
		t.Fatalf("send = %+v, %v", tok, err)
	}
	if gw.Check(context.Background(), "+15550100", "123456") != Verified {
		t.Fatal("approved check rejected")
	}
	api.status = "pending"
	if gw.Check(context.Background(), "+15550100", "999999") != Rejected {
		t.Fatal("pending check verified")
	}

	api.sendErr = errors.New("20404 not found")
	if _, err := gw.Send(context.Background(), "+15550100", ChannelSMS); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("raw provider error leaked: %v", err)
	}
}
