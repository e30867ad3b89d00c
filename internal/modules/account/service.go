// README: Account service: register-or-merge, login, token refresh and contact verification.
package account

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"scrapyard/internal/access"
	"scrapyard/internal/auth"
	"scrapyard/internal/modules/otp"
	"scrapyard/internal/types"
)

const minPasswordLen = 8

var (
	// ErrAuth rejects a registration that targets an existing email with a different password.
	ErrAuth               = errors.New("email already registered with a different password")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrNotFound           = errors.New("account not found")
	ErrInvalidCode        = errors.New("invalid or expired verification code")
)

// Repository persists accounts. Upsert runs fn against the current record
// for email (nil when unknown) inside one locked transaction.
type Repository interface {
	Upsert(ctx context.Context, email string, fn func(existing *Account) (*Account, error)) (*Account, error)
	Get(ctx context.Context, id types.ID) (*Account, error)
	GetByEmail(ctx context.Context, email string) (*Account, error)
	MarkVerified(ctx context.Context, id types.ID, ch otp.Channel) (*Account, error)
}

type Verifier interface {
	Send(ctx context.Context, contact string, ch otp.Channel) (otp.DeliveryToken, error)
	Verify(ctx context.Context, contact, code string) otp.Verdict
}

type Service struct {
	repo     Repository
	issuer   *auth.Issuer
	verifier Verifier
	logger   *zap.Logger
	hashCost int
	now      func() time.Time
}

func NewService(repo Repository, issuer *auth.Issuer, verifier Verifier, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:     repo,
		issuer:   issuer,
		verifier: verifier,
		logger:   logger,
		hashCost: bcrypt.DefaultCost,
		now:      time.Now,
	}
}

type RegisterCommand struct {
	Role       access.Role
	Email      string
	Password   string
	Attributes Attributes
}

// Session is an account together with freshly issued tokens.
type Session struct {
	Account *Account
	Tokens  auth.Tokens
}

// Register creates the account for an unknown email, or grants the role to the
// existing one when the password matches. Only non-empty attributes are merged.
func (s *Service) Register(ctx context.Context, cmd RegisterCommand) (Session, error) {
	email := normalizeEmail(cmd.Email)
	fields := types.FieldErrors{}
	if cmd.Role != access.RoleClient && cmd.Role != access.RoleSeller {
		fields.Add("role", "must be client or seller")
	}
	if email == "" {
		fields.Add("email", "this field is required")
	} else if _, err := mail.ParseAddress(email); err != nil {
		fields.Add("email", "enter a valid email address")
	}
	if cmd.Password == "" {
		fields.Add("password", "this field is required")
	}
	if err := fields.Err(); err != nil {
		return Session{}, err
	}

	acc, err := s.repo.Upsert(ctx, email, func(existing *Account) (*Account, error) {
		if existing == nil {
			if len(cmd.Password) < minPasswordLen {
				return nil, types.FieldErrors{"password": "must be at least 8 characters"}
			}
			hash, err := bcrypt.GenerateFromPassword([]byte(cmd.Password), s.hashCost)
			if err != nil {
				return nil, err
			}
			now := s.now()
			a := &Account{
				ID:           types.NewID(),
				Email:        email,
				PasswordHash: string(hash),
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			a.merge(cmd.Attributes)
			a.grant(cmd.Role)
			return a, nil
		}
		if bcrypt.CompareHashAndPassword([]byte(existing.PasswordHash), []byte(cmd.Password)) != nil {
			return nil, ErrAuth
		}
		existing.merge(cmd.Attributes)
		existing.grant(cmd.Role)
		existing.UpdatedAt = s.now()
		return existing, nil
	})
	if err != nil {
		return Session{}, err
	}
	s.logger.Info("account registered", zap.String("account_id", string(acc.ID)), zap.String("role", string(cmd.Role)))
	return s.session(acc)
}

func (s *Service) Authenticate(ctx context.Context, email, password string) (Session, error) {
	acc, err := s.repo.GetByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, ErrNotFound) {
		return Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)) != nil {
		return Session{}, ErrInvalidCredentials
	}
	return s.session(acc)
}

// Refresh exchanges a refresh token for a new pair built from the stored account.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	claims, err := s.issuer.VerifyRefresh(refreshToken)
	if err != nil {
		return Session{}, err
	}
	acc, err := s.repo.Get(ctx, types.ID(claims.User.ID))
	if errors.Is(err, ErrNotFound) {
		return Session{}, auth.ErrInvalidToken
	}
	if err != nil {
		return Session{}, err
	}
	return s.session(acc)
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Account, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) Profile(ctx context.Context, id types.ID) (Profile, error) {
	acc, err := s.repo.Get(ctx, id)
	if err != nil {
		return Profile{}, err
	}
	return Profile{
		ID:              acc.ID,
		FullName:        acc.FullName,
		PhoneNumber:     acc.PhoneNumber,
		IsPhoneVerified: acc.IsPhoneVerified,
	}, nil
}

// SendVerification dispatches a code to the account's own phone or email.
func (s *Service) SendVerification(ctx context.Context, id types.ID, ch otp.Channel) (otp.DeliveryToken, error) {
	acc, contact, err := s.contactFor(ctx, id, ch)
	if err != nil {
		return otp.DeliveryToken{}, err
	}
	tok, err := s.verifier.Send(ctx, contact, ch)
	if err != nil {
		return otp.DeliveryToken{}, err
	}
	s.logger.Info("verification sent", zap.String("account_id", string(acc.ID)), zap.String("channel", string(ch)))
	return tok, nil
}

// VerifyContact checks code against the account's contact for ch and marks it verified.
func (s *Service) VerifyContact(ctx context.Context, id types.ID, ch otp.Channel, code string) (*Account, error) {
	if strings.TrimSpace(code) == "" {
		return nil, types.FieldErrors{"code": "this field is required"}
	}
	_, contact, err := s.contactFor(ctx, id, ch)
	if err != nil {
		return nil, err
	}
	switch s.verifier.Verify(ctx, contact, code) {
	case otp.Verified:
	case otp.Locked:
		return nil, otp.ErrRateLimited
	default:
		return nil, ErrInvalidCode
	}
	return s.repo.MarkVerified(ctx, id, ch)
}

func (s *Service) contactFor(ctx context.Context, id types.ID, ch otp.Channel) (*Account, string, error) {
	if !ch.Valid() {
		return nil, "", types.FieldErrors{"channel": "must be sms or email"}
	}
	acc, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}
	contact := acc.PhoneNumber
	if ch == otp.ChannelEmail {
		contact = acc.Email
	}
	if contact == "" {
		return nil, "", types.FieldErrors{"channel": "account has no contact for this channel"}
	}
	return acc, contact, nil
}

func (s *Service) session(acc *Account) (Session, error) {
	tokens, err := s.issuer.Issue(acc.Snapshot())
	if err != nil {
		return Session{}, err
	}
	return Session{Account: acc, Tokens: tokens}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
