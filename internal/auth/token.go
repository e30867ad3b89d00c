// README: Session token issuer (HS256 access + refresh pair with an account snapshot).
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	audienceAccess  = "access"
	audienceRefresh = "refresh"
	issuer          = "scrapyard"
)

var (
	ErrTokenExpired = errors.New("token expired")
	ErrInvalidToken = errors.New("invalid token")
)

// Snapshot is the account view embedded in every session token.
type Snapshot struct {
	ID              string `json:"id"`
	Email           string `json:"email"`
	FullName        string `json:"full_name"`
	PhoneNumber     string `json:"phone_number"`
	IsClient        bool   `json:"is_client"`
	IsSeller        bool   `json:"is_seller"`
	IsVerified      bool   `json:"is_verified"`
	IsPhoneVerified bool   `json:"is_phone_verified"`
	IsEmailVerified bool   `json:"is_email_verified"`
}

type Claims struct {
	User Snapshot `json:"user"`
	jwt.RegisteredClaims
}

type Tokens struct {
	Access    string    `json:"access"`
	Refresh   string    `json:"refresh"`
	ExpiresAt time.Time `json:"-"`
}

// Issuer signs and verifies session tokens. It holds no per-session state.
type Issuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

func NewIssuer(secret string, accessTTL, refreshTTL time.Duration) *Issuer {
	return &Issuer{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
}

func (i *Issuer) Issue(s Snapshot) (Tokens, error) {
	access, exp, err := i.sign(s, audienceAccess, i.accessTTL)
	if err != nil {
		return Tokens{}, fmt.Errorf("sign access token: %w", err)
	}
	refresh, _, err := i.sign(s, audienceRefresh, i.refreshTTL)
	if err != nil {
		return Tokens{}, fmt.Errorf("sign refresh token: %w", err)
	}
	return Tokens{Access: access, Refresh: refresh, ExpiresAt: exp}, nil
}

func (i *Issuer) VerifyAccess(raw string) (*Claims, error) {
	return i.verify(raw, audienceAccess)
}

func (i *Issuer) VerifyRefresh(raw string) (*Claims, error) {
	return i.verify(raw, audienceRefresh)
}

func (i *Issuer) sign(s Snapshot, audience string, ttl time.Duration) (string, time.Time, error) {
	now := i.now()
	exp := now.Add(ttl)
	claims := &Claims{
		User: s,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   s.ID,
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	return signed, exp, err
}

func (i *Issuer) verify(raw, audience string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return i.secret, nil
	},
		jwt.WithAudience(audience),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.User.ID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
