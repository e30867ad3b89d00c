package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"scrapyard/internal/access"
	"scrapyard/internal/auth"
	"scrapyard/internal/modules/account"
	"scrapyard/internal/modules/chat"
	"scrapyard/internal/modules/otp"
	"scrapyard/internal/modules/pickup"
	"scrapyard/internal/storage"
	"scrapyard/internal/types"
)

func TestWriteDomainErrorStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		err  error
		want int
	}{
		{types.FieldErrors{"email": "required"}, http.StatusBadRequest},
		{account.ErrAuth, http.StatusBadRequest},
		{account.ErrInvalidCredentials, http.StatusUnauthorized},
		{auth.ErrTokenExpired, http.StatusUnauthorized},
		{access.ErrAccessDenied, http.StatusForbidden},
		{pickup.ErrNotFound, http.StatusNotFound},
		{pickup.ErrUnavailable, http.StatusNotFound},
		{pickup.ErrInvalidState, http.StatusBadRequest},
		{pickup.ErrConflict, http.StatusConflict},
		{chat.ErrOfferResolved, http.StatusConflict},
		{chat.ErrOfferStale, http.StatusConflict},
		{otp.ErrRateLimited, http.StatusTooManyRequests},
		{pickup.ErrTooManyAttempts, http.StatusTooManyRequests},
		{otp.ErrUnavailable, http.StatusServiceUnavailable},
		{fmt.Errorf("%w: %w", pickup.ErrDispatch, errors.New("twilio down")), http.StatusServiceUnavailable},
		{fmt.Errorf("%w: %w", pickup.ErrDispatch, otp.ErrRateLimited), http.StatusTooManyRequests},
		{fmt.Errorf("scan.png: %w", storage.ErrFileType), http.StatusBadRequest},
		{storage.ErrNotConfigured, http.StatusServiceUnavailable},
		{errors.New("connection reset"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		writeDomainError(c, tc.err)
		if w.Code != tc.want {
			t.Errorf("%v: status = %d, want %d", tc.err, w.Code, tc.want)
		}
	}
}

func TestIsValidID(t *testing.T) {
	if !isValidID(string(types.NewID())) {
		t.Error("generated id rejected")
	}
	for _, bad := range []string{"", "a-b", "1 OR 1=1", "0123456789abcdef0123456789abcdef0"} {
		if isValidID(bad) {
			t.Errorf("isValidID(%q) = true", bad)
		}
	}
}
