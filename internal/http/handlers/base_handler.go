// README: Base handler utilities (JSON helpers, request binding, domain error mapping).
package handlers

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"scrapyard/internal/access"
	"scrapyard/internal/auth"
	"scrapyard/internal/modules/account"
	"scrapyard/internal/modules/chat"
	"scrapyard/internal/modules/otp"
	"scrapyard/internal/modules/pickup"
	"scrapyard/internal/modules/pricing"
	"scrapyard/internal/storage"
	"scrapyard/internal/types"
)

// Validation errors report fields by their json name.
func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			for _, tag := range []string{"json", "form"} {
				name := strings.SplitN(f.Tag.Get(tag), ",", 2)[0]
				if name != "" && name != "-" {
					return name
				}
			}
			return f.Name
		})
	}
}

type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// isValidID ensures IDs are alphanumeric and at most 32 chars (matches the ID generator).
func isValidID(v string) bool {
	if v == "" || len(v) > 32 {
		return false
	}
	for _, c := range v {
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
			continue
		}
		return false
	}
	return true
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

func writeFieldErrors(c *gin.Context, fields types.FieldErrors) {
	writeJSON(c, http.StatusBadRequest, errorResponse{Error: "validation failed", Fields: fields})
}

// pathID reads and validates the :id segment; it writes 400 and returns false when invalid.
func pathID(c *gin.Context) (types.ID, bool) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid id")
		return "", false
	}
	return types.ID(id), true
}

// bindJSON decodes the body into req, answering 400 with per-field messages on failure.
func bindJSON(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		writeBindError(c, err)
		return false
	}
	return true
}

func writeBindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := types.FieldErrors{}
		for _, fe := range verrs {
			fields.Add(fe.Field(), validationMessage(fe))
		}
		writeFieldErrors(c, fields)
		return
	}
	writeError(c, http.StatusBadRequest, "invalid request body")
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "email":
		return "enter a valid email address"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	}
	return "is invalid"
}

// writeDomainError maps module errors to HTTP statuses.
func writeDomainError(c *gin.Context, err error) {
	var fields types.FieldErrors
	if errors.As(err, &fields) {
		writeFieldErrors(c, fields)
		return
	}
	switch {
	case errors.Is(err, otp.ErrRateLimited),
		errors.Is(err, pickup.ErrTooManyAttempts):
		writeError(c, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, pickup.ErrDispatch), errors.Is(err, otp.ErrUnavailable):
		writeError(c, http.StatusServiceUnavailable, "verification provider unavailable")
	case errors.Is(err, access.ErrAccessDenied):
		writeError(c, http.StatusForbidden, err.Error())
	case errors.Is(err, account.ErrInvalidCredentials),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrTokenExpired):
		writeError(c, http.StatusUnauthorized, err.Error())
	case errors.Is(err, account.ErrAuth),
		errors.Is(err, account.ErrInvalidCode),
		errors.Is(err, otp.ErrBadRequest),
		errors.Is(err, pickup.ErrInvalidState),
		errors.Is(err, pickup.ErrInvalidCode),
		errors.Is(err, pickup.ErrCodeExpired),
		errors.Is(err, chat.ErrNotOffer),
		errors.Is(err, pricing.ErrUnknownCategory),
		errors.Is(err, storage.ErrFileTooLarge),
		errors.Is(err, storage.ErrFileType):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, account.ErrNotFound),
		errors.Is(err, pickup.ErrNotFound),
		errors.Is(err, pickup.ErrUnavailable),
		errors.Is(err, chat.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, pickup.ErrConflict),
		errors.Is(err, chat.ErrOfferResolved),
		errors.Is(err, chat.ErrOfferStale),
		errors.Is(err, account.ErrConflict):
		writeError(c, http.StatusConflict, err.Error())
	case errors.Is(err, storage.ErrNotConfigured):
		writeError(c, http.StatusServiceUnavailable, err.Error())
	default:
		_ = c.Error(err)
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}
