// README: Generic contact verification handlers (send / verify a code).
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"scrapyard/internal/modules/otp"
)

type OTPHandler struct {
	otp *otp.Service
}

func NewOTPHandler(svc *otp.Service) *OTPHandler {
	return &OTPHandler{otp: svc}
}

type sendOTPReq struct {
	Contact string `json:"contact" binding:"required"`
	Channel string `json:"channel" binding:"omitempty,oneof=sms email"`
}

type verifyOTPReq struct {
	Contact string `json:"contact" binding:"required"`
	OTP     string `json:"otp" binding:"required"`
}

func (h *OTPHandler) Send(c *gin.Context) {
	var req sendOTPReq
	if !bindJSON(c, &req) {
		return
	}
	ch := otp.Channel(req.Channel)
	if ch == "" {
		ch = otp.ChannelSMS
	}
	tok, err := h.otp.Send(c.Request.Context(), req.Contact, ch)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"message": "OTP sent successfully via " + string(ch), "status": tok.Status})
}

func (h *OTPHandler) Verify(c *gin.Context) {
	var req verifyOTPReq
	if !bindJSON(c, &req) {
		return
	}
	verdict := h.otp.Verify(c.Request.Context(), req.Contact, req.OTP)
	if verdict == otp.Locked {
		writeError(c, http.StatusTooManyRequests, otp.ErrRateLimited.Error())
		return
	}
	if verdict != otp.Verified {
		writeError(c, http.StatusBadRequest, "Invalid or expired OTP")
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"message": "OTP Verified"})
}
