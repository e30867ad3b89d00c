// README: Account handlers: register (client/seller), login, token refresh, profile, verification.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"scrapyard/internal/access"
	"scrapyard/internal/http/middleware"
	"scrapyard/internal/modules/account"
	"scrapyard/internal/modules/otp"
	"scrapyard/internal/storage"
)

type AccountHandler struct {
	accounts *account.Service
	uploads  *storage.Uploader
}

func NewAccountHandler(svc *account.Service, uploads *storage.Uploader) *AccountHandler {
	return &AccountHandler{accounts: svc, uploads: uploads}
}

type registerReq struct {
	Email          string   `json:"email" form:"email" binding:"required,email"`
	Password       string   `json:"password" form:"password" binding:"required"`
	FullName       string   `json:"full_name" form:"full_name"`
	PhoneNumber    string   `json:"phone_number" form:"phone_number"`
	Address        string   `json:"address" form:"address"`
	City           string   `json:"city" form:"city"`
	BusinessName   string   `json:"business_name" form:"business_name"`
	BusinessType   string   `json:"business_type" form:"business_type"`
	OperatingAreas string   `json:"operating_areas" form:"operating_areas"`
	ScrapeTypes    []string `json:"scrape_types" form:"scrape_types"`
}

type loginReq struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type refreshReq struct {
	Refresh string `json:"refresh" binding:"required"`
}

type channelReq struct {
	Channel string `json:"channel" binding:"required,oneof=sms email"`
}

type verifyContactReq struct {
	Channel string `json:"channel" binding:"required,oneof=sms email"`
	Code    string `json:"code" binding:"required"`
}

// documentFields are the multipart file fields stored as account documents.
var documentFields = []string{"id_proof", "vendor_id_proof", "business_license", "gst_certificate", "address_proof"}

func (h *AccountHandler) RegisterClient(c *gin.Context) {
	h.register(c, access.RoleClient, "Client registered successfully.")
}

func (h *AccountHandler) RegisterSeller(c *gin.Context) {
	h.register(c, access.RoleSeller, "Seller registered successfully.")
}

func (h *AccountHandler) register(c *gin.Context, role access.Role, message string) {
	var req registerReq
	if err := c.ShouldBind(&req); err != nil {
		writeBindError(c, err)
		return
	}
	docs, err := h.saveDocuments(c)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	sess, err := h.accounts.Register(c.Request.Context(), account.RegisterCommand{
		Role:     role,
		Email:    req.Email,
		Password: req.Password,
		Attributes: account.Attributes{
			FullName:       req.FullName,
			PhoneNumber:    req.PhoneNumber,
			Address:        req.Address,
			City:           req.City,
			BusinessName:   req.BusinessName,
			BusinessType:   req.BusinessType,
			OperatingAreas: req.OperatingAreas,
			ScrapeTypes:    req.ScrapeTypes,
			Documents:      docs,
		},
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeSession(c, http.StatusCreated, message, sess)
}

// saveDocuments uploads any document files present in a multipart request.
func (h *AccountHandler) saveDocuments(c *gin.Context) (account.Documents, error) {
	var docs account.Documents
	if c.ContentType() != "multipart/form-data" {
		return docs, nil
	}
	targets := map[string]*string{
		"id_proof":         &docs.IDProof,
		"vendor_id_proof":  &docs.VendorIDProof,
		"business_license": &docs.BusinessLicense,
		"gst_certificate":  &docs.GSTCertificate,
		"address_proof":    &docs.AddressProof,
	}
	for _, field := range documentFields {
		fh, err := c.FormFile(field)
		if err != nil {
			continue
		}
		key, err := h.uploads.Save(c.Request.Context(), "documents/"+field, fh)
		if err != nil {
			return docs, err
		}
		*targets[field] = key
	}
	return docs, nil
}

func (h *AccountHandler) Login(c *gin.Context) {
	var req loginReq
	if !bindJSON(c, &req) {
		return
	}
	sess, err := h.accounts.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeSession(c, http.StatusOK, "Login successful.", sess)
}

func (h *AccountHandler) Refresh(c *gin.Context) {
	var req refreshReq
	if !bindJSON(c, &req) {
		return
	}
	sess, err := h.accounts.Refresh(c.Request.Context(), req.Refresh)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"access": sess.Tokens.Access, "refresh": sess.Tokens.Refresh})
}

func (h *AccountHandler) Me(c *gin.Context) {
	acc, err := h.accounts.Get(c.Request.Context(), middleware.Caller(c).ID)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"user": acc})
}

func (h *AccountHandler) SendVerification(c *gin.Context) {
	var req channelReq
	if !bindJSON(c, &req) {
		return
	}
	tok, err := h.accounts.SendVerification(c.Request.Context(), middleware.Caller(c).ID, otp.Channel(req.Channel))
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"message": "OTP sent successfully via " + req.Channel, "status": tok.Status})
}

func (h *AccountHandler) VerifyContact(c *gin.Context) {
	var req verifyContactReq
	if !bindJSON(c, &req) {
		return
	}
	acc, err := h.accounts.VerifyContact(c.Request.Context(), middleware.Caller(c).ID, otp.Channel(req.Channel), req.Code)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"message": "Account verified.", "user": acc.Snapshot()})
}

func writeSession(c *gin.Context, status int, message string, sess account.Session) {
	writeJSON(c, status, gin.H{
		"message": message,
		"user":    sess.Account.Snapshot(),
		"access":  sess.Tokens.Access,
		"refresh": sess.Tokens.Refresh,
	})
}
