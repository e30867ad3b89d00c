// README: Client-side pickup handlers (create, list, cancel, contact + OTP, detail, vendor approval).
package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"scrapyard/internal/access"
	"scrapyard/internal/http/middleware"
	"scrapyard/internal/modules/pickup"
	"scrapyard/internal/storage"
	"scrapyard/internal/types"
)

type PickupHandler struct {
	pickups *pickup.Service
	uploads *storage.Uploader
	// exposeCode returns the issued pickup code in the contact response.
	exposeCode bool
}

func NewPickupHandler(svc *pickup.Service, uploads *storage.Uploader, exposeCode bool) *PickupHandler {
	return &PickupHandler{pickups: svc, uploads: uploads, exposeCode: exposeCode}
}

type createPickupReq struct {
	Address      string   `json:"address" form:"address" binding:"required"`
	Latitude     *float64 `json:"latitude" form:"latitude" binding:"omitempty,min=-90,max=90"`
	Longitude    *float64 `json:"longitude" form:"longitude" binding:"omitempty,min=-180,max=180"`
	Date         string   `json:"date" form:"date" binding:"required"`
	TimeSlot     string   `json:"time_slot" form:"time_slot" binding:"required"`
	Category     string   `json:"category" form:"category" binding:"required"`
	QuantityKg   float64  `json:"quantity_kg" form:"quantity_kg" binding:"min=0"`
	ContactName  string   `json:"contact_name" form:"contact_name"`
	ContactPhone string   `json:"contact_phone" form:"contact_phone"`
}

type contactReq struct {
	RequestID    string `json:"request_id" binding:"required"`
	ContactName  string `json:"contact_name"`
	ContactPhone string `json:"contact_phone" binding:"required"`
}

type pickupOTPReq struct {
	RequestID string `json:"request_id" binding:"required"`
	OTP       string `json:"otp" binding:"required,len=6"`
}

func (h *PickupHandler) Create(c *gin.Context) {
	var req createPickupReq
	if err := c.ShouldBind(&req); err != nil {
		writeBindError(c, err)
		return
	}
	date, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		writeFieldErrors(c, types.FieldErrors{"date": "use the YYYY-MM-DD format"})
		return
	}
	if (req.Latitude == nil) != (req.Longitude == nil) {
		writeFieldErrors(c, types.FieldErrors{"latitude": "latitude and longitude go together"})
		return
	}
	cmd := pickup.CreateCommand{
		Address:      req.Address,
		Date:         date,
		TimeSlot:     req.TimeSlot,
		Category:     req.Category,
		QuantityKg:   req.QuantityKg,
		ContactName:  req.ContactName,
		ContactPhone: req.ContactPhone,
	}
	if req.Latitude != nil {
		cmd.Location = &types.Point{Lat: *req.Latitude, Lng: *req.Longitude}
	}
	if c.ContentType() == "multipart/form-data" {
		if fh, err := c.FormFile("scrape_image"); err == nil {
			key, err := h.uploads.Save(c.Request.Context(), "pickups", fh)
			if err != nil {
				writeDomainError(c, err)
				return
			}
			cmd.ImageKey = key
		}
	}

	caller := middleware.Caller(c)
	p, err := h.pickups.Create(c.Request.Context(), caller, cmd)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, gin.H{
		"message":    "Pickup request initiated.",
		"request_id": p.ID,
		"status":     p.Status,
		"pickup":     newPickupView(p, caller),
	})
}

func (h *PickupHandler) List(c *gin.Context) {
	caller := middleware.Caller(c)
	ps, err := h.pickups.ListByClient(c.Request.Context(), caller)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, newPickupViews(ps, caller))
}

func (h *PickupHandler) Detail(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	caller := middleware.Caller(c)
	p, err := h.pickups.Get(c.Request.Context(), caller, id)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, newPickupView(p, caller))
}

func (h *PickupHandler) Cancel(c *gin.Context) {
	runAction(c, h.pickups.Cancel, "Pickup cancelled.")
}

func (h *PickupHandler) Approve(c *gin.Context) {
	runAction(c, h.pickups.Approve, "Vendor approved. Pickup scheduled.")
}

func (h *PickupHandler) Reject(c *gin.Context) {
	runAction(c, h.pickups.Reject, "Vendor rejected. Pickup is open again.")
}

// pickupAction is a lifecycle operation addressed by the :id path segment.
type pickupAction func(context.Context, access.Actor, types.ID) (*pickup.Pickup, error)

func runAction(c *gin.Context, fn pickupAction, message string) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	p, err := fn(c.Request.Context(), middleware.Caller(c), id)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"message": message, "request_id": p.ID, "status": p.Status})
}

func (h *PickupHandler) Contact(c *gin.Context) {
	var req contactReq
	if !bindJSON(c, &req) {
		return
	}
	if !isValidID(req.RequestID) {
		writeFieldErrors(c, types.FieldErrors{"request_id": "is invalid"})
		return
	}
	res, err := h.pickups.SubmitContact(c.Request.Context(), middleware.Caller(c), pickup.SubmitContactCommand{
		PickupID: types.ID(req.RequestID),
		Name:     req.ContactName,
		Phone:    req.ContactPhone,
	})
	if err != nil {
		writeDomainError(c, err)
		return
	}
	body := gin.H{"message": "Contact info updated. OTP sent.", "request_id": res.Pickup.ID}
	if h.exposeCode {
		body["mock_otp"] = res.Code
	}
	writeJSON(c, http.StatusOK, body)
}

func (h *PickupHandler) VerifyOTP(c *gin.Context) {
	var req pickupOTPReq
	if !bindJSON(c, &req) {
		return
	}
	if !isValidID(req.RequestID) {
		writeFieldErrors(c, types.FieldErrors{"request_id": "is invalid"})
		return
	}
	p, err := h.pickups.VerifyOTP(c.Request.Context(), pickup.VerifyOTPCommand{
		PickupID: types.ID(req.RequestID),
		Code:     req.OTP,
	})
	switch {
	case errors.Is(err, pickup.ErrInvalidCode):
		writeError(c, http.StatusBadRequest, "Invalid OTP")
		return
	case err != nil:
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"message": "Phone verified. Pickup confirmed.", "request_id": p.ID, "status": p.Status})
}
