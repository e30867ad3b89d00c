// README: Seller-side pickup handlers (pool, own list, accept, release, complete).
package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"scrapyard/internal/http/middleware"
	"scrapyard/internal/modules/pickup"
	"scrapyard/internal/types"
)

type VendorHandler struct {
	pickups *pickup.Service
}

func NewVendorHandler(svc *pickup.Service) *VendorHandler {
	return &VendorHandler{pickups: svc}
}

// Available lists confirmed, unassigned pickups, newest first. With ?lat=&lng=
// each pickup that has coordinates carries distance_km from that point.
func (h *VendorHandler) Available(c *gin.Context) {
	origin, ok, err := queryPoint(c)
	if err != nil {
		writeFieldErrors(c, types.FieldErrors{"lat": err.Error()})
		return
	}
	caller := middleware.Caller(c)
	ps, err := h.pickups.ListAvailable(c.Request.Context(), caller)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	views := newPickupViews(ps, caller)
	if ok {
		withDistance(views, origin)
	}
	writeJSON(c, http.StatusOK, views)
}

// queryPoint reads optional lat/lng query parameters; ok is false when both are absent.
func queryPoint(c *gin.Context) (types.Point, bool, error) {
	lat, lng := c.Query("lat"), c.Query("lng")
	if lat == "" && lng == "" {
		return types.Point{}, false, nil
	}
	var p types.Point
	var err1, err2 error
	p.Lat, err1 = strconv.ParseFloat(lat, 64)
	p.Lng, err2 = strconv.ParseFloat(lng, 64)
	if err1 != nil || err2 != nil || !p.Valid() {
		return types.Point{}, false, errors.New("lat and lng must be valid coordinates")
	}
	return p, true, nil
}

// List returns pickups currently assigned to the caller.
func (h *VendorHandler) List(c *gin.Context) {
	caller := middleware.Caller(c)
	ps, err := h.pickups.ListByVendor(c.Request.Context(), caller)
	if err != nil {
		writeDomainError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, newPickupViews(ps, caller))
}

func (h *VendorHandler) Accept(c *gin.Context) {
	runAction(c, h.pickups.Accept, "Pickup accepted. Waiting for client approval.")
}

func (h *VendorHandler) Release(c *gin.Context) {
	runAction(c, h.pickups.Release, "Pickup released.")
}

func (h *VendorHandler) Complete(c *gin.Context) {
	runAction(c, h.pickups.Complete, "Pickup completed.")
}
