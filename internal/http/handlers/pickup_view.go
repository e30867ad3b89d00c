// README: JSON view of a pickup request; contact details are shown only to its owner and assignee.
package handlers

import (
	"math"
	"time"

	"scrapyard/internal/access"
	"scrapyard/internal/modules/pickup"
	"scrapyard/internal/types"
)

const dateLayout = "2006-01-02"

type pickupView struct {
	ID              types.ID     `json:"id"`
	Status          string       `json:"status"`
	Address         string       `json:"address"`
	Latitude        *float64     `json:"latitude"`
	Longitude       *float64     `json:"longitude"`
	Date            string       `json:"date"`
	TimeSlot        string       `json:"time_slot"`
	Category        string       `json:"category"`
	QuantityKg      float64      `json:"quantity_kg"`
	EstimatedPrice  *types.Money `json:"estimated_price"`
	AgreedPrice     *types.Money `json:"agreed_price"`
	ScrapeImage     string       `json:"scrape_image,omitempty"`
	ContactName     string       `json:"contact_name,omitempty"`
	ContactPhone    string       `json:"contact_phone,omitempty"`
	IsPhoneVerified bool         `json:"is_phone_verified"`
	AssignedTo      *types.ID    `json:"assigned_vendor"`
	DistanceKm      *float64     `json:"distance_km,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	AcceptedAt      *time.Time   `json:"accepted_at,omitempty"`
	ScheduledAt     *time.Time   `json:"scheduled_at,omitempty"`
	CompletedAt     *time.Time   `json:"completed_at,omitempty"`
	CancelledAt     *time.Time   `json:"cancelled_at,omitempty"`
}

func newPickupView(p *pickup.Pickup, viewer access.Actor) pickupView {
	v := pickupView{
		ID:              p.ID,
		Status:          string(p.Status),
		Address:         p.Address,
		Latitude:        p.Latitude,
		Longitude:       p.Longitude,
		Date:            p.Date.Format(dateLayout),
		TimeSlot:        p.TimeSlot,
		Category:        p.Category,
		QuantityKg:      p.QuantityKg,
		EstimatedPrice:  p.EstimatedPrice,
		AgreedPrice:     p.AgreedPrice,
		ScrapeImage:     p.ImageKey,
		IsPhoneVerified: p.IsPhoneVerified,
		AssignedTo:      p.AssignedTo,
		CreatedAt:       p.CreatedAt,
		AcceptedAt:      p.AcceptedAt,
		ScheduledAt:     p.ScheduledAt,
		CompletedAt:     p.CompletedAt,
		CancelledAt:     p.CancelledAt,
	}
	if p.ClientID == viewer.ID || p.IsAssignedTo(viewer.ID) {
		v.ContactName = p.ContactName
		v.ContactPhone = p.ContactPhone
	}
	return v
}

func newPickupViews(ps []*pickup.Pickup, viewer access.Actor) []pickupView {
	out := make([]pickupView, 0, len(ps))
	for _, p := range ps {
		out = append(out, newPickupView(p, viewer))
	}
	return out
}

// withDistance annotates each view that has coordinates with its distance from origin.
func withDistance(views []pickupView, origin types.Point) {
	for i := range views {
		v := &views[i]
		if v.Latitude == nil || v.Longitude == nil {
			continue
		}
		d := math.Round(origin.DistanceKm(types.Point{Lat: *v.Latitude, Lng: *v.Longitude})*10) / 10
		v.DistanceKm = &d
	}
}
