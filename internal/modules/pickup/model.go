// README: Pickup request aggregate and lifecycle status definitions.
package pickup

import (
	"time"

	"scrapyard/internal/types"
)

type Status string

const (
	StatusNone           Status = "none"
	StatusPending        Status = "pending"
	StatusConfirmed      Status = "confirmed"
	StatusVendorAccepted Status = "vendor_accepted"
	StatusScheduled      Status = "scheduled"
	StatusCompleted      Status = "completed"
	StatusCancelled      Status = "cancelled"
)

type Pickup struct {
	ID              types.ID
	ClientID        types.ID
	Address         string
	Latitude        *float64
	Longitude       *float64
	Date            time.Time
	TimeSlot        string
	Category        string
	QuantityKg      float64
	EstimatedPrice  *types.Money
	AgreedPrice     *types.Money
	ImageKey        string
	ContactName     string
	ContactPhone    string
	IsPhoneVerified bool
	OTPCode         string
	OTPExpiresAt    *time.Time
	AssignedTo      *types.ID
	Status          Status
	StatusVersion   int
	CreatedAt       time.Time
	UpdatedAt       time.Time
	AcceptedAt      *time.Time
	ScheduledAt     *time.Time
	CompletedAt     *time.Time
	CancelledAt     *time.Time
}

// IsAssignedTo reports whether vendor currently holds the pickup.
func (p *Pickup) IsAssignedTo(vendor types.ID) bool {
	return p.AssignedTo != nil && *p.AssignedTo == vendor
}

// InPool reports whether the pickup is visible to every vendor.
func (p *Pickup) InPool() bool {
	return p.Status == StatusConfirmed && p.AssignedTo == nil
}

type Event struct {
	ID         int64
	PickupID   types.ID
	FromStatus Status
	ToStatus   Status
	ActorType  string
	ActorID    *types.ID
	CreatedAt  time.Time
}

const (
	ActorClient = "client"
	ActorVendor = "vendor"
	ActorSystem = "system"
)

// AllowedTransitions is the pickup lifecycle as code.
var AllowedTransitions = map[Status][]Status{
	StatusPending:        {StatusConfirmed, StatusCancelled},
	StatusConfirmed:      {StatusVendorAccepted},
	StatusVendorAccepted: {StatusConfirmed, StatusScheduled},
	StatusScheduled:      {StatusCompleted},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

// assigneeAllowed is the row invariant: only these states may carry a vendor.
func assigneeAllowed(s Status) bool {
	return s == StatusVendorAccepted || s == StatusScheduled || s == StatusCompleted
}
