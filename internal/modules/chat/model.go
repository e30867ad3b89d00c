// README: Chat message and embedded price offer for a pickup thread.
package chat

import (
	"time"

	"scrapyard/internal/types"
)

type OfferStatus string

const (
	OfferNone     OfferStatus = ""
	OfferPending  OfferStatus = "pending"
	OfferAccepted OfferStatus = "accepted"
	OfferRejected OfferStatus = "rejected"
)

type Message struct {
	ID          types.ID     `json:"id"`
	PickupID    types.ID     `json:"pickup_id"`
	SenderID    types.ID     `json:"sender_id"`
	Body        string       `json:"message"`
	IsRead      bool         `json:"is_read"`
	IsOffer     bool         `json:"is_offer"`
	OfferAmount *types.Money `json:"offer_amount,omitempty"`
	OfferStatus OfferStatus  `json:"offer_status,omitempty"`
	// RecipientID is the party an offer was made to; only they may resolve it.
	RecipientID *types.ID  `json:"recipient_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
}

// vendorParty is the seller side of an offer: its sender when the client
// made it to a vendor, otherwise the vendor it was made by.
func (m *Message) vendorParty(clientID types.ID) types.ID {
	if m.SenderID == clientID && m.RecipientID != nil {
		return *m.RecipientID
	}
	return m.SenderID
}
