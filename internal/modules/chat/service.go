// README: Chat service guards pickup threads and resolves offers exactly once.
package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"scrapyard/internal/access"
	"scrapyard/internal/modules/pickup"
	"scrapyard/internal/types"
)

const maxBodyLen = 2000

var (
	ErrNotFound      = errors.New("message not found")
	ErrNotOffer      = errors.New("message is not an offer")
	ErrOfferResolved = errors.New("offer already resolved")
	ErrOfferStale    = errors.New("offer no longer matches the assigned vendor")
)

type Repository interface {
	Append(ctx context.Context, m *Message) error
	Get(ctx context.Context, id types.ID) (*Message, error)
	Thread(ctx context.Context, pickupID types.ID) ([]*Message, error)
	MarkRead(ctx context.Context, pickupID, reader types.ID) error
	// Resolve moves a pending offer to status and reports false if it was no longer pending.
	Resolve(ctx context.Context, id types.ID, status OfferStatus, at time.Time) (bool, error)
}

type Pickups interface {
	Lookup(ctx context.Context, id types.ID) (*pickup.Pickup, error)
	RecordAgreedPrice(ctx context.Context, id types.ID, price types.Money) error
}

type Service struct {
	repo    Repository
	pickups Pickups
	logger  *zap.Logger
	now     func() time.Time
}

func NewService(repo Repository, pickups Pickups, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{repo: repo, pickups: pickups, logger: logger, now: time.Now}
}

type PostCommand struct {
	PickupID types.ID
	Body     string
	// Offer is set when the message carries a price proposal.
	Offer *types.Money
}

// Thread returns the pickup's messages oldest first and marks the
// counterparty's messages as read by the caller.
func (s *Service) Thread(ctx context.Context, actor access.Actor, pickupID types.ID) ([]*Message, error) {
	if _, err := s.participant(ctx, actor, pickupID); err != nil {
		return nil, err
	}
	if err := s.repo.MarkRead(ctx, pickupID, actor.ID); err != nil {
		return nil, err
	}
	return s.repo.Thread(ctx, pickupID)
}

func (s *Service) Post(ctx context.Context, actor access.Actor, cmd PostCommand) (*Message, error) {
	body := strings.TrimSpace(cmd.Body)
	fields := types.FieldErrors{}
	if body == "" && cmd.Offer == nil {
		fields.Add("message", "this field is required")
	}
	if len(body) > maxBodyLen {
		fields.Add("message", "must be at most 2000 characters")
	}
	if cmd.Offer != nil && cmd.Offer.Amount <= 0 {
		fields.Add("offer_amount", "must be greater than zero")
	}
	if err := fields.Err(); err != nil {
		return nil, err
	}
	p, err := s.participant(ctx, actor, cmd.PickupID)
	if err != nil {
		return nil, err
	}

	var recipient types.ID
	if cmd.Offer != nil {
		switch {
		case actor.ID != p.ClientID:
			recipient = p.ClientID
		case p.AssignedTo != nil:
			recipient = *p.AssignedTo
		default:
			fields.Add("offer_amount", "no vendor has accepted this pickup yet")
			return nil, fields.Err()
		}
	}

	m := &Message{
		ID:        types.NewID(),
		PickupID:  cmd.PickupID,
		SenderID:  actor.ID,
		Body:      body,
		CreatedAt: s.now(),
	}
	if cmd.Offer != nil {
		offer := *cmd.Offer
		if offer.Currency == "" {
			offer.Currency = types.DefaultCurrency
		}
		m.IsOffer = true
		m.OfferAmount = &offer
		m.OfferStatus = OfferPending
		m.RecipientID = &recipient
	}
	if err := s.repo.Append(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// ResolveOffer accepts or rejects a pending offer. Only the party the offer was
// made to may resolve it, only once, and only while the vendor it involves is
// still assigned to the pickup.
func (s *Service) ResolveOffer(ctx context.Context, actor access.Actor, messageID types.ID, accept bool) (*Message, error) {
	m, err := s.repo.Get(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if !m.IsOffer {
		return nil, ErrNotOffer
	}
	p, err := s.participant(ctx, actor, m.PickupID)
	if err != nil {
		return nil, err
	}
	if m.RecipientID == nil || *m.RecipientID != actor.ID {
		return nil, access.ErrAccessDenied
	}
	if m.OfferStatus != OfferPending {
		return nil, ErrOfferResolved
	}
	if !p.IsAssignedTo(m.vendorParty(p.ClientID)) {
		return nil, ErrOfferStale
	}

	to := OfferRejected
	if accept {
		to = OfferAccepted
	}
	now := s.now()
	ok, err := s.repo.Resolve(ctx, m.ID, to, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrOfferResolved
	}
	m.OfferStatus = to
	m.ResolvedAt = &now

	if accept && m.OfferAmount != nil {
		if err := s.pickups.RecordAgreedPrice(ctx, m.PickupID, *m.OfferAmount); err != nil {
			s.logger.Warn("record agreed price failed", zap.String("pickup_id", string(m.PickupID)), zap.Error(err))
		}
	}
	s.logger.Info("offer resolved",
		zap.String("message_id", string(m.ID)),
		zap.String("pickup_id", string(m.PickupID)),
		zap.String("status", string(to)))
	return m, nil
}

// participant admits the owning client and the current assignee.
func (s *Service) participant(ctx context.Context, actor access.Actor, pickupID types.ID) (*pickup.Pickup, error) {
	if actor.ID == "" {
		return nil, access.ErrAccessDenied
	}
	p, err := s.pickups.Lookup(ctx, pickupID)
	if err != nil {
		return nil, err
	}
	if p.ClientID != actor.ID && !p.IsAssignedTo(actor.ID) {
		return nil, access.ErrAccessDenied
	}
	return p, nil
}
