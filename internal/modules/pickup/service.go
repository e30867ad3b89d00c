// README: Pickup service implements the lifecycle transitions, OTP confirmation and vendor pool.
package pickup

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"scrapyard/internal/access"
	"scrapyard/internal/modules/account"
	"scrapyard/internal/modules/otp"
	"scrapyard/internal/modules/pricing"
	"scrapyard/internal/types"
)

const otpLength = 6

var (
	ErrInvalidState = errors.New("invalid state transition")
	ErrNotFound     = errors.New("pickup not found")
	ErrConflict     = errors.New("pickup state conflict")
	// ErrUnavailable is returned to vendors that lose the accept race or target a pickup outside the pool.
	ErrUnavailable     = errors.New("pickup no longer available")
	ErrInvalidCode     = errors.New("invalid otp")
	ErrCodeExpired     = errors.New("otp expired")
	ErrTooManyAttempts = errors.New("too many otp attempts, try again later")
	// ErrDispatch wraps a failed code delivery; the contact details are already saved.
	ErrDispatch = errors.New("otp dispatch failed")
)

// Repository persists pickups. Every mutating call is a compare-and-set on
// (id, status, status_version) and reports false when the row moved on.
type Repository interface {
	Create(ctx context.Context, p *Pickup) error
	Get(ctx context.Context, id types.ID) (*Pickup, error)
	UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int, assignee *types.ID) (bool, error)
	SetContact(ctx context.Context, id types.ID, version int, c ContactUpdate) (bool, error)
	ConfirmPhone(ctx context.Context, id types.ID, version int) (bool, error)
	SetAgreedPrice(ctx context.Context, id types.ID, price types.Money) error
	AppendEvent(ctx context.Context, e *Event) error
	ListByClient(ctx context.Context, clientID types.ID) ([]*Pickup, error)
	ListAvailable(ctx context.Context) ([]*Pickup, error)
	ListByVendor(ctx context.Context, vendorID types.ID) ([]*Pickup, error)
}

type ContactUpdate struct {
	Name      string
	Phone     string
	Code      string
	ExpiresAt time.Time
}

type Pricing interface {
	Estimate(ctx context.Context, category string, quantityKg float64) (types.Money, error)
}

type Profiles interface {
	Profile(ctx context.Context, id types.ID) (account.Profile, error)
}

type Geocoder interface {
	Geocode(ctx context.Context, address string) (types.Point, error)
}

type CodeDelivery interface {
	DeliverCode(ctx context.Context, phone, code string) error
}

// AttemptLimiter counts verify attempts per key within a window.
type AttemptLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

type Notifier interface {
	Notify(ctx context.Context, to types.ID, title, body string, data map[string]string) error
}

// Deps are the optional collaborators; any nil entry disables its feature.
type Deps struct {
	Pricing  Pricing
	Profiles Profiles
	Geocoder Geocoder
	Codes    CodeDelivery
	Notifier Notifier
	Attempts AttemptLimiter
	CodeTTL  time.Duration
}

type Service struct {
	repo     Repository
	pricing  Pricing
	profiles Profiles
	geocoder Geocoder
	codes    CodeDelivery
	notifier Notifier
	attempts AttemptLimiter
	codeTTL  time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

func NewService(repo Repository, deps Deps, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := deps.CodeTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Service{
		repo:     repo,
		pricing:  deps.Pricing,
		profiles: deps.Profiles,
		geocoder: deps.Geocoder,
		codes:    deps.Codes,
		notifier: deps.Notifier,
		attempts: deps.Attempts,
		codeTTL:  ttl,
		logger:   logger,
		now:      time.Now,
	}
}

type CreateCommand struct {
	Address      string
	Location     *types.Point
	Date         time.Time
	TimeSlot     string
	Category     string
	QuantityKg   float64
	ImageKey     string
	ContactName  string
	ContactPhone string
}

type SubmitContactCommand struct {
	PickupID types.ID
	Name     string
	Phone    string
}

type VerifyOTPCommand struct {
	PickupID types.ID
	Code     string
}

// ContactResult carries the issued code so development setups can surface it.
type ContactResult struct {
	Pickup *Pickup
	Code   string
}

func (s *Service) Create(ctx context.Context, actor access.Actor, cmd CreateCommand) (*Pickup, error) {
	if err := access.Require(actor, access.RoleClient); err != nil {
		return nil, err
	}
	fields := types.FieldErrors{}
	if strings.TrimSpace(cmd.Address) == "" {
		fields.Add("address", "this field is required")
	}
	if cmd.Date.IsZero() {
		fields.Add("date", "this field is required")
	}
	if strings.TrimSpace(cmd.TimeSlot) == "" {
		fields.Add("time_slot", "this field is required")
	}
	if strings.TrimSpace(cmd.Category) == "" {
		fields.Add("category", "this field is required")
	}
	if cmd.QuantityKg < 0 {
		fields.Add("quantity_kg", "must not be negative")
	}
	if cmd.Location != nil && !cmd.Location.Valid() {
		fields.Add("latitude", "coordinates out of range")
	}
	if err := fields.Err(); err != nil {
		return nil, err
	}

	now := s.now()
	p := &Pickup{
		ID:           types.NewID(),
		ClientID:     actor.ID,
		Address:      strings.TrimSpace(cmd.Address),
		Date:         cmd.Date,
		TimeSlot:     strings.TrimSpace(cmd.TimeSlot),
		Category:     strings.ToLower(strings.TrimSpace(cmd.Category)),
		QuantityKg:   cmd.QuantityKg,
		ImageKey:     cmd.ImageKey,
		ContactName:  strings.TrimSpace(cmd.ContactName),
		ContactPhone: strings.TrimSpace(cmd.ContactPhone),
		Status:       StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if s.pricing != nil {
		est, err := s.pricing.Estimate(ctx, p.Category, p.QuantityKg)
		if err != nil {
			var fe types.FieldErrors
			switch {
			case errors.As(err, &fe):
				return nil, fe
			case errors.Is(err, pricing.ErrUnknownCategory):
				return nil, types.FieldErrors{"category": err.Error()}
			}
			return nil, err
		}
		p.EstimatedPrice = &est
	}

	if cmd.Location != nil {
		p.Latitude, p.Longitude = &cmd.Location.Lat, &cmd.Location.Lng
	} else if s.geocoder != nil {
		if pt, err := s.geocoder.Geocode(ctx, p.Address); err == nil {
			p.Latitude, p.Longitude = &pt.Lat, &pt.Lng
		} else {
			s.logger.Warn("geocode pickup address failed", zap.String("pickup_id", string(p.ID)), zap.Error(err))
		}
	}

	autoConfirm := false
	if s.profiles != nil {
		prof, err := s.profiles.Profile(ctx, actor.ID)
		if err != nil {
			s.logger.Warn("load client profile failed", zap.String("client_id", string(actor.ID)), zap.Error(err))
		} else {
			if p.ContactName == "" {
				p.ContactName = prof.FullName
			}
			if p.ContactPhone == "" {
				p.ContactPhone = prof.PhoneNumber
			}
			autoConfirm = prof.IsPhoneVerified && p.ContactPhone != "" && samePhone(p.ContactPhone, prof.PhoneNumber)
		}
	}
	if autoConfirm {
		p.Status = StatusConfirmed
		p.IsPhoneVerified = true
	}

	if err := s.repo.Create(ctx, p); err != nil {
		return nil, err
	}
	s.appendEvent(ctx, p.ID, StatusNone, StatusPending, ActorClient, &actor.ID)
	if autoConfirm {
		s.appendEvent(ctx, p.ID, StatusPending, StatusConfirmed, ActorSystem, nil)
	}
	s.logger.Info("pickup created",
		zap.String("pickup_id", string(p.ID)),
		zap.String("client_id", string(actor.ID)),
		zap.String("status", string(p.Status)))
	return p, nil
}

// SubmitContact stores the contact details and a fresh code, then dispatches
// the code. When dispatch fails the details stay saved and the error wraps ErrDispatch.
func (s *Service) SubmitContact(ctx context.Context, actor access.Actor, cmd SubmitContactCommand) (ContactResult, error) {
	if err := access.Require(actor, access.RoleClient); err != nil {
		return ContactResult{}, err
	}
	phone := strings.TrimSpace(cmd.Phone)
	if phone == "" {
		return ContactResult{}, types.FieldErrors{"contact_phone": "this field is required"}
	}
	p, err := s.owned(ctx, actor, cmd.PickupID)
	if err != nil {
		return ContactResult{}, err
	}
	if p.Status != StatusPending {
		return ContactResult{}, ErrInvalidState
	}

	code := otp.GenerateCode(otpLength)
	upd := ContactUpdate{
		Name:      strings.TrimSpace(cmd.Name),
		Phone:     phone,
		Code:      code,
		ExpiresAt: s.now().Add(s.codeTTL),
	}
	ok, err := s.repo.SetContact(ctx, p.ID, p.StatusVersion, upd)
	if err != nil {
		return ContactResult{}, err
	}
	if !ok {
		return ContactResult{}, ErrConflict
	}
	p.ContactName, p.ContactPhone = upd.Name, upd.Phone
	p.OTPCode, p.OTPExpiresAt = code, &upd.ExpiresAt
	p.StatusVersion++
	res := ContactResult{Pickup: p, Code: code}

	if s.codes == nil {
		return res, ErrDispatch
	}
	if err := s.codes.DeliverCode(ctx, phone, code); err != nil {
		s.logger.Warn("pickup otp dispatch failed", zap.String("pickup_id", string(p.ID)), zap.Error(err))
		return res, fmt.Errorf("%w: %w", ErrDispatch, err)
	}
	return res, nil
}

// VerifyOTP needs no session: possession of the pickup id and code is the credential.
func (s *Service) VerifyOTP(ctx context.Context, cmd VerifyOTPCommand) (*Pickup, error) {
	code := strings.TrimSpace(cmd.Code)
	if code == "" {
		return nil, types.FieldErrors{"otp": "this field is required"}
	}
	p, err := s.repo.Get(ctx, cmd.PickupID)
	if err != nil {
		return nil, err
	}
	if p.Status != StatusPending {
		return nil, ErrInvalidState
	}
	if s.attempts != nil {
		ok, err := s.attempts.Allow(ctx, "pickup:"+string(p.ID))
		if err != nil {
			s.logger.Warn("otp attempt check failed", zap.String("pickup_id", string(p.ID)), zap.Error(err))
		} else if !ok {
			return nil, ErrTooManyAttempts
		}
	}
	if p.OTPCode == "" || subtle.ConstantTimeCompare([]byte(p.OTPCode), []byte(code)) != 1 {
		return nil, ErrInvalidCode
	}
	if p.OTPExpiresAt != nil && s.now().After(*p.OTPExpiresAt) {
		return nil, ErrCodeExpired
	}
	ok, err := s.repo.ConfirmPhone(ctx, p.ID, p.StatusVersion)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConflict
	}
	s.appendEvent(ctx, p.ID, StatusPending, StatusConfirmed, ActorClient, nil)
	p.Status = StatusConfirmed
	p.StatusVersion++
	p.IsPhoneVerified = true
	p.OTPCode, p.OTPExpiresAt = "", nil
	return p, nil
}

// Accept claims a pooled pickup. Exactly one of several racing vendors wins;
// the others get ErrUnavailable.
func (s *Service) Accept(ctx context.Context, actor access.Actor, id types.ID) (*Pickup, error) {
	if err := access.Require(actor, access.RoleSeller); err != nil {
		return nil, err
	}
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.ClientID == actor.ID {
		return nil, access.ErrAccessDenied
	}
	if !p.InPool() {
		return nil, ErrUnavailable
	}
	vendor := actor.ID
	if err := s.transition(ctx, p, StatusVendorAccepted, &vendor, ActorVendor, actor.ID); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, ErrUnavailable
		}
		return nil, err
	}
	s.notify(ctx, p.ClientID, p, "Pickup accepted", "A vendor accepted your pickup request.")
	return p, nil
}

// Release hands an accepted pickup back to the pool.
func (s *Service) Release(ctx context.Context, actor access.Actor, id types.ID) (*Pickup, error) {
	p, err := s.assigned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if p.Status != StatusVendorAccepted {
		return nil, ErrInvalidState
	}
	if err := s.transition(ctx, p, StatusConfirmed, nil, ActorVendor, actor.ID); err != nil {
		return nil, err
	}
	s.notify(ctx, p.ClientID, p, "Vendor released pickup", "Your pickup is back in the pool.")
	return p, nil
}

func (s *Service) Approve(ctx context.Context, actor access.Actor, id types.ID) (*Pickup, error) {
	p, err := s.owned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if p.Status != StatusVendorAccepted || p.AssignedTo == nil {
		return nil, ErrInvalidState
	}
	vendor := *p.AssignedTo
	if err := s.transition(ctx, p, StatusScheduled, &vendor, ActorClient, actor.ID); err != nil {
		return nil, err
	}
	s.notify(ctx, vendor, p, "Pickup scheduled", "The client approved your pickup.")
	return p, nil
}

// Reject sends the vendor away and returns the pickup to the pool.
func (s *Service) Reject(ctx context.Context, actor access.Actor, id types.ID) (*Pickup, error) {
	p, err := s.owned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if p.Status != StatusVendorAccepted {
		return nil, ErrInvalidState
	}
	var former types.ID
	if p.AssignedTo != nil {
		former = *p.AssignedTo
	}
	if err := s.transition(ctx, p, StatusConfirmed, nil, ActorClient, actor.ID); err != nil {
		return nil, err
	}
	if former != "" {
		s.notify(ctx, former, p, "Pickup declined", "The client declined your acceptance.")
	}
	return p, nil
}

func (s *Service) Cancel(ctx context.Context, actor access.Actor, id types.ID) (*Pickup, error) {
	p, err := s.owned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if p.Status != StatusPending {
		return nil, ErrInvalidState
	}
	if err := s.transition(ctx, p, StatusCancelled, nil, ActorClient, actor.ID); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) Complete(ctx context.Context, actor access.Actor, id types.ID) (*Pickup, error) {
	p, err := s.assigned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if p.Status != StatusScheduled {
		return nil, ErrInvalidState
	}
	vendor := actor.ID
	if err := s.transition(ctx, p, StatusCompleted, &vendor, ActorVendor, actor.ID); err != nil {
		return nil, err
	}
	s.notify(ctx, p.ClientID, p, "Pickup completed", "Your scrap has been collected.")
	return p, nil
}

// Get returns a pickup to its owner, its assignee, or any vendor while it sits in the pool.
func (s *Service) Get(ctx context.Context, actor access.Actor, id types.ID) (*Pickup, error) {
	if actor.ID == "" {
		return nil, access.ErrAccessDenied
	}
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch {
	case p.ClientID == actor.ID, p.IsAssignedTo(actor.ID):
		return p, nil
	case actor.IsSeller && p.InPool():
		return p, nil
	}
	return nil, ErrNotFound
}

// Lookup loads a pickup without caller checks, for modules that apply their own policy.
func (s *Service) Lookup(ctx context.Context, id types.ID) (*Pickup, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) ListByClient(ctx context.Context, actor access.Actor) ([]*Pickup, error) {
	if err := access.Require(actor, access.RoleClient); err != nil {
		return nil, err
	}
	return s.repo.ListByClient(ctx, actor.ID)
}

// ListAvailable is the vendor pool: confirmed, unassigned, newest first.
func (s *Service) ListAvailable(ctx context.Context, actor access.Actor) ([]*Pickup, error) {
	if err := access.Require(actor, access.RoleSeller); err != nil {
		return nil, err
	}
	return s.repo.ListAvailable(ctx)
}

// ListByVendor is the vendor's queue ordered by most recent update.
func (s *Service) ListByVendor(ctx context.Context, actor access.Actor) ([]*Pickup, error) {
	if err := access.Require(actor, access.RoleSeller); err != nil {
		return nil, err
	}
	return s.repo.ListByVendor(ctx, actor.ID)
}

func (s *Service) RecordAgreedPrice(ctx context.Context, id types.ID, price types.Money) error {
	if price.Amount < 0 {
		return types.FieldErrors{"amount": "must not be negative"}
	}
	if price.Currency == "" {
		price.Currency = types.DefaultCurrency
	}
	return s.repo.SetAgreedPrice(ctx, id, price)
}

// owned loads a pickup for its client; other callers see ErrNotFound.
func (s *Service) owned(ctx context.Context, actor access.Actor, id types.ID) (*Pickup, error) {
	if err := access.Require(actor, access.RoleClient); err != nil {
		return nil, err
	}
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.ClientID != actor.ID {
		return nil, ErrNotFound
	}
	return p, nil
}

// assigned loads a pickup for its current vendor; other callers see ErrNotFound.
func (s *Service) assigned(ctx context.Context, actor access.Actor, id types.ID) (*Pickup, error) {
	if err := access.Require(actor, access.RoleSeller); err != nil {
		return nil, err
	}
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.IsAssignedTo(actor.ID) {
		return nil, ErrNotFound
	}
	return p, nil
}

func (s *Service) transition(ctx context.Context, p *Pickup, to Status, assignee *types.ID, actorType string, actorID types.ID) error {
	if !CanTransition(p.Status, to) {
		return ErrInvalidState
	}
	if assignee != nil && !assigneeAllowed(to) {
		return ErrInvalidState
	}
	ok, err := s.repo.UpdateStatus(ctx, p.ID, p.Status, to, p.StatusVersion, assignee)
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	from := p.Status
	s.appendEvent(ctx, p.ID, from, to, actorType, &actorID)

	now := s.now()
	p.Status = to
	p.StatusVersion++
	p.AssignedTo = assignee
	p.UpdatedAt = now
	switch to {
	case StatusVendorAccepted:
		p.AcceptedAt = &now
	case StatusScheduled:
		p.ScheduledAt = &now
	case StatusCompleted:
		p.CompletedAt = &now
	case StatusCancelled:
		p.CancelledAt = &now
	}
	s.logger.Info("pickup transition",
		zap.String("pickup_id", string(p.ID)),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("actor_type", actorType))
	return nil
}

func (s *Service) appendEvent(ctx context.Context, id types.ID, from, to Status, actorType string, actorID *types.ID) {
	err := s.repo.AppendEvent(ctx, &Event{
		PickupID:   id,
		FromStatus: from,
		ToStatus:   to,
		ActorType:  actorType,
		ActorID:    actorID,
		CreatedAt:  s.now(),
	})
	if err != nil {
		s.logger.Warn("append pickup event failed", zap.String("pickup_id", string(id)), zap.Error(err))
	}
}

func (s *Service) notify(ctx context.Context, to types.ID, p *Pickup, title, body string) {
	if s.notifier == nil || to == "" {
		return
	}
	data := map[string]string{"pickup_id": string(p.ID), "status": string(p.Status)}
	if err := s.notifier.Notify(ctx, to, title, body, data); err != nil {
		s.logger.Warn("pickup notification failed",
			zap.String("pickup_id", string(p.ID)),
			zap.String("recipient", string(to)),
			zap.Error(err))
	}
}

func samePhone(a, b string) bool {
	return otp.NormalizeContact(a, otp.ChannelSMS, "") == otp.NormalizeContact(b, otp.ChannelSMS, "")
}
