// README: Pickup store backed by PostgreSQL; transitions are optimistic compare-and-set updates.
package pickup

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"scrapyard/internal/types"
)

const pickupColumns = `
	id, client_id, address, latitude, longitude, pickup_date, time_slot,
	category, quantity_kg, estimated_price, agreed_price, currency, image_key,
	contact_name, contact_phone, is_phone_verified, otp_code, otp_expires_at,
	assigned_to, status, status_version,
	created_at, updated_at, accepted_at, scheduled_at, completed_at, cancelled_at`

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Create(ctx context.Context, p *Pickup) error {
	currency := types.DefaultCurrency
	if p.EstimatedPrice != nil && p.EstimatedPrice.Currency != "" {
		currency = p.EstimatedPrice.Currency
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO pickup_requests (
			id, client_id, address, latitude, longitude, pickup_date, time_slot,
			category, quantity_kg, estimated_price, currency, image_key,
			contact_name, contact_phone, is_phone_verified,
			status, status_version, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11, $12,
			$13, $14, $15,
			$16, $17, $18, $19
		)`,
		string(p.ID), string(p.ClientID), p.Address, p.Latitude, p.Longitude, p.Date, p.TimeSlot,
		p.Category, p.QuantityKg, moneyAmount(p.EstimatedPrice), currency, p.ImageKey,
		p.ContactName, p.ContactPhone, p.IsPhoneVerified,
		string(p.Status), p.StatusVersion, p.CreatedAt, p.UpdatedAt,
	)
	return err
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Pickup, error) {
	return scanPickup(s.db.QueryRow(ctx, `SELECT `+pickupColumns+` FROM pickup_requests WHERE id = $1`, string(id)))
}

// UpdateStatus sets status and assignee (nil clears it) when the row still
// has the expected status and version.
func (s *Store) UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int, assignee *types.ID) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE pickup_requests
		SET status = $1,
			status_version = status_version + 1,
			assigned_to = $2,
			updated_at = NOW(),
			accepted_at = CASE WHEN $1 = 'vendor_accepted' THEN NOW() ELSE accepted_at END,
			scheduled_at = CASE WHEN $1 = 'scheduled' THEN NOW() ELSE scheduled_at END,
			completed_at = CASE WHEN $1 = 'completed' THEN NOW() ELSE completed_at END,
			cancelled_at = CASE WHEN $1 = 'cancelled' THEN NOW() ELSE cancelled_at END
		WHERE id = $3 AND status = $4 AND status_version = $5`,
		string(to),
		idPtr(assignee),
		string(id),
		string(from),
		version,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) SetContact(ctx context.Context, id types.ID, version int, c ContactUpdate) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE pickup_requests
		SET contact_name = $1,
			contact_phone = $2,
			otp_code = $3,
			otp_expires_at = $4,
			status_version = status_version + 1,
			updated_at = NOW()
		WHERE id = $5 AND status = 'pending' AND status_version = $6`,
		c.Name, c.Phone, c.Code, c.ExpiresAt, string(id), version,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) ConfirmPhone(ctx context.Context, id types.ID, version int) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE pickup_requests
		SET status = 'confirmed',
			is_phone_verified = TRUE,
			otp_code = NULL,
			otp_expires_at = NULL,
			status_version = status_version + 1,
			updated_at = NOW()
		WHERE id = $1 AND status = 'pending' AND status_version = $2`,
		string(id), version,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) SetAgreedPrice(ctx context.Context, id types.ID, price types.Money) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE pickup_requests
		SET agreed_price = $1, currency = $2, updated_at = NOW()
		WHERE id = $3`,
		price.Amount, price.Currency, string(id),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) AppendEvent(ctx context.Context, e *Event) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO pickup_state_events (
			pickup_id, from_status, to_status, actor_type, actor_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)`,
		string(e.PickupID),
		string(e.FromStatus),
		string(e.ToStatus),
		e.ActorType,
		idPtr(e.ActorID),
		e.CreatedAt,
	)
	return err
}

func (s *Store) ListEvents(ctx context.Context, id types.ID) ([]Event, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, pickup_id, from_status, to_status, actor_type, actor_id, created_at
		FROM pickup_state_events WHERE pickup_id = $1 ORDER BY id`, string(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var actorID sql.NullString
		if err := rows.Scan(&e.ID, &e.PickupID, &e.FromStatus, &e.ToStatus, &e.ActorType, &actorID, &e.CreatedAt); err != nil {
			return nil, err
		}
		if actorID.Valid {
			v := types.ID(actorID.String)
			e.ActorID = &v
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) ListByClient(ctx context.Context, clientID types.ID) ([]*Pickup, error) {
	return s.list(ctx, `WHERE client_id = $1 ORDER BY created_at DESC`, string(clientID))
}

func (s *Store) ListAvailable(ctx context.Context) ([]*Pickup, error) {
	return s.list(ctx, `WHERE status = 'confirmed' AND assigned_to IS NULL ORDER BY created_at DESC`)
}

func (s *Store) ListByVendor(ctx context.Context, vendorID types.ID) ([]*Pickup, error) {
	return s.list(ctx, `WHERE assigned_to = $1 ORDER BY updated_at DESC`, string(vendorID))
}

func (s *Store) list(ctx context.Context, where string, args ...any) ([]*Pickup, error) {
	rows, err := s.db.Query(ctx, `SELECT `+pickupColumns+` FROM pickup_requests `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*Pickup{}
	for rows.Next() {
		p, err := scanPickup(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPickup(row pgx.Row) (*Pickup, error) {
	var p Pickup
	var lat, lng sql.NullFloat64
	var estimated, agreed sql.NullInt64
	var currency string
	var otpCode, assignedTo sql.NullString
	var otpExpires, acceptedAt, scheduledAt, completedAt, cancelledAt sql.NullTime

	err := row.Scan(
		&p.ID, &p.ClientID, &p.Address, &lat, &lng, &p.Date, &p.TimeSlot,
		&p.Category, &p.QuantityKg, &estimated, &agreed, &currency, &p.ImageKey,
		&p.ContactName, &p.ContactPhone, &p.IsPhoneVerified, &otpCode, &otpExpires,
		&assignedTo, &p.Status, &p.StatusVersion,
		&p.CreatedAt, &p.UpdatedAt, &acceptedAt, &scheduledAt, &completedAt, &cancelledAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if lat.Valid && lng.Valid {
		p.Latitude, p.Longitude = &lat.Float64, &lng.Float64
	}
	if estimated.Valid {
		p.EstimatedPrice = &types.Money{Amount: estimated.Int64, Currency: currency}
	}
	if agreed.Valid {
		p.AgreedPrice = &types.Money{Amount: agreed.Int64, Currency: currency}
	}
	p.OTPCode = otpCode.String
	p.OTPExpiresAt = toTimePtr(otpExpires)
	if assignedTo.Valid {
		v := types.ID(assignedTo.String)
		p.AssignedTo = &v
	}
	p.AcceptedAt = toTimePtr(acceptedAt)
	p.ScheduledAt = toTimePtr(scheduledAt)
	p.CompletedAt = toTimePtr(completedAt)
	p.CancelledAt = toTimePtr(cancelledAt)
	return &p, nil
}

func idPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func moneyAmount(v *types.Money) *int64 {
	if v == nil {
		return nil
	}
	n := v.Amount
	return &n
}

func toTimePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
