// README: Chat store backed by PostgreSQL.
package chat

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"scrapyard/internal/types"
)

const messageColumns = `
	id, pickup_id, sender_id, body, is_read, is_offer,
	offer_amount, offer_status, currency, recipient_id, created_at, resolved_at`

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Append(ctx context.Context, m *Message) error {
	var amount *int64
	var status, recipient *string
	currency := types.DefaultCurrency
	if m.IsOffer && m.OfferAmount != nil {
		amount = &m.OfferAmount.Amount
		st := string(m.OfferStatus)
		status = &st
		if m.RecipientID != nil {
			r := string(*m.RecipientID)
			recipient = &r
		}
		if m.OfferAmount.Currency != "" {
			currency = m.OfferAmount.Currency
		}
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO chat_messages (
			id, pickup_id, sender_id, body, is_read, is_offer,
			offer_amount, offer_status, currency, recipient_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		string(m.ID), string(m.PickupID), string(m.SenderID), m.Body, m.IsRead, m.IsOffer,
		amount, status, currency, recipient, m.CreatedAt,
	)
	return err
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Message, error) {
	return scanMessage(s.db.QueryRow(ctx, `SELECT `+messageColumns+` FROM chat_messages WHERE id = $1`, string(id)))
}

func (s *Store) Thread(ctx context.Context, pickupID types.ID) ([]*Message, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+messageColumns+` FROM chat_messages
		WHERE pickup_id = $1 ORDER BY created_at, id`, string(pickupID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []*Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) MarkRead(ctx context.Context, pickupID, reader types.ID) error {
	_, err := s.db.Exec(ctx, `
		UPDATE chat_messages SET is_read = TRUE
		WHERE pickup_id = $1 AND sender_id <> $2 AND NOT is_read`,
		string(pickupID), string(reader))
	return err
}

func (s *Store) Resolve(ctx context.Context, id types.ID, status OfferStatus, at time.Time) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE chat_messages SET offer_status = $1, resolved_at = $2
		WHERE id = $3 AND is_offer AND offer_status = 'pending'`,
		string(status), at, string(id))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func scanMessage(row pgx.Row) (*Message, error) {
	var m Message
	var amount sql.NullInt64
	var status sql.NullString
	var currency string
	var recipient sql.NullString
	var resolvedAt sql.NullTime
	err := row.Scan(
		&m.ID, &m.PickupID, &m.SenderID, &m.Body, &m.IsRead, &m.IsOffer,
		&amount, &status, &currency, &recipient, &m.CreatedAt, &resolvedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if amount.Valid {
		m.OfferAmount = &types.Money{Amount: amount.Int64, Currency: currency}
	}
	m.OfferStatus = OfferStatus(status.String)
	if recipient.Valid {
		id := types.ID(recipient.String)
		m.RecipientID = &id
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		m.ResolvedAt = &t
	}
	return &m, nil
}
