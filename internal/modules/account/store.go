// README: Account store backed by PostgreSQL; register-or-merge runs under a row lock.
package account

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"scrapyard/internal/modules/otp"
	"scrapyard/internal/types"
)

// ErrConflict is returned when a concurrent registration keeps winning the insert race.
var ErrConflict = errors.New("account registration conflict")

const accountColumns = `
	id, email, password_hash, full_name, phone_number, address, city,
	is_client, is_seller, is_verified, is_phone_verified, is_email_verified,
	business_name, business_type, operating_areas, scrape_types,
	id_proof, vendor_id_proof, business_license, gst_certificate, address_proof,
	created_at, updated_at`

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Upsert(ctx context.Context, email string, fn func(existing *Account) (*Account, error)) (*Account, error) {
	for attempt := 0; attempt < 3; attempt++ {
		acc, inserted, err := s.upsertOnce(ctx, email, fn)
		if err != nil {
			return nil, err
		}
		if inserted || acc != nil {
			return acc, nil
		}
	}
	return nil, ErrConflict
}

// upsertOnce returns (nil, false, nil) when another transaction created the
// email between our lookup and insert; the caller retries and merges instead.
func (s *Store) upsertOnce(ctx context.Context, email string, fn func(existing *Account) (*Account, error)) (*Account, bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	existing, err := scanAccount(tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1 FOR UPDATE`, email))
	if errors.Is(err, ErrNotFound) {
		existing = nil
	} else if err != nil {
		return nil, false, err
	}

	next, err := fn(existing)
	if err != nil {
		return nil, false, err
	}

	if existing == nil {
		tag, err := tx.Exec(ctx, `
			INSERT INTO accounts (`+accountColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
			        $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)
			ON CONFLICT (email) DO NOTHING`, accountArgs(next)...)
		if err != nil {
			return nil, false, fmt.Errorf("insert account: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil, false, nil
		}
	} else {
		_, err := tx.Exec(ctx, `
			UPDATE accounts SET
				full_name = $2, phone_number = $3, address = $4, city = $5,
				is_client = $6, is_seller = $7,
				business_name = $8, business_type = $9, operating_areas = $10, scrape_types = $11,
				id_proof = $12, vendor_id_proof = $13, business_license = $14,
				gst_certificate = $15, address_proof = $16, updated_at = $17,
				is_verified = $18, is_phone_verified = $19
			WHERE id = $1`,
			string(next.ID), next.FullName, next.PhoneNumber, next.Address, next.City,
			next.IsClient, next.IsSeller,
			next.BusinessName, next.BusinessType, next.OperatingAreas, next.ScrapeTypes,
			next.Documents.IDProof, next.Documents.VendorIDProof, next.Documents.BusinessLicense,
			next.Documents.GSTCertificate, next.Documents.AddressProof, next.UpdatedAt,
			next.IsVerified, next.IsPhoneVerified,
		)
		if err != nil {
			return nil, false, fmt.Errorf("update account: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, false, fmt.Errorf("commit: %w", err)
	}
	return next, existing == nil, nil
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Account, error) {
	return scanAccount(s.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, string(id)))
}

func (s *Store) GetByEmail(ctx context.Context, email string) (*Account, error) {
	return scanAccount(s.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE email = $1`, email))
}

func (s *Store) MarkVerified(ctx context.Context, id types.ID, ch otp.Channel) (*Account, error) {
	phone := ch == otp.ChannelSMS
	email := ch == otp.ChannelEmail
	return scanAccount(s.db.QueryRow(ctx, `
		UPDATE accounts SET
			is_phone_verified = is_phone_verified OR $2,
			is_email_verified = is_email_verified OR $3,
			is_verified = TRUE,
			updated_at = NOW()
		WHERE id = $1
		RETURNING `+accountColumns, string(id), phone, email))
}

func accountArgs(a *Account) []any {
	return []any{
		string(a.ID), a.Email, a.PasswordHash, a.FullName, a.PhoneNumber, a.Address, a.City,
		a.IsClient, a.IsSeller, a.IsVerified, a.IsPhoneVerified, a.IsEmailVerified,
		a.BusinessName, a.BusinessType, a.OperatingAreas, a.ScrapeTypes,
		a.Documents.IDProof, a.Documents.VendorIDProof, a.Documents.BusinessLicense,
		a.Documents.GSTCertificate, a.Documents.AddressProof,
		a.CreatedAt, a.UpdatedAt,
	}
}

func scanAccount(row pgx.Row) (*Account, error) {
	var a Account
	err := row.Scan(
		&a.ID, &a.Email, &a.PasswordHash, &a.FullName, &a.PhoneNumber, &a.Address, &a.City,
		&a.IsClient, &a.IsSeller, &a.IsVerified, &a.IsPhoneVerified, &a.IsEmailVerified,
		&a.BusinessName, &a.BusinessType, &a.OperatingAreas, &a.ScrapeTypes,
		&a.Documents.IDProof, &a.Documents.VendorIDProof, &a.Documents.BusinessLicense,
		&a.Documents.GSTCertificate, &a.Documents.AddressProof,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if a.ScrapeTypes == nil {
		a.ScrapeTypes = []string{}
	}
	return &a, nil
}
