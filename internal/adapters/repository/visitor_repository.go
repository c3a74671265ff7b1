package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"

	"github.com/cklob23/talus-sign-in-app-sub000/internal/core/domain"
)

// Upsert creates or updates a visitor keyed by email. Idempotent: repeated
// submissions for the same email return the same stable visitor id.
func (r *SQLRepository) Upsert(ctx context.Context, draft domain.VisitorDraft) (*domain.Visitor, error) {
	var v domain.Visitor
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO visitors (id, email, full_name, phone, company, created_at)
		VALUES ($1, lower($2), $3, $4, $5, NOW())
		ON CONFLICT (email) DO UPDATE
		SET full_name = EXCLUDED.full_name,
		    phone     = EXCLUDED.phone,
		    company   = EXCLUDED.company
		RETURNING id, email, full_name, phone, company, created_at`,
		uuid.NewString(),
		strings.ToLower(draft.Email),
		draft.FullName,
		draft.Phone,
		draft.Company,
	).Scan(&v.ID, &v.Email, &v.FullName, &v.Phone, &v.Company, &v.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// Create appends a sign-in record with a server-assigned timestamp. When an
// outbox payload is supplied it is written in the same transaction so the
// host-notice relay can deliver it after commit.
func (r *SQLRepository) Create(ctx context.Context, rec domain.SignInRecord, outboxPayload []byte) (*domain.SignInRecord, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO sign_ins (id, visitor_id, site_id, category_id, host_id,
		                      booking_id, badge, type, photo_url, created_at)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''),
		        NULLIF($6, ''), NULLIF($7, ''), $8, NULLIF($9, ''), NOW())
		RETURNING created_at`,
		rec.ID, rec.VisitorID, rec.SiteID, rec.CategoryID, rec.HostID,
		rec.BookingID, rec.Badge, rec.Type, rec.PhotoURL,
	).Scan(&rec.CreatedAt)
	if err != nil {
		return nil, err
	}

	if outboxPayload != nil {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO outbox_events (id, event_type, payload, created_at)
			VALUES ($1, $2, $3, NOW())`,
			uuid.NewString(), "host_notice", outboxPayload)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &rec, nil
}

// CloseLatest resolves the most recent open sign-in for the key, scoped to
// the site when one is given. The key is a visitor email, or the employee id
// for presence records, which carry the employee id in visitor_id and have
// no visitors row; the join must stay LEFT so those rows survive it.
func (r *SQLRepository) CloseLatest(ctx context.Context, key, siteID string) (*domain.SignInRecord, error) {
	var rec domain.SignInRecord
	var badge, photoURL sql.NullString
	var signedOut sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		UPDATE sign_ins SET signed_out_at = NOW()
		WHERE id = (
			SELECT s.id
			FROM sign_ins s
			LEFT JOIN visitors v ON v.id = s.visitor_id
			WHERE (lower(v.email) = lower($1) OR s.visitor_id = $1)
			  AND ($2 = '' OR s.site_id = $2)
			  AND s.signed_out_at IS NULL
			  AND s.type = 'in'
			ORDER BY s.created_at DESC
			LIMIT 1
		)
		RETURNING id, visitor_id, site_id, badge, type, photo_url, created_at, signed_out_at`,
		key, siteID,
	).Scan(&rec.ID, &rec.VisitorID, &rec.SiteID, &badge, &rec.Type,
		&photoURL, &rec.CreatedAt, &signedOut)
	if err == sql.ErrNoRows {
		return nil, domain.Errf(domain.NotFound, "repository.sign_out",
			"no open sign-in for %q", key)
	}
	if err != nil {
		return nil, err
	}
	rec.Badge = badge.String
	rec.PhotoURL = photoURL.String
	if signedOut.Valid {
		rec.SignedOutAt = &signedOut.Time
	}
	return &rec, nil
}
