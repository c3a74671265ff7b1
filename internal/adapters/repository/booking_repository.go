package repository

import (
	"context"
	"database/sql"

	"github.com/cklob23/talus-sign-in-app-sub000/internal/core/domain"
)

func (r *SQLRepository) FindPendingByEmail(ctx context.Context, email string) ([]domain.Booking, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, site_id, visitor_name, visitor_email, category_id,
		       COALESCE(host_id, ''), scheduled_at, status
		FROM bookings
		WHERE lower(visitor_email) = lower($1) AND status = $2
		ORDER BY scheduled_at`,
		email, domain.BookingPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []domain.Booking
	for rows.Next() {
		var b domain.Booking
		err := rows.Scan(&b.ID, &b.SiteID, &b.VisitorName, &b.VisitorEmail,
			&b.CategoryID, &b.HostID, &b.ScheduledAt, &b.Status)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

// UpdateStatus moves a booking along its lifecycle only when it still holds
// the expected source status, guarding the pending -> checked_in ->
// completed / cancelled transitions in SQL.
func (r *SQLRepository) UpdateStatus(ctx context.Context, bookingID string, from, to domain.BookingStatus) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE bookings SET status = $3 WHERE id = $1 AND status = $2",
		bookingID, from, to)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.Errf(domain.NotFound, "repository.booking",
			"booking %q not in status %q", bookingID, from)
	}
	return nil
}

func (r *SQLRepository) FindCompletionByEmail(ctx context.Context, email, categoryID string) (*domain.TrainingCompletion, error) {
	return r.scanCompletion(r.db.QueryRowContext(ctx, `
		SELECT t.visitor_id, t.category_id, t.completed_at, t.expires_at
		FROM training_completions t
		JOIN visitors v ON v.id = t.visitor_id
		WHERE lower(v.email) = lower($1) AND t.category_id = $2
		ORDER BY t.completed_at DESC
		LIMIT 1`,
		email, categoryID))
}

func (r *SQLRepository) scanCompletion(row *sql.Row) (*domain.TrainingCompletion, error) {
	var c domain.TrainingCompletion
	err := row.Scan(&c.VisitorID, &c.CategoryID, &c.CompletedAt, &c.ExpiresAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *SQLRepository) RecordCompletion(ctx context.Context, completion domain.TrainingCompletion) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO training_completions (visitor_id, category_id, completed_at, expires_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (visitor_id, category_id) DO UPDATE
		SET completed_at = EXCLUDED.completed_at,
		    expires_at   = EXCLUDED.expires_at`,
		completion.VisitorID, completion.CategoryID,
		completion.CompletedAt, completion.ExpiresAt)
	return err
}
