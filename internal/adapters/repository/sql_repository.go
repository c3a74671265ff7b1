package repository

import (
	"context"
	"database/sql"

	"github.com/cklob23/talus-sign-in-app-sub000/internal/core/domain"
	"github.com/cklob23/talus-sign-in-app-sub000/internal/core/ports"
)

// SQLRepository is the PostgreSQL adapter behind every persistence port the
// kiosk workflow consumes.
type SQLRepository struct {
	db *sql.DB
}

var (
	_ ports.DirectoryRepository = (*SQLRepository)(nil)
	_ ports.VisitorRepository   = (*SQLRepository)(nil)
	_ ports.TrainingRepository  = (*SQLRepository)(nil)
	_ ports.SignInRepository    = (*SQLRepository)(nil)
	_ ports.BookingRepository   = (*SQLRepository)(nil)
	_ ports.EmployeeRepository  = (*SQLRepository)(nil)
	_ ports.OperatorRepository  = (*SQLRepository)(nil)
)

func NewSQLRepository(db *sql.DB) *SQLRepository {
	return &SQLRepository{db: db}
}

func (r *SQLRepository) ListSites(ctx context.Context) ([]domain.Site, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, latitude, longitude, timezone,
		       distance_unit, notify_hosts, print_badges, training_valid_days
		FROM sites
		ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sites []domain.Site
	for rows.Next() {
		var s domain.Site
		var lat, lon sql.NullFloat64
		var unit string
		err := rows.Scan(&s.ID, &s.Name, &lat, &lon, &s.Timezone,
			&unit, &s.Settings.NotifyHosts, &s.Settings.PrintBadges,
			&s.Settings.TrainingValidDays)
		if err != nil {
			return nil, err
		}
		s.Settings.DistanceUnit = domain.DistanceUnit(unit)
		if lat.Valid && lon.Valid {
			s.Coordinates = &domain.Coordinates{Latitude: lat.Float64, Longitude: lon.Float64}
		}
		sites = append(sites, s)
	}
	return sites, rows.Err()
}

func (r *SQLRepository) ListCategories(ctx context.Context, siteID string) ([]domain.Category, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, site_id, name, requires_training
		FROM visitor_categories
		WHERE site_id = $1
		ORDER BY name`, siteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var categories []domain.Category
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.SiteID, &c.Name, &c.RequiresTraining); err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

func (r *SQLRepository) ListHosts(ctx context.Context, siteID string) ([]domain.Host, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, site_id, full_name, email
		FROM hosts
		WHERE site_id = $1
		ORDER BY full_name`, siteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hosts []domain.Host
	for rows.Next() {
		var h domain.Host
		if err := rows.Scan(&h.ID, &h.SiteID, &h.FullName, &h.Email); err != nil {
			return nil, err
		}
		hosts = append(hosts, h)
	}
	return hosts, rows.Err()
}

func (r *SQLRepository) FindHost(ctx context.Context, hostID string) (*domain.Host, error) {
	var h domain.Host
	err := r.db.QueryRowContext(ctx,
		"SELECT id, site_id, full_name, email FROM hosts WHERE id = $1",
		hostID,
	).Scan(&h.ID, &h.SiteID, &h.FullName, &h.Email)
	if err == sql.ErrNoRows {
		return nil, domain.Errf(domain.NotFound, "repository.host", "host %q not found", hostID)
	}
	if err != nil {
		return nil, err
	}
	return &h, nil
}

func (r *SQLRepository) FindEmployeeByEmail(ctx context.Context, email string) (*domain.Employee, error) {
	var e domain.Employee
	var avatar sql.NullString
	err := r.db.QueryRowContext(ctx, `
		SELECT id, email, full_name, site_id, role, avatar_url
		FROM employees
		WHERE lower(email) = lower($1)`,
		email,
	).Scan(&e.ID, &e.Email, &e.FullName, &e.SiteID, &e.Role, &avatar)
	if err == sql.ErrNoRows {
		return nil, domain.Errf(domain.NotFound, "repository.employee", "no employee for %q", email)
	}
	if err != nil {
		return nil, err
	}
	e.AvatarURL = avatar.String
	return &e, nil
}

func (r *SQLRepository) FindOperatorByEmail(ctx context.Context, email string) (*domain.Operator, string, error) {
	var o domain.Operator
	var codeHash string
	err := r.db.QueryRowContext(ctx, `
		SELECT id, email, full_name, site_id, access_code_hash
		FROM operators
		WHERE lower(email) = lower($1)`,
		email,
	).Scan(&o.ID, &o.Email, &o.FullName, &o.SiteID, &codeHash)
	if err == sql.ErrNoRows {
		return nil, "", domain.Errf(domain.NotFound, "repository.operator", "no operator for %q", email)
	}
	if err != nil {
		return nil, "", err
	}
	return &o, codeHash, nil
}
