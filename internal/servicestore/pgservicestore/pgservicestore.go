// Package pgservicestore provides a Postgres-backed implementation of driver.ServiceStore.
package pgservicestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hookdeck/hostnode/internal/idgen"
	"github.com/hookdeck/hostnode/internal/servicestore/driver"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

const selectColumns = `id, host, binary_name, topic, report_count, availability_zone, created_at, updated_at`

type store struct {
	db  *pgxpool.Pool
	now func() time.Time
}

var _ driver.ServiceStore = (*store)(nil)

// Option configures a pgservicestore.
type Option func(*store)

// WithClock overrides the time source used for CreatedAt/UpdatedAt.
func WithClock(now func() time.Time) Option {
	return func(s *store) {
		s.now = now
	}
}

// New creates a new Postgres-backed ServiceStore.
func New(db *pgxpool.Pool, opts ...Option) driver.ServiceStore {
	s := &store{
		db:  db,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *store) Init(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *store) Get(ctx context.Context, id string) (*driver.Registration, error) {
	row := s.db.QueryRow(ctx, `SELECT `+selectColumns+` FROM services WHERE id = $1`, id)
	return scanRegistration(row)
}

func (s *store) GetByArgs(ctx context.Context, host, binary string) (*driver.Registration, error) {
	row := s.db.QueryRow(ctx, `SELECT `+selectColumns+` FROM services WHERE host = $1 AND binary_name = $2`, host, binary)
	return scanRegistration(row)
}

func (s *store) Create(ctx context.Context, reg driver.Registration) (*driver.Registration, error) {
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	if reg.ID == "" {
		reg.ID = idgen.Registration()
	}
	now := s.now().UTC().Truncate(time.Microsecond)
	reg.CreatedAt = now
	reg.UpdatedAt = now

	_, err := s.db.Exec(ctx, `
		INSERT INTO services (id, host, binary_name, topic, report_count, availability_zone, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		reg.ID, reg.Host, reg.Binary, reg.Topic, reg.ReportCount, reg.AvailabilityZone, reg.CreatedAt, reg.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, driver.ErrDuplicateService
		}
		return nil, fmt.Errorf("insert service: %w", err)
	}
	return &reg, nil
}

func (s *store) Update(ctx context.Context, id string, update driver.ServiceUpdate) (*driver.Registration, error) {
	sets := []string{"updated_at = $2"}
	args := []any{id, s.now().UTC().Truncate(time.Microsecond)}
	if update.ReportCount != nil {
		args = append(args, *update.ReportCount)
		sets = append(sets, fmt.Sprintf("report_count = $%d", len(args)))
	}
	if update.AvailabilityZone != nil {
		args = append(args, *update.AvailabilityZone)
		sets = append(sets, fmt.Sprintf("availability_zone = $%d", len(args)))
	}

	row := s.db.QueryRow(ctx,
		`UPDATE services SET `+strings.Join(sets, ", ")+` WHERE id = $1 RETURNING `+selectColumns,
		args...,
	)
	return scanRegistration(row)
}

func (s *store) Delete(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM services WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete service: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return driver.ErrServiceNotFound
	}
	return nil
}

func (s *store) List(ctx context.Context, req driver.ListRequest) ([]driver.Registration, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+selectColumns+` FROM services
		WHERE ($1 = '' OR topic = $1) AND ($2 = '' OR host = $2)
		ORDER BY host, binary_name`,
		req.Topic, req.Host,
	)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	defer rows.Close()

	out := []driver.Registration{}
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *reg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	return out, nil
}

func scanRegistration(row pgx.Row) (*driver.Registration, error) {
	var reg driver.Registration
	err := row.Scan(
		&reg.ID,
		&reg.Host,
		&reg.Binary,
		&reg.Topic,
		&reg.ReportCount,
		&reg.AvailabilityZone,
		&reg.CreatedAt,
		&reg.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, driver.ErrServiceNotFound
		}
		return nil, fmt.Errorf("scan service: %w", err)
	}
	reg.CreatedAt = reg.CreatedAt.UTC()
	reg.UpdatedAt = reg.UpdatedAt.UTC()
	return &reg, nil
}
