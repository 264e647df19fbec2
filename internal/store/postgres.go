package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/geraldosnetto/agro-sub002/pkg/models"
)

// PostgresRepository stores quotes in an existing "quotes" table with a
// unique constraint on (commodity, ref_date, market).
type PostgresRepository struct {
	db *sqlx.DB
}

// ConnectPostgres opens and pings the database.
func ConnectPostgres(ctx context.Context, dsn string) (*PostgresRepository, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return &PostgresRepository{db: db}, nil
}

// NewPostgresRepository wraps an open handle.
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const quoteColumns = `commodity, ref_date, value, unit, market, variation, source`

// Upsert implements QuoteRepository. Each quote runs in its own transaction
// so one bad row does not discard the rest of the batch.
func (r *PostgresRepository) Upsert(ctx context.Context, quotes []models.Quote) (UpsertStats, error) {
	var stats UpsertStats
	var errs []error
	for _, q := range quotes {
		inserted, recomputed, err := r.upsertOne(ctx, q)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !inserted {
			stats.Skipped++
			continue
		}
		stats.Inserted++
		if recomputed {
			stats.Recomputed++
		}
	}
	return stats, errors.Join(errs...)
}

func (r *PostgresRepository) upsertOne(ctx context.Context, q models.Quote) (inserted, recomputed bool, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var prev float64
	err = tx.GetContext(ctx, &prev, `
		SELECT value FROM quotes
		WHERE commodity = $1 AND market = $2 AND ref_date < $3
		ORDER BY ref_date DESC LIMIT 1`, q.Commodity, q.Market, q.Date)
	switch {
	case err == nil:
		if v := Variation(prev, q.Value); v != nil {
			q.Variation = v
		}
	case !errors.Is(err, sql.ErrNoRows):
		return false, false, fmt.Errorf("failed to read previous quote: %w", err)
	}

	res, err := tx.NamedExecContext(ctx, `
		INSERT INTO quotes (`+quoteColumns+`)
		VALUES (:commodity, :ref_date, :value, :unit, :market, :variation, :source)
		ON CONFLICT (commodity, ref_date, market) DO NOTHING`, q)
	if err != nil {
		return false, false, fmt.Errorf("failed to insert quote %s: %w", q.Key(), err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, false, nil
	}

	var next struct {
		Date  time.Time `db:"ref_date"`
		Value float64   `db:"value"`
	}
	err = tx.GetContext(ctx, &next, `
		SELECT ref_date, value FROM quotes
		WHERE commodity = $1 AND market = $2 AND ref_date > $3
		ORDER BY ref_date ASC LIMIT 1`, q.Commodity, q.Market, q.Date)
	switch {
	case err == nil:
		if _, err := tx.ExecContext(ctx, `
			UPDATE quotes SET variation = $1
			WHERE commodity = $2 AND market = $3 AND ref_date = $4`,
			Variation(q.Value, next.Value), q.Commodity, q.Market, next.Date); err != nil {
			return false, false, fmt.Errorf("failed to recompute variation: %w", err)
		}
		recomputed = true
	case !errors.Is(err, sql.ErrNoRows):
		return false, false, fmt.Errorf("failed to read next quote: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, false, fmt.Errorf("failed to commit quote %s: %w", q.Key(), err)
	}
	return true, recomputed, nil
}

// History implements QuoteRepository.
func (r *PostgresRepository) History(ctx context.Context, commodity string, since time.Time) ([]models.Quote, error) {
	var quotes []models.Quote
	err := r.db.SelectContext(ctx, &quotes, `
		SELECT `+quoteColumns+` FROM quotes
		WHERE commodity = $1 AND ref_date >= $2
		ORDER BY ref_date ASC, market ASC`, commodity, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load history for %s: %w", commodity, err)
	}
	return quotes, nil
}

// Close closes the database handle.
func (r *PostgresRepository) Close() error { return r.db.Close() }
