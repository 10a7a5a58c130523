package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/gyaneshwarpardhi/sentinel/internal/event"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Config holds Postgres connection settings.
type Config struct {
	URL           string
	MaxConns      int32
	RetryAttempts int
	RetryInterval time.Duration
}

// Postgres is the durable incident store. Every call acquires its own pooled
// connection and releases it before returning.
type Postgres struct {
	pool *pgxpool.Pool
}

// Connect creates a connection pool, retrying with a growing delay until the
// database answers a ping.
func Connect(ctx context.Context, cfg Config) (*Postgres, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	if cfg.RetryAttempts < 1 {
		cfg.RetryAttempts = 1
	}

	var lastErr error
	for i := 0; i < cfg.RetryAttempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, errors.Join(ErrFailedToOpenDBConnection, ctx.Err())
			case <-time.After(time.Duration(i) * cfg.RetryInterval):
			}
		}
		pool, err := pgxpool.NewWithConfig(ctx, pcfg)
		if err != nil {
			lastErr = err
			continue
		}
		pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err = pool.Ping(pingCtx)
		cancel()
		if err != nil {
			pool.Close()
			lastErr = err
			continue
		}
		return &Postgres{pool: pool}, nil
	}
	return nil, errors.Join(ErrFailedToOpenDBConnection, lastErr)
}

// Migrate applies the embedded schema migrations with goose.
func (p *Postgres) Migrate(ctx context.Context, log *slog.Logger) error {
	db := stdlib.OpenDBFromPool(p.pool)
	defer db.Close()

	goose.SetBaseFS(migrations)
	goose.SetLogger(gooseLogger{log: log})
	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Join(ErrFailedToApplyMigrations, err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return errors.Join(ErrFailedToApplyMigrations, err)
	}
	return nil
}

// InsertIncident stores a warning or critical incident.
func (p *Postgres) InsertIncident(ctx context.Context, in event.Incident) error {
	in, err := prepare(in)
	if err != nil {
		return err
	}
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
		INSERT INTO incidents (id, sensor_type, status, message, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, in.ID, string(in.SensorType), string(in.Status), in.Message, in.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert incident: %w", err)
	}
	return nil
}

// ListAdminRecipients returns the email of every active employee holding the admin role.
func (p *Postgres) ListAdminRecipients(ctx context.Context) ([]string, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
		SELECT DISTINCT e.email
		FROM employees e
		JOIN employee_roles er ON er.employee_id = e.id
		JOIN roles r           ON r.id = er.role_id
		WHERE r.name = $1
		  AND e.active
		ORDER BY e.email
	`, AdminRole)
	if err != nil {
		return nil, fmt.Errorf("query admin recipients: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, fmt.Errorf("scan admin recipient: %w", err)
		}
		out = append(out, email)
	}
	return out, rows.Err()
}

// RecentIncidents returns up to limit incidents, newest first.
func (p *Postgres) RecentIncidents(ctx context.Context, limit int) ([]event.Incident, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
		SELECT id::text, sensor_type, status, message, created_at
		FROM incidents
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query incidents: %w", err)
	}
	defer rows.Close()

	out := make([]event.Incident, 0, limit)
	for rows.Next() {
		var in event.Incident
		var sensorType, status string
		if err := rows.Scan(&in.ID, &sensorType, &status, &in.Message, &in.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		in.SensorType = event.SensorType(sensorType)
		in.Status = event.Status(status)
		out = append(out, in)
	}
	return out, rows.Err()
}

// Ping is used by the readiness endpoint.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// Close shuts down the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

// gooseLogger routes goose output through slog.
type gooseLogger struct {
	log *slog.Logger
}

func (g gooseLogger) Fatalf(format string, v ...any) {
	g.log.Error(fmt.Sprintf(format, v...))
}

func (g gooseLogger) Printf(format string, v ...any) {
	g.log.Info(fmt.Sprintf(format, v...))
}
