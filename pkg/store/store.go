// Package store persists completed-session history in Postgres. It
// implements the gateway's Recorder interface; the engine itself never
// touches it.
package store

import (
	"context"
	"embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/fixpilot-ai/fixpilot/pkg/gateway/live/session"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type Store struct {
	pool *pgxpool.Pool
}

// Open connects, pings, and applies pending migrations.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	s := &Store{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	db := stdlib.OpenDBFromPool(s.pool)
	defer db.Close()
	return goose.UpContext(ctx, db, "migrations")
}

func (s *Store) Close() {
	s.pool.Close()
}

// SessionStarted implements session.Recorder.
func (s *Store) SessionStarted(ctx context.Context, start session.HistoryStart) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO repair_sessions (id, principal, category, problem, started_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING`,
		start.SessionID, start.Principal, start.Category, start.Problem, start.StartedAt,
	)
	return err
}

// StepAdvanced implements session.Recorder. Progress only moves forward;
// a late or replayed update never regresses the row.
func (s *Store) StepAdvanced(ctx context.Context, sessionID string, stepIndex, planRevision int) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE repair_sessions
		SET steps_completed = GREATEST(steps_completed, $2),
		    plan_revision = GREATEST(plan_revision, $3)
		WHERE id = $1`,
		sessionID, stepIndex, planRevision,
	)
	return err
}

// SessionEnded implements session.Recorder.
func (s *Store) SessionEnded(ctx context.Context, end session.HistoryEnd) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE repair_sessions
		SET ended_at = $2,
		    end_reason = $3,
		    steps_completed = GREATEST(steps_completed, $4),
		    total_steps = $5,
		    plan_revision = GREATEST(plan_revision, $6),
		    substitutions = $7
		WHERE id = $1`,
		end.SessionID, end.EndedAt, end.Reason, end.StepsCompleted, end.TotalSteps, end.PlanRevision, end.Substitutions,
	)
	return err
}
