// Package ledger persists claim runs and per-device attempts in Postgres.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"fabricclaim/pkg/db"
	"fabricclaim/services/claim"
	"fabricclaim/services/orchestrator"
)

// DefaultLimit bounds Recent when no limit is given.
const DefaultLimit = 20

const maxLimit = 500

type runRow struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey"`
	Account    string     `gorm:"type:text"`
	Addresses  int        `gorm:"type:integer"`
	Claimed    int        `gorm:"type:integer"`
	Updated    int        `gorm:"type:integer"`
	Failed     int        `gorm:"type:integer"`
	StartedAt  time.Time  `gorm:"type:timestamptz"`
	FinishedAt *time.Time `gorm:"type:timestamptz"`
}

func (runRow) TableName() string { return "claim_runs" }

type attemptRow struct {
	ID         int64             `gorm:"primaryKey;autoIncrement"`
	RunID      uuid.UUID         `gorm:"type:uuid"`
	Address    string            `gorm:"type:text"`
	Outcome    string            `gorm:"type:text"`
	Reason     string            `gorm:"type:text"`
	Moid       string            `gorm:"type:text"`
	Detail     datatypes.JSONMap `gorm:"type:jsonb"`
	RecordedAt time.Time         `gorm:"type:timestamptz"`
}

func (attemptRow) TableName() string { return "claim_attempts" }

// RunSummary is one row of run history.
type RunSummary struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	Account    string     `db:"account" json:"account"`
	Addresses  int        `db:"addresses" json:"addresses"`
	Claimed    int        `db:"claimed" json:"claimed"`
	Updated    int        `db:"updated" json:"updated"`
	Failed     int        `db:"failed" json:"failed"`
	StartedAt  time.Time  `db:"started_at" json:"started_at"`
	FinishedAt *time.Time `db:"finished_at" json:"finished_at,omitempty"`
}

// Store records runs through gorm and reads history through the pool.
type Store struct {
	pool *pgxpool.Pool
	gorm *gorm.DB
	now  func() time.Time
}

var _ orchestrator.Recorder = (*Store)(nil)

// New returns a Store over pool. Migrations must already be applied.
func New(pool *pgxpool.Pool) (*Store, error) {
	gdb, err := db.Gorm(pool)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	return &Store{pool: pool, gorm: gdb, now: time.Now}, nil
}

func (s *Store) RunStarted(ctx context.Context, run orchestrator.Run) error {
	row := runRow{
		ID:        run.ID,
		Account:   run.Account,
		Addresses: run.Addresses,
		StartedAt: run.StartedAt,
	}
	return db.WithTimeout(ctx, db.DefaultTimeout, func(ctx context.Context) error {
		return s.gorm.WithContext(ctx).Create(&row).Error
	})
}

func (s *Store) DeviceFinished(ctx context.Context, run orchestrator.Run, outcome claim.Outcome) error {
	row := attemptFor(run.ID, outcome, s.now().UTC())
	return db.WithTimeout(ctx, db.DefaultTimeout, func(ctx context.Context) error {
		return s.gorm.WithContext(ctx).Create(&row).Error
	})
}

func (s *Store) RunFinished(ctx context.Context, run orchestrator.Run, summary claim.Summary) error {
	finished := run.FinishedAt
	return db.WithTimeout(ctx, db.DefaultTimeout, func(ctx context.Context) error {
		res := s.gorm.WithContext(ctx).Model(&runRow{ID: run.ID}).Updates(map[string]any{
			"claimed":     summary.Claimed,
			"updated":     summary.Updated,
			"failed":      summary.Failed,
			"finished_at": &finished,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("run %s not recorded", run.ID)
		}
		return nil
	})
}

// Recent lists up to limit runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]RunSummary, error) {
	var runs []RunSummary
	err := db.Select(ctx, s.pool, &runs, `
		SELECT id, account, addresses, claimed, updated, failed, started_at, finished_at
		FROM claim_runs
		ORDER BY started_at DESC
		LIMIT $1`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > maxLimit:
		return maxLimit
	default:
		return limit
	}
}

// attemptFor builds the attempt row. Device identifiers and claim tokens are
// never part of the detail.
func attemptFor(runID uuid.UUID, outcome claim.Outcome, at time.Time) attemptRow {
	row := attemptRow{
		RunID:      runID,
		Address:    outcome.Address,
		Outcome:    string(outcome.Kind),
		Reason:     outcome.Reason,
		Moid:       outcome.Moid,
		RecordedAt: at,
	}
	if detail := detailOf(outcome.Err); len(detail) > 0 {
		row.Detail = detail
	}
	return row
}

func detailOf(err error) datatypes.JSONMap {
	if err == nil {
		return nil
	}

	detail := datatypes.JSONMap{}
	var (
		loginErr      *claim.LoginError
		resolutionErr *claim.ResolutionError
		notFoundErr   *claim.NotFoundError
		submitErr     *claim.SubmissionError
	)
	switch {
	case errors.As(err, &loginErr):
		detail["stage"] = "login"
		if loginErr.Status != 0 {
			detail["status"] = loginErr.Status
		}
	case errors.As(err, &resolutionErr):
		detail["stage"] = "resolve"
		detail["unavailable"] = string(resolutionErr.Kind)
	case errors.As(err, &notFoundErr):
		detail["stage"] = "lookup"
		detail["api_path"] = notFoundErr.APIPath
	case errors.As(err, &submitErr):
		detail["stage"] = "submit"
		detail["method"] = submitErr.Method
		detail["path"] = submitErr.Path
		detail["status"] = submitErr.Status
	default:
		detail["stage"] = "unknown"
	}
	return detail
}
