package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"

	"fabricclaim/services/claim"
)

// Run identifies one invocation of the orchestrator.
type Run struct {
	ID         uuid.UUID `json:"run_id"`
	Account    string    `json:"account"`
	Addresses  int       `json:"addresses"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// Recorder observes a run. Recorder errors are logged and never change outcomes.
type Recorder interface {
	RunStarted(ctx context.Context, run Run) error
	DeviceFinished(ctx context.Context, run Run, outcome claim.Outcome) error
	RunFinished(ctx context.Context, run Run, summary claim.Summary) error
}
