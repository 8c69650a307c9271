package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"fabricclaim/services/claim"
)

const (
	// EventStream is the JetStream stream holding every event subject.
	EventStream = "FABRICCLAIM"
	// EventSubjects matches every subject published by EventRecorder.
	EventSubjects = "fabricclaim.>"

	runStartedSubject   = "fabricclaim.runs.started"
	claimOutcomeSubject = "fabricclaim.claims.outcome"
	runFinishedSubject  = "fabricclaim.runs.finished"
)

// Publisher is satisfied by *bus.Bus.
type Publisher interface {
	Publish(ctx context.Context, subj string, v any) error
}

type runEvent struct {
	RunID      uuid.UUID      `json:"run_id"`
	Account    string         `json:"account"`
	Addresses  int            `json:"addresses"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
	Summary    *claim.Summary `json:"summary,omitempty"`
}

type outcomeEvent struct {
	RunID      uuid.UUID  `json:"run_id"`
	Address    string     `json:"address"`
	Outcome    claim.Kind `json:"outcome"`
	Reason     string     `json:"reason,omitempty"`
	Moid       string     `json:"moid,omitempty"`
	RecordedAt time.Time  `json:"recorded_at"`
}

// EventRecorder publishes run lifecycle and per-device outcome events.
type EventRecorder struct {
	pub Publisher
	now func() time.Time
}

// NewEventRecorder returns a recorder publishing through pub.
func NewEventRecorder(pub Publisher) (*EventRecorder, error) {
	if pub == nil {
		return nil, errors.New("publisher is required")
	}
	return &EventRecorder{pub: pub, now: time.Now}, nil
}

func (e *EventRecorder) RunStarted(ctx context.Context, run Run) error {
	return e.pub.Publish(ctx, runStartedSubject, runEvent{
		RunID:     run.ID,
		Account:   run.Account,
		Addresses: run.Addresses,
		StartedAt: run.StartedAt,
	})
}

func (e *EventRecorder) DeviceFinished(ctx context.Context, run Run, outcome claim.Outcome) error {
	return e.pub.Publish(ctx, claimOutcomeSubject, outcomeEvent{
		RunID:      run.ID,
		Address:    outcome.Address,
		Outcome:    outcome.Kind,
		Reason:     outcome.Reason,
		Moid:       outcome.Moid,
		RecordedAt: e.now().UTC(),
	})
}

func (e *EventRecorder) RunFinished(ctx context.Context, run Run, summary claim.Summary) error {
	finished := run.FinishedAt
	return e.pub.Publish(ctx, runFinishedSubject, runEvent{
		RunID:      run.ID,
		Account:    run.Account,
		Addresses:  run.Addresses,
		StartedAt:  run.StartedAt,
		FinishedAt: &finished,
		Summary:    &summary,
	})
}
