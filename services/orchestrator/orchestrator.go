package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"fabricclaim/services/claim"
	"fabricclaim/services/console"
)

// Console is the device console surface the orchestrator drives.
type Console interface {
	Login(ctx context.Context, address, username, password string) (*console.Session, error)
	ResolveIdentity(ctx context.Context, session *console.Session, address string) (claim.DeviceIdentity, error)
}

// Platform is the management platform surface the orchestrator drives.
type Platform interface {
	CheckAvailability(ctx context.Context) (string, error)
	Claim(ctx context.Context, address string, req claim.Request) claim.Outcome
}

// Credentials are shared by every device console in a run.
type Credentials struct {
	Username string
	Password string
}

// Config wires an Orchestrator.
type Config struct {
	Console     Console
	Platform    Platform
	Credentials Credentials
	Recorders   []Recorder
	Logger      *zerolog.Logger
	Tracer      trace.Tracer
	Now         func() time.Time
}

// Orchestrator claims a list of device consoles one at a time.
type Orchestrator struct {
	console     Console
	platform    Platform
	credentials Credentials
	recorders   []Recorder
	logger      zerolog.Logger
	tracer      trace.Tracer
	now         func() time.Time
}

// Result is the full record of one run.
type Result struct {
	Run      Run
	Outcomes []claim.Outcome
	Summary  claim.Summary
}

// New validates cfg and returns an Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Console == nil {
		return nil, errors.New("console client is required")
	}
	if cfg.Platform == nil {
		return nil, errors.New("platform client is required")
	}
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.Tracer("fabricclaim/orchestrator")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Orchestrator{
		console:     cfg.Console,
		platform:    cfg.Platform,
		credentials: cfg.Credentials,
		recorders:   cfg.Recorders,
		logger:      logger,
		tracer:      cfg.Tracer,
		now:         cfg.Now,
	}, nil
}

// Run claims every address in order and returns one outcome per address.
// The only error is a fatal one that stops the whole run.
func (o *Orchestrator) Run(ctx context.Context, addresses []string) ([]claim.Outcome, error) {
	res, err := o.Execute(ctx, addresses)
	if err != nil {
		return nil, err
	}
	return res.Outcomes, nil
}

// Execute is Run with the run metadata and summary included.
func (o *Orchestrator) Execute(ctx context.Context, addresses []string) (Result, error) {
	run := Run{ID: uuid.New(), StartedAt: o.now().UTC(), Addresses: len(addresses)}

	if len(addresses) == 0 {
		o.logger.Info().Msg("no device console addresses configured, nothing to claim")
		run.FinishedAt = run.StartedAt
		return Result{Run: run, Outcomes: []claim.Outcome{}}, nil
	}

	ctx, span := o.tracer.Start(ctx, "claim run", trace.WithAttributes(
		attribute.String("run.id", run.ID.String()),
		attribute.Int("run.addresses", len(addresses)),
	))
	defer span.End()

	o.logger.Info().Msg("checking management platform availability")
	account, err := o.platform.CheckAvailability(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "platform unavailable")
		if !errors.Is(err, claim.ErrPlatformUnavailable) {
			err = fmt.Errorf("%w: %v", claim.ErrPlatformUnavailable, err)
		}
		return Result{}, err
	}
	run.Account = account
	o.logger.Info().Str("account", account).Str("run_id", run.ID.String()).Msg("management platform reachable")

	o.notify(func(r Recorder) error { return r.RunStarted(ctx, run) }, "run started")

	outcomes := make([]claim.Outcome, 0, len(addresses))
	for _, address := range addresses {
		outcome := o.claimDevice(ctx, address)
		outcomes = append(outcomes, outcome)
		o.notify(func(r Recorder) error { return r.DeviceFinished(ctx, run, outcome) }, "device finished")
	}

	run.FinishedAt = o.now().UTC()
	summary := claim.Summarize(outcomes)
	o.notify(func(r Recorder) error { return r.RunFinished(ctx, run, summary) }, "run finished")

	o.logger.Info().
		Int("claimed", summary.Claimed).
		Int("updated", summary.Updated).
		Int("failed", summary.Failed).
		Msg("claim run complete")

	return Result{Run: run, Outcomes: outcomes, Summary: summary}, nil
}

// claimDevice drives login, identity resolution and submission for one
// address. Every error ends as a failed outcome.
func (o *Orchestrator) claimDevice(ctx context.Context, address string) claim.Outcome {
	ctx, span := o.tracer.Start(ctx, "claim device", trace.WithAttributes(attribute.String("device.address", address)))
	defer span.End()

	log := o.logger.With().Str("address", address).Logger()
	fail := func(stage string, err error) claim.Outcome {
		span.RecordError(err)
		span.SetStatus(codes.Error, stage)
		log.Error().Err(err).Str("stage", stage).Msg("device claim failed")
		return claim.Failed(address, err)
	}

	log.Info().Msg("logging in to device console")
	session, err := o.console.Login(ctx, address, o.credentials.Username, o.credentials.Password)
	if err != nil {
		return fail("login", err)
	}

	identity, err := o.console.ResolveIdentity(ctx, session, address)
	if err != nil {
		return fail("resolve identity", err)
	}
	log.Info().Str("identifier", identity.Identifier).Str("token", identity.MaskedToken()).Msg("device identity resolved")

	req, err := claim.NewRequest(identity)
	if err != nil {
		return fail("build claim", err)
	}

	outcome := o.platform.Claim(ctx, address, req)
	if !outcome.Succeeded() {
		err := outcome.Err
		if err == nil {
			err = errors.New(outcome.Reason)
		}
		return fail("claim", err)
	}

	span.SetAttributes(attribute.String("claim.outcome", string(outcome.Kind)))
	log.Info().Str("outcome", string(outcome.Kind)).Str("moid", outcome.Moid).Msg("device claimed")
	return outcome
}

func (o *Orchestrator) notify(fn func(Recorder) error, what string) {
	for _, r := range o.recorders {
		if r == nil {
			continue
		}
		if err := fn(r); err != nil {
			o.logger.Warn().Err(err).Str("recorder", fmt.Sprintf("%T", r)).Msgf("record %s", what)
		}
	}
}
