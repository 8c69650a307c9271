package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"fabricclaim/pkg/bus"
	"fabricclaim/pkg/db"
	"fabricclaim/pkg/render"
	gos3 "fabricclaim/pkg/s3"
	"fabricclaim/services/claim"
	"fabricclaim/services/claimer/internal/config"
	"fabricclaim/services/console"
	"fabricclaim/services/ledger"
	"fabricclaim/services/orchestrator"
	"fabricclaim/services/platform"
	"fabricclaim/services/report"
)

func newClaimCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "claim [ADDRESS...]",
		Short: "Claim every configured device console",
		Long: "Claim every device console listed in CONSOLE_ADDRESSES, or the addresses given\n" +
			"as arguments. Devices are processed one at a time and a failure on one device\n" +
			"does not stop the others.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cfg, logger, err := root.setup(cmd)
			if err != nil {
				return err
			}
			if len(args) > 0 {
				cfg.Console.Addresses = config.CleanAddresses(args)
			}
			if err := cfg.ValidateClaim(); err != nil {
				return err
			}

			stopTracing, err := startTracing(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer stopTracing()

			return runClaim(ctx, cmd, cfg, logger)
		},
	}
}

func runClaim(ctx context.Context, cmd *cobra.Command, cfg config.Config, logger zerolog.Logger) error {
	claimer, err := newClaimer(cfg, &logger)
	if err != nil {
		return err
	}

	var recorders []orchestrator.Recorder
	if len(cfg.Console.Addresses) > 0 {
		var cleanup func()
		recorders, cleanup = openRecorders(ctx, cfg, logger)
		defer cleanup()
	}

	orch, err := orchestrator.New(orchestrator.Config{
		Console:  console.NewClient(console.Config{Timeout: cfg.Console.Timeout}),
		Platform: claimer,
		Credentials: orchestrator.Credentials{
			Username: cfg.Console.Username,
			Password: cfg.Console.Password,
		},
		Recorders: recorders,
		Logger:    &logger,
	})
	if err != nil {
		return err
	}

	res, err := orch.Execute(ctx, cfg.Console.Addresses)
	if err != nil {
		return err
	}

	rep := report.Build(res)
	engine, err := render.New()
	if err != nil {
		return err
	}
	if err := report.Render(cmd.OutOrStdout(), engine, rep); err != nil {
		return fmt.Errorf("render report: %w", err)
	}

	if cfg.ReportBucket != "" && len(res.Outcomes) > 0 {
		archiveReport(ctx, cmd, cfg, logger, rep)
	}

	if res.Summary.Failed > 0 && cfg.FailOnPartial {
		return fmt.Errorf("%w: %d of %d", errPartial, res.Summary.Failed, res.Summary.Total)
	}
	return nil
}

// openRecorders connects the optional run ledger and event bus. Either one
// failing to connect is logged and skipped.
func openRecorders(ctx context.Context, cfg config.Config, logger zerolog.Logger) ([]orchestrator.Recorder, func()) {
	recorders := []orchestrator.Recorder{orchestrator.NewMetrics(cfg.PushgatewayURL)}
	var closers []func()

	if cfg.DBDSN != "" {
		pool, store, err := openLedger(ctx, cfg.DBDSN)
		if err != nil {
			logger.Warn().Err(err).Msg("run ledger unavailable, continuing without it")
		} else {
			closers = append(closers, pool.Close)
			recorders = append(recorders, store)
		}
	}

	if cfg.NATSURL != "" {
		b, err := bus.New(cfg.NATSURL)
		if err != nil {
			logger.Warn().Err(err).Msg("event bus unavailable, continuing without it")
		} else if err := b.EnsureStream(orchestrator.EventStream, orchestrator.EventSubjects); err != nil {
			logger.Warn().Err(err).Msg("event stream unavailable, continuing without events")
			b.Close()
		} else {
			closers = append(closers, b.Close)
			events, _ := orchestrator.NewEventRecorder(b)
			recorders = append(recorders, events)
		}
	}

	return recorders, func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
}

func newClaimer(cfg config.Config, logger *zerolog.Logger) (*platform.Claimer, error) {
	pemData, err := platform.ReadKeyFile(cfg.Platform.KeyFile, cfg.AgeSecretKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", claim.ErrConfiguration, err)
	}
	signer, err := platform.NewSigner(cfg.Platform.KeyID, pemData)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", claim.ErrConfiguration, err)
	}
	session, err := platform.NewSession(platform.Config{
		BaseURL:            cfg.Platform.BaseURL,
		Signer:             signer,
		InsecureSkipVerify: !cfg.Platform.VerifyTLS,
		Timeout:            cfg.Platform.Timeout,
		Logger:             logger,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", claim.ErrConfiguration, err)
	}
	return platform.NewClaimer(session, cfg.Platform.Organization, logger), nil
}

func openLedger(ctx context.Context, dsn string) (*pgxpool.Pool, *ledger.Store, error) {
	pool, err := db.Open(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("migrate database: %w", err)
	}
	store, err := ledger.New(pool)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return pool, store, nil
}

func archiveReport(ctx context.Context, cmd *cobra.Command, cfg config.Config, logger zerolog.Logger, rep report.Report) {
	client, err := gos3.NewClient(ctx, gos3.Config{
		Endpoint:       cfg.Storage.Endpoint,
		Region:         cfg.Storage.Region,
		AccessKey:      cfg.Storage.AccessKey,
		SecretKey:      cfg.Storage.SecretKey,
		DisableTLS:     cfg.Storage.DisableTLS,
		ForcePathStyle: cfg.Storage.ForcePathStyle,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("report archive unavailable")
		return
	}

	archived, err := report.Archive(ctx, client, cfg.ReportBucket, rep)
	if err != nil {
		logger.Warn().Err(err).Msg("archive report")
		return
	}
	logger.Info().Str("bucket", archived.Bucket).Str("key", archived.Key).Msg("report archived")
	fmt.Fprintf(cmd.OutOrStdout(), "Report: %s\n", archived.URL)
}
