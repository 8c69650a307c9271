package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"fabricclaim/pkg/telemetry"
	"fabricclaim/services/claimer/internal/config"
)

const serviceName = "fabricclaim"

const (
	exitFatal   = 1
	exitPartial = 2
)

// errPartial marks a run where at least one device failed and the operator
// asked for a non-zero exit.
var errPartial = errors.New("one or more devices failed to claim")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_ = godotenv.Load()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	if errors.Is(err, errPartial) {
		return exitPartial
	}
	return exitFatal
}

type rootOptions struct {
	configFile string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           serviceName,
		Short:         "Claim fabric interconnects into the management platform",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "Optional YAML config file; its keys override the environment")

	cmd.AddCommand(newClaimCommand(opts))
	cmd.AddCommand(newInspectCommand(opts))
	cmd.AddCommand(newHistoryCommand(opts))
	return cmd
}

// setup loads configuration and builds the logger shared by every command.
func (o *rootOptions) setup(cmd *cobra.Command) (context.Context, config.Config, zerolog.Logger, error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Load(ctx, o.configFile)
	if err != nil {
		return nil, config.Config{}, zerolog.Nop(), err
	}

	logger, err := telemetry.NewLogger(serviceName, cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())
	if err != nil {
		return nil, config.Config{}, zerolog.Nop(), err
	}
	return ctx, cfg, logger, nil
}

// startTracing initialises tracing and returns a shutdown func safe to defer.
func startTracing(ctx context.Context, cfg config.Config, logger zerolog.Logger) (func(), error) {
	cleanup, err := telemetry.Init(ctx, serviceName, cfg.OTLPEndpoint)
	if err != nil {
		return nil, err
	}
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := cleanup(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("shutdown otel")
		}
	}, nil
}
