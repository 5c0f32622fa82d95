package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rbalsleyMSFT/FFU-sub002/internal/cleanup"
	"github.com/rbalsleyMSFT/FFU-sub002/internal/config"
	"github.com/rbalsleyMSFT/FFU-sub002/internal/orchestrator"
	"github.com/rbalsleyMSFT/FFU-sub002/internal/preflight"
	"github.com/rbalsleyMSFT/FFU-sub002/internal/report"
	"github.com/rbalsleyMSFT/FFU-sub002/internal/session"
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Run the full FFU build pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Parse(configPath)
		if err != nil {
			return err
		}
		return runBuild(cmd.Context(), cfg)
	},
}

func runBuild(ctx context.Context, cfg *config.BuildConfig) error {
	logger := logrus.StandardLogger()

	sink, err := newSink(cfg, report.Fresh)
	if err != nil {
		return err
	}
	defer sink.Close()

	provider, err := newProvider(cfg, logger)
	if err != nil {
		return err
	}

	sess := session.New(cleanup.NewRegistry(logger), sink)

	// A first interrupt requests cooperative cancellation, honored at the
	// next phase boundary. A second one kills the process the usual way.
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-signals
		logger.Warn("Interrupt received, cancelling at the next phase boundary")
		sess.RequestCancel()
		signal.Stop(signals)
	}()
	defer signal.Stop(signals)

	orch := &orchestrator.Orchestrator{
		Session: sess,
		Preflight: &preflight.Runner{
			Checks:             newChecks(cfg),
			AttemptRemediation: true,
			Logger:             logger,
		},
		Phases: newPhases(cfg, provider, logger),
		Logger: logrus.NewEntry(logger),
	}

	outcome, err := orch.Run(ctx)
	switch outcome {
	case orchestrator.OutcomeSucceeded:
		return nil
	case orchestrator.OutcomeValidationFailed:
		return exitError{code: exitValidationFailed, message: err.Error()}
	case orchestrator.OutcomeCancelled:
		return exitError{code: exitCancelled, message: "build cancelled"}
	default:
		return exitError{code: exitFatal, message: err.Error()}
	}
}

func newSink(cfg *config.BuildConfig, mode report.Mode) (report.Sink, error) {
	if cfg.LogFile == "" {
		return report.NullSink{}, nil
	}
	return report.NewLogSink(cfg.LogFile, mode)
}
