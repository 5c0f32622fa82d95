package main

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rbalsleyMSFT/FFU-sub002/internal/cleanup"
	"github.com/rbalsleyMSFT/FFU-sub002/internal/config"
	"github.com/rbalsleyMSFT/FFU-sub002/internal/hypervisor"
	"github.com/rbalsleyMSFT/FFU-sub002/internal/phase"
	"github.com/rbalsleyMSFT/FFU-sub002/internal/report"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Release resources left behind by an interrupted build",
	Long: `Re-probes the configured hypervisor for the build VM and removes it
together with leftover scratch artifacts. Best effort: failures are
reported and the remaining resources are still attempted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Parse(configPath)
		if err != nil {
			return err
		}
		return runCleanup(cmd.Context(), cfg)
	},
}

func runCleanup(ctx context.Context, cfg *config.BuildConfig) error {
	logger := logrus.StandardLogger()

	sink, err := newSink(cfg, report.Append)
	if err != nil {
		return err
	}
	defer sink.Close()
	sink.PhaseStarted("cleanup")

	provider, err := newProvider(cfg, logger)
	if err != nil {
		return err
	}

	registry := cleanup.NewRegistry(logger)
	stageLeftovers(ctx, cfg, provider, registry, logger)

	if registry.Len() == 0 {
		logger.Info("Nothing to clean up")
		sink.PhaseCompleted("cleanup")
		return nil
	}

	for _, reg := range registry.Snapshot() {
		logger.WithFields(logrus.Fields{
			"kind":   reg.Kind.ToString(),
			"handle": reg.Handle,
		}).Info("Will release leftover resource")
	}

	summary := registry.DrainAndRelease()
	if !summary.AllReleased() {
		for _, failure := range summary.Failed {
			sink.Error("cleanup", fmt.Errorf("%s %s: %w", failure.Kind.ToString(), failure.Handle, failure.Err))
		}
		return fmt.Errorf("%d resource(s) could not be released", len(summary.Failed))
	}

	logger.WithField("released", summary.Released).Info("Cleanup finished")
	sink.PhaseCompleted("cleanup")
	return nil
}

// stageLeftovers registers whatever an interrupted build left behind, in
// the build phases' acquisition order: disk, then mount, then VM. The
// reverse-order drain then tears down the VM before dismounting the VHDX
// and dismounts it before deleting the file.
func stageLeftovers(ctx context.Context, cfg *config.BuildConfig, provider hypervisor.Provider, registry *cleanup.Registry, logger *logrus.Logger) {
	if _, err := os.Stat(cfg.VHDXPath); err == nil {
		path := cfg.VHDXPath
		registry.Register(cleanup.VirtualDisk, path, func() error {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return err
			}
			return nil
		})
		registry.Register(cleanup.MountedImage, path, func() error {
			return phase.DismountVHDX(ctx, toolTimeout, path)
		})
	}

	vm, err := provider.GetVM(ctx, cfg.VM.Name)
	if err != nil {
		logger.WithError(err).Warn("Hypervisor probe failed, skipping VM cleanup")
	} else if vm != nil {
		name := vm.Name
		running := vm.PowerState == hypervisor.PowerStateRunning
		registry.Register(cleanup.VirtualMachine, name, func() error {
			if running {
				if err := provider.StopVM(ctx, name); err != nil {
					return err
				}
			}
			return provider.RemoveVM(ctx, name)
		})
	}
}
