package main

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rbalsleyMSFT/FFU-sub002/internal/config"
	"github.com/rbalsleyMSFT/FFU-sub002/internal/hypervisor"
	"github.com/rbalsleyMSFT/FFU-sub002/internal/phase"
	"github.com/rbalsleyMSFT/FFU-sub002/internal/preflight"
	"github.com/rbalsleyMSFT/FFU-sub002/internal/retry"
)

const toolTimeout = 2 * time.Hour

func newProvider(cfg *config.BuildConfig, logger *logrus.Logger) (hypervisor.Provider, error) {
	switch cfg.Backend {
	case "hyperv":
		return &hypervisor.HyperVProvider{Logger: logger}, nil
	case "vmware":
		var url string
		insecure := false
		if cfg.VMware != nil {
			url = cfg.VMware.URL
			insecure = cfg.VMware.Insecure
		}
		provider := hypervisor.NewVMwareProvider(url, insecure, logger)
		if cfg.VMware != nil {
			provider.VMDirs = append(provider.VMDirs, cfg.VMware.VMDirs...)
			if cfg.VMware.PreferencesPath != "" {
				provider.PreferencesPath = cfg.VMware.PreferencesPath
			}
		}
		return provider, nil
	}
	return nil, fmt.Errorf("unknown hypervisor backend %q", cfg.Backend)
}

func newChecks(cfg *config.BuildConfig) []preflight.Check {
	checks := []preflight.Check{
		preflight.WimMountCheck{},
		preflight.ADKToolsCheck{},
		preflight.DiskSpaceCheck{
			Path:          cfg.WorkDir,
			RequiredBytes: uint64(cfg.RequiredFreeGB) << 30,
		},
	}
	switch cfg.Backend {
	case "hyperv":
		checks = append(checks, preflight.HyperVServiceCheck{})
	case "vmware":
		var url string
		if cfg.VMware != nil {
			url = cfg.VMware.URL
		}
		checks = append(checks, preflight.VMwareToolkitCheck{GovcURL: url})
	}
	return checks
}

func newPhases(cfg *config.BuildConfig, provider hypervisor.Provider, logger *logrus.Logger) []phase.Body {
	startRetry := retry.Op{
		Name:        "vm start",
		MaxAttempts: cfg.Retry.MaxAttempts,
		Delay:       cfg.Retry.Delay(),
		Logger:      logger,
	}
	captureRetry := startRetry
	captureRetry.Name = "ffu capture"

	return []phase.Body{
		phase.NewDriverDownload(cfg.Drivers.URLs, cfg.WorkDir, cfg.Drivers.RetryMax, logger),
		&phase.VHDXCreate{
			Path:    cfg.VHDXPath,
			SizeGB:  cfg.VHDXSizeGB,
			Timeout: toolTimeout,
			Logger:  logger,
		},
		&phase.VMSetup{
			Provider: provider,
			Spec: hypervisor.Spec{
				Name:       cfg.VM.Name,
				MemoryMB:   cfg.VM.MemoryMB,
				Processors: cfg.VM.Processors,
				VHDXPath:   cfg.VHDXPath,
				SwitchName: cfg.VM.SwitchName,
				Generation: cfg.VM.Generation,
			},
			Logger: logger,
		},
		&phase.VMStart{
			Provider: provider,
			VMName:   cfg.VM.Name,
			Retry:    startRetry,
		},
		&phase.FFUCapture{
			Provider:     provider,
			VMName:       cfg.VM.Name,
			CaptureDrive: cfg.CaptureDrive,
			ImageFile:    cfg.ImageFile,
			ImageName:    cfg.ImageName,
			Retry:        captureRetry,
			Timeout:      toolTimeout,
			Logger:       logger,
		},
		&phase.DeploymentMedia{
			MediaDir:  cfg.Media.MediaDir,
			ImageFile: cfg.ImageFile,
			OutputISO: cfg.Media.OutputISO,
			Skip:      cfg.Media.Skip,
			Timeout:   toolTimeout,
			Logger:    logger,
		},
		&phase.USBCreate{
			DiskNumber: cfg.USB.DiskNumber,
			MediaDir:   cfg.Media.MediaDir,
			Skip:       cfg.USB.Skip,
			Timeout:    toolTimeout,
			Logger:     logger,
		},
	}
}
