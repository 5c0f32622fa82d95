package phase

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/rbalsleyMSFT/FFU-sub002/internal/cleanup"
	"github.com/rbalsleyMSFT/FFU-sub002/internal/hypervisor"
	"github.com/rbalsleyMSFT/FFU-sub002/internal/retry"
	"github.com/rbalsleyMSFT/FFU-sub002/internal/session"
)

// VMSetup creates the build VM on the configured hypervisor backend and
// registers it for teardown. The VM is always an intermediate resource:
// the artifact of the pipeline is the captured FFU, never the VM.
type VMSetup struct {
	Provider hypervisor.Provider
	Spec     hypervisor.Spec
	Logger   *logrus.Logger
}

func (s *VMSetup) Name() string {
	return "vm setup"
}

func (s *VMSetup) Run(ctx context.Context, sess *session.BuildSession) error {
	vm, err := s.Provider.CreateVM(ctx, s.Spec)
	if err != nil {
		return fmt.Errorf("creating build VM: %w", err)
	}
	if vm == nil {
		return fmt.Errorf("build VM %s not visible after creation", s.Spec.Name)
	}

	provider := s.Provider
	name := vm.Name
	sess.Registry.Register(cleanup.VirtualMachine, name, func() error {
		// look the VM up first so releasing an already-removed VM stays
		// a no-op
		existing, err := provider.GetVM(context.Background(), name)
		if err != nil {
			return err
		}
		if existing == nil {
			return nil
		}
		if existing.PowerState == hypervisor.PowerStateRunning {
			if err := provider.StopVM(context.Background(), name); err != nil {
				return err
			}
		}
		return provider.RemoveVM(context.Background(), name)
	})

	if s.Logger != nil {
		s.Logger.WithFields(logrus.Fields{
			"vm":      vm.Name,
			"backend": vm.Backend.ToString(),
		}).Info("Build VM created")
	}
	return nil
}

// VMStart boots the build VM. Boot is flaky on a loaded host, so the start
// call runs under the bounded retry wrapper.
type VMStart struct {
	Provider hypervisor.Provider
	VMName   string
	Retry    retry.Op
}

func (s *VMStart) Name() string {
	return "vm start"
}

func (s *VMStart) Run(ctx context.Context, sess *session.BuildSession) error {
	return s.Retry.Do(ctx, func(ctx context.Context) error {
		return s.Provider.StartVM(ctx, s.VMName)
	})
}
