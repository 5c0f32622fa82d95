package phase

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/rbalsleyMSFT/FFU-sub002/internal/hypervisor"
	"github.com/rbalsleyMSFT/FFU-sub002/internal/retry"
	"github.com/rbalsleyMSFT/FFU-sub002/internal/session"
)

// FFUCapture shuts the build VM down and captures its disk into the final
// FFU image. The capture tool is the flakiest link in the pipeline, so the
// invocation runs under the bounded retry wrapper. The produced FFU is the
// pipeline's artifact and is deliberately never registered for cleanup.
type FFUCapture struct {
	Provider     hypervisor.Provider
	VMName       string
	CaptureDrive string
	ImageFile    string
	ImageName    string
	Retry        retry.Op
	Timeout      time.Duration
	Logger       *logrus.Logger
}

func (c *FFUCapture) Name() string {
	return "ffu capture"
}

func (c *FFUCapture) Run(ctx context.Context, sess *session.BuildSession) error {
	vm, err := c.Provider.GetVM(ctx, c.VMName)
	if err != nil {
		return fmt.Errorf("looking up build VM: %w", err)
	}
	if vm != nil && vm.PowerState == hypervisor.PowerStateRunning {
		if err := c.Provider.StopVM(ctx, c.VMName); err != nil {
			return fmt.Errorf("stopping build VM before capture: %w", err)
		}
	}

	err = c.Retry.Do(ctx, func(ctx context.Context) error {
		return runTool(ctx, c.Timeout, "dism.exe",
			"/Capture-Ffu",
			fmt.Sprintf("/ImageFile:%s", c.ImageFile),
			fmt.Sprintf("/CaptureDrive:%s", c.CaptureDrive),
			fmt.Sprintf("/Name:%s", c.ImageName),
			"/Compress:Default",
		)
	})
	if err != nil {
		return fmt.Errorf("capturing FFU: %w", err)
	}

	if c.Logger != nil {
		c.Logger.WithField("image", c.ImageFile).Info("FFU captured")
	}
	return nil
}
